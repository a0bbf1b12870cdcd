package storage

import (
	"context"
	"fmt"
	"testing"
)

func TestRecordAndListBySession(t *testing.T) {
	log := NewMemoryTransferLog()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := log.Record(ctx, TransferRecord{
			ID:        fmt.Sprintf("rec-%d", i),
			SessionID: "sess-1",
			Hash:      fmt.Sprintf("0xhash-%d", i),
			Status:    TransferStatusSubmitted,
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	_ = log.Record(ctx, TransferRecord{ID: "other", SessionID: "sess-2", Status: TransferStatusSubmitted})

	records, err := log.ListBySession(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// 倒序返回，最近的在前。
	if records[0].ID != "rec-2" || records[1].ID != "rec-1" {
		t.Fatalf("unexpected order: %+v", records)
	}
	if records[0].CreatedAt.IsZero() || records[0].UpdatedAt.IsZero() {
		t.Fatal("timestamps must be filled on record")
	}
}

func TestUpdateStatusByHash(t *testing.T) {
	log := NewMemoryTransferLog()
	ctx := context.Background()

	_ = log.Record(ctx, TransferRecord{ID: "rec-1", SessionID: "sess-1", Hash: "0xaaa", Status: TransferStatusSubmitted})

	if err := log.UpdateStatus(ctx, "0xaaa", TransferStatusConfirmed); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	records, _ := log.ListBySession(ctx, "sess-1", 1)
	if records[0].Status != TransferStatusConfirmed {
		t.Fatalf("unexpected status %s", records[0].Status)
	}

	// 未命中的哈希静默成功。
	if err := log.UpdateStatus(ctx, "0xmissing", TransferStatusFailed); err != nil {
		t.Fatalf("UpdateStatus for unknown hash failed: %v", err)
	}
}
