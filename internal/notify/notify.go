// Package notify 在转账广播后分发交易事件。生产者把事件投入队列，
// 后台的 Watcher 消费事件并轮询链上回执，直至交易到达终态。
// 队列驱动可以是内存、Redis 或 RabbitMQ。
package notify

import (
	"context"
	"encoding/json"
	"time"
)

// TxEvent 是一笔已广播转账的事件载荷。
type TxEvent struct {
	ID          string    `json:"id"`
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	Symbol      string    `json:"symbol"`
	SessionID   string    `json:"session_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Encode 序列化事件为队列载荷。
func (e TxEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeTxEvent 反序列化队列载荷。
func DecodeTxEvent(raw []byte) (TxEvent, error) {
	var event TxEvent
	err := json.Unmarshal(raw, &event)
	return event, err
}

// Handler 处理一条交易事件。返回错误表示处理失败，
// 驱动视自身能力决定是否重投。
type Handler func(ctx context.Context, event TxEvent) error

// Producer 把事件投入队列。
type Producer interface {
	Publish(ctx context.Context, event TxEvent) error
	Close() error
}

// Consumer 阻塞消费队列中的事件，直到 ctx 取消或队列关闭。
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// Queue 同时承担生产与消费。
type Queue interface {
	Producer
	Consumer
}
