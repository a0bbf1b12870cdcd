package notify

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Senna-Wallet/internal/errors"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现事件队列。
type RedisQueue struct {
	client *redis.Client
	queue  string
	wait   time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "senna:tx-events"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}, nil
}

var _ Queue = (*RedisQueue)(nil)

// Publish 将事件投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, event TxEvent) error {
	payload, err := event.Encode()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化交易事件失败")
	}
	if err := q.client.LPush(ctx, q.queue, payload).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 发布事件失败")
	}
	return nil
}

// Consume 通过 BRPOP 消费事件。处理失败的事件重新投递。
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "Redis 取事件失败")
		}
		if len(values) != 2 {
			continue
		}

		event, err := DecodeTxEvent([]byte(values[1]))
		if err != nil {
			// 无法解析的载荷直接丢弃，避免毒消息循环。
			continue
		}
		if handlerErr := handler(ctx, event); handlerErr != nil {
			_ = q.client.RPush(ctx, q.queue, []byte(values[1])).Err()
		}
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
