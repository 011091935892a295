package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Publisher 메시지 발행 인터페이스
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}

// RedisOptions Redis 연결 설정
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// redisPublisher Redis pub/sub 발행 구현체
type redisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher Redis에 연결하고 발행자를 생성합니다.
// 연결 확인(PING)에 실패하면 에러를 반환합니다.
func NewRedisPublisher(ctx context.Context, opts RedisOptions) (Publisher, error) {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis 연결 실패: %w", err)
	}

	return &redisPublisher{client: client}, nil
}

// Publish 메시지를 JSON으로 직렬화하여 발행합니다
func (r *redisPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("메시지 직렬화 실패: %w", err)
	}

	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("메시지 발행 실패(%s): %w", channel, err)
	}
	return nil
}

// Close Redis 클라이언트 종료
func (r *redisPublisher) Close() error {
	return r.client.Close()
}
