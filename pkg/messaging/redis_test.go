package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisPublisherUnreachable(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), RedisOptions{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Redis 연결 실패")
}
