package state

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// Set BRICKHOST_TEST_REDIS_ADDR to run against a real server.
func TestRedisStoreBackendContract(t *testing.T) {
	addr := os.Getenv("BRICKHOST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BRICKHOST_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("brickhost-test-%d:", time.Now().UnixNano())
	s, err := NewRedisStore(ctx, RedisConfig{Address: addr, Prefix: prefix})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() {
		for _, p := range []string{"p", "other"} {
			_ = s.client.Del(ctx, s.storeKey(p), s.configKey(p)).Err()
		}
		_ = s.Close()
	})

	exerciseBackend(t, s)
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(context.Background(), RedisConfig{}); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestRedisStoreKeys(t *testing.T) {
	t.Parallel()

	s := NewRedisStoreWithClient(nil, "")
	if got := s.storeKey("echo"); got != "brickhost:store:echo" {
		t.Fatalf("storeKey = %q", got)
	}
	if got := s.configKey("echo"); got != "brickhost:config:echo" {
		t.Fatalf("configKey = %q", got)
	}
}
