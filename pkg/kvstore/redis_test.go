package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
)

// memoryHook answers GET, SET and DEL from a map so the client never dials.
type memoryHook struct {
	mu   sync.Mutex
	data map[string]string
	keys []string
	fail error
}

func (h *memoryHook) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("dial disabled")
	}
}

func (h *memoryHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		args := cmd.Args()
		if len(args) < 2 {
			return fmt.Errorf("unexpected command %v", args)
		}
		key := fmt.Sprint(args[1])
		h.keys = append(h.keys, key)
		if h.fail != nil {
			return h.fail
		}

		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, ok := h.data[key]
			if !ok {
				return redis.Nil
			}
			c.SetVal(v)
		case *redis.StatusCmd:
			h.data[key] = fmt.Sprint(args[2])
			c.SetVal("OK")
		case *redis.IntCmd:
			var n int64
			if _, ok := h.data[key]; ok {
				delete(h.data, key)
				n = 1
			}
			c.SetVal(n)
		default:
			return fmt.Errorf("unexpected command %s", cmd.Name())
		}
		return nil
	}
}

func (h *memoryHook) ProcessPipelineHook(redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(context.Context, []redis.Cmder) error {
		return errors.New("pipelines not supported")
	}
}

func newMemoryRedis(t *testing.T, prefix string) (*RedisStore, *memoryHook) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	hook := &memoryHook{data: map[string]string{}}
	client.AddHook(hook)
	s := NewRedisStoreFromClient(client, prefix)
	t.Cleanup(func() { s.Close() })
	return s, hook
}

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s, hook := newMemoryRedis(t, "rakshak:")
	ctx := context.Background()

	if _, err := s.Get(ctx, "activeSOS"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store = %v, want ErrNotFound", err)
	}
	if err := s.Set(ctx, "activeSOS", `{"sessionId":"abc123"}`); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	v, err := s.Get(ctx, "activeSOS")
	if err != nil || v != `{"sessionId":"abc123"}` {
		t.Fatalf("Get() = %q, %v", v, err)
	}

	if err := s.Delete(ctx, "activeSOS"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, "activeSOS"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "activeSOS"); err != nil {
		t.Errorf("Delete() of missing key error: %v", err)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	for _, k := range hook.keys {
		if k != "rakshak:activeSOS" {
			t.Errorf("key %q sent without prefix", k)
		}
	}
}

func TestRedisStoreWrapsBackendErrors(t *testing.T) {
	t.Parallel()

	s, hook := newMemoryRedis(t, "")
	readOnly := errors.New("READONLY replica")
	hook.fail = readOnly
	ctx := context.Background()

	if _, err := s.Get(ctx, "user"); !errors.Is(err, readOnly) || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() = %v, want wrapped backend error", err)
	}
	if err := s.Set(ctx, "user", "{}"); !errors.Is(err, readOnly) {
		t.Errorf("Set() = %v, want wrapped backend error", err)
	}
	if err := s.Delete(ctx, "user"); !errors.Is(err, readOnly) {
		t.Errorf("Delete() = %v, want wrapped backend error", err)
	}
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisStore(context.Background(), &RedisConfig{URL: "http://localhost:6379"}); err == nil {
		t.Fatal("NewRedisStore() accepted a non-redis URL")
	}
}
