package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     []interface{}
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	mock := &mockRedisEvaler{result: []interface{}{int64(1), int64(2), int64(0)}}
	l := newRedisRateLimiter(zap.NewNop(), mock, "login", Policy{Max: 5, Window: time.Minute}, NewUnavailableLimiter(Policy{Max: 5}))

	d := l.Limit(context.Background(), "ip:1.2.3.4")
	if !d.Allowed {
		t.Fatalf("expected allowed decision: %+v", d)
	}
	if d.Remaining != 3 {
		t.Fatalf("expected remaining 3, got %d", d.Remaining)
	}
	if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "rl:login:ip:1.2.3.4" {
		t.Fatalf("unexpected keys: %v", mock.lastKeys)
	}
}

func TestRedisRateLimiter_Denied(t *testing.T) {
	oldest := time.Now().UTC().Add(-30 * time.Second).UnixMilli()
	mock := &mockRedisEvaler{result: []interface{}{int64(0), int64(5), oldest}}
	l := newRedisRateLimiter(zap.NewNop(), mock, "login", Policy{Max: 5, Window: time.Minute}, NewUnavailableLimiter(Policy{Max: 5}))

	d := l.Limit(context.Background(), "ip:1.2.3.4")
	if d.Allowed {
		t.Fatalf("expected denial: %+v", d)
	}
	if d.Reason != ReasonLimited {
		t.Fatalf("expected reason %q, got %q", ReasonLimited, d.Reason)
	}
	if d.ResetAt != oldest+time.Minute.Milliseconds() {
		t.Fatalf("expected reset derived from oldest hit, got %d", d.ResetAt)
	}
}

func TestRedisRateLimiter_BackendErrorAppliesFallback(t *testing.T) {
	mock := &mockRedisEvaler{err: errors.New("connection refused")}

	t.Run("fail closed without fallback", func(t *testing.T) {
		l := newRedisRateLimiter(zap.NewNop(), mock, "login", Policy{Max: 5, Window: time.Minute}, NewUnavailableLimiter(Policy{Max: 5}))
		d := l.Limit(context.Background(), "ip:1.2.3.4")
		if d.Allowed {
			t.Fatalf("backend error must never allow silently: %+v", d)
		}
		if d.Reason != ReasonUnavailable {
			t.Fatalf("expected reason %q, got %q", ReasonUnavailable, d.Reason)
		}
	})

	t.Run("degrades to memory with fallback", func(t *testing.T) {
		l := newRedisRateLimiter(zap.NewNop(), mock, "login", Policy{Max: 5, Window: time.Minute}, NewMemoryRateLimiter(Policy{Max: 5, Window: time.Minute}))
		d := l.Limit(context.Background(), "ip:1.2.3.4")
		if !d.Allowed {
			t.Fatalf("expected degraded in-memory decision: %+v", d)
		}
	})
}

func TestRedisRateLimiter_EmptyIdentifier(t *testing.T) {
	mock := &mockRedisEvaler{result: []interface{}{int64(1), int64(1), int64(0)}}
	l := newRedisRateLimiter(zap.NewNop(), mock, "login", Policy{Max: 5, Window: time.Minute}, NewUnavailableLimiter(Policy{Max: 5}))
	if d := l.Limit(context.Background(), "   "); d.Allowed {
		t.Fatalf("expected empty identifier to be rejected: %+v", d)
	}
}
