package lock

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shopmesh-io/backend/pkg/config"
	"github.com/shopmesh-io/backend/pkg/errors"
	"github.com/shopmesh-io/backend/pkg/logger"
)

type fakeRedis struct {
	setNXResults []bool
	setNXErr     error
	setNXCalls   int
	setNXKeys    []string
	setNXTTLs    []time.Duration

	pexpireOK  bool
	pexpireErr error

	delErr  error
	delKeys []string
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.setNXKeys = append(f.setNXKeys, key)
	f.setNXTTLs = append(f.setNXTTLs, ttl)
	idx := f.setNXCalls
	f.setNXCalls++
	if f.setNXErr != nil {
		return false, f.setNXErr
	}
	if idx < len(f.setNXResults) {
		return f.setNXResults[idx], nil
	}
	return false, nil
}

func (f *fakeRedis) PExpire(context.Context, string, time.Duration) (bool, error) {
	return f.pexpireOK, f.pexpireErr
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.delKeys = append(f.delKeys, keys...)
	return f.delErr
}

func (f *fakeRedis) LockKey(scope, id string) string {
	return fmt.Sprintf("sm:lock:%s:%s", scope, id)
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

func newTestManager(t *testing.T, client redisClient, cfg config.LockConfig) *Manager {
	t.Helper()
	mgr, err := NewManager(client, cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	mgr.sleep = func(context.Context, time.Duration) error { return nil }
	return mgr
}

func TestAcquireProductFirstTry(t *testing.T) {
	client := &fakeRedis{setNXResults: []bool{true}}
	mgr := newTestManager(t, client, config.LockConfig{TTL: 3 * time.Second, Backoff: 50 * time.Millisecond, Attempts: 10})

	productID := uuid.New()
	lease, err := mgr.AcquireProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.Key != "sm:lock:product:"+productID.String() {
		t.Fatalf("unexpected lease key %q", lease.Key)
	}
	if lease.Token == "" {
		t.Fatal("expected a holder token")
	}
	if client.setNXCalls != 1 {
		t.Fatalf("expected 1 setnx call, got %d", client.setNXCalls)
	}
	if client.setNXTTLs[0] != 3*time.Second {
		t.Fatalf("unexpected ttl %v", client.setNXTTLs[0])
	}
}

func TestAcquireProductRetriesThenSucceeds(t *testing.T) {
	client := &fakeRedis{setNXResults: []bool{false, false, true}}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 5})

	if _, err := mgr.AcquireProduct(context.Background(), uuid.New()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if client.setNXCalls != 3 {
		t.Fatalf("expected 3 setnx calls, got %d", client.setNXCalls)
	}
}

func TestAcquireProductExhaustsBudget(t *testing.T) {
	client := &fakeRedis{}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 4})

	_, err := mgr.AcquireProduct(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected lock unavailable error")
	}
	typed := errors.As(err)
	if typed == nil || typed.Code() != errors.CodeLockUnavailable {
		t.Fatalf("expected %s, got %v", errors.CodeLockUnavailable, err)
	}
	if client.setNXCalls != 4 {
		t.Fatalf("expected 4 setnx calls, got %d", client.setNXCalls)
	}
}

func TestAcquireProductStopsOnCancelledContext(t *testing.T) {
	client := &fakeRedis{}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 10})
	mgr.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mgr.AcquireProduct(ctx, uuid.New())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if client.setNXCalls != 1 {
		t.Fatalf("expected 1 setnx call before cancellation, got %d", client.setNXCalls)
	}
}

func TestAcquireProductDependencyError(t *testing.T) {
	client := &fakeRedis{setNXErr: fmt.Errorf("connection refused")}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 3})

	_, err := mgr.AcquireProduct(context.Background(), uuid.New())
	typed := errors.As(err)
	if typed == nil || typed.Code() != errors.CodeDependency {
		t.Fatalf("expected %s, got %v", errors.CodeDependency, err)
	}
	if client.setNXCalls != 1 {
		t.Fatalf("dependency errors should not retry, got %d calls", client.setNXCalls)
	}
}

func TestReleaseDeletesKey(t *testing.T) {
	client := &fakeRedis{setNXResults: []bool{true}}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 1})

	lease, err := mgr.AcquireProduct(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := mgr.Release(context.Background(), lease); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(client.delKeys) != 1 || client.delKeys[0] != lease.Key {
		t.Fatalf("expected del on %q, got %v", lease.Key, client.delKeys)
	}
}

func TestReleaseNilLeaseIsNoop(t *testing.T) {
	client := &fakeRedis{}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 1})

	if err := mgr.Release(context.Background(), nil); err != nil {
		t.Fatalf("release nil lease: %v", err)
	}
	if len(client.delKeys) != 0 {
		t.Fatalf("expected no del calls, got %v", client.delKeys)
	}
}

func TestRefreshExpiredLease(t *testing.T) {
	client := &fakeRedis{pexpireOK: false}
	mgr := newTestManager(t, client, config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 1})

	err := mgr.Refresh(context.Background(), &Lease{Key: "sm:lock:product:x", Token: "t"})
	typed := errors.As(err)
	if typed == nil || typed.Code() != errors.CodeConflict {
		t.Fatalf("expected %s, got %v", errors.CodeConflict, err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	cfg := config.LockConfig{TTL: time.Second, Backoff: time.Millisecond, Attempts: 1}
	if _, err := NewManager(nil, cfg, testLogger(), nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewManager(&fakeRedis{}, cfg, nil, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
	if _, err := NewManager(&fakeRedis{}, config.LockConfig{TTL: 0, Attempts: 1}, testLogger(), nil); err == nil {
		t.Fatal("expected error for zero ttl")
	}
	if _, err := NewManager(&fakeRedis{}, config.LockConfig{TTL: time.Second, Attempts: 0}, testLogger(), nil); err == nil {
		t.Fatal("expected error for zero attempts")
	}
}
