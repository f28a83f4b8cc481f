package orderlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockLocker) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

// memoryLocker is an in-process Locker used to exercise contention.
type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]string
	count int
}

func (l *memoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.count++
	token := key + "-token"
	l.held[key] = token
	return token, true, nil
}

func (l *memoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func TestGuardDisabledWithoutLocker(t *testing.T) {
	g := NewGuard(nil, Config{}, zap.NewNop())
	release, result := g.Acquire(context.Background(), "ORD1")
	require.NotNil(t, release)
	release()
	assert.Equal(t, ResultDisabled, result)
}

func TestGuardAcquireAndRelease(t *testing.T) {
	m := &mockLocker{}
	m.On("TryLock", mock.Anything, "payrecon:order:ORD1", 5*time.Second).Return("tok", true, nil).Once()
	m.On("Release", mock.Anything, "payrecon:order:ORD1", "tok").Return(nil).Once()

	g := NewGuard(m, Config{TTL: 5 * time.Second, Attempts: 3}, zap.NewNop())
	release, result := g.Acquire(context.Background(), "ORD1")
	assert.Equal(t, ResultAcquired, result)
	release()

	m.AssertExpectations(t)
}

func TestGuardProceedsWhenLockerFails(t *testing.T) {
	m := &mockLocker{}
	m.On("TryLock", mock.Anything, mock.Anything, mock.Anything).Return("", false, errors.New("dial tcp: refused")).Once()

	g := NewGuard(m, Config{Attempts: 5}, zap.NewNop())
	release, result := g.Acquire(context.Background(), "ORD1")
	release()

	assert.Equal(t, ResultUnavailable, result)
	m.AssertNumberOfCalls(t, "TryLock", 1)
}

func TestGuardGivesUpAfterBoundedAttempts(t *testing.T) {
	locker := &memoryLocker{}
	g := NewGuard(locker, Config{Attempts: 3, RetryDelay: time.Millisecond}, zap.NewNop())

	releaseFirst, first := g.Acquire(context.Background(), "ORD1")
	require.Equal(t, ResultAcquired, first)

	_, second := g.Acquire(context.Background(), "ORD1")
	assert.Equal(t, ResultContended, second)

	releaseFirst()
	releaseThird, third := g.Acquire(context.Background(), "ORD1")
	assert.Equal(t, ResultAcquired, third)
	releaseThird()
}

func TestNewRedisLockerNilClient(t *testing.T) {
	assert.Nil(t, NewRedisLocker(nil))

	var l *RedisLocker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.Error(t, err)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}
