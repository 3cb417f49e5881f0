package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/interfaces"
	"github.com/ternarybob/clavis/internal/models"
	"github.com/ternarybob/clavis/internal/storage"
)

type fakeHeads struct {
	sha   string
	err   error
	calls int64
}

func (f *fakeHeads) BranchHead(ctx context.Context, owner, repo, branch string) (string, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.sha, nil
}

type memPublisher struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemPublisher() *memPublisher {
	return &memPublisher{values: make(map[string]string)}
}

func (p *memPublisher) Get(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.values[key]
	if !ok {
		return "", interfaces.ErrKeyNotFound
	}
	return value, nil
}

func (p *memPublisher) GetJSON(ctx context.Context, key string, out any) error {
	value, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), out)
}

func (p *memPublisher) Set(ctx context.Context, key string, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
	return nil
}

func (p *memPublisher) SetJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.Set(ctx, key, string(data))
}

func (p *memPublisher) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.values[key]; !ok {
		return interfaces.ErrKeyNotFound
	}
	delete(p.values, key)
	return nil
}

func (p *memPublisher) List(ctx context.Context) ([]interfaces.KeyValuePair, error) {
	return p.ListByPrefix(ctx, "")
}

func (p *memPublisher) ListByPrefix(ctx context.Context, prefix string) ([]interfaces.KeyValuePair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pairs := make([]interfaces.KeyValuePair, 0, len(p.values))
	for key, value := range p.values {
		if strings.HasPrefix(key, prefix) {
			pairs = append(pairs, interfaces.KeyValuePair{Key: key, Value: value})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })
	return pairs, nil
}

func (p *memPublisher) DeleteAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = make(map[string]string)
	return nil
}

func testWatcherConfig() common.WatcherConfig {
	return common.WatcherConfig{
		Owner:           "qmk",
		Repo:            "qmk_firmware",
		Branch:          "master",
		Interval:        "10ms",
		RequestsPerHour: 60,
	}
}

func newTestService(pub interfaces.Publisher, heads HeadSource) *Service {
	service := NewService(testWatcherConfig(), pub, heads, nil)
	service.limiter = rate.NewLimiter(rate.Inf, 1)
	return service
}

func TestService_CheckOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("Raises the flag when nothing is published", func(t *testing.T) {
		pub := newMemPublisher()
		service := newTestService(pub, &fakeHeads{sha: "abc123"})

		require.NoError(t, service.CheckOnce(ctx))

		var flag bool
		require.NoError(t, pub.GetJSON(ctx, storage.KeyUpdateNeeded, &flag))
		assert.True(t, flag)
	})

	t.Run("Matching head leaves the flag alone", func(t *testing.T) {
		pub := newMemPublisher()
		require.NoError(t, pub.SetJSON(ctx, storage.KeyUpdateStamp, models.UpdateStamp{GitHash: "abc123"}))
		service := newTestService(pub, &fakeHeads{sha: "abc123"})

		require.NoError(t, service.CheckOnce(ctx))

		err := pub.GetJSON(ctx, storage.KeyUpdateNeeded, new(bool))
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	})

	t.Run("Moved head raises the flag", func(t *testing.T) {
		pub := newMemPublisher()
		require.NoError(t, pub.SetJSON(ctx, storage.KeyUpdateStamp, models.UpdateStamp{GitHash: "abc123"}))
		service := newTestService(pub, &fakeHeads{sha: "def456"})

		require.NoError(t, service.CheckOnce(ctx))

		var flag bool
		require.NoError(t, pub.GetJSON(ctx, storage.KeyUpdateNeeded, &flag))
		assert.True(t, flag)
	})

	t.Run("API failure leaves the flag alone", func(t *testing.T) {
		pub := newMemPublisher()
		service := newTestService(pub, &fakeHeads{err: errors.New("rate limited")})

		require.Error(t, service.CheckOnce(ctx))

		err := pub.GetJSON(ctx, storage.KeyUpdateNeeded, new(bool))
		assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	})
}

func TestService_StartStop(t *testing.T) {
	pub := newMemPublisher()
	heads := &fakeHeads{sha: "abc123"}
	service := newTestService(pub, heads)

	require.NoError(t, service.Start(context.Background()))

	err := service.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.Eventually(t, func() bool {
		var flag bool
		return pub.GetJSON(context.Background(), storage.KeyUpdateNeeded, &flag) == nil && flag
	}, 2*time.Second, 5*time.Millisecond, "poll loop never raised the flag")

	service.Stop()
	service.Stop() // stopping twice is a no-op

	calls := atomic.LoadInt64(&heads.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt64(&heads.calls), "poll loop kept running after Stop")
}
