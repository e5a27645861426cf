package resolver_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentmesh/internal/domain"
	"intentmesh/internal/resolver"
)

const template = "http://%s/tmf-api/intentManagement/v5/"

type fakeGraph struct {
	mu      sync.Mutex
	calls   []string
	QueryFn func(identifier string) ([]string, error)
}

func (f *fakeGraph) Query(_ context.Context, identifier string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, identifier)
	f.mu.Unlock()
	return f.QueryFn(identifier)
}

func (f *fakeGraph) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func table(entries map[string]string) func(string) ([]string, error) {
	return func(id string) ([]string, error) {
		if v, ok := entries[id]; ok {
			return []string{v}, nil
		}
		return nil, nil
	}
}

func TestCandidates(t *testing.T) {
	cases := map[string][]string{
		"EC7":    {"EC_7", "EC7"},
		"EC_7":   {"EC_7", "EC7"},
		"EC07":   {"EC_07", "EC07", "EC_7"},
		"dc_012": {"dc_012", "dc012", "dc_12"},
		"edge-a": {"edge-a"},
		"7":      {"7"},
	}
	for key, want := range cases {
		assert.Equal(t, want, resolver.Candidates(key), key)
	}
}

func TestResolveTriesSpellingsInOrder(t *testing.T) {
	graph := &fakeGraph{QueryFn: table(map[string]string{"EC7": "edge7.example.net"})}
	r := resolver.New(graph, resolver.NewMemoryCache(0), template, nil)

	base, err := r.Resolve(context.Background(), "EC7")
	require.NoError(t, err)
	assert.Equal(t, "http://edge7.example.net/tmf-api/intentManagement/v5/", base)
	assert.Equal(t, []string{"EC_7", "EC7"}, graph.Calls())
}

func TestResolveCachesUnderOriginalKey(t *testing.T) {
	graph := &fakeGraph{QueryFn: table(map[string]string{"EC_7": "https://edge7.example.net/api"})}
	cache := resolver.NewMemoryCache(0)
	r := resolver.New(graph, cache, template, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "EC7")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "EC7")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "https://edge7.example.net/api/", first)
	assert.Len(t, graph.Calls(), 1)

	_, ok, _ := cache.Get(ctx, "EC_7")
	assert.False(t, ok, "only the key as given is cached")
	_, ok, _ = cache.Get(ctx, "EC7")
	assert.True(t, ok)

	// A different spelling of the same data center is its own cache entry.
	_, err = r.Resolve(ctx, "EC_7")
	require.NoError(t, err)
	assert.Len(t, graph.Calls(), 2)
}

func TestResolveNotFoundVersusUnavailable(t *testing.T) {
	ctx := context.Background()

	empty := &fakeGraph{QueryFn: table(nil)}
	_, err := resolver.New(empty, nil, template, nil).Resolve(ctx, "EC9")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.False(t, domain.IsUnavailable(err))
	assert.Equal(t, []string{"EC_9", "EC9"}, empty.Calls())

	down := &fakeGraph{QueryFn: func(string) ([]string, error) {
		return nil, domain.Unavailable("graph store unreachable", errors.New("connection refused"))
	}}
	cache := resolver.NewMemoryCache(0)
	_, err = resolver.New(down, cache, template, nil).Resolve(ctx, "EC9")
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err))
	assert.False(t, domain.IsNotFound(err))
	assert.Len(t, down.Calls(), 1, "unavailable stops the candidate loop")
	assert.Equal(t, 0, cache.Len())
}

func TestResolveRejectsEmptyKey(t *testing.T) {
	graph := &fakeGraph{QueryFn: table(nil)}
	_, err := resolver.New(graph, nil, template, nil).Resolve(context.Background(), " ")
	assert.True(t, domain.IsInvalid(err))
	assert.Empty(t, graph.Calls())
}

func TestInvalidateAndPurge(t *testing.T) {
	graph := &fakeGraph{QueryFn: table(map[string]string{"EC_1": "a.example", "EC_2": "b.example"})}
	r := resolver.New(graph, nil, template, nil)
	ctx := context.Background()

	_, _ = r.Resolve(ctx, "EC1")
	_, _ = r.Resolve(ctx, "EC2")
	require.Len(t, graph.Calls(), 2)

	require.NoError(t, r.Invalidate(ctx, "EC1"))
	_, _ = r.Resolve(ctx, "EC1")
	_, _ = r.Resolve(ctx, "EC2")
	assert.Len(t, graph.Calls(), 3)

	require.NoError(t, r.Purge(ctx))
	_, _ = r.Resolve(ctx, "EC1")
	_, _ = r.Resolve(ctx, "EC2")
	assert.Len(t, graph.Calls(), 5)
}

func TestMemoryCacheTTL(t *testing.T) {
	cache := resolver.NewMemoryCache(time.Minute)
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "EC7", "http://a/"))
	v, ok, err := cache.Get(ctx, "EC7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://a/", v)

	expired := resolver.NewMemoryCache(time.Nanosecond)
	require.NoError(t, expired.Set(ctx, "EC7", "http://a/"))
	time.Sleep(time.Millisecond)
	_, ok, err = expired.Get(ctx, "EC7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveConcurrentSameKey(t *testing.T) {
	release := make(chan struct{})
	graph := &fakeGraph{QueryFn: func(id string) ([]string, error) {
		<-release
		return []string{"edge.example"}, nil
	}}
	r := resolver.New(graph, nil, template, nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve(context.Background(), "EC7")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	for _, v := range results {
		assert.Equal(t, "http://edge.example/tmf-api/intentManagement/v5/", v)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	cache := resolver.NewRedisCache(rdb, "intentmesh:endpoint:", time.Minute)
	require.NoError(t, cache.Ping(ctx))

	_, ok, err := cache.Get(ctx, "EC7")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "EC7", "http://edge7/"))
	require.NoError(t, cache.Set(ctx, "EC8", "http://edge8/"))
	assert.True(t, mr.Exists("intentmesh:endpoint:EC7"))
	v, ok, err := cache.Get(ctx, "EC7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "http://edge7/", v)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "EC7")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "EC7", "http://edge7/"))
	require.NoError(t, mr.Set("unrelated", "x"))
	require.NoError(t, cache.Purge(ctx))
	assert.False(t, mr.Exists("intentmesh:endpoint:EC7"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestResolveWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	graph := &fakeGraph{QueryFn: table(map[string]string{"EC_7": "edge7.example.net"})}
	shared := resolver.NewRedisCache(rdb, "im:", 0)
	a := resolver.New(graph, shared, template, nil)
	b := resolver.New(graph, shared, template, nil)

	ctx := context.Background()
	_, err := a.Resolve(ctx, "EC7")
	require.NoError(t, err)
	got, err := b.Resolve(ctx, "EC7")
	require.NoError(t, err)
	assert.Equal(t, "http://edge7.example.net/tmf-api/intentManagement/v5/", got)
	assert.Len(t, graph.Calls(), 1)
}
