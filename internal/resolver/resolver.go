// Package resolver maps routing keys found in intent expressions to the base
// URL of the backend domain that handles them.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"intentmesh/internal/domain"
	"intentmesh/internal/logging"
)

// Querier returns the domain values registered for one data center identifier.
type Querier interface {
	Query(ctx context.Context, identifier string) ([]string, error)
}

type Resolver struct {
	graph    Querier
	cache    EndpointCache
	template string
	logger   *zap.Logger
	group    singleflight.Group
}

// New creates a resolver. template wraps bare domains and must contain one %s.
func New(graph Querier, cache EndpointCache, template string, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Resolver{
		graph:    graph,
		cache:    cache,
		template: template,
		logger:   logging.OrNop(logger),
	}
}

// Resolve returns the base URL for routingKey, always ending in '/'.
//
// Spelling variants are tried in Candidates order until the graph store
// returns a value. An unavailable graph store aborts the lookup immediately;
// exhausting every variant is domain.ErrNotFound. Successful lookups are
// cached under routingKey as given.
func (r *Resolver) Resolve(ctx context.Context, routingKey string) (string, error) {
	if strings.TrimSpace(routingKey) == "" {
		return "", domain.Invalidf("routing key is empty")
	}
	if base, ok, err := r.cache.Get(ctx, routingKey); err != nil {
		r.logger.Warn("endpoint cache read failed", zap.String("key", routingKey), zap.Error(err))
	} else if ok {
		return base, nil
	}

	v, err, _ := r.group.Do(routingKey, func() (any, error) {
		return r.lookup(ctx, routingKey)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) lookup(ctx context.Context, routingKey string) (string, error) {
	for _, candidate := range Candidates(routingKey) {
		values, err := r.graph.Query(ctx, candidate)
		if err != nil {
			r.logger.Warn("graph store lookup failed",
				zap.String("key", routingKey), zap.String("candidate", candidate), zap.Error(err))
			return "", err
		}
		if len(values) == 0 {
			r.logger.Debug("no domain for candidate", zap.String("candidate", candidate))
			continue
		}
		base := r.Normalize(values[0])
		if err := r.cache.Set(ctx, routingKey, base); err != nil {
			r.logger.Warn("endpoint cache write failed", zap.String("key", routingKey), zap.Error(err))
		}
		r.logger.Info("resolved routing key",
			zap.String("key", routingKey), zap.String("candidate", candidate), zap.String("endpoint", base))
		return base, nil
	}
	return "", domain.NotFound("domain for data center", routingKey)
}

// Invalidate drops the cached endpoint of routingKey.
func (r *Resolver) Invalidate(ctx context.Context, routingKey string) error {
	return r.cache.Delete(ctx, routingKey)
}

// Purge drops every cached endpoint.
func (r *Resolver) Purge(ctx context.Context) error {
	return r.cache.Purge(ctx)
}

// Normalize turns a graph store domain value into a base URL. Absolute http(s)
// URLs are kept, anything else is treated as a host and wrapped by the
// configured template.
func (r *Resolver) Normalize(value string) string {
	value = strings.TrimSpace(value)
	lower := strings.ToLower(value)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		value = fmt.Sprintf(r.template, strings.Trim(value, "/"))
	}
	if !strings.HasSuffix(value, "/") {
		value += "/"
	}
	return value
}

var keyPattern = regexp.MustCompile(`^([A-Za-z]+)_?(\d+)$`)

// Candidates returns the spellings tried for a routing key: PREFIX_N,
// PREFIXN and PREFIX_int(N), without duplicates. Keys that are not letters
// followed by digits are tried as written.
func Candidates(key string) []string {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return []string{key}
	}
	prefix, digits := m[1], m[2]
	out := []string{prefix + "_" + digits, prefix + digits}
	if n, err := strconv.ParseUint(digits, 10, 64); err == nil {
		out = append(out, prefix+"_"+strconv.FormatUint(n, 10))
	}
	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, c := range out {
		if !seen[c] {
			seen[c] = true
			uniq = append(uniq, c)
		}
	}
	return uniq
}
