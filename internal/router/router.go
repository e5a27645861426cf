// Package router forwards incoming intents to the backend domain named in
// their expression. It keeps no intent state.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"intentmesh/internal/domain"
	"intentmesh/internal/expression"
	"intentmesh/internal/logging"
	intentsdk "intentmesh/sdk/go"
)

// Resolver maps a routing key to a backend base URL.
type Resolver interface {
	Resolve(ctx context.Context, routingKey string) (string, error)
}

// Backend submits an intent to the backend at baseURL.
type Backend interface {
	CreateIntent(ctx context.Context, baseURL string, intent domain.Intent) (domain.Intent, error)
}

// HTTPBackend talks to backends through the intent API client.
type HTTPBackend struct {
	BearerToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

var _ Backend = HTTPBackend{}

func (b HTTPBackend) CreateIntent(ctx context.Context, baseURL string, intent domain.Intent) (domain.Intent, error) {
	c := intentsdk.New(baseURL)
	c.BearerToken = b.BearerToken
	c.HTTPClient = b.HTTPClient
	if b.Timeout > 0 {
		c.Timeout = b.Timeout
	}
	created, err := c.CreateIntent(ctx, intent)
	if err != nil {
		return domain.Intent{}, backendError(baseURL, err)
	}
	return created, nil
}

// backendError maps backend answers onto the local error kinds.
func backendError(baseURL string, err error) error {
	var apiErr *intentsdk.APIError
	if !errors.As(err, &apiErr) {
		return domain.Unavailable("backend "+baseURL+" unreachable", err)
	}
	reason := apiErr.Reason
	if reason == "" {
		reason = strings.TrimSpace(apiErr.Body)
	}
	switch {
	case apiErr.StatusCode == http.StatusConflict:
		return &domain.Error{Kind: domain.ErrConflict, Reason: reason, Err: err}
	case apiErr.StatusCode == http.StatusBadRequest, apiErr.StatusCode == http.StatusUnprocessableEntity:
		return &domain.Error{Kind: domain.ErrInvalid, Reason: reason, Err: err}
	case apiErr.StatusCode == http.StatusNotFound:
		return &domain.Error{Kind: domain.ErrNotFound, Reason: reason, Err: err}
	case apiErr.StatusCode >= 500:
		return domain.Unavailable("backend "+baseURL+" failed", err)
	default:
		return fmt.Errorf("backend %s rejected intent: %w", baseURL, err)
	}
}

// Result describes where an intent was placed.
type Result struct {
	Intent     domain.Intent
	RoutingKey string
	Endpoint   string
	Fallback   bool
}

type Router struct {
	parser         expression.Parser
	resolver       Resolver
	backend        Backend
	defaultBackend string
	logger         *zap.Logger
}

// New creates a router. defaultBackend receives intents without a routing
// key; leave it empty to reject them.
func New(resolver Resolver, backend Backend, defaultBackend string, logger *zap.Logger) *Router {
	logger = logging.OrNop(logger)
	if defaultBackend != "" && !strings.HasSuffix(defaultBackend, "/") {
		defaultBackend += "/"
	}
	return &Router{
		parser:         expression.Parser{Logger: logger},
		resolver:       resolver,
		backend:        backend,
		defaultBackend: defaultBackend,
		logger:         logger,
	}
}

// CreateIntent validates intent, resolves the backend from its expression and
// forwards it there. Nothing is forwarded when parsing or resolution fails.
func (r *Router) CreateIntent(ctx context.Context, intent domain.Intent) (Result, error) {
	if strings.TrimSpace(intent.Name) == "" {
		return Result{}, domain.Invalidf("name is required")
	}
	if strings.TrimSpace(intent.Expression.Value) == "" {
		return Result{}, domain.Invalidf("expression.expressionValue is required")
	}

	var res Result
	target, err := r.parser.ExtractRoutingKey(intent.Expression.Value)
	switch {
	case err == nil && target.RoutingKey != "":
		res.RoutingKey = target.RoutingKey
		res.Endpoint, err = r.resolver.Resolve(ctx, target.RoutingKey)
		if err != nil {
			return Result{}, err
		}
	case err == nil, domain.IsNotFound(err):
		if r.defaultBackend == "" {
			return Result{}, domain.Invalidf("intent expression names no data center and no default backend is configured")
		}
		res.Endpoint, res.Fallback = r.defaultBackend, true
	default:
		return Result{}, err
	}

	created, err := r.backend.CreateIntent(ctx, res.Endpoint, intent)
	if err != nil {
		r.logger.Warn("forward failed",
			zap.String("routing_key", res.RoutingKey), zap.String("endpoint", res.Endpoint), zap.Error(err))
		return Result{}, err
	}
	res.Intent = created
	r.logger.Info("intent routed",
		zap.String("intent", created.ID),
		zap.String("routing_key", res.RoutingKey),
		zap.String("endpoint", res.Endpoint),
		zap.Bool("fallback", res.Fallback))
	return res, nil
}
