// Package app wires the components of one intentmesh process from its config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"intentmesh/internal/config"
	"intentmesh/internal/deploy"
	"intentmesh/internal/engine"
	"intentmesh/internal/graphdb"
	"intentmesh/internal/logging"
	"intentmesh/internal/resolver"
	"intentmesh/internal/router"
	"intentmesh/internal/server"
)

const redisPingTimeout = 3 * time.Second

// Components holds the services of one process. Engine is nil for a pure
// router, Resolver and Router are nil for a pure backend.
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Engine   *engine.Engine
	Resolver *resolver.Resolver
	Router   *router.Router

	redis *redis.Client
}

// Build creates the components needed by cfg.Server.Role.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	logger = logging.OrNop(logger)
	c := &Components{Config: cfg, Logger: logger}

	if cfg.Server.Role != config.RoleRouter {
		deployer, err := deploy.New(cfg.Deploy, logger.Named("deploy"))
		if err != nil {
			return nil, fmt.Errorf("deployer: %w", err)
		}
		e := engine.New(cfg, deployer, logger.Named("engine"))
		c.Engine = &e
	}
	if cfg.Server.Role != config.RoleBackend {
		cache, err := c.endpointCache(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Resolver = resolver.New(graphdb.New(cfg.GraphDB), cache, cfg.Resolver.APIURLTemplate, logger.Named("resolver"))
		backend := router.HTTPBackend{BearerToken: cfg.Router.BearerToken, Timeout: cfg.Router.Timeout}
		c.Router = router.New(c.Resolver, backend, cfg.Router.DefaultBackend, logger.Named("router"))
	}
	return c, nil
}

func (c *Components) endpointCache(ctx context.Context) (resolver.EndpointCache, error) {
	cc := c.Config.Resolver.Cache
	switch cc.Backend {
	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cc.RedisAddr})
		cache := resolver.NewRedisCache(rdb, cc.RedisPrefix, cc.TTL)
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := cache.Ping(pingCtx); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("endpoint cache: redis %s: %w", cc.RedisAddr, err)
		}
		c.redis = rdb
		return cache, nil
	default:
		return resolver.NewMemoryCache(cc.TTL), nil
	}
}

// Handler returns the HTTP API of the configured role.
func (c *Components) Handler() (http.Handler, error) {
	cfg := server.Config{
		Role:     c.Config.Server.Role,
		Name:     c.Config.Server.Name,
		BasePath: c.Config.Server.BasePath,
		Engine:   c.Engine,
		Router:   c.Router,
		Auth:     server.AuthConfig{JWTSecret: c.Config.Auth.JWTSecret},
		Logger:   c.Logger,
	}
	if c.Resolver != nil {
		cfg.Routes = c.Resolver
	}
	return server.New(cfg)
}

// Close stops observation and releases the endpoint cache connection.
func (c *Components) Close() error {
	var errs []error
	if c.Engine != nil {
		c.Engine.Close()
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
		c.redis = nil
	}
	return errors.Join(errs...)
}
