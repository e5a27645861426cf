package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intentmesh/internal/app"
	"intentmesh/internal/config"
)

func TestBuildBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Observation.Enabled = false
	c, err := app.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Engine)
	assert.Nil(t, c.Router)
	assert.Nil(t, c.Resolver)

	h, err := c.Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.Server.BasePath+"/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildAllWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Server.Role = config.RoleAll
	cfg.Observation.Enabled = false
	cfg.Resolver.Cache.Backend = config.CacheRedis
	cfg.Resolver.Cache.RedisAddr = mr.Addr()

	c, err := app.Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, c.Engine)
	assert.NotNil(t, c.Router)
	assert.NotNil(t, c.Resolver)

	h, err := c.Handler()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/router"+cfg.Server.BasePath+"/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, c.Close())
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Server.Role = config.RoleRouter
	cfg.Resolver.Cache.Backend = config.CacheRedis
	cfg.Resolver.Cache.RedisAddr = addr
	_, err := app.Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestBuildRejectsUnknownDeployer(t *testing.T) {
	cfg := config.Default()
	cfg.Deploy.Backend = "nomad"
	_, err := app.Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
