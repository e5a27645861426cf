package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"intentmesh/internal/config"
	"intentmesh/internal/domain"
	"intentmesh/internal/engine"
	"intentmesh/internal/logging"
	"intentmesh/internal/router"
)

const (
	DefaultBasePath = "/tmf-api/intentManagement/v5"
	// RouterMount prefixes the router API when both roles share one listener.
	RouterMount = "/router"
	apiVersion  = "0.3.0"
)

// RouteCache looks up and forgets routing keys for the router API.
type RouteCache interface {
	Resolve(ctx context.Context, routingKey string) (string, error)
	Invalidate(ctx context.Context, routingKey string) error
}

// Config for the HTTP API handler. Engine serves the backend role, Router and
// Routes serve the router role; role all needs both.
type Config struct {
	Role     string
	Name     string
	BasePath string
	Engine   *engine.Engine
	Router   *router.Router
	Routes   RouteCache
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiError struct {
	status  int
	Code    string         `json:"code" example:"not_found"`
	Reason  string         `json:"reason" example:"intent 'I1' not found"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Reason }

// New returns an HTTP handler exposing the APIs of the configured role.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimRight(basePath, "/")
	if cfg.Role == "" {
		cfg.Role = config.RoleBackend
	}
	logger := logging.OrNop(cfg.Logger)

	var backendPath, routerPath string
	switch cfg.Role {
	case config.RoleBackend:
		backendPath = basePath
	case config.RoleRouter:
		routerPath = basePath
	case config.RoleAll:
		backendPath, routerPath = basePath, path.Join(RouterMount, basePath)
	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}
	if backendPath != "" && cfg.Engine == nil {
		return nil, fmt.Errorf("role %s requires an engine", cfg.Role)
	}
	if routerPath != "" && (cfg.Router == nil || cfg.Routes == nil) {
		return nil, fmt.Errorf("role %s requires a router and a route cache", cfg.Role)
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	prefixes := []string{}
	for _, p := range []string{backendPath, routerPath} {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(newAuthMiddleware(prefixes, cfg.Auth, logger))
	mux.Use(accessLog(logger.Named("http")))

	hcfg := huma.DefaultConfig("intentmesh API", apiVersion)
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(mux, hcfg)

	if backendPath != "" {
		group := huma.NewGroup(api, backendPath)
		registerHealth(group, "health", HealthResponse{Status: "ok", Role: config.RoleBackend, Name: cfg.Name})
		registerIntents(group, *cfg.Engine)
		registerReports(group, *cfg.Engine)
		registerHub(group, *cfg.Engine)
	}
	if routerPath != "" {
		group := huma.NewGroup(api, routerPath)
		registerHealth(group, "router-health", HealthResponse{Status: "ok", Role: config.RoleRouter, Name: cfg.Name})
		registerRouting(group, cfg.Router, cfg.Routes)
	}
	registerDocs(mux, prefixes[0])
	for _, p := range prefixes {
		registerOpenAPI(mux, api, p, prefixes)
	}
	return mux, nil
}

func newAPIError(status int, code, reason string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{status: status, Code: code, Reason: reason, Details: details}
}

type failureKey struct{}

// failure carries the error behind a response back to the access log.
type failure struct{ err error }

// handleError maps domain error kinds onto HTTP statuses and hands err to the
// access log of the request.
func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if f, ok := ctx.Value(failureKey{}).(*failure); ok {
		f.err = err
	}
	reason := domain.Reason(err)
	switch {
	case domain.IsInvalid(err):
		return newAPIError(http.StatusBadRequest, "bad_request", reason, nil)
	case domain.IsNotFound(err):
		return newAPIError(http.StatusNotFound, "not_found", reason, nil)
	case domain.IsConflict(err):
		return newAPIError(http.StatusConflict, "conflict", reason, nil)
	case domain.IsUnavailable(err):
		return newAPIError(http.StatusServiceUnavailable, "service_unavailable", reason, map[string]any{"error": err.Error()})
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			f := &failure{}
			r = r.WithContext(context.WithValue(r.Context(), failureKey{}, f))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if p, ok := principalFromContext(r.Context()); ok {
				fields = append(fields, zap.String("subject", p.Subject), zap.Strings("roles", p.Roles))
			}
			if f.err != nil {
				fields = append(fields, zap.Error(f.err))
			}
			switch {
			case ww.Status() >= 500:
				logger.Error("request", fields...)
			case ww.Status() >= 400:
				logger.Info("request", fields...)
			default:
				logger.Debug("request", fields...)
			}
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string, guarded []string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, guarded)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	if oas.Components != nil && oas.Components.Schemas != nil {
		oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, prefixes []string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{}
	for _, p := range prefixes {
		open[path.Join(p, "health")] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>intentmesh API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; when the server runs with a JWT secret.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, id string, health HealthResponse) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: health}, nil
	})
}
