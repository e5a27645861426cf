package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intentmesh/internal/domain"
	"intentmesh/internal/router"
)

const (
	HeaderRoutingKey = "X-Intentmesh-Routing-Key"
	HeaderEndpoint   = "X-Intentmesh-Endpoint"
)

type routedIntentOutput struct {
	RoutingKey string        `header:"X-Intentmesh-Routing-Key"`
	Endpoint   string        `header:"X-Intentmesh-Endpoint"`
	Body       domain.Intent `json:"body"`
}

type routeKeyPath struct {
	Key string `path:"key" doc:"Data center identifier, e.g. EC7"`
}

func registerRouting(api huma.API, r *router.Router, routes RouteCache) {
	huma.Register(api, huma.Operation{
		OperationID:   "route-intent",
		Method:        http.MethodPost,
		Path:          "/intent",
		Summary:       "Route intent",
		Description:   "Extracts the data center from the intent expression, resolves its backend and forwards the intent there.",
		Tags:          []string{"router"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateIntentRequest `json:"body"`
	}) (*routedIntentOutput, error) {
		res, err := r.CreateIntent(ctx, input.Body.intent())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &routedIntentOutput{RoutingKey: res.RoutingKey, Endpoint: res.Endpoint, Body: res.Intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-route",
		Method:      http.MethodGet,
		Path:        "/route/{key}",
		Summary:     "Resolve routing key",
		Tags:        []string{"router"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *routeKeyPath) (*struct {
		Body RouteResponse `json:"body"`
	}, error) {
		endpoint, err := routes.Resolve(ctx, input.Key)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body RouteResponse `json:"body"`
		}{Body: RouteResponse{RoutingKey: input.Key, Endpoint: endpoint}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "forget-route",
		Method:        http.MethodDelete,
		Path:          "/route/{key}",
		Summary:       "Forget cached routing key",
		Tags:          []string{"router"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *routeKeyPath) (*struct{}, error) {
		if err := routes.Invalidate(ctx, input.Key); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
