package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"intentmesh/internal/domain"
	"intentmesh/internal/engine"
)

type intentPath struct {
	ID string `path:"id"`
}

type reportPath struct {
	ID       string `path:"id"`
	ReportID string `path:"reportId"`
}

type reportListInput struct {
	ID     string `path:"id"`
	Offset int    `query:"offset" minimum:"0" default:"0"`
	Limit  int    `query:"limit" minimum:"0" maximum:"1000" default:"100"`
}

type intentOutput struct {
	Body domain.Intent `json:"body"`
}

func registerIntents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-intent",
		Method:        http.MethodPost,
		Path:          "/intent",
		Summary:       "Create intent",
		Tags:          []string{"intent"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateIntentRequest `json:"body"`
	}) (*intentOutput, error) {
		intent, err := e.CreateIntent(ctx, input.Body.options())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &intentOutput{Body: intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-intents",
		Method:      http.MethodGet,
		Path:        "/intent",
		Summary:     "List intents",
		Tags:        []string{"intent"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *ListQuery) (*struct {
		TotalCount string          `header:"X-Total-Count"`
		Body       []domain.Intent `json:"body"`
	}, error) {
		items, total, err := e.ListIntents(ctx, input.Offset, input.Limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			TotalCount string          `header:"X-Total-Count"`
			Body       []domain.Intent `json:"body"`
		}{TotalCount: strconv.Itoa(total), Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-intent",
		Method:      http.MethodGet,
		Path:        "/intent/{id}",
		Summary:     "Get intent",
		Tags:        []string{"intent"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *intentPath) (*intentOutput, error) {
		intent, err := e.GetIntent(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &intentOutput{Body: intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "patch-intent",
		Method:      http.MethodPatch,
		Path:        "/intent/{id}",
		Summary:     "Update intent",
		Description: "Merges the given fields into the intent. A changed expression restarts observation.",
		Tags:        []string{"intent"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body PatchIntentRequest `json:"body"`
	}) (*intentOutput, error) {
		intent, err := e.PatchIntent(ctx, input.Body.options(input.ID))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &intentOutput{Body: intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-intent",
		Method:        http.MethodDelete,
		Path:          "/intent/{id}",
		Summary:       "Delete intent",
		Description:   "Stops observation, removes the workload and drops every report of the intent.",
		Tags:          []string{"intent"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *intentPath) (*struct{}, error) {
		if err := e.DeleteIntent(ctx, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-intent-reports",
		Method:      http.MethodGet,
		Path:        "/intent/{id}/intentReport",
		Summary:     "List intent reports",
		Tags:        []string{"intentReport"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportListInput) (*struct {
		TotalCount string                `header:"X-Total-Count"`
		Body       []domain.IntentReport `json:"body"`
	}, error) {
		items, total, err := e.ListReports(ctx, input.ID, input.Offset, input.Limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			TotalCount string                `header:"X-Total-Count"`
			Body       []domain.IntentReport `json:"body"`
		}{TotalCount: strconv.Itoa(total), Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-intent-report",
		Method:      http.MethodGet,
		Path:        "/intent/{id}/intentReport/{reportId}",
		Summary:     "Get intent report",
		Tags:        []string{"intentReport"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*struct {
		Body domain.IntentReport `json:"body"`
	}, error) {
		report, err := e.GetReport(ctx, input.ID, input.ReportID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body domain.IntentReport `json:"body"`
		}{Body: report}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-intent-report",
		Method:        http.MethodDelete,
		Path:          "/intent/{id}/intentReport/{reportId}",
		Summary:       "Delete intent report",
		Tags:          []string{"intentReport"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *reportPath) (*struct{}, error) {
		if err := e.DeleteReport(ctx, input.ID, input.ReportID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

func registerHub(api huma.API, e engine.Engine) {
	type hubPath struct {
		ID string `path:"id"`
	}
	type hubOutput struct {
		Body domain.HubSubscription `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID:   "create-hub",
		Method:        http.MethodPost,
		Path:          "/hub",
		Summary:       "Register event listener",
		Tags:          []string{"hub"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateSubscriptionRequest `json:"body"`
	}) (*hubOutput, error) {
		sub, err := e.CreateSubscription(ctx, input.Body.options())
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &hubOutput{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-hub",
		Method:      http.MethodGet,
		Path:        "/hub",
		Summary:     "List event listeners",
		Tags:        []string{"hub"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.HubSubscription `json:"body"`
	}, error) {
		subs, err := e.ListSubscriptions(ctx)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct {
			Body []domain.HubSubscription `json:"body"`
		}{Body: nonNilSlice(subs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-hub",
		Method:      http.MethodGet,
		Path:        "/hub/{id}",
		Summary:     "Get event listener",
		Tags:        []string{"hub"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *hubPath) (*hubOutput, error) {
		sub, err := e.GetSubscription(ctx, input.ID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &hubOutput{Body: sub}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-hub",
		Method:        http.MethodDelete,
		Path:          "/hub/{id}",
		Summary:       "Unregister event listener",
		Tags:          []string{"hub"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *hubPath) (*struct{}, error) {
		if err := e.DeleteSubscription(ctx, input.ID); err != nil {
			return nil, handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}
