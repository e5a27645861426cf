package server

import (
	"intentmesh/internal/domain"
	"intentmesh/internal/engine"
)

// Request payloads

type CreateIntentRequest struct {
	ID          string                  `json:"id,omitempty" doc:"Optional client-chosen id"`
	Name        string                  `json:"name" minLength:"1"`
	Description string                  `json:"description,omitempty"`
	Expression  domain.IntentExpression `json:"expression"`
	Attributes  map[string]any          `json:"attributes,omitempty"`
}

type PatchIntentRequest struct {
	Name        *string                  `json:"name,omitempty"`
	Description *string                  `json:"description,omitempty"`
	Expression  *domain.IntentExpression `json:"expression,omitempty"`
	Attributes  map[string]any           `json:"attributes,omitempty" doc:"Merged key by key; null removes a key"`
}

type CreateSubscriptionRequest struct {
	Callback   string            `json:"callback" format:"uri" example:"http://listener.example/hook"`
	EventTypes []string          `json:"eventTypes,omitempty"`
	Query      string            `json:"query,omitempty" doc:"Substring matched against the intent id"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type ListQuery struct {
	Offset int `query:"offset" minimum:"0" default:"0"`
	Limit  int `query:"limit" minimum:"0" maximum:"1000" default:"100"`
}

// Response payloads

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Role   string `json:"role" example:"backend"`
	Name   string `json:"name,omitempty"`
}

type RouteResponse struct {
	RoutingKey string `json:"routingKey" example:"EC7"`
	Endpoint   string `json:"endpoint" example:"http://edge7.example.net/tmf-api/intentManagement/v5/"`
}

func (r CreateIntentRequest) options() engine.IntentCreateOptions {
	return engine.IntentCreateOptions{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Expression:  r.Expression,
		Attributes:  r.Attributes,
	}
}

func (r CreateIntentRequest) intent() domain.Intent {
	return domain.Intent{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Expression:  r.Expression,
		Attributes:  r.Attributes,
	}
}

func (r PatchIntentRequest) options(id string) engine.IntentPatchOptions {
	return engine.IntentPatchOptions{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Expression:  r.Expression,
		Attributes:  r.Attributes,
	}
}

func (r CreateSubscriptionRequest) options() engine.SubscriptionCreateOptions {
	return engine.SubscriptionCreateOptions{
		Callback:   r.Callback,
		EventTypes: r.EventTypes,
		Query:      r.Query,
		Headers:    r.Headers,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
