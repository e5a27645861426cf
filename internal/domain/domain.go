package domain

import "strings"

type ReportType string

const (
	ReportTypeState       ReportType = "STATE"
	ReportTypeObservation ReportType = "OBSERVATION"
)

type HandlingState string

const (
	StateReceived     HandlingState = "received"
	StateCompliant    HandlingState = "compliant"
	StateDegraded     HandlingState = "degraded"
	StateNotCompliant HandlingState = "notCompliant"
	StateFailed       HandlingState = "failed"
	StateUpdated      HandlingState = "updated"
)

// Valid reports whether s is one of the known handling states.
func (s HandlingState) Valid() bool {
	switch s {
	case StateReceived, StateCompliant, StateDegraded, StateNotCompliant, StateFailed, StateUpdated:
		return true
	}
	return false
}

type EventType string

const (
	EventIntentCreate EventType = "INTENT_CREATE"
	EventIntentChange EventType = "INTENT_CHANGE"
	EventIntentDelete EventType = "INTENT_DELETE"
	EventReportCreate EventType = "REPORT_CREATE"
	EventReportDelete EventType = "REPORT_DELETE"
)

// EventTypes lists every event kind a subscription may ask for.
var EventTypes = []EventType{
	EventIntentCreate,
	EventIntentChange,
	EventIntentDelete,
	EventReportCreate,
	EventReportDelete,
}

// ParseEventType accepts an event kind case-insensitively.
func ParseEventType(s string) (EventType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, et := range EventTypes {
		if string(et) == s {
			return et, true
		}
	}
	return "", false
}

const ExpressionTypeTurtle = "TurtleExpression"

type IntentExpression struct {
	Type  string `json:"@type,omitempty" example:"TurtleExpression"`
	Value string `json:"expressionValue"`
}

type Intent struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Expression      IntentExpression `json:"expression"`
	Attributes      map[string]any   `json:"attributes,omitempty"`
	LifecycleStatus string           `json:"lifecycleStatus,omitempty"`
	CreationDate    string           `json:"creationDate,omitempty" format:"date-time"`
	LastUpdate      string           `json:"lastUpdate,omitempty" format:"date-time"`
}

// Clone returns a copy of i that shares no mutable state with it.
func (i Intent) Clone() Intent {
	i.Attributes = CloneMap(i.Attributes)
	return i
}

type ObservationMetric struct {
	Name   string            `json:"name"`
	Value  float64           `json:"value"`
	Unit   string            `json:"unit,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

type IntentReport struct {
	ID            string              `json:"id"`
	IntentID      string              `json:"intentId"`
	ReportNumber  int                 `json:"reportNumber"`
	ReportType    ReportType          `json:"reportType" enum:"STATE,OBSERVATION"`
	GeneratedAt   string              `json:"generatedAt" format:"date-time"`
	HandlingState HandlingState       `json:"handlingState,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Handler       string              `json:"handler,omitempty"`
	Owner         string              `json:"owner,omitempty"`
	Summary       string              `json:"summary,omitempty"`
	Metrics       []ObservationMetric `json:"metrics,omitempty"`
	Details       map[string]any      `json:"details,omitempty"`
}

func (r IntentReport) Clone() IntentReport {
	if r.Metrics != nil {
		metrics := make([]ObservationMetric, len(r.Metrics))
		for i, m := range r.Metrics {
			m.Labels = CloneStringMap(m.Labels)
			metrics[i] = m
		}
		r.Metrics = metrics
	}
	r.Details = CloneMap(r.Details)
	return r
}

type HubSubscription struct {
	ID         string            `json:"id"`
	Callback   string            `json:"callback"`
	EventTypes []EventType       `json:"eventTypes"`
	Query      string            `json:"query,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	CreatedAt  string            `json:"createdAt" format:"date-time"`
}

func (s HubSubscription) Clone() HubSubscription {
	if s.EventTypes != nil {
		s.EventTypes = append([]EventType(nil), s.EventTypes...)
	}
	s.Headers = CloneStringMap(s.Headers)
	return s
}

// Matches reports whether an event of the given type about intentID should be
// delivered to s. An empty query matches every intent.
func (s HubSubscription) Matches(eventType EventType, intentID string) bool {
	for _, et := range s.EventTypes {
		if et != eventType {
			continue
		}
		return s.Query == "" || strings.Contains(intentID, s.Query)
	}
	return false
}

// Event is the notification body posted to subscriber callbacks.
type Event struct {
	EventID       string         `json:"eventId"`
	EventType     EventType      `json:"eventType"`
	EventTime     string         `json:"eventTime" format:"date-time"`
	Event         map[string]any `json:"event"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Domain        string         `json:"domain,omitempty"`
	Title         string         `json:"title,omitempty"`
	Description   string         `json:"description,omitempty"`
	Priority      string         `json:"priority,omitempty"`
}

// Condition is one quantified comparison found in an intent expression.
type Condition struct {
	Property string  `json:"property"`
	Operator string  `json:"operator" enum:"smaller,larger,inRange"`
	Value    float64 `json:"value"`
	Upper    float64 `json:"upper,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// Target is the deployment part of an intent: where it runs and what runs.
type Target struct {
	RoutingKey  string      `json:"routingKey"`
	Descriptor  string      `json:"descriptor"`
	Application string      `json:"application,omitempty"`
	Expectation string      `json:"expectation,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
}
