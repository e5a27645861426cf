package engine

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intentmesh/internal/config"
	"intentmesh/internal/deploy"
	"intentmesh/internal/domain"
	"intentmesh/internal/expression"
	"intentmesh/internal/logging"
	"intentmesh/internal/notify"
	"intentmesh/internal/reporting"
	"intentmesh/internal/repo"
	"intentmesh/internal/scheduler"
)

const (
	LifecycleActive = "active"
	LifecycleFailed = "failed"
)

// Observer starts and stops the background observation of intents.
type Observer interface {
	StartForIntent(intent domain.Intent) bool
	StopForIntent(intentID string) bool
	StopAll()
}

// Engine orchestrates the intent lifecycle of one backend domain.
type Engine struct {
	Intents       *repo.Intents
	Reports       *repo.Reports
	Subscriptions *repo.Subscriptions
	Reporting     *reporting.Service
	Observer      Observer
	Deployer      deploy.Deployer
	Config        *config.Config
	Logger        *zap.Logger
	Now           func() time.Time

	locks *idLocks
}

// New wires an engine with in-memory repositories. Observation runs only when
// enabled in cfg.
func New(cfg *config.Config, deployer deploy.Deployer, logger *zap.Logger) Engine {
	logger = logging.OrNop(logger)
	if deployer == nil {
		deployer = deploy.Noop{Logger: logger}
	}
	e := Engine{
		Intents:       repo.NewIntents(),
		Reports:       repo.NewReports(),
		Subscriptions: repo.NewSubscriptions(),
		Deployer:      deployer,
		Config:        cfg,
		Logger:        logger,
		Now:           time.Now,
		locks:         newIDLocks(),
	}
	e.Reporting = reporting.New(e.Reports, e.Subscriptions, notify.New(cfg.Notify.Timeout), reporting.Options{
		Handler:     cfg.Server.Name,
		Concurrency: cfg.Notify.Concurrency,
		Logger:      logger.Named("reporting"),
	})
	if cfg.Observation.Enabled {
		e.Observer = scheduler.New(e.Reporting, scheduler.NewSyntheticSource(0), cfg.ObservationInterval(), logger.Named("scheduler")).
			WithLookup(e.Intents)
	}
	return e
}

func (e Engine) now() string {
	if e.Now != nil {
		return e.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger { return logging.OrNop(e.Logger) }

// Close stops every observation task.
func (e Engine) Close() {
	if e.Observer != nil {
		e.Observer.StopAll()
	}
}

// IntentCreateOptions are parameters for creating an intent.
type IntentCreateOptions struct {
	ID          string
	Name        string
	Description string
	Expression  domain.IntentExpression
	Attributes  map[string]any
}

// target parses an expression. A syntax error is invalid input; an
// expression without a deployment part yields ok == false.
func (e Engine) target(expr string) (domain.Target, bool, error) {
	t, err := expression.Parser{Logger: e.logger()}.ExtractRoutingKey(expr)
	if domain.IsNotFound(err) {
		return domain.Target{}, false, nil
	}
	if err != nil {
		return domain.Target{}, false, err
	}
	return t, t.Descriptor != "", nil
}

// CreateIntent accepts an intent, places its workload and starts observing it.
func (e Engine) CreateIntent(ctx context.Context, opts IntentCreateOptions) (domain.Intent, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Intent{}, domain.Invalidf("name is required")
	}
	if strings.TrimSpace(opts.Expression.Value) == "" {
		return domain.Intent{}, domain.Invalidf("expression.expressionValue is required")
	}
	target, hasTarget, err := e.target(opts.Expression.Value)
	if err != nil {
		return domain.Intent{}, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Expression.Type == "" {
		opts.Expression.Type = domain.ExpressionTypeTurtle
	}
	defer e.locks.lock(opts.ID)()

	now := e.now()
	intent := domain.Intent{
		ID:              opts.ID,
		Name:            opts.Name,
		Description:     opts.Description,
		Expression:      opts.Expression,
		Attributes:      domain.CloneMap(opts.Attributes),
		LifecycleStatus: LifecycleActive,
		CreationDate:    now,
		LastUpdate:      now,
	}
	if err := e.Intents.Create(intent); err != nil {
		return domain.Intent{}, err
	}

	state, reason := domain.StateReceived, ""
	summary := "intent received"
	if hasTarget {
		if err := e.Deployer.Ensure(ctx, intent.ID, target); err != nil {
			e.logger().Warn("workload ensure failed", zap.String("intent", intent.ID), zap.Error(err))
			state, reason, summary = domain.StateFailed, domain.Reason(err), "workload deployment failed"
			intent.LifecycleStatus = LifecycleFailed
			e.Intents.Save(intent)
		} else {
			summary = "intent received, workload " + deploy.WorkloadName(intent.ID) + " ensured"
		}
	}
	if _, err := e.Reporting.RecordStateReport(ctx, intent, state, summary, reason); err != nil {
		return domain.Intent{}, err
	}
	e.Reporting.Publish(ctx, domain.EventIntentCreate, intent.ID, reporting.EventBody("intent", intent))
	if state != domain.StateFailed && e.Observer != nil {
		e.Observer.StartForIntent(intent)
	}
	e.logger().Info("intent created",
		zap.String("intent", intent.ID), zap.String("state", string(state)), zap.String("routing_key", target.RoutingKey))
	return intent, nil
}

func (e Engine) ListIntents(_ context.Context, offset, limit int) ([]domain.Intent, int, error) {
	items, total := e.Intents.List(offset, limit)
	return items, total, nil
}

func (e Engine) GetIntent(_ context.Context, id string) (domain.Intent, error) {
	intent, ok := e.Intents.Get(id)
	if !ok {
		return domain.Intent{}, domain.NotFound("intent", id)
	}
	return intent, nil
}

// IntentPatchOptions carries the fields to merge into an intent. Nil fields
// are left unchanged; attributes are merged key by key.
type IntentPatchOptions struct {
	ID          string
	Name        *string
	Description *string
	Expression  *domain.IntentExpression
	Attributes  map[string]any
}

// PatchIntent merges opts into the stored intent and replaces it.
func (e Engine) PatchIntent(ctx context.Context, opts IntentPatchOptions) (domain.Intent, error) {
	defer e.locks.lock(opts.ID)()

	current, ok := e.Intents.Get(opts.ID)
	if !ok {
		return domain.Intent{}, domain.NotFound("intent", opts.ID)
	}
	next := current.Clone()
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Intent{}, domain.Invalidf("name must not be empty")
		}
		next.Name = *opts.Name
	}
	if opts.Description != nil {
		next.Description = *opts.Description
	}
	exprChanged := false
	var target domain.Target
	var hasTarget bool
	if opts.Expression != nil {
		if strings.TrimSpace(opts.Expression.Value) == "" {
			return domain.Intent{}, domain.Invalidf("expression.expressionValue must not be empty")
		}
		var err error
		target, hasTarget, err = e.target(opts.Expression.Value)
		if err != nil {
			return domain.Intent{}, err
		}
		exprChanged = opts.Expression.Value != current.Expression.Value
		next.Expression.Value = opts.Expression.Value
		if opts.Expression.Type != "" {
			next.Expression.Type = opts.Expression.Type
		}
	}
	if len(opts.Attributes) > 0 {
		if next.Attributes == nil {
			next.Attributes = map[string]any{}
		}
		for k, v := range domain.CloneMap(opts.Attributes) {
			if v == nil {
				delete(next.Attributes, k)
				continue
			}
			next.Attributes[k] = v
		}
	}
	next.LastUpdate = e.now()

	// A failed intent has no workload; any patch retries the placement.
	retry := current.LifecycleStatus == LifecycleFailed
	state, reason, summary := domain.StateUpdated, "", "intent updated"
	if exprChanged || retry {
		prev, hadTarget, _ := e.target(current.Expression.Value)
		if opts.Expression == nil {
			target, hasTarget = prev, hadTarget
		}
		switch {
		case hasTarget && (retry || !hadTarget || prev.Descriptor != target.Descriptor || prev.Application != target.Application):
			if err := e.Deployer.Ensure(ctx, next.ID, target); err != nil {
				e.logger().Warn("workload ensure failed", zap.String("intent", next.ID), zap.Error(err))
				state, reason, summary = domain.StateFailed, domain.Reason(err), "workload redeployment failed"
			} else if retry {
				summary = "intent updated, workload " + deploy.WorkloadName(next.ID) + " ensured"
			}
		case !hasTarget && hadTarget && exprChanged:
			if err := e.Deployer.Remove(ctx, next.ID); err != nil {
				e.logger().Warn("workload remove failed", zap.String("intent", next.ID), zap.Error(err))
			}
		}
	}
	if state == domain.StateFailed {
		next.LifecycleStatus = LifecycleFailed
	} else {
		next.LifecycleStatus = LifecycleActive
	}
	e.Intents.Save(next)

	if _, err := e.Reporting.RecordStateReport(ctx, next, state, summary, reason); err != nil {
		return domain.Intent{}, err
	}
	e.Reporting.Publish(ctx, domain.EventIntentChange, next.ID, reporting.EventBody("intent", next))
	if e.Observer != nil {
		if exprChanged || state == domain.StateFailed {
			e.Observer.StopForIntent(next.ID)
		}
		if state != domain.StateFailed {
			e.Observer.StartForIntent(next)
		}
	}
	return next, nil
}

// DeleteIntent stops observing the intent, removes its workload and drops
// it with all of its reports. A missing intent changes nothing.
func (e Engine) DeleteIntent(ctx context.Context, id string) error {
	defer e.locks.lock(id)()

	intent, ok := e.Intents.Get(id)
	if !ok {
		return domain.NotFound("intent", id)
	}
	if e.Observer != nil && !e.Observer.StopForIntent(id) {
		e.logger().Warn("observation task still running after stop", zap.String("intent", id))
	}
	if err := e.Deployer.Remove(ctx, id); err != nil {
		e.logger().Warn("workload remove failed", zap.String("intent", id), zap.Error(err))
	}
	n := e.Reports.DeleteAll(id)
	if _, ok := e.Intents.Delete(id); !ok {
		return domain.NotFound("intent", id)
	}
	e.Reporting.Publish(ctx, domain.EventIntentDelete, id, reporting.EventBody("intent", intent))
	e.logger().Info("intent deleted", zap.String("intent", id), zap.Int("reports", n))
	return nil
}

func (e Engine) ListReports(_ context.Context, intentID string, offset, limit int) ([]domain.IntentReport, int, error) {
	if _, ok := e.Intents.Get(intentID); !ok {
		return nil, 0, domain.NotFound("intent", intentID)
	}
	items, total := e.Reports.List(intentID, offset, limit)
	return items, total, nil
}

func (e Engine) GetReport(_ context.Context, intentID, reportID string) (domain.IntentReport, error) {
	if _, ok := e.Intents.Get(intentID); !ok {
		return domain.IntentReport{}, domain.NotFound("intent", intentID)
	}
	rep, ok := e.Reports.Get(intentID, reportID)
	if !ok {
		return domain.IntentReport{}, domain.NotFound("intent report", reportID)
	}
	return rep, nil
}

func (e Engine) DeleteReport(ctx context.Context, intentID, reportID string) error {
	if _, ok := e.Intents.Get(intentID); !ok {
		return domain.NotFound("intent", intentID)
	}
	rep, ok := e.Reports.Delete(intentID, reportID)
	if !ok {
		return domain.NotFound("intent report", reportID)
	}
	e.Reporting.Publish(ctx, domain.EventReportDelete, intentID, reporting.EventBody("intentReport", rep))
	return nil
}

// SubscriptionCreateOptions are parameters for registering a hub listener.
type SubscriptionCreateOptions struct {
	Callback   string
	EventTypes []string
	Query      string
	Headers    map[string]string
}

// CreateSubscription registers a listener. No event types means all of them.
func (e Engine) CreateSubscription(_ context.Context, opts SubscriptionCreateOptions) (domain.HubSubscription, error) {
	u, err := url.Parse(strings.TrimSpace(opts.Callback))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.HubSubscription{}, domain.Invalidf("callback must be an absolute http(s) url")
	}
	types := make([]domain.EventType, 0, len(opts.EventTypes))
	seen := map[domain.EventType]bool{}
	for _, raw := range opts.EventTypes {
		et, ok := domain.ParseEventType(raw)
		if !ok {
			return domain.HubSubscription{}, domain.Invalidf("unknown event type %q", raw)
		}
		if !seen[et] {
			seen[et] = true
			types = append(types, et)
		}
	}
	if len(types) == 0 {
		types = append(types, domain.EventTypes...)
	}
	sub := domain.HubSubscription{
		ID:         uuid.NewString(),
		Callback:   u.String(),
		EventTypes: types,
		Query:      strings.TrimSpace(opts.Query),
		Headers:    domain.CloneStringMap(opts.Headers),
		CreatedAt:  e.now(),
	}
	e.Subscriptions.Save(sub)
	e.logger().Info("subscription created", zap.String("subscription", sub.ID), zap.String("callback", sub.Callback))
	return sub, nil
}

func (e Engine) ListSubscriptions(context.Context) ([]domain.HubSubscription, error) {
	return e.Subscriptions.List(), nil
}

func (e Engine) GetSubscription(_ context.Context, id string) (domain.HubSubscription, error) {
	sub, ok := e.Subscriptions.Get(id)
	if !ok {
		return domain.HubSubscription{}, domain.NotFound("subscription", id)
	}
	return sub, nil
}

func (e Engine) DeleteSubscription(_ context.Context, id string) error {
	if _, ok := e.Subscriptions.Delete(id); !ok {
		return domain.NotFound("subscription", id)
	}
	return nil
}

// IsClientError reports whether err is caused by the request rather than the
// backend.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalid) || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict)
}
