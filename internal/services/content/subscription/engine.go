package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	platformotel "github.com/louisbranch/contentstream/internal/platform/otel"
	"github.com/louisbranch/contentstream/internal/platform/pagination"
	"github.com/louisbranch/contentstream/internal/platform/telemetry/metrics"
	"github.com/louisbranch/contentstream/internal/platform/timeouts"
	"github.com/louisbranch/contentstream/internal/services/content/storage"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrSubscriptionStoreRequired indicates a missing subscription store.
	ErrSubscriptionStoreRequired = errors.New("subscription store is required")
	// ErrProjectionRequired indicates a nil projection.
	ErrProjectionRequired = errors.New("projection is required")
)

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	// Retry defaults to NoRetry.
	Retry    RetryStrategy
	Logger   *zerolog.Logger
	Metrics  *metrics.Subscription
	Now      func() time.Time
	PageSize int
}

// Engine runs registered projections forward.
type Engine struct {
	events   storage.EventStore
	records  storage.SubscriptionStore
	retry    RetryStrategy
	logger   zerolog.Logger
	metrics  *metrics.Subscription
	now      func() time.Time
	pageSize int

	mu          sync.RWMutex
	projections map[string]Projection
	locks       map[string]*sync.Mutex

	flight singleflight.Group
	notify chan struct{}
}

// New builds an engine over the event log and subscription bookkeeping.
func New(events storage.EventStore, records storage.SubscriptionStore, opts Options) (*Engine, error) {
	if events == nil {
		return nil, ErrEventStoreRequired
	}
	if records == nil {
		return nil, ErrSubscriptionStoreRequired
	}
	e := &Engine{
		events:      events,
		records:     records,
		retry:       opts.Retry,
		logger:      zerolog.Nop(),
		metrics:     opts.Metrics,
		now:         opts.Now,
		pageSize:    opts.PageSize,
		projections: make(map[string]Projection),
		locks:       make(map[string]*sync.Mutex),
		notify:      make(chan struct{}, 1),
	}
	if e.retry == nil {
		e.retry = NoRetry{}
	}
	if opts.Logger != nil {
		e.logger = opts.Logger.With().Str("component", "subscription").Logger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.pageSize = pagination.ClampPageSize(e.pageSize, pagination.PageSizeConfig{
		Default: defaultPageSize,
		Max:     storage.ReadPageSize.Max,
	})
	return e, nil
}

// Register adds a projection under id and creates its bookkeeping record when
// missing. An existing record keeps its status.
func (e *Engine) Register(ctx context.Context, id string, projection Projection) error {
	id, err := ParseID(id)
	if err != nil {
		return err
	}
	if projection == nil {
		return ErrProjectionRequired
	}

	e.mu.Lock()
	if _, exists := e.projections[id]; exists {
		e.mu.Unlock()
		return apperrors.WrapWithMetadata(apperrors.CodeSubscriptionAlreadyExists,
			"subscription already registered", map[string]string{"id": id}, ErrAlreadyRegistered)
	}
	e.projections[id] = projection
	e.locks[id] = &sync.Mutex{}
	e.mu.Unlock()

	rec, err := e.records.GetSubscription(ctx, id)
	switch {
	case err == nil:
		e.metrics.ObserveStatus(id, rec.Status)
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		e.unregister(id)
		return fmt.Errorf("load subscription %s: %w", id, err)
	}

	checkpoint, err := projection.CurrentCheckpoint(ctx)
	if err != nil {
		e.unregister(id)
		return fmt.Errorf("read checkpoint of %s: %w", id, err)
	}
	sub := Subscription{ID: id, Position: checkpoint, Status: StatusActive, LastSavedAt: e.now().UTC()}
	if err := e.records.PutSubscription(ctx, sub.record()); err != nil {
		e.unregister(id)
		return fmt.Errorf("save subscription %s: %w", id, err)
	}
	e.metrics.ObserveStatus(id, string(StatusActive))
	e.logger.Info().Str("subscription", id).Int64("position", checkpoint).Msg("subscription registered")
	return nil
}

func (e *Engine) unregister(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.projections, id)
	delete(e.locks, id)
}

// IDs returns the registered subscription ids in order.
func (e *Engine) IDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.projections))
	for id := range e.projections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) lookup(id string) (Projection, *sync.Mutex, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	projection, ok := e.projections[id]
	if !ok {
		return nil, nil, apperrors.WrapWithMetadata(apperrors.CodeSubscriptionNotFound,
			"subscription not found", map[string]string{"id": id}, ErrNotFound)
	}
	return projection, e.locks[id], nil
}

// Get returns the bookkeeping of a registered subscription.
func (e *Engine) Get(ctx context.Context, id string) (Subscription, error) {
	if _, _, err := e.lookup(id); err != nil {
		return Subscription{}, err
	}
	rec, err := e.records.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("load subscription %s: %w", id, err)
	}
	return fromRecord(rec), nil
}

// List returns every persisted subscription ordered by id, including records
// whose projection is not registered in this process.
func (e *Engine) List(ctx context.Context) ([]Subscription, error) {
	recs, err := e.records.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	out := make([]Subscription, len(recs))
	for i, rec := range recs {
		out[i] = fromRecord(rec)
	}
	return out, nil
}

// CatchUp runs one pass of subscription id. Overlapping calls for the same id
// share the pass started first and receive its result.
func (e *Engine) CatchUp(ctx context.Context, id string) (Result, error) {
	projection, lock, err := e.lookup(id)
	if err != nil {
		return Result{}, err
	}
	v, err, _ := e.flight.Do(id, func() (any, error) {
		lock.Lock()
		defer lock.Unlock()
		return e.catchUp(ctx, id, projection)
	})
	result, _ := v.(Result)
	return result, err
}

func (e *Engine) catchUp(ctx context.Context, id string, projection Projection) (result Result, err error) {
	ctx, span := platformotel.Tracer().Start(ctx, "subscription.catch_up")
	span.SetAttributes(attribute.String("subscription.id", id))
	started := e.now()
	defer func() {
		e.metrics.ObserveDuration(id, e.now().Sub(started))
		span.SetAttributes(attribute.Int("subscription.applied", result.Applied))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	rec, err := e.records.GetSubscription(ctx, id)
	if err != nil {
		return Result{ID: id}, fmt.Errorf("load subscription %s: %w", id, err)
	}
	sub := fromRecord(rec)
	result = Result{ID: id, Position: sub.Position, Status: sub.Status}

	switch sub.Status {
	case StatusFailed:
		return result, apperrors.WrapWithMetadata(apperrors.CodeSubscriptionFailed,
			"subscription failed: "+sub.LastError, map[string]string{"id": id}, ErrFailed)
	case StatusRetrying:
		if !e.retry.ShouldRetry(sub.RetryAttempt, sub.LastSavedAt, e.now()) {
			result.Deferred = true
			return result, nil
		}
	}

	position := sub.Position
	failed := func(cause error) (Result, error) {
		sub.Position = position
		if interrupted(ctx, cause) {
			result.Interrupted = true
			return result, e.pause(ctx, sub, cause)
		}
		err := e.fail(ctx, &sub, cause)
		result.Status = sub.Status
		return result, err
	}

	position, err = projection.CurrentCheckpoint(ctx)
	if err != nil {
		position = sub.Position
		return failed(fmt.Errorf("read checkpoint: %w", err))
	}

	for {
		events, err := e.events.ReadAll(ctx, storage.ReadAllRequest{AfterSeq: position, Limit: e.pageSize})
		if err != nil {
			return failed(fmt.Errorf("read events after %d: %w", position, err))
		}
		if len(events) == 0 {
			break
		}
		for _, evt := range events {
			if evt.Seq != position+1 {
				return failed(apperrors.WrapWithMetadata(apperrors.CodeSubscriptionSequenceGap,
					fmt.Sprintf("event sequence gap: expected %d got %d", position+1, evt.Seq),
					map[string]string{"expected": fmt.Sprint(position + 1), "got": fmt.Sprint(evt.Seq)},
					ErrSequenceGap))
			}
			if err := projection.ApplyEvent(ctx, evt); err != nil {
				return failed(fmt.Errorf("apply event %d (%s): %w", evt.Seq, evt.Type, err))
			}
			position = evt.Seq
			result.Applied++
			result.Position = position
		}
		if len(events) < e.pageSize {
			break
		}
	}

	recovered := sub.Status != StatusActive
	sub.Position = position
	sub.Status = StatusActive
	sub.RetryAttempt = 0
	sub.LastError = ""
	sub.LastSavedAt = e.now().UTC()
	if err := e.records.PutSubscription(ctx, sub.record()); err != nil {
		return result, fmt.Errorf("save subscription %s: %w", id, err)
	}
	result.Status = StatusActive
	e.metrics.ObserveApplied(id, result.Applied, position)
	e.metrics.ObserveStatus(id, string(StatusActive))
	if recovered {
		e.logger.Info().Str("subscription", id).Int64("position", position).Msg("subscription recovered")
	}
	if result.Applied > 0 {
		e.logger.Debug().Str("subscription", id).Int("applied", result.Applied).Int64("position", position).Msg("caught up")
	}
	return result, nil
}

// interrupted reports whether cause stems from the pass's context ending
// rather than from the projection or the log.
func interrupted(ctx context.Context, cause error) bool {
	return ctx.Err() != nil || errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded)
}

// pause saves the progress of an interrupted pass. Status, retry attempt and
// LastSavedAt are kept: an interruption is not an attempt.
func (e *Engine) pause(ctx context.Context, sub Subscription, cause error) error {
	e.logger.Debug().Err(cause).
		Str("subscription", sub.ID).
		Int64("position", sub.Position).
		Msg("catch-up interrupted")
	if err := e.records.PutSubscription(context.WithoutCancel(ctx), sub.record()); err != nil {
		return errors.Join(cause, fmt.Errorf("save subscription %s: %w", sub.ID, err))
	}
	return cause
}

// fail records cause on sub and returns it. The projection checkpoint is left
// where the last successful apply put it.
func (e *Engine) fail(ctx context.Context, sub *Subscription, cause error) error {
	next := 0
	if sub.Status == StatusRetrying {
		next = sub.RetryAttempt + 1
	}
	sub.Status = StatusRetrying
	sub.RetryAttempt = next
	if e.retry.Exhausted(next) {
		sub.Status = StatusFailed
	}
	sub.LastError = cause.Error()
	sub.LastSavedAt = e.now().UTC()

	e.metrics.ObserveFailure(sub.ID)
	e.metrics.ObserveStatus(sub.ID, string(sub.Status))
	logEvent := e.logger.Warn()
	if sub.Status == StatusFailed {
		logEvent = e.logger.Error()
	}
	logEvent.Err(cause).
		Str("subscription", sub.ID).
		Str("status", string(sub.Status)).
		Int("retry_attempt", sub.RetryAttempt).
		Int64("position", sub.Position).
		Msg("catch-up failed")

	if err := e.records.PutSubscription(context.WithoutCancel(ctx), sub.record()); err != nil {
		return errors.Join(cause, fmt.Errorf("save subscription %s: %w", sub.ID, err))
	}
	return cause
}

// CatchUpAll runs a pass for every registered subscription concurrently.
// Failed subscriptions are skipped; one subscription's error or backoff never
// holds back the others. The returned error joins every pass error.
func (e *Engine) CatchUpAll(ctx context.Context) ([]Result, error) {
	ids := e.IDs()
	results := make([]Result, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			rec, err := e.records.GetSubscription(ctx, id)
			if err != nil {
				errs[i] = fmt.Errorf("load subscription %s: %w", id, err)
				return nil
			}
			if Status(rec.Status) == StatusFailed {
				results[i] = Result{ID: id, Position: rec.Position, Status: StatusFailed}
				return nil
			}
			results[i], errs[i] = e.CatchUp(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Notify requests a pass from Run without blocking. Calls made while a
// request is pending collapse into it.
func (e *Engine) Notify() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Run catches up every subscription on each tick of interval and after every
// Notify until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runPass(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runPass(ctx)
		case <-e.notify:
			e.runPass(ctx)
		}
	}
}

func (e *Engine) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, timeouts.CatchUpPass)
	defer cancel()
	results, err := e.CatchUpAll(passCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.logger.Debug().Err(err).Msg("catch-up pass finished with errors")
	}
	for _, r := range results {
		if r.Interrupted {
			// The pass deadline cut a replay short; continue from its checkpoint.
			e.Notify()
			return
		}
	}
}

// Reactivate returns a retrying or failed subscription to active with a fresh
// retry budget. The checkpoint is untouched.
func (e *Engine) Reactivate(ctx context.Context, id string) (Subscription, error) {
	_, lock, err := e.lookup(id)
	if err != nil {
		return Subscription{}, err
	}
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.records.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, fmt.Errorf("load subscription %s: %w", id, err)
	}
	sub := fromRecord(rec)
	previous := sub.Status
	sub.Status = StatusActive
	sub.RetryAttempt = 0
	sub.LastError = ""
	sub.LastSavedAt = e.now().UTC()
	if err := e.records.PutSubscription(ctx, sub.record()); err != nil {
		return Subscription{}, fmt.Errorf("save subscription %s: %w", id, err)
	}
	e.metrics.ObserveStatus(id, string(StatusActive))
	e.logger.Info().Str("subscription", id).Str("previous_status", string(previous)).Msg("subscription reactivated")
	e.Notify()
	return sub, nil
}

// Reset rebuilds a projection from the start of the log. The projection must
// implement Resetter.
func (e *Engine) Reset(ctx context.Context, id string) (Subscription, error) {
	projection, lock, err := e.lookup(id)
	if err != nil {
		return Subscription{}, err
	}
	resetter, ok := projection.(Resetter)
	if !ok {
		return Subscription{}, apperrors.WrapWithMetadata(apperrors.CodeSubscriptionResetUnsupported,
			"projection does not support reset", map[string]string{"id": id}, ErrResetUnsupported)
	}
	lock.Lock()
	defer lock.Unlock()

	if err := resetter.Reset(ctx); err != nil {
		return Subscription{}, fmt.Errorf("reset projection %s: %w", id, err)
	}
	sub := Subscription{ID: id, Status: StatusActive, LastSavedAt: e.now().UTC()}
	if err := e.records.PutSubscription(ctx, sub.record()); err != nil {
		return Subscription{}, fmt.Errorf("save subscription %s: %w", id, err)
	}
	e.metrics.ObserveApplied(id, 0, 0)
	e.metrics.ObserveStatus(id, string(StatusActive))
	e.logger.Info().Str("subscription", id).Msg("subscription reset")
	e.Notify()
	return sub, nil
}
