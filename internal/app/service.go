package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"climbs/api/internal/aggregate"
	"climbs/api/internal/catalog"
	"climbs/api/internal/moderation"
	"climbs/api/internal/publish"
	"climbs/api/internal/record"
	"climbs/api/internal/store"
	"climbs/api/internal/submission"
	"climbs/api/internal/throttle"

	"go.uber.org/zap"
)

// Publisher uploads an export dataset. publish.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, dataset aggregate.Dataset) (publish.Location, error)
}

type Options struct {
	Verifier  moderation.Verifier
	Limiter   throttle.Limiter
	Publisher Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Service wires the record store to the catalog, moderation, submission and
// aggregation layers. Both the HTTP server and climbsctl drive it.
type Service struct {
	store      store.Store
	catalog    *catalog.Catalog
	moderation *moderation.Service
	ingestor   *submission.Ingestor
	views      *aggregate.Views
	limiter    throttle.Limiter
	publisher  Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func New(records store.Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = throttle.NewLocalLimiter(10, time.Hour)
	}

	resolved := catalog.New(records)
	return &Service{
		store:      records,
		catalog:    resolved,
		moderation: moderation.NewService(records, resolved, opts.Verifier),
		ingestor:   submission.New(records),
		views:      aggregate.New(resolved).WithClock(now),
		limiter:    limiter,
		publisher:  opts.Publisher,
		logger:     logger,
		now:        now,
	}
}

func (s *Service) Logger() *zap.Logger {
	return s.logger
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingLimiter checks a networked submission limiter. ok is false when the
// limiter is in-process and there is nothing to check.
func (s *Service) PingLimiter(ctx context.Context) (ok bool, err error) {
	pinger, ok := s.limiter.(interface{ Ping(context.Context) error })
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

func (s *Service) Athletes(ctx context.Context, filter record.Filter) ([]record.Athlete, error) {
	rows, err := s.catalog.Athletes(ctx, filter)
	if err != nil {
		return nil, err
	}
	athletes := make([]record.Athlete, 0, len(rows))
	for _, row := range rows {
		athletes = append(athletes, row.Athlete)
	}
	return athletes, nil
}

func (s *Service) Climbs(ctx context.Context, filter record.Filter) ([]record.Climb, error) {
	rows, err := s.catalog.Climbs(ctx, filter)
	if err != nil {
		return nil, err
	}
	climbs := make([]record.Climb, 0, len(rows))
	for _, row := range rows {
		climbs = append(climbs, row.Climb)
	}
	return climbs, nil
}

func (s *Service) Ascents(ctx context.Context, filter record.Filter) ([]record.Ascent, error) {
	rows, err := s.catalog.Ascents(ctx, filter)
	if err != nil {
		return nil, err
	}
	ascents := make([]record.Ascent, 0, len(rows))
	for _, row := range rows {
		ascents = append(ascents, row.Ascent)
	}
	return ascents, nil
}

func (s *Service) FindAthlete(ctx context.Context, name string) (record.Athlete, error) {
	row, err := s.catalog.FindAthlete(ctx, name)
	if err != nil {
		return record.Athlete{}, err
	}
	return row.Athlete, nil
}

func (s *Service) ClimbsWithAscents(ctx context.Context, climbType string) ([]aggregate.ClimbView, error) {
	return s.views.ClimbsWithAscents(ctx, record.ClimbType(climbType))
}

func (s *Service) AthletesWithAscents(ctx context.Context) ([]aggregate.AthleteView, error) {
	return s.views.AthletesWithAscents(ctx)
}

func (s *Service) Export(ctx context.Context) (aggregate.Dataset, error) {
	return s.views.Export(ctx)
}

func (s *Service) PublishingEnabled() bool {
	return s.publisher != nil
}

// Publish exports the current dataset and uploads it. It is moderator-only.
func (s *Service) Publish(ctx context.Context, credential string) (publish.Location, error) {
	if err := s.moderation.Authorize(credential); err != nil {
		return publish.Location{}, err
	}
	if s.publisher == nil {
		return publish.Location{}, domainError(http.StatusServiceUnavailable, "PUBLISH_UNAVAILABLE", "Object storage is not configured", nil)
	}
	dataset, err := s.views.Export(ctx)
	if err != nil {
		return publish.Location{}, err
	}
	location, err := s.publisher.Publish(ctx, dataset)
	if err != nil {
		return publish.Location{}, fmt.Errorf("publish dataset: %w", err)
	}
	return location, nil
}

// Throttle spends one submission from the client's allowance. A limiter
// failure is logged and the submission is let through.
func (s *Service) Throttle(ctx context.Context, client string) throttle.Result {
	result, err := s.limiter.Allow(ctx, client)
	if err != nil {
		s.logger.Warn("submission limiter unavailable", zap.String("client", client), zap.Error(err))
		return throttle.Result{Allowed: true}
	}
	return result
}

func (s *Service) Submit(ctx context.Context, sub submission.AscentSubmission) (submission.Receipt, error) {
	return s.ingestor.SubmitBundle(ctx, sub)
}

func (s *Service) Pending(ctx context.Context, credential string) (moderation.Queue, error) {
	if err := s.moderation.Authorize(credential); err != nil {
		return moderation.Queue{}, err
	}
	return s.moderation.Pending(ctx)
}

func (s *Service) CanApprove(ctx context.Context, credential, hash string) (catalog.Verdict, error) {
	if err := s.moderation.Authorize(credential); err != nil {
		return catalog.Verdict{}, err
	}
	return s.catalog.CanApprove(ctx, hash)
}

func (s *Service) Decide(ctx context.Context, req moderation.Request) (moderation.Confirmation, error) {
	return s.moderation.Decide(ctx, req)
}

// Transitions returns the decision history of one row.
func (s *Service) Transitions(ctx context.Context, credential, kind, hash string) ([]store.Transition, error) {
	if err := s.moderation.Authorize(credential); err != nil {
		return nil, err
	}
	parsed, ok := record.ParseKind(kind)
	if !ok {
		return nil, record.BadRequest(fmt.Sprintf("unknown table %q", kind))
	}
	transitions, err := s.store.Transitions(ctx, parsed, hash)
	if err != nil {
		return nil, err
	}
	if transitions == nil {
		transitions = []store.Transition{}
	}
	return transitions, nil
}

// resultLabel is the metrics label for the outcome of a call.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := record.CodeOf(err); code != "" {
		return string(code)
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "error"
}
