// Package business resolves the per-tenant scheduling policy: whether the
// business may book, its timezone and its opening hours.
package business

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/internal/repository"
	"github.com/jwalitptl/clinic-scheduler/internal/scheduling"
	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
)

type PolicyConfig struct {
	DefaultHours    scheduling.BusinessHours
	DefaultLocation *time.Location
	// TTL bounds how long a cached policy is served. A business that is
	// deactivated or lapses keeps booking for at most this long unless
	// Invalidate is called.
	TTL time.Duration
}

// Policy is the resolved view of one business.
type Policy struct {
	Business *model.Business
	Location *time.Location
	defaults scheduling.BusinessHours
}

// HoursOn returns the bookable window on d.
func (p *Policy) HoursOn(d scheduling.Date) scheduling.BusinessHours {
	return p.Business.OperatingHours.For(d, p.defaults)
}

// CanBook reports whether new appointments may be created at now.
func (p *Policy) CanBook(now time.Time) bool {
	return p.Business.CanBook(now)
}

type Service struct {
	repo  repository.BusinessRepository
	cache *cache.Cache
	cfg   PolicyConfig
}

func NewService(repo repository.BusinessRepository, cfg PolicyConfig) *Service {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Service{
		repo:  repo,
		cache: cache.New(cfg.TTL, 2*cfg.TTL),
		cfg:   cfg,
	}
}

// Policy loads the business policy, serving repeated lookups from cache.
func (s *Service) Policy(ctx context.Context, businessID uuid.UUID) (*Policy, error) {
	key := businessID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Policy), nil
	}

	b, err := s.repo.Get(ctx, businessID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NewNotFound("business", err)
		}
		return nil, fmt.Errorf("failed to get business: %w", err)
	}

	p := &Policy{
		Business: b,
		Location: b.Location(s.cfg.DefaultLocation),
		defaults: s.cfg.DefaultHours,
	}
	s.cache.Set(key, p, cache.DefaultExpiration)
	return p, nil
}

// Invalidate drops a cached policy so the next lookup reads the repository.
func (s *Service) Invalidate(businessID uuid.UUID) {
	s.cache.Delete(businessID.String())
}
