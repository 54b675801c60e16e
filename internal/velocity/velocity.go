// Package velocity tracks how often the same vehicle is re-checked.
// A listing whose fingerprint keeps reappearing is a signal the anomaly
// rules can act on via the recheck_count variable.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/Zoran-Janjic/truemeter-api/internal/domain"
)

// Service counts fraud checks per vehicle fingerprint.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new recheck velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Record registers one check of a vehicle. The windowed cache counter keeps
// the rule-engine lookup cheap; persistence of the check itself is the
// repository's job.
func (s *Service) Record(ctx context.Context, fingerprint string, window time.Duration) (int64, error) {
	if fingerprint == "" {
		return 0, fmt.Errorf("fingerprint is required")
	}
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, "recheck:"+fingerprint, window)
}

// GetRecheckCount returns the number of checks of a vehicle within a time
// window. This is the RecheckGetter function signature expected by the
// rule engine. Counts come from the check history so restarts do not
// reset them.
func (s *Service) GetRecheckCount(ctx context.Context, fingerprint string, windowSecs int) (int64, error) {
	if fingerprint == "" {
		return 0, fmt.Errorf("fingerprint is required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountChecksByFingerprint(ctx, fingerprint, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count checks: %w", err)
	}

	return count, nil
}

// GetRecheckGetter returns a RecheckGetter function for the rule engine.
func (s *Service) GetRecheckGetter() func(ctx context.Context, fingerprint string, windowSecs int) (int64, error) {
	return s.GetRecheckCount
}
