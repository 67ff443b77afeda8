package service

import (
	"context"

	"github.com/rs/zerolog"
)

// SummaryInvalidator drops cached session summaries.  *cache.SummaryCache
// implements it.
type SummaryInvalidator interface {
	InvalidateSession(ctx context.Context, sessionID uint64) error
}

// WithSummaryCache makes committed mutations drop the cached summary of
// their session.
func (s *ReservationService) WithSummaryCache(c SummaryInvalidator) *ReservationService {
	s.summaries = c
	return s
}

// invalidateSummary runs after commit.  A failure leaves the entry to
// expire on its TTL.
func (s *ReservationService) invalidateSummary(ctx context.Context, sessionID uint64) {
	if s.summaries == nil {
		return
	}
	if err := s.summaries.InvalidateSession(context.WithoutCancel(ctx), sessionID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Uint64("session_id", sessionID).Msg("session summary not invalidated")
	}
}
