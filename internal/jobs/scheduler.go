package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"contactbook/api/internal/repository"
)

// Scheduler runs periodic maintenance: expired refresh token records are
// purged nightly so the table only holds rotatable rows.
type Scheduler struct {
	cron   *cron.Cron
	tokens *repository.RefreshTokenRepository
	log    zerolog.Logger
}

func NewScheduler(tokens *repository.RefreshTokenRepository, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		tokens: tokens,
		log:    log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 3 * * *", s.purgeExpiredTokens); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	_, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		s.cron.Stop()
		cancel()
	}()
	return cancel
}

func (s *Scheduler) purgeExpiredTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := s.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired refresh tokens failed")
		return
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("expired refresh tokens purged")
	}
}
