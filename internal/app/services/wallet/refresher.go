package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/roster/pkg/logger"
)

// BalanceRefresher re-reads the connected wallet's balance on a cron
// schedule such as "*/5 * * * *" or "@every 30s".
type BalanceRefresher struct {
	wallet   *Service
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
	log      *logger.Logger
}

// NewBalanceRefresher validates the schedule up front.
func NewBalanceRefresher(svc *Service, schedule string, timeout time.Duration, log *logger.Logger) (*BalanceRefresher, error) {
	if svc == nil {
		return nil, fmt.Errorf("balance refresher requires a wallet service")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse balance refresh schedule %q: %w", schedule, err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("wallet-refresher")
	}
	return &BalanceRefresher{
		wallet:   svc,
		schedule: schedule,
		timeout:  timeout,
		log:      log,
	}, nil
}

func (r *BalanceRefresher) Name() string { return "wallet-refresher" }

func (r *BalanceRefresher) Start(context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, r.run); err != nil {
		return fmt.Errorf("schedule balance refresh: %w", err)
	}
	c.Start()
	r.cron = c
	r.log.WithField("schedule", r.schedule).Info("balance refresh scheduled")
	return nil
}

func (r *BalanceRefresher) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	done := r.cron.Stop()
	r.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *BalanceRefresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.wallet.RefreshBalance(ctx); err != nil {
		r.log.WithError(err).Warn("balance refresh failed")
	}
}
