package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
)

const (
	counterCleanupSchedule = "@every 1m"
	rolloverTimeout        = 5 * time.Minute
)

// newScheduler registers the background jobs. memoryCounters is nil when
// counters live in Redis, which expires them itself.
func newScheduler(cfg config.BillingConfig, usage billing.Service, memoryCounters *middleware.MemoryCounterStore, logger logrus.FieldLogger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	// Monthly usage counters start over at the beginning of each month
	_, err := c.AddFunc(cfg.UsageRolloverSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), rolloverTimeout)
		defer cancel()

		n, err := usage.RolloverUsagePeriods(ctx, time.Now())
		if err != nil {
			logger.WithError(err).Error("Usage rollover failed")
			return
		}
		logger.WithField("counters", n).Info("Usage rollover completed")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule usage rollover %q: %w", cfg.UsageRolloverSchedule, err)
	}

	if memoryCounters != nil {
		_, err = c.AddFunc(counterCleanupSchedule, func() {
			if removed := memoryCounters.Cleanup(); removed > 0 {
				logger.WithField("removed", removed).Debug("Expired rate-limit counters removed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule counter cleanup: %w", err)
		}
	}

	return c, nil
}
