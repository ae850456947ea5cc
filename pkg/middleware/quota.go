package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// UsageTracker checks and records plan usage
type UsageTracker interface {
	CheckQuota(ctx context.Context, filter orgs.OwnerFilter, metric billing.Metric, delta int64) error
	RecordUsage(ctx context.Context, filter orgs.OwnerFilter, metric billing.Metric, delta int64) error
}

// QuotaMiddleware enforces the monthly API request quota of the current owner.
//
// It must run after the Gate and OrgContext so the session and organization
// are in the request context. Requests without an owner are not counted.
type QuotaMiddleware struct {
	usage    UsageTracker
	resolver *orgs.Resolver
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewQuotaMiddleware creates a new QuotaMiddleware
func NewQuotaMiddleware(usage UsageTracker, resolver *orgs.Resolver, logger logrus.FieldLogger) *QuotaMiddleware {
	return &QuotaMiddleware{
		usage:    usage,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// TrackAPIRequests answers 429 once the monthly quota is used up and counts
// every other request. Billing store errors are logged and the request proceeds.
func (m *QuotaMiddleware) TrackAPIRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		filter := m.resolver.OwnerFilter(auth.UserFromContext(ctx), OrganizationFrom(ctx))
		if filter.MatchNone {
			next.ServeHTTP(w, r)
			return
		}

		err := m.usage.CheckQuota(ctx, filter, billing.MetricAPIRequests, 1)
		if billing.IsQuotaExceeded(err) {
			httputil.WriteAppError(w, r, &httputil.RateLimitedError{RetryAfter: untilNextMonth(m.now())})
			return
		}
		if err != nil {
			m.logger.WithError(err).Warn("failed to check API quota")
		}

		if err := m.usage.RecordUsage(ctx, filter, billing.MetricAPIRequests, 1); err != nil {
			m.logger.WithError(err).Warn("failed to record API usage")
		}

		next.ServeHTTP(w, r)
	})
}

func untilNextMonth(now time.Time) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now)
}
