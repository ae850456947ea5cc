package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// Plan is a subscription tier
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// ParsePlan validates a plan name
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanFree, PlanPro, PlanEnterprise:
		return Plan(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
}

// Unlimited marks a limit that is never enforced
const Unlimited int64 = -1

// PlanLimits holds the quotas of a plan
type PlanLimits struct {
	Members             int64 `json:"members"`
	StorageBytes        int64 `json:"storage_bytes"`
	APIRequestsPerMonth int64 `json:"api_requests_per_month"`
}

const gigabyte = 1024 * 1024 * 1024

var planLimits = map[Plan]PlanLimits{
	PlanFree: {
		Members:             3,
		StorageBytes:        1 * gigabyte,
		APIRequestsPerMonth: 10_000,
	},
	PlanPro: {
		Members:             25,
		StorageBytes:        50 * gigabyte,
		APIRequestsPerMonth: 1_000_000,
	},
	PlanEnterprise: {
		Members:             Unlimited,
		StorageBytes:        Unlimited,
		APIRequestsPerMonth: Unlimited,
	},
}

// LimitsFor returns the limits of plan. Unknown plans get the free limits.
func LimitsFor(plan Plan) PlanLimits {
	if limits, ok := planLimits[plan]; ok {
		return limits
	}
	return planLimits[PlanFree]
}

// For returns the limit that applies to metric
func (l PlanLimits) For(metric Metric) int64 {
	switch metric {
	case MetricMembers:
		return l.Members
	case MetricStorageBytes:
		return l.StorageBytes
	case MetricAPIRequests:
		return l.APIRequestsPerMonth
	default:
		return 0
	}
}

// Metric is a tracked usage counter
type Metric string

const (
	MetricMembers      Metric = "members"
	MetricStorageBytes Metric = "storage_bytes"
	// MetricAPIRequests resets at the start of every month
	MetricAPIRequests Metric = "api_requests"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Subscription is the billing state of one owner
type Subscription struct {
	OwnerField       string             `json:"owner_field"`
	OwnerID          string             `json:"owner_id"`
	Plan             Plan               `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	CustomerID       string             `json:"customer_id,omitempty"`
	SubscriptionID   string             `json:"subscription_id,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	UpdatedAt        *time.Time         `json:"updated_at,omitempty"`
}

// Usage reports the counters of an owner against its plan limits
type Usage struct {
	Plan        Plan             `json:"plan"`
	Limits      PlanLimits       `json:"limits"`
	Metrics     map[Metric]int64 `json:"metrics"`
	PeriodStart time.Time        `json:"period_start"`
}

// QuotaExceededError is returned when an operation would exceed a plan limit
type QuotaExceededError struct {
	Metric    Metric `json:"metric"`
	Current   int64  `json:"current"`
	Requested int64  `json:"requested"`
	Limit     int64  `json:"limit"`
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d + %d exceeds limit %d", e.Metric, e.Current, e.Requested, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

var (
	ErrNoOwner          = errors.New("no billing owner in context")
	ErrUnknownPlan      = errors.New("unknown plan")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
	ErrInvalidEvent     = errors.New("invalid webhook event")
)

// Service defines the interface for billing operations
type Service interface {
	GetSubscription(ctx context.Context, filter orgs.OwnerFilter) (*Subscription, error)
	GetUsage(ctx context.Context, filter orgs.OwnerFilter) (*Usage, error)
	RecordUsage(ctx context.Context, filter orgs.OwnerFilter, metric Metric, delta int64) error
	CheckQuota(ctx context.Context, filter orgs.OwnerFilter, metric Metric, delta int64) error
	RolloverUsagePeriods(ctx context.Context, now time.Time) (int64, error)
	HandleWebhookEvent(ctx context.Context, event *Event) error
}

// monthStart returns the first instant of t's month in UTC
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
