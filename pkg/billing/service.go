package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// PostgresService implements the billing Service interface using PostgreSQL.
// The subscriptions and usage_counters tables carry both a user_id and an
// organization_id column so an OwnerFilter can scope them directly.
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// GetSubscription retrieves the subscription of the filtered owner. Owners
// without a row are on the free plan.
func (s *PostgresService) GetSubscription(ctx context.Context, filter orgs.OwnerFilter) (*Subscription, error) {
	if filter.MatchNone {
		return nil, ErrNoOwner
	}

	clause, args := filter.SQL(1)
	query := `
		SELECT plan, status, customer_id, subscription_id, current_period_end, updated_at
		FROM subscriptions
		WHERE ` + clause

	sub := &Subscription{OwnerField: filter.Field, OwnerID: filter.Value}
	var customerID, subscriptionID sql.NullString
	var periodEnd, updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&sub.Plan, &sub.Status, &customerID, &subscriptionID, &periodEnd, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		sub.Plan = PlanFree
		sub.Status = SubscriptionStatusActive
		return sub, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.CustomerID = customerID.String
	sub.SubscriptionID = subscriptionID.String
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	if updatedAt.Valid {
		sub.UpdatedAt = &updatedAt.Time
	}
	return sub, nil
}

// GetUsage returns every counter of the filtered owner with its plan limits
func (s *PostgresService) GetUsage(ctx context.Context, filter orgs.OwnerFilter) (*Usage, error) {
	sub, err := s.GetSubscription(ctx, filter)
	if err != nil {
		return nil, err
	}

	usage := &Usage{
		Plan:        sub.Plan,
		Limits:      LimitsFor(sub.Plan),
		Metrics:     map[Metric]int64{MetricMembers: 0, MetricStorageBytes: 0, MetricAPIRequests: 0},
		PeriodStart: monthStart(s.now()),
	}

	clause, args := filter.SQL(1)
	rows, err := s.db.QueryContext(ctx, `SELECT metric, value FROM usage_counters WHERE `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var metric Metric
		var value int64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage.Metrics[metric] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	return usage, nil
}

// RecordUsage adds delta to a counter. Negative deltas release usage; a
// counter never drops below zero.
func (s *PostgresService) RecordUsage(ctx context.Context, filter orgs.OwnerFilter, metric Metric, delta int64) error {
	if filter.MatchNone {
		return ErrNoOwner
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_counters (%[1]s, metric, value, period_start)
		VALUES ($1, $2, GREATEST($3::bigint, 0), $4)
		ON CONFLICT (%[1]s, metric) DO UPDATE
		SET value = GREATEST(usage_counters.value + $3::bigint, 0)
	`, filter.Field)
	_, err := s.db.ExecContext(ctx, query, filter.Value, metric, delta, monthStart(s.now()))
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CheckQuota returns a *QuotaExceededError if adding delta to metric would
// exceed the owner's plan limit
func (s *PostgresService) CheckQuota(ctx context.Context, filter orgs.OwnerFilter, metric Metric, delta int64) error {
	sub, err := s.GetSubscription(ctx, filter)
	if err != nil {
		return err
	}

	limit := LimitsFor(sub.Plan).For(metric)
	if limit == Unlimited {
		return nil
	}

	clause, args := filter.SQL(1)
	query := `SELECT value FROM usage_counters WHERE ` + clause + ` AND metric = $2`
	var current int64
	err = s.db.QueryRowContext(ctx, query, append(args, metric)...).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to get usage: %w", err)
	}

	if current+delta > limit {
		return &QuotaExceededError{
			Metric:    metric,
			Current:   current,
			Requested: delta,
			Limit:     limit,
		}
	}
	return nil
}

// RolloverUsagePeriods resets monthly counters whose period started before
// the month containing now. It returns the number of counters reset.
func (s *PostgresService) RolloverUsagePeriods(ctx context.Context, now time.Time) (int64, error) {
	start := monthStart(now)
	result, err := s.db.ExecContext(ctx, `
		UPDATE usage_counters
		SET value = 0, period_start = $1
		WHERE metric = $2 AND period_start < $1
	`, start, MetricAPIRequests)
	if err != nil {
		return 0, fmt.Errorf("failed to roll over usage: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to roll over usage: %w", err)
	}
	return n, nil
}
