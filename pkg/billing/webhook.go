package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// SignatureHeader carries the webhook signature: t=<unix>,v1=<hex hmac>
const SignatureHeader = "Stripe-Signature"

// DefaultSignatureTolerance is how far the signed timestamp may drift from now
const DefaultSignatureTolerance = 5 * time.Minute

// Handled event types
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// WebhookVerifier checks payment processor signatures
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier for the shared webhook secret
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:    []byte(secret),
		tolerance: DefaultSignatureTolerance,
		now:       time.Now,
	}
}

// Sign returns a signature header for payload signed at ts
func (v *WebhookVerifier) Sign(payload []byte, ts time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), v.mac(ts.Unix(), payload))
}

// Verify checks header against payload. Any v1 entry may match, which lets
// the processor roll secrets.
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}

	var ts int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if ts == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > v.tolerance || drift < -v.tolerance {
		return ErrSignatureExpired
	}

	expected, _ := hex.DecodeString(v.mac(ts, payload))
	for _, sig := range signatures {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func (v *WebhookVerifier) mac(ts int64, payload []byte) string {
	h := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Event is a payment processor webhook event
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook payload
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	return &event, nil
}

// Metadata keys attached to checkout sessions
const (
	MetadataOwnerField = "owner_field"
	MetadataOwnerID    = "owner_id"
	MetadataPlan       = "plan"
)

type checkoutSession struct {
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

// HandleWebhookEvent applies an event to the subscriptions table. Unknown
// event types are ignored.
func (s *PostgresService) HandleWebhookEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		return nil
	}
}

func (s *PostgresService) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	field := session.Metadata[MetadataOwnerField]
	ownerID := session.Metadata[MetadataOwnerID]
	if (field != orgs.OwnerFieldUser && field != orgs.OwnerFieldOrganization) || ownerID == "" {
		return fmt.Errorf("%w: checkout session has no owner", ErrInvalidEvent)
	}
	plan, err := ParsePlan(session.Metadata[MetadataPlan])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if session.Subscription == "" {
		return fmt.Errorf("%w: checkout session has no subscription", ErrInvalidEvent)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
			INSERT INTO subscriptions (%[1]s, plan, status, customer_id, subscription_id, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (%[1]s) DO UPDATE
			SET plan = EXCLUDED.plan,
			    status = EXCLUDED.status,
			    customer_id = EXCLUDED.customer_id,
			    subscription_id = EXCLUDED.subscription_id,
			    updated_at = EXCLUDED.updated_at
		`, field)
		_, err := tx.ExecContext(ctx, query,
			ownerID, plan, SubscriptionStatusActive, session.Customer, session.Subscription, s.now())
		if err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		return syncOrganizationPlan(ctx, tx, session.Subscription)
	})
}

func (s *PostgresService) handleSubscriptionUpdated(ctx context.Context, event *Event) error {
	var obj subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil || obj.ID == "" {
		return fmt.Errorf("%w: subscription object", ErrInvalidEvent)
	}

	var plan sql.NullString
	if p := obj.Metadata[MetadataPlan]; p != "" {
		parsed, err := ParsePlan(p)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		plan = sql.NullString{String: string(parsed), Valid: true}
	}
	var periodEnd sql.NullTime
	if obj.CurrentPeriodEnd > 0 {
		periodEnd = sql.NullTime{Time: time.Unix(obj.CurrentPeriodEnd, 0).UTC(), Valid: true}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $1, plan = COALESCE($2, plan), current_period_end = $3, updated_at = $4
			WHERE subscription_id = $5
		`, obj.Status, plan, periodEnd, s.now(), obj.ID)
		if err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		return syncOrganizationPlan(ctx, tx, obj.ID)
	})
}

func (s *PostgresService) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	var obj subscriptionObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil || obj.ID == "" {
		return fmt.Errorf("%w: subscription object", ErrInvalidEvent)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = $1, plan = $2, updated_at = $3
			WHERE subscription_id = $4
		`, SubscriptionStatusCanceled, PlanFree, s.now(), obj.ID)
		if err != nil {
			return fmt.Errorf("failed to cancel subscription: %w", err)
		}
		return syncOrganizationPlan(ctx, tx, obj.ID)
	})
}

// syncOrganizationPlan copies the plan of an organization-owned subscription
// onto the organization row
func syncOrganizationPlan(ctx context.Context, tx *sql.Tx, subscriptionID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE organizations o
		SET plan = s.plan, updated_at = NOW()
		FROM subscriptions s
		WHERE s.subscription_id = $1 AND o.id = s.organization_id
	`, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to sync organization plan: %w", err)
	}
	return nil
}

func (s *PostgresService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
