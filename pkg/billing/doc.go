// Package billing tracks plans, subscriptions and usage quotas.
//
// # Overview
//
// Subscriptions and usage counters are owned by whatever the organization
// mode scopes resources by: a user in none mode, an organization otherwise.
// Every method takes an orgs.OwnerFilter, so the same code serves both.
//
// # Plans
//
// Free:
//   - 3 members, 1 GB storage, 10,000 API requests per month
//
// Pro:
//   - 25 members, 50 GB storage, 1,000,000 API requests per month
//
// Enterprise:
//   - Unlimited
//
// An owner without a subscription row is on the free plan.
//
// # Usage Example
//
// Check a quota before creating something:
//
//	filter := resolver.OwnerFilter(user, org)
//	if err := service.CheckQuota(ctx, filter, billing.MetricMembers, 1); err != nil {
//		return err // *billing.QuotaExceededError
//	}
//	service.RecordUsage(ctx, filter, billing.MetricMembers, 1)
//
// Handle a payment processor webhook:
//
//	if err := verifier.Verify(payload, r.Header.Get(billing.SignatureHeader)); err != nil {
//		return err
//	}
//	event, err := billing.ParseEvent(payload)
//	err = service.HandleWebhookEvent(ctx, event)
//
// # Related Packages
//
//   - pkg/orgs: Owner filters and organization plans
package billing
