package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// billingTenant resolves the billing owner and checks billing:read against it
func (s *Server) billingTenant(r *http.Request) (orgs.OwnerFilter, error) {
	filter := s.ownerFilter(r)
	if filter.MatchNone {
		return filter, errNoOrganization
	}
	if err := s.authorize(r, rbac.ResourceBilling, rbac.ActionRead, tenantResource(filter, filter.Value)); err != nil {
		return filter, err
	}
	return filter, nil
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	filter, err := s.billingTenant(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	sub, err := s.billing.GetSubscription(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("get subscription", err))
		return
	}
	httputil.WriteSuccess(w, sub)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	filter, err := s.billingTenant(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	usage, err := s.billing.GetUsage(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("get usage", err))
		return
	}
	httputil.WriteSuccess(w, usage)
}

// billingWebhook applies payment processor events. The route is public; the
// signature header authenticates the sender.
func (s *Server) billingWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		httputil.WriteAppError(w, r, &httputil.NotFoundError{Resource: "webhook"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		httputil.WriteAppError(w, r, httputil.NewValidationError("body", "unreadable request body"))
		return
	}
	if len(payload) > maxWebhookBytes {
		httputil.WriteAppError(w, r, httputil.NewValidationError("body", "payload too large"))
		return
	}

	if err := s.webhooks.Verify(payload, r.Header.Get(billing.SignatureHeader)); err != nil {
		httputil.LoggerFrom(r).WithError(err).Warn("rejected billing webhook")
		httputil.WriteAppError(w, r, httputil.NewValidationError("signature", "invalid signature"))
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		httputil.WriteAppError(w, r, httputil.NewValidationError("body", err.Error()))
		return
	}

	if err := s.billing.HandleWebhookEvent(r.Context(), event); err != nil {
		if errors.Is(err, billing.ErrInvalidEvent) {
			httputil.WriteAppError(w, r, httputil.NewValidationError("data", err.Error()))
			return
		}
		httputil.WriteAppError(w, r, domainError("handle billing webhook", err))
		return
	}

	httputil.LoggerFrom(r).WithField("event_id", event.ID).WithField("event_type", event.Type).Info("billing webhook applied")
	httputil.WriteSuccess(w, map[string]bool{"received": true})
}
