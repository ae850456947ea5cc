package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/profile"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// MeResponse describes the signed-in user
type MeResponse struct {
	User         auth.User          `json:"user"`
	Profile      *profile.Profile   `json:"profile"`
	Completeness profile.Score      `json:"completeness"`
	Organization *orgs.Organization `json:"organization,omitempty"`
	Membership   *orgs.Membership   `json:"membership,omitempty"`
	Mode         orgs.Mode          `json:"mode"`
	Features     orgs.Features      `json:"features"`
}

// ProfileResponse is returned after a profile update
type ProfileResponse struct {
	Profile      *profile.Profile `json:"profile"`
	Completeness profile.Score    `json:"completeness"`
}

func selfResource(userID string) *rbac.ResourceContext {
	return &rbac.ResourceContext{ID: userID, OwnerID: userID}
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := s.authorize(r, rbac.ResourceProfile, rbac.ActionRead, selfResource(user.ID)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	p, err := s.profiles.Get(r.Context(), user.ID)
	if errors.Is(err, profile.ErrNotFound) {
		// Nothing saved yet: start from the identity provider claims
		p = &profile.Profile{UserID: user.ID, Email: user.Email, FullName: user.Name, AvatarURL: user.AvatarURL}
		err = nil
	}
	if err != nil {
		httputil.WriteAppError(w, r, domainError("get profile", err))
		return
	}

	cfg := s.resolver.Config()
	httputil.WriteSuccess(w, MeResponse{
		User:         *user,
		Profile:      p,
		Completeness: profile.Completeness(p),
		Organization: middleware.OrganizationFrom(r.Context()),
		Membership:   middleware.MembershipFrom(r.Context()),
		Mode:         cfg.Mode,
		Features:     cfg.Features,
	})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req profile.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := s.authorize(r, rbac.ResourceProfile, rbac.ActionUpdate, selfResource(user.ID)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	p, err := s.profiles.Update(r.Context(), user.ID, user.Email, &req)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("update profile", err))
		return
	}

	httputil.WriteSuccess(w, ProfileResponse{Profile: p, Completeness: profile.Completeness(p)})
}
