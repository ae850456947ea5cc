package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

// fileTenant resolves the owner of tenant files and checks action on name
func (s *Server) fileTenant(r *http.Request, action rbac.Action) (orgs.OwnerFilter, string, error) {
	if s.files == nil {
		return orgs.OwnerFilter{}, "", &httputil.NotFoundError{Resource: "file storage"}
	}
	name, err := httputil.PathVar(r, "name")
	if err != nil {
		return orgs.OwnerFilter{}, "", err
	}
	filter := s.ownerFilter(r)
	if filter.MatchNone {
		return filter, "", errNoOrganization
	}
	if err := s.authorize(r, rbac.ResourceFile, action, tenantResource(filter, name)); err != nil {
		return filter, "", err
	}
	return filter, name, nil
}

func (s *Server) putFile(w http.ResponseWriter, r *http.Request) {
	filter, name, err := s.fileTenant(r, rbac.ActionCreate)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxUploadBytes+1))
	if err != nil {
		httputil.WriteAppError(w, r, httputil.NewValidationError("body", "unreadable request body"))
		return
	}
	if int64(len(body)) > s.maxUploadBytes {
		httputil.WriteAppError(w, r, httputil.NewValidationError("body", "file too large"))
		return
	}
	size := int64(len(body))

	// An overwrite only counts the difference against the replaced object
	previous, err := s.files.Size(r.Context(), filter, name)
	if errors.Is(err, storage.ErrObjectNotFound) {
		previous, err = 0, nil
	}
	if err != nil {
		httputil.WriteAppError(w, r, domainError("stat file", err))
		return
	}
	delta := size - previous

	if delta > 0 {
		if err := s.billing.CheckQuota(r.Context(), filter, billing.MetricStorageBytes, delta); err != nil {
			httputil.WriteAppError(w, r, domainError("check storage quota", err))
			return
		}
	}

	obj, err := s.files.Put(r.Context(), filter, name, bytes.NewReader(body), r.Header.Get("Content-Type"))
	if err != nil {
		httputil.WriteAppError(w, r, domainError("store file", err))
		return
	}
	if delta != 0 {
		if err := s.billing.RecordUsage(r.Context(), filter, billing.MetricStorageBytes, delta); err != nil {
			httputil.LoggerFrom(r).WithError(err).WithField("key", obj.Key).Warn("failed to record storage usage")
		}
	}

	httputil.WriteCreated(w, obj)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	filter, name, err := s.fileTenant(r, rbac.ActionDelete)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	size, err := s.files.Delete(r.Context(), filter, name)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("delete file", err))
		return
	}
	if err := s.billing.RecordUsage(r.Context(), filter, billing.MetricStorageBytes, -size); err != nil {
		httputil.LoggerFrom(r).WithError(err).WithField("name", name).Warn("failed to record storage usage")
	}

	httputil.WriteNoContent(w)
}
