package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/config"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/profile"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

// fakeOrgs is an in-memory orgs.Service
type fakeOrgs struct {
	mu      sync.Mutex
	next    int
	orgs    map[string]*orgs.Organization
	members map[string]map[string]*orgs.Membership
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{
		orgs:    make(map[string]*orgs.Organization),
		members: make(map[string]map[string]*orgs.Membership),
	}
}

func (f *fakeOrgs) CreateOrganization(_ context.Context, org *orgs.Organization) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if org.Slug == "" {
		org.Slug = strings.ToLower(strings.Join(strings.Fields(org.Name), "-"))
	}
	for _, existing := range f.orgs {
		if existing.Slug == org.Slug {
			return orgs.ErrSlugTaken
		}
	}
	f.next++
	org.ID = fmt.Sprintf("org-%d", f.next)
	org.Plan = string(billing.PlanFree)
	f.orgs[org.ID] = org
	f.members[org.ID] = map[string]*orgs.Membership{
		org.OwnerID: {ID: "m-" + org.OwnerID, OrganizationID: org.ID, UserID: org.OwnerID, RoleID: rbac.RoleOwner, Status: orgs.StatusActive},
	}
	return nil
}

func (f *fakeOrgs) GetOrganization(_ context.Context, id string) (*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, orgs.ErrNotFound
	}
	copied := *org
	return &copied, nil
}

func (f *fakeOrgs) GetSoleOrganization(ctx context.Context) (*orgs.Organization, error) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.orgs))
	for id := range f.orgs {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	if len(ids) == 0 {
		return nil, orgs.ErrNotFound
	}
	sort.Strings(ids)
	return f.GetOrganization(ctx, ids[0])
}

func (f *fakeOrgs) ListOrganizations(_ context.Context, userID string) ([]*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*orgs.Organization
	for id, members := range f.members {
		if m, ok := members[userID]; ok && m.IsActive() {
			list = append(list, f.orgs[id])
		}
	}
	return list, nil
}

func (f *fakeOrgs) UpdateOrganization(_ context.Context, id string, updates *orgs.UpdateOrgRequest) (*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return nil, orgs.ErrNotFound
	}
	if updates.Name != nil {
		org.Name = *updates.Name
	}
	return org, nil
}

func (f *fakeOrgs) InviteMember(_ context.Context, orgID, userID, roleID, invitedBy string) (*orgs.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[orgID][userID]; ok && m.Status != orgs.StatusRemoved {
		return nil, orgs.ErrMembershipExists
	}
	m := &orgs.Membership{
		ID:             "m-" + userID,
		OrganizationID: orgID,
		UserID:         userID,
		RoleID:         roleID,
		Status:         orgs.StatusInvited,
		InvitedBy:      &invitedBy,
	}
	f.members[orgID][userID] = m
	return m, nil
}

func (f *fakeOrgs) AcceptInvitation(_ context.Context, orgID, userID string) (*orgs.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[orgID][userID]
	if !ok || m.Status != orgs.StatusInvited {
		return nil, orgs.ErrInvitationNotFound
	}
	now := time.Now()
	m.Status = orgs.StatusActive
	m.AcceptedAt = &now
	return m, nil
}

func (f *fakeOrgs) UpdateMemberRole(_ context.Context, orgID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[orgID][userID]
	if !ok || m.Status == orgs.StatusRemoved {
		return orgs.ErrMemberNotFound
	}
	m.RoleID = roleID
	return nil
}

func (f *fakeOrgs) RemoveMember(_ context.Context, orgID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[orgID][userID]
	if !ok || m.Status == orgs.StatusRemoved {
		return orgs.ErrMemberNotFound
	}
	if m.RoleID == rbac.RoleOwner {
		owners := 0
		for _, other := range f.members[orgID] {
			if other.IsActive() && other.RoleID == rbac.RoleOwner {
				owners++
			}
		}
		if owners <= 1 {
			return orgs.ErrLastOwner
		}
	}
	m.Status = orgs.StatusRemoved
	return nil
}

func (f *fakeOrgs) GetMembership(_ context.Context, orgID, userID string) (*orgs.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[orgID][userID]
	if !ok || m.Status == orgs.StatusRemoved {
		return nil, orgs.ErrMemberNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeOrgs) ListMembers(_ context.Context, orgID string) ([]*orgs.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*orgs.Membership
	for _, m := range f.members[orgID] {
		if m.Status != orgs.StatusRemoved {
			list = append(list, m)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list, nil
}

// addMember puts userID into orgID with an active membership
func (f *fakeOrgs) addMember(orgID, userID, roleID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[orgID][userID] = &orgs.Membership{
		ID: "m-" + userID, OrganizationID: orgID, UserID: userID, RoleID: roleID, Status: orgs.StatusActive,
	}
}

// fakeBilling is an in-memory billing.Service with configurable limits
type fakeBilling struct {
	mu     sync.Mutex
	usage  map[string]map[billing.Metric]int64
	limits map[billing.Metric]int64
	events []*billing.Event
	err    error
}

func newFakeBilling() *fakeBilling {
	return &fakeBilling{
		usage:  make(map[string]map[billing.Metric]int64),
		limits: make(map[billing.Metric]int64),
	}
}

func ownerKey(filter orgs.OwnerFilter) (string, error) {
	if filter.MatchNone || filter.Value == "" {
		return "", billing.ErrNoOwner
	}
	return filter.Field + "/" + filter.Value, nil
}

func (f *fakeBilling) current(filter orgs.OwnerFilter, metric billing.Metric) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, _ := ownerKey(filter)
	return f.usage[key][metric]
}

func (f *fakeBilling) GetSubscription(_ context.Context, filter orgs.OwnerFilter) (*billing.Subscription, error) {
	if _, err := ownerKey(filter); err != nil {
		return nil, err
	}
	return &billing.Subscription{
		OwnerField: filter.Field,
		OwnerID:    filter.Value,
		Plan:       billing.PlanFree,
		Status:     billing.SubscriptionStatusActive,
	}, nil
}

func (f *fakeBilling) GetUsage(_ context.Context, filter orgs.OwnerFilter) (*billing.Usage, error) {
	key, err := ownerKey(filter)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	metrics := make(map[billing.Metric]int64)
	for m, v := range f.usage[key] {
		metrics[m] = v
	}
	return &billing.Usage{Plan: billing.PlanFree, Limits: billing.LimitsFor(billing.PlanFree), Metrics: metrics}, nil
}

func (f *fakeBilling) RecordUsage(_ context.Context, filter orgs.OwnerFilter, metric billing.Metric, delta int64) error {
	key, err := ownerKey(filter)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage[key] == nil {
		f.usage[key] = make(map[billing.Metric]int64)
	}
	f.usage[key][metric] += delta
	if f.usage[key][metric] < 0 {
		f.usage[key][metric] = 0
	}
	return nil
}

func (f *fakeBilling) CheckQuota(_ context.Context, filter orgs.OwnerFilter, metric billing.Metric, delta int64) error {
	key, err := ownerKey(filter)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	limit, ok := f.limits[metric]
	if !ok || limit == billing.Unlimited {
		return nil
	}
	current := f.usage[key][metric]
	if current+delta > limit {
		return &billing.QuotaExceededError{Metric: metric, Current: current, Requested: delta, Limit: limit}
	}
	return nil
}

func (f *fakeBilling) RolloverUsagePeriods(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeBilling) HandleWebhookEvent(_ context.Context, event *billing.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

// fakeProfiles is an in-memory profile.Store
type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]*profile.Profile)}
}

func (f *fakeProfiles) Get(_ context.Context, userID string) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, profile.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfiles) Update(_ context.Context, userID, email string, req *profile.UpdateRequest) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		p = &profile.Profile{UserID: userID, Email: email}
		f.profiles[userID] = p
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.FullName, req.FullName)
	set(&p.AvatarURL, req.AvatarURL)
	set(&p.Bio, req.Bio)
	set(&p.Company, req.Company)
	set(&p.Website, req.Website)
	set(&p.Timezone, req.Timezone)
	copied := *p
	return &copied, nil
}

// fakeRoles is an in-memory rbac.RoleStore
type fakeRoles struct {
	mu    sync.Mutex
	roles map[string][]rbac.Role
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: make(map[string][]rbac.Role)}
}

func (f *fakeRoles) ListOrganizationRoles(_ context.Context, orgID string) ([]rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rbac.Role(nil), f.roles[orgID]...), nil
}

func (f *fakeRoles) CreateRole(_ context.Context, role *rbac.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	orgID := *role.OrganizationID
	for _, existing := range f.roles[orgID] {
		if existing.Name == role.Name {
			return rbac.ErrRoleExists
		}
	}
	f.roles[orgID] = append(f.roles[orgID], *role)
	return nil
}

func (f *fakeRoles) DeleteRole(_ context.Context, orgID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.roles[orgID] {
		if existing.ID == roleID {
			f.roles[orgID] = append(f.roles[orgID][:i], f.roles[orgID][i+1:]...)
			return nil
		}
	}
	return rbac.ErrRoleNotFound
}

// fakeFiles is an in-memory FileStore keyed like the object store
type fakeFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: make(map[string][]byte)}
}

func (f *fakeFiles) Size(_ context.Context, filter orgs.OwnerFilter, name string) (int64, error) {
	key, err := storage.ObjectKey(filter, name)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return 0, storage.ErrObjectNotFound
	}
	return int64(len(data)), nil
}

func (f *fakeFiles) Put(_ context.Context, filter orgs.OwnerFilter, name string, body io.Reader, contentType string) (*storage.Object, error) {
	if f.err != nil {
		return nil, f.err
	}
	key, err := storage.ObjectKey(filter, name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return &storage.Object{Key: key, Name: name, Size: int64(len(data)), ContentType: contentType}, nil
}

func (f *fakeFiles) Delete(_ context.Context, filter orgs.OwnerFilter, name string) (int64, error) {
	key, err := storage.ObjectKey(filter, name)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return 0, storage.ErrObjectNotFound
	}
	delete(f.objects, key)
	return int64(len(data)), nil
}

const testWebhookSecret = "whsec_test"

// harness runs a Server with in-memory collaborators
type harness struct {
	t        *testing.T
	server   *Server
	orgs     *fakeOrgs
	billing  *fakeBilling
	profiles *fakeProfiles
	roles    *fakeRoles
	files    *fakeFiles
	webhooks *billing.WebhookVerifier
	// gated sends the caller as a bearer token through Config.Gate instead of
	// placing the session in the request context
	gated bool
}

func newHarness(t *testing.T, mode orgs.Mode, opts ...func(*Config)) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := &harness{
		t:        t,
		orgs:     newFakeOrgs(),
		billing:  newFakeBilling(),
		profiles: newFakeProfiles(),
		roles:    newFakeRoles(),
		files:    newFakeFiles(),
		webhooks: billing.NewWebhookVerifier(testWebhookSecret),
	}
	cfg := Config{
		Logger:     logger,
		Resolver:   orgs.NewResolver(mode),
		Orgs:       h.orgs,
		Authorizer: rbac.NewAuthorizer(rbac.NewRegistry(), h.roles, nil, logger),
		Roles:      h.roles,
		Billing:    h.billing,
		Webhooks:   h.webhooks,
		Profiles:   h.profiles,
		Files:      h.files,
		Version:    "test",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.gated = cfg.Gate != nil
	h.server = NewServer(cfg)
	return h
}

// tokenVerifier accepts any bearer token and treats it as the user id
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (*auth.Session, error) {
	return &auth.Session{
		User:      auth.User{ID: token, Email: token + "@example.com", Name: token},
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// withGate installs the gate built from the default route configuration and a
// rate limiter with the given limits in front of the server
func withGate(limits map[middleware.RouteClass]middleware.Limit) func(*Config) {
	return func(cfg *Config) {
		routes := config.DefaultRoutes()
		rules := middleware.RouteRules{
			Public:             routes.Public,
			Auth:               routes.Auth,
			Admin:              routes.Admin,
			API:                routes.API,
			LoginURL:           routes.LoginURL,
			DefaultRedirectURL: routes.DefaultRedirectURL,
			UnauthorizedURL:    routes.UnauthorizedURL,
		}
		cfg.Gate = middleware.NewGate(rules, auth.NewSessionResolver(tokenVerifier{}, "session"), nil)
		cfg.RateLimiter = middleware.NewRateLimitMiddleware(middleware.NewMemoryCounterStore(), limits, rules.Classify, nil, cfg.Logger)
	}
}

// do sends a request as userID; an empty userID sends it without a session
func (h *harness) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	switch {
	case userID != "" && h.gated:
		req.Header.Set("Authorization", "Bearer "+userID)
	case userID != "":
		session := &auth.Session{
			User:      auth.User{ID: userID, Email: userID + "@example.com", Name: userID},
			ExpiresAt: time.Now().Add(time.Hour),
		}
		req = req.WithContext(auth.WithSession(req.Context(), session))
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

// createOrg creates an organization owned by ownerID through the API
func (h *harness) createOrg(ownerID, name string) *orgs.Organization {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/orgs", ownerID, map[string]string{"name": name})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	var org orgs.Organization
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &org))
	return &org
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
