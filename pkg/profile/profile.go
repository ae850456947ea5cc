package profile

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// Profile holds what a user tells us about themselves
type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Bio       string    `json:"bio"`
	Company   string    `json:"company"`
	Website   string    `json:"website"`
	Timezone  string    `json:"timezone"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateRequest changes the fields that are set
type UpdateRequest struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Company   *string `json:"company,omitempty"`
	Website   *string `json:"website,omitempty"`
	Timezone  *string `json:"timezone,omitempty"`
}

const (
	maxNameLength = 100
	maxBioLength  = 500
)

// Validate checks an update. It returns a *httputil.ValidationError listing
// every bad field.
func (req *UpdateRequest) Validate() error {
	v := &httputil.Validator{}
	if req.FullName != nil {
		v.Check(utf8.RuneCountInString(*req.FullName) <= maxNameLength, "full_name", "must be at most 100 characters")
	}
	if req.Bio != nil {
		v.Check(utf8.RuneCountInString(*req.Bio) <= maxBioLength, "bio", "must be at most 500 characters")
	}
	if req.AvatarURL != nil && *req.AvatarURL != "" {
		v.Check(isHTTPURL(*req.AvatarURL), "avatar_url", "must be an http or https URL")
	}
	if req.Website != nil && *req.Website != "" {
		v.Check(isHTTPURL(*req.Website), "website", "must be an http or https URL")
	}
	if req.Timezone != nil && *req.Timezone != "" {
		_, err := time.LoadLocation(*req.Timezone)
		v.Check(err == nil, "timezone", "must be an IANA time zone such as Europe/Berlin")
	}
	return v.Err()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Field names used in Score.Missing
const (
	FieldEmail     = "email"
	FieldFullName  = "full_name"
	FieldAvatarURL = "avatar_url"
	FieldBio       = "bio"
	FieldCompany   = "company"
	FieldWebsite   = "website"
	FieldTimezone  = "timezone"
)

type weightedField struct {
	name   string
	weight int
	value  func(p *Profile) string
}

var weights = []weightedField{
	{FieldEmail, 20, func(p *Profile) string { return p.Email }},
	{FieldFullName, 20, func(p *Profile) string { return p.FullName }},
	{FieldAvatarURL, 15, func(p *Profile) string { return p.AvatarURL }},
	{FieldBio, 15, func(p *Profile) string { return p.Bio }},
	{FieldCompany, 10, func(p *Profile) string { return p.Company }},
	{FieldWebsite, 10, func(p *Profile) string { return p.Website }},
	{FieldTimezone, 10, func(p *Profile) string { return p.Timezone }},
}

// Score is the completeness of a profile
type Score struct {
	Percent int      `json:"percent"`
	Missing []string `json:"missing"`
}

// Completeness scores p. Blank fields count as missing.
func Completeness(p *Profile) Score {
	score := Score{Missing: []string{}}
	if p == nil {
		p = &Profile{}
	}
	for _, f := range weights {
		if strings.TrimSpace(f.value(p)) != "" {
			score.Percent += f.weight
		} else {
			score.Missing = append(score.Missing, f.name)
		}
	}
	return score
}

// ErrNotFound means the user has not saved a profile yet
var ErrNotFound = errors.New("profile not found")

// Store persists profiles
type Store interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Update(ctx context.Context, userID, email string, req *UpdateRequest) (*Profile, error)
}
