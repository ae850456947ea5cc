package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// RouteClass is the gate's classification of a request path
type RouteClass string

const (
	ClassPublic    RouteClass = "public"
	ClassAuth      RouteClass = "auth"
	ClassAdmin     RouteClass = "admin"
	ClassProtected RouteClass = "protected"
)

// RouteRules holds the route prefixes and redirect targets of the gate
type RouteRules struct {
	Public []string
	Auth   []string
	Admin  []string
	// API prefixes answer 401 instead of redirecting to the login page
	API []string

	LoginURL           string
	DefaultRedirectURL string
	UnauthorizedURL    string
}

// matchesPrefix reports whether path is prefix or lies below it. The prefix
// "/" only matches the root path.
func matchesPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return path == "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func longestMatch(path string, prefixes []string) int {
	best := -1
	for _, p := range prefixes {
		if matchesPrefix(path, p) && len(p) > best {
			best = len(p)
		}
	}
	return best
}

// Classify determines the class of path. Admin prefixes are checked first,
// then the most specific public or auth prefix wins. Everything else is protected.
func (rr RouteRules) Classify(path string) RouteClass {
	if path == "" {
		path = "/"
	}
	if longestMatch(path, rr.Admin) >= 0 {
		return ClassAdmin
	}

	public := longestMatch(path, rr.Public)
	authRoute := longestMatch(path, rr.Auth)
	switch {
	case authRoute >= 0 && authRoute >= public:
		return ClassAuth
	case public >= 0:
		return ClassPublic
	default:
		return ClassProtected
	}
}

// IsAPI reports whether path is under an API prefix
func (rr RouteRules) IsAPI(path string) bool {
	return longestMatch(path, rr.API) >= 0
}

// Action is what the gate does with a request
type Action string

const (
	ActionPass     Action = "pass"
	ActionRedirect Action = "redirect"
)

// Decision is the outcome of the gate's transition table
type Decision struct {
	Action   Action
	Location string
}

// Decide applies the transition table:
//
//	unauthenticated + protected -> redirect to LoginURL
//	authenticated   + auth      -> redirect to DefaultRedirectURL
//	unauthenticated + admin     -> redirect to UnauthorizedURL
//	anything else               -> pass
func (rr RouteRules) Decide(class RouteClass, authenticated bool) Decision {
	switch {
	case class == ClassProtected && !authenticated:
		return Decision{Action: ActionRedirect, Location: rr.LoginURL}
	case class == ClassAuth && authenticated:
		return Decision{Action: ActionRedirect, Location: rr.DefaultRedirectURL}
	case class == ClassAdmin && !authenticated:
		return Decision{Action: ActionRedirect, Location: rr.UnauthorizedURL}
	default:
		return Decision{Action: ActionPass}
	}
}

// SessionResolver reads the caller's session from a request
type SessionResolver interface {
	Resolve(r *http.Request) (*auth.Session, error)
}

// GateObserver records gate decisions
type GateObserver interface {
	ObserveGateDecision(class, action string)
}

// Gate is the single entry point that classifies requests and redirects
// callers who are on the wrong side of authentication
type Gate struct {
	rules    RouteRules
	sessions SessionResolver
	observer GateObserver
}

// NewGate creates a gate. observer may be nil.
func NewGate(rules RouteRules, sessions SessionResolver, observer GateObserver) *Gate {
	return &Gate{rules: rules, sessions: sessions, observer: observer}
}

// Rules returns the gate's route rules
func (g *Gate) Rules() RouteRules {
	return g.rules
}

// Handler resolves the session, stores it in the request context and applies
// the gate decision. A session that fails to verify counts as unauthenticated.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := g.sessions.Resolve(r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) {
				httputil.LoggerFrom(r).WithError(err).Debug("ignoring invalid session")
			}
			session = nil
		}
		if session != nil {
			r = r.WithContext(auth.WithSession(r.Context(), session))
		}

		class := g.rules.Classify(r.URL.Path)
		decision := g.rules.Decide(class, session != nil)

		switch {
		case decision.Action == ActionPass:
			g.observe(class, "pass")
			next.ServeHTTP(w, r)
		case session == nil && g.rules.IsAPI(r.URL.Path):
			g.observe(class, "unauthorized")
			httputil.WriteAppError(w, r, &httputil.AuthenticationError{Message: "authentication required"})
		default:
			g.observe(class, "redirect")
			http.Redirect(w, r, decision.Location, http.StatusTemporaryRedirect)
		}
	})
}

func (g *Gate) observe(class RouteClass, action string) {
	if g.observer != nil {
		g.observer.ObserveGateDecision(string(class), action)
	}
}
