// Package gate decides, per navigation, whether a request may proceed or
// must be redirected based on the route class and the session state.
package gate

import (
	"net/url"
	"strings"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/domain/auth"
)

// Action is the outcome of a gate decision
type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Decision is an Action plus the redirect target when Action is Redirect
type Decision struct {
	Action   Action
	Location string
}

// Class is a route class
type Class int

const (
	ClassPublic Class = iota
	ClassProtected
	ClassAuthEntry
)

// Rules holds the route classes and redirect targets
type Rules struct {
	protected   []string
	authEntry   []string
	loginPath   string
	pendingPath string
	homePath    string
}

// NewRules builds Rules from the routes config, filling defaults
func NewRules(cfg config.RoutesConfig) *Rules {
	cfg = cfg.WithDefaults()
	return &Rules{
		protected:   cfg.Protected,
		authEntry:   cfg.AuthEntry,
		loginPath:   cfg.LoginPath,
		pendingPath: cfg.PendingPath,
		homePath:    cfg.HomePath,
	}
}

// matchPrefix matches whole path segments, so /dashboard matches
// /dashboard and /dashboard/x but not /dashboards.
func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Classify returns the route class of path
func (r *Rules) Classify(path string) Class {
	for _, p := range r.protected {
		if matchPrefix(path, p) {
			return ClassProtected
		}
	}
	for _, p := range r.authEntry {
		if matchPrefix(path, p) {
			return ClassAuthEntry
		}
	}
	return ClassPublic
}

// Decide applies the gate table. A nil session means no usable token,
// which includes tokens past their inactivity deadline.
func (r *Rules) Decide(path string, session *auth.SessionView) Decision {
	switch r.Classify(path) {
	case ClassProtected:
		if session == nil {
			return Decision{Action: Redirect, Location: r.loginRedirect(path)}
		}
		if !session.IsApproved() && !matchPrefix(path, r.pendingPath) {
			return Decision{Action: Redirect, Location: r.pendingPath}
		}
		return Decision{Action: Allow}
	case ClassAuthEntry:
		if session != nil {
			return Decision{Action: Redirect, Location: r.homePath}
		}
		return Decision{Action: Allow}
	default:
		return Decision{Action: Allow}
	}
}

var callbackEscaper = strings.NewReplacer("&", "%26", "+", "%2B", "=", "%3D")

// loginRedirect keeps slashes readable (/login?callbackUrl=/dashboard) while
// escaping what would end the query value.
func (r *Rules) loginRedirect(path string) string {
	callback := callbackEscaper.Replace((&url.URL{Path: path}).EscapedPath())
	return r.loginPath + "?callbackUrl=" + callback
}
