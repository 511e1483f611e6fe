package access

import (
	"context"
	"strings"

	"hookrelay/internal/config"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/ratelimit"
)

type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonBadOrigin     Reason = "bad_origin"
	ReasonBadReferer    Reason = "bad_referer"
	ReasonBadCredential Reason = "bad_credential"
	ReasonRateLimited   Reason = "rate_limited"
)

// RequestMeta is the transport-independent view of a request the gate needs.
type RequestMeta struct {
	Origin    string
	Referer   string
	APIKey    string
	ClientKey string
}

// Checks selects which gate rules a transport applies.
type Checks struct {
	RateLimit  bool
	Origin     bool
	Referer    bool
	Credential bool
}

type Decision struct {
	Allowed bool
	Reason  Reason
	// AllowOrigin is the exact origin to echo in Access-Control-Allow-Origin, or "".
	AllowOrigin string
	RateLimit   *ratelimit.Result
}

func Allow() Decision {
	return Decision{Allowed: true, Reason: ReasonOK}
}

func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

type Gate struct {
	origins       map[string]struct{}
	referers      []string
	secret        string
	requireAPIKey bool
	limiter       *ratelimit.Limiter
}

// NewGate builds a gate from static configuration. limiter may be nil, which
// disables rate limiting.
func NewGate(cfg config.AccessConfig, limiter *ratelimit.Limiter) *Gate {
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Gate{
		origins:       origins,
		referers:      append([]string(nil), cfg.AllowedReferers...),
		secret:        cfg.SharedSecret,
		requireAPIKey: cfg.RequireAPIKey,
		limiter:       limiter,
	}
}

// RequiresAPIKey reports whether Credential checks are enforced.
func (g *Gate) RequiresAPIKey() bool {
	return g.requireAPIKey
}

// Evaluate runs the selected checks. The rate limit runs first so a limited
// client learns nothing about its credentials.
func (g *Gate) Evaluate(ctx context.Context, meta RequestMeta, checks Checks) Decision {
	decision := g.evaluate(ctx, meta, checks)
	if !decision.Allowed {
		metrics.IncAccessDenied(string(decision.Reason))
	}
	return decision
}

func (g *Gate) evaluate(ctx context.Context, meta RequestMeta, checks Checks) Decision {
	var rl *ratelimit.Result
	if checks.RateLimit && g.limiter != nil {
		res := g.limiter.Allow(ctx, meta.ClientKey)
		rl = &res
		if !res.Allowed {
			d := Deny(ReasonRateLimited)
			d.RateLimit = rl
			return d
		}
	}

	decision := Allow()
	decision.RateLimit = rl

	if checks.Origin {
		allowOrigin, ok := g.CheckOrigin(meta.Origin)
		if !ok {
			return withRateLimit(Deny(ReasonBadOrigin), rl)
		}
		decision.AllowOrigin = allowOrigin
	}

	if checks.Credential && g.requireAPIKey && !g.CheckCredential(meta.APIKey) {
		return withRateLimit(Deny(ReasonBadCredential), rl)
	}

	if checks.Referer && !g.CheckReferer(meta.Referer) {
		return withRateLimit(Deny(ReasonBadReferer), rl)
	}

	return decision
}

func withRateLimit(d Decision, rl *ratelimit.Result) Decision {
	d.RateLimit = rl
	return d
}

// CheckOrigin returns the origin to echo and whether the request passes.
// A missing Origin header or an empty allowlist passes without an echo.
func (g *Gate) CheckOrigin(origin string) (string, bool) {
	if origin == "" || len(g.origins) == 0 {
		return "", true
	}
	if _, ok := g.origins[origin]; ok {
		return origin, true
	}
	return "", false
}

// CheckReferer prefix-matches the referer against the allowlist. A missing
// referer passes.
func (g *Gate) CheckReferer(referer string) bool {
	if referer == "" || len(g.referers) == 0 {
		return true
	}
	for _, prefix := range g.referers {
		if strings.HasPrefix(referer, prefix) {
			return true
		}
	}
	return false
}

// CheckCredential is plain string equality. No configured secret means
// nothing matches.
func (g *Gate) CheckCredential(apiKey string) bool {
	if g.secret == "" {
		return false
	}
	return apiKey == g.secret
}
