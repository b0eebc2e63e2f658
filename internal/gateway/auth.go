package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/ratelimit"
	"github.com/soyeahso/supportim/internal/store"
)

// Credential carriers. Headers win over query parameters.
const (
	headerToken = "X-IM-Token"
	headerAgent = "X-IM-Agent"
	queryToken  = "token"
	queryAgent  = "agent"
)

// authenticator decides roles for realtime connections and guards the HTTP API.
type authenticator struct {
	secret     string
	production bool
	tokens     store.AccessStore
}

func credential(r *http.Request, header, query string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(query))
}

// connectionRole authenticates a WebSocket upgrade request.
//
// An agent credential must be an issued token, or the shared secret outside
// production. Without an agent credential the connection is a customer, and
// must carry the shared secret when one is configured.
func (a *authenticator) connectionRole(ctx context.Context, r *http.Request) (domain.Role, error) {
	token := credential(r, headerToken, queryToken)

	if agent := credential(r, headerAgent, queryAgent); agent != "" {
		ok, err := a.tokens.ValidAgentToken(ctx, agent)
		if err != nil {
			return "", fmt.Errorf("checking agent token: %w", err)
		}
		if ok {
			return domain.RoleAgent, nil
		}
		if a.secret != "" && !a.production && (safeEqual(agent, a.secret) || safeEqual(token, a.secret)) {
			return domain.RoleAgent, nil
		}
		return "", ErrUnauthorized
	}

	if a.secret != "" && !safeEqual(token, a.secret) {
		return "", ErrUnauthorized
	}
	return domain.RoleCustomer, nil
}

// api guards agent-facing HTTP routes: open without a shared secret,
// otherwise the secret or an issued agent token.
func (a *authenticator) api(ctx context.Context, r *http.Request) error {
	if a.secret == "" {
		return nil
	}
	token := credential(r, headerToken, queryToken)
	if token != "" && safeEqual(token, a.secret) {
		return nil
	}
	for _, cand := range []string{credential(r, headerAgent, queryAgent), token} {
		if cand == "" {
			continue
		}
		ok, err := a.tokens.ValidAgentToken(ctx, cand)
		if err != nil {
			return fmt.Errorf("checking agent token: %w", err)
		}
		if ok {
			return nil
		}
	}
	return ErrUnauthorized
}

// admin guards access management routes. The shared secret is required.
func (a *authenticator) admin(r *http.Request) error {
	if a.secret == "" {
		return ErrUnauthorized
	}
	if !safeEqual(credential(r, headerToken, queryToken), a.secret) {
		return ErrUnauthorized
	}
	return nil
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// clientIP returns the first X-Forwarded-For entry when proxies are
// trusted, else the host part of the remote address.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			first, _, _ := strings.Cut(xf, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const (
	authFailureWindow = 5 * time.Minute
	authMaxFailures   = 10
)

// authGuard locks out an IP after too many failed credentials within a
// window. Successful attempts are not counted.
type authGuard struct {
	failures *ratelimit.Limiter
}

func newAuthGuard(now func() time.Time) *authGuard {
	return &authGuard{failures: ratelimit.New(authMaxFailures, authFailureWindow, ratelimit.WithClock(now))}
}

func (g *authGuard) allow(ip string) bool { return !g.failures.Exhausted(ip) }

func (g *authGuard) recordFailure(ip string) { g.failures.Allow(ip) }

func (g *authGuard) run(ctx context.Context) { g.failures.Run(ctx, time.Minute) }
