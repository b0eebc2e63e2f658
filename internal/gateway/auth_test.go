package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("abc", "abc"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("abc", "abd"))
	assert.False(t, safeEqual("abc", "abcd"))
	assert.False(t, safeEqual("", "x"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4242"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "10.0.0.5", clientIP(r, false))
	assert.Equal(t, "203.0.113.9", clientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.5", clientIP(r, true))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(r, false))
}

func TestCredentialPrefersHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	assert.Equal(t, "query", credential(r, headerToken, queryToken))
	r.Header.Set(headerToken, " header ")
	assert.Equal(t, "header", credential(r, headerToken, queryToken))
}

func newAuthenticator(t *testing.T, secret string, production bool) (authenticator, *store.Memory) {
	t.Helper()
	st := store.NewMemory("", 0, logging.New(nil, "silent"))
	t.Cleanup(func() { st.Close() })
	return authenticator{secret: secret, production: production, tokens: st}, st
}

func TestConnectionRole(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name       string
		secret     string
		production bool
		target     string
		header     http.Header
		want       domain.Role
		wantErr    bool
	}{
		{name: "open customer", target: "/ws", want: domain.RoleCustomer},
		{name: "open agent without token", target: "/ws?agent=x", wantErr: true},
		{name: "customer with secret", secret: "s", target: "/ws?token=s", want: domain.RoleCustomer},
		{name: "customer missing secret", secret: "s", target: "/ws", wantErr: true},
		{name: "agent secret in dev", secret: "s", target: "/ws?agent=s", want: domain.RoleAgent},
		{name: "agent flag with token header", secret: "s", target: "/ws?agent=1", header: http.Header{headerToken: {"s"}}, want: domain.RoleAgent},
		{name: "agent secret in production", secret: "s", production: true, target: "/ws?agent=s", wantErr: true},
		{name: "agent wrong secret", secret: "s", target: "/ws?agent=nope", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newAuthenticator(t, tc.secret, tc.production)
			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.header {
				r.Header[k] = v
			}
			role, err := a.connectionRole(ctx, r)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnauthorized)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, role)
		})
	}
}

func TestConnectionRoleIssuedToken(t *testing.T) {
	ctx := context.Background()
	a, st := newAuthenticator(t, "s", true)
	tok, err := st.CreateAgentToken(ctx, "dana")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set(headerAgent, tok.Token)
	role, err := a.connectionRole(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgent, role)

	require.NoError(t, st.RevokeAgentToken(ctx, tok.ID))
	_, err = a.connectionRole(ctx, r)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAPIAndAdminGuards(t *testing.T) {
	ctx := context.Background()

	open, _ := newAuthenticator(t, "", false)
	r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	assert.NoError(t, open.api(ctx, r))
	assert.ErrorIs(t, open.admin(r), ErrUnauthorized)

	a, st := newAuthenticator(t, "s", false)
	assert.ErrorIs(t, a.api(ctx, r), ErrUnauthorized)

	withSecret := httptest.NewRequest(http.MethodGet, "/api/conversations?token=s", nil)
	assert.NoError(t, a.api(ctx, withSecret))
	assert.NoError(t, a.admin(withSecret))

	tok, err := st.CreateAgentToken(ctx, "eve")
	require.NoError(t, err)
	withAgent := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	withAgent.Header.Set(headerAgent, tok.Token)
	assert.NoError(t, a.api(ctx, withAgent))
	assert.ErrorIs(t, a.admin(withAgent), ErrUnauthorized, "agent tokens cannot manage access")
}

func TestAuthGuard(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	g := newAuthGuard(func() time.Time { return now })

	for i := range authMaxFailures {
		require.True(t, g.allow("1.2.3.4"), "attempt %d", i)
		g.recordFailure("1.2.3.4")
	}
	assert.False(t, g.allow("1.2.3.4"))
	assert.True(t, g.allow("5.6.7.8"))

	now = now.Add(authFailureWindow + time.Second)
	assert.True(t, g.allow("1.2.3.4"))
	assert.Equal(t, 1, g.failures.Sweep())
}
