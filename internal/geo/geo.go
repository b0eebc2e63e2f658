// Package geo resolves a client IP to a country name.
package geo

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
)

// Local is reported for loopback addresses.
const Local = "local"

// Resolver maps an IP to a country. An empty result means unknown.
type Resolver interface {
	Country(ctx context.Context, ip string) string
}

// Nop never resolves anything.
type Nop struct{}

// Country implements Resolver.
func (Nop) Country(context.Context, string) string { return "" }

// HTTPResolver queries a plain-text country endpoint such as ipapi.co.
type HTTPResolver struct {
	endpoint string // %s is replaced with the escaped IP
	timeout  time.Duration
	client   *http.Client
	log      *logging.Logger
}

// New returns the resolver configured by cfg.
func New(cfg config.GeoConfig, log *logging.Logger) Resolver {
	if cfg.Provider == "none" || cfg.Endpoint == "" {
		return Nop{}
	}
	return NewHTTPResolver(cfg.Endpoint, cfg.Timeout, &http.Client{}, log)
}

// NewHTTPResolver creates a resolver for endpoint.
func NewHTTPResolver(endpoint string, timeout time.Duration, client *http.Client, log *logging.Logger) *HTTPResolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPResolver{endpoint: endpoint, timeout: timeout, client: client, log: log.Sub("geo")}
}

// Country implements Resolver. Failures and timeouts yield "".
func (r *HTTPResolver) Country(ctx context.Context, ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		return Local
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	country, err := r.lookup(ctx, ip)
	if err != nil {
		r.log.Debug().Err(err).Str("ip", ip).Msg("country lookup failed")
		return ""
	}
	return country
}

func (r *HTTPResolver) lookup(ctx context.Context, ip string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(r.endpoint, url.PathEscape(ip)), nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	country := strings.TrimSpace(string(body))
	if strings.Contains(strings.ToLower(country), "undefined") {
		return "", nil
	}
	return country, nil
}
