// Package translate resolves text translations through an ordered chain of
// external providers.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/supportim/internal/logging"
)

// ErrUnavailable is returned when every provider in the chain failed.
var ErrUnavailable = errors.New("translation unavailable")

// Result is a successful translation.
type Result struct {
	Text         string `json:"translated"`
	DetectedLang string `json:"detected_lang"`
	Provider     string `json:"provider"`
}

// Provider translates text with one external service.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text string) (Result, error)
}

// ProviderError is a failed attempt against one provider.
type ProviderError struct {
	Provider string
	Code     int // HTTP status, 0 when the request never completed
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Chain tries providers in order and returns the first non-empty result.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	log       *logging.Logger
}

// NewChain creates a chain. Each attempt runs under its own timeout.
func NewChain(providers []Provider, timeout time.Duration, log *logging.Logger) *Chain {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &Chain{providers: providers, timeout: timeout, log: log.Sub("translate")}
}

// Providers returns the provider names in attempt order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Translate runs the chain. Later providers are never called once one
// succeeds. When all fail the error wraps ErrUnavailable.
func (c *Chain) Translate(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: empty text", ErrUnavailable)
	}

	var errs []error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := c.attempt(ctx, p, text)
		if err == nil {
			return res, nil
		}
		c.log.Debug().Str("provider", p.Name()).Err(err).Msg("provider failed, trying next")
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Result{}, fmt.Errorf("%w: no providers configured", ErrUnavailable)
	}
	return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, p Provider, text string) (Result, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := p.Translate(actx, text)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return Result{}, &ProviderError{Provider: p.Name(), Message: "empty translation"}
	}
	res.Provider = p.Name()
	c.log.Debug().Str("provider", p.Name()).Dur("took", time.Since(start)).Msg("translated")
	return res, nil
}
