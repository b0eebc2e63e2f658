package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Google calls the keyless translate_a endpoint used by browser widgets.
type Google struct {
	target  string
	baseURL string
	client  *http.Client
}

// NewGoogle creates a provider for the public gtx endpoint.
func NewGoogle(target string, client *http.Client) *Google {
	return &Google{target: target, baseURL: "https://translate.googleapis.com", client: client}
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Translate implements Provider. The response is a nested array:
// [[["translated","source",...],...],null,"detected",...].
func (g *Google) Translate(ctx context.Context, text string) (Result, error) {
	q := url.Values{
		"client": {"gtx"},
		"sl":     {"auto"},
		"tl":     {g.target},
		"dt":     {"t"},
		"q":      {text},
	}
	var out []json.RawMessage
	if err := getJSON(ctx, g.client, g.baseURL+"/translate_a/single?"+q.Encode(), g.Name(), &out); err != nil {
		return Result{}, err
	}
	if len(out) == 0 {
		return Result{}, &ProviderError{Provider: g.Name(), Message: "empty response"}
	}

	var segments [][]any
	if err := json.Unmarshal(out[0], &segments); err != nil {
		return Result{}, &ProviderError{Provider: g.Name(), Message: "unexpected response shape"}
	}
	var b strings.Builder
	for _, seg := range segments {
		if len(seg) > 0 {
			if s, ok := seg[0].(string); ok {
				b.WriteString(s)
			}
		}
	}

	var detected string
	if len(out) > 2 {
		_ = json.Unmarshal(out[2], &detected)
	}
	return Result{Text: b.String(), DetectedLang: detected}, nil
}
