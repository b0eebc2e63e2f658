package translate

import (
	"context"
	"errors"
	"fmt"
	"html"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	translatev2 "google.golang.org/api/translate/v2"
)

// GoogleCloud calls Cloud Translation v2 with an API key or OAuth2 token.
type GoogleCloud struct {
	svc    *translatev2.Service
	target string
}

// NewGoogleCloud creates the provider. Exactly one of apiKey or accessToken
// is normally set; apiKey wins when both are present.
func NewGoogleCloud(ctx context.Context, apiKey, accessToken, target string, extra ...option.ClientOption) (*GoogleCloud, error) {
	var opts []option.ClientOption
	switch {
	case apiKey != "":
		opts = append(opts, option.WithAPIKey(apiKey))
	case accessToken != "":
		opts = append(opts, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})))
	default:
		return nil, errors.New("googlecloud: apiKey or accessToken required")
	}
	opts = append(opts, extra...)

	svc, err := translatev2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("googlecloud: creating service: %w", err)
	}
	return &GoogleCloud{svc: svc, target: target}, nil
}

// Name implements Provider.
func (g *GoogleCloud) Name() string { return "googlecloud" }

// Translate implements Provider.
func (g *GoogleCloud) Translate(ctx context.Context, text string) (Result, error) {
	resp, err := g.svc.Translations.List([]string{text}, g.target).Format("text").Context(ctx).Do()
	if err != nil {
		return Result{}, &ProviderError{Provider: g.Name(), Message: err.Error()}
	}
	if len(resp.Translations) == 0 {
		return Result{}, &ProviderError{Provider: g.Name(), Message: "no translations"}
	}
	t := resp.Translations[0]
	return Result{Text: html.UnescapeString(t.TranslatedText), DetectedLang: t.DetectedSourceLanguage}, nil
}
