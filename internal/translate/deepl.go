package translate

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// DeepL calls the DeepL v2 API.
type DeepL struct {
	authKey string
	target  string
	baseURL string
	client  *http.Client
}

// NewDeepL creates a DeepL provider. Keys ending in ":fx" use the free API host.
func NewDeepL(authKey, target string, client *http.Client) *DeepL {
	base := "https://api.deepl.com"
	if strings.HasSuffix(strings.ToLower(authKey), ":fx") {
		base = "https://api-free.deepl.com"
	}
	if target == "" {
		target = "ZH"
	}
	return &DeepL{authKey: authKey, target: target, baseURL: base, client: client}
}

// Name implements Provider.
func (d *DeepL) Name() string { return "deepl" }

type deeplResponse struct {
	Translations []struct {
		Text                   string `json:"text"`
		DetectedSourceLanguage string `json:"detected_source_language"`
	} `json:"translations"`
}

// Translate implements Provider.
func (d *DeepL) Translate(ctx context.Context, text string) (Result, error) {
	if d.authKey == "" {
		return Result{}, &ProviderError{Provider: d.Name(), Message: "no auth key"}
	}
	form := url.Values{"text": {text}, "target_lang": {d.target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.authKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out deeplResponse
	if err := doJSON(d.client, req, d.Name(), &out); err != nil {
		return Result{}, err
	}
	if len(out.Translations) == 0 {
		return Result{}, &ProviderError{Provider: d.Name(), Message: "no translations"}
	}
	t := out.Translations[0]
	return Result{Text: t.Text, DetectedLang: t.DetectedSourceLanguage}, nil
}
