package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 1 << 20

// doJSON performs req and decodes a 200 response into out.
func doJSON(client *http.Client, req *http.Request, provider string, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return &ProviderError{Provider: provider, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ProviderError{Provider: provider, Message: "reading response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: provider, Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ProviderError{Provider: provider, Message: fmt.Sprintf("parsing response: %v", err)}
	}
	return nil
}

func getJSON(ctx context.Context, client *http.Client, url, provider string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProviderError{Provider: provider, Message: err.Error()}
	}
	return doJSON(client, req, provider, out)
}
