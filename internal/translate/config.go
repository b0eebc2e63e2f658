package translate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
)

// FromConfig builds the chain in the configured provider order. Providers
// that lack credentials are left out with a warning.
func FromConfig(ctx context.Context, cfg config.TranslateConfig, log *logging.Logger) (*Chain, error) {
	client := &http.Client{}
	names := cfg.Providers
	if len(names) == 0 {
		names = config.DefaultProviders
	}

	var providers []Provider
	for _, name := range names {
		switch name {
		case "deepl":
			if cfg.DeepL.AuthKey == "" {
				log.Warn().Str("provider", name).Msg("no DeepL auth key, provider skipped")
				continue
			}
			providers = append(providers, NewDeepL(cfg.DeepL.AuthKey, cfg.DeepL.Target, client))
		case "mymemory":
			providers = append(providers, NewMyMemory(cfg.Source, cfg.Target, cfg.MyMemory.Email, client))
		case "google":
			providers = append(providers, NewGoogle(cfg.Target, client))
		case "googlecloud":
			gc, err := NewGoogleCloud(ctx, cfg.GoogleCloud.APIKey, cfg.GoogleCloud.AccessToken, cfg.Target)
			if err != nil {
				log.Warn().Err(err).Str("provider", name).Msg("provider skipped")
				continue
			}
			providers = append(providers, gc)
		default:
			return nil, fmt.Errorf("unknown translate provider %q", name)
		}
	}

	chain := NewChain(providers, cfg.Timeout, log)
	log.Sub("translate").Info().Strs("providers", chain.Providers()).Msg("translation chain ready")
	return chain, nil
}
