package translator

import (
	"log/slog"
	"net/http"
	"strings"
)

// Backend names accepted in Config.Order.
const (
	BackendGoogleCloud    = "google-cloud"
	BackendMyMemory       = "mymemory"
	BackendLibreTranslate = "libretranslate"
	BackendGoogleFree     = "google-free"
	BackendMock           = "mock"
)

// DefaultOrder is the chain used when Config.Order is empty. google-cloud
// is skipped unless an API key is configured.
var DefaultOrder = []string{BackendGoogleCloud, BackendMyMemory, BackendLibreTranslate, BackendGoogleFree}

// Config selects and configures translation backends.
type Config struct {
	Order []string

	GoogleCloudURL    string
	GoogleAPIKey      string
	MyMemoryURL       string
	MyMemoryEmail     string
	LibreTranslateURL string
	LibreAPIKey       string
	GoogleFreeURL     string

	// EnableMock appends the labelling mock as a last resort.
	EnableMock bool
}

// FromConfig creates a Translator whose chain is assembled from cfg on first use.
func FromConfig(cfg Config, client *http.Client) *Translator {
	return New(func() []Backend { return buildChain(cfg, client) })
}

func buildChain(cfg Config, client *http.Client) []Backend {
	order := cfg.Order
	if len(order) == 0 {
		order = DefaultOrder
	}

	var chain []Backend
	seen := make(map[string]bool)
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case BackendGoogleCloud:
			if cfg.GoogleAPIKey == "" {
				continue
			}
			chain = append(chain, &GoogleCloud{BaseURL: or(cfg.GoogleCloudURL, DefaultGoogleCloudURL), APIKey: cfg.GoogleAPIKey, Client: client})
		case BackendMyMemory:
			chain = append(chain, &MyMemory{BaseURL: or(cfg.MyMemoryURL, DefaultMyMemoryURL), Email: cfg.MyMemoryEmail, Client: client})
		case BackendLibreTranslate:
			chain = append(chain, &LibreTranslate{BaseURL: or(cfg.LibreTranslateURL, DefaultLibreTranslateURL), APIKey: cfg.LibreAPIKey, Client: client})
		case BackendGoogleFree:
			chain = append(chain, &GoogleFree{BaseURL: or(cfg.GoogleFreeURL, DefaultGoogleFreeURL), Client: client})
		case BackendMock:
			chain = append(chain, Mock{})
		default:
			slog.Warn("unknown translation backend ignored", "backend", name)
		}
	}
	if cfg.EnableMock && !seen[BackendMock] {
		chain = append(chain, Mock{})
	}

	slog.Debug("translation chain ready", "backends", len(chain))
	return chain
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
