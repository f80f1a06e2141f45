package translator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Default public endpoints.
const (
	DefaultMyMemoryURL       = "https://api.mymemory.translated.net"
	DefaultLibreTranslateURL = "https://libretranslate.de"
	DefaultGoogleFreeURL     = "https://translate.googleapis.com"
	DefaultGoogleCloudURL    = "https://translation.googleapis.com"
)

// ConfidenceGoogleCloud is reported by the paid Google Cloud backend.
const ConfidenceGoogleCloud = 0.95

func newHTTPClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req)
}

func get(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return do(client, req)
}

// --- MyMemory ---

// MyMemory uses the free MyMemory translation memory API.
type MyMemory struct {
	BaseURL string
	Email   string // raises the anonymous daily quota when set
	Client  *http.Client
}

func (m *MyMemory) Name() string { return "mymemory" }

func (m *MyMemory) Translate(ctx context.Context, text, source, target string) (string, float64, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("langpair", source+"|"+target)
	if m.Email != "" {
		q.Set("de", m.Email)
	}
	body, err := get(ctx, newHTTPClient(m.Client), strings.TrimRight(m.BaseURL, "/")+"/get?"+q.Encode())
	if err != nil {
		return "", 0, err
	}

	if status := gjson.GetBytes(body, "responseStatus").Int(); status != http.StatusOK {
		return "", 0, fmt.Errorf("responseStatus %d: %s", status, gjson.GetBytes(body, "responseDetails").String())
	}
	out := gjson.GetBytes(body, "responseData.translatedText").String()
	conf := gjson.GetBytes(body, "responseData.match").Float()
	return out, conf, nil
}

// --- LibreTranslate ---

// LibreTranslate uses a LibreTranslate instance.
type LibreTranslate struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (l *LibreTranslate) Name() string { return "libretranslate" }

func (l *LibreTranslate) Translate(ctx context.Context, text, source, target string) (string, float64, error) {
	payload := []byte(`{"format":"text"}`)
	var err error
	for _, kv := range [][2]string{{"q", text}, {"source", BaseCode(source)}, {"target", BaseCode(target)}, {"api_key", l.APIKey}} {
		if kv[1] == "" {
			continue
		}
		if payload, err = sjson.SetBytes(payload, kv[0], kv[1]); err != nil {
			return "", 0, fmt.Errorf("marshal request: %w", err)
		}
	}

	body, err := postJSON(ctx, newHTTPClient(l.Client), strings.TrimRight(l.BaseURL, "/")+"/translate", payload)
	if err != nil {
		return "", 0, err
	}
	if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		return "", 0, fmt.Errorf("libretranslate: %s", msg.String())
	}
	return gjson.GetBytes(body, "translatedText").String(), ConfidenceBackend, nil
}

// --- Google (free web endpoint) ---

// GoogleFree uses the unauthenticated translate_a/single endpoint.
type GoogleFree struct {
	BaseURL string
	Client  *http.Client
}

func (g *GoogleFree) Name() string { return "google-free" }

func (g *GoogleFree) Translate(ctx context.Context, text, source, target string) (string, float64, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)
	body, err := get(ctx, newHTTPClient(g.Client), strings.TrimRight(g.BaseURL, "/")+"/translate_a/single?"+q.Encode())
	if err != nil {
		return "", 0, err
	}

	// Shape: [[["segment","source",...],...],...]; one entry per sentence.
	var sb strings.Builder
	for _, seg := range gjson.GetBytes(body, "0.#.0").Array() {
		sb.WriteString(seg.String())
	}
	return sb.String(), ConfidenceBackend, nil
}

// --- Google Cloud Translation v2 ---

// GoogleCloud uses the paid Cloud Translation v2 API.
type GoogleCloud struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func (g *GoogleCloud) Name() string { return "google-cloud" }

func (g *GoogleCloud) Translate(ctx context.Context, text, source, target string) (string, float64, error) {
	payload := []byte(`{"format":"text"}`)
	var err error
	for _, kv := range [][2]string{{"q", text}, {"source", source}, {"target", target}} {
		if payload, err = sjson.SetBytes(payload, kv[0], kv[1]); err != nil {
			return "", 0, fmt.Errorf("marshal request: %w", err)
		}
	}

	endpoint := strings.TrimRight(g.BaseURL, "/") + "/language/translate/v2?key=" + url.QueryEscape(g.APIKey)
	body, err := postJSON(ctx, newHTTPClient(g.Client), endpoint, payload)
	if err != nil {
		return "", 0, err
	}
	return gjson.GetBytes(body, "data.translations.0.translatedText").String(), ConfidenceGoogleCloud, nil
}

// --- Mock ---

// Mock labels text with the target language instead of translating it.
// It never fails, so it belongs at the end of a chain.
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Translate(_ context.Context, text, _, target string) (string, float64, error) {
	return fmt.Sprintf("[%s] %s", target, text), ConfidenceMock, nil
}
