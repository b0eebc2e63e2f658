package translate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Translate(ctx context.Context, _ string) (Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if s.err != nil {
		return Result{}, s.err
	}
	return Result{Text: s.text, DetectedLang: "en"}, nil
}

func silent() *logging.Logger { return logging.New(nil, "silent") }

func TestChainFallsThroughTimeout(t *testing.T) {
	slow := &stubProvider{name: "slow", text: "too late", delay: time.Second}
	good := &stubProvider{name: "good", text: "你好"}
	never := &stubProvider{name: "never", text: "unused"}

	chain := NewChain([]Provider{slow, good, never}, 20*time.Millisecond, silent())
	res, err := chain.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "你好", res.Text)
	assert.Equal(t, "good", res.Provider)
	assert.Equal(t, "en", res.DetectedLang)

	assert.Equal(t, int32(1), slow.calls.Load())
	assert.Equal(t, int32(0), never.calls.Load())
}

func TestChainSkipsEmptyResults(t *testing.T) {
	empty := &stubProvider{name: "empty", text: "   "}
	broken := &stubProvider{name: "broken", err: errors.New("503")}
	last := &stubProvider{name: "last", text: "ok"}

	res, err := NewChain([]Provider{empty, broken, last}, time.Second, silent()).Translate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "last", res.Provider)
}

func TestChainUnavailable(t *testing.T) {
	chain := NewChain([]Provider{
		&stubProvider{name: "a", err: errors.New("down")},
		&stubProvider{name: "b", text: ""},
	}, time.Second, silent())

	_, err := chain.Translate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewChain(nil, 0, silent()).Translate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = chain.Translate(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDeepL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/translate", r.URL.Path)
		assert.Equal(t, "DeepL-Auth-Key abc:fx", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "hello", r.PostForm.Get("text"))
		assert.Equal(t, "ZH", r.PostForm.Get("target_lang"))
		w.Write([]byte(`{"translations":[{"detected_source_language":"EN","text":"你好"}]}`))
	}))
	defer srv.Close()

	d := NewDeepL("abc:fx", "", srv.Client())
	assert.Equal(t, "https://api-free.deepl.com", d.baseURL)
	d.baseURL = srv.URL

	res, err := d.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "你好", res.Text)
	assert.Equal(t, "EN", res.DetectedLang)

	assert.Equal(t, "https://api.deepl.com", NewDeepL("pro-key", "", nil).baseURL)
}

func TestDeepLErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", 456)
	}))
	defer srv.Close()

	d := NewDeepL("k", "ZH", srv.Client())
	d.baseURL = srv.URL
	_, err := d.Translate(context.Background(), "hello")
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 456, perr.Code)
	assert.Equal(t, "deepl", perr.Provider)
}

func TestMyMemory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get", r.URL.Path)
		assert.Equal(t, "en|zh-CN", r.URL.Query().Get("langpair"))
		assert.Equal(t, "ops@example.com", r.URL.Query().Get("de"))
		w.Write([]byte(`{"responseData":{"translatedText":"你好","detectedSourceLanguage":"en-GB"},"responseStatus":200}`))
	}))
	defer srv.Close()

	m := NewMyMemory("en", "zh-CN", "ops@example.com", srv.Client())
	m.baseURL = srv.URL
	res, err := m.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "你好", res.Text)
	assert.Equal(t, "en-GB", res.DetectedLang)
}

func TestGoogleGtx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_a/single", r.URL.Path)
		assert.Equal(t, "gtx", r.URL.Query().Get("client"))
		assert.Equal(t, "zh-CN", r.URL.Query().Get("tl"))
		w.Write([]byte(`[[["你好。","Hello.",null,null,10],["世界","world",null,null,3]],null,"en",null,null,null,1]`))
	}))
	defer srv.Close()

	g := NewGoogle("zh-CN", srv.Client())
	g.baseURL = srv.URL
	res, err := g.Translate(context.Background(), "Hello. world")
	require.NoError(t, err)
	assert.Equal(t, "你好。世界", res.Text)
	assert.Equal(t, "en", res.DetectedLang)
}

func TestGoogleGtxMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	g := NewGoogle("zh-CN", srv.Client())
	g.baseURL = srv.URL
	_, err := g.Translate(context.Background(), "x")
	assert.Error(t, err)
}

func TestGoogleCloudNeedsCredentials(t *testing.T) {
	_, err := NewGoogleCloud(context.Background(), "", "", "zh-CN")
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Defaults().Translate
	cfg.DeepL.AuthKey = ""
	chain, err := FromConfig(context.Background(), cfg, silent())
	require.NoError(t, err)
	assert.Equal(t, []string{"mymemory", "google"}, chain.Providers())

	cfg.DeepL.AuthKey = "k"
	cfg.Providers = []string{"google", "deepl", "googlecloud"}
	chain, err = FromConfig(context.Background(), cfg, silent())
	require.NoError(t, err)
	assert.Equal(t, []string{"google", "deepl"}, chain.Providers())

	cfg.Providers = []string{"bing"}
	_, err = FromConfig(context.Background(), cfg, silent())
	assert.Error(t, err)
}
