package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/8.8.8.8/country_name/":
			w.Write([]byte("United States\n"))
		case "/10.0.0.1/country_name/":
			w.Write([]byte("Undefined"))
		case "/1.2.3.4/country_name/":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("Australia"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := NewHTTPResolver(srv.URL+"/%s/country_name/", 50*time.Millisecond, srv.Client(), logging.New(nil, "silent"))
	ctx := context.Background()

	assert.Equal(t, "United States", r.Country(ctx, "8.8.8.8"))
	assert.Equal(t, "", r.Country(ctx, "10.0.0.1"))
	assert.Equal(t, "", r.Country(ctx, "9.9.9.9"))
	assert.Equal(t, "", r.Country(ctx, "1.2.3.4"), "timeout yields unknown")
	assert.Equal(t, Local, r.Country(ctx, "127.0.0.1"))
	assert.Equal(t, Local, r.Country(ctx, "::1"))
	assert.Equal(t, "", r.Country(ctx, ""))
}

func TestNewSelectsResolver(t *testing.T) {
	log := logging.New(nil, "silent")
	assert.IsType(t, Nop{}, New(config.GeoConfig{Provider: "none"}, log))
	assert.IsType(t, &HTTPResolver{}, New(config.Defaults().Geo, log))
	assert.Equal(t, "", Nop{}.Country(context.Background(), "8.8.8.8"))
}
