package geocode_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Berektassuly/terra-vision-ai/pkg/geocode"
	"github.com/Berektassuly/terra-vision-ai/pkg/imagery/httpclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "terravision-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestLookup(t *testing.T) {
	srv := newServer(t, `[{
		"place_id": 297374918,
		"display_name": "Iowa, United States",
		"boundingbox": ["40.3755640", "43.5011961", "-96.6397170", "-90.1400609"]
	}]`)

	c := geocode.New(srv.URL, httpclient.WithUserAgent("terravision-test/1.0"))
	place, err := c.Lookup(context.Background(), "Iowa")
	require.NoError(t, err)
	require.NotNil(t, place)

	assert.Equal(t, "Iowa, United States", place.DisplayName)
	assert.Equal(t, "297374918", place.PlaceID)
	assert.InDelta(t, -96.6397170, place.BBox.MinLon(), 1e-9)
	assert.InDelta(t, 40.3755640, place.BBox.MinLat(), 1e-9)
	assert.InDelta(t, -90.1400609, place.BBox.MaxLon(), 1e-9)
	assert.InDelta(t, 43.5011961, place.BBox.MaxLat(), 1e-9)
}

func TestLookup_NormalizesInvertedPairs(t *testing.T) {
	boxes := []string{
		`["43.5", "40.4", "-96.6", "-90.1"]`,
		`["40.4", "43.5", "-90.1", "-96.6"]`,
		`["43.5", "40.4", "-90.1", "-96.6"]`,
	}

	for _, raw := range boxes {
		srv := newServer(t, `[{"place_id":"7","display_name":"x","boundingbox":`+raw+`}]`)

		place, err := geocode.New(srv.URL, httpclient.WithUserAgent("terravision-test/1.0")).
			Lookup(context.Background(), "x")
		require.NoError(t, err, raw)
		require.NotNil(t, place)

		assert.LessOrEqual(t, place.BBox.MinLon(), place.BBox.MaxLon(), raw)
		assert.LessOrEqual(t, place.BBox.MinLat(), place.BBox.MaxLat(), raw)
		assert.NoError(t, place.BBox.Validate())
		assert.Equal(t, "7", place.PlaceID)
	}
}

func TestLookup_NotFound(t *testing.T) {
	srv := newServer(t, `[]`)

	place, err := geocode.New(srv.URL, httpclient.WithUserAgent("terravision-test/1.0")).
		Lookup(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, place)
}

func TestLookup_MalformedBBox(t *testing.T) {
	srv := newServer(t, `[{"place_id":1,"display_name":"x","boundingbox":["1","2","3"]}]`)

	_, err := geocode.New(srv.URL, httpclient.WithUserAgent("terravision-test/1.0")).
		Lookup(context.Background(), "x")

	var ue *httpclient.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "geocoder", ue.Service)
}

func TestLookup_EmptyQuery(t *testing.T) {
	_, err := geocode.New("http://127.0.0.1:0").Lookup(context.Background(), "  ")
	assert.Error(t, err)
}

func TestLookup_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := geocode.New(srv.URL).Lookup(context.Background(), "Iowa")

	var ue *httpclient.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusTooManyRequests, ue.Status)
}
