package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comunihub/marketplace-client/pkg/logger"
)

const cityDirectoryJSON = `[
	{"id":2611606,"nome":"Recife","microrregiao":{"mesorregiao":{"UF":{"sigla":"PE","nome":"Pernambuco"}}}},
	{"id":3509502,"nome":"Campinas","microrregiao":{"mesorregiao":{"UF":{"sigla":"SP","nome":"São Paulo"}}}},
	{"id":5002704,"nome":"Campo Grande","microrregiao":{"mesorregiao":{"UF":{"sigla":"MS","nome":"Mato Grosso do Sul"}}}}
]`

func cityDirectory(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Write([]byte(cityDirectoryJSON))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookupFiltersDirectoryByName(t *testing.T) {
	srv := cityDirectory(t, nil)
	lookup := NewCityLookup(srv.URL, time.Millisecond, logger.NewNop())
	defer lookup.Stop()

	cities, err := lookup.Lookup(context.Background(), "CAMP")
	require.NoError(t, err)
	require.Len(t, cities, 2)
	assert.Equal(t, "Campinas, SP", cities[0].Label())
	assert.Equal(t, "Campo Grande, MS", cities[1].Label())

	none, err := lookup.Lookup(context.Background(), "curitiba")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLookupSurfacesDirectoryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	lookup := NewCityLookup(srv.URL, time.Millisecond, logger.NewNop())
	defer lookup.Stop()

	_, err := lookup.Lookup(context.Background(), "recife")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestRunClearsShortQueriesWithoutRoundTrip(t *testing.T) {
	var hits atomic.Int32
	srv := cityDirectory(t, &hits)
	lookup := NewCityLookup(srv.URL, time.Millisecond, logger.NewNop())
	defer lookup.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		cities []City
		err    error
	}
	results := make(chan result, 4)
	go lookup.Run(ctx, func(cities []City, err error) {
		results <- result{cities, err}
	})

	lookup.SetQuery("re")
	select {
	case got := <-results:
		require.NoError(t, got.err)
		assert.Empty(t, got.cities)
	case <-time.After(2 * time.Second):
		t.Fatal("short query never reported")
	}
	assert.Zero(t, hits.Load(), "short queries must not hit the directory")

	lookup.SetQuery("recife")
	select {
	case got := <-results:
		require.NoError(t, got.err)
		require.Len(t, got.cities, 1)
		assert.Equal(t, "Recife, PE", got.cities[0].Label())
	case <-time.After(2 * time.Second):
		t.Fatal("settled query never resolved")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestRunResolvesOnlySettledQuery(t *testing.T) {
	var hits atomic.Int32
	srv := cityDirectory(t, &hits)
	lookup := NewCityLookup(srv.URL, 80*time.Millisecond, logger.NewNop())
	defer lookup.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan []City, 4)
	go lookup.Run(ctx, func(cities []City, err error) {
		require.NoError(t, err)
		results <- cities
	})

	for _, text := range []string{"cam", "camp", "campi", "campinas"} {
		lookup.SetQuery(text)
		time.Sleep(15 * time.Millisecond)
	}

	select {
	case cities := <-results:
		require.Len(t, cities, 1)
		assert.Equal(t, "Campinas, SP", cities[0].Label())
	case <-time.After(2 * time.Second):
		t.Fatal("settled query never resolved")
	}
	assert.Equal(t, int32(1), hits.Load(), "keystrokes must not each hit the directory")
}
