package httpmarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefresh_DecodesWireForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bess-bidder-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prices":[0.1,0.2],"demand":[100,200],"competitors":3}`))
	}))
	defer server.Close()

	client := New(server.URL, "bess-bidder-test/1.0", 5*time.Second)
	forecast, err := client.Refresh(context.Background())

	assert.NoError(t, err)
	assert.InDelta(t, 0.1, forecast.PriceForecast[0], 1e-9)
	assert.InDelta(t, 0.2, forecast.PriceForecast[1], 1e-9)
	assert.InDelta(t, 100.0, forecast.GridDemandForecast[0], 1e-9)
	assert.Equal(t, 3, forecast.NumCompetitors)
}

func TestRefresh_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "", 5*time.Second)
	_, err := client.Refresh(context.Background())
	assert.Error(t, err)
}

func TestRefresh_EmptyEndpointIsError(t *testing.T) {
	client := New("", "", 5*time.Second)
	_, err := client.Refresh(context.Background())
	assert.Error(t, err)
}
