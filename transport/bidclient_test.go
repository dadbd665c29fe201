package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitFastDispatch_SendsCapacityAndPriceNoHour(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	err := client.SubmitFastDispatch(context.Background(), 4.5, 0.35)

	assert.NoError(t, err)
	assert.Contains(t, gotQuery, "capacity=4.5")
	assert.Contains(t, gotQuery, "price=0.35")
	assert.NotContains(t, gotQuery, "hour=")
}

func TestSubmitDayAhead_IncludesHour(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	err := client.SubmitDayAhead(context.Background(), 14, 2.0, 0.5)

	assert.NoError(t, err)
	assert.Contains(t, gotQuery, "hour=14")
}

func TestSubmit_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, 5*time.Second)
	err := client.SubmitFastDispatch(context.Background(), 1, 1)
	assert.Error(t, err)
}

func TestSubmit_EmptyEndpointIsError(t *testing.T) {
	client := New("", 5*time.Second)
	err := client.SubmitFastDispatch(context.Background(), 1, 1)
	assert.Error(t, err)
}
