package ord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ordswap/internal/domain"
)

func TestEligibleInscriptionIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/runes-of-old/available", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ids":["insc-1","insc-2"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL)
	ids, err := c.EligibleInscriptionIDs(context.Background(), "runes-of-old")
	require.NoError(t, err)
	assert.Equal(t, []string{"insc-1", "insc-2"}, ids)
}

func TestCollectionInscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/runes-of-old/inscriptions/insc-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "insc-1",
			"number": 42,
			"satpoint": "ab:1:0",
			"address": "bc1pstore",
			"content_type": "image/png"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL)
	insc, err := c.CollectionInscription(context.Background(), "runes-of-old", "insc-1")
	require.NoError(t, err)
	assert.Equal(t, "insc-1", insc.ID)
	assert.Equal(t, int64(42), insc.Number)
	assert.Equal(t, "ab:1:0", insc.Satpoint)
}

func TestLiveInscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inscription/insc-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"insc-1","satpoint":"cd:0:0","address":"bc1pelsewhere"}`))
	}))
	defer srv.Close()

	c := New("http://unused.invalid", srv.URL)
	insc, err := c.LiveInscription(context.Background(), "insc-1")
	require.NoError(t, err)
	assert.Equal(t, "bc1pelsewhere", insc.Address)
}

func TestGetJSONMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL)
	_, err := c.CollectionInscription(context.Background(), "runes-of-old", "missing")
	assert.ErrorIs(t, err, domain.ErrInscriptionNotFound)
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ids":["insc-1"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL)
	ids, err := c.EligibleInscriptionIDs(context.Background(), "runes-of-old")
	require.NoError(t, err)
	assert.Equal(t, []string{"insc-1"}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL)
	_, err := c.EligibleInscriptionIDs(context.Background(), "runes-of-old")
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
