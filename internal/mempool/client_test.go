package mempool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeEstimates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/fee-estimates", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"1":15.2,"2":12.1,"6":8.4}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	estimates, err := c.FeeEstimates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.1, estimates["2"])
}

func TestTestAccept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/txs/test", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "0200ab", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"allowed":false,"reject_reason":"txn-mempool-conflict","effective_fee_rate_sat_vb":0}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.TestAccept(context.Background(), "0200ab")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "txn-mempool-conflict", res.RejectReason)
}

func TestBroadcast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tx", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "0200ab", string(body))
		_, _ = w.Write([]byte("deadbeef\n"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	txid, err := c.Broadcast(context.Background(), "0200ab")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", txid)
}

func TestBroadcastErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("sendrawtransaction RPC error"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Broadcast(context.Background(), "0200ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sendrawtransaction RPC error")
}

func TestFeeEstimatesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"2":12.1}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	estimates, err := c.FeeEstimates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.1, estimates["2"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.TxOutspend(context.Background(), "deadbeef", 0)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTxOutspend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tx/deadbeef/outspend/1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spent":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.TxOutspend(context.Background(), "deadbeef", 1)
	require.NoError(t, err)
	assert.True(t, out.Spent)
}
