package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func TestClientPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/echo", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		writeEnvelope(w, http.StatusOK, map[string]string{"echo": in["name"]})
	}))
	defer srv.Close()

	var out map[string]string
	require.NoError(t, NewClient(srv.URL+"/").Post(context.Background(), "/api/echo", map[string]string{"name": "model"}, &out))
	assert.Equal(t, "model", out["echo"])
}

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
		writeEnvelope(w, http.StatusOK, map[string]int{"window_size": 5})
	}))
	defer srv.Close()

	var out struct {
		WindowSize int `json:"window_size"`
	}
	require.NoError(t, NewClient(srv.URL).Get(context.Background(), "/api/model", &out))
	assert.Equal(t, 5, out.WindowSize)
}

func TestClientErrorEnvelope(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeEnvelope(w, http.StatusServiceUnavailable, []*AppError{
			ServiceUnavailableError("ERR_MODEL_UNAVAILABLE", "model is not available"),
		})
	}))
	defer srv.Close()

	err := NewClient(srv.URL, WithAttempts(3)).Post(context.Background(), "/api/model/reload", nil, nil)
	var rerr *ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusServiceUnavailable, rerr.Status)
	require.Len(t, rerr.Errors, 1)
	assert.Equal(t, "ERR_MODEL_UNAVAILABLE", rerr.Errors[0].Code)
	assert.Equal(t, 1, calls, "server answers are not retried")
}

func TestClientPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Get(context.Background(), "/health", nil)
	var rerr *ResponseError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusBadGateway, rerr.Status)
	assert.Equal(t, "down", rerr.Message)
}

func TestClientRetriesUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(url, WithAttempts(2), WithTimeout(time.Second)).Get(context.Background(), "/health", nil)
	require.Error(t, err)
	var rerr *ResponseError
	assert.False(t, errors.As(err, &rerr))
}
