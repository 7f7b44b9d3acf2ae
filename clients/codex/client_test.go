package codex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetThema(t *testing.T) {
	var gotPath, gotTraceparent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTraceparent = r.Header.Get("traceparent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1000142,"omschrijving":"Mobiliteit"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api", 5*time.Second)
	thema, err := client.GetThema(context.Background(), 1000142)
	require.NoError(t, err)

	assert.Equal(t, "/api/Thema/1000142", gotPath)
	assert.Equal(t, 1000142, thema.ID)
	assert.Equal(t, "Mobiliteit", thema.Omschrijving)
	// No span in context, so nothing to propagate.
	assert.Empty(t, gotTraceparent)
}

func TestGetThemaNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).GetThema(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetThemaUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).GetThema(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "503")
}
