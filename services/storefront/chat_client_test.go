package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRestyChatClient_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "do you ship to Penang?", req.Message)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":"Yes, we ship across Malaysia."}`))
	}))
	defer srv.Close()

	client := NewChatClient(ChatConfig{URL: srv.URL + "/chat", Timeout: time.Second}, zap.NewNop())

	reply, err := client.Ask(context.Background(), "do you ship to Penang?")

	require.NoError(t, err)
	assert.Equal(t, "Yes, we ship across Malaysia.", reply)
}

func TestRestyChatClient_Ask_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewChatClient(ChatConfig{URL: srv.URL, Timeout: time.Second}, zap.NewNop())

	_, err := client.Ask(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrChatUnavailable)
}

func TestRestyChatClient_Ask_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewChatClient(ChatConfig{URL: srv.URL, Timeout: time.Second}, zap.NewNop())

	for i := 0; i < 6; i++ {
		_, err := client.Ask(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrChatUnavailable)
	}

	assert.Equal(t, int32(6), calls.Load())
}
