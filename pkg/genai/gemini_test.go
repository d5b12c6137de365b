package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGemini struct {
	mu     sync.Mutex
	calls  []string
	status map[string]int
	body   map[string]string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// /models/{model}:generateContent
	model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/models/"), ":generateContent")
	f.mu.Lock()
	f.calls = append(f.calls, model)
	f.mu.Unlock()

	if r.URL.Query().Get("key") != "secret" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"API key not valid. Please pass a valid API key."}}`))
		return
	}
	if status, ok := f.status[model]; ok {
		w.WriteHeader(status)
		w.Write([]byte(`{"error":{"message":"nope"}}`))
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Contents) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	text := f.body[model]
	json.NewEncoder(w).Encode(map[string]interface{}{
		"candidates": []interface{}{
			map[string]interface{}{"content": map[string]interface{}{"parts": []interface{}{map[string]string{"text": text}}}},
		},
	})
}

func newTestClient(srv *httptest.Server, key string) *Client {
	log := zerolog.Nop()
	return NewClient(Config{APIKey: key, BaseURL: srv.URL}, &log)
}

func TestGenerateFallsBackOnMissingModel(t *testing.T) {
	fake := &fakeGemini{
		status: map[string]int{"gemini-2.5-flash": http.StatusNotFound},
		body:   map[string]string{"gemini-1.5-flash": "Vitals look stable."},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	text, attempts, err := newTestClient(srv, "secret").Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Vitals look stable.", text)
	require.Len(t, attempts, 2)
	assert.Equal(t, KindModelNotFound, KindOf(attempts[0].Err))
	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-1.5-flash"}, fake.calls)
}

func TestGenerateStopsOnInvalidKey(t *testing.T) {
	fake := &fakeGemini{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, attempts, err := newTestClient(srv, "wrong").Generate(context.Background(), "prompt")
	assert.Equal(t, KindInvalidAPIKey, KindOf(err))
	assert.Len(t, attempts, 1)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestGenerateClassifiesErrors(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusForbidden, KindForbidden},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			fake := &fakeGemini{status: map[string]int{
				"gemini-2.5-flash": tt.status,
				"gemini-1.5-flash": tt.status,
				"gemini-pro":       tt.status,
			}}
			srv := httptest.NewServer(fake)
			defer srv.Close()

			_, _, err := newTestClient(srv, "secret").Generate(context.Background(), "prompt")
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestGenerateWithoutKey(t *testing.T) {
	log := zerolog.Nop()
	_, _, err := NewClient(Config{}, &log).Generate(context.Background(), "prompt")
	assert.Equal(t, KindAPIKeyMissing, KindOf(err))
}

func TestEmptyCompletionTriesNextModel(t *testing.T) {
	fake := &fakeGemini{body: map[string]string{"gemini-pro": "ok"}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	text, attempts, err := newTestClient(srv, "secret").Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Len(t, attempts, 3)
	assert.Equal(t, KindEmpty, KindOf(attempts[0].Err))
}
