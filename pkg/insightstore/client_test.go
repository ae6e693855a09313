package insightstore

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

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
	"github.com/noah-isme/sma-behavior-insights/pkg/middleware/requestid"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, status int, body map[string]interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestClientSaveSendsTokenAndDecodesEnvelope(t *testing.T) {
	var gotAuth, gotRequestID string
	var gotBody models.Insight
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/insights", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(requestid.HeaderKey)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		saved := gotBody
		saved.ID = "ins-1"
		writeEnvelope(t, w, http.StatusCreated, map[string]interface{}{"data": saved})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL + "/api/v1", Timeout: time.Second}, nil)
	ctx := requestid.WithValue(context.Background(), "req-9")
	saved, err := client.Save(ctx, "tok", models.Insight{ID: "cand-1", Title: "Escalation", Kind: models.KindPrediction})
	require.NoError(t, err)
	assert.Equal(t, "ins-1", saved.ID)
	assert.Equal(t, "Escalation", saved.Title)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "req-9", gotRequestID)
	assert.Equal(t, "cand-1", gotBody.ID)
}

func TestClientMapsUnauthorizedToSessionInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(t, w, http.StatusUnauthorized, map[string]interface{}{
			"error": map[string]interface{}{"code": "UNAUTHORIZED", "message": "token expired", "status": 401},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL}, nil)
	_, err := client.Save(context.Background(), "expired", models.Insight{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrSessionInvalid)
	assert.True(t, appErrors.IsUnauthorized(err))
}

func TestClientMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   *appErrors.Error
	}{
		{http.StatusNotFound, appErrors.ErrNotFound},
		{http.StatusBadRequest, appErrors.ErrValidation},
		{http.StatusConflict, appErrors.ErrConflict},
		{http.StatusServiceUnavailable, appErrors.ErrStoreUnavailable},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(t, w, tc.status, map[string]interface{}{
				"error": map[string]interface{}{"code": "X", "message": "remote says no", "status": tc.status},
			})
		}))
		client := New(Config{BaseURL: server.URL}, nil)
		_, err := client.Get(context.Background(), "tok", "ins-1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.False(t, appErrors.IsUnauthorized(err))
		server.Close()
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeEnvelope(t, w, http.StatusBadGateway, map[string]interface{}{})
			return
		}
		writeEnvelope(t, w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"insight": map[string]interface{}{"id": "ins-1", "applied": true, "applied_action": "Call home"},
				"record":  map[string]interface{}{"id": "rec-1", "insight_id": "ins-1", "action": "Call home"},
			},
		})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, Retries: 2}, nil)
	resp, err := client.Apply(context.Background(), "tok", "ins-1", models.ApplyInsightRequest{ChosenAction: "Call home"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, "rec-1", resp.Record.ID)
	assert.True(t, resp.Insight.Applied)
}

func TestClientListSendsFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "suggestion", r.URL.Query().Get("kind"))
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		writeEnvelope(t, w, http.StatusOK, map[string]interface{}{
			"data":       []map[string]interface{}{{"id": "ins-1"}, {"id": "ins-2"}},
			"pagination": map[string]interface{}{"page": 2, "page_size": 50, "total_count": 52},
		})
	}))
	defer server.Close()

	active := true
	client := New(Config{BaseURL: server.URL}, nil)
	insights, err := client.List(context.Background(), "tok", models.InsightFilter{Kind: models.KindSuggestion, Active: &active, Page: 2})
	require.NoError(t, err)
	assert.Len(t, insights, 2)
}

func TestClientRequiresToken(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	_, err := client.Save(context.Background(), "", models.Insight{})
	assert.ErrorIs(t, err, appErrors.ErrMissingCredential)
}

func TestClientTransportFailureIsStoreUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(Config{BaseURL: url, Timeout: 200 * time.Millisecond}, nil)
	_, err := client.Save(context.Background(), "tok", models.Insight{})
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)
	assert.False(t, appErrors.IsUnauthorized(err))
}
