package client

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

	"github.com/Deekay69/aale-platform/internal/domain/event"
)

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": status < 400,
		"data":    data,
	})
}

func writeEnvelopeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func TestAPIClient_PushEvents(t *testing.T) {
	var gotStudent string
	var gotBody struct {
		Events []map[string]any `json:"events"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/sync/push", r.URL.Path)
		gotStudent = r.Header.Get("X-Student-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		writeEnvelope(w, http.StatusOK, map[string]any{
			"inserted": 1,
			"updated":  0,
			"skipped":  0,
			"total":    1,
			"syncedAt": "2026-03-01T12:00:00.000Z",
		})
	}))
	defer srv.Close()

	api := NewAPIClient(DefaultAPIConfig(srv.URL, "s1"))

	result, err := api.PushEvents(context.Background(), []*event.LearningEvent{localEvent("e1", 70)})
	require.NoError(t, err)

	assert.Equal(t, "s1", gotStudent)
	require.Len(t, gotBody.Events, 1)
	assert.Equal(t, "e1", gotBody.Events[0]["id"])
	// The body never carries a student ID; identity travels in the header.
	assert.NotContains(t, gotBody.Events[0], "studentId")

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), result.SyncedAt)
}

func TestAPIClient_PullChanges(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/sync/pull", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		writeEnvelope(w, http.StatusOK, map[string]any{
			"changes": map[string]any{
				"units": map[string]any{
					"created": []map[string]any{{
						"id": "u1", "title": "Shapes", "category": "visual", "difficulty": 1,
						"createdAt": "2026-03-01T09:00:00.000Z",
						"updatedAt": "2026-03-01T09:00:00.000Z",
					}},
					"updated": []any{},
					"deleted": []any{},
				},
				"events": map[string]any{
					"created": []map[string]any{{
						"id": "e1", "studentId": "s1", "unitId": "u1",
						"score": 88, "timeSpent": 45, "attempts": 2,
						"completedAt": "2026-03-01T10:00:00.000Z",
					}},
					"updated": []any{},
					"deleted": []any{},
				},
			},
			"timestamp": "2026-03-01T12:00:00.000Z",
		})
	}))
	defer srv.Close()

	api := NewAPIClient(DefaultAPIConfig(srv.URL, "s1"))

	since := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	result, err := api.PullChanges(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01T08:00:00.000Z", gotBody["lastPulledAt"])

	require.Len(t, result.UnitsCreated, 1)
	assert.Equal(t, "u1", result.UnitsCreated[0].ID)
	require.Len(t, result.EventsCreated, 1)
	assert.Equal(t, event.Score(88), result.EventsCreated[0].Score)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), result.Timestamp)
}

func TestAPIClient_PullOmitsZeroWatermark(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(w, http.StatusOK, map[string]any{
			"changes": map[string]any{
				"units":  map[string]any{"created": []any{}, "updated": []any{}, "deleted": []any{}},
				"events": map[string]any{"created": []any{}, "updated": []any{}, "deleted": []any{}},
			},
			"timestamp": "2026-03-01T12:00:00.000Z",
		})
	}))
	defer srv.Close()

	api := NewAPIClient(DefaultAPIConfig(srv.URL, "s1"))

	_, err := api.PullChanges(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "lastPulledAt")
}

func TestAPIClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelopeError(w, http.StatusBadRequest, "empty_batch", "Events array is missing or empty")
	}))
	defer srv.Close()

	api := NewAPIClient(DefaultAPIConfig(srv.URL, "s1"))

	_, err := api.PushEvents(context.Background(), []*event.LearningEvent{localEvent("e1", 70)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty_batch")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIClient_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"inserted": 1, "updated": 0, "skipped": 0, "total": 1,
			"syncedAt": "2026-03-01T12:00:00.000Z",
		})
	}))
	defer srv.Close()

	api := NewAPIClient(DefaultAPIConfig(srv.URL, "s1"))

	result, err := api.PushEvents(context.Background(), []*event.LearningEvent{localEvent("e1", 70)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, int32(2), calls.Load())
}
