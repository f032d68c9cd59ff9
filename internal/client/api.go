package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
	"github.com/Deekay69/aale-platform/pkg/circuitbreaker"
	"github.com/Deekay69/aale-platform/pkg/logger"
	"github.com/Deekay69/aale-platform/pkg/retry"
	"github.com/Deekay69/aale-platform/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// APIConfig contains configuration for the sync API client.
type APIConfig struct {
	// BaseURL is the sync server base URL.
	BaseURL string

	// StudentID is the authenticated student identity sent with every
	// request.
	StudentID string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultAPIConfig returns sensible defaults.
func DefaultAPIConfig(baseURL, studentID string) APIConfig {
	return APIConfig{
		BaseURL:   baseURL,
		StudentID: studentID,
		Timeout:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// API CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// APIClient talks to the sync server. Requests are retried with backoff and
// guarded by a circuit breaker so a long-offline device fails fast instead
// of hanging on every cycle.
type APIClient struct {
	config     APIConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewAPIClient creates a new sync API client.
func NewAPIClient(config APIConfig) *APIClient {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("sync_api"))

	return &APIClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retrier: retry.SyncRetrier(),
		breaker: circuitbreaker.SyncAPIBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		logger: log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// Mirrors the server's JSON surface; the client is a separate process and
// shares no Go types with it.
// ══════════════════════════════════════════════════════════════════════════════

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wireEvent struct {
	ID          string `json:"id"`
	StudentID   string `json:"studentId,omitempty"`
	UnitID      string `json:"unitId"`
	Score       int    `json:"score"`
	TimeSpent   int    `json:"timeSpent"`
	Attempts    int    `json:"attempts"`
	CompletedAt string `json:"completedAt"`
	DeviceID    string `json:"deviceId,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type wireUnit struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Difficulty int    `json:"difficulty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

type wireChangeSet[T any] struct {
	Created []T `json:"created"`
	Updated []T `json:"updated"`
	Deleted []T `json:"deleted"`
}

// PushResult reports how the server applied a pushed batch.
type PushResult struct {
	Inserted int
	Updated  int
	Skipped  int
	Total    int
	SyncedAt time.Time
}

// PullResult is the parsed delta from a pull.
type PullResult struct {
	UnitsCreated  []*unit.LearningUnit
	UnitsUpdated  []*unit.LearningUnit
	EventsCreated []*event.LearningEvent
	EventsUpdated []*event.LearningEvent

	// Timestamp is the server watermark, to be stored verbatim.
	Timestamp time.Time
}

// ServerStatus is the server-side sync summary for this student.
type ServerStatus struct {
	TotalEvents int
	LastSyncAt  *time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// PushEvents sends a batch of unsynced events to the server.
func (c *APIClient) PushEvents(ctx context.Context, events []*event.LearningEvent) (*PushResult, error) {
	wire := make([]wireEvent, 0, len(events))
	for _, e := range events {
		wire = append(wire, wireEvent{
			ID:          e.ID,
			UnitID:      e.UnitID,
			Score:       int(e.Score),
			TimeSpent:   e.TimeSpent,
			Attempts:    e.Attempts,
			CompletedAt: timeutil.FormatWire(e.CompletedAt),
			DeviceID:    e.DeviceID,
		})
	}

	var data struct {
		Inserted int    `json:"inserted"`
		Updated  int    `json:"updated"`
		Skipped  int    `json:"skipped"`
		Total    int    `json:"total"`
		SyncedAt string `json:"syncedAt"`
	}
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync/push",
		map[string]interface{}{"events": wire}, &data)
	if err != nil {
		return nil, fmt.Errorf("push events: %w", err)
	}

	syncedAt, err := timeutil.ParseWire(data.SyncedAt)
	if err != nil {
		return nil, fmt.Errorf("push events: bad syncedAt %q: %w", data.SyncedAt, err)
	}

	return &PushResult{
		Inserted: data.Inserted,
		Updated:  data.Updated,
		Skipped:  data.Skipped,
		Total:    data.Total,
		SyncedAt: syncedAt,
	}, nil
}

// PullChanges fetches everything that changed since the watermark.
// A zero watermark requests the full state.
func (c *APIClient) PullChanges(ctx context.Context, since time.Time) (*PullResult, error) {
	body := map[string]interface{}{}
	if !since.IsZero() {
		body["lastPulledAt"] = timeutil.FormatWire(since)
	}

	var data struct {
		Changes struct {
			Units  wireChangeSet[wireUnit]  `json:"units"`
			Events wireChangeSet[wireEvent] `json:"events"`
		} `json:"changes"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync/pull", body, &data); err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}

	timestamp, err := timeutil.ParseWire(data.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("pull changes: bad timestamp %q: %w", data.Timestamp, err)
	}

	result := &PullResult{Timestamp: timestamp}
	if result.UnitsCreated, err = fromWireUnits(data.Changes.Units.Created); err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}
	if result.UnitsUpdated, err = fromWireUnits(data.Changes.Units.Updated); err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}
	if result.EventsCreated, err = fromWireEvents(data.Changes.Events.Created); err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}
	if result.EventsUpdated, err = fromWireEvents(data.Changes.Events.Updated); err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}
	return result, nil
}

// Status fetches the server-side sync summary.
func (c *APIClient) Status(ctx context.Context) (*ServerStatus, error) {
	var data struct {
		TotalEvents int     `json:"totalEvents"`
		LastSyncAt  *string `json:"lastSyncAt"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/sync/status", nil, &data); err != nil {
		return nil, fmt.Errorf("sync status: %w", err)
	}

	status := &ServerStatus{TotalEvents: data.TotalEvents}
	if data.LastSyncAt != nil {
		t, err := timeutil.ParseWire(*data.LastSyncAt)
		if err != nil {
			return nil, fmt.Errorf("sync status: bad lastSyncAt %q: %w", *data.LastSyncAt, err)
		}
		status.LastSyncAt = &t
	}
	return status, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// doRequest executes one API call through the circuit breaker and retrier,
// decoding the response envelope into out.
func (c *APIClient) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doOnce(ctx, method, path, body, out)
		})
	})
}

func (c *APIClient) doOnce(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("encode request: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Student-ID", c.config.StudentID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are the normal offline case; retry them.
		return retry.Retryable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return retry.Retryable(fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody)))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return retry.Permanent(fmt.Errorf("parse response: %w", err))
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		code, message := "unknown", string(respBody)
		if envelope.Error != nil {
			code, message = envelope.Error.Code, envelope.Error.Message
		}
		return retry.Permanent(fmt.Errorf("api error %d (%s): %s", resp.StatusCode, code, message))
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return retry.Permanent(fmt.Errorf("decode response data: %w", err))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE DECODING
// ══════════════════════════════════════════════════════════════════════════════

func fromWireEvents(wire []wireEvent) ([]*event.LearningEvent, error) {
	out := make([]*event.LearningEvent, 0, len(wire))
	for _, w := range wire {
		e, err := fromWireEvent(w)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func fromWireEvent(w wireEvent) (*event.LearningEvent, error) {
	completedAt, err := timeutil.ParseWire(w.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("event %s: bad completedAt: %w", w.ID, err)
	}

	e := &event.LearningEvent{
		ID:          w.ID,
		StudentID:   w.StudentID,
		UnitID:      w.UnitID,
		Score:       event.Score(w.Score),
		TimeSpent:   w.TimeSpent,
		Attempts:    w.Attempts,
		CompletedAt: completedAt,
		DeviceID:    w.DeviceID,
	}
	if w.CreatedAt != "" {
		if e.CreatedAt, err = timeutil.ParseWire(w.CreatedAt); err != nil {
			return nil, fmt.Errorf("event %s: bad createdAt: %w", w.ID, err)
		}
	}
	if w.UpdatedAt != "" {
		if e.UpdatedAt, err = timeutil.ParseWire(w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("event %s: bad updatedAt: %w", w.ID, err)
		}
	}
	return e, nil
}

func fromWireUnits(wire []wireUnit) ([]*unit.LearningUnit, error) {
	out := make([]*unit.LearningUnit, 0, len(wire))
	for _, w := range wire {
		u := &unit.LearningUnit{
			ID:         w.ID,
			Title:      w.Title,
			Category:   unit.Category(w.Category),
			Difficulty: w.Difficulty,
		}
		var err error
		if w.CreatedAt != "" {
			if u.CreatedAt, err = timeutil.ParseWire(w.CreatedAt); err != nil {
				return nil, fmt.Errorf("unit %s: bad createdAt: %w", w.ID, err)
			}
		}
		if w.UpdatedAt != "" {
			if u.UpdatedAt, err = timeutil.ParseWire(w.UpdatedAt); err != nil {
				return nil, fmt.Errorf("unit %s: bad updatedAt: %w", w.ID, err)
			}
		}
		out = append(out, u)
	}
	return out, nil
}
