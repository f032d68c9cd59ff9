package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Deekay69/aale-platform/internal/application/command"
	"github.com/Deekay69/aale-platform/internal/application/query"
	"github.com/Deekay69/aale-platform/internal/domain/event"
	"github.com/Deekay69/aale-platform/internal/domain/shared"
	"github.com/Deekay69/aale-platform/internal/domain/unit"
	"github.com/Deekay69/aale-platform/pkg/logger"
	"github.com/Deekay69/aale-platform/pkg/timeutil"
)

// StudentIDHeader carries the authenticated student identity, set by the
// auth gateway in front of this service. Handlers never trust a
// body-supplied student ID.
const StudentIDHeader = "X-Student-ID"

// ══════════════════════════════════════════════════════════════════════════════
// WIRE TYPES
// Timestamps cross the wire as ISO-8601 strings with millisecond precision.
// ══════════════════════════════════════════════════════════════════════════════

type eventDTO struct {
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

type unitDTO struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Difficulty int    `json:"difficulty"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

func toEventDTO(e *event.LearningEvent) eventDTO {
	return eventDTO{
		ID:          e.ID,
		StudentID:   e.StudentID,
		UnitID:      e.UnitID,
		Score:       int(e.Score),
		TimeSpent:   e.TimeSpent,
		Attempts:    e.Attempts,
		CompletedAt: timeutil.FormatWire(e.CompletedAt),
		DeviceID:    e.DeviceID,
		CreatedAt:   timeutil.FormatWire(e.CreatedAt),
		UpdatedAt:   timeutil.FormatWire(e.UpdatedAt),
	}
}

func toEventDTOs(events []*event.LearningEvent) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	return out
}

func toUnitDTO(u *unit.LearningUnit) unitDTO {
	return unitDTO{
		ID:         u.ID,
		Title:      u.Title,
		Category:   string(u.Category),
		Difficulty: u.Difficulty,
		CreatedAt:  timeutil.FormatWire(u.CreatedAt),
		UpdatedAt:  timeutil.FormatWire(u.UpdatedAt),
	}
}

func toUnitDTOs(units []*unit.LearningUnit) []unitDTO {
	out := make([]unitDTO, 0, len(units))
	for _, u := range units {
		out = append(out, toUnitDTO(u))
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNC HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type pushRequest struct {
	Events []eventDTO `json:"events"`
}

type pushResponse struct {
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Total    int    `json:"total"`
	SyncedAt string `json:"syncedAt"`
}

// handleSyncPush applies a batch of client events.
// POST /api/v1/sync/push
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.requireStudent(w, r)
	if !ok {
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}

	if len(req.Events) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty_batch", "Events array is missing or empty")
		return
	}

	raws := make([]command.RawEvent, 0, len(req.Events))
	for _, dto := range req.Events {
		completedAt, err := timeutil.ParseWire(dto.CompletedAt)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_timestamp", "Event completedAt must be an ISO-8601 timestamp")
			return
		}
		raws = append(raws, command.RawEvent{
			ID:          dto.ID,
			UnitID:      dto.UnitID,
			Score:       dto.Score,
			TimeSpent:   dto.TimeSpent,
			Attempts:    dto.Attempts,
			CompletedAt: completedAt,
			DeviceID:    dto.DeviceID,
		})
	}

	result, err := s.deps.PushEvents.Handle(r.Context(), command.PushEventsCommand{
		StudentID:     studentID,
		Events:        raws,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pushResponse{
		Inserted: result.Inserted,
		Updated:  result.Updated,
		Skipped:  result.Skipped,
		Total:    result.Total,
		SyncedAt: timeutil.FormatWire(result.SyncedAt),
	})
}

type pullRequest struct {
	LastPulledAt string `json:"lastPulledAt"`
}

type changeSet[T any] struct {
	Created []T `json:"created"`
	Updated []T `json:"updated"`
	Deleted []T `json:"deleted"`
}

type pullResponse struct {
	Changes struct {
		Units  changeSet[unitDTO]  `json:"units"`
		Events changeSet[eventDTO] `json:"events"`
	} `json:"changes"`
	Timestamp string `json:"timestamp"`
}

// handleSyncPull returns changes since the client's watermark.
// POST /api/v1/sync/pull
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.requireStudent(w, r)
	if !ok {
		return
	}

	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Request body must be valid JSON")
		return
	}

	var lastPulledAt time.Time
	if req.LastPulledAt != "" {
		var err error
		lastPulledAt, err = timeutil.ParseWire(req.LastPulledAt)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_timestamp", "lastPulledAt must be an ISO-8601 timestamp")
			return
		}
	}

	result, err := s.deps.PullChanges.Handle(r.Context(), query.PullChangesQuery{
		StudentID:    studentID,
		LastPulledAt: lastPulledAt,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var resp pullResponse
	resp.Changes.Units = changeSet[unitDTO]{
		Created: toUnitDTOs(result.Units.Created),
		Updated: toUnitDTOs(result.Units.Updated),
		Deleted: toUnitDTOs(result.Units.Deleted),
	}
	resp.Changes.Events = changeSet[eventDTO]{
		Created: toEventDTOs(result.Events.Created),
		Updated: toEventDTOs(result.Events.Updated),
		Deleted: toEventDTOs(result.Events.Deleted),
	}
	resp.Timestamp = timeutil.FormatWire(result.Timestamp)

	writeJSON(w, http.StatusOK, resp)
}

type syncStatusResponse struct {
	TotalEvents int     `json:"totalEvents"`
	LastSyncAt  *string `json:"lastSyncAt"`
}

// handleSyncStatus reports what the server holds for the student.
// GET /api/v1/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.requireStudent(w, r)
	if !ok {
		return
	}

	status, err := s.deps.SyncStatus.Handle(r.Context(), query.GetSyncStatusQuery{StudentID: studentID})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := syncStatusResponse{TotalEvents: status.TotalEvents}
	if status.LastSyncAt != nil {
		formatted := timeutil.FormatWire(*status.LastSyncAt)
		resp.LastSyncAt = &formatted
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMENDATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type nextRecommendationResponse struct {
	Unit       *unitDTO `json:"unit"`
	IsReview   bool     `json:"isReview"`
	Completed  bool     `json:"completed"`
	Confidence float64  `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// handleNextRecommendation picks the student's next unit.
// GET /api/v1/recommendations/next
func (s *Server) handleNextRecommendation(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.requireStudent(w, r)
	if !ok {
		return
	}

	result, err := s.deps.NextRecommendation.Handle(r.Context(), query.NextRecommendationQuery{StudentID: studentID})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := nextRecommendationResponse{
		IsReview:   result.IsReview,
		Completed:  result.Completed,
		Confidence: result.Confidence,
		Reason:     result.Reason,
	}
	if result.Unit != nil {
		dto := toUnitDTO(result.Unit)
		resp.Unit = &dto
	}

	writeJSON(w, http.StatusOK, resp)
}

type categoryPreferenceDTO struct {
	Category     string  `json:"category"`
	Attempts     int     `json:"attempts"`
	AverageScore float64 `json:"averageScore"`
}

type profileResponse struct {
	Preferences   []categoryPreferenceDTO `json:"preferences"`
	TotalAttempts int                     `json:"totalAttempts"`
}

// handleProfile returns the student's per-category performance profile.
// GET /api/v1/recommendations/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	studentID, ok := s.requireStudent(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Profile.Handle(r.Context(), query.GetProfileQuery{StudentID: studentID})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := profileResponse{
		Preferences:   make([]categoryPreferenceDTO, 0, len(result.Preferences)),
		TotalAttempts: result.TotalAttempts,
	}
	for _, p := range result.Preferences {
		resp.Preferences = append(resp.Preferences, categoryPreferenceDTO{
			Category:     string(p.Category),
			Attempts:     p.Attempts,
			AverageScore: p.AverageScore,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type heatmapCellDTO struct {
	Unit         unitDTO `json:"unit"`
	StudentCount int     `json:"studentCount"`
	AvgScore     int     `json:"avgScore"`
	AvgAttempts  float64 `json:"avgAttempts"`
	AvgTime      int     `json:"avgTime"`
	Status       string  `json:"status"`
}

type heatmapResponse struct {
	Cells []heatmapCellDTO `json:"cells"`
}

// handleHeatmap returns classroom-wide per-unit performance, struggles first.
// GET /api/v1/analytics/heatmap
func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	cells, err := s.deps.Heatmap.Handle(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := heatmapResponse{Cells: make([]heatmapCellDTO, 0, len(cells))}
	for _, c := range cells {
		resp.Cells = append(resp.Cells, heatmapCellDTO{
			Unit:         toUnitDTO(c.Unit),
			StudentCount: c.StudentCount,
			AvgScore:     c.AvgScore,
			AvgAttempts:  c.AvgAttempts,
			AvgTime:      c.AvgTime,
			Status:       string(c.Status),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth returns basic service health.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime_s":  int(s.Uptime().Seconds()),
		"timestamp": time.Now().UTC(),
	})
}

// handleReady checks backing services.
// GET /ready
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ready(r.Context()); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive is the liveness probe.
// GET /live
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleRoot returns service info.
// GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"service": "aale-platform",
		"version": "v1",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// requireStudent extracts the authenticated student identity or rejects the
// request with 401.
func (s *Server) requireStudent(w http.ResponseWriter, r *http.Request) (string, bool) {
	studentID := r.Header.Get(StudentIDHeader)
	if studentID == "" {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing student identity")
		return "", false
	}
	return studentID, true
}

// writeDomainError maps a domain error onto an HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsOwnershipViolation(err):
		writeJSONError(w, http.StatusForbidden, "ownership_violation", err.Error())
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
