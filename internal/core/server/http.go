// Package server provides the HTTP and gRPC transports for LabelKeeper.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/labelkeeper/internal/core/api"
	"github.com/solatis/labelkeeper/internal/core/auth"
	"github.com/solatis/labelkeeper/internal/core/broadcast"
	"github.com/solatis/labelkeeper/internal/core/logging"
	"github.com/solatis/labelkeeper/internal/core/metrics"
	"github.com/solatis/labelkeeper/internal/types"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultStreamHeartbeat = 15 * time.Second

	// StatsEventName is the SSE event carrying a statistics snapshot.
	StatsEventName = "stats_update"
)

var errJSONBodyTooLarge = errors.New("json request body too large")

// Service is the application surface both transports call.
// Implemented by *api.LabelService.
type Service interface {
	Process(ctx context.Context, user types.UserID, body []byte, single bool) (api.ProcessResult, error)
	ExtractKeys(body []byte) ([]string, error)
	ListRules(ctx context.Context, user types.UserID) ([]types.Rule, string, error)
	CreateRule(ctx context.Context, user types.UserID, in api.RuleInput) (types.Rule, error)
	UpdateRule(ctx context.Context, user types.UserID, id types.RuleID, in api.RuleInput) (types.Rule, error)
	DeleteRule(ctx context.Context, user types.UserID, id types.RuleID) error
	ToggleRule(ctx context.Context, user types.UserID, id types.RuleID) (bool, error)
	Statistics(ctx context.Context, f types.StatsFilter) (types.Statistics, error)
	ExportCSV(ctx context.Context, f types.StatsFilter) (api.Export, error)
	Hub() *broadcast.Hub
}

// HTTPOptions configures NewHTTPHandler. Zero durations and sizes fall back
// to the defaults.
type HTTPOptions struct {
	Resolver        *auth.Resolver
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	RequestTimeout  time.Duration
	MaxBodySize     int64
	StreamHeartbeat time.Duration
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// HTTPServer holds the handlers behind NewHTTPHandler.
type HTTPServer struct {
	service         Service
	metrics         *metrics.Metrics
	maxBodySize     int64
	streamHeartbeat time.Duration
	ready           func(ctx context.Context) error
}

type processJSONResponse struct {
	PayloadID      types.PayloadID `json:"payload_id"`
	Labels         []string        `json:"labels"`
	AppliedRuleIDs []types.RuleID  `json:"applied_rule_ids"`
	ProcessedAt    string          `json:"processed_at"`
}

type ruleJSONResponse struct {
	Message string       `json:"message"`
	ID      types.RuleID `json:"id"`
	Rule    api.RuleView `json:"rule"`
}

type toggleJSONResponse struct {
	Message string `json:"message"`
	Active  bool   `json:"active"`
}

// NewHTTPHandler builds the HTTP API. Middleware order, outermost first:
// request logging, metrics, routing, then per-route identity and timeout.
func NewHTTPHandler(svc Service, opts HTTPOptions) http.Handler {
	if svc == nil {
		panic("service is nil")
	}
	if opts.Resolver == nil {
		panic("resolver is nil")
	}
	if opts.Metrics == nil {
		panic("metrics is nil")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = types.MaxPayloadSize
	}
	if opts.StreamHeartbeat <= 0 {
		opts.StreamHeartbeat = defaultStreamHeartbeat
	}

	server := &HTTPServer{
		service:         svc,
		metrics:         opts.Metrics,
		maxBodySize:     opts.MaxBodySize,
		streamHeartbeat: opts.StreamHeartbeat,
		ready:           opts.Ready,
	}

	// User-scoped routes resolve identity after routing so the metrics
	// middleware sees the matched pattern.
	scoped := func(h http.HandlerFunc) http.Handler {
		return opts.Resolver.HTTPMiddleware(withTimeout(opts.RequestTimeout, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/keys/extract", scoped(server.handleExtractKeys))
	mux.Handle("GET /api/rules", scoped(server.handleListRules))
	mux.Handle("POST /api/rules", scoped(server.handleCreateRule))
	mux.Handle("PUT /api/rules/{id}", scoped(server.handleUpdateRule))
	mux.Handle("DELETE /api/rules/{id}", scoped(server.handleDeleteRule))
	mux.Handle("POST /api/rules/{id}/toggle", scoped(server.handleToggleRule))
	mux.Handle("POST /api/process", scoped(server.handleProcess))
	mux.Handle("GET /api/statistics", scoped(server.handleStatistics))
	mux.Handle("GET /api/statistics/export", scoped(server.handleExportStatistics))
	// Streams outlive the request timeout.
	mux.Handle("GET /api/statistics/stream", opts.Resolver.HTTPMiddleware(http.HandlerFunc(server.handleStream)))
	mux.HandleFunc("GET /healthz", server.handleHealthz)
	mux.Handle("GET /metrics", opts.Metrics.Handler())

	return HTTPRequestLogging(opts.Logger)(opts.Metrics.HTTPMiddleware(mux))
}

func (s *HTTPServer) handleExtractKeys(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	keys, err := s.service.ExtractKeys(body)
	if err != nil {
		if errors.Is(err, types.ErrPayloadNotObject) {
			writeJSONError(w, http.StatusBadRequest, "Provide a sample JSON object")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

func (s *HTTPServer) handleListRules(w http.ResponseWriter, r *http.Request) {
	user := auth.UserIDFromContext(r.Context())
	rs, etag, err := s.service.ListRules(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("ETag", etag)
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, api.NewRuleViews(rs))
}

func (s *HTTPServer) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var in api.RuleInput
	if err := s.decodeJSONBody(w, r, &in); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	rule, err := s.service.CreateRule(r.Context(), auth.UserIDFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ruleJSONResponse{Message: "created", ID: rule.ID, Rule: api.NewRuleView(rule)})
}

func (s *HTTPServer) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := api.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var in api.RuleInput
	if err := s.decodeJSONBody(w, r, &in); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	rule, err := s.service.UpdateRule(r.Context(), auth.UserIDFromContext(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ruleJSONResponse{Message: "updated", ID: rule.ID, Rule: api.NewRuleView(rule)})
}

func (s *HTTPServer) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := api.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := s.service.DeleteRule(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (s *HTTPServer) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	id, err := api.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	active, err := s.service.ToggleRule(r.Context(), auth.UserIDFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toggleJSONResponse{Message: "toggled", Active: active})
}

func (s *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.metrics.RecordFailure(metrics.OutcomeRejected)
		writeJSONDecodeError(w, err)
		return
	}

	single := parseBoolFlag(r.URL.Query().Get("single_label"))
	result, err := s.service.Process(r.Context(), auth.UserIDFromContext(r.Context()), body, single)
	if err != nil {
		if errors.Is(err, types.ErrPayloadNotObject) {
			writeJSONError(w, http.StatusBadRequest, "Payload must be a JSON object")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, processJSONResponse{
		PayloadID:      result.PayloadID,
		Labels:         result.Labels,
		AppliedRuleIDs: result.AppliedRuleIDs,
		ProcessedAt:    result.ProcessedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *HTTPServer) handleStatistics(w http.ResponseWriter, r *http.Request) {
	filter, err := statsFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	stats, err := s.service.Statistics(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleExportStatistics(w http.ResponseWriter, r *http.Request) {
	filter, err := statsFilter(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	export, err := s.service.ExportCSV(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/csv; charset=utf-8")
	headers.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename}))
	headers.Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	user := auth.UserIDFromContext(r.Context())
	sub := s.service.Hub().Subscribe(user)
	defer sub.Cancel()
	defer s.metrics.StreamOpened("sse")()

	initial, err := s.service.Statistics(r.Context(), types.StatsFilter{UserID: user})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var eventID int64
	send := func(stats types.Statistics) error {
		eventID++
		payload, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		if err := writeSSEEvent(w, eventID, StatsEventName, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(initial); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case stats, ok := <-sub.C:
			if !ok {
				return
			}
			if err := send(stats); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statsFilter(r *http.Request) (types.StatsFilter, error) {
	q := r.URL.Query()
	return api.ParseStatsFilter(auth.UserIDFromContext(r.Context()), q.Get("label"), q.Get("from"), q.Get("to"))
}

func parseBoolFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", "error", err)
	}
	writeJSONError(w, status, api.PublicMessage(err))
}

func writeSSEEvent(w io.Writer, eventID int64, eventName string, payload []byte) error {
	dataLines := compactSSEPayload(payload)
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\n", eventID, eventName); err != nil {
		return err
	}

	for _, line := range dataLines {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprint(w, "\n")
	return err
}

func compactSSEPayload(payload []byte) []string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err == nil {
		return []string{compact.String()}
	}

	lines := strings.Split(string(payload), "\n")
	if len(lines) == 0 {
		return []string{""}
	}

	return lines
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// readBody reads the raw request body up to the configured limit.
func (s *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		return nil, normalizeJSONDecodeError(err)
	}
	return body, nil
}

// decodeJSONBody decodes a single JSON value. Unknown fields are ignored so
// rule views read from GET /api/rules can be sent back unchanged.
func (s *HTTPServer) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodySize))

	if err := decoder.Decode(dst); err != nil {
		return normalizeJSONDecodeError(err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("request body must contain a single JSON object")
		}
		return normalizeJSONDecodeError(err)
	}

	return nil
}

func normalizeJSONDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errJSONBodyTooLarge
	}
	return err
}
