package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/basket/chatdo/internal/config"
	"github.com/basket/chatdo/internal/identity"
	"github.com/basket/chatdo/internal/intent"
	otelx "github.com/basket/chatdo/internal/otel"
	"github.com/basket/chatdo/internal/persistence"
	"github.com/basket/chatdo/internal/shared"
	"github.com/basket/chatdo/internal/tools"
)

// Gateway is the HTTP surface: chat routing, direct tool invocation, and
// task/conversation REST endpoints.
type Gateway struct {
	cfg      config.Config
	store    *persistence.Store
	registry *tools.Registry
	router   *intent.Router
	logger   *slog.Logger
	metrics  *otelx.Metrics

	httpServer *http.Server
}

func New(cfg config.Config, store *persistence.Store, registry *tools.Registry, router *intent.Router, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		cfg:      cfg,
		store:    store,
		registry: registry,
		router:   router,
		logger:   logger,
	}
}

// SetMetrics attaches metric instruments. Must be called before
// Handler; a nil receiver argument leaves instrumentation off.
func (g *Gateway) SetMetrics(m *otelx.Metrics) {
	g.metrics = m
}

// Handler builds the full middleware-wrapped handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", g.handleHealthz)
	mux.HandleFunc("POST /api/users/{user_id}/chat", g.handleChat)
	mux.HandleFunc("POST /api/users/{user_id}/invoke", g.handleInvoke)
	mux.HandleFunc("GET /api/users/{user_id}/tasks", g.handleListTasks)
	mux.HandleFunc("POST /api/users/{user_id}/tasks", g.handleCreateTask)
	mux.HandleFunc("PUT /api/users/{user_id}/tasks/{task_id}", g.handleUpdateTask)
	mux.HandleFunc("DELETE /api/users/{user_id}/tasks/{task_id}", g.handleDeleteTask)
	mux.HandleFunc("GET /api/users/{user_id}/conversations", g.handleListConversations)
	mux.HandleFunc("GET /api/users/{user_id}/conversations/{conversation_id}", g.handleGetConversation)

	var handler http.Handler = mux
	handler = g.metricsMiddleware(handler)
	handler = g.traceMiddleware(handler)
	handler = NewCORSMiddleware(g.cfg.AllowOrigins)(handler)
	handler = NewAuthMiddleware(g.cfg.AuthToken).Wrap(handler)
	handler = RequestSizeLimitMiddleware(0)(handler)
	return handler
}

// Start runs the HTTP server until ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	g.httpServer = &http.Server{
		Addr:              g.cfg.BindAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.BindAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.httpServer.Shutdown(shutdownCtx)
	}
}

func (g *Gateway) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = shared.NewTraceID()
		}
		ctx := shared.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-Id", traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	if g.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		g.metrics.RequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rec.status),
			))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
}

type chatResponse struct {
	ConversationID string            `json:"conversation_id"`
	Response       string            `json:"response"`
	ToolCalls      []intent.ToolCall `json:"tool_calls"`
	Timestamp      string            `json:"timestamp"`
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := shared.WithUserID(r.Context(), userID)

	// Find or start the conversation.
	var conv *persistence.Conversation
	if req.ConversationID != "" {
		existing, err := g.store.GetConversation(ctx, userID, identity.NormalizeString(req.ConversationID))
		if err == nil {
			conv = existing
		}
		// An unknown or malformed id silently starts a fresh conversation.
	}
	if conv == nil {
		created, err := g.store.CreateConversation(ctx, userID, persistence.ConversationTitle(req.Message))
		if err != nil {
			g.logger.Error("create conversation failed", "error", err, "trace_id", shared.TraceID(ctx))
			writeError(w, http.StatusInternalServerError, "failed to start conversation")
			return
		}
		conv = created
	}

	if _, err := g.store.AppendMessage(ctx, userID, conv.ID, "user", req.Message); err != nil {
		g.logger.Error("persist user message failed", "error", err, "trace_id", shared.TraceID(ctx))
		writeError(w, http.StatusInternalServerError, "failed to persist message")
		return
	}

	routeCtx, span := otelapi.Tracer(otelx.TracerName).Start(ctx, "chat.route")
	routeStart := time.Now()
	outcome := g.router.Route(routeCtx, userID, req.Message)
	span.SetAttributes(
		attribute.String("intent", string(outcome.Intent)),
		attribute.Bool("success", outcome.Success),
	)
	span.End()
	if g.metrics != nil {
		g.metrics.RouteDuration.Record(ctx, time.Since(routeStart).Seconds(),
			metric.WithAttributes(attribute.String("intent", string(outcome.Intent))))
		g.metrics.IntentTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("intent", string(outcome.Intent))))
	}

	reply, err := g.store.AppendMessage(ctx, userID, conv.ID, "assistant", outcome.Reply)
	if err != nil {
		g.logger.Error("persist assistant message failed", "error", err, "trace_id", shared.TraceID(ctx))
		writeError(w, http.StatusInternalServerError, "failed to persist reply")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: conv.ID,
		Response:       outcome.Reply,
		ToolCalls:      outcome.ToolCalls,
		Timestamp:      reply.CreatedAt.UTC().Format(time.RFC3339),
	})
}

type invokeRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

func (g *Gateway) handleInvoke(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool is required")
		return
	}

	result, err := g.registry.Invoke(r.Context(), req.Tool, userID, req.Arguments)
	if err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Tool '%s' not found", req.Tool))
			return
		}
		g.logger.Error("tool invocation failed", "tool", req.Tool, "error", err)
		writeError(w, http.StatusInternalServerError, "tool invocation failed")
		return
	}
	if !result.Success && g.metrics != nil {
		g.metrics.ToolCallErrors.Add(r.Context(), 1,
			metric.WithAttributes(attribute.String("tool", req.Tool)))
	}
	// Validation and store failures travel inside the result body.
	writeJSON(w, http.StatusOK, result)
}

func (g *Gateway) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))

	statusParam := r.URL.Query().Get("status")
	var status persistence.TaskStatus
	switch statusParam {
	case "", "all":
		status = ""
	case "pending", "completed":
		status = persistence.TaskStatus(statusParam)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", statusParam))
		return
	}

	tasks, err := g.store.ListTasks(r.Context(), userID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []persistence.Task{}
	}
	if statusParam == "" {
		statusParam = "all"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":         tasks,
		"total":         len(tasks),
		"status_filter": statusParam,
	})
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

func (g *Gateway) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := g.store.CreateTask(r.Context(), userID, req.Title, req.Description, persistence.TaskPriority(req.Priority))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (g *Gateway) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))
	taskID := identity.NormalizeString(r.PathValue("task_id"))

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var upd persistence.TaskUpdate
	if v, ok := raw["title"].(string); ok {
		upd.Title = &v
	}
	if v, ok := raw["description"].(string); ok {
		upd.Description = &v
	}
	if v, ok := raw["priority"].(string); ok {
		p := persistence.TaskPriority(v)
		upd.Priority = &p
	}

	// Status transitions ride the same endpoint: completing sets
	// completed_at, reopening clears it.
	if v, ok := raw["status"].(string); ok {
		var err error
		switch persistence.TaskStatus(v) {
		case persistence.TaskStatusCompleted:
			_, err = g.store.CompleteTask(r.Context(), userID, taskID)
		case persistence.TaskStatusPending:
			_, err = g.store.ReopenTask(r.Context(), userID, taskID)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", v))
			return
		}
		if err != nil && !errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "failed to update task")
			return
		}
		// ErrNotFound here can mean "already in that state"; the field
		// update below still decides existence.
	}

	task, err := g.store.UpdateTask(r.Context(), userID, taskID, upd)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (g *Gateway) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))
	taskID := identity.NormalizeString(r.PathValue("task_id"))

	deleted, err := g.store.DeleteTask(r.Context(), userID, taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))

	limit := intQuery(r, "limit", 20)
	offset := intQuery(r, "offset", 0)

	convs, err := g.store.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []persistence.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
		"total":         len(convs),
		"limit":         limit,
		"offset":        offset,
	})
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := identity.NormalizeString(r.PathValue("user_id"))
	convID := identity.NormalizeString(r.PathValue("conversation_id"))

	conv, err := g.store.GetConversation(r.Context(), userID, convID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	msgs, err := g.store.ListMessages(r.Context(), userID, convID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []persistence.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     msgs,
	})
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v < 0 {
		return def
	}
	return v
}
