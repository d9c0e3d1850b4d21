package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-analyzer/internal/config"
	"github.com/JakeFAU/tender-analyzer/internal/metrics"
	"github.com/JakeFAU/tender-analyzer/internal/storage"
	"github.com/JakeFAU/tender-analyzer/internal/task"
	"github.com/JakeFAU/tender-analyzer/internal/tender"
)

const (
	msgStarted        = "Parsing started"
	msgAlreadyRunning = "Task already running"
)

// TaskService starts and reports on acquisition runs.
type TaskService interface {
	Submit(id int64) (string, bool, error)
	Status(taskID string) (tender.TaskState, error)
}

// Server wires HTTP handlers to the task manager and report store.
type Server struct {
	router  chi.Router
	tasks   TaskService
	reports tender.ReportStore
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(tasks TaskService, reports tender.ReportStore, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tasks:   tasks,
		reports: reports,
		cfg:     cfg,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/api", func(r chi.Router) {
			r.Post("/parse", s.startParsing)
			r.Get("/status/{task_id}", s.getStatus)
			r.Get("/reports", s.listReports)
		})
		r.Get("/reports/{filename}", s.serveReport)
		if cfg.Server.ViewerPath != "" {
			r.Get("/", s.serveViewer)
		}
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type parseRequest struct {
	AdvertID json.RawMessage `json:"advert_id"`
}

type parseResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

func (s *Server) startParsing(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id, err := parseAdvertID(req.AdvertID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, started, err := s.tasks.Submit(id)
	if err != nil {
		if errors.Is(err, task.ErrInvalidAdvertID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit task", zap.Int64("advert_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start task")
		return
	}
	msg := msgStarted
	if !started {
		msg = msgAlreadyRunning
	}
	writeJSON(w, http.StatusOK, parseResponse{TaskID: taskID, Message: msg})
}

var (
	errAdvertIDRequired = errors.New("advert_id is required")
	errAdvertIDNumber   = errors.New("advert_id must be a number")
)

// parseAdvertID accepts a JSON integer or a string of digits.
func parseAdvertID(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, errAdvertIDRequired
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, errAdvertIDNumber
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return 0, errAdvertIDRequired
		}
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, errAdvertIDNumber
	}
	if id <= 0 {
		return 0, task.ErrInvalidAdvertID
	}
	return id, nil
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.tasks.Status(chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	names, err := s.reports.List(r.Context())
	if err != nil {
		s.logger.Error("list reports", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"reports": names})
}

func (s *Server) serveReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	rc, err := s.reports.Open(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		s.logger.Error("open report", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to open report")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("stream report", zap.String("name", name), zap.Error(err))
	}
}

func (s *Server) serveViewer(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.cfg.Server.ViewerPath); err != nil {
		writeError(w, http.StatusNotFound, "viewer not found")
		return
	}
	http.ServeFile(w, r, s.cfg.Server.ViewerPath)
}

type requestIDKey struct{}

// RequestID returns the request id stored by the request id middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (rw *statusWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
