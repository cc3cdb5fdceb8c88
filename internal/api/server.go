package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lifelog/internal/assistant"
	"lifelog/internal/portability"
	"lifelog/internal/schema"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

// Server exposes the pipeline and the dashboard data over HTTP.
type Server struct {
	orchestrator *assistant.Orchestrator
	store        *storage.Store
	settings     *settings.Service
	registry     *schema.Registry
	portability  *portability.Service
	logger       zerolog.Logger
	router       *mux.Router
}

func NewServer(
	orch *assistant.Orchestrator,
	store *storage.Store,
	svc *settings.Service,
	registry *schema.Registry,
	port *portability.Service,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		orchestrator: orch,
		store:        store,
		settings:     svc,
		registry:     registry,
		portability:  port,
		logger:       logger,
		router:       mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/chat/send", s.handleChatSend).Methods(http.MethodPost)
	api.HandleFunc("/chat/cancel", s.handleChatCancel).Methods(http.MethodPost)
	api.HandleFunc("/chat/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/chat/messages/{id}", s.handleEditMessage).Methods(http.MethodPut)
	api.HandleFunc("/chat/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/chat/messages/{id}/undo", s.handleUndo).Methods(http.MethodPost)
	api.HandleFunc("/chat/messages/{id}/regenerate", s.handleRegenerate).Methods(http.MethodPost)

	api.HandleFunc("/entries", s.handleListEntries).Methods(http.MethodGet)
	api.HandleFunc("/entries", s.handleCreateEntry).Methods(http.MethodPost)
	api.HandleFunc("/entries/{id}", s.handleUpdateEntry).Methods(http.MethodPut)
	api.HandleFunc("/entries/{id}", s.handleDeleteEntry).Methods(http.MethodDelete)

	api.HandleFunc("/rawlogs", s.handleListRawLogs).Methods(http.MethodGet)
	api.HandleFunc("/rawlogs/{id}", s.handleUpdateRawLog).Methods(http.MethodPut)
	api.HandleFunc("/rawlogs/{id}", s.handleDeleteRawLog).Methods(http.MethodDelete)

	api.HandleFunc("/schemas", s.handleListSchemas).Methods(http.MethodGet)
	api.HandleFunc("/schemas/{category}", s.handleSetSchema).Methods(http.MethodPut)
	api.HandleFunc("/schemas/{category}/reset", s.handleResetSchema).Methods(http.MethodPost)

	api.HandleFunc("/settings/ai", s.handleGetAIConfig).Methods(http.MethodGet)
	api.HandleFunc("/settings/ai", s.handlePutAIConfig).Methods(http.MethodPut)
	api.HandleFunc("/settings/chat", s.handleGetChatSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings/chat", s.handlePutChatSettings).Methods(http.MethodPut)

	api.HandleFunc("/backup", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/backup/import", s.handleImport).Methods(http.MethodPost)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps pipeline and storage sentinels onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrNoCredential):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assistant.ErrBudgetExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrUnknownCategory):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrProtectedField), errors.Is(err, schema.ErrDuplicateKey):
		return http.StatusBadRequest
	case errors.Is(err, portability.ErrUnknownOrigin):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
