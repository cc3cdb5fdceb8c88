package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"lifelog/internal/schema"
	"lifelog/internal/settings"
	"lifelog/internal/storage"
)

type entryRequest struct {
	Date     string         `json:"date"`
	Category string         `json:"category"`
	Event    string         `json:"event"`
	Details  map[string]any `json:"details"`
	Image    string         `json:"image,omitempty"`
}

// toEntry validates the category and coerces the details against its
// field list, dropping keys that do not type-check.
func (s *Server) toEntry(id string, req entryRequest) (storage.Entry, error) {
	fields, err := s.registry.Get(req.Category)
	if err != nil {
		return storage.Entry{}, err
	}
	if req.Date == "" || req.Event == "" {
		return storage.Entry{}, fmt.Errorf("date and event are required")
	}
	return storage.Entry{
		ID:       id,
		Date:     req.Date,
		Category: req.Category,
		Event:    req.Event,
		Details:  schema.CoerceDetails(req.Details, fields),
		Image:    req.Image,
	}, nil
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListEntries(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	entry, err := s.toEntry(uuid.NewString(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if err := s.store.CreateEntry(r.Context(), entry); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	entry, err := s.toEntry(id, req)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if err := s.store.UpdateEntry(r.Context(), entry); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEntry(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRawLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListRawLogs(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleUpdateRawLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.store.UpdateRawLogText(r.Context(), mux.Vars(r)["id"], req.Text); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleDeleteRawLog(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRawLog(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]schema.FieldSchema)
	for _, cat := range s.registry.Categories() {
		fields, err := s.registry.Get(cat)
		if err != nil {
			continue
		}
		out[cat] = fields
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetSchema(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	var fields []schema.FieldSchema
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.registry.Set(category, fields); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if err := s.settings.SaveSchemaOverrides(r.Context(), s.registry.Overrides()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleResetSchema(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	if err := s.registry.ResetToDefault(category); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if err := s.settings.SaveSchemaOverrides(r.Context(), s.registry.Overrides()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	fields, err := s.registry.Get(category)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleGetAIConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.settings.AIConfig(r.Context())
	// Report presence without echoing the credential.
	hasOverride := cfg.APIKeyOverride != ""
	cfg.APIKeyOverride = ""
	s.writeJSON(w, http.StatusOK, map[string]any{
		"config":         cfg,
		"hasKeyOverride": hasOverride,
	})
}

func (s *Server) handlePutAIConfig(w http.ResponseWriter, r *http.Request) {
	var cfg settings.AIConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.settings.SetAIConfig(r.Context(), cfg); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleGetChatSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.settings.ChatSettings(r.Context()))
}

func (s *Server) handlePutChatSettings(w http.ResponseWriter, r *http.Request) {
	var cs settings.ChatSettings
	if err := json.NewDecoder(r.Body).Decode(&cs); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.settings.SetChatSettings(r.Context(), cs); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.portability.ExportJSON(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="lifelog-backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.portability.Import(r.Context(), raw, force); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"imported": true})
}
