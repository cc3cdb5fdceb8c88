package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lifelog/internal/providers"
)

type sendRequest struct {
	Text  string `json:"text"`
	Image *struct {
		MIMEType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"image,omitempty"`
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	var image *providers.InlineImage
	if req.Image != nil {
		image = &providers.InlineImage{MIMEType: req.Image.MIMEType, Data: req.Image.Data}
	}

	result, err := s.orchestrator.SendTurn(r.Context(), req.Text, image)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatCancel(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.Cancel()
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListMessages(r.Context())
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	result, err := s.orchestrator.EditAndRegenerate(r.Context(), id, req.Text)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteMessage(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orchestrator.Undo(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := s.orchestrator.Regenerate(r.Context(), id)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func messageID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", raw)
	}
	return id, nil
}
