package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Exerbud/exerbud-backend/internal/core"
)

type APIHandler struct {
	ledger *core.LedgerService
}

func NewAPIHandler(ledger *core.LedgerService) *APIHandler {
	return &APIHandler{ledger: ledger}
}

// RecordTurnHandler is called by the chat-handling collaborator before it
// invokes the model, so the user's turn is persisted even when the model
// call later fails.
func (h *APIHandler) RecordTurnHandler(w http.ResponseWriter, r *http.Request) {
	var req core.RecordTurnInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.ledger.RecordTurn(req)
	if err != nil {
		if errors.Is(err, core.ErrNoIdentity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error recording turn: %v", err)
		http.Error(w, "Failed to record turn", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}

type RecordReplyRequest struct {
	ConversationID string `json:"conversation_id"`
	RawText        string `json:"raw_text"`
}

// RecordReplyHandler is called with the model's raw reply after the
// completion call returns. The response carries the user-visible text with
// any embedded progress block stripped.
func (h *APIHandler) RecordReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req RecordReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" {
		http.Error(w, "Conversation id is required", http.StatusBadRequest)
		return
	}
	if req.RawText == "" {
		http.Error(w, "Reply text cannot be empty", http.StatusBadRequest)
		return
	}

	result, err := h.ledger.RecordReply(req.ConversationID, req.RawText)
	if err != nil {
		if errors.Is(err, core.ErrConversationNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("Error recording reply for conversation %s: %v", req.ConversationID, err)
		http.Error(w, "Failed to record reply", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// AccountSummaryHandler renders the dashboard summary. Missing or unknown
// identity is a soft empty answer, never an error.
func (h *APIHandler) AccountSummaryHandler(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("external_id")
	email := r.URL.Query().Get("email")

	summary, err := h.ledger.GetAccountSummary(externalID, email)
	if err != nil {
		log.Printf("Error building account summary: %v", err)
		http.Error(w, "Failed to build account summary", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(summary)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("external_id")
	email := r.URL.Query().Get("email")

	infos, err := h.ledger.ListConversations(externalID, email)
	if err != nil {
		log.Printf("Error listing conversations: %v", err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []core.ConversationInfo{}
	}
	json.NewEncoder(w).Encode(infos)
}

type MessageActionRequest struct {
	Action     string `json:"action"` // "hide", "pin" or "unpin"
	ExternalID string `json:"external_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

func (h *APIHandler) MessageActionHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req MessageActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.ledger.ApplyMessageAction(req.Action, messageID, req.ExternalID, req.Email)
	switch {
	case err == nil:
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	case errors.Is(err, core.ErrNoIdentity), errors.Is(err, core.ErrUnknownAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, core.ErrNotOwned):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, core.ErrNotPinned):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("Error applying action %q to message %s: %v", req.Action, messageID, err)
		http.Error(w, "Failed to apply message action", http.StatusInternalServerError)
	}
}
