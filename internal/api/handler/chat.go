package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/folio-core/internal/chat"
	"github.com/xela07ax/folio-core/internal/domain"
	"github.com/xela07ax/folio-core/internal/shared"
)

// ChatService: то, что эндпоинтам чата нужно от chat.Service.
type ChatService interface {
	HandleMessage(ctx context.Context, sessionID, text string) (chat.Reply, error)
	Close(ctx context.Context, sessionID string) error
	Session(sessionID string) (domain.ChatSession, error)
}

type ChatHandler struct {
	service ChatService
	logger  *zap.Logger
}

func NewChatHandler(s ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: s, logger: logger.Named("chat-handler")}
}

type MessageRequest struct {
	Text string `json:"text"`
}

type MessageResponse struct {
	SessionID    string           `json:"sessionId"`
	InstanceID   string           `json:"instanceId"`
	Turn         int              `json:"turn"`
	Text         string           `json:"text"`
	Intent       domain.Intent    `json:"intent"`
	MatchedFacts []domain.FactRef `json:"matchedFacts"`
}

// PostMessage отвечает на одно сообщение.
// POST /chat/{sessionId}/message {"text": "..."}
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := shared.DecodeJSON(r.Body, &req, shared.DefaultBodyLimit); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	reply, err := h.service.HandleMessage(r.Context(), chi.URLParam(r, "sessionId"), req.Text)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	facts := reply.MatchedFacts
	if facts == nil {
		facts = []domain.FactRef{}
	}
	writeJSON(w, h.logger, http.StatusOK, MessageResponse{
		SessionID:    reply.SessionID,
		InstanceID:   reply.InstanceID,
		Turn:         reply.Turn,
		Text:         reply.Text,
		Intent:       reply.Intent,
		MatchedFacts: facts,
	})
}

// Close завершает сессию.
// DELETE /chat/{sessionId}
func (h *ChatHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Close(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession возвращает состояние сессии.
// GET /chat/{sessionId}
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Session(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sess)
}
