package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	respond "github.com/mindmark/mindmark-server/internal/api/respond"
	"github.com/mindmark/mindmark-server/internal/auth"
	"github.com/mindmark/mindmark-server/internal/model"
	"github.com/mindmark/mindmark-server/internal/services"
)

// MessageHandler serves transcript reads and chat turns for a topic.
type MessageHandler struct {
	messages   *services.MessageService
	turns      *services.TurnService
	authorizer auth.Authorizer
}

func NewMessageHandler(messages *services.MessageService, turns *services.TurnService, authorizer auth.Authorizer) *MessageHandler {
	return &MessageHandler{messages: messages, turns: turns, authorizer: authorizer}
}

// ListMessages GET /api/topics/{topicId}/messages?limit=&before=&after=
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}

	req := model.ListMessagesRequest{
		UserID:  actor.UserID,
		TopicID: mux.Vars(r)["topicId"],
	}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.WriteBadRequest(w, "limit must be a non-negative integer")
			return
		}
		req.Limit = n
	}
	if v := q.Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.WriteBadRequest(w, "before must be RFC3339")
			return
		}
		req.Before = &ts
	}
	if v := q.Get("after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.WriteBadRequest(w, "after must be RFC3339")
			return
		}
		req.After = &ts
	}

	msgs, err := h.messages.ListMessages(r.Context(), req)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs, "count": len(msgs)})
}

// CreateMessage POST /api/topics/{topicId}/messages
//
// Creating a message runs a full turn: the user message is recorded, the
// session's agent replies, and the created message is returned together with
// the agent's response.
func (h *MessageHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	var req struct {
		UserMessage string `json:"user_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	res, err := h.turns.RunTurn(r.Context(), actor.UserID, mux.Vars(r)["topicId"], req.UserMessage)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, struct {
		*model.Message
		AgentResponse string `json:"agent_response"`
	}{res.UserMessage, res.AgentResponse})
}

// Chat POST /api/topics/{topicId}/chat
func (h *MessageHandler) Chat(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	var req struct {
		UserMessage string `json:"user_message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	res, err := h.turns.RunTurn(r.Context(), actor.UserID, mux.Vars(r)["topicId"], req.UserMessage)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"agent_response": res.AgentResponse})
}
