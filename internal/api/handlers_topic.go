package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/mindmark/mindmark-server/internal/api/respond"
	"github.com/mindmark/mindmark-server/internal/auth"
	"github.com/mindmark/mindmark-server/internal/services"
)

// TopicHandler is the HTTP transport for topic CRUD. Every route requires a
// bearer token; the acting user is whoever the token resolves to, never a
// path parameter.
type TopicHandler struct {
	svc        *services.TopicService
	authorizer auth.Authorizer
}

func NewTopicHandler(svc *services.TopicService, authorizer auth.Authorizer) *TopicHandler {
	return &TopicHandler{svc: svc, authorizer: authorizer}
}

func authorize(w http.ResponseWriter, r *http.Request, a auth.Authorizer) (*auth.Actor, bool) {
	token, err := auth.ExtractBearerToken(r)
	if err != nil {
		respond.WriteUnauthorized(w, err.Error())
		return nil, false
	}
	actor, err := a.Authorize(r.Context(), token)
	if err != nil {
		respond.WriteServiceError(w, err)
		return nil, false
	}
	return actor, true
}

// CreateTopic POST /api/topics
func (h *TopicHandler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	tp, err := h.svc.CreateTopic(r.Context(), actor.UserID, req.Title)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, tp)
}

// ListTopics GET /api/topics
func (h *TopicHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	topics, err := h.svc.ListTopics(r.Context(), actor.UserID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"topics": topics, "count": len(topics)})
}

// GetTopic GET /api/topics/{topicId}
func (h *TopicHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	tp, err := h.svc.GetTopic(r.Context(), actor.UserID, mux.Vars(r)["topicId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, tp)
}

// RenameTopic PUT/PATCH /api/topics/{topicId}
func (h *TopicHandler) RenameTopic(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	tp, err := h.svc.RenameTopic(r.Context(), actor.UserID, mux.Vars(r)["topicId"], req.Title)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, tp)
}

// DeleteTopic DELETE /api/topics/{topicId}
func (h *TopicHandler) DeleteTopic(w http.ResponseWriter, r *http.Request) {
	actor, ok := authorize(w, r, h.authorizer)
	if !ok {
		return
	}
	if err := h.svc.DeleteTopic(r.Context(), actor.UserID, mux.Vars(r)["topicId"]); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
