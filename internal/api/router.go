package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mindmark/mindmark-server/internal/api/recovery"
	"github.com/mindmark/mindmark-server/internal/auth"
	"github.com/mindmark/mindmark-server/internal/services"
)

// Deps carries the wired services the router exposes over HTTP.
type Deps struct {
	Users      *services.UserService
	Topics     *services.TopicService
	Messages   *services.MessageService
	Turns      *services.TurnService
	Issuer     *auth.TokenIssuer
	Authorizer auth.Authorizer
}

// NewRouter builds the HTTP router for the service.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	authHandler := NewAuthHandler(d.Users, d.Issuer)
	topicHandler := NewTopicHandler(d.Topics, d.Authorizer)
	messageHandler := NewMessageHandler(d.Messages, d.Turns, d.Authorizer)
	healthHandler := NewHealthHandler()

	// Existing clients send both slashed and unslashed paths, so every route
	// is registered under both forms.
	handle := func(path string, h http.HandlerFunc, methods ...string) {
		router.HandleFunc(path, h).Methods(methods...)
		router.HandleFunc(path+"/", h).Methods(methods...)
	}

	// Health endpoint
	handle("/api/health", healthHandler.CheckHealth, "GET")

	// Auth endpoints
	handle("/api/register", authHandler.Register, "POST")
	handle("/api/token", authHandler.Token, "POST")
	handle("/api/token/refresh", authHandler.Refresh, "POST")

	// Topic endpoints
	handle("/api/topics", topicHandler.CreateTopic, "POST")
	handle("/api/topics", topicHandler.ListTopics, "GET")
	handle("/api/topics/{topicId}", topicHandler.GetTopic, "GET")
	handle("/api/topics/{topicId}", topicHandler.RenameTopic, "PUT", "PATCH")
	handle("/api/topics/{topicId}", topicHandler.DeleteTopic, "DELETE")

	// Message and chat endpoints
	handle("/api/topics/{topicId}/messages", messageHandler.ListMessages, "GET")
	handle("/api/topics/{topicId}/messages", messageHandler.CreateMessage, "POST")
	handle("/api/topics/{topicId}/chat", messageHandler.Chat, "POST")

	return router
}
