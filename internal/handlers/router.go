package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pliu/chatcore/internal/auth"
	"github.com/pliu/chatcore/internal/middleware"
	"github.com/pliu/chatcore/internal/respond"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

func NewRouter(chatHandler *ChatHandler, resolver auth.Resolver, health HealthCheck, log *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := health(req.Context()); err != nil {
			log.Error("Health check failed", "error", err)
			respond.JSON(w, http.StatusServiceUnavailable, "unavailable", nil)
			return
		}
		respond.OK(w, "ok", nil)
	}).Methods("GET")

	api := r.NewRoute().Subrouter()
	api.Use(middleware.AuthMiddleware(resolver, log))

	api.HandleFunc("/rooms", chatHandler.ListRooms).Methods("GET")
	api.HandleFunc("/rooms/direct/{peerId}", chatHandler.DirectRoom).Methods("POST")
	api.HandleFunc("/rooms/group", chatHandler.GroupRoom).Methods("POST")
	api.HandleFunc("/rooms/create", chatHandler.CreateRoom).Methods("POST")
	api.HandleFunc("/rooms/{id}", chatHandler.GetRoom).Methods("GET")
	api.HandleFunc("/rooms/{id}", chatHandler.DeleteRoom).Methods("DELETE")
	api.HandleFunc("/rooms/{id}/messages", chatHandler.GetMessages).Methods("GET")
	api.HandleFunc("/rooms/{id}/search", chatHandler.SearchMessages).Methods("GET")
	api.HandleFunc("/rooms/{id}/send", chatHandler.SendMessage).Methods("POST")
	api.HandleFunc("/rooms/{id}/rename", chatHandler.RenameRoom).Methods("PATCH")
	api.HandleFunc("/rooms/{id}/members/add", chatHandler.AddMembers).Methods("POST")
	api.HandleFunc("/rooms/{id}/read", chatHandler.MarkRead).Methods("PATCH")
	api.HandleFunc("/rooms/{id}/delivered", chatHandler.MarkDelivered).Methods("PATCH")
	api.HandleFunc("/messages/{id}", chatHandler.DeleteMessage).Methods("DELETE")
	api.HandleFunc("/ws", chatHandler.ServeWs).Methods("GET")

	return r
}
