package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/atelierdesign/site-chat/internal/handler/chat"
	"github.com/atelierdesign/site-chat/internal/handler/socket"
	middlewarePkg "github.com/atelierdesign/site-chat/internal/middleware"
	"github.com/atelierdesign/site-chat/internal/service/assistant"
	chatService "github.com/atelierdesign/site-chat/internal/service/chat"
)

// NewRouter wires the relay's HTTP and websocket routes.
func NewRouter(chatSvc *chatService.Service, responder assistant.Responder, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(chatSvc, responder, logger)
	socketHandler := socket.New(chatSvc, responder, logger)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		socketHandler.RegisterRoutes(api)
	})

	return r
}
