package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/tutorlink/chat-service/internal/config"
	"github.com/tutorlink/chat-service/internal/database"
	"github.com/tutorlink/chat-service/internal/server"
)

// ChatApp is the HTTP edge of the conversation service: the fallback
// request/response surface plus the websocket upgrade endpoint.
type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	mux            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /api/conversation", s.authMiddleware(s.getConversation))
	mux.Handle("DELETE /api/conversation", s.authMiddleware(s.deleteConversation))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.getConversationSummaries))
	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("POST /api/messages/read", s.authMiddleware(s.markRead))
	mux.Handle("GET /api/messages/unread-count", s.authMiddleware(s.unreadCount))
	mux.Handle("GET /api/sessions/messages", s.authMiddleware(s.getSessionMessages))
	mux.Handle("DELETE /api/sessions/messages", s.authMiddleware(s.deleteSessionMessages))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
