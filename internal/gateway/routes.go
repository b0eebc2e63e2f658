package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	api := s.requireAPI
	admin := s.requireAdmin
	write := func(h http.HandlerFunc) http.HandlerFunc { return s.limited(s.writeLimit, "write", h) }

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Threads and messages
	mux.HandleFunc("GET /api/conversations", api(s.handleConversations))
	mux.HandleFunc("GET /api/messages/{phone}", s.handleMessages)
	mux.HandleFunc("GET /api/message/{id}", s.handleMessage)
	mux.HandleFunc("POST /api/read", api(s.handleRead))

	// Profiles
	mux.HandleFunc("GET /api/user/{phone}", s.handleGetUser)
	mux.HandleFunc("POST /api/user", s.handlePostUser)

	// Translation and uploads
	mux.HandleFunc("POST /api/translate", api(write(s.handleTranslate)))
	mux.HandleFunc("POST /api/upload", s.limited(s.uploadLimit, "upload", s.handleUpload))
	mux.HandleFunc("GET /uploads/{name}", s.handleServeUpload)

	// Agent notes
	mux.HandleFunc("GET /api/notes/{phone}", api(s.handleListNotes))
	mux.HandleFunc("POST /api/notes", api(write(s.handleAddNote)))
	mux.HandleFunc("PATCH /api/notes/{id}", api(write(s.handleUpdateNote)))
	mux.HandleFunc("POST /api/notes/{id}/pin", api(write(s.handlePinNote)))
	mux.HandleFunc("DELETE /api/notes/{id}", api(write(s.handleDeleteNote)))

	// Access management
	mux.HandleFunc("GET /api/agent/acl", admin(s.handleListACL))
	mux.HandleFunc("POST /api/agent/acl/add", admin(s.handleAddACL))
	mux.HandleFunc("DELETE /api/agent/acl/{phone}", admin(s.handleRemoveACL))
	mux.HandleFunc("GET /api/agent/tokens", admin(s.handleListTokens))
	mux.HandleFunc("POST /api/agent/tokens", admin(s.handleCreateToken))
	mux.HandleFunc("DELETE /api/agent/tokens/{id}", admin(s.handleRevokeToken))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
