package router

import (
	"net/http"

	"typesync/internal/auth"
	docHandler "typesync/internal/document"
	"typesync/internal/document/service"
	"typesync/middleware"
	"typesync/socket"
)

func Setup(secret []byte, docs *service.DocumentService, authSvc *auth.Service, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()
	guard := middleware.Auth(secret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := middleware.UserEmail(r.Context())
		socket.ServeWs(hub, w, r, email)
	})
	mux.Handle("/ws", guard(wsHandler))

	// Auth
	authHandler := auth.NewHandler(authSvc)
	mux.Handle("/api/auth/signup", http.HandlerFunc(authHandler.SignUp))
	mux.Handle("/api/auth/signin", http.HandlerFunc(authHandler.SignIn))
	mux.Handle("/api/auth/signout", guard(http.HandlerFunc(authHandler.SignOut)))

	// REST API
	documents := docHandler.NewDocumentHandler(docs)

	mux.Handle("/api/documents/create", guard(http.HandlerFunc(documents.CreateDocument)))
	mux.Handle("/api/documents/delete", guard(http.HandlerFunc(documents.DeleteDocument)))
	mux.Handle("/api/documents/update", guard(http.HandlerFunc(documents.UpdateDocument)))
	mux.Handle("/api/documents", guard(http.HandlerFunc(documents.GetDocuments)))
	mux.Handle("/api/documents/invite", guard(http.HandlerFunc(documents.AddCollaborator)))
	mux.Handle("/api/documents/revoke", guard(http.HandlerFunc(documents.RemoveCollaborator)))
	mux.Handle("/api/documents/members", guard(http.HandlerFunc(documents.GetDocumentMembers)))

	return middleware.CORSMiddleware(mux)
}
