package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"typesync/pkg/logger"
)

type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.Service.SignUp)
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	h.handleCredentials(w, r, h.Service.SignIn)
}

func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.Service.SignOut()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signed out"))
}

func (h *Handler) handleCredentials(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (string, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := op(r.Context(), req.Email, req.Password)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) {
			http.Error(w, authErr.Error(), http.StatusUnauthorized)
			return
		}
		logger.Sugar.Errorf("Auth operation failed for %s: %v", req.Email, err)
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{Token: token, Email: req.Email})
}
