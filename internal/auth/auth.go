package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"typesync/internal/document/access"
	"typesync/internal/document/model"
	"typesync/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Error is a credential or identity failure with a message fit for
// user-facing display.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return "Authentication Error: " + e.Message
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const usersCollection = "users"

type userRecord struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    string `json:"createdAt"`
}

// Service verifies credentials against user records in the store and
// issues HS256 session tokens. It also tracks the signed-in user for the
// embedding client and notifies auth-state listeners on every change.
type Service struct {
	Store    store.Store
	secret   []byte
	tokenTTL time.Duration

	mu        sync.Mutex
	current   string // signed-in email, "" when signed out
	listeners map[int]func(email string)
	nextID    int
}

func NewService(st store.Store, secret []byte) *Service {
	return &Service{
		Store:     st,
		secret:    secret,
		tokenTTL:  24 * time.Hour,
		listeners: make(map[int]func(string)),
	}
}

func validateCredentials(email, password string) error {
	if email == "" || !emailPattern.MatchString(email) {
		return &Error{Message: "Invalid email format"}
	}
	if len(password) < 6 {
		return &Error{Message: "Password must be at least 6 characters"}
	}
	return nil
}

func userPath(email string) string {
	return usersCollection + "/" + access.Canonicalize(email)
}

// SignUp registers a new user and signs them in, returning a session
// token.
func (s *Service) SignUp(ctx context.Context, email, password string) (string, error) {
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}
	path := userPath(email)
	if _, err := s.Store.Read(ctx, path); err == nil {
		return "", &Error{Message: "Email is already registered"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("checking account %s: %w", email, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	record := userRecord{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    model.Timestamp(),
	}
	if err := s.Store.Write(ctx, path, record); err != nil {
		return "", fmt.Errorf("creating account %s: %w", email, err)
	}

	token, err := s.issueToken(email)
	if err != nil {
		return "", err
	}
	s.setCurrent(email)
	return token, nil
}

// SignIn verifies credentials and returns a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, error) {
	if err := validateCredentials(email, password); err != nil {
		return "", err
	}
	raw, err := s.Store.Read(ctx, userPath(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", &Error{Message: "Invalid email or password"}
	}
	if err != nil {
		return "", fmt.Errorf("loading account %s: %w", email, err)
	}
	var record userRecord
	if err := unmarshalRecord(raw, &record); err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
		return "", &Error{Message: "Invalid email or password"}
	}

	token, err := s.issueToken(email)
	if err != nil {
		return "", err
	}
	s.setCurrent(email)
	return token, nil
}

// SignOut clears the signed-in user. Tokens already issued stay valid
// until they expire; sessions are stateless on the server side.
func (s *Service) SignOut() {
	s.setCurrent("")
}

// CurrentUser returns the signed-in email, or "" when signed out.
func (s *Service) CurrentUser() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnAuthStateChanged registers fn for auth-state changes. It is invoked
// immediately with the current state and again on every change. The
// returned func unregisters it.
func (s *Service) OnAuthStateChanged(fn func(email string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.current
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) setCurrent(email string) {
	s.mu.Lock()
	s.current = email
	fns := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(email)
	}
}

func unmarshalRecord(raw json.RawMessage, record *userRecord) error {
	if err := json.Unmarshal(raw, record); err != nil {
		return fmt.Errorf("decoding account record: %w", err)
	}
	return nil
}

func (s *Service) issueToken(email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": email,
		"iat": now.Unix(),
		"exp": now.Add(s.tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
