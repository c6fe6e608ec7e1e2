// Package fakebackend is an in-memory stand-in for the chat backend: the
// HTTP credential/roster/history endpoints and the websocket event channel.
// It exists for tests and local runs of the client.
package fakebackend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"parley/models"
	"parley/protocol"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var ErrInvalidToken = errors.New("token is invalid")

type contextKey string

const claimsContextKey contextKey = "claims"

// UserClaims is the JWT payload.
type UserClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret       string
	TokenTTL     time.Duration
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Server implements the backend endpoints.
type Server struct {
	store    *Store
	config   Config
	router   chi.Router
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session

	requests atomic.Int64
	sent     chan protocol.SendMessage
}

func New(store *Store, config Config) *Server {
	if config.Secret == "" {
		config.Secret = "jwt-secret-key"
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = 24 * time.Hour
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	s := &Server{
		store:    store,
		config:   config,
		log:      config.Logger,
		sessions: make(map[int64]*Session),
		sent:     make(chan protocol.SendMessage, 64),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)
	r.Post("/api/signup", s.handleSignup)
	r.Post("/api/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/api/users", s.handleUsers)
		r.Get("/api/messages", s.handleMessages)
	})
	r.Get("/ws", s.handleWebsocket)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Store() *Store {
	return s.store
}

// Requests is the number of HTTP requests served so far, websocket
// upgrades included.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

// Sent yields every well-formed send_message the server accepted.
func (s *Server) Sent() <-chan protocol.SendMessage {
	return s.sent
}

// IssueToken signs a token for the given user.
func (s *Server) IssueToken(id models.Identity) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: id.ID,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

// ValidateToken parses and validates a token string.
func (s *Server) ValidateToken(token string) (*UserClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := parsed.Claims.(*UserClaims); ok && parsed.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing or invalid token")
			return
		}
		claims, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *UserClaims {
	claims, _ := ctx.Value(claimsContextKey).(*UserClaims)
	return claims
}

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	id, err := s.store.CreateUser(in.Name, in.Email, in.Password)
	if errors.Is(err, ErrEmailExists) {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("signup")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeAuth(w, http.StatusCreated, "User created successfully", id)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "Missing email or password")
		return
	}
	id, ok := s.store.Authenticate(in.Email, in.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.writeAuth(w, http.StatusOK, "Login successful", id)
}

func (s *Server) writeAuth(w http.ResponseWriter, status int, message string, id models.Identity) {
	token, err := s.IssueToken(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, status, map[string]any{
		"message": message,
		"token":   token,
		"user":    id,
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"users": s.store.Others(claims.UserID)})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing user_id parameter")
		return
	}
	other, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id parameter")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.store.Messages(claims.UserID, other)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
