package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"libralend/internal/app"
	"libralend/internal/ratelimit"
	"libralend/internal/store"
	"libralend/internal/util"
	"libralend/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// Per-endpoint limiters for the unauthenticated surface. Nil
	// disables limiting for that endpoint.
	RegisterLimiter ratelimit.Limiter
	LoginLimiter    ratelimit.Limiter

	// TrustProxy controls whether client IPs are read from forwarding
	// headers when keying the limiters.
	TrustProxy bool

	// AllowedOrigins is the CORS allowlist. Empty means same-origin only.
	AllowedOrigins []string
}

// Server exposes the HTTP endpoints for the lending backend.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	registerLimiter ratelimit.Limiter
	loginLimiter    ratelimit.Limiter
	trustProxy      bool
	allowedOrigins  []string
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		registerLimiter: cfg.RegisterLimiter,
		loginLimiter:    cfg.LoginLimiter,
		trustProxy:      cfg.TrustProxy,
		allowedOrigins:  cfg.AllowedOrigins,
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped in the shared
// request-id, logging, security-header, and CORS middleware.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)

	// users
	s.mux.Handle("/users", s.adminOnly(s.handleUsers))
	s.mux.Handle("/users/", s.authenticated(s.handleUserByID))

	// books
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookSubpath)

	// loans
	s.mux.Handle("/loans", s.authenticated(s.handleLoans))
	s.mux.Handle("/loans/", s.authenticated(s.handleLoanSubpath))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) adminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(r.Context(), token)
}

// auth handlers
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.registerLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// isAdmin is honored only when an admin makes the request
	isAdmin := false
	if req.IsAdmin {
		if caller, ok := s.authorize(r); ok && caller.IsAdmin {
			isAdmin = true
		}
	}
	user, err := s.app.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password, isAdmin)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allow(s.loginLimiter, r) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// user handlers
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	users, err := s.app.ListUsers(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": users,
		"count": len(users),
	})
}

func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request, caller domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/users/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		if !caller.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if err := s.app.DeleteUser(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "loans":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if !caller.IsAdmin && caller.ID != id {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		loans, err := s.app.ListLoansForUser(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": loans,
			"count": len(loans),
		})
	default:
		http.NotFound(w, r)
	}
}

// book handlers
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		books, err := s.app.ListBooks(r.Context())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": books,
			"count": len(books),
		})
	case http.MethodPost:
		caller, ok := s.authorize(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !caller.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		var book domain.Book
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&book); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.app.AddBook(r.Context(), book); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleBookSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/books/")
	if field, ok := strings.CutPrefix(rest, "search/"); ok {
		s.handleBookSearch(w, r, field)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}
	book, err := s.app.GetBook(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) handleBookSearch(w http.ResponseWriter, r *http.Request, field string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	var searchField store.BookSearchField
	switch field {
	case "title":
		searchField = store.SearchByTitle
	case "authors":
		searchField = store.SearchByAuthor
	case "publisher":
		searchField = store.SearchByPublisher
	default:
		http.NotFound(w, r)
		return
	}
	books, err := s.app.SearchBooks(r.Context(), searchField, r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": books,
		"count": len(books),
	})
}

// loan handlers
func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request, caller domain.User) {
	switch r.Method {
	case http.MethodGet:
		if !caller.IsAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		loans, err := s.app.ListLoans(r.Context())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": loans,
			"count": len(loans),
		})
	case http.MethodPost:
		var req createLoanRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		// borrowing on behalf of someone else is an admin operation
		userID := caller.ID
		if req.UserID != "" && req.UserID != caller.ID {
			if !caller.IsAdmin {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			userID = req.UserID
		}
		loan, err := s.app.CreateLoan(r.Context(), req.BookID, userID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, loan)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLoanSubpath(w http.ResponseWriter, r *http.Request, caller domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/loans/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	loan, err := s.app.GetLoan(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !caller.IsAdmin && loan.UserID != caller.ID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	switch sub {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, loan)
	case "return":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if err := s.app.ReturnLoan(r.Context(), id); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "status":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		msg, err := s.app.CheckStatus(r.Context(), id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": msg})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) allow(limiter ratelimit.Limiter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(util.ClientIP(r, s.trustProxy))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	IsAdmin   bool   `json:"isAdmin"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type createLoanRequest struct {
	BookID int    `json:"bookId"`
	UserID string `json:"userId"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

// writeAppError maps an error kind from the loan engine to a status.
func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrBadRequest),
		errors.Is(err, app.ErrInvalidCredentials),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrLoanReturned),
		errors.Is(err, app.ErrBookAlreadyLoaned):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrPasswordHash):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
