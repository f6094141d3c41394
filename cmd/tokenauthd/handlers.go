package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/middleware"
	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// authEngine is the subset of *tokenauth.Engine the handlers call.
type authEngine interface {
	middleware.Authenticator
	Login(ctx context.Context, username, password string) (tokenauth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (tokenauth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Register(ctx context.Context, username, password string, roles []string) (tokenauth.AccountInfo, error)
	Unlock(ctx context.Context, username string) error
}

type server struct {
	engine  authEngine
	log     logrus.FieldLogger
	metrics http.Handler
	ping    func(context.Context) error
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(recoverer(s.log), requestLogging(s.log), clientIPMiddleware)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authenticate(s.engine))
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.refresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.register).Methods(http.MethodPost)
	api.Handle("/me", middleware.RequireAuthenticated(http.HandlerFunc(s.me))).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAnyRole(tokenauth.RoleModerator, tokenauth.RoleSuperAdmin))
	admin.HandleFunc("/accounts/{username}/unlock", s.unlock).Methods(http.MethodPost)

	return r
}

type credentialsRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type accountResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type identityResponse struct {
	Subject string   `json:"subject"`
	Roles   []string `json:"roles"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := s.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	_ = s.engine.Logout(r.Context(), req.RefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

// register creates an account. Only a SUPER_ADMIN caller may choose roles.
func (s *server) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Roles) > 0 && !tokenauth.IdentityFromContext(r.Context()).HasRole(tokenauth.RoleSuperAdmin) {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "roles may only be assigned by an administrator"})
		return
	}
	info, err := s.engine.Register(r.Context(), req.Username, req.Password, req.Roles)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{ID: info.ID, Username: info.Username, Roles: info.Roles})
}

func (s *server) unlock(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if err := s.engine.Unlock(r.Context(), username); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"username": username,
		"by":       tokenauth.IdentityFromContext(r.Context()).Subject,
	}).Info("tokenauthd: account unlocked")
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	id := tokenauth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, identityResponse{Subject: id.Subject, Roles: id.Roles})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if s.ping != nil {
		if err := s.ping(ctx); err != nil {
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "degraded"}
		}
	}
	writeJSON(w, status, body)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tokenauth.ErrAccountLocked):
		writeJSON(w, http.StatusLocked, errorBody{Error: "account locked"})
	case errors.Is(err, tokenauth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid credentials"})
	case errors.Is(err, tokenauth.ErrInvalidRefreshToken):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid refresh token"})
	case errors.Is(err, tokenauth.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, errorBody{Error: "username already taken"})
	case errors.Is(err, tokenauth.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "account not found"})
	case errors.Is(err, tokenauth.ErrInvalidRegistration):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid registration request"})
	case errors.Is(err, tokenauth.ErrStorageUnavailable):
		sentry.CaptureException(err)
		s.log.WithError(err).WithField("path", r.URL.Path).Error("tokenauthd: storage unavailable")
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service unavailable"})
	default:
		sentry.CaptureException(err)
		s.log.WithError(err).WithField("path", r.URL.Path).Error("tokenauthd: request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func newTokenResponse(pair tokenauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(time.Until(pair.AccessExpiresAt).Seconds()),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC(),
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
