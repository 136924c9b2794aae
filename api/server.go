package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/wricardo/groupcart/group/service"
	"github.com/wricardo/groupcart/group/session"
	"github.com/wricardo/groupcart/logging"
	"github.com/wricardo/groupcart/transport/websocket"
)

const maxBodyBytes = 1 << 20

// Server represents the REST API server
type Server struct {
	service service.GroupService
	hub     *websocket.Hub
	auth    *Authenticator
	router  *mux.Router
	handler http.Handler
	log     zerolog.Logger
	origins []string
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = logging.Component(l, "api") }
}

// WithAllowedOrigins sets the CORS origins. Defaults to "*".
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a new API server
func NewServer(svc service.GroupService, hub *websocket.Hub, auth *Authenticator, opts ...Option) *Server {
	s := &Server{
		service: svc,
		hub:     hub,
		auth:    auth,
		router:  mux.NewRouter(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	s.handler = corsHandler(s.origins, s.requestLogger(s.router))
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	orders := s.router.PathPrefix("/api/group-orders").Subrouter()
	orders.Use(s.auth.Middleware)

	orders.HandleFunc("/create", s.handleCreate).Methods("POST")
	orders.HandleFunc("/join", s.handleJoin).Methods("POST")
	orders.HandleFunc("/sync", s.handleSync).Methods("POST")
	orders.HandleFunc("/leave", s.handleLeave).Methods("POST")
	orders.HandleFunc("/complete", s.handleComplete).Methods("POST")
	orders.HandleFunc("/cancel", s.handleCancel).Methods("POST")
	orders.HandleFunc("/kick", s.handleKick).Methods("POST")
	orders.HandleFunc("/restaurant", s.handleSetRestaurant).Methods("POST")
	// Must be registered before {code}
	orders.HandleFunc("/active", s.handleActive).Methods("GET")
	orders.HandleFunc("/{code}", s.handleGet).Methods("GET")

	s.router.Handle("/ws", s.auth.Middleware(http.HandlerFunc(s.handleWebSocket))).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func statusFor(kind session.Kind) int {
	switch kind {
	case session.KindNotFound:
		return http.StatusNotFound
	case session.KindForbidden:
		return http.StatusForbidden
	case session.KindInvalidInput:
		return http.StatusBadRequest
	case session.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := session.KindOf(err)
	msg := err.Error()
	if kind == session.KindInternal {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	respondJSON(w, statusFor(kind), errorResponse{Error: msg, Kind: string(kind)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", session.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid request body: %v", session.ErrInvalidInput, err)
	}
	return nil
}

func actorFrom(r *http.Request) service.Actor {
	claims, _ := ClaimsFrom(r.Context())
	return claims.Actor()
}

type codeRequest struct {
	Code string `json:"code"`
}

// Group order handlers

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RestaurantRef string `json:"restaurant_ref"`
	}
	// The body is optional.
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	view, err := s.service.Create(r.Context(), actorFrom(r), req.RestaurantRef)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.Join(r.Context(), req.Code, actorFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string             `json:"code"`
		Items []session.CartItem `json:"items"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.Sync(r.Context(), req.Code, actorFrom(r), req.Items)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.Leave(r.Context(), req.Code, actorFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		OrderRef string `json:"order_ref"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.Complete(r.Context(), req.Code, actorFrom(r), req.OrderRef)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.Cancel(r.Context(), req.Code, actorFrom(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		UserID string `json:"user_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.Kick(r.Context(), req.Code, actorFrom(r), req.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetRestaurant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code          string `json:"code"`
		RestaurantRef string `json:"restaurant_ref"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	view, err := s.service.SetRestaurant(r.Context(), req.Code, actorFrom(r), req.RestaurantRef)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.CheckActive(r.Context(), actorFrom(r).UserID)
	if errors.Is(err, session.ErrNotFound) {
		respondJSON(w, http.StatusOK, map[string]*service.SessionView{"session": nil})
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]*service.SessionView{"session": view})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.GetDetails(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := session.NormalizeCode(r.URL.Query().Get("code"))
	if code == "" {
		s.respondError(w, r, fmt.Errorf("%w: code parameter required", session.ErrInvalidInput))
		return
	}

	view, err := s.service.GetDetails(r.Context(), code)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	userID := actorFrom(r).UserID
	if !activeIn(view, userID) {
		s.respondError(w, r, session.ErrNotParticipant)
		return
	}

	s.hub.ServeWS(w, r, view.Code, userID)
}

func activeIn(view *service.SessionView, userID string) bool {
	for _, p := range view.Participants {
		if p.UserID == userID {
			return p.Status == session.ParticipantActive
		}
	}
	return false
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
