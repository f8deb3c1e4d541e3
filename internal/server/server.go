//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=server_mocks
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carbook/internal/booking"
)

// Engine is the booking surface the HTTP layer exposes; implemented by
// booking.Manager.
type Engine interface {
	CreateReservation(ctx context.Context, req booking.CreateRequest) (*booking.Reservation, error)
	ReplaceReservation(ctx context.Context, req booking.ReplaceRequest) (*booking.Reservation, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (*booking.Reservation, error)
	RecordPickup(ctx context.Context, id uuid.UUID, at time.Time) (*booking.Reservation, error)
	RecordReturn(ctx context.Context, id uuid.UUID, at time.Time) (*booking.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*booking.Reservation, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]*booking.Event, error)
	ListActiveForCar(ctx context.Context, carID string) ([]*booking.Reservation, error)
}

type UserRepo interface {
	ValidateUser(ctx context.Context, username, password string) (bool, error)
}

type Server struct {
	engine       Engine
	userRepo     UserRepo
	logger       *zap.Logger
	server       *http.Server
	AuditManager *AuditManager
}

func New(engine Engine, userRepo UserRepo, logger *zap.Logger) *Server {
	auditManager := NewAuditManager(2, 5, 500*time.Millisecond, logger)
	return &Server{
		engine:       engine,
		userRepo:     userRepo,
		logger:       logger,
		AuditManager: auditManager,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.AuditManager.Start(ctx)

	go s.handleShutdown()

	s.logger.Info("server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleShutdown() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	s.logger.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.AuditManager.Shutdown(ctx)
	s.logger.Info("server shutdown completed")
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(s.auditLogMiddleware, s.basicAuthMiddleware)

	api.HandleFunc("/reservations", s.handleCreateReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}", s.handleGetReservation).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}/history", s.handleReservationHistory).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}/replace", s.handleReplaceReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/cancel", s.handleCancelReservation).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/pickup", s.handleRecordPickup).Methods(http.MethodPost)
	api.HandleFunc("/reservations/{id}/return", s.handleRecordReturn).Methods(http.MethodPost)
	api.HandleFunc("/cars/{carID}/reservations", s.handleListCarReservations).Methods(http.MethodGet)

	return router
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		valid, err := s.userRepo.ValidateUser(r.Context(), username, password)
		if err != nil || !valid {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

type errorResponse struct {
	Error       string   `json:"error"`
	ConflictIDs []string `json:"conflict_ids,omitempty"`
	Retryable   bool     `json:"retryable,omitempty"`
}

// respondEngineError translates the engine's typed failures. Business-rule
// rejections are 409, bad input 400, unknown ids 404; lock timeouts and
// persistence failures surface as retryable 503s.
func respondEngineError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Retryable: booking.Retryable(err)}

	var conflict *booking.ConflictError
	if errors.As(err, &conflict) {
		for _, id := range conflict.ConflictIDs {
			resp.ConflictIDs = append(resp.ConflictIDs, id.String())
		}
	}

	respondJSON(w, statusForError(err), resp)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrCarNotAvailable),
		errors.Is(err, booking.ErrAlreadyReplaced),
		errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrAlreadyFulfilled),
		errors.Is(err, booking.ErrAlreadyPickedUp),
		errors.Is(err, booking.ErrAlreadyReturned),
		errors.Is(err, booking.ErrNotPickedUpYet),
		errors.Is(err, booking.ErrReturnBeforePickup):
		return http.StatusConflict
	case booking.Retryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

type reservationRequest struct {
	CarID       string    `json:"car_id"`
	HolderID    string    `json:"holder_id"`
	DepartureAt time.Time `json:"departure_at"`
	ReturnAt    time.Time `json:"return_at"`
	QuotedPrice int64     `json:"quoted_price"`
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CarID == "" || req.HolderID == "" {
		respondError(w, http.StatusBadRequest, "Missing car_id or holder_id")
		return
	}

	res, err := s.engine.CreateReservation(r.Context(), booking.CreateRequest{
		CarID:       req.CarID,
		HolderID:    req.HolderID,
		DepartureAt: req.DepartureAt,
		ReturnAt:    req.ReturnAt,
		QuotedPrice: req.QuotedPrice,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleReplaceReservation(w http.ResponseWriter, r *http.Request) {
	oldID, ok := reservationID(w, r)
	if !ok {
		return
	}

	var req reservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CarID == "" || req.HolderID == "" {
		respondError(w, http.StatusBadRequest, "Missing car_id or holder_id")
		return
	}

	res, err := s.engine.ReplaceReservation(r.Context(), booking.ReplaceRequest{
		OldID: oldID,
		CreateRequest: booking.CreateRequest{
			CarID:       req.CarID,
			HolderID:    req.HolderID,
			DepartureAt: req.DepartureAt,
			ReturnAt:    req.ReturnAt,
			QuotedPrice: req.QuotedPrice,
		},
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}

	res, err := s.engine.CancelReservation(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

type timestampRequest struct {
	At time.Time `json:"at"`
}

// decodeTimestamp tolerates an empty body; a zero timestamp means "now".
func decodeTimestamp(r *http.Request) (time.Time, error) {
	var req timestampRequest
	if r.Body == nil {
		return time.Time{}, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return time.Time{}, err
	}
	return req.At, nil
}

func (s *Server) handleRecordPickup(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}

	at, err := decodeTimestamp(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.engine.RecordPickup(r.Context(), id, at)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecordReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}

	at, err := decodeTimestamp(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.engine.RecordReturn(r.Context(), id, at)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}

	res, err := s.engine.GetReservation(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReservationHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}

	history, err := s.engine.GetHistory(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleListCarReservations(w http.ResponseWriter, r *http.Request) {
	carID := mux.Vars(r)["carID"]
	if carID == "" {
		respondError(w, http.StatusBadRequest, "Missing car ID")
		return
	}

	reservations, err := s.engine.ListActiveForCar(r.Context(), carID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, reservations)
}

func reservationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid reservation ID")
		return uuid.Nil, false
	}
	return id, true
}
