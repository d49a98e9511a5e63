package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

// NewRouter はルーティングを設定します
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests)
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(h.authenticate)

	rooms := v1.PathPrefix("/rooms/{roomId}").Subrouter()
	rooms.HandleFunc("/availability", h.require(model.CapViewAvailability, h.ListAvailability)).Methods(http.MethodGet)
	rooms.HandleFunc("/availability/{date}", h.require(model.CapViewAvailability, h.GetAvailability)).Methods(http.MethodGet)
	rooms.HandleFunc("/reservations", h.require(model.CapBook, h.Reserve)).Methods(http.MethodPost)
	rooms.HandleFunc("/releases", h.require(model.CapBook, h.Release)).Methods(http.MethodPost)
	rooms.HandleFunc("/inventory", h.require(model.CapManageInventory, h.SeedInventory)).Methods(http.MethodPost)
	rooms.HandleFunc("/inventory/extend", h.require(model.CapManageInventory, h.ExtendInventory)).Methods(http.MethodPost)
	rooms.HandleFunc("/capacity", h.require(model.CapManageInventory, h.ResizeCapacity)).Methods(http.MethodPut)
	rooms.HandleFunc("/events", h.require(model.CapViewAudit, h.ListEvents)).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		h.logger.Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
