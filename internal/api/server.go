// Package api exposes the HTTP surface: the WhatsApp webhook plus a
// small management API over farmers and records.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akvo/logbook/internal/extractor"
	"github.com/akvo/logbook/internal/store"
	"github.com/akvo/logbook/internal/twilio"
)

// InboundHandler processes one webhook turn end to end.
type InboundHandler interface {
	HandleInbound(ctx context.Context, in twilio.IncomingMessage) error
}

// Extractor backs the standalone /api/extract endpoint.
type Extractor interface {
	Extract(ctx context.Context, in extractor.Input) ([]extractor.Candidate, error)
}

type Server struct {
	router    *chi.Mux
	port      int
	store     *store.Store
	inbound   InboundHandler
	extractor Extractor
	logger    *slog.Logger
}

func NewServer(port int, db *store.Store, inbound InboundHandler, ext Extractor, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		store:     db,
		inbound:   inbound,
		extractor: ext,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Post("/api/webhook/whatsapp", s.whatsappWebhook)
	router.Post("/api/extract", s.extract)

	router.Route("/api/farmers", func(r chi.Router) {
		r.Post("/", s.createFarmer)
		r.Get("/", s.listFarmers)
		r.Get("/external/{externalID}", s.getFarmerByExternalID)
		r.Get("/{id}", s.getFarmer)
		r.Put("/{id}", s.updateFarmer)
		r.Delete("/{id}", s.deleteFarmer)
	})

	router.Route("/api/records", func(r chi.Router) {
		r.Post("/", s.createRecord)
		r.Get("/", s.listRecords)
		r.Get("/followup", s.listFollowupRecords)
		r.Get("/{id}", s.getRecord)
		r.Put("/{id}", s.updateRecord)
		r.Delete("/{id}", s.deleteRecord)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// whatsappWebhook receives Twilio's form-encoded callback. A 500 makes
// Twilio retry the delivery, so only persistence failures return one;
// everything else is handled inside the processor.
func (s *Server) whatsappWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}

	in := twilio.ParseIncoming(r.PostForm)
	if in.MessageSID == "" || in.From == "" {
		writeError(w, http.StatusBadRequest, "MessageSid and From are required")
		return
	}

	if err := s.inbound.HandleInbound(r.Context(), in); err != nil {
		s.logger.Error("webhook processing failed", "sid", in.MessageSID, "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
