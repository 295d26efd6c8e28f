package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/akvo/logbook/internal/store"
)

type farmerRequest struct {
	ExternalID  string `json:"external_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type farmerResponse struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  string    `json:"external_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toFarmerResponse(f *store.Farmer) farmerResponse {
	return farmerResponse{
		ID:          f.ID,
		ExternalID:  f.ExternalID,
		Name:        f.Name,
		PhoneNumber: f.PhoneNumber,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func (s *Server) createFarmer(w http.ResponseWriter, r *http.Request) {
	var req farmerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ExternalID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "external_id and name are required")
		return
	}

	farmer, err := s.store.CreateFarmer(r.Context(), req.ExternalID, req.Name, req.PhoneNumber)
	if err != nil {
		s.logger.Error("create farmer failed", "external_id", req.ExternalID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create farmer")
		return
	}
	writeJSON(w, http.StatusCreated, toFarmerResponse(farmer))
}

func (s *Server) listFarmers(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)

	farmers, err := s.store.ListFarmers(r.Context(), search, skip, limit)
	if err != nil {
		s.logger.Error("list farmers failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list farmers")
		return
	}

	out := make([]farmerResponse, 0, len(farmers))
	for i := range farmers {
		out = append(out, toFarmerResponse(&farmers[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getFarmer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	farmer, err := s.store.GetFarmer(r.Context(), id)
	if err != nil {
		farmerError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerResponse(farmer))
}

func (s *Server) getFarmerByExternalID(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	farmer, err := s.store.GetFarmerByExternalID(r.Context(), externalID)
	if err != nil {
		farmerError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerResponse(farmer))
}

func (s *Server) updateFarmer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req farmerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	farmer, err := s.store.UpdateFarmer(r.Context(), id, req.Name, req.PhoneNumber)
	if err != nil {
		farmerError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerResponse(farmer))
}

func (s *Server) deleteFarmer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteFarmer(r.Context(), id); err != nil {
		farmerError(w, s, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func farmerError(w http.ResponseWriter, s *Server, err error) {
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "farmer not found")
		return
	}
	s.logger.Error("farmer operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}
