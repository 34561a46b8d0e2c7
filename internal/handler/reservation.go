package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bikerent-system/internal/model"
)

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

type rentStartRequest struct {
	BicycleID int64 `json:"bicycle_id"`
	StationID int64 `json:"station_id"`
}

type rentCompleteRequest struct {
	StationID int64 `json:"station_id"`
}

type rentalResponse struct {
	ID             int64              `json:"id"`
	UserID         int64              `json:"user_id"`
	BicycleID      int64              `json:"bicycle_id"`
	StartStationID int64              `json:"start_station_id"`
	EndStationID   *int64             `json:"end_station_id,omitempty"`
	Status         model.RentalStatus `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        *time.Time         `json:"ended_at,omitempty"`
	Cost           int64              `json:"cost"`
}

func toRentalResponse(r *model.Rental) rentalResponse {
	return rentalResponse{
		ID:             r.ID,
		UserID:         r.UserID,
		BicycleID:      r.BicycleID,
		StartStationID: r.StartStationID,
		EndStationID:   r.EndStationID,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
		Cost:           r.Cost,
	}
}

// StartRental открывает аренду велосипеда текущим пользователем.
func (h *Handler) StartRental(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req rentStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BicycleID <= 0 || req.StationID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	rental, err := h.reservations.RentStart(r.Context(), userID, req.BicycleID, req.StationID)
	if err != nil {
		h.writeError(w, err, "rent start error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toRentalResponse(rental))
}

// rentalAccessAllowed проверяет, что аренда принадлежит текущему
// пользователю либо запрос выполняет администратор.
func (h *Handler) rentalAccessAllowed(w http.ResponseWriter, r *http.Request, rentalID int64) bool {
	if isAdmin(r) {
		return true
	}
	userID, ok := currentUserID(w, r)
	if !ok {
		return false
	}

	rental, err := h.catalog.GetRental(r.Context(), rentalID)
	if err != nil {
		h.writeError(w, err, "get rental error")
		return false
	}
	if rental.UserID != userID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return false
	}
	return true
}

// CompleteRental завершает аренду на указанной станции.
func (h *Handler) CompleteRental(w http.ResponseWriter, r *http.Request) {
	rentalID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req rentCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StationID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.rentalAccessAllowed(w, r, rentalID) {
		return
	}

	rental, err := h.reservations.RentComplete(r.Context(), rentalID, req.StationID)
	if err != nil {
		h.writeError(w, err, "rent complete error")
		return
	}

	h.writeJSON(w, http.StatusOK, toRentalResponse(rental))
}

// CancelRental отменяет аренду, велосипед возвращается на стартовую станцию.
func (h *Handler) CancelRental(w http.ResponseWriter, r *http.Request) {
	rentalID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.rentalAccessAllowed(w, r, rentalID) {
		return
	}

	rental, err := h.reservations.RentCancel(r.Context(), rentalID)
	if err != nil {
		h.writeError(w, err, "rent cancel error")
		return
	}

	h.writeJSON(w, http.StatusOK, toRentalResponse(rental))
}

// GetRentals возвращает аренды текущего пользователя.
func (h *Handler) GetRentals(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	rentals, err := h.catalog.ListRentalsByUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "list rentals error")
		return
	}

	resp := make([]rentalResponse, 0, len(rentals))
	for i := range rentals {
		resp = append(resp, toRentalResponse(&rentals[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetAllRentals возвращает аренды всех пользователей.
func (h *Handler) GetAllRentals(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.catalog.ListRentals(r.Context())
	if err != nil {
		h.writeError(w, err, "list all rentals error")
		return
	}

	resp := make([]rentalResponse, 0, len(rentals))
	for i := range rentals {
		resp = append(resp, toRentalResponse(&rentals[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type repairStartRequest struct {
	BicycleID    int64  `json:"bicycle_id"`
	TechnicianID int64  `json:"technician_id"`
	Description  string `json:"description"`
}

type repairResponse struct {
	ID           int64              `json:"id"`
	BicycleID    int64              `json:"bicycle_id"`
	TechnicianID int64              `json:"technician_id"`
	Description  string             `json:"description"`
	Status       model.RepairStatus `json:"status"`
	StartedAt    time.Time          `json:"started_at"`
	EndedAt      *time.Time         `json:"ended_at,omitempty"`
}

func toRepairResponse(r *model.Repair) repairResponse {
	return repairResponse{
		ID:           r.ID,
		BicycleID:    r.BicycleID,
		TechnicianID: r.TechnicianID,
		Description:  r.Description,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		EndedAt:      r.EndedAt,
	}
}

// StartRepair открывает ремонт велосипеда.
func (h *Handler) StartRepair(w http.ResponseWriter, r *http.Request) {
	var req repairStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.BicycleID <= 0 || req.TechnicianID <= 0 || req.Description == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	repair, err := h.reservations.RepairStart(r.Context(), req.BicycleID, req.TechnicianID, req.Description)
	if err != nil {
		h.writeError(w, err, "repair start error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toRepairResponse(repair))
}

// CompleteRepair завершает ремонт.
func (h *Handler) CompleteRepair(w http.ResponseWriter, r *http.Request) {
	repairID, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	repair, err := h.reservations.RepairComplete(r.Context(), repairID)
	if err != nil {
		h.writeError(w, err, "repair complete error")
		return
	}

	h.writeJSON(w, http.StatusOK, toRepairResponse(repair))
}

// GetRepairs возвращает все ремонты.
func (h *Handler) GetRepairs(w http.ResponseWriter, r *http.Request) {
	repairs, err := h.catalog.ListRepairs(r.Context())
	if err != nil {
		h.writeError(w, err, "list repairs error")
		return
	}

	resp := make([]repairResponse, 0, len(repairs))
	for i := range repairs {
		resp = append(resp, toRepairResponse(&repairs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
