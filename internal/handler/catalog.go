package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mmeshcher/bikerent-system/internal/model"
	"github.com/mmeshcher/bikerent-system/internal/service"
)

type stationRequest struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type stationResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func toStationResponse(s *model.Station) stationResponse {
	return stationResponse{ID: s.ID, Name: s.Name, Latitude: s.Latitude, Longitude: s.Longitude}
}

// CreateStation создаёт станцию проката.
func (h *Handler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	station, err := h.catalog.CreateStation(r.Context(), service.StationInput{
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		h.writeError(w, err, "create station error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toStationResponse(station))
}

// GetStations возвращает все станции.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.catalog.ListStations(r.Context())
	if err != nil {
		h.writeError(w, err, "list stations error")
		return
	}

	resp := make([]stationResponse, 0, len(stations))
	for i := range stations {
		resp = append(resp, toStationResponse(&stations[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// UpdateStation обновляет имя и координаты станции.
func (h *Handler) UpdateStation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	station, err := h.catalog.UpdateStation(r.Context(), id, service.StationInput{
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		h.writeError(w, err, "update station error")
		return
	}

	h.writeJSON(w, http.StatusOK, toStationResponse(station))
}

// DeleteStation удаляет станцию без велосипедов.
func (h *Handler) DeleteStation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.catalog.DeleteStation(r.Context(), id); err != nil {
		h.writeError(w, err, "delete station error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type technicianRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
}

type technicianResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
}

// CreateTechnician создаёт механика.
func (h *Handler) CreateTechnician(w http.ResponseWriter, r *http.Request) {
	var req technicianRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	technician, err := h.catalog.CreateTechnician(r.Context(), service.TechnicianInput{
		Name:           req.Name,
		Phone:          req.Phone,
		Specialization: req.Specialization,
	})
	if err != nil {
		h.writeError(w, err, "create technician error")
		return
	}

	h.writeJSON(w, http.StatusCreated, technicianResponse{
		ID:             technician.ID,
		Name:           technician.Name,
		Phone:          technician.Phone,
		Specialization: technician.Specialization,
	})
}

// GetTechnicians возвращает всех механиков.
func (h *Handler) GetTechnicians(w http.ResponseWriter, r *http.Request) {
	technicians, err := h.catalog.ListTechnicians(r.Context())
	if err != nil {
		h.writeError(w, err, "list technicians error")
		return
	}

	resp := make([]technicianResponse, 0, len(technicians))
	for _, t := range technicians {
		resp = append(resp, technicianResponse{
			ID:             t.ID,
			Name:           t.Name,
			Phone:          t.Phone,
			Specialization: t.Specialization,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteTechnician удаляет механика.
func (h *Handler) DeleteTechnician(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.catalog.DeleteTechnician(r.Context(), id); err != nil {
		h.writeError(w, err, "delete technician error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type bicycleRequest struct {
	Model     string            `json:"model"`
	Type      model.BicycleType `json:"type"`
	StationID int64             `json:"station_id"`
}

type bicycleResponse struct {
	ID            int64               `json:"id"`
	Model         string              `json:"model"`
	Type          model.BicycleType   `json:"type"`
	Status        model.BicycleStatus `json:"status"`
	StationID     *int64              `json:"station_id,omitempty"`
	Mileage       int64               `json:"mileage"`
	LastServiceAt time.Time           `json:"last_service_at"`
}

func toBicycleResponse(b *model.Bicycle) bicycleResponse {
	return bicycleResponse{
		ID:            b.ID,
		Model:         b.Model,
		Type:          b.Type,
		Status:        b.Status,
		StationID:     b.StationID,
		Mileage:       b.Mileage,
		LastServiceAt: b.LastServiceAt,
	}
}

// CreateBicycle добавляет велосипед на станцию.
func (h *Handler) CreateBicycle(w http.ResponseWriter, r *http.Request) {
	var req bicycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bicycle, err := h.catalog.CreateBicycle(r.Context(), service.BicycleInput{
		Model:     req.Model,
		Type:      req.Type,
		StationID: req.StationID,
	})
	if err != nil {
		h.writeError(w, err, "create bicycle error")
		return
	}

	h.writeJSON(w, http.StatusCreated, toBicycleResponse(bicycle))
}

// GetBicycles возвращает велосипеды, опционально с фильтром по модели.
func (h *Handler) GetBicycles(w http.ResponseWriter, r *http.Request) {
	bicycles, err := h.catalog.ListBicycles(r.Context(), r.URL.Query().Get("model"))
	if err != nil {
		h.writeError(w, err, "list bicycles error")
		return
	}

	resp := make([]bicycleResponse, 0, len(bicycles))
	for i := range bicycles {
		resp = append(resp, toBicycleResponse(&bicycles[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetBicycle возвращает один велосипед.
func (h *Handler) GetBicycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	bicycle, err := h.catalog.GetBicycle(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "get bicycle error")
		return
	}

	h.writeJSON(w, http.StatusOK, toBicycleResponse(bicycle))
}

// GetBicyclesNeedingService возвращает велосипеды с пробегом выше порога.
func (h *Handler) GetBicyclesNeedingService(w http.ResponseWriter, r *http.Request) {
	bicycles, err := h.catalog.ListBicyclesNeedingService(r.Context())
	if err != nil {
		h.writeError(w, err, "list bicycles needing service error")
		return
	}

	resp := make([]bicycleResponse, 0, len(bicycles))
	for i := range bicycles {
		resp = append(resp, toBicycleResponse(&bicycles[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// DeleteBicycle удаляет велосипед, не находящийся в аренде.
func (h *Handler) DeleteBicycle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.catalog.DeleteBicycle(r.Context(), id); err != nil {
		h.writeError(w, err, "delete bicycle error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
