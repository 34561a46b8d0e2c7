package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/bikerent-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса проката.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/logout-all", h.LogoutAll)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/users/me", h.GetMe)

			r.Post("/payments", h.CreatePayment)
			r.Get("/payments", h.GetPayments)

			r.Post("/rentals", h.StartRental)
			r.Get("/rentals", h.GetRentals)
			r.Post("/rentals/{id}/complete", h.CompleteRental)
			r.Post("/rentals/{id}/cancel", h.CancelRental)

			r.Get("/stations", h.GetStations)
			r.Get("/bicycles", h.GetBicycles)
			r.Get("/bicycles/{id}", h.GetBicycle)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireAdmin)

				r.Get("/rentals/all", h.GetAllRentals)

				r.Post("/repairs", h.StartRepair)
				r.Get("/repairs", h.GetRepairs)
				r.Post("/repairs/{id}/complete", h.CompleteRepair)

				r.Post("/stations", h.CreateStation)
				r.Put("/stations/{id}", h.UpdateStation)
				r.Delete("/stations/{id}", h.DeleteStation)

				r.Post("/technicians", h.CreateTechnician)
				r.Get("/technicians", h.GetTechnicians)
				r.Delete("/technicians/{id}", h.DeleteTechnician)

				r.Post("/bicycles", h.CreateBicycle)
				r.Get("/bicycles/service", h.GetBicyclesNeedingService)
				r.Delete("/bicycles/{id}", h.DeleteBicycle)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
