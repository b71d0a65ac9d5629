package handlers

import (
	"net/http"

	"paylink/internal/http/respond"
	"paylink/internal/services/providers"

	"github.com/go-chi/chi/v5"
)

// ListProviders handles GET /payments/providers?businessId=
func ListProviders(svc *providers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r)
		if !ok {
			return
		}
		list, err := svc.List(r.Context(), caller, r.URL.Query().Get("businessId"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"success": true, "providers": list})
	}
}

// AddProvider handles POST /payments/providers
func AddProvider(svc *providers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r)
		if !ok {
			return
		}
		var req providers.AddRequest
		if !decode(w, r, &req) {
			return
		}
		sum, err := svc.Add(r.Context(), caller, req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, map[string]any{"success": true, "provider": sum})
	}
}

// UpdateProvider handles PUT /payments/providers/{id}?businessId=
func UpdateProvider(svc *providers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r)
		if !ok {
			return
		}
		var req providers.UpdateRequest
		if !decode(w, r, &req) {
			return
		}
		sum, err := svc.Update(r.Context(), caller, r.URL.Query().Get("businessId"), chi.URLParam(r, "id"), req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"success": true, "provider": sum})
	}
}

// RemoveProvider handles DELETE /payments/providers/{id}?businessId=
func RemoveProvider(svc *providers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r)
		if !ok {
			return
		}
		if err := svc.Remove(r.Context(), caller, r.URL.Query().Get("businessId"), chi.URLParam(r, "id")); err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// RotateWebhookSecret handles POST /payments/providers/{id}/rotate-secret?businessId=
// The response is the only place a webhook secret is ever shown.
func RotateWebhookSecret(svc *providers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r)
		if !ok {
			return
		}
		secret, err := svc.RotateWebhookSecret(r.Context(), caller, r.URL.Query().Get("businessId"), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		respond.JSON(w, http.StatusOK, map[string]any{"success": true, "webhookSecret": secret})
	}
}
