package handlers

import (
	"encoding/json"
	"net/http"

	"paylink/internal/apperr"
	"paylink/internal/domain/business"
	middlewarex "paylink/internal/http/middleware"
	"paylink/internal/http/respond"
	"paylink/internal/services/payment"
)

const maxRequestBody = 64 << 10

// CreateLink handles POST /payments/create-link
func CreateLink(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerOrFail(w, r)
		if !ok {
			return
		}
		var req payment.CreateLinkRequest
		if !decode(w, r, &req) {
			return
		}

		res, err := svc.CreatePaymentLink(r.Context(), caller, req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"paymentUrl": res.PaymentURL,
			"provider":   res.Provider,
			"providerId": res.ProviderID,
		})
	}
}

func callerOrFail(w http.ResponseWriter, r *http.Request) (business.Caller, bool) {
	c, ok := middlewarex.CallerFrom(r.Context())
	if !ok {
		respond.Error(w, r, apperr.UnauthorizedErr("Authentication required"))
	}
	return c, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		respond.Error(w, r, &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Invalid request body", Err: err})
		return false
	}
	return true
}
