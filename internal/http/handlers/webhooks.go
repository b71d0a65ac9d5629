package handlers

import (
	"errors"
	"io"
	"net/http"

	"paylink/internal/apperr"
	"paylink/internal/http/respond"
	"paylink/internal/provider"
	"paylink/internal/services/payment"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 1 << 20

// PaymentWebhook handles POST /payments/webhook/{provider}. The body is
// read once and handed unmodified to signature verification.
func PaymentWebhook(svc *payment.Service, adapters *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "provider")
		kind, ok := adapters.Lookup(raw)
		if !ok {
			respond.Error(w, r, apperr.InvalidErr("Unknown payment provider"))
			return
		}
		adapter, err := adapters.Get(kind)
		if err != nil {
			respond.Error(w, r, apperr.InvalidErr("Unknown payment provider"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				respond.Error(w, r, &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Webhook payload too large", Err: err})
				return
			}
			respond.Error(w, r, &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Invalid webhook payload", Err: err})
			return
		}

		ack, err := svc.HandleInboundWebhook(r.Context(), string(kind), body, r.Header.Get(adapter.SignatureHeader()))
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, ack)
	}
}
