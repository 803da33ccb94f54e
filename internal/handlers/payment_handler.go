package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/spf13/viper"

	"github.com/skry/backend/internal/services"
)

type PaymentHandler struct {
	payments  *services.PaymentService
	validator *services.ValidationHelper
}

// CheckoutRequest is the create-checkout-session payload
// @Description Checkout session request
type CheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		validator: services.NewValidationHelper(),
	}
}

// CreateCheckoutSession opens a Stripe checkout for a shard bundle
// @Summary Create a Stripe checkout session for shards
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CheckoutRequest true "Checkout request"
// @Success 200 {object} map[string]string "Checkout session created"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse "Product not found"
// @Router /payments/create-checkout-session [post]
func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CheckoutRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	frontend := viper.GetString("frontend_url")
	if req.SuccessURL == "" {
		req.SuccessURL = fmt.Sprintf("%s/dashboard?payment=success", frontend)
	}
	if req.CancelURL == "" {
		req.CancelURL = fmt.Sprintf("%s/dashboard?payment=cancel", frontend)
	}

	sess, err := h.payments.CreateCheckoutSession(r.Context(), userID, req.PriceID, req.SuccessURL, req.CancelURL)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			services.SendErrorResponse(w, "Product not found or inactive", http.StatusNotFound, nil)
		case errors.Is(err, services.ErrAlreadyPurchased):
			services.SendCodedErrorResponse(w, "You have already purchased this bundle.",
				"BUNDLE_ALREADY_PURCHASED", http.StatusBadRequest)
		default:
			log.Printf("[PAYMENTS] Create session error for user %s: %v", userID, err)
			services.SendErrorResponse(w, "Failed to create checkout session", http.StatusInternalServerError, nil)
		}
		return
	}

	// QR of the checkout link lets the user complete payment on a phone.
	qr, err := h.payments.CheckoutQR(sess.URL)
	if err != nil {
		log.Printf("[PAYMENTS] QR generation failed for session %s: %v", sess.ID, err)
		qr = ""
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"id":     sess.ID,
		"url":    sess.URL,
		"qrCode": qr,
	})
}

// Webhook receives Stripe events
// @Summary Stripe webhook endpoint
// @Description Verifies the Stripe signature and settles completed checkouts
// @Tags payments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} services.ErrorResponse "Signature or payload invalid"
// @Router /payments/webhook [post]
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		services.SendErrorResponse(w, "Missing stripe-signature", http.StatusBadRequest, nil)
		return
	}

	maxBytes := 65536
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Failed to read payload", http.StatusBadRequest, nil)
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), payload, sig); err != nil {
		log.Printf("[PAYMENTS] Webhook error: %v", err)
		services.SendErrorResponse(w, "Webhook error", http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
