package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/skry/backend/internal/config"
	"github.com/skry/backend/internal/services"
)

type ScanHandler struct {
	scans     *services.ScanService
	validator *services.ValidationHelper
	cfg       *config.ShardConfig
}

func NewScanHandler(scans *services.ScanService) *ScanHandler {
	return &ScanHandler{
		scans:     scans,
		validator: services.NewValidationHelper(),
		cfg:       config.LoadShardConfig(),
	}
}

// Analyze handles ad capture analysis
// @Summary Analyze an ad image and extract metadata
// @Description Charges the scan price in shards, then uploads and classifies the capture
// @Tags ad-cam
// @Accept json
// @Produce json
// @Param request body services.ScanRequest true "Scan request"
// @Success 200 {object} services.ScanResult "Analysis complete"
// @Failure 400 {object} services.ErrorResponse "Invalid request"
// @Failure 403 {object} services.ErrorResponse "Insufficient shards"
// @Failure 429 {object} services.ErrorResponse "Rate limited"
// @Failure 500 {object} services.ErrorResponse "Server error"
// @Router /m/ad-cam/analyze [post]
func (h *ScanHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	// Base64 image payloads are large; the cap is configurable.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxImageBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req services.ScanRequest
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

	result, err := h.scans.Analyze(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientShards):
			services.SendCodedErrorResponse(w, "Insufficient shards. Please purchase more.",
				"INSUFFICIENT_FUNDS", http.StatusForbidden)
		case errors.Is(err, services.ErrAccountNotFound):
			services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, services.ErrScanRateLimited):
			services.SendCodedErrorResponse(w, "Scan rate limit exceeded. Try again later.",
				"RATE_LIMITED", http.StatusTooManyRequests)
		default:
			log.Printf("[SCAN] Analysis failed for user %s: %v", userID, err)
			services.SendErrorResponse(w, "Analysis failed", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":    "Analysis complete",
		"data":       result.Scan,
		"newBalance": result.NewBalance,
	})
}

// History returns the user's ad capture history
// @Summary Get user's ad capture history
// @Tags ad-cam
// @Produce json
// @Success 200 {array} models.AdScan "List of ad scans"
// @Failure 401 {object} services.ErrorResponse "Unauthorized"
// @Router /m/ad-cam/history [get]
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	scans, err := h.scans.History(r.Context(), userID)
	if err != nil {
		log.Printf("[SCAN] History fetch failed for user %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scans)
}
