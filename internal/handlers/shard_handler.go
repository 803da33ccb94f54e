package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/skry/backend/internal/services"
)

type ShardHandler struct {
	shards *services.ShardService
}

func NewShardHandler(shards *services.ShardService) *ShardHandler {
	return &ShardHandler{shards: shards}
}

// Balance returns the authenticated user's shard balance
// @Summary Get shard balance
// @Tags shards
// @Produce json
// @Success 200 {object} map[string]int64
// @Failure 404 {object} services.ErrorResponse "Account not found"
// @Router /shards/balance [get]
func (h *ShardHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.shards.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[SHARDS] Balance fetch failed for user %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

// History returns the user's shard transactions, most recent first
// @Summary Get shard transaction history
// @Tags shards
// @Produce json
// @Success 200 {array} models.ShardTransaction
// @Failure 401 {object} services.ErrorResponse "Unauthorized"
// @Router /shards/history [get]
func (h *ShardHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	history, err := h.shards.History(r.Context(), userID)
	if err != nil {
		log.Printf("[SHARDS] History fetch failed for user %s: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}
