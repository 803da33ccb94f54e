package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/skry/backend/internal/services"
)

func TestScanHandler_Analyze_ImageSizeCap(t *testing.T) {
	t.Setenv("SCAN_MAX_IMAGE_BYTES", "64")

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	scans := services.NewScanService(db, nil, services.NewShardService(db), nil, nil)
	handler := NewScanHandler(scans)

	// Valid JSON well over the configured cap: the body limit must reject it
	// before any decode or debit happens.
	body, _ := json.Marshal(services.ScanRequest{Image: strings.Repeat("QUFB", 64)})
	assert.Greater(t, len(body), 64)

	r := httptest.NewRequest("POST", "/m/ad-cam/analyze", bytes.NewReader(body))
	r = r.WithContext(context.WithValue(r.Context(), "userID", "user1"))
	w := httptest.NewRecorder()

	handler.Analyze(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
