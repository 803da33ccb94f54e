package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/skry/backend/internal/config"
	"github.com/skry/backend/internal/models"
	"github.com/skry/backend/internal/storage"
)

// ErrScanRateLimited means the user hit the per-window scan cap. Checked
// before any debit so a rate-limited request costs nothing.
var ErrScanRateLimited = errors.New("scan rate limit exceeded")

// ScanRequest is the analyze payload
// @Description Ad capture analysis request
type ScanRequest struct {
	Image       string `json:"image" validate:"required"` // Base64 encoded image data
	Platform    string `json:"platform" example:"facebook"`
	Format      string `json:"format" example:"video"`
	HookType    string `json:"hook_type"`
	VisualStyle string `json:"visual_style"`
}

// ScanResult carries the stored scan plus the post-debit balance.
type ScanResult struct {
	Scan       models.AdScan `json:"data"`
	NewBalance int64         `json:"newBalance"`
}

// ScanService gates ad analysis behind a shard debit. The charge is taken
// before the upload and classification run: a failing downstream call is not
// refunded automatically, a compensating credit is a deliberate caller
// decision.
type ScanService struct {
	db     *sql.DB
	redis  *redis.Client
	shards *ShardService
	store  storage.Uploader
	vision Classifier
	cfg    *config.ShardConfig
}

func NewScanService(db *sql.DB, redisClient *redis.Client, shards *ShardService, store storage.Uploader, vision Classifier) *ScanService {
	return &ScanService{
		db:     db,
		redis:  redisClient,
		shards: shards,
		store:  store,
		vision: vision,
		cfg:    config.LoadShardConfig(),
	}
}

// Analyze charges the scan price, uploads the capture, classifies it and
// stores the scan row. ErrInsufficientShards and ErrAccountNotFound propagate
// from the ledger before any external call is made.
func (s *ScanService) Analyze(ctx context.Context, userID string, req *ScanRequest) (*ScanResult, error) {
	image, err := decodeImage(req.Image)
	if err != nil {
		return nil, err
	}

	if err := s.checkRateLimit(ctx, userID); err != nil {
		return nil, err
	}

	newBalance, err := s.shards.Deduct(ctx, userID, s.cfg.ScanPrice, "Ad Cam Scan Analysis")
	if err != nil {
		return nil, err
	}

	upload, err := s.store.Upload(ctx, image, "ad-capture.jpg", "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("asset upload failed: %w", err)
	}

	analysis, err := s.vision.Classify(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	scan := models.AdScan{
		UserID:      userID,
		ImageURL:    upload.URL,
		Platform:    defaultTo(req.Platform, "Unknown"),
		Format:      defaultTo(req.Format, "Unknown"),
		HookType:    defaultTo(req.HookType, "Unknown"),
		VisualStyle: defaultTo(req.VisualStyle, "Unknown"),
		Analysis: models.Analysis{
			"hook":            analysis.Hook,
			"selling_point":   analysis.SellingPoint,
			"visual_style":    analysis.VisualStyle,
			"labels":          analysis.Labels,
			"detected_text":   analysis.DetectedText,
			"dominant_colors": analysis.DominantColors,
		},
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO ad_scans (user_id, image_url, platform, format, hook_type, visual_style, analysis_result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		scan.UserID, scan.ImageURL, scan.Platform, scan.Format,
		scan.HookType, scan.VisualStyle, scan.Analysis).
		Scan(&scan.ID, &scan.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store scan: %w", err)
	}

	log.Printf("[SCAN] Analysis complete for user %s, scan %s, balance %d", userID, scan.ID, newBalance)
	return &ScanResult{Scan: scan, NewBalance: newBalance}, nil
}

// History returns the user's scans, most recent first.
func (s *ScanService) History(ctx context.Context, userID string) ([]models.AdScan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, image_url, platform, format, hook_type, visual_style, analysis_result, created_at
		FROM ad_scans
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := []models.AdScan{}
	for rows.Next() {
		var scan models.AdScan
		if err := rows.Scan(&scan.ID, &scan.UserID, &scan.ImageURL, &scan.Platform,
			&scan.Format, &scan.HookType, &scan.VisualStyle, &scan.Analysis, &scan.CreatedAt); err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

func (s *ScanService) checkRateLimit(ctx context.Context, userID string) error {
	if s.redis == nil {
		return nil
	}

	key := fmt.Sprintf("scan_rate:%s", userID)
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[SCAN] Rate limit check failed, allowing request: %v", err)
		return nil
	}
	if count == 1 {
		s.redis.Expire(ctx, key, s.cfg.RateLimitWindow)
	}
	if count > int64(s.cfg.ScanRateLimit) {
		return ErrScanRateLimited
	}
	return nil
}

func decodeImage(image string) ([]byte, error) {
	if image == "" {
		return nil, errors.New("image data is required")
	}
	if strings.HasPrefix(image, "data:") {
		if idx := strings.Index(image, ","); idx >= 0 {
			image = image[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image data is empty")
	}
	return data, nil
}

func defaultTo(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
