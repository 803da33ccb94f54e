package services

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/skry/backend/internal/models"
	"github.com/skry/backend/internal/storage"
)

var testImage = base64.StdEncoding.EncodeToString([]byte("fake jpeg bytes"))

func expectDeduct(mock sqlmock.Sqlmock, userID string, balance, amount int64) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT shard_balance FROM users WHERE id = \\$1 FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"shard_balance"}).AddRow(balance))
	mock.ExpectExec("UPDATE users SET shard_balance = \\$1 WHERE id = \\$2").
		WithArgs(balance-amount, userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO shard_transactions").
		WithArgs(userID, -amount, models.ShardKindUsage, "Ad Cam Scan Analysis", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestScanService_Analyze(t *testing.T) {
	ctx := context.Background()

	t.Run("successful analysis", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		uploader := new(MockUploader)
		classifier := new(MockClassifier)
		service := NewScanService(db, nil, NewShardService(db), uploader, classifier)

		expectDeduct(dbMock, "user1", 125, 25)

		uploader.On("Upload", mock.Anything, mock.Anything, "ad-capture.jpg", "image/jpeg").
			Return(&storage.UploadResult{
				URL:    "https://cdn.example.com/skry-ad-capture/ads/x.jpg",
				Key:    "ads/x.jpg",
				Bucket: "skry-ad-capture",
			}, nil)

		classifier.On("Classify", mock.Anything, mock.Anything).
			Return(&AdAnalysis{
				Hook:         "Limited time offer",
				SellingPoint: "Save 50% today",
				VisualStyle:  "bold",
				Labels:       []string{"advertisement"},
			}, nil)

		dbMock.ExpectQuery("INSERT INTO ad_scans").
			WithArgs("user1", "https://cdn.example.com/skry-ad-capture/ads/x.jpg",
				"facebook", "video", "Unknown", "Unknown", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow("scan1", time.Now()))

		result, err := service.Analyze(ctx, "user1", &ScanRequest{
			Image:    testImage,
			Platform: "facebook",
			Format:   "video",
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(100), result.NewBalance)
		assert.Equal(t, "scan1", result.Scan.ID)
		assert.Equal(t, "Limited time offer", result.Scan.Analysis["hook"])

		uploader.AssertExpectations(t)
		classifier.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("data url prefix is stripped", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		uploader := new(MockUploader)
		classifier := new(MockClassifier)
		service := NewScanService(db, nil, NewShardService(db), uploader, classifier)

		expectDeduct(dbMock, "user1", 125, 25)

		uploader.On("Upload", mock.Anything, []byte("fake jpeg bytes"), "ad-capture.jpg", "image/jpeg").
			Return(&storage.UploadResult{URL: "https://cdn/x.jpg"}, nil)
		classifier.On("Classify", mock.Anything, []byte("fake jpeg bytes")).
			Return(&AdAnalysis{Hook: "h"}, nil)

		dbMock.ExpectQuery("INSERT INTO ad_scans").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
				AddRow("scan2", time.Now()))

		_, err = service.Analyze(ctx, "user1", &ScanRequest{
			Image: "data:image/jpeg;base64," + testImage,
		})
		assert.NoError(t, err)
		uploader.AssertExpectations(t)
	})

	t.Run("insufficient shards gates the action", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		uploader := new(MockUploader)
		classifier := new(MockClassifier)
		service := NewScanService(db, nil, NewShardService(db), uploader, classifier)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT shard_balance FROM users WHERE id = \\$1 FOR UPDATE").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"shard_balance"}).AddRow(10))
		dbMock.ExpectRollback()

		_, err = service.Analyze(ctx, "user1", &ScanRequest{Image: testImage})
		assert.ErrorIs(t, err, ErrInsufficientShards)

		// The gated action never runs when the debit fails.
		uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		classifier.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("downstream failure does not refund the charge", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		uploader := new(MockUploader)
		classifier := new(MockClassifier)
		service := NewScanService(db, nil, NewShardService(db), uploader, classifier)

		expectDeduct(dbMock, "user1", 125, 25)

		uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, assert.AnError)

		_, err = service.Analyze(ctx, "user1", &ScanRequest{Image: testImage})
		assert.Error(t, err)

		// No compensating credit is issued; the debit stands.
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("invalid image rejected before any charge", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewScanService(db, nil, NewShardService(db), new(MockUploader), new(MockClassifier))

		_, err = service.Analyze(ctx, "user1", &ScanRequest{Image: "not-base64!!"})
		assert.Error(t, err)

		_, err = service.Analyze(ctx, "user1", &ScanRequest{Image: ""})
		assert.Error(t, err)

		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("rate limit blocks before any charge", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		service := NewScanService(db, redisClient, NewShardService(db), new(MockUploader), new(MockClassifier))

		redisMock.ExpectIncr("scan_rate:user1").SetVal(31)

		_, err = service.Analyze(ctx, "user1", &ScanRequest{Image: testImage})
		assert.ErrorIs(t, err, ErrScanRateLimited)
		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestScanService_History(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewScanService(db, nil, NewShardService(db), new(MockUploader), new(MockClassifier))

	now := time.Now()
	dbMock.ExpectQuery("SELECT id, user_id, image_url, platform, format, hook_type, visual_style, analysis_result, created_at FROM ad_scans").
		WithArgs("user1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "user_id", "image_url", "platform", "format", "hook_type", "visual_style", "analysis_result", "created_at"}).
			AddRow("scan2", "user1", "https://cdn/2.jpg", "tiktok", "video", "Unknown", "Unknown", []byte(`{"hook":"b"}`), now).
			AddRow("scan1", "user1", "https://cdn/1.jpg", "facebook", "image", "Unknown", "Unknown", []byte(`{"hook":"a"}`), now.Add(-time.Hour)))

	scans, err := service.History(context.Background(), "user1")
	assert.NoError(t, err)
	assert.Len(t, scans, 2)
	assert.Equal(t, "scan2", scans[0].ID)
	assert.Equal(t, "b", scans[0].Analysis["hook"])
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
