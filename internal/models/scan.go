package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AdScan represents one analyzed ad capture
type AdScan struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	Platform    string    `json:"platform" db:"platform"`
	Format      string    `json:"format" db:"format"`
	HookType    string    `json:"hook_type" db:"hook_type"`
	VisualStyle string    `json:"visual_style" db:"visual_style"`
	Analysis    Analysis  `json:"analysis" db:"analysis_result"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Analysis type for the JSONB analysis_result column
type Analysis map[string]any

// Value implements driver.Valuer for Analysis
func (a Analysis) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner for Analysis
func (a *Analysis) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, a)
}
