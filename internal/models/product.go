package models

import "time"

// Product is a purchasable shard bundle mapped to a Stripe price.
type Product struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	StripePriceID string    `json:"stripe_price_id" db:"stripe_price_id"`
	ShardsCount   int64     `json:"shards_count" db:"shards_count"`
	OneTime       bool      `json:"one_time" db:"one_time"` // purchasable at most once per user
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// UserPurchase records one settled checkout. stripe_session_id carries a
// unique constraint so a redelivered webhook cannot settle twice.
type UserPurchase struct {
	ID              int64     `json:"id" db:"id"`
	UserID          string    `json:"user_id" db:"user_id"`
	ProductID       string    `json:"product_id" db:"product_id"`
	StripeSessionID string    `json:"stripe_session_id" db:"stripe_session_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
