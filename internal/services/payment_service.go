package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/skry/backend/internal/models"
)

var (
	// ErrProductNotFound means the requested price id maps to no active product.
	ErrProductNotFound = errors.New("product not found or inactive")
	// ErrAlreadyPurchased means the product is one-time and the user already owns it.
	ErrAlreadyPurchased = errors.New("bundle already purchased")
)

// PaymentService turns verified Stripe checkout events into shard credits,
// exactly once per session even when Stripe redelivers the webhook.
type PaymentService struct {
	db     *sql.DB
	shards *ShardService
}

func NewPaymentService(db *sql.DB, shards *ShardService) *PaymentService {
	stripe.Key = viper.GetString("stripe.secret_key")
	return &PaymentService{db: db, shards: shards}
}

// CreateCheckoutSession verifies the product, enforces the one-time-purchase
// constraint and opens a Stripe checkout session carrying the settlement
// metadata the webhook needs.
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, userID, priceID, successURL, cancelURL string) (*stripe.CheckoutSession, error) {
	product, err := s.findProductByPrice(ctx, priceID)
	if err != nil {
		return nil, err
	}

	if product.OneTime {
		var purchaseID int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM user_purchases WHERE user_id = $1 AND product_id = $2`,
			userID, product.ID).Scan(&purchaseID)
		if err == nil {
			return nil, ErrAlreadyPurchased
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.AddMetadata("userId", userID)
	params.AddMetadata("priceId", priceID)
	params.AddMetadata("productId", product.ID)
	params.AddMetadata("shardsCount", strconv.FormatInt(product.ShardsCount, 10))

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Printf("[PAYMENTS] Checkout session %s created for user %s (price %s)", sess.ID, userID, priceID)
	return sess, nil
}

// HandleWebhook verifies the Stripe signature and dispatches completed
// checkouts to settlement.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, viper.GetString("stripe.webhook_secret"))
	if err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}

	if event.Type != "checkout.session.completed" {
		log.Printf("[PAYMENTS] Ignoring webhook event type %s", event.Type)
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	return s.SettleCheckout(ctx, &sess)
}

// SettleCheckout applies one completed checkout to the ledger. The purchase
// record insert and the shard credit commit together or not at all; a
// redelivered session id is a silent no-op at both layers. Malformed
// metadata is logged and dropped: Stripe retrying it would never succeed.
func (s *PaymentService) SettleCheckout(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID := sess.Metadata["userId"]
	productID := sess.Metadata["productId"]
	shardsCount := sess.Metadata["shardsCount"]

	if userID == "" || productID == "" || shardsCount == "" {
		log.Printf("[PAYMENTS] Missing metadata in session %s, dropping event", sess.ID)
		return nil
	}

	amount, err := strconv.ParseInt(shardsCount, 10, 64)
	if err != nil || amount <= 0 {
		log.Printf("[PAYMENTS] Invalid shardsCount %q in session %s, dropping event", shardsCount, sess.ID)
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_purchases (user_id, product_id, stripe_session_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (stripe_session_id) DO NOTHING`,
		userID, productID, sess.ID)
	if err != nil {
		return err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		log.Printf("[PAYMENTS] Session %s already settled, skipping", sess.ID)
		return nil
	}

	_, err = s.shards.CreditTx(ctx, tx, userID, amount, models.ShardKindPurchase,
		fmt.Sprintf("Purchase of %d shards", amount), sess.ID)
	if errors.Is(err, ErrDuplicateSettlement) {
		log.Printf("[PAYMENTS] Session %s already credited, skipping", sess.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[PAYMENTS] Settled session %s: %d shards for user %s", sess.ID, amount, userID)
	return nil
}

// CheckoutQR renders a checkout URL as a base64 PNG so the dashboard can
// offer scan-to-pay on a second device.
func (s *PaymentService) CheckoutQR(checkoutURL string) (string, error) {
	png, err := qrcode.Encode(checkoutURL, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func (s *PaymentService) findProductByPrice(ctx context.Context, priceID string) (*models.Product, error) {
	var product models.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, stripe_price_id, shards_count, one_time
		FROM products
		WHERE stripe_price_id = $1 AND is_active = TRUE`, priceID).
		Scan(&product.ID, &product.Name, &product.StripePriceID, &product.ShardsCount, &product.OneTime)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}
