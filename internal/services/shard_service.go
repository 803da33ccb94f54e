package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/skry/backend/internal/models"
)

var (
	// ErrAccountNotFound means the user row backing the balance does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientShards is the expected business condition for a debit
	// larger than the current balance. Callers map it to a paywall response.
	ErrInsufficientShards = errors.New("insufficient shards")
	// ErrDuplicateSettlement is returned by CreditTx when the external
	// reference has already been settled. It is a successful no-op, not a
	// failure; Credit translates it into the current balance.
	ErrDuplicateSettlement = errors.New("settlement already applied")
)

// ShardService maintains per-user shard balances as an append-only
// transaction log. Every mutation locks the user's balance row, updates the
// materialized balance and inserts the matching shard_transactions row inside
// one database transaction, so the balance always equals the running sum of
// transaction amounts.
type ShardService struct {
	db *sql.DB
}

func NewShardService(db *sql.DB) *ShardService {
	return &ShardService{db: db}
}

// GetBalance returns the current shard balance for a user.
func (s *ShardService) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT shard_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Deduct removes amount shards from the user's balance and appends a USAGE
// transaction. Returns the post-debit balance.
func (s *ShardService) Deduct(ctx context.Context, userID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := s.DeductTx(ctx, tx, userID, amount, description)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// DeductTx runs the debit inside the caller's transaction. The balance row
// lock is held until the caller commits, so concurrent debits against the
// same user serialize and none observes a stale balance.
func (s *ShardService) DeductTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, description string) (int64, error) {
	balance, err := s.lockBalance(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	if balance < amount {
		return 0, ErrInsufficientShards
	}

	newBalance := balance - amount
	if err := s.updateBalance(ctx, tx, userID, newBalance); err != nil {
		return 0, err
	}

	if err := s.insertTransaction(ctx, tx, userID, -amount, models.ShardKindUsage, description, ""); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// Credit adds amount shards to the user's balance and appends a transaction
// of the given kind. When externalRef is non-empty the credit is idempotent:
// replaying the same reference returns the current balance unchanged.
func (s *ShardService) Credit(ctx context.Context, userID string, amount int64, kind, description, externalRef string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := s.CreditTx(ctx, tx, userID, amount, kind, description, externalRef)
	if errors.Is(err, ErrDuplicateSettlement) {
		tx.Rollback()
		return s.GetBalance(ctx, userID)
	}
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// CreditTx runs the credit inside the caller's transaction. Replays of a
// known externalRef surface as ErrDuplicateSettlement before the balance row
// is touched; the unique constraint on external_ref is the backstop if two
// settlements race past that check.
func (s *ShardService) CreditTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, kind, description, externalRef string) (int64, error) {
	if kind != models.ShardKindPurchase && kind != models.ShardKindInitialAllocation {
		return 0, fmt.Errorf("invalid credit kind %q", kind)
	}

	if externalRef != "" {
		var existingID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM shard_transactions WHERE external_ref = $1`, externalRef).Scan(&existingID)
		if err == nil {
			return 0, ErrDuplicateSettlement
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
	}

	balance, err := s.lockBalance(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	newBalance := balance + amount
	if err := s.updateBalance(ctx, tx, userID, newBalance); err != nil {
		return 0, err
	}

	if err := s.insertTransaction(ctx, tx, userID, amount, kind, description, externalRef); err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateSettlement
		}
		return 0, err
	}

	return newBalance, nil
}

// History returns the user's shard transactions, most recent first.
func (s *ShardService) History(ctx context.Context, userID string) ([]models.ShardTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, kind, description, external_ref, created_at
		FROM shard_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []models.ShardTransaction{}
	for rows.Next() {
		var txn models.ShardTransaction
		var ref sql.NullString
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Kind,
			&txn.Description, &ref, &txn.CreatedAt); err != nil {
			return nil, err
		}
		if ref.Valid {
			txn.ExternalRef = &ref.String
		}
		history = append(history, txn)
	}
	return history, rows.Err()
}

func (s *ShardService) lockBalance(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT shard_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *ShardService) updateBalance(ctx context.Context, tx *sql.Tx, userID string, newBalance int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE users SET shard_balance = $1 WHERE id = $2`, newBalance, userID)
	return err
}

func (s *ShardService) insertTransaction(ctx context.Context, tx *sql.Tx, userID string, amount int64, kind, description, externalRef string) error {
	var ref any
	if externalRef != "" {
		ref = externalRef
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO shard_transactions (user_id, amount, kind, description, external_ref)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, amount, kind, description, ref)
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
