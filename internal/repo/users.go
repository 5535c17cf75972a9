package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"curabot/internal/domain"
)

// EnsureUser returns the billing row for a subject, creating it on first
// touch. Concurrent first touches race on user_id; the unique index plus
// ON CONFLICT DO NOTHING keep a single row.
func (r Repo) EnsureUser(ctx context.Context, userID string) (domain.User, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,user_id,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(user_id) DO NOTHING`, uuid.NewString(), userID, now, now)
	if err != nil {
		return domain.User{}, err
	}
	return r.GetUser(ctx, userID)
}

func (r Repo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,user_id,stripe_customer_id,subscription_status,subscription_id,price_id,created_at,updated_at FROM users WHERE user_id=?`, userID))
}

func (r Repo) GetUserByStripeCustomer(ctx context.Context, customerID string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,user_id,stripe_customer_id,subscription_status,subscription_id,price_id,created_at,updated_at FROM users WHERE stripe_customer_id=?`, customerID))
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var customerID, subStatus, subID, priceID sql.NullString
	err := row.Scan(&u.ID, &u.UserID, &customerID, &subStatus, &subID, &priceID, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if customerID.Valid {
		u.StripeCustomerID = customerID.String
	}
	if subStatus.Valid {
		u.SubscriptionStatus = subStatus.String
	}
	if subID.Valid {
		u.SubscriptionID = subID.String
	}
	if priceID.Valid {
		u.PriceID = priceID.String
	}
	return u, nil
}

func (r Repo) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET stripe_customer_id=?, updated_at=? WHERE user_id=?`, customerID, now, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetSubscription(ctx context.Context, userID, subscriptionID, priceID, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET subscription_id=?, price_id=?, subscription_status=?, updated_at=? WHERE user_id=?`,
		nullable(subscriptionID), nullable(priceID), status, now, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ClearSubscription(ctx context.Context, userID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET subscription_id=NULL, price_id=NULL, subscription_status='canceled', updated_at=? WHERE user_id=?`, now, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
