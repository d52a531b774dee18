package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopapp/payment-service/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL UNIQUE,
			amount BIGINT NOT NULL,
			order_info VARCHAR(500),
			payment_method VARCHAR(50) NOT NULL,
			transaction_no VARCHAR(100),
			response_code VARCHAR(10),
			bank_code VARCHAR(50),
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_transaction_no
			ON payments(transaction_no) WHERE transaction_no <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Upsert inserts the payment for its order or, while the existing row is
// still pending, refreshes it in place. A terminal row is left untouched and
// models.ErrInvalidTransition is returned.
func (r *PaymentRepository) Upsert(ctx context.Context, p *models.Payment) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, amount, order_info, payment_method, transaction_no, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO UPDATE
		SET amount = EXCLUDED.amount,
		    order_info = EXCLUDED.order_info,
		    payment_method = EXCLUDED.payment_method,
		    transaction_no = EXCLUDED.transaction_no,
		    status = EXCLUDED.status,
		    updated_at = NOW()
		WHERE payments.status = 'pending'
		RETURNING id, created_at, updated_at
	`, p.OrderID, p.Amount, p.OrderInfo, p.PaymentMethod, p.TransactionNo, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrInvalidTransition
	}
	return err
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, order_info, payment_method,
		       COALESCE(transaction_no, ''), COALESCE(response_code, ''), COALESCE(bank_code, ''),
		       status, created_at, updated_at
		FROM payments WHERE order_id = $1
	`, orderID))
}

func (r *PaymentRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*models.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, order_info, payment_method,
		       COALESCE(transaction_no, ''), COALESCE(response_code, ''), COALESCE(bank_code, ''),
		       status, created_at, updated_at
		FROM payments WHERE transaction_no = $1
	`, transactionNo))
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.OrderInfo, &p.PaymentMethod,
		&p.TransactionNo, &p.ResponseCode, &p.BankCode,
		&p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Transition updates the payment only while it is in the expected from
// status. Empty responseCode/transactionNo/bankCode leave the stored values
// in place.
func (r *PaymentRepository) Transition(ctx context.Context, orderID int64, from, to models.PaymentStatus, responseCode, transactionNo, bankCode string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    response_code = CASE WHEN $2 = '' THEN response_code ELSE $2 END,
		    transaction_no = CASE WHEN $3 = '' THEN transaction_no ELSE $3 END,
		    bank_code = CASE WHEN $4 = '' THEN bank_code ELSE $4 END,
		    updated_at = NOW()
		WHERE order_id = $5 AND status = $6
	`, to, responseCode, transactionNo, bankCode, orderID, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
