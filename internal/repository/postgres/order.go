package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/egannguyen/go-order-payments/internal/entity"
	"github.com/egannguyen/go-order-payments/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository backed by Postgres.
func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, user_id, items, shipping_address, payment_method,
	items_price, shipping_price, total_price, is_paid, is_delivered,
	status, payment_result, version, created_at, paid_at, delivered_at`

func (r *orderRepository) Get(ctx context.Context, id string) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	return scanOrder(row)
}

func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.Order, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE gateway_order_id = $1", gatewayOrderID)
	return scanOrder(row)
}

func (r *orderRepository) Create(ctx context.Context, order *entity.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	payment, err := json.Marshal(order.PaymentResult)
	if err != nil {
		return fmt.Errorf("failed to marshal payment result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, items, shipping_address, payment_method,
			items_price, shipping_price, total_price, is_paid, is_delivered,
			status, payment_result, gateway_order_id, version, created_at, paid_at, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		order.ID, order.UserID, items, address, order.PaymentMethod,
		order.ItemsPrice, order.ShippingPrice, order.TotalPrice, order.IsPaid, order.IsDelivered,
		order.Status, payment, order.PaymentResult.GatewayOrderID, order.Version,
		order.CreatedAt, order.PaidAt, order.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Update(ctx context.Context, order *entity.Order) error {
	payment, err := json.Marshal(order.PaymentResult)
	if err != nil {
		return fmt.Errorf("failed to marshal payment result: %w", err)
	}

	// Compare-and-increment on the version column. The webhook and
	// client-confirmation paths can race on the same row; the loser of
	// the race gets ErrVersionConflict and must reload.
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET is_paid = $1, is_delivered = $2, status = $3, payment_result = $4,
			paid_at = $5, delivered_at = $6, version = version + 1
		WHERE id = $7 AND version = $8`,
		order.IsPaid, order.IsDelivered, order.Status, payment,
		order.PaidAt, order.DeliveredAt, order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return entity.ErrVersionConflict
	}

	order.Version++
	return nil
}

func (r *orderRepository) FindByUser(ctx context.Context, userID string) ([]entity.Order, error) {
	return r.query(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
}

func (r *orderRepository) FindAll(ctx context.Context) ([]entity.Order, error) {
	return r.query(ctx, "SELECT " + orderColumns + " FROM orders ORDER BY created_at DESC")
}

func (r *orderRepository) query(ctx context.Context, q string, args ...any) ([]entity.Order, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []entity.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	var (
		o        entity.Order
		items    []byte
		address  []byte
		payment  []byte
		paidAt   sql.NullTime
		deliverd sql.NullTime
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &address, &o.PaymentMethod,
		&o.ItemsPrice, &o.ShippingPrice, &o.TotalPrice, &o.IsPaid, &o.IsDelivered,
		&o.Status, &payment, &o.Version, &o.CreatedAt, &paidAt, &deliverd)
	if err == sql.ErrNoRows {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(payment, &o.PaymentResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment result: %w", err)
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	if deliverd.Valid {
		o.DeliveredAt = &deliverd.Time
	}
	return &o, nil
}
