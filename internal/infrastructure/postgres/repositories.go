package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/greengrove/plantshop/internal/domain/cart"
	"github.com/greengrove/plantshop/internal/domain/catalog"
	"github.com/greengrove/plantshop/internal/domain/order"
)

type productRepo struct {
	q querier
}

const productColumns = "id, name, price, stock, updated_at"

func (r *productRepo) Get(ctx context.Context, id string) (*catalog.Product, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	return scanProduct(row)
}

func (r *productRepo) GetForUpdate(ctx context.Context, id string) (*catalog.Product, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id)
	return scanProduct(row)
}

func (r *productRepo) UpdateStock(ctx context.Context, p *catalog.Product) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE products SET stock = $2, updated_at = $3 WHERE id = $1",
		p.ID, p.Stock, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update stock for %s: %w", p.ID, err)
	}
	return requireRow(res, catalog.ErrNotFound)
}

func scanProduct(row *sql.Row) (*catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan product: %w", err)
	}
	return &p, nil
}

type orderRepo struct {
	q querier
}

func (r *orderRepo) Insert(ctx context.Context, o *order.Order) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, address, payment_method, notes, total_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.UserID, o.Address, string(o.PaymentMethod), o.Notes,
		o.TotalAmount, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}

	for _, line := range o.Lines {
		_, err := r.q.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4)`,
			o.ID, line.ProductID, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("postgres: insert line %s/%s: %w", o.ID, line.ProductID, err)
		}
	}
	return nil
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	var method, status string
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, address, payment_method, notes, total_amount, status, created_at, updated_at
		 FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.Address, &method, &o.Notes,
			&o.TotalAmount, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order %s: %w", id, err)
	}
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	if !o.Status.Valid() {
		return nil, fmt.Errorf("postgres: order %s has unknown status %q", id, status)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT order_id, product_id, quantity, unit_price
		 FROM order_lines WHERE order_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: query lines for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line order.Line
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan line for %s: %w", id, err)
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate lines for %s: %w", id, err)
	}
	return &o, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, o *order.Order) error {
	res, err := r.q.ExecContext(ctx,
		"UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1",
		o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update status for %s: %w", o.ID, err)
	}
	return requireRow(res, order.ErrNotFound)
}

type cartRepo struct {
	q querier
}

func (r *cartRepo) Lines(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT product_id, quantity FROM cart_lines WHERE user_id = $1 ORDER BY product_id",
		userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query cart for %s: %w", userID, err)
	}
	defer rows.Close()

	var lines []cart.Line
	for rows.Next() {
		var line cart.Line
		if err := rows.Scan(&line.ProductID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate cart for %s: %w", userID, err)
	}
	return lines, nil
}

func (r *cartRepo) Add(ctx context.Context, userID string, line cart.Line) error {
	if line.Quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO cart_lines (user_id, product_id, quantity)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		userID, line.ProductID, line.Quantity)
	if err != nil {
		return fmt.Errorf("postgres: add cart line: %w", err)
	}
	return nil
}

func (r *cartRepo) SetQuantity(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	res, err := r.q.ExecContext(ctx,
		"UPDATE cart_lines SET quantity = $3 WHERE user_id = $1 AND product_id = $2",
		userID, productID, quantity)
	if err != nil {
		return fmt.Errorf("postgres: set cart quantity: %w", err)
	}
	return requireRow(res, cart.ErrLineNotFound)
}

func (r *cartRepo) Remove(ctx context.Context, userID, productID string) error {
	res, err := r.q.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2",
		userID, productID)
	if err != nil {
		return fmt.Errorf("postgres: remove cart line: %w", err)
	}
	return requireRow(res, cart.ErrLineNotFound)
}

func (r *cartRepo) Clear(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM cart_lines WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("postgres: clear cart for %s: %w", userID, err)
	}
	return nil
}

func requireRow(res sql.Result, missing error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}
