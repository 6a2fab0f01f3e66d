package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gate4ai/giftmessage/shared/commerce"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

var _ Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS "Order" (
	id          BIGSERIAL PRIMARY KEY,
	"orderKey"  TEXT NOT NULL,
	"createdAt" TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	"firstName" TEXT NOT NULL DEFAULT '',
	"lastName"  TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS "OrderLine" (
	id          BIGSERIAL PRIMARY KEY,
	"orderId"   BIGINT NOT NULL REFERENCES "Order"(id) ON DELETE CASCADE,
	position    INT NOT NULL,
	"productId" BIGINT NOT NULL,
	label       TEXT NOT NULL,
	quantity    INT NOT NULL
);
CREATE TABLE IF NOT EXISTS "OrderLineMeta" (
	"lineId" BIGINT NOT NULL REFERENCES "OrderLine"(id) ON DELETE CASCADE,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY ("lineId", key)
);
`

// PostgresStore keeps orders and their line attributes in PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
	ownsDB bool
}

// NewPostgresStore opens dsn and makes sure the order tables exist.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	s, err := NewPostgresStoreFromDB(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewPostgresStoreFromDB uses a shared handle; Close leaves it open.
func NewPostgresStoreFromDB(ctx context.Context, db *sql.DB, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PostgresStore{db: db, logger: logger.Named("order-store")}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create order schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Status(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// CreateOrder inserts the order, its lines and line attributes in one transaction.
func (s *PostgresStore) CreateOrder(ctx context.Context, o *commerce.Order) (err error) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Order transaction rollback failed", zap.Error(rbErr))
			}
		}
	}()

	var orderID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO "Order" ("orderKey", "createdAt", status, "firstName", "lastName", email) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		o.Key, o.CreatedAt, o.Status, o.Customer.FirstName, o.Customer.LastName, o.Customer.Email,
	).Scan(&orderID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	lineIDs := make([]int64, len(o.Lines))
	for i, line := range o.Lines {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO "OrderLine" ("orderId", position, "productId", label, quantity) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			orderID, i, line.ProductID, line.Label, line.Quantity,
		).Scan(&lineIDs[i])
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", i, err)
		}
		for key, value := range line.Meta {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO "OrderLineMeta" ("lineId", key, value) VALUES ($1, $2, $3)`,
				lineIDs[i], key, value,
			)
			if err != nil {
				return fmt.Errorf("insert order line %d attribute %q: %w", i, key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}

	o.ID = orderID
	for i, line := range o.Lines {
		line.ID = lineIDs[i]
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*commerce.Order, error) {
	orders, err := s.ListOrders(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return orders[0], nil
}

// ListOrders returns the requested orders sorted by ID. An empty ids slice
// lists every order.
func (s *PostgresStore) ListOrders(ctx context.Context, ids []int64) ([]*commerce.Order, error) {
	var rows *sql.Rows
	var err error
	if len(ids) == 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, "orderKey", "createdAt", status, "firstName", "lastName", email FROM "Order" ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, "orderKey", "createdAt", status, "firstName", "lastName", email FROM "Order" WHERE id = ANY($1) ORDER BY id`,
			pq.Array(ids))
	}
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*commerce.Order
	byID := make(map[int64]*commerce.Order)
	for rows.Next() {
		o := &commerce.Order{}
		if scanErr := rows.Scan(&o.ID, &o.Key, &o.CreatedAt, &o.Status, &o.Customer.FirstName, &o.Customer.LastName, &o.Customer.Email); scanErr != nil {
			return nil, fmt.Errorf("scan order: %w", scanErr)
		}
		o.CreatedAt = o.CreatedAt.UTC()
		orders = append(orders, o)
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	orderIDs := make([]int64, 0, len(orders))
	for _, o := range orders {
		orderIDs = append(orderIDs, o.ID)
	}
	if err := s.loadLines(ctx, orderIDs, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *PostgresStore) loadLines(ctx context.Context, orderIDs []int64, byID map[int64]*commerce.Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.id, l."orderId", l."productId", l.label, l.quantity, m.key, m.value
		 FROM "OrderLine" l
		 LEFT JOIN "OrderLineMeta" m ON m."lineId" = l.id
		 WHERE l."orderId" = ANY($1)
		 ORDER BY l."orderId", l.position, m.key`,
		pq.Array(orderIDs))
	if err != nil {
		return fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var current *commerce.OrderLine
	for rows.Next() {
		var (
			lineID, orderID, productID int64
			label                      string
			quantity                   int
			key, value                 sql.NullString
		)
		if scanErr := rows.Scan(&lineID, &orderID, &productID, &label, &quantity, &key, &value); scanErr != nil {
			return fmt.Errorf("scan order line: %w", scanErr)
		}
		if current == nil || current.ID != lineID {
			o, ok := byID[orderID]
			if !ok {
				return errors.New("order line references an order outside the result set")
			}
			current = &commerce.OrderLine{ID: lineID, ProductID: productID, Label: label, Quantity: quantity}
			o.Lines = append(o.Lines, current)
		}
		if key.Valid {
			current.SetMeta(key.String, value.String)
		}
	}
	return rows.Err()
}
