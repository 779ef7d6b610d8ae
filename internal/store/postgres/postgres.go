package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/store"
	"swarna/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

const (
	maxTxAttempts = 6
	txRetryBase   = 20 * time.Millisecond
)

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger.Named("postgres")}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return store.Storage("migrate", err)
	}
	return nil
}

func (s *Store) NextSequenceValue(ctx context.Context, key string) (int64, error) {
	return nextSequenceValue(ctx, s.db, key)
}

func nextSequenceValue(ctx context.Context, q sqlx.QueryerContext, key string) (int64, error) {
	if key == "" {
		return 0, store.ErrInvalidInput
	}
	var counter int64
	err := sqlx.GetContext(ctx, q, &counter, `
		INSERT INTO sequences (key, counter, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (key)
		DO UPDATE SET counter = sequences.counter + 1, updated_at = now()
		RETURNING counter
	`, key)
	if err != nil {
		return 0, store.Storage("next sequence value", err)
	}
	return counter, nil
}

func (s *Store) GetRate(ctx context.Context, metal string, purity string) (*domain.Rate, error) {
	var row rateRow
	err := s.db.GetContext(ctx, &row, `
		SELECT metal, purity, price_per_gram, updated_at
		FROM rates
		WHERE metal = $1 AND purity = $2
	`, metal, purity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrRateNotFound
		}
		return nil, store.Storage("get rate", err)
	}
	rate := row.toDomain()
	return &rate, nil
}

func (s *Store) UpsertRate(ctx context.Context, rate domain.Rate) (*domain.Rate, error) {
	if !rate.PricePerGram.IsPositive() {
		return nil, store.ErrInvalidRate
	}
	if rate.UpdatedAt.IsZero() {
		rate.UpdatedAt = time.Now().UTC()
	}

	var row rateRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO rates (metal, purity, price_per_gram, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (metal, purity)
		DO UPDATE SET price_per_gram = EXCLUDED.price_per_gram, updated_at = EXCLUDED.updated_at
		RETURNING metal, purity, price_per_gram, updated_at
	`, rate.Metal, rate.Purity, rate.PricePerGram, rate.UpdatedAt)
	if err != nil {
		return nil, store.Storage("upsert rate", err)
	}
	saved := row.toDomain()
	return &saved, nil
}

func (s *Store) ListRates(ctx context.Context) ([]domain.Rate, error) {
	rows := make([]rateRow, 0, 8)
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT metal, purity, price_per_gram, updated_at
		FROM rates
		ORDER BY metal, purity DESC
	`); err != nil {
		return nil, store.Storage("list rates", err)
	}
	rates := make([]domain.Rate, 0, len(rows))
	for _, row := range rows {
		rates = append(rates, row.toDomain())
	}
	return rates, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	var row productRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO products (sku, name, metal, purity, weight_grams, wastage_percent, making_charge, stone_price, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+productColumns,
		product.SKU, product.Name, product.Metal, product.Purity, product.WeightGrams, product.WastagePercent,
		product.MakingCharge, product.StonePrice, product.Price, product.Stock)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateProduct
		}
		return nil, store.Storage("create product", err)
	}
	created := row.toDomain()
	return &created, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProductBySKU(ctx, s.db, sku)
}

func getProductBySKU(ctx context.Context, q sqlx.QueryerContext, sku string) (*domain.Product, error) {
	var row productRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, store.Storage("get product", err)
	}
	product := row.toDomain()
	return &product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows := make([]productRow, 0, 64)
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+productColumns+` FROM products ORDER BY sku`); err != nil {
		return nil, store.Storage("list products", err)
	}
	return toProducts(rows), nil
}

func (s *Store) ListProductsByRate(ctx context.Context, metal string, purity string) ([]domain.Product, error) {
	rows := make([]productRow, 0, 32)
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT `+productColumns+`
		FROM products
		WHERE metal = $1 AND purity = $2
		ORDER BY sku
	`, metal, purity); err != nil {
		return nil, store.Storage("list products by rate", err)
	}
	return toProducts(rows), nil
}

func (s *Store) UpdateProductPrice(ctx context.Context, sku string, price int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET price = $2, updated_at = $3 WHERE sku = $1
	`, sku, price, at)
	if err != nil {
		return store.Storage("update product price", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage("update product price", err)
	}
	if affected == 0 {
		return store.ErrProductNotFound
	}
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, sku string, qty int, policy store.StockPolicy) (int, error) {
	return decrementStock(ctx, s.db, sku, qty, policy)
}

// decrementStock is a single conditional UPDATE, so concurrent decrements of
// the same SKU never lose updates.
func decrementStock(ctx context.Context, q sqlx.QueryerContext, sku string, qty int, policy store.StockPolicy) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidInput
	}

	query := `UPDATE products SET stock = stock - $2, updated_at = now() WHERE sku = $1 RETURNING stock`
	if policy == store.StockRejectOversell {
		query = `UPDATE products SET stock = stock - $2, updated_at = now() WHERE sku = $1 AND stock >= $2 RETURNING stock`
	}

	var remaining int
	err := sqlx.GetContext(ctx, q, &remaining, query, sku, qty)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, store.Storage("decrement stock", err)
	}

	product, err := getProductBySKU(ctx, q, sku)
	if err != nil {
		return 0, err
	}
	return product.Stock, store.ErrInsufficientStock
}

// WithinTx runs fn as one READ COMMITTED transaction. Every write inside it
// is a single-row atomic statement guarded by a constraint, so the unit only
// needs all-or-nothing commit. Counter rows are locked until commit, which
// queues concurrent orders instead of failing them. Deadlocks and
// serialization failures retry the whole unit with jittered backoff.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
		s.logger.Warn("transaction conflict, retrying", zap.Int("attempt", attempt), zap.Error(err))
		if waitErr := sleepCtx(ctx, retryBackoff(attempt)); waitErr != nil {
			return store.Storage("retry wait", waitErr)
		}
	}
	s.logger.Error("transaction retries exhausted", zap.Int("attempts", maxTxAttempts), zap.Error(err))
	return fmt.Errorf("%w: transaction could not be completed, retry the request", store.ErrConflict)
}

func retryBackoff(attempt int) time.Duration {
	base := txRetryBase << (attempt - 1)
	return base/2 + time.Duration(rand.Int63n(int64(base)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Store) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return store.Storage("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.Storage("commit", err)
	}
	return nil
}

func (s *Store) FindOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrOrderNotFound
		}
		return nil, store.Storage("find order", err)
	}
	order, err := row.toDomain()
	if err != nil {
		return nil, store.Storage("decode order", err)
	}

	items := make([]orderItemRow, 0, 4)
	if err := s.db.SelectContext(ctx, &items, `
		SELECT order_id, line_no, sku, name, unit_price, qty
		FROM order_items
		WHERE order_id = $1
		ORDER BY line_no
	`, orderID); err != nil {
		return nil, store.Storage("find order items", err)
	}
	for _, item := range items {
		order.Items = append(order.Items, domain.LineItem{SKU: item.SKU, Name: item.Name, UnitPrice: item.UnitPrice, Qty: item.Qty})
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows := make([]orderRow, 0, 64)
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, order_id DESC`); err != nil {
		return nil, store.Storage("list orders", err)
	}

	items := make([]orderItemRow, 0, len(rows)*2)
	if err := s.db.SelectContext(ctx, &items, `
		SELECT order_id, line_no, sku, name, unit_price, qty
		FROM order_items
		ORDER BY order_id, line_no
	`); err != nil {
		return nil, store.Storage("list order items", err)
	}
	byOrder := make(map[string][]domain.LineItem, len(rows))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], domain.LineItem{SKU: item.SKU, Name: item.Name, UnitPrice: item.UnitPrice, Qty: item.Qty})
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := row.toDomain()
		if err != nil {
			return nil, store.Storage("decode order", err)
		}
		if lines, ok := byOrder[order.OrderID]; ok {
			order.Items = lines
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *Store) ReturnExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM returns WHERE order_id = $1)`, orderID); err != nil {
		return false, store.Storage("check return", err)
	}
	return exists, nil
}

// CreateReturn relies on the unique index on returns.order_id; a concurrent
// second insert for the same order fails with ErrDuplicateReturn.
func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.OrderID == "" {
		return nil, store.ErrInvalidInput
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	items, err := json.Marshal(ret.Items)
	if err != nil {
		return nil, store.ErrInvalidInput
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO returns (id, order_id, invoice_number, customer_name, customer_phone, customer_email, items, grand_total, return_reason, return_type, status, processed_by, returned_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, ret.ID, ret.OrderID, ret.InvoiceNumber, ret.Customer.Name, nullIfEmpty(ret.Customer.Phone), nullIfEmpty(ret.Customer.Email),
		string(items), ret.GrandTotal, ret.ReturnReason, ret.ReturnType, ret.Status, nullIfEmpty(ret.ProcessedBy), ret.ReturnedAt, ret.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReturn
		}
		return nil, store.Storage("create return", err)
	}
	return &ret, nil
}

func (s *Store) ListReturns(ctx context.Context) ([]domain.Return, error) {
	rows := make([]returnRow, 0, 32)
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+returnColumns+` FROM returns ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, store.Storage("list returns", err)
	}
	returns := make([]domain.Return, 0, len(rows))
	for _, row := range rows {
		ret, err := row.toDomain()
		if err != nil {
			return nil, store.Storage("decode return", err)
		}
		returns = append(returns, ret)
	}
	return returns, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	if err != nil {
		return store.Storage("create audit log", err)
	}
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows := make([]auditRow, 0, limit)
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit); err != nil {
		return nil, store.Storage("list audit logs", err)
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, domain.AuditLog{
			ID:            row.ID,
			ActorUsername: row.ActorUsername,
			ActorRole:     row.ActorRole,
			Action:        row.Action,
			EntityType:    row.EntityType,
			EntityID:      row.EntityID,
			Detail:        row.Detail,
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, true, $4)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return store.Storage("create user", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows := make([]userRow, 0, 8)
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`); err != nil {
		return nil, store.Storage("list users", err)
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, row := range rows {
		users = append(users, domain.UserAccount{
			Username:  row.Username,
			Password:  row.PasswordHash,
			Role:      row.Role,
			Active:    row.Active,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return store.Storage("update user password", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Storage("update user password", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) NextSequenceValue(ctx context.Context, key string) (int64, error) {
	return nextSequenceValue(ctx, t.tx, key)
}

func (t *pgTx) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProductBySKU(ctx, t.tx, sku)
}

func (t *pgTx) DecrementStock(ctx context.Context, sku string, qty int, policy store.StockPolicy) (int, error) {
	return decrementStock(ctx, t.tx, sku, qty, policy)
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) error {
	if order.OrderID == "" || order.InvoiceNumber == "" {
		return store.ErrInvalidInput
	}
	methods, err := json.Marshal(order.PaymentMethods)
	if err != nil {
		return store.ErrInvalidInput
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO orders (order_id, invoice_number, customer_name, customer_phone, customer_email, payment_mode, payment_methods, subtotal, discount, tax, grand_total, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, order.OrderID, order.InvoiceNumber, order.Customer.Name, nullIfEmpty(order.Customer.Phone), nullIfEmpty(order.Customer.Email),
		nullIfEmpty(order.PaymentMode), string(methods), order.Subtotal, order.Discount, order.Tax, order.GrandTotal,
		nullIfEmpty(order.CreatedBy), order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrOrderPersistence
		}
		return store.Storage("insert order", err)
	}

	for i, item := range order.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, line_no, sku, name, unit_price, qty)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.OrderID, i+1, item.SKU, item.Name, item.UnitPrice, item.Qty); err != nil {
			return store.Storage("insert order item", err)
		}
	}
	return nil
}

func toProducts(rows []productRow) []domain.Product {
	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toDomain())
	}
	return products
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
