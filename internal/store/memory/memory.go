package memory

import (
	"cmp"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"swarna/backend/internal/domain"
	"swarna/backend/internal/store"
	"swarna/backend/internal/xid"
)

// Store keeps everything in process memory behind one lock. Transactions hold
// the write lock for their whole duration, which makes them serializable.
type Store struct {
	mu              sync.RWMutex
	rates           map[string]domain.Rate
	products        map[string]domain.Product
	sequences       map[string]int64
	ordersByID      map[string]domain.Order
	invoiceNumbers  map[string]string
	returnsByOrder  map[string]domain.Return
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		rates:           make(map[string]domain.Rate),
		products:        make(map[string]domain.Product),
		sequences:       make(map[string]int64),
		ordersByID:      make(map[string]domain.Order),
		invoiceNumbers:  make(map[string]string),
		returnsByOrder:  make(map[string]domain.Return),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo rates, a small catalog and two users for
// local development. Seed passwords come from SEED_ADMIN_PASSWORD and
// SEED_STAFF_PASSWORD.
func NewSeeded(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()
	now := time.Now().UTC()

	for _, r := range []struct {
		metal  string
		purity string
		price  int64
	}{
		{domain.MetalGold, "24K", 6500},
		{domain.MetalGold, "22K", 6000},
		{domain.MetalGold, "18K", 4900},
		{domain.MetalGold, "14K", 3800},
		{domain.MetalSilver, "", 80},
	} {
		s.rates[rateKey(r.metal, r.purity)] = domain.Rate{
			Metal:        r.metal,
			Purity:       r.purity,
			PricePerGram: decimal.NewFromInt(r.price),
			UpdatedAt:    now,
		}
	}

	// Prices follow the seeded rates: weight x rate, plus wastage, making and stone.
	for _, p := range []domain.Product{
		{SKU: "RING-001", Name: "Plain Gold Band", Metal: domain.MetalGold, Purity: "22K", WeightGrams: decimal.NewFromInt(5), WastagePercent: decimal.NewFromInt(2), MakingCharge: 300, Price: 30900, Stock: 10},
		{SKU: "CHAIN-001", Name: "Rope Chain 18in", Metal: domain.MetalGold, Purity: "22K", WeightGrams: decimal.NewFromInt(10), WastagePercent: decimal.NewFromInt(5), MakingCharge: 1500, Price: 64500, Stock: 4},
		{SKU: "ANKLET-001", Name: "Silver Anklet Pair", Metal: domain.MetalSilver, WeightGrams: decimal.NewFromInt(40), WastagePercent: decimal.Zero, MakingCharge: 400, Price: 3600, Stock: 12},
		{SKU: "STUD-001", Name: "Solitaire Stud", Metal: domain.MetalGold, Purity: "18K", WeightGrams: decimal.NewFromInt(2), WastagePercent: decimal.NewFromInt(8), MakingCharge: 800, StonePrice: 12000, Price: 23384, Stock: 3},
	} {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.SKU] = p
	}

	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Warn("memory store using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("failed to hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func rateKey(metal string, purity string) string {
	return metal + "|" + purity
}

func (s *Store) NextSequenceValue(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		return 0, store.ErrInvalidInput
	}
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *Store) GetRate(_ context.Context, metal string, purity string) (*domain.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate, ok := s.rates[rateKey(metal, purity)]
	if !ok {
		return nil, store.ErrRateNotFound
	}
	return &rate, nil
}

func (s *Store) UpsertRate(_ context.Context, rate domain.Rate) (*domain.Rate, error) {
	if !rate.PricePerGram.IsPositive() {
		return nil, store.ErrInvalidRate
	}
	if rate.UpdatedAt.IsZero() {
		rate.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[rateKey(rate.Metal, rate.Purity)] = rate
	return &rate, nil
}

func (s *Store) ListRates(_ context.Context) ([]domain.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := make([]domain.Rate, 0, len(s.rates))
	for _, rate := range s.rates {
		rates = append(rates, rate)
	}
	slices.SortFunc(rates, func(a, b domain.Rate) int {
		if c := cmp.Compare(a.Metal, b.Metal); c != 0 {
			return c
		}
		return cmp.Compare(b.Purity, a.Purity)
	})
	return rates, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.SKU) == "" || strings.TrimSpace(product.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; exists {
		return nil, store.ErrDuplicateProduct
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.SKU] = product
	return &product, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[sku]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		products = append(products, product)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmp.Compare(a.SKU, b.SKU)
	})
	return products, nil
}

func (s *Store) ListProductsByRate(_ context.Context, metal string, purity string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, product := range s.products {
		if product.Metal == metal && product.Purity == purity {
			products = append(products, product)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmp.Compare(a.SKU, b.SKU)
	})
	return products, nil
}

func (s *Store) UpdateProductPrice(_ context.Context, sku string, price int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[sku]
	if !ok {
		return store.ErrProductNotFound
	}
	product.Price = price
	product.UpdatedAt = at
	s.products[sku] = product
	return nil
}

func (s *Store) DecrementStock(ctx context.Context, sku string, qty int, policy store.StockPolicy) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	return tx.DecrementStock(ctx, sku, qty, policy)
}

// WithinTx runs fn with the write lock held. If fn fails, every change made
// through the Tx is undone in reverse order.
func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *Store) FindOrderByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.ordersByID[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cloned := cloneOrder(order)
	return &cloned, nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		orders = append(orders, cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.OrderID, a.OrderID)
	})
	return orders, nil
}

func (s *Store) ReturnExistsForOrder(_ context.Context, orderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.returnsByOrder[orderID]
	return exists, nil
}

func (s *Store) CreateReturn(_ context.Context, ret domain.Return) (*domain.Return, error) {
	if ret.OrderID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.returnsByOrder[ret.OrderID]; exists {
		return nil, store.ErrDuplicateReturn
	}
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	ret.Items = slices.Clone(ret.Items)
	s.returnsByOrder[ret.OrderID] = ret
	cloned := ret
	cloned.Items = slices.Clone(ret.Items)
	return &cloned, nil
}

func (s *Store) ListReturns(_ context.Context) ([]domain.Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	returns := make([]domain.Return, 0, len(s.returnsByOrder))
	for _, ret := range s.returnsByOrder {
		ret.Items = slices.Clone(ret.Items)
		returns = append(returns, ret)
	}
	slices.SortFunc(returns, func(a, b domain.Return) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return returns, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		result = append(result, s.auditLogs[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// memTx operates on the store maps with the write lock already held.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) NextSequenceValue(_ context.Context, key string) (int64, error) {
	if key == "" {
		return 0, store.ErrInvalidInput
	}
	t.s.sequences[key]++
	// Allocated values are not handed back on rollback.
	return t.s.sequences[key], nil
}

func (t *memTx) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	product, ok := t.s.products[sku]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	return &product, nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	if order.OrderID == "" || order.InvoiceNumber == "" {
		return store.ErrInvalidInput
	}
	if _, exists := t.s.ordersByID[order.OrderID]; exists {
		return store.ErrOrderPersistence
	}
	if _, exists := t.s.invoiceNumbers[order.InvoiceNumber]; exists {
		return store.ErrOrderPersistence
	}

	t.s.ordersByID[order.OrderID] = cloneOrder(order)
	t.s.invoiceNumbers[order.InvoiceNumber] = order.OrderID
	t.undo = append(t.undo, func() {
		delete(t.s.ordersByID, order.OrderID)
		delete(t.s.invoiceNumbers, order.InvoiceNumber)
	})
	return nil
}

func (t *memTx) DecrementStock(_ context.Context, sku string, qty int, policy store.StockPolicy) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidInput
	}
	product, ok := t.s.products[sku]
	if !ok {
		return 0, store.ErrProductNotFound
	}
	if policy == store.StockRejectOversell && product.Stock < qty {
		return product.Stock, store.ErrInsufficientStock
	}

	previous := product
	product.Stock -= qty
	product.UpdatedAt = time.Now().UTC()
	t.s.products[sku] = product
	t.undo = append(t.undo, func() {
		t.s.products[sku] = previous
	})
	return product.Stock, nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	order.PaymentMethods = slices.Clone(order.PaymentMethods)
	return order
}
