package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"swarna/backend/internal/domain"
)

type rateRow struct {
	Metal        string          `db:"metal"`
	Purity       string          `db:"purity"`
	PricePerGram decimal.Decimal `db:"price_per_gram"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

func (r rateRow) toDomain() domain.Rate {
	return domain.Rate{
		Metal:        r.Metal,
		Purity:       r.Purity,
		PricePerGram: r.PricePerGram,
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type productRow struct {
	SKU            string          `db:"sku"`
	Name           string          `db:"name"`
	Metal          string          `db:"metal"`
	Purity         string          `db:"purity"`
	WeightGrams    decimal.Decimal `db:"weight_grams"`
	WastagePercent decimal.Decimal `db:"wastage_percent"`
	MakingCharge   int64           `db:"making_charge"`
	StonePrice     int64           `db:"stone_price"`
	Price          int64           `db:"price"`
	Stock          int             `db:"stock"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

const productColumns = `sku, name, metal, purity, weight_grams, wastage_percent, making_charge, stone_price, price, stock, created_at, updated_at`

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		SKU:            r.SKU,
		Name:           r.Name,
		Metal:          r.Metal,
		Purity:         r.Purity,
		WeightGrams:    r.WeightGrams,
		WastagePercent: r.WastagePercent,
		MakingCharge:   r.MakingCharge,
		StonePrice:     r.StonePrice,
		Price:          r.Price,
		Stock:          r.Stock,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type orderRow struct {
	OrderID        string         `db:"order_id"`
	InvoiceNumber  string         `db:"invoice_number"`
	CustomerName   string         `db:"customer_name"`
	CustomerPhone  sql.NullString `db:"customer_phone"`
	CustomerEmail  sql.NullString `db:"customer_email"`
	PaymentMode    sql.NullString `db:"payment_mode"`
	PaymentMethods []byte         `db:"payment_methods"`
	Subtotal       int64          `db:"subtotal"`
	Discount       int64          `db:"discount"`
	Tax            int64          `db:"tax"`
	GrandTotal     int64          `db:"grand_total"`
	CreatedBy      sql.NullString `db:"created_by"`
	CreatedAt      time.Time      `db:"created_at"`
}

const orderColumns = `order_id, invoice_number, customer_name, customer_phone, customer_email, payment_mode, payment_methods, subtotal, discount, tax, grand_total, created_by, created_at`

func (r orderRow) toDomain() (domain.Order, error) {
	order := domain.Order{
		OrderID:       r.OrderID,
		InvoiceNumber: r.InvoiceNumber,
		Customer: domain.CustomerSnapshot{
			Name:  r.CustomerName,
			Phone: r.CustomerPhone.String,
			Email: r.CustomerEmail.String,
		},
		PaymentMode: r.PaymentMode.String,
		Subtotal:    r.Subtotal,
		Discount:    r.Discount,
		Tax:         r.Tax,
		GrandTotal:  r.GrandTotal,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		Items:       []domain.LineItem{},
	}
	if len(r.PaymentMethods) > 0 {
		if err := json.Unmarshal(r.PaymentMethods, &order.PaymentMethods); err != nil {
			return domain.Order{}, err
		}
	}
	return order, nil
}

type orderItemRow struct {
	OrderID   string `db:"order_id"`
	LineNo    int    `db:"line_no"`
	SKU       string `db:"sku"`
	Name      string `db:"name"`
	UnitPrice int64  `db:"unit_price"`
	Qty       int    `db:"qty"`
}

type returnRow struct {
	ID            string         `db:"id"`
	OrderID       string         `db:"order_id"`
	InvoiceNumber string         `db:"invoice_number"`
	CustomerName  string         `db:"customer_name"`
	CustomerPhone sql.NullString `db:"customer_phone"`
	CustomerEmail sql.NullString `db:"customer_email"`
	Items         []byte         `db:"items"`
	GrandTotal    int64          `db:"grand_total"`
	ReturnReason  string         `db:"return_reason"`
	ReturnType    string         `db:"return_type"`
	Status        string         `db:"status"`
	ProcessedBy   sql.NullString `db:"processed_by"`
	ReturnedAt    time.Time      `db:"returned_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

const returnColumns = `id, order_id, invoice_number, customer_name, customer_phone, customer_email, items, grand_total, return_reason, return_type, status, processed_by, returned_at, created_at`

func (r returnRow) toDomain() (domain.Return, error) {
	ret := domain.Return{
		ID:            r.ID,
		OrderID:       r.OrderID,
		InvoiceNumber: r.InvoiceNumber,
		Customer: domain.CustomerSnapshot{
			Name:  r.CustomerName,
			Phone: r.CustomerPhone.String,
			Email: r.CustomerEmail.String,
		},
		GrandTotal:   r.GrandTotal,
		ReturnReason: r.ReturnReason,
		ReturnType:   r.ReturnType,
		Status:       r.Status,
		ProcessedBy:  r.ProcessedBy.String,
		ReturnedAt:   r.ReturnedAt.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &ret.Items); err != nil {
			return domain.Return{}, err
		}
	}
	return ret, nil
}

type userRow struct {
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	Active       bool      `db:"active"`
	CreatedAt    time.Time `db:"created_at"`
}

type auditRow struct {
	ID            string    `db:"id"`
	ActorUsername string    `db:"actor_username"`
	ActorRole     string    `db:"actor_role"`
	Action        string    `db:"action"`
	EntityType    string    `db:"entity_type"`
	EntityID      string    `db:"entity_id"`
	Detail        string    `db:"detail"`
	CreatedAt     time.Time `db:"created_at"`
}
