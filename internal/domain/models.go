package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MetalGold   = "gold"
	MetalSilver = "silver"
)

const (
	ReturnStatusCompleted = "completed"
)

// Upper bounds on amounts and quantities. Every rupee amount the engine prices,
// stores or sums stays at or below MaxAmount, which keeps line totals and sums
// far from int64 overflow.
const (
	MaxAmount  int64 = 1_000_000_000_000
	MaxLineQty       = 100_000
)

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Rate is the current price per gram for a metal at a purity. Silver carries
// an empty purity.
type Rate struct {
	Metal        string          `json:"metal"`
	Purity       string          `json:"purity,omitempty"`
	PricePerGram decimal.Decimal `json:"pricePerGram"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type RateUpdateRequest struct {
	Price  decimal.Decimal `json:"price"`
	Purity string          `json:"purity,omitempty"`
}

type RateUpdateResponse struct {
	Rate          Rate `json:"rate"`
	RepricedCount int  `json:"repricedCount"`
}

type Product struct {
	SKU            string          `json:"sku"`
	Name           string          `json:"name"`
	Metal          string          `json:"metal"`
	Purity         string          `json:"purity,omitempty"`
	WeightGrams    decimal.Decimal `json:"weight"`
	WastagePercent decimal.Decimal `json:"wastage"`
	MakingCharge   int64           `json:"makingCharges"`
	StonePrice     int64           `json:"stonePrice"`
	Price          int64           `json:"price"`
	Stock          int             `json:"stock"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ProductCreateRequest struct {
	SKU            string          `json:"sku,omitempty"`
	Name           string          `json:"name"`
	Metal          string          `json:"metal"`
	Purity         string          `json:"purity,omitempty"`
	WeightGrams    decimal.Decimal `json:"weight"`
	WastagePercent decimal.Decimal `json:"wastage"`
	MakingCharge   int64           `json:"makingCharges"`
	StonePrice     int64           `json:"stonePrice"`
	Stock          int             `json:"stock"`
}

// PriceQuoteRequest carries the attributes the price formula reads.
type PriceQuoteRequest struct {
	Metal          string          `json:"metal"`
	Purity         string          `json:"purity,omitempty"`
	WeightGrams    decimal.Decimal `json:"weight"`
	WastagePercent decimal.Decimal `json:"wastage"`
	MakingCharge   int64           `json:"makingCharges"`
	StonePrice     int64           `json:"stonePrice"`
}

type PriceQuoteResponse struct {
	Price int64 `json:"price"`
}

type CustomerSnapshot struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type LineItem struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"price"`
	Qty       int    `json:"quantity"`
}

func (l LineItem) Total() int64 {
	return l.UnitPrice * int64(l.Qty)
}

type PaymentSplit struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

type Order struct {
	OrderID        string           `json:"orderId"`
	InvoiceNumber  string           `json:"invoiceNumber"`
	Customer       CustomerSnapshot `json:"customer"`
	Items          []LineItem       `json:"items"`
	PaymentMode    string           `json:"paymentMode,omitempty"`
	PaymentMethods []PaymentSplit   `json:"paymentMethods,omitempty"`
	Subtotal       int64            `json:"subtotal"`
	Discount       int64            `json:"discount"`
	Tax            int64            `json:"tax"`
	GrandTotal     int64            `json:"grandTotal"`
	CreatedBy      string           `json:"createdBy,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// OrderCreateRequest is the cart as submitted by the till. Subtotal and grand
// total are always recomputed from the lines.
type OrderCreateRequest struct {
	Customer       CustomerSnapshot `json:"customer"`
	Items          []LineItem       `json:"items"`
	PaymentMode    string           `json:"paymentMode,omitempty"`
	PaymentMethods []PaymentSplit   `json:"paymentMethods,omitempty"`
	Discount       int64            `json:"discount"`
	Tax            int64            `json:"tax"`
}

type Return struct {
	ID            string           `json:"id"`
	OrderID       string           `json:"orderId"`
	InvoiceNumber string           `json:"invoiceNumber"`
	Customer      CustomerSnapshot `json:"customer"`
	Items         []LineItem       `json:"items"`
	GrandTotal    int64            `json:"grandTotal"`
	ReturnReason  string           `json:"returnReason"`
	ReturnType    string           `json:"returnType"`
	Status        string           `json:"status"`
	ProcessedBy   string           `json:"processedBy,omitempty"`
	ReturnedAt    time.Time        `json:"returnedAt"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// ReturnCreateRequest snapshots the order as the till saw it. Empty snapshot
// fields are filled from the stored order.
type ReturnCreateRequest struct {
	OrderID       string            `json:"orderId"`
	InvoiceNumber string            `json:"invoiceNumber,omitempty"`
	Customer      *CustomerSnapshot `json:"customer,omitempty"`
	Items         []LineItem        `json:"items,omitempty"`
	GrandTotal    *int64            `json:"grandTotal,omitempty"`
	ReturnReason  string            `json:"returnReason"`
	ReturnType    string            `json:"returnType"`
	ReturnDate    string            `json:"returnDate,omitempty"`
	ReturnTime    string            `json:"returnTime,omitempty"`
	Status        string            `json:"status,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actorUsername"`
	ActorRole     string    `json:"actorRole"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"createdAt"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
