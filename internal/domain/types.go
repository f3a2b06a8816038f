package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// PaymentMethod enumerates the payment options a customer may choose.
type PaymentMethod string

const (
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodCreditCard PaymentMethod = "credit-card"
	PaymentMethodCash       PaymentMethod = "cash"
)

// PaymentMethods lists every supported payment method in display order.
var PaymentMethods = []PaymentMethod{PaymentMethodPix, PaymentMethodCreditCard, PaymentMethodCash}

// Valid reports whether the payment method is one of the supported values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodPix, PaymentMethodCreditCard, PaymentMethodCash:
		return true
	default:
		return false
	}
}

// Order is the central aggregate of the ordering core. Monetary fields are exact decimals.
type Order struct {
	ID            string
	TenantID      string
	OrderNumber   string
	Status        OrderStatus
	Customer      Customer
	Items         []OrderItem
	PaymentMethod PaymentMethod
	ChangeFor     *decimal.Decimal
	DeliveryFee   decimal.Decimal
	Subtotal      decimal.Decimal
	Total         decimal.Decimal
	Rating        *int
	RatingComment string
	RatedAt       *time.Time
	Notes         []OrderNote
	StatusHistory []StatusChange
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ConfirmedAt   *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
}

// Customer is the contact snapshot captured with the order. Phone identifies the customer in reports.
type Customer struct {
	Name    string
	Phone   string
	Address string
}

// OrderItem is one line of an order. Prices are snapshots taken when the order was placed.
type OrderItem struct {
	ProductID string
	Name      string
	Flavor    string
	Size      string
	Quantity  int
	UnitPrice decimal.Decimal
	Options   []SelectedOption
	Total     decimal.Decimal
}

// SelectedOption is a priced add-on chosen for a line item.
type SelectedOption struct {
	Name  string
	Price decimal.Decimal
}

// OrderNote is a single entry of the append-only annotation log.
type OrderNote struct {
	ID        string
	Text      string
	Author    string
	CreatedAt time.Time
}

// StatusChange records a persisted lifecycle transition.
type StatusChange struct {
	From  OrderStatus
	To    OrderStatus
	Actor string
	At    time.Time
}

// NotesText renders the note log as one "[timestamp] (author) text" line per entry in append order.
func (o Order) NotesText() string {
	if len(o.Notes) == 0 {
		return ""
	}
	lines := make([]string, 0, len(o.Notes))
	for _, note := range o.Notes {
		author := note.Author
		if author == "" {
			author = "system"
		}
		lines = append(lines, fmt.Sprintf("[%s] (%s) %s", note.CreatedAt.UTC().Format(time.RFC3339), author, note.Text))
	}
	return strings.Join(lines, "\n")
}

// Tenant is a restaurant account. All order data is scoped by tenant id.
type Tenant struct {
	ID           string
	Name         string
	ContactPhone string
	Active       bool
	APIKeyHash   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductType classifies catalog products. Only pizzas carry size rules today.
type ProductType string

const (
	ProductTypePizza ProductType = "pizza"
	ProductTypeDrink ProductType = "drink"
	ProductTypeOther ProductType = "other"
)

// Product is the read-only catalog view consumed by order validation and reports.
type Product struct {
	ID         string
	TenantID   string
	Name       string
	CategoryID string
	Type       ProductType
	Available  bool
	Sizes      []SizeOption
}

// SizeOption is a configured size and its price for a product.
type SizeOption struct {
	Name  string
	Price decimal.Decimal
}

// Category groups catalog products.
type Category struct {
	ID       string
	TenantID string
	Name     string
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Statuses      []OrderStatus
	CustomerPhone string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	PageSize      int
	PageToken     string
}

// CursorPage is a page of results plus the token to fetch the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
