package firestore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mathauscm/api-mybot/internal/domain"
)

// Money is stored as canonical decimal strings so values round-trip exactly.

type orderDocument struct {
	TenantID      string                 `firestore:"tenantId"`
	OrderNumber   string                 `firestore:"orderNumber"`
	Status        string                 `firestore:"status"`
	Customer      customerDocument       `firestore:"customer"`
	Items         []orderItemDocument    `firestore:"items"`
	PaymentMethod string                 `firestore:"paymentMethod"`
	ChangeFor     *string                `firestore:"changeFor,omitempty"`
	DeliveryFee   string                 `firestore:"deliveryFee"`
	Subtotal      string                 `firestore:"subtotal"`
	Total         string                 `firestore:"total"`
	Rating        *int                   `firestore:"rating,omitempty"`
	RatingComment string                 `firestore:"ratingComment,omitempty"`
	RatedAt       *time.Time             `firestore:"ratedAt,omitempty"`
	Notes         []noteDocument         `firestore:"notes"`
	StatusHistory []statusChangeDocument `firestore:"statusHistory"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
	ConfirmedAt   *time.Time             `firestore:"confirmedAt,omitempty"`
	CompletedAt   *time.Time             `firestore:"completedAt,omitempty"`
	CancelledAt   *time.Time             `firestore:"cancelledAt,omitempty"`
}

type customerDocument struct {
	Name    string `firestore:"name"`
	Phone   string `firestore:"phone"`
	Address string `firestore:"address,omitempty"`
}

type orderItemDocument struct {
	ProductID string           `firestore:"productId,omitempty"`
	Name      string           `firestore:"name"`
	Flavor    string           `firestore:"flavor,omitempty"`
	Size      string           `firestore:"size,omitempty"`
	Quantity  int              `firestore:"quantity"`
	UnitPrice string           `firestore:"unitPrice"`
	Options   []optionDocument `firestore:"options"`
	Total     string           `firestore:"total"`
}

type optionDocument struct {
	Name  string `firestore:"name"`
	Price string `firestore:"price"`
}

type noteDocument struct {
	ID        string    `firestore:"id"`
	Text      string    `firestore:"text"`
	Author    string    `firestore:"author,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type statusChangeDocument struct {
	From  string    `firestore:"from"`
	To    string    `firestore:"to"`
	Actor string    `firestore:"actor,omitempty"`
	At    time.Time `firestore:"at"`
}

type orderNumberDocument struct {
	OrderID   string    `firestore:"orderId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromDomainOrder(o domain.Order) orderDocument {
	doc := orderDocument{
		TenantID:      o.TenantID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		Customer:      customerDocument{Name: o.Customer.Name, Phone: o.Customer.Phone, Address: o.Customer.Address},
		Items:         make([]orderItemDocument, 0, len(o.Items)),
		PaymentMethod: string(o.PaymentMethod),
		DeliveryFee:   o.DeliveryFee.String(),
		Subtotal:      o.Subtotal.String(),
		Total:         o.Total.String(),
		Rating:        o.Rating,
		RatingComment: o.RatingComment,
		RatedAt:       utcPtr(o.RatedAt),
		Notes:         make([]noteDocument, 0, len(o.Notes)),
		StatusHistory: make([]statusChangeDocument, 0, len(o.StatusHistory)),
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
		ConfirmedAt:   utcPtr(o.ConfirmedAt),
		CompletedAt:   utcPtr(o.CompletedAt),
		CancelledAt:   utcPtr(o.CancelledAt),
	}
	if o.ChangeFor != nil {
		v := o.ChangeFor.String()
		doc.ChangeFor = &v
	}
	for _, item := range o.Items {
		options := make([]optionDocument, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, optionDocument{Name: opt.Name, Price: opt.Price.String()})
		}
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Flavor:    item.Flavor,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			Options:   options,
			Total:     item.Total.String(),
		})
	}
	for _, note := range o.Notes {
		doc.Notes = append(doc.Notes, fromDomainNote(note))
	}
	for _, change := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, fromDomainStatusChange(change))
	}
	return doc
}

func fromDomainNote(note domain.OrderNote) noteDocument {
	return noteDocument{ID: note.ID, Text: note.Text, Author: note.Author, CreatedAt: note.CreatedAt.UTC()}
}

func fromDomainStatusChange(change domain.StatusChange) statusChangeDocument {
	return statusChangeDocument{From: string(change.From), To: string(change.To), Actor: change.Actor, At: change.At.UTC()}
}

func toDomainOrder(id string, doc orderDocument) (domain.Order, error) {
	order := domain.Order{
		ID:            id,
		TenantID:      doc.TenantID,
		OrderNumber:   doc.OrderNumber,
		Status:        domain.OrderStatus(doc.Status),
		Customer:      domain.Customer{Name: doc.Customer.Name, Phone: doc.Customer.Phone, Address: doc.Customer.Address},
		Items:         make([]domain.OrderItem, 0, len(doc.Items)),
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Rating:        doc.Rating,
		RatingComment: doc.RatingComment,
		RatedAt:       doc.RatedAt,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		ConfirmedAt:   doc.ConfirmedAt,
		CompletedAt:   doc.CompletedAt,
		CancelledAt:   doc.CancelledAt,
	}

	var err error
	if order.DeliveryFee, err = parseMoney("deliveryFee", doc.DeliveryFee); err != nil {
		return domain.Order{}, err
	}
	if order.Subtotal, err = parseMoney("subtotal", doc.Subtotal); err != nil {
		return domain.Order{}, err
	}
	if order.Total, err = parseMoney("total", doc.Total); err != nil {
		return domain.Order{}, err
	}
	if doc.ChangeFor != nil {
		v, err := parseMoney("changeFor", *doc.ChangeFor)
		if err != nil {
			return domain.Order{}, err
		}
		order.ChangeFor = &v
	}

	for i, item := range doc.Items {
		unit, err := parseMoney(fmt.Sprintf("items[%d].unitPrice", i), item.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		total, err := parseMoney(fmt.Sprintf("items[%d].total", i), item.Total)
		if err != nil {
			return domain.Order{}, err
		}
		options := make([]domain.SelectedOption, 0, len(item.Options))
		for j, opt := range item.Options {
			price, err := parseMoney(fmt.Sprintf("items[%d].options[%d].price", i, j), opt.Price)
			if err != nil {
				return domain.Order{}, err
			}
			options = append(options, domain.SelectedOption{Name: opt.Name, Price: price})
		}
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Flavor:    item.Flavor,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			Options:   options,
			Total:     total,
		})
	}
	for _, note := range doc.Notes {
		order.Notes = append(order.Notes, domain.OrderNote{ID: note.ID, Text: note.Text, Author: note.Author, CreatedAt: note.CreatedAt})
	}
	for _, change := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusChange{
			From:  domain.OrderStatus(change.From),
			To:    domain.OrderStatus(change.To),
			Actor: change.Actor,
			At:    change.At,
		})
	}
	return order, nil
}

type productDocument struct {
	Name       string         `firestore:"name"`
	CategoryID string         `firestore:"categoryId"`
	Type       string         `firestore:"type"`
	Available  bool           `firestore:"available"`
	Sizes      []sizeDocument `firestore:"sizes"`
}

type sizeDocument struct {
	Name  string `firestore:"name"`
	Price string `firestore:"price"`
}

func toDomainProduct(tenantID, id string, doc productDocument) (domain.Product, error) {
	product := domain.Product{
		ID:         id,
		TenantID:   tenantID,
		Name:       doc.Name,
		CategoryID: doc.CategoryID,
		Type:       domain.ProductType(doc.Type),
		Available:  doc.Available,
	}
	for i, size := range doc.Sizes {
		price, err := parseMoney(fmt.Sprintf("sizes[%d].price", i), size.Price)
		if err != nil {
			return domain.Product{}, err
		}
		product.Sizes = append(product.Sizes, domain.SizeOption{Name: size.Name, Price: price})
	}
	return product, nil
}

type categoryDocument struct {
	Name string `firestore:"name"`
}

type tenantDocument struct {
	Name         string    `firestore:"name"`
	ContactPhone string    `firestore:"contactPhone"`
	Active       bool      `firestore:"active"`
	APIKeyHash   string    `firestore:"apiKeyHash"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func toDomainTenant(id string, doc tenantDocument) domain.Tenant {
	return domain.Tenant{
		ID:           id,
		Name:         doc.Name,
		ContactPhone: doc.ContactPhone,
		Active:       doc.Active,
		APIKeyHash:   doc.APIKeyHash,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode %s: %w", field, err)
	}
	return v, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
