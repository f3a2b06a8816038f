package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/mathauscm/api-mybot/internal/domain"
)

const (
	maxOrderItems     = 100
	maxItemQuantity   = 999
	maxCustomerField  = 200
	maxItemNameLength = 200
)

// sizeOptionKeywords mark options that carry a size choice in bot payloads without an explicit size field.
var sizeOptionKeywords = []string{"tamanho", "tam", "size"}

// validatedOrder is the normalised creation input, ready for pricing.
type validatedOrder struct {
	Customer      domain.Customer
	Items         []domain.OrderItem
	PaymentMethod domain.PaymentMethod
	ChangeFor     *decimal.Decimal
	DeliveryFee   decimal.Decimal
}

type orderValidator struct {
	catalog CatalogLookup
}

func newOrderValidator(catalog CatalogLookup) *orderValidator {
	return &orderValidator{catalog: catalog}
}

// Validate runs structural checks first and reports every failure together. Catalog checks only run
// once the structure is sound, and stop at the first offending item.
func (v *orderValidator) Validate(ctx context.Context, cmd CreateOrderCommand) (validatedOrder, error) {
	verr := &OrderValidationError{}
	out := validatedOrder{DeliveryFee: decimal.Zero}

	if len(cmd.Items) == 0 {
		verr.add("items", "at least one item is required")
	} else if len(cmd.Items) > maxOrderItems {
		verr.add("items", "at most %d items are allowed", maxOrderItems)
	}

	out.Customer = domain.Customer{
		Name:    strings.TrimSpace(cmd.Customer.Name),
		Phone:   normalisePhone(cmd.Customer.Phone),
		Address: strings.TrimSpace(cmd.Customer.Address),
	}
	if out.Customer.Name == "" {
		verr.add("customer.name", "is required")
	} else if utf8.RuneCountInString(out.Customer.Name) > maxCustomerField {
		verr.add("customer.name", "must be at most %d characters", maxCustomerField)
	}
	if out.Customer.Phone == "" {
		verr.add("customer.phone", "is required")
	}

	out.Items = make([]domain.OrderItem, 0, len(cmd.Items))
	for i, in := range cmd.Items {
		item := domain.OrderItem{
			ProductID: strings.TrimSpace(in.ProductID),
			Name:      strings.TrimSpace(in.Name),
			Flavor:    strings.TrimSpace(in.Flavor),
			Size:      strings.TrimSpace(in.Size),
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
		}
		field := fmt.Sprintf("items[%d]", i)
		if item.Name == "" {
			verr.add(field+".name", "is required")
		} else if utf8.RuneCountInString(item.Name) > maxItemNameLength {
			verr.add(field+".name", "must be at most %d characters", maxItemNameLength)
		}
		if item.Quantity < 1 || item.Quantity > maxItemQuantity {
			verr.add(field+".quantity", "must be between 1 and %d", maxItemQuantity)
		}
		verr.addMoney(field+".unitPrice", item.UnitPrice)
		for j, opt := range in.Options {
			name := strings.TrimSpace(opt.Name)
			if name == "" {
				verr.add(fmt.Sprintf("%s.options[%d].name", field, j), "is required")
			}
			verr.addMoney(fmt.Sprintf("%s.options[%d].price", field, j), opt.Price)
			item.Options = append(item.Options, domain.SelectedOption{Name: name, Price: opt.Price})
		}
		out.Items = append(out.Items, item)
	}

	if cmd.DeliveryFee != nil {
		if err := CheckMoney(*cmd.DeliveryFee); err != nil {
			verr.add("deliveryFee", "%s", err.Error())
		} else {
			out.DeliveryFee = *cmd.DeliveryFee
		}
	}

	out.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(cmd.PaymentMethod)))
	switch {
	case !out.PaymentMethod.Valid():
		verr.add("paymentMethod", "must be one of pix, credit-card, cash")
	case out.PaymentMethod == domain.PaymentMethodCash:
		if cmd.ChangeFor != nil {
			if err := CheckMoney(*cmd.ChangeFor); err != nil {
				verr.add("changeFor", "%s", err.Error())
			} else {
				value := *cmd.ChangeFor
				out.ChangeFor = &value
			}
		}
	case cmd.ChangeFor != nil:
		verr.add("changeFor", "is only allowed when paymentMethod is cash")
	}

	if !verr.empty() {
		return validatedOrder{}, verr
	}

	for i := range out.Items {
		if err := v.checkCatalog(ctx, cmd.TenantID, i, &out.Items[i]); err != nil {
			return validatedOrder{}, err
		}
	}
	return out, nil
}

func (e *OrderValidationError) addMoney(field string, value decimal.Decimal) {
	if err := CheckMoney(value); err != nil {
		e.add(field, "%s", err.Error())
	}
}

func (v *orderValidator) checkCatalog(ctx context.Context, tenantID string, index int, item *domain.OrderItem) error {
	if item.ProductID == "" {
		return nil
	}
	field := fmt.Sprintf("items[%d]", index)
	if v.catalog == nil {
		return newFieldError(field+".productId", "product %s not found", item.ProductID)
	}

	product, err := v.catalog.FindProduct(ctx, tenantID, item.ProductID)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return newFieldError(field+".productId", "product %s not found", item.ProductID)
		}
		return err
	}
	if !product.Available {
		return newFieldError(field+".productId", "product %s is unavailable", item.ProductID)
	}
	if product.Type != domain.ProductTypePizza {
		return nil
	}

	selected, sizeField := item.Size, field+".size"
	if selected == "" {
		var optIndex int
		selected, optIndex = sizeFromOptions(item.Options)
		if selected == "" {
			return nil
		}
		sizeField = fmt.Sprintf("%s.options[%d]", field, optIndex)
	}
	size, ok := matchSize(product.Sizes, selected)
	if !ok {
		return newFieldError(sizeField, "size %q is not offered for product %s", selected, product.Name)
	}
	item.Size = size.Name
	return nil
}

// sizeFromOptions finds the first option whose name looks like a size choice and returns the chosen
// label. "Tamanho: Grande" yields "Grande"; options without a separator yield the full name.
func sizeFromOptions(options []domain.SelectedOption) (string, int) {
	for i, opt := range options {
		folded := foldCase(opt.Name)
		for _, keyword := range sizeOptionKeywords {
			if !strings.Contains(folded, keyword) {
				continue
			}
			if _, label, found := strings.Cut(opt.Name, ":"); found && strings.TrimSpace(label) != "" {
				return strings.TrimSpace(label), i
			}
			return opt.Name, i
		}
	}
	return "", -1
}

func matchSize(sizes []domain.SizeOption, selected string) (domain.SizeOption, bool) {
	want := foldCase(strings.TrimSpace(selected))
	for _, size := range sizes {
		name := foldCase(strings.TrimSpace(size.Name))
		if name == "" {
			continue
		}
		if want == name || strings.HasSuffix(want, " "+name) {
			return size, true
		}
	}
	return domain.SizeOption{}, false
}

// foldCase builds a fresh caser per call; casers carry state and are not safe to share.
func foldCase(value string) string {
	return cases.Fold().String(value)
}

func normalisePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
