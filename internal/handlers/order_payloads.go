package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/services"
)

const statisticsDateLayout = "2006-01-02"

type customerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type optionRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type orderItemRequest struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Flavor    string          `json:"flavor"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Options   []optionRequest `json:"options"`
}

type createOrderRequest struct {
	Customer      customerRequest    `json:"customer"`
	Items         []orderItemRequest `json:"items"`
	PaymentMethod string             `json:"paymentMethod"`
	ChangeFor     *decimal.Decimal   `json:"changeFor"`
	DeliveryFee   *decimal.Decimal   `json:"deliveryFee"`
	Notes         string             `json:"notes"`
}

func (req createOrderRequest) command(tenant string, tenantPhone string) services.CreateOrderCommand {
	items := make([]services.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		options := make([]domain.SelectedOption, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, domain.SelectedOption{Name: opt.Name, Price: opt.Price})
		}
		items = append(items, services.OrderItemInput{
			ProductID: item.ProductID,
			Name:      item.Name,
			Flavor:    item.Flavor,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Options:   options,
		})
	}
	return services.CreateOrderCommand{
		TenantID:    tenant,
		TenantPhone: tenantPhone,
		Customer: domain.Customer{
			Name:    req.Customer.Name,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
		},
		Items:         items,
		PaymentMethod: req.PaymentMethod,
		ChangeFor:     req.ChangeFor,
		DeliveryFee:   req.DeliveryFee,
		Notes:         req.Notes,
	}
}

type rateOrderRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type transitionStatusRequest struct {
	Status string `json:"status"`
}

type appendNoteRequest struct {
	Text string `json:"text"`
}

type customerPayload struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address,omitempty"`
}

type optionPayload struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type orderItemPayload struct {
	ProductID string          `json:"productId,omitempty"`
	Name      string          `json:"name"`
	Flavor    string          `json:"flavor,omitempty"`
	Size      string          `json:"size,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice string          `json:"unitPrice"`
	Options   []optionPayload `json:"options"`
	Total     string          `json:"total"`
}

type notePayload struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Author    string `json:"author"`
	CreatedAt string `json:"createdAt"`
}

type statusChangePayload struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Actor string `json:"actor,omitempty"`
	At    string `json:"at"`
}

type orderPayload struct {
	ID                 string                `json:"id"`
	OrderNumber        string                `json:"orderNumber"`
	Status             string                `json:"status"`
	AllowedTransitions []string              `json:"allowedTransitions"`
	Customer           customerPayload       `json:"customer"`
	Items              []orderItemPayload    `json:"items"`
	PaymentMethod      string                `json:"paymentMethod"`
	ChangeFor          *string               `json:"changeFor,omitempty"`
	Subtotal           string                `json:"subtotal"`
	DeliveryFee        string                `json:"deliveryFee"`
	Total              string                `json:"total"`
	Rating             *int                  `json:"rating,omitempty"`
	RatingComment      string                `json:"ratingComment,omitempty"`
	RatedAt            *string               `json:"ratedAt,omitempty"`
	Notes              []notePayload         `json:"notes"`
	NotesText          string                `json:"notesText,omitempty"`
	StatusHistory      []statusChangePayload `json:"statusHistory"`
	CreatedAt          string                `json:"createdAt"`
	UpdatedAt          string                `json:"updatedAt"`
	ConfirmedAt        *string               `json:"confirmedAt,omitempty"`
	CompletedAt        *string               `json:"completedAt,omitempty"`
	CancelledAt        *string               `json:"cancelledAt,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"orderNumber"`
	Status        string `json:"status"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	ItemCount     int    `json:"itemCount"`
	PaymentMethod string `json:"paymentMethod"`
	Total         string `json:"total"`
	CreatedAt     string `json:"createdAt"`
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

type orderStatusPayload struct {
	OrderNumber   string  `json:"orderNumber"`
	Status        string  `json:"status"`
	CustomerName  string  `json:"customerName"`
	Total         string  `json:"total"`
	Rating        *int    `json:"rating,omitempty"`
	RatingComment string  `json:"ratingComment,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
	ConfirmedAt   *string `json:"confirmedAt,omitempty"`
	CompletedAt   *string `json:"completedAt,omitempty"`
	CancelledAt   *string `json:"cancelledAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	next := order.Status.NextStatuses()
	allowed := make([]string, 0, len(next))
	for _, status := range next {
		allowed = append(allowed, string(status))
	}

	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		options := make([]optionPayload, 0, len(item.Options))
		for _, opt := range item.Options {
			options = append(options, optionPayload{Name: opt.Name, Price: formatMoney(opt.Price)})
		}
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Flavor:    item.Flavor,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: formatMoney(item.UnitPrice),
			Options:   options,
			Total:     formatMoney(item.Total),
		})
	}

	notes := make([]notePayload, 0, len(order.Notes))
	for _, note := range order.Notes {
		notes = append(notes, notePayload{
			ID:        note.ID,
			Text:      note.Text,
			Author:    note.Author,
			CreatedAt: formatTime(note.CreatedAt),
		})
	}

	history := make([]statusChangePayload, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangePayload{
			From:  string(change.From),
			To:    string(change.To),
			Actor: change.Actor,
			At:    formatTime(change.At),
		})
	}

	payload := orderPayload{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		Status:             string(order.Status),
		AllowedTransitions: allowed,
		Customer: customerPayload{
			Name:    order.Customer.Name,
			Phone:   order.Customer.Phone,
			Address: order.Customer.Address,
		},
		Items:         items,
		PaymentMethod: string(order.PaymentMethod),
		Subtotal:      formatMoney(order.Subtotal),
		DeliveryFee:   formatMoney(order.DeliveryFee),
		Total:         formatMoney(order.Total),
		Rating:        order.Rating,
		RatingComment: order.RatingComment,
		RatedAt:       formatTimePtr(order.RatedAt),
		Notes:         notes,
		NotesText:     order.NotesText(),
		StatusHistory: history,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		ConfirmedAt:   formatTimePtr(order.ConfirmedAt),
		CompletedAt:   formatTimePtr(order.CompletedAt),
		CancelledAt:   formatTimePtr(order.CancelledAt),
	}
	if order.ChangeFor != nil {
		change := formatMoney(*order.ChangeFor)
		payload.ChangeFor = &change
	}
	return payload
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		CustomerName:  order.Customer.Name,
		CustomerPhone: order.Customer.Phone,
		ItemCount:     count,
		PaymentMethod: string(order.PaymentMethod),
		Total:         formatMoney(order.Total),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderStatusPayload(view services.OrderStatusView) orderStatusPayload {
	return orderStatusPayload{
		OrderNumber:   view.OrderNumber,
		Status:        string(view.Status),
		CustomerName:  view.CustomerName,
		Total:         formatMoney(view.Total),
		Rating:        view.Rating,
		RatingComment: view.RatingComment,
		CreatedAt:     formatTime(view.CreatedAt),
		UpdatedAt:     formatTime(view.UpdatedAt),
		ConfirmedAt:   formatTimePtr(view.ConfirmedAt),
		CompletedAt:   formatTimePtr(view.CompletedAt),
		CancelledAt:   formatTimePtr(view.CancelledAt),
	}
}

type amountBucketPayload struct {
	Count int    `json:"count"`
	Total string `json:"total"`
}

type dailySalesPayload struct {
	Date   string `json:"date"`
	Orders int    `json:"orders"`
	Total  string `json:"total"`
}

type rankingPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Revenue  string `json:"revenue"`
}

type customerRankingPayload struct {
	Phone         string `json:"phone"`
	Name          string `json:"name"`
	Orders        int    `json:"orders"`
	Spent         string `json:"spent"`
	AverageTicket string `json:"averageTicket"`
}

type customerBucketPayload struct {
	Bucket    string `json:"bucket"`
	Customers int    `json:"customers"`
}

type statisticsPayload struct {
	Period               string                         `json:"period"`
	Start                string                         `json:"start"`
	End                  string                         `json:"end"`
	TotalOrders          int                            `json:"totalOrders"`
	TotalSales           string                         `json:"totalSales"`
	AverageTicket        string                         `json:"averageTicket"`
	MinTicket            string                         `json:"minTicket"`
	MaxTicket            string                         `json:"maxTicket"`
	ByStatus             map[string]amountBucketPayload `json:"byStatus"`
	ByPaymentMethod      map[string]amountBucketPayload `json:"byPaymentMethod"`
	DailySales           []dailySalesPayload            `json:"dailySales"`
	TopCategories        []rankingPayload               `json:"topCategories"`
	TopProducts          []rankingPayload               `json:"topProducts"`
	TopOptions           []rankingPayload               `json:"topOptions"`
	TopCustomers         []customerRankingPayload       `json:"topCustomers"`
	CustomerDistribution []customerBucketPayload        `json:"customerDistribution"`
	GeneratedAt          string                         `json:"generatedAt"`
}

func buildStatisticsPayload(stats services.OrderStatistics) statisticsPayload {
	payload := statisticsPayload{
		Period:               string(stats.Window.Period),
		Start:                stats.Window.Start.Format(statisticsDateLayout),
		End:                  stats.Window.End.Format(statisticsDateLayout),
		TotalOrders:          stats.TotalOrders,
		TotalSales:           formatMoney(stats.TotalSales),
		AverageTicket:        formatMoney(stats.AverageTicket),
		MinTicket:            formatMoney(stats.MinTicket),
		MaxTicket:            formatMoney(stats.MaxTicket),
		ByStatus:             make(map[string]amountBucketPayload, len(stats.ByStatus)),
		ByPaymentMethod:      make(map[string]amountBucketPayload, len(stats.ByPaymentMethod)),
		DailySales:           make([]dailySalesPayload, 0, len(stats.DailySales)),
		TopCategories:        buildRankings(stats.TopCategories),
		TopProducts:          buildRankings(stats.TopProducts),
		TopOptions:           buildRankings(stats.TopOptions),
		TopCustomers:         make([]customerRankingPayload, 0, len(stats.TopCustomers)),
		CustomerDistribution: make([]customerBucketPayload, 0, len(stats.CustomerDistribution)),
		GeneratedAt:          formatTime(stats.GeneratedAt),
	}
	for status, bucket := range stats.ByStatus {
		payload.ByStatus[string(status)] = amountBucketPayload{Count: bucket.Count, Total: formatMoney(bucket.Total)}
	}
	for method, bucket := range stats.ByPaymentMethod {
		payload.ByPaymentMethod[string(method)] = amountBucketPayload{Count: bucket.Count, Total: formatMoney(bucket.Total)}
	}
	for _, day := range stats.DailySales {
		payload.DailySales = append(payload.DailySales, dailySalesPayload{Date: day.Date, Orders: day.Orders, Total: formatMoney(day.Total)})
	}
	for _, customer := range stats.TopCustomers {
		payload.TopCustomers = append(payload.TopCustomers, customerRankingPayload{
			Phone:         customer.Phone,
			Name:          customer.Name,
			Orders:        customer.Orders,
			Spent:         formatMoney(customer.Spent),
			AverageTicket: formatMoney(customer.AverageTicket),
		})
	}
	for _, bucket := range stats.CustomerDistribution {
		payload.CustomerDistribution = append(payload.CustomerDistribution, customerBucketPayload{Bucket: bucket.Bucket, Customers: bucket.Customers})
	}
	return payload
}

func buildRankings(entries []domain.SalesRanking) []rankingPayload {
	out := make([]rankingPayload, 0, len(entries))
	for _, entry := range entries {
		out = append(out, rankingPayload{
			ID:       entry.ID,
			Name:     entry.Name,
			Quantity: entry.Quantity,
			Revenue:  formatMoney(entry.Revenue),
		})
	}
	return out
}

// formatMoney renders amounts with exactly two decimal places.
func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	value := formatTime(*t)
	return &value
}
