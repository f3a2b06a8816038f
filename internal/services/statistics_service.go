package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mathauscm/api-mybot/internal/domain"
	"github.com/mathauscm/api-mybot/internal/repositories"
)

const (
	statisticsDateLayout = "2006-01-02"
	maxCustomWindowDays  = 366
	defaultTopN          = 10

	customProductID    = "custom"
	customProductLabel = "custom product"
	noCategoryID       = "uncategorized"
	noCategoryLabel    = "no category"
)

var customerBuckets = []struct {
	label    string
	min, max int
}{
	{"1", 1, 1},
	{"2-3", 2, 3},
	{"4-5", 4, 5},
	{"6+", 6, 0},
}

// StatisticsServiceDeps bundles collaborators for the statistics service.
type StatisticsServiceDeps struct {
	Orders       repositories.OrderRepository
	Catalog      repositories.CatalogRepository
	Clock        func() time.Time
	Location     *time.Location
	StoreTimeout time.Duration
	// TopN caps every ranking. Defaults to 10.
	TopN   int
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type statisticsService struct {
	orders       repositories.OrderRepository
	catalog      repositories.CatalogRepository
	clock        func() time.Time
	location     *time.Location
	storeTimeout time.Duration
	topN         int
	logger       func(context.Context, string, map[string]any)
}

// NewStatisticsService constructs the read-only order report aggregator.
func NewStatisticsService(deps StatisticsServiceDeps) (StatisticsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("statistics service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("statistics service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loc, err := businessLocation(deps.Location)
	if err != nil {
		return nil, errors.New("statistics service: " + err.Error())
	}
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	topN := deps.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &statisticsService{
		orders:       deps.Orders,
		catalog:      deps.Catalog,
		clock:        clock,
		location:     loc,
		storeTimeout: timeout,
		topN:         topN,
		logger:       logger,
	}, nil
}

func (s *statisticsService) OrderStatistics(ctx context.Context, query StatisticsQuery) (OrderStatistics, error) {
	tenantID := strings.TrimSpace(query.TenantID)
	if tenantID == "" {
		return OrderStatistics{}, newFieldError("tenantId", "is required")
	}
	window, err := s.resolveWindow(query)
	if err != nil {
		return OrderStatistics{}, err
	}

	var (
		orders     []domain.Order
		products   []domain.Product
		categories []domain.Category
	)
	loadCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(loadCtx)
	g.Go(func() error {
		var err error
		orders, err = s.orders.ListCreatedBetween(gctx, tenantID, window.Start, window.End.Add(time.Nanosecond))
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.catalog.ListProducts(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = s.catalog.ListCategories(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return OrderStatistics{}, mapRepositoryError(err)
	}

	stats := aggregateOrders(orders, products, categories, window, s.location, s.topN)
	stats.TenantID = tenantID
	stats.GeneratedAt = s.clock().UTC()

	s.logger(ctx, "order.statistics.generated", map[string]any{
		"tenantId": tenantID,
		"period":   string(window.Period),
		"orders":   stats.TotalOrders,
	})
	return stats, nil
}

// resolveWindow turns a named or custom period into whole days in the business time zone.
func (s *statisticsService) resolveWindow(query StatisticsQuery) (domain.StatisticsWindow, error) {
	period := domain.StatisticsPeriod(strings.ToLower(strings.TrimSpace(query.Period)))
	if period == "" {
		period = domain.StatisticsPeriodToday
	}
	today := startOfDay(s.clock().In(s.location))

	var first, last time.Time
	switch period {
	case domain.StatisticsPeriodToday:
		first, last = today, today
	case domain.StatisticsPeriodYesterday:
		first = today.AddDate(0, 0, -1)
		last = first
	case domain.StatisticsPeriodWeek:
		first, last = today.AddDate(0, 0, -6), today
	case domain.StatisticsPeriodMonth:
		first, last = today.AddDate(0, 0, -29), today
	case domain.StatisticsPeriodCustom:
		verr := &OrderValidationError{}
		start, err := time.ParseInLocation(statisticsDateLayout, strings.TrimSpace(query.Start), s.location)
		if err != nil {
			verr.add("start", "must be a date in YYYY-MM-DD format")
		}
		end, err := time.ParseInLocation(statisticsDateLayout, strings.TrimSpace(query.End), s.location)
		if err != nil {
			verr.add("end", "must be a date in YYYY-MM-DD format")
		}
		if !verr.empty() {
			return domain.StatisticsWindow{}, verr
		}
		if end.Before(start) {
			return domain.StatisticsWindow{}, newFieldError("end", "must not be before start")
		}
		if start.AddDate(0, 0, maxCustomWindowDays-1).Before(end) {
			return domain.StatisticsWindow{}, newFieldError("end", "window must span at most %d days", maxCustomWindowDays)
		}
		first, last = start, end
	default:
		return domain.StatisticsWindow{}, newFieldError("period", "must be one of today, yesterday, week, month, custom")
	}

	return domain.StatisticsWindow{
		Period: period,
		Start:  first,
		End:    last.AddDate(0, 0, 1).Add(-time.Nanosecond),
	}, nil
}

type rankingAccumulator struct {
	order   []string
	entries map[string]*domain.SalesRanking
}

func newRankingAccumulator() *rankingAccumulator {
	return &rankingAccumulator{entries: make(map[string]*domain.SalesRanking)}
}

func (r *rankingAccumulator) add(id, name string, quantity int, revenue decimal.Decimal) {
	entry, ok := r.entries[id]
	if !ok {
		entry = &domain.SalesRanking{ID: id, Name: name, Revenue: decimal.Zero}
		r.entries[id] = entry
		r.order = append(r.order, id)
	}
	entry.Quantity += quantity
	entry.Revenue = entry.Revenue.Add(revenue)
}

func (r *rankingAccumulator) top(n int) []domain.SalesRanking {
	out := make([]domain.SalesRanking, 0, len(r.entries))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// aggregateOrders is a pure reduction over the loaded orders. Every status, payment method and day of
// the window is present in the result even when nothing matched.
func aggregateOrders(orders []domain.Order, products []domain.Product, categories []domain.Category, window domain.StatisticsWindow, loc *time.Location, topN int) OrderStatistics {
	stats := OrderStatistics{
		Window:          window,
		TotalSales:      decimal.Zero,
		AverageTicket:   decimal.Zero,
		MinTicket:       decimal.Zero,
		MaxTicket:       decimal.Zero,
		ByStatus:        make(map[domain.OrderStatus]domain.AmountBucket, len(domain.OrderStatuses)),
		ByPaymentMethod: make(map[domain.PaymentMethod]domain.AmountBucket, len(domain.PaymentMethods)),
	}
	for _, status := range domain.OrderStatuses {
		stats.ByStatus[status] = domain.AmountBucket{Total: decimal.Zero}
	}
	for _, method := range domain.PaymentMethods {
		stats.ByPaymentMethod[method] = domain.AmountBucket{Total: decimal.Zero}
	}

	dayIndex := make(map[string]int)
	for day := window.Start; !day.After(window.End); day = day.AddDate(0, 0, 1) {
		key := day.Format(statisticsDateLayout)
		dayIndex[key] = len(stats.DailySales)
		stats.DailySales = append(stats.DailySales, domain.DailySales{Date: key, Total: decimal.Zero})
	}

	productsByID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productsByID[p.ID] = p
	}
	categoriesByID := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		categoriesByID[c.ID] = c
	}

	productRanking := newRankingAccumulator()
	categoryRanking := newRankingAccumulator()
	optionRanking := newRankingAccumulator()
	customers := make(map[string]*domain.CustomerRanking)
	customerOrder := make([]string, 0)
	customerLatest := make(map[string]time.Time)

	for i, order := range orders {
		total := order.Total
		stats.TotalOrders++
		stats.TotalSales = stats.TotalSales.Add(total)
		if i == 0 || total.LessThan(stats.MinTicket) {
			stats.MinTicket = total
		}
		if i == 0 || total.GreaterThan(stats.MaxTicket) {
			stats.MaxTicket = total
		}

		bucket := stats.ByStatus[order.Status]
		bucket.Count++
		bucket.Total = bucket.Total.Add(total)
		stats.ByStatus[order.Status] = bucket

		payment := stats.ByPaymentMethod[order.PaymentMethod]
		payment.Count++
		payment.Total = payment.Total.Add(total)
		stats.ByPaymentMethod[order.PaymentMethod] = payment

		if idx, ok := dayIndex[order.CreatedAt.In(loc).Format(statisticsDateLayout)]; ok {
			stats.DailySales[idx].Orders++
			stats.DailySales[idx].Total = stats.DailySales[idx].Total.Add(total)
		}

		for _, item := range order.Items {
			product, known := productsByID[item.ProductID]
			if item.ProductID != "" && known {
				productRanking.add(product.ID, product.Name, item.Quantity, item.Total)
				if category, ok := categoriesByID[product.CategoryID]; ok {
					categoryRanking.add(category.ID, category.Name, item.Quantity, item.Total)
				} else {
					categoryRanking.add(noCategoryID, noCategoryLabel, item.Quantity, item.Total)
				}
			} else {
				productRanking.add(customProductID, customProductLabel, item.Quantity, item.Total)
				categoryRanking.add(noCategoryID, noCategoryLabel, item.Quantity, item.Total)
			}
			for _, opt := range item.Options {
				name := strings.TrimSpace(opt.Name)
				optionRanking.add(foldCase(name), name, item.Quantity, opt.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			}
		}

		phone := order.Customer.Phone
		if phone == "" {
			continue
		}
		customer, ok := customers[phone]
		if !ok {
			customer = &domain.CustomerRanking{Phone: phone, Spent: decimal.Zero}
			customers[phone] = customer
			customerOrder = append(customerOrder, phone)
		}
		customer.Orders++
		customer.Spent = customer.Spent.Add(total)
		if latest, seen := customerLatest[phone]; !seen || order.CreatedAt.After(latest) {
			customer.Name = order.Customer.Name
			customerLatest[phone] = order.CreatedAt
		}
	}

	if stats.TotalOrders > 0 {
		stats.AverageTicket = stats.TotalSales.DivRound(decimal.NewFromInt(int64(stats.TotalOrders)), 2)
	}

	stats.TopProducts = productRanking.top(topN)
	stats.TopCategories = categoryRanking.top(topN)
	stats.TopOptions = optionRanking.top(topN)
	stats.TopCustomers, stats.CustomerDistribution = rankCustomers(customers, customerOrder, topN)
	return stats
}

func rankCustomers(customers map[string]*domain.CustomerRanking, order []string, topN int) ([]domain.CustomerRanking, []domain.CustomerBucket) {
	distribution := make([]domain.CustomerBucket, len(customerBuckets))
	for i, b := range customerBuckets {
		distribution[i] = domain.CustomerBucket{Bucket: b.label}
	}

	ranked := make([]domain.CustomerRanking, 0, len(customers))
	for _, phone := range order {
		c := customers[phone]
		c.AverageTicket = c.Spent.DivRound(decimal.NewFromInt(int64(c.Orders)), 2)
		ranked = append(ranked, *c)
		for i, b := range customerBuckets {
			if c.Orders >= b.min && (b.max == 0 || c.Orders <= b.max) {
				distribution[i].Customers++
				break
			}
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Orders != ranked[j].Orders {
			return ranked[i].Orders > ranked[j].Orders
		}
		if c := ranked[i].Spent.Cmp(ranked[j].Spent); c != 0 {
			return c > 0
		}
		return ranked[i].Phone < ranked[j].Phone
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked, distribution
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
