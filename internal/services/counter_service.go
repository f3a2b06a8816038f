package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/mathauscm/api-mybot/internal/repositories"
)

const (
	orderNumberPrefix     = "ORD"
	orderCounterPrefix    = "orders-"
	orderNumberDateLayout = "20060102"
	defaultBusinessZone   = "America/Sao_Paulo"
)

// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
var ErrCounterInvalidInput = errors.New("counter: invalid input")

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
	// Location is the business time zone used to pick the order day. Defaults to America/Sao_Paulo.
	Location *time.Location
}

type counterService struct {
	repo     repositories.CounterRepository
	clock    func() time.Time
	location *time.Location
}

// NewCounterService constructs a service that allocates order numbers from per-day counters.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loc, err := businessLocation(deps.Location)
	if err != nil {
		return nil, fmt.Errorf("counter service: %w", err)
	}

	return &counterService{
		repo:     deps.Repository,
		clock:    clock,
		location: loc,
	}, nil
}

func (s *counterService) NextOrderNumber(ctx context.Context, tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("%w: tenant id is required", ErrCounterInvalidInput)
	}

	day := s.clock().In(s.location).Format(orderNumberDateLayout)
	seq, err := s.repo.Next(ctx, tenantID, orderCounterPrefix+day)
	if err != nil {
		return "", err
	}
	return formatOrderNumber(day, seq), nil
}

// formatOrderNumber pads the sequence to three digits. Larger values keep their natural width.
func formatOrderNumber(day string, seq int64) string {
	return fmt.Sprintf("%s-%s-%03d", orderNumberPrefix, day, seq)
}

func businessLocation(loc *time.Location) (*time.Location, error) {
	if loc != nil {
		return loc, nil
	}
	return time.LoadLocation(defaultBusinessZone)
}
