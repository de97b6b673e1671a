package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/internal/backend"
	"github.com/comunihub/marketplace-client/internal/model"
	"github.com/comunihub/marketplace-client/pkg/debounce"
	"github.com/comunihub/marketplace-client/pkg/logger"
	"github.com/comunihub/marketplace-client/pkg/metrics"
)

// Search runs debounced, filtered, paginated listing searches: filter
// changes settle through the debouncer before hitting the backend, so
// keystrokes do not each cost a round trip.
type Search struct {
	backend   Backend
	pageSize  int
	debouncer *debounce.Debouncer[model.ServiceFilter]
	logger    *logger.Logger
}

// NewSearch creates a search with the given settle delay and page size.
func NewSearch(b Backend, delay time.Duration, pageSize int, log *logger.Logger) *Search {
	return &Search{
		backend:   b,
		pageSize:  pageSize,
		debouncer: debounce.New[model.ServiceFilter](delay),
		logger:    log,
	}
}

// SetFilter pushes a filter change into the debouncer.
func (s *Search) SetFilter(filter model.ServiceFilter) {
	s.debouncer.Set(filter)
}

// Run executes a query for every settled filter until ctx is canceled,
// reporting each page (or error) through onPage. It blocks; run it on its
// own goroutine.
func (s *Search) Run(ctx context.Context, onPage func(model.ServicePage, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case filter := <-s.debouncer.C():
			onPage(s.Query(ctx, filter))
		}
	}
}

// Stop cancels any pending debounced query.
func (s *Search) Stop() {
	s.debouncer.Stop()
}

// Query executes one search immediately, bypassing the debouncer. The page
// size is fixed; fetching one extra row decides HasMore without a count
// round trip.
func (s *Search) Query(ctx context.Context, filter model.ServiceFilter) (model.ServicePage, error) {
	q := backend.Query{
		Order:  &backend.Order{Column: "created_at"},
		Limit:  s.pageSize + 1,
		Offset: filter.Offset,
	}
	if filter.Query != "" {
		q.Filters = append(q.Filters, backend.Ilike("title", filter.Query))
	}
	if filter.CategoryID != 0 {
		q.Filters = append(q.Filters, backend.Eq("category_id", strconv.FormatInt(filter.CategoryID, 10)))
	}
	if filter.City != "" {
		q.Filters = append(q.Filters, backend.Eq("city", filter.City))
	}

	var services []model.Service
	if err := s.backend.Select(ctx, "services", q, &services); err != nil {
		return model.ServicePage{}, fmt.Errorf("search failed: %w", err)
	}
	metrics.SearchesTotal.Inc()
	s.logger.Debug("search executed",
		zap.String("query", filter.Query),
		zap.Int64("category_id", filter.CategoryID),
		zap.Int("results", len(services)),
	)

	page := model.ServicePage{Services: services}
	if len(services) > s.pageSize {
		page.Services = services[:s.pageSize]
		page.HasMore = true
	}
	return page, nil
}
