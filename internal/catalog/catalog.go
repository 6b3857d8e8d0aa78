// Package catalog implements point registration and filtered discovery on
// top of a store.Store.
package catalog

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/erazemk/ecoleta/internal/apperr"
	"github.com/erazemk/ecoleta/internal/metrics"
	"github.com/erazemk/ecoleta/internal/model"
	"github.com/erazemk/ecoleta/internal/store"
)

// ItemCache caches the item catalog. A miss returns ok == false.
type ItemCache interface {
	GetItems(ctx context.Context) (items []model.Item, ok bool, err error)
	SetItems(ctx context.Context, items []model.Item) error
}

// PointDetail is a point together with the items it accepts.
type PointDetail struct {
	Point model.Point
	Items []model.Item
}

// Service coordinates the store, the optional item cache and metrics.
type Service struct {
	store   store.Store
	cache   ItemCache
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithItemCache puts cache in front of item listing.
func WithItemCache(cache ItemCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics records service metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListItems returns every item ordered by id. Cache failures fall back to
// the store.
func (s *Service) ListItems(ctx context.Context) ([]model.Item, error) {
	if s.cache != nil {
		items, ok, err := s.cache.GetItems(ctx)
		switch {
		case err != nil:
			s.cacheResult("error")
			zap.L().Warn("item cache read failed", zap.Error(err))
		case ok:
			s.cacheResult("hit")
			return items, nil
		default:
			s.cacheResult("miss")
		}
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, storeFailure(err, "Could not list items.")
	}
	if items == nil {
		items = []model.Item{}
	}

	if s.cache != nil {
		if err := s.cache.SetItems(ctx, items); err != nil {
			zap.L().Warn("item cache write failed", zap.Error(err))
		}
	}
	return items, nil
}

// CreatePoint validates in and stores the point with its items atomically.
// Validation runs before anything is written.
func (s *Service) CreatePoint(ctx context.Context, in model.NewPoint) (*model.Point, error) {
	in = in.Normalize()

	if err := in.Validate(); err != nil {
		s.createFailed(err)
		return nil, err
	}

	p, err := s.store.CreatePoint(ctx, in)
	if err != nil {
		err = storeFailure(err, "Could not create point.")
		s.createFailed(err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.PointsCreated.Inc()
	}
	zap.L().Info("point created",
		zap.Int64("point_id", p.ID),
		zap.String("city", p.City),
		zap.String("uf", p.UF),
		zap.Int64s("items", p.Items),
	)
	return p, nil
}

// FindPoints returns the points in the filter's region that accept at least
// one of the requested items. Each point appears once.
func (s *Service) FindPoints(ctx context.Context, filter model.PointFilter) ([]model.Point, error) {
	filter.City = strings.TrimSpace(filter.City)
	filter.UF = strings.TrimSpace(filter.UF)
	filter.Items = model.UniqueIDs(filter.Items)

	points, err := s.store.FindPoints(ctx, filter)
	if err != nil {
		return nil, storeFailure(err, "Could not search points.")
	}
	if points == nil {
		points = []model.Point{}
	}

	if s.metrics != nil {
		s.metrics.DiscoveryResults.Observe(float64(len(points)))
	}
	return points, nil
}

// GetPoint returns a point and the items it accepts.
func (s *Service) GetPoint(ctx context.Context, id int64) (*PointDetail, error) {
	p, err := s.store.GetPoint(ctx, id)
	if err != nil {
		return nil, storeFailure(err, "Could not load point.")
	}
	if p == nil {
		return nil, apperr.New(apperr.CodeNotFound, "Point not found.")
	}

	items, err := s.store.GetItemsForPoint(ctx, id)
	if err != nil {
		return nil, storeFailure(err, "Could not load point items.")
	}
	if items == nil {
		items = []model.Item{}
	}

	return &PointDetail{Point: *p, Items: items}, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) cacheResult(result string) {
	if s.metrics != nil {
		s.metrics.ItemCacheRequests.WithLabelValues(result).Inc()
	}
}

func (s *Service) createFailed(err error) {
	if s.metrics != nil {
		s.metrics.PointCreateErrors.WithLabelValues(string(apperr.CodeOf(err))).Inc()
	}
}

// storeFailure classifies err as a store failure unless it already carries a code.
func storeFailure(err error, message string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Wrap(err, apperr.CodeStoreFailure, message)
}
