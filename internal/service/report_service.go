package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/andresuchdata/merchops/internal/cache"
	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/andresuchdata/merchops/internal/repository"
	"github.com/rs/zerolog/log"
)

// Kinds served from Postgres instead of a CSV artifact
const (
	KindTopItems = "sql_top_items"
	KindPricing  = "sql_pricing"
)

// ErrInvalidKind is returned for an unknown recommendation kind
var ErrInvalidKind = errors.New("invalid recommendation kind")

// ErrDatabaseUnavailable is returned for the sql_* kinds when no database is configured
var ErrDatabaseUnavailable = errors.New("recommendation kind requires a database")

// ReportService answers read queries over published artifacts, caching rendered payloads.
type ReportService struct {
	store   *report.Store
	frames  repository.FrameRepository
	results repository.ResultRepository
	cache   cache.ReportCache
}

// ReportOption configures optional ReportService backends
type ReportOption func(*ReportService)

// WithFrames enables sql_top_items
func WithFrames(frames repository.FrameRepository) ReportOption {
	return func(s *ReportService) { s.frames = frames }
}

// WithResults enables sql_pricing
func WithResults(results repository.ResultRepository) ReportOption {
	return func(s *ReportService) { s.results = results }
}

// WithReportCache caches rendered payloads
func WithReportCache(c cache.ReportCache) ReportOption {
	return func(s *ReportService) {
		if c != nil {
			s.cache = c
		}
	}
}

func NewReportService(store *report.Store, opts ...ReportOption) *ReportService {
	s := &ReportService{store: store, cache: cache.NewNoopReportCache()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary returns summary_metrics.json as published
func (s *ReportService) Summary(ctx context.Context) (json.RawMessage, error) {
	data, err := s.store.Summary()
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("summary_metrics.json is not valid JSON")
	}
	return data, nil
}

// Recommendations returns rows of one recommendation artifact as JSON records
func (s *ReportService) Recommendations(ctx context.Context, kind, storeID string, limit int) (json.RawMessage, error) {
	q := cache.ReportQuery{Kind: kind, StoreID: storeID, Limit: limit}
	return s.cached(ctx, q, func() (interface{}, error) {
		switch kind {
		case KindTopItems:
			if s.frames == nil {
				return nil, fmt.Errorf("%w: %s", ErrDatabaseUnavailable, kind)
			}
			items, err := s.frames.TopItems(ctx, storeID, limit)
			if err != nil {
				return nil, err
			}
			if items == nil {
				items = []repository.TopItem{}
			}
			return items, nil
		case KindPricing:
			if s.results == nil {
				return nil, fmt.Errorf("%w: %s", ErrDatabaseUnavailable, kind)
			}
			recs, err := s.results.LatestPricing(ctx, storeID, limit)
			if err != nil {
				return nil, err
			}
			if recs == nil {
				recs = []domain.PricingRecommendation{}
			}
			return recs, nil
		}

		name, ok := report.RecommendationFile(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
		}
		t, err := s.store.Table(name, report.Filter{StoreID: storeID, Limit: limit})
		if err != nil {
			return nil, err
		}
		return t.Records(), nil
	})
}

// FutureForecast returns projected rows filtered by store and item
func (s *ReportService) FutureForecast(ctx context.Context, storeID, itemID string, limit int) (json.RawMessage, error) {
	q := cache.ReportQuery{Kind: "future_forecast", StoreID: storeID, ItemID: itemID, Limit: limit}
	return s.cached(ctx, q, func() (interface{}, error) {
		t, err := s.store.Table(report.FutureForecastFile, report.Filter{StoreID: storeID, ItemID: itemID, Limit: limit})
		if err != nil {
			return nil, err
		}
		return t.Records(), nil
	})
}

// DownloadPath resolves an allow-listed artifact on disk
func (s *ReportService) DownloadPath(name string) (string, error) {
	return s.store.Path(name)
}

func (s *ReportService) cached(ctx context.Context, q cache.ReportQuery, load func() (interface{}, error)) (json.RawMessage, error) {
	if payload, ok, err := s.cache.Get(ctx, q); err == nil && ok {
		return payload, nil
	} else if err != nil {
		log.Warn().Err(err).Str("kind", q.Kind).Msg("report cache get failed")
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", q.Kind, err)
	}

	if err := s.cache.Set(ctx, q, payload); err != nil {
		log.Warn().Err(err).Str("kind", q.Kind).Msg("report cache set failed")
	}
	return payload, nil
}
