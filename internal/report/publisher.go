package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/andresuchdata/merchops/internal/cache"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultPricingRows caps recommendations_pricing.csv
const DefaultPricingRows = 500

// Sink receives every published result, e.g. a database store.
type Sink interface {
	SaveResult(ctx context.Context, res *pipeline.Result) error
}

type artifact struct {
	name  string
	write func(io.Writer) error
}

// Publisher writes a run's artifacts to a local directory and mirrors them to
// object storage and sinks. The report cache is invalidated after a publish.
type Publisher struct {
	dir         string
	pricingRows int
	storage     storage.ObjectStorage
	cache       cache.ReportCache
	sinks       []Sink
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithStorage uploads artifacts to s under reports/ and runs/<run_id>/
func WithStorage(s storage.ObjectStorage) PublisherOption {
	return func(p *Publisher) { p.storage = s }
}

// WithCache invalidates c after each publish
func WithCache(c cache.ReportCache) PublisherOption {
	return func(p *Publisher) { p.cache = c }
}

// WithSink adds a result sink
func WithSink(s Sink) PublisherOption {
	return func(p *Publisher) { p.sinks = append(p.sinks, s) }
}

// WithPricingRows overrides DefaultPricingRows; n <= 0 writes every row
func WithPricingRows(n int) PublisherOption {
	return func(p *Publisher) { p.pricingRows = n }
}

func NewPublisher(dir string, opts ...PublisherOption) *Publisher {
	p := &Publisher{dir: dir, pricingRows: DefaultPricingRows, cache: cache.NewNoopReportCache()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dir returns the local reports directory
func (p *Publisher) Dir() string { return p.dir }

// Publish writes every artifact of res. Local files are replaced atomically.
func (p *Publisher) Publish(ctx context.Context, res *pipeline.Result) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create reports dir: %w", err)
	}

	pricingRecs := res.Pricing
	if p.pricingRows > 0 && len(pricingRecs) > p.pricingRows {
		pricingRecs = pricingRecs[:p.pricingRows]
	}

	artifacts := []artifact{
		{SummaryFile, func(w io.Writer) error { return WriteJSON(w, res.Summary) }},
		{InventoryFile, func(w io.Writer) error { return WriteInventory(w, res.Inventory) }},
		{PricingFile, func(w io.Writer) error { return WritePricing(w, pricingRecs) }},
		{AssortmentFile, func(w io.Writer) error { return WriteAssortment(w, res.Assortment) }},
		{ElasticityFile, func(w io.Writer) error { return WriteElasticities(w, res.Elasticities) }},
	}
	if len(res.Forecast) > 0 {
		artifacts = append(artifacts, artifact{FutureForecastFile, func(w io.Writer) error { return WriteForecast(w, res.Forecast) }})
	}

	for _, a := range artifacts {
		var buf bytes.Buffer
		if err := a.write(&buf); err != nil {
			return fmt.Errorf("failed to render %s: %w", a.name, err)
		}
		if err := p.PublishFile(ctx, res.Summary.RunID, a.name, buf.Bytes()); err != nil {
			return err
		}
	}

	for _, s := range p.sinks {
		if err := s.SaveResult(ctx, res); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
	}

	p.Invalidate(ctx)
	log.Info().Str("run_id", res.Summary.RunID).Str("dir", p.dir).Int("artifacts", len(artifacts)).Msg("reports published")
	return nil
}

// PublishFile writes one artifact locally and mirrors it to object storage.
func (p *Publisher) PublishFile(ctx context.Context, runID, name string, data []byte) error {
	if err := writeFileAtomic(filepath.Join(p.dir, name), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if p.storage == nil {
		return nil
	}
	keys := []string{path.Join("reports", name)}
	if runID != "" {
		keys = append(keys, path.Join("runs", runID, name))
	}
	for _, key := range keys {
		if err := p.storage.UploadObject(ctx, key, data); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops cached report queries. Failures are logged; readers fall back to disk.
func (p *Publisher) Invalidate(ctx context.Context) {
	if err := p.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate report cache")
	}
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), name)
}
