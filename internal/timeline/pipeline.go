package timeline

import (
	"context"
	"fmt"
	"time"

	appLog "profiled/internal/log"
	"profiled/internal/model"
	"profiled/internal/sheet"
)

// Fetcher downloads the exported workbook.
type Fetcher interface {
	Fetch(ctx context.Context, exportURL string) (sheet.Payload, error)
}

// Pipeline runs resolve → fetch → extract → normalize → sort once per call.
type Pipeline struct {
	SheetURL string
	Fetcher  Fetcher
	Options  NormalizeOptions
	Location *time.Location
}

// Result is the outcome of a successful run.
type Result struct {
	Events    []model.Event
	Rows      int // data rows read, including dropped ones
	FromCache bool
}

// Source returns the redacted export URL, safe to show and log.
func (p *Pipeline) Source() string {
	return sheet.RedactURL(sheet.ExportURL(p.SheetURL))
}

// Run executes the pipeline. Any fetch or parse error aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	exportURL := sheet.ExportURL(p.SheetURL)
	lg := appLog.With("url", sheet.RedactURL(exportURL))

	payload, err := p.Fetcher.Fetch(ctx, exportURL)
	if err != nil {
		return Result{}, err
	}

	rows, err := sheet.ReadBytes(payload.Body)
	if err != nil {
		lg.Error("workbook parse failed", err)
		return Result{}, fmt.Errorf("parse workbook: %w", err)
	}

	events := NormalizeRows(rows, p.Options)
	if dropped := len(rows) - len(events); dropped > 0 {
		lg.Debug("rows without date dropped", "dropped", dropped)
	}
	Sort(events, p.Location)

	lg.Info("timeline built", "rows", len(rows), "events", len(events), "from_cache", payload.FromCache)
	return Result{Events: events, Rows: len(rows), FromCache: payload.FromCache}, nil
}
