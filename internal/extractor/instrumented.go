package extractor

import (
	"context"

	"github.com/italolelis/mediagrab/internal/media"
	"github.com/italolelis/mediagrab/internal/platform"
	"github.com/italolelis/mediagrab/internal/telemetry"
)

// Instrumented wraps an Extractor with telemetry.
type Instrumented struct {
	next      Extractor
	telemetry *telemetry.Telemetry
}

var _ Extractor = (*Instrumented)(nil)

// NewInstrumented creates a new instrumented extractor.
func NewInstrumented(next Extractor, tel *telemetry.Telemetry) *Instrumented {
	return &Instrumented{next: next, telemetry: tel}
}

// Download runs the wrapped Download with telemetry.
func (i *Instrumented) Download(ctx context.Context, req media.DownloadRequest, dir string) (*media.Info, error) {
	var result *media.Info

	err := i.telemetry.InstrumentExtraction(ctx, "download", platformLabel(req.URL), func(ctx context.Context) error {
		var err error

		result, err = i.next.Download(ctx, req, dir)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Info runs the wrapped Info with telemetry.
func (i *Instrumented) Info(ctx context.Context, url string) (*media.Info, error) {
	var result *media.Info

	err := i.telemetry.InstrumentExtraction(ctx, "info", platformLabel(url), func(ctx context.Context) error {
		var err error

		result, err = i.next.Info(ctx, url)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func platformLabel(rawURL string) string {
	if domain, ok := platform.Match(rawURL); ok {
		return domain
	}

	return "other"
}
