// Package analysis sends slide images to the inference model and records
// the structured reports it returns.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	account "github.com/ovaphlow/pitchfork/service-pathology/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-pathology/internal/slide"
	"github.com/ovaphlow/pitchfork/service-pathology/pkg/utilities"
)

var (
	// ErrAnalysisFailed covers every inference failure; the cause is logged
	// but not returned.
	ErrAnalysisFailed   = errors.New("analysis failed")
	ErrUnsupportedImage = errors.New("unsupported image")
)

// MaxImageBytes bounds a single upload.
const MaxImageBytes = 20 << 20

var acceptedMIME = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Appender persists a freshly created record.
type Appender interface {
	Append(ctx context.Context, email string, rec entity.Record) ([]entity.Record, error)
}

type Orchestrator struct {
	inferer Inferer
	slides  slide.Store
	history Appender
	clock   clockwork.Clock
	logger  *zap.SugaredLogger
}

func NewOrchestrator(inferer Inferer, slides slide.Store, history Appender, clock clockwork.Clock, logger *zap.SugaredLogger) *Orchestrator {
	if slides == nil {
		slides = slide.Inline{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{inferer: inferer, slides: slides, history: history, clock: clock, logger: logger}
}

// Analyze runs inference on image and appends the resulting record to the
// session account's history. Nothing is stored unless inference succeeds.
func (o *Orchestrator) Analyze(ctx context.Context, sess account.Session, image []byte, mime string) (entity.Record, error) {
	if !acceptedMIME[mime] {
		metrics.Analyses.WithLabelValues("rejected").Inc()
		return entity.Record{}, fmt.Errorf("%w: %q", ErrUnsupportedImage, mime)
	}
	if len(image) == 0 || len(image) > MaxImageBytes {
		metrics.Analyses.WithLabelValues("rejected").Inc()
		return entity.Record{}, fmt.Errorf("%w: size %d", ErrUnsupportedImage, len(image))
	}

	out := o.inferer.Infer(ctx, image, mime)
	if out.Kind != Success {
		metrics.Analyses.WithLabelValues(out.Kind.String()).Inc()
		o.logger.Warnw("inference failed", "email", sess.Email, "outcome", out.Kind.String(), "err", out.Err)
		return entity.Record{}, ErrAnalysisFailed
	}

	ref, err := o.slides.Put(ctx, sess.Email, mime, image)
	if err != nil {
		metrics.Analyses.WithLabelValues("store_error").Inc()
		return entity.Record{}, fmt.Errorf("store slide: %w", err)
	}

	rec := entity.Record{
		ID:       utilities.NewKSUID(),
		Date:     entity.NewTimestamp(o.clock.Now()),
		ImageURL: ref,
		Result:   out.Result.Clone(),
	}
	if _, err := o.history.Append(ctx, sess.Email, rec); err != nil {
		metrics.Analyses.WithLabelValues("store_error").Inc()
		// the request ctx may be what failed the append
		if derr := o.slides.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			o.logger.Warnw("orphaned slide", "email", sess.Email, "key", ref, "err", derr)
		}
		return entity.Record{}, err
	}
	metrics.Analyses.WithLabelValues(Success.String()).Inc()
	o.logger.Infow("analysis recorded", "email", sess.Email, "id", rec.ID, "slide_driver", o.slides.Driver())
	return rec, nil
}
