package analysis

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-pathology/internal/history/entity"
)

type OutcomeKind int

const (
	Success OutcomeKind = iota
	SchemaViolation
	TransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case SchemaViolation:
		return "schema_violation"
	default:
		return "transport_error"
	}
}

// Outcome is the tagged answer of an inference call. Result is only set on
// Success; Err carries the detail otherwise.
type Outcome struct {
	Kind   OutcomeKind
	Result entity.AnalysisResult
	Err    error
}

func Succeeded(r entity.AnalysisResult) Outcome { return Outcome{Kind: Success, Result: r} }
func Violation(err error) Outcome { return Outcome{Kind: SchemaViolation, Err: err} }
func Transport(err error) Outcome { return Outcome{Kind: TransportError, Err: err} }

// Inferer turns a slide image into a structured result.
type Inferer interface {
	Infer(ctx context.Context, image []byte, mime string) Outcome
}
