// Package fluxdiff ties the bundle codec, the diff reporter and a refinement
// backend together.
package fluxdiff

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/agentflux/fluxdiff/internal/backend"
	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/diffreport"
	"github.com/agentflux/fluxdiff/internal/observability"
	"github.com/agentflux/fluxdiff/internal/parser"
	"github.com/agentflux/fluxdiff/internal/render"
	"github.com/agentflux/fluxdiff/model"
)

// ErrInvalidRefinementType is returned by Process for an unknown refinement type.
var ErrInvalidRefinementType = errors.New("invalid refinementType provided")

// App orchestrates decoding, refinement and diffing.
type App struct {
	refiner    backend.Refiner
	extensions []string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// Option configures an App.
type Option func(*App)

// WithExtensions limits the markdown fallback to files with these extensions.
func WithExtensions(extensions []string) Option {
	return func(a *App) { a.extensions = parser.NormalizeExtensions(extensions) }
}

// WithMetrics records decode and diff metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) { a.logger = l }
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// BackendError wraps a failure of the refinement backend.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("agent execution error (%s): %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// New creates an App. A nil refiner echoes the input back.
func New(refiner backend.Refiner, opts ...Option) *App {
	if refiner == nil {
		refiner = backend.Echo{}
	}
	a := &App{refiner: refiner, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Request asks for one refinement of a codebase.
type Request struct {
	RefinementType string
	// Code is the aggregated original code. It is derived from
	// BrokenDownOriginal when empty.
	Code string
	// BrokenDownOriginal maps each original file to its body. It is decoded
	// from Code when empty.
	BrokenDownOriginal model.Bundle
	AllowedModels      []string
}

// Result is the outcome of a refinement.
type Result struct {
	// DiffReport holds the HTML rendering of each file's diff.
	DiffReport map[string]string
	// DiffLines holds the structured diff of each file.
	DiffLines           map[string]model.FileDiffReport
	RefinedGraphCode    string
	RefinedGraphDiagram string
	// BrokenDownRefined holds every refined file. Original files missing
	// from the refined text are present with an empty body.
	BrokenDownRefined model.Bundle
	Diagnostics       []codec.Diagnostic
	Summary           model.Summary
}

// Decode recovers the file mapping of a marked bundle.
func (a *App) Decode(text string) (model.Bundle, []codec.Diagnostic) {
	blocks, diags := codec.DecodeBlocks(text)
	bundle := make(model.Bundle, len(blocks))
	for _, block := range blocks {
		bundle[block.Filename] = block.Body
	}
	a.metrics.RecordDecode(len(bundle), diagnosticKinds(diags))
	return bundle, diags
}

// Encode packs a bundle into its canonical marked form.
func (a *App) Encode(bundle model.Bundle) string {
	return codec.Encode(bundle)
}

// Diff compares one file. An empty name keeps the default headers.
func (a *App) Diff(name, original, refined string) model.FileDiffReport {
	var opts []diffreport.Option
	if name != "" {
		opts = append(opts, diffreport.WithFilename(name))
	}
	report := diffreport.Compute(original, refined, opts...)
	a.metrics.RecordReport(report)
	return report
}

// Process validates the request, runs the backend and diffs its answer
// against the original files.
func (a *App) Process(ctx context.Context, req Request) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	refinementType := backend.RefinementType(req.RefinementType)
	if !refinementType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRefinementType, req.RefinementType)
	}

	original := req.BrokenDownOriginal
	code := req.Code
	switch {
	case len(original) == 0 && code != "":
		original, _ = a.Decode(code)
	case code == "" && len(original) > 0:
		code = codec.Encode(original)
	}

	a.logger.Info("refining code",
		zap.String("refinement_type", req.RefinementType),
		zap.String("backend", a.refiner.Name()),
		zap.Int("files", len(original)),
	)
	refined, err := a.refiner.Refine(ctx, backend.Request{
		Type:          refinementType,
		Code:          code,
		AllowedModels: req.AllowedModels,
	})
	if err != nil {
		a.metrics.RecordBackendError(a.refiner.Name())
		return nil, &BackendError{Provider: a.refiner.Name(), Err: err}
	}

	return a.Review(ctx, original, refined)
}

// Review decodes refined text and diffs it against the original files. When
// the text holds no filename markers, fenced markdown blocks with a path hint
// are used instead, and a single original file takes the whole text.
func (a *App) Review(ctx context.Context, original model.Bundle, refinedText string) (*Result, error) {
	refined, diags := a.decodeRefined(original, refinedText)

	complete := make(model.Bundle, len(refined)+len(original))
	for name, body := range refined {
		complete[name] = body
	}
	for name := range original {
		if _, ok := complete[name]; !ok {
			complete[name] = ""
		}
	}

	reports, err := diffreport.ComputeAll(ctx, original, complete)
	if err != nil {
		return nil, err
	}

	result := &Result{
		DiffReport:        make(map[string]string, len(reports)),
		DiffLines:         reports,
		RefinedGraphCode:  refinedText,
		BrokenDownRefined: complete,
		Diagnostics:       diags,
		Summary:           Summarize(original, refined, reports),
	}
	for name, report := range reports {
		result.DiffReport[name] = render.HTML(report)
		a.metrics.RecordReport(report)
	}
	a.logger.Debug("reviewed refinement",
		zap.Int("files", len(reports)),
		zap.Int("diagnostics", len(diags)),
	)
	return result, nil
}

func (a *App) decodeRefined(original model.Bundle, text string) (model.Bundle, []codec.Diagnostic) {
	if codec.HasMarkers(text) {
		return a.Decode(text)
	}

	fromMarkdown, err := parser.BundleFromMarkdown(text, a.extensions)
	if err != nil {
		a.logger.Warn("markdown fallback failed", zap.Error(err))
	}
	if len(fromMarkdown) > 0 {
		return fromMarkdown, nil
	}

	if len(original) == 1 && strings.TrimSpace(text) != "" {
		for name := range original {
			return model.Bundle{name: strings.TrimSpace(text)}, nil
		}
	}
	return model.Bundle{}, nil
}

// Summarize sorts the files of a refinement by outcome. refined is the
// decoded mapping before missing files were filled in.
func Summarize(original, refined model.Bundle, reports map[string]model.FileDiffReport) model.Summary {
	var summary model.Summary
	for _, name := range original.Names() {
		switch {
		case !contains(refined, name):
			summary.Missing = append(summary.Missing, name)
		case reports[name].Identical():
			summary.Unchanged = append(summary.Unchanged, name)
		default:
			summary.Changed = append(summary.Changed, name)
		}
	}
	for _, name := range refined.Names() {
		if !contains(original, name) {
			summary.Added = append(summary.Added, name)
		}
	}
	return summary
}

func contains(b model.Bundle, name string) bool {
	_, ok := b[name]
	return ok
}

func diagnosticKinds(diags []codec.Diagnostic) []string {
	kinds := make([]string, len(diags))
	for i, d := range diags {
		kinds[i] = string(d.Kind)
	}
	return kinds
}
