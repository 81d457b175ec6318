package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"stampd/contracts/credential"
	"stampd/internal/platform/metrics"
	"stampd/internal/providers/tracer"
	dErrors "stampd/pkg/domain-errors"
)

// maxErrorLength bounds the error text returned per type.
const maxErrorLength = 1000

// TypeResult is the outcome for one requested type. Exactly one of a valid
// Result or an Error/Code pair is meaningful; invalid-but-clean outcomes
// carry both a Result with Valid=false and the explanatory Error.
type TypeResult struct {
	Type   string
	Result *VerifiedPayload
	Error  string
	Code   int
}

// Engine dispatches requested provider types, isolating per-type failures
// and sharing one Context across the whole request.
type Engine struct {
	registry *Registry
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTracer injects a tracer; defaults to the no-op tracer.
func WithTracer(t tracer.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

func NewEngine(registry *Registry, logger *slog.Logger, m *metrics.Metrics, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		metrics:  m,
		tracer:   tracer.NewNoop(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GroupByPlatform partitions requested types by their platform, preserving
// the order in which types appear within each group.
func (e *Engine) GroupByPlatform(types []string) [][]string {
	var order []string
	groups := make(map[string][]string)
	for _, t := range types {
		platform := e.registry.PlatformOf(t)
		if _, ok := groups[platform]; !ok {
			order = append(order, platform)
		}
		groups[platform] = append(groups[platform], t)
	}

	out := make([][]string, 0, len(order))
	for _, platform := range order {
		out = append(out, groups[platform])
	}
	return out
}

// VerifyTypes runs every requested type against its provider. Platforms run
// concurrently; types within a platform run serially so they can reliably
// populate and reuse the shared Context. One result is returned per requested
// type, in request order, and no single failure aborts the batch.
func (e *Engine) VerifyTypes(ctx context.Context, types []string, payload credential.RequestPayload) []TypeResult {
	results := make([]TypeResult, len(types))

	// group request indices by platform so duplicates keep their own slot
	var order []string
	groups := make(map[string][]int)
	for i, t := range types {
		platform := e.registry.PlatformOf(t)
		if _, ok := groups[platform]; !ok {
			order = append(order, platform)
		}
		groups[platform] = append(groups[platform], i)
	}

	pctx := NewContext(e.metrics)

	ctx, span := e.tracer.Start(ctx, tracer.SpanVerifyTypes,
		tracer.Int64(tracer.AttrTypeCount, int64(len(types))),
		tracer.String(tracer.AttrAddress, tracer.HashAddress(payload.Address)),
	)
	defer span.End(nil)

	g := new(errgroup.Group)
	for _, platform := range order {
		indices := groups[platform]
		g.Go(func() error {
			for _, i := range indices {
				results[i] = e.verifyOne(ctx, types[i], payload, pctx)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // per-type failures land in results, never here

	return results
}

func (e *Engine) verifyOne(ctx context.Context, requested string, payload credential.RequestPayload, pctx *Context) (out TypeResult) {
	out = TypeResult{Type: requested}

	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "provider panicked", "type", requested, "panic", fmt.Sprint(r))
			if e.metrics != nil {
				e.metrics.ProviderFailures.WithLabelValues(requested).Inc()
			}
			out.Result = &VerifiedPayload{Valid: false}
			out.Error = "unable to verify provider"
			out.Code = http.StatusBadRequest
		}
	}()

	provider, req, err := e.registry.Resolve(requested)
	if err != nil {
		out.Result = &VerifiedPayload{Valid: false}
		out.Error = truncate(err.Error())
		out.Code = http.StatusBadRequest
		return out
	}
	req.Payload = payload

	ctx, span := e.tracer.Start(ctx, tracer.SpanProviderVerify,
		tracer.String(tracer.AttrProviderType, requested),
	)
	start := time.Now()
	result, err := provider.Verify(ctx, req, pctx)
	span.End(err)
	if e.metrics != nil {
		e.metrics.ProviderDuration.WithLabelValues(requested).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		e.logger.WarnContext(ctx, "provider verification failed", "type", requested, "error", err)
		if e.metrics != nil {
			e.metrics.ProviderFailures.WithLabelValues(requested).Inc()
		}
		out.Result = &VerifiedPayload{Valid: false}
		if dErrors.HasCode(err, dErrors.CodeProviderExternal) {
			out.Error = truncate(err.Error())
		} else {
			out.Error = "unable to verify provider"
		}
		out.Code = http.StatusBadRequest
		return out
	}

	out.Result = result
	if !result.Valid {
		out.Code = http.StatusForbidden
		if len(result.Errors) > 0 {
			out.Error = truncate(strings.Join(result.Errors, ", "))
		} else {
			out.Error = "unable to verify provider"
		}
	}
	return out
}

func truncate(s string) string {
	if len(s) > maxErrorLength {
		return s[:maxErrorLength]
	}
	return s
}
