// Package aggregator fetches every portfolio resource concurrently and
// publishes one normalized Snapshot per run.
package aggregator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"portfolio-sync/internal/api"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/common/metrics"
	"portfolio-sync/internal/common/observability"
)

const (
	DefaultDeadline = 8 * time.Second
	tracerName      = "portfolio-sync/aggregator"
)

// Phase is the lifecycle of the latest run.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Status is a read-only view of the aggregator.
type Status struct {
	Phase    Phase
	Progress int
	Err      error
}

// Sink receives every published snapshot.
type Sink interface {
	Publish(ctx context.Context, snapshot *Snapshot) error
}

type Options struct {
	// Deadline bounds how long a run waits for fetches. Zero means 8s.
	Deadline      time.Duration
	OnProgress    ProgressFunc
	Sink          Sink
	Observability *observability.Observability
	Now           func() time.Time
}

type Aggregator struct {
	client api.Client
	logger logger.Logger
	opts   Options
	tracer trace.Tracer

	runMu sync.Mutex

	mu       sync.RWMutex
	current  *Snapshot
	status   Status
	progress *progressTracker
}

type fetchResult struct {
	key  ResourceKey
	data interface{}
	err  error
}

func New(client api.Client, log logger.Logger, opts Options) *Aggregator {
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Aggregator{
		client: client,
		logger: log.With(map[string]interface{}{"component": "aggregator"}),
		opts:   opts,
		tracer: opts.Observability.Tracer(tracerName),
		status: Status{Phase: PhaseIdle},
	}
}

// Aggregate runs one aggregation and publishes the result. Concurrent calls
// are serialized. Per-resource failures degrade to empty values; only a
// catastrophic failure returns an error, and then nothing is published.
func (a *Aggregator) Aggregate(ctx context.Context, authenticated bool) (snap *Snapshot, err error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	start := a.opts.Now()
	ctx, span := a.tracer.Start(ctx, "aggregator.Aggregate", trace.WithAttributes(
		attribute.Bool("authenticated", authenticated),
		attribute.Int("resources", len(AllKeys)),
	))
	defer span.End()

	tracker := newProgressTracker(len(AllKeys), a.onProgress)
	a.mu.Lock()
	a.progress = tracker
	a.status = Status{Phase: PhaseLoading}
	a.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregation panicked: %v", r)
		}
		if err != nil {
			snap = nil
			err = a.fail(ctx, span, start, err)
		}
	}()

	if a.client == nil {
		return nil, fmt.Errorf("no API client configured")
	}

	tracker.start()
	results, degraded, timedOut := a.fetchAll(ctx, authenticated, tracker)
	tracker.finish()

	built := a.build(results)
	built.Degraded = degraded
	built.TimedOut = timedOut
	built.Authenticated = authenticated
	built.GeneratedAt = a.opts.Now()

	a.publish(built)

	outcome := "complete"
	if len(degraded) > 0 {
		outcome = "degraded"
	}
	elapsed := a.opts.Now().Sub(start)
	metrics.AggregationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	metrics.SnapshotDegradedResources.Set(float64(len(degraded)))
	a.opts.Observability.RecordAggregationRun(ctx, outcome, len(degraded))
	a.opts.Observability.RecordAggregationDuration(ctx, elapsed, outcome)

	span.SetAttributes(
		attribute.Int("degraded", len(degraded)),
		attribute.Bool("timed_out", timedOut),
	)

	a.logger.Info("aggregation complete", map[string]interface{}{
		"authenticated": authenticated,
		"degraded":      degraded,
		"timedOut":      timedOut,
		"durationMs":    elapsed.Milliseconds(),
	})

	if a.opts.Sink != nil {
		if serr := a.opts.Sink.Publish(ctx, built.Clone()); serr != nil {
			a.logger.Warn("snapshot sink publish failed", map[string]interface{}{
				"error": serr.Error(),
			})
		}
	}

	return built.Clone(), nil
}

// fetchAll fans out one goroutine per key and collects until every fetch
// settles, the deadline fires or ctx ends. The result channel is buffered so
// stragglers never block.
func (a *Aggregator) fetchAll(ctx context.Context, authenticated bool, tracker *progressTracker) (map[ResourceKey]interface{}, []ResourceKey, bool) {
	results := make(chan fetchResult, len(AllKeys))
	for _, key := range AllKeys {
		go a.fetch(ctx, key, key.Endpoint(authenticated), results)
	}

	deadline := time.NewTimer(a.opts.Deadline)
	defer deadline.Stop()

	received := make(map[ResourceKey]interface{}, len(AllKeys))
	settled := make(map[ResourceKey]bool, len(AllKeys))
	var degraded []ResourceKey
	timedOut := false

collect:
	for len(settled) < len(AllKeys) {
		select {
		case r := <-results:
			settled[r.key] = true
			tracker.settled(len(settled))
			if r.err != nil {
				degraded = append(degraded, r.key)
				continue
			}
			received[r.key] = r.data
		case <-deadline.C:
			timedOut = true
			break collect
		case <-ctx.Done():
			timedOut = true
			break collect
		}
	}

	for _, key := range AllKeys {
		if !settled[key] {
			degraded = append(degraded, key)
			metrics.ResourceFetches.WithLabelValues(string(key), "missed").Inc()
		}
	}
	if timedOut {
		a.logger.Warn("aggregation deadline reached", map[string]interface{}{
			"deadlineMs": a.opts.Deadline.Milliseconds(),
			"settled":    len(settled),
			"total":      len(AllKeys),
		})
	}

	if degraded == nil {
		degraded = []ResourceKey{}
	}
	sortKeys(degraded)
	return received, degraded, timedOut
}

func (a *Aggregator) fetch(ctx context.Context, key ResourceKey, path string, out chan<- fetchResult) {
	ctx, span := a.tracer.Start(ctx, "aggregator.fetch", trace.WithAttributes(
		attribute.String("resource", string(key)),
		attribute.String("path", path),
	))

	result := fetchResult{key: key}
	defer func() {
		if r := recover(); r != nil {
			result.data = nil
			result.err = fmt.Errorf("fetch panicked: %v", r)
		}
		if result.err != nil {
			ferr := apperrors.NewResourceFetchFailedError(string(key), result.err)
			span.RecordError(ferr)
			span.SetStatus(codes.Error, ferr.Message)
			metrics.ResourceFetches.WithLabelValues(string(key), "failed").Inc()
			a.logger.Warn("resource fetch failed, using empty value", map[string]interface{}{
				"resource": string(key),
				"path":     path,
				"error":    result.err.Error(),
			})
		} else {
			metrics.ResourceFetches.WithLabelValues(string(key), "ok").Inc()
		}
		span.End()
		out <- result
	}()

	result.data, result.err = a.client.Request(ctx, http.MethodGet, path, nil)
}

// build normalizes whatever arrived. Missing keys normalize from nil, which
// yields the empty value for that key.
func (a *Aggregator) build(results map[ResourceKey]interface{}) *Snapshot {
	s := emptySnapshot()

	s.Profile = normalizeProfile(results[KeyProfile])
	s.Settings = normalizeSettings(results[KeySettings])
	s.Services = extractList(results[KeyServices], listFields[KeyServices])
	s.Certificates = normalizeCertificates(results[KeyCertificates])
	s.Team = normalizeTeam(results[KeyTeam])
	s.Blog = normalizeBlog(results[KeyBlog])
	s.Education = extractList(results[KeyEducation], listFields[KeyEducation])
	s.Experience = extractList(results[KeyExperience], listFields[KeyExperience])
	s.Skills = extractList(results[KeySkills], listFields[KeySkills])
	s.Portfolio = normalizePortfolio(results[KeyPortfolio], s.Services)

	s.ResumeOrder = parseResumeOrder(results[KeyResumeOrder])
	s.Resume = buildResume(s.ResumeOrder, s)
	return s
}

func (a *Aggregator) publish(s *Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = s
	a.status = Status{Phase: PhaseReady, Progress: progressDone}
}

func (a *Aggregator) fail(ctx context.Context, span trace.Span, start time.Time, cause error) error {
	err := apperrors.NewAggregationFailedError(cause)

	a.mu.Lock()
	progress := 0
	if a.progress != nil {
		progress = a.progress.get()
	}
	a.status = Status{Phase: PhaseFailed, Progress: progress, Err: err}
	a.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)
	metrics.AggregationDuration.WithLabelValues("failed").Observe(a.opts.Now().Sub(start).Seconds())
	a.opts.Observability.RecordAggregationRun(ctx, "failed", 0)

	a.logger.Error("aggregation failed", map[string]interface{}{
		"error": cause.Error(),
	})
	return err
}

func (a *Aggregator) onProgress(v int) {
	metrics.AggregationProgress.Set(float64(v))
	if a.opts.OnProgress != nil {
		a.opts.OnProgress(v)
	}
}

// Current returns a copy of the latest published snapshot, or nil.
func (a *Aggregator) Current() *Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current.Clone()
}

// Progress returns the current run's progress, 0 before the first run.
func (a *Aggregator) Progress() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.status.Phase == PhaseReady {
		return progressDone
	}
	if a.progress == nil {
		return 0
	}
	return a.progress.get()
}

func (a *Aggregator) State() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st := a.status
	if st.Phase == PhaseLoading && a.progress != nil {
		st.Progress = a.progress.get()
	}
	return st
}
