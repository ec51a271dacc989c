// Package executor evaluates query trees against an index reader and
// collects the top-N hits.
package executor

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/join"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/matchset"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/searcher/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/pkg/tracing"
)

type Options struct {
	// MaxParallelism bounds how many subtrees of one query are evaluated
	// concurrently.
	MaxParallelism int
	// DefaultTimeout applies when neither the request nor the context
	// carries a deadline. Zero disables it.
	DefaultTimeout time.Duration
	DefaultTopN    int
	MaxTopN        int
	Similarity     ranker.Similarity
	Relations      *join.Relations
	Metrics        *metrics.Metrics
	// TraceSampleRate is the fraction of queries whose per-node span tree
	// is logged at debug level.
	TraceSampleRate float64
}

// Request is one query execution. A zero Deadline means none.
type Request struct {
	Query    query.Node
	TopN     int
	Deadline time.Time
	// Profile attaches the per-node timing tree to the result.
	Profile bool
}

type Hit struct {
	Doc   index.DocID `json:"-"`
	ID    string      `json:"id"`
	Score float64     `json:"score"`
}

type Result struct {
	QueryID   string  `json:"query_id"`
	TotalHits int     `json:"total_hits"`
	MaxScore  float64 `json:"max_score"`
	Hits      []Hit   `json:"hits"`
	TookMs    int64   `json:"took_ms"`

	Profile *tracing.Profile `json:"profile,omitempty"`
}

type Executor struct {
	mu     sync.RWMutex
	reader index.Reader
	opts   Options
	logger *slog.Logger
}

func New(reader index.Reader, opts Options) *Executor {
	if opts.MaxParallelism <= 0 {
		opts.MaxParallelism = 1
	}
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 10
	}
	if opts.Similarity == nil {
		opts.Similarity = ranker.TF{}
	}
	if opts.Relations == nil {
		opts.Relations = join.Empty()
	}
	return &Executor{
		reader: reader,
		opts:   opts,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// SetReader swaps the index snapshot used by new queries and returns the
// previous one. Queries already running keep the reader they started with.
func (e *Executor) SetReader(r index.Reader) index.Reader {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.reader
	e.reader = r
	return prev
}

func (e *Executor) Reader() index.Reader {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reader
}

// Execute runs root and returns at most topN hits.
func (e *Executor) Execute(ctx context.Context, root query.Node, topN int) (*Result, error) {
	return e.ExecuteRequest(ctx, Request{Query: root, TopN: topN})
}

// ExecuteRequest validates and evaluates req.Query. A deadline that has
// already passed fails with a query timeout before any node is evaluated.
// No partial result is ever returned alongside an error.
func (e *Executor) ExecuteRequest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	queryID := uuid.NewString()
	ctx = logger.WithQueryID(ctx, queryID)

	if !req.Deadline.IsZero() && !start.Before(req.Deadline) {
		return nil, e.fail(apperrors.WithPath(
			apperrors.NewQueryError(apperrors.ErrQueryTimeout, "deadline %s already passed", req.Deadline.Format(time.RFC3339Nano)),
			[]int{}))
	}
	ctx, cancel := e.withDeadline(ctx, req.Deadline)
	defer cancel()

	var root *tracing.Span
	sampled := e.opts.TraceSampleRate > 0 && rand.Float64() < e.opts.TraceSampleRate
	if sampled || req.Profile {
		ctx, root = tracing.StartSpan(ctx, "query", queryID)
		defer root.End()
	}

	topN := req.TopN
	if topN <= 0 {
		topN = e.opts.DefaultTopN
	}
	if e.opts.MaxTopN > 0 && topN > e.opts.MaxTopN {
		topN = e.opts.MaxTopN
	}

	r := e.newRun()
	set, err := r.evaluateRoot(ctx, req.Query)
	if err != nil {
		return nil, e.fail(err)
	}
	collector, err := r.collect(ctx, set, topN)
	if err != nil {
		return nil, e.fail(apperrors.WithPath(err, []int{}))
	}

	ranked := collector.Results()
	hits := make([]Hit, len(ranked))
	for i, h := range ranked {
		hits[i] = Hit{Doc: h.Doc, ID: r.reader.ExternalID(h.Doc), Score: h.Score}
	}
	result := &Result{
		QueryID:   queryID,
		TotalHits: set.Len(),
		Hits:      hits,
		TookMs:    time.Since(start).Milliseconds(),
	}
	if len(hits) > 0 {
		result.MaxScore = hits[0].Score
	}
	if root != nil {
		root.SetAttr("total_hits", result.TotalHits)
		root.End()
		if req.Profile {
			result.Profile = root.Profile()
		}
		if sampled {
			root.Log(e.logger)
		}
	}
	logger.FromContext(ctx).Debug("query executed",
		"total_hits", result.TotalHits,
		"returned", len(hits),
		"took_ms", result.TookMs,
	)
	return result, nil
}

// Evaluate validates root and returns its full match set, for callers that
// aggregate over every match rather than the top N.
func (e *Executor) Evaluate(ctx context.Context, root query.Node) (*matchset.MatchSet, error) {
	ctx, cancel := e.withDeadline(ctx, time.Time{})
	defer cancel()
	set, err := e.newRun().evaluateRoot(ctx, root)
	if err != nil {
		return nil, e.fail(err)
	}
	return set, nil
}

// Validate checks root without evaluating it.
func (e *Executor) Validate(root query.Node) error {
	return e.newRun().validate(root)
}

func (e *Executor) withDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if !deadline.IsZero() {
		return context.WithDeadline(ctx, deadline)
	}
	if _, ok := ctx.Deadline(); !ok && e.opts.DefaultTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.DefaultTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Executor) fail(err error) error {
	if e.opts.Metrics != nil {
		kind := "internal"
		if k := apperrors.KindOf(err); k != nil {
			kind = k.Error()
		}
		e.opts.Metrics.QueryErrorsTotal.WithLabelValues(kind).Inc()
	}
	return err
}

func (e *Executor) newRun() *run {
	reader := e.Reader()
	terms := term.NewMatcher(reader, e.opts.Similarity)
	return &run{
		reader:  reader,
		terms:   terms,
		joins:   join.NewEvaluator(terms, e.opts.Relations),
		sem:     semaphore.NewWeighted(int64(e.opts.MaxParallelism)),
		workers: e.opts.MaxParallelism,
		metrics: e.opts.Metrics,
	}
}

// run holds the state of one query execution.
type run struct {
	reader  index.Reader
	terms   *term.Matcher
	joins   *join.Evaluator
	sem     *semaphore.Weighted
	workers int
	metrics *metrics.Metrics
}

func (r *run) validate(root query.Node) error {
	return query.Validate(root, func(n query.Node, _ []int) error {
		if j, ok := n.(*query.JoinNode); ok {
			return r.joins.Check(j)
		}
		return nil
	})
}

func (r *run) evaluateRoot(ctx context.Context, root query.Node) (*matchset.MatchSet, error) {
	if err := query.CheckContext(ctx); err != nil {
		return nil, apperrors.WithPath(err, []int{})
	}
	if err := r.validate(root); err != nil {
		return nil, err
	}
	return r.eval(ctx, root, []int{})
}

// eval evaluates n after its children. Span nodes are evaluated as a unit
// by the span matcher.
func (r *run) eval(ctx context.Context, n query.Node, path []int) (*matchset.MatchSet, error) {
	if err := query.CheckContext(ctx); err != nil {
		return nil, apperrors.WithPath(err, path)
	}
	kind := n.Kind()
	if tracing.SpanFromContext(ctx) != nil {
		var span *tracing.Span
		ctx, span = tracing.StartChildSpan(ctx, kind.String())
		span.SetAttr("path", apperrors.FormatPath(path))
		defer span.End()
	}
	start := time.Now()

	var children []*matchset.MatchSet
	if kind != query.KindSpan {
		var err error
		children, err = r.evalChildren(ctx, n.Children(), path)
		if err != nil {
			return nil, err
		}
	}
	out, err := r.combine(ctx, n, children)
	if r.metrics != nil {
		r.metrics.QueryNodesEvaluated.WithLabelValues(kind.String()).Inc()
		r.metrics.QueryNodeDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, apperrors.WithPath(err, path)
	}
	if span := tracing.SpanFromContext(ctx); span != nil {
		span.SetAttr("matches", out.Len())
	}
	return out, nil
}

// evalChildren evaluates siblings concurrently while worker slots are free
// and inline otherwise, so nested fan-out never waits on its own ancestors.
func (r *run) evalChildren(ctx context.Context, children []query.Node, path []int) ([]*matchset.MatchSet, error) {
	results := make([]*matchset.MatchSet, len(children))
	if len(children) == 0 {
		return results, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		childPath := append(path[:len(path):len(path)], i)
		if i < len(children)-1 && r.sem.TryAcquire(1) {
			g.Go(func() error {
				defer r.sem.Release(1)
				res, err := r.eval(gctx, child, childPath)
				results[i] = res
				return err
			})
			continue
		}
		res, err := r.eval(gctx, child, childPath)
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}
		results[i] = res
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// collect feeds the match set into a bounded top-N collector from up to
// r.workers goroutines.
func (r *run) collect(ctx context.Context, set *matchset.MatchSet, topN int) (*merger.Collector, error) {
	collector := merger.NewCollector(topN)
	docs := set.Docs()
	if len(docs) == 0 {
		return collector, nil
	}
	chunk := (len(docs) + r.workers - 1) / r.workers
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for lo := 0; lo < len(docs); lo += chunk {
		hi := min(lo+chunk, len(docs))
		g.Go(func() error {
			local := merger.NewCollector(topN)
			batch := make([]merger.Hit, 0, hi-lo)
			for _, doc := range docs[lo:hi] {
				score, _ := set.Score(doc)
				batch = append(batch, merger.Hit{Doc: doc, Score: score})
			}
			if err := query.CheckContext(gctx); err != nil {
				return err
			}
			local.Offer(batch...)
			collector.Offer(local.Results()...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return collector, nil
}
