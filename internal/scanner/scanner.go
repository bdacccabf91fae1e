// Package scanner wires the rule set, grading, cache policy, rate limiter
// and the external fetch/DNS/event-log collaborators into the single scan
// operation.
package scanner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/secaudit/headgrade/internal/eventlog"
	"github.com/secaudit/headgrade/internal/policy"
	"github.com/secaudit/headgrade/internal/probe"
	"github.com/secaudit/headgrade/internal/provider"
	"github.com/secaudit/headgrade/internal/rules"
	sharedErrors "github.com/secaudit/headgrade/internal/shared/errors"
)

// Prober is the outbound collaborator: one header-capturing fetch plus
// per-family DNS resolution.
type Prober interface {
	Fetch(ctx context.Context, targetURL string) (rules.HeaderMap, error)
	Resolve(ctx context.Context, host string) probe.Addresses
}

// Scanner holds everything one scan needs: the active rule configuration,
// the collaborators and the shared rate-limiter table. One instance is
// built at process start and shared by reference across request handlers;
// there is no package-level mutable state.
type Scanner struct {
	rules   rules.Config
	prober  Prober
	log     eventlog.Log
	limiter *policy.RateLimiter
	logger  *zap.Logger

	// now is the clock used by the cache policy; tests inject a fixed one.
	now func() time.Time

	requests    atomic.Uint64
	cacheHits   atomic.Uint64
	freshProbes atomic.Uint64
	throttled   atomic.Uint64
}

// New builds a scanner. A nil logger falls back to a nop logger and a nil
// limiter gets a fresh table.
func New(cfg rules.Config, p Prober, log eventlog.Log, limiter *policy.RateLimiter, logger *zap.Logger) *Scanner {
	if limiter == nil {
		limiter = policy.NewRateLimiter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		rules:   cfg,
		prober:  p,
		log:     log,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// Stats is a snapshot of the scanner's counters.
type Stats struct {
	Requests    uint64 `json:"requests"`
	CacheHits   uint64 `json:"cache_hits"`
	FreshProbes uint64 `json:"fresh_probes"`
	Throttled   uint64 `json:"throttled"`
}

// Stats returns the current counter values.
func (s *Scanner) Stats() Stats {
	return Stats{
		Requests:    s.requests.Load(),
		CacheHits:   s.cacheHits.Load(),
		FreshProbes: s.freshProbes.Load(),
		Throttled:   s.throttled.Load(),
	}
}

// Scan runs one orchestrated scan: validate, consult the event log, apply
// the cache policy and rate limiter, probe if needed, evaluate and grade,
// persist, return. Errors carry the sentinel for their class so callers
// can map them with errors.Is.
func (s *Scanner) Scan(ctx context.Context, rawURL, client string, force bool) (*eventlog.ScanRecord, error) {
	target, err := probe.ParseTarget(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sharedErrors.ErrValidation, err)
	}

	s.requests.Add(1)

	prev, err := s.log.LatestScan(ctx, target.Host)
	if err != nil {
		// Degrade to "never scanned": the lookup failure forces a probe.
		s.logger.Warn("event log lookup failed",
			zap.String("host", target.Host), zap.Error(err))
		prev = nil
	}

	now := s.now()
	var prevTS *time.Time
	if prev != nil {
		prevTS = &prev.Timestamp
	}

	if !policy.NeedsFreshProbe(prevTS, force, now) {
		s.cacheHits.Add(1)
		s.ingestQuery(ctx, target.Host, client, true)
		cached := *prev
		cached.Cached = true
		prune(&cached)
		return &cached, nil
	}

	if !s.limiter.TryAcquire(client) {
		s.throttled.Add(1)
		return nil, fmt.Errorf("%w: client %s is in cool-down", sharedErrors.ErrRateLimited, client)
	}

	headers, err := s.prober.Fetch(ctx, target.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sharedErrors.ErrProbe, err)
	}
	addrs := s.prober.Resolve(ctx, target.Host)

	report := s.rules.Evaluate(headers)
	rec := eventlog.ScanRecord{
		Timestamp:  now,
		Hostname:   target.Host,
		URL:        target.Original,
		RawHeaders: headers,
		Addresses:  addrs,
		Report:     report,
		Provider:   provider.Classify(headers),
		Grade:      s.rules.Grade(report),
	}

	// Persistence outlives a disconnected requester and never fails the
	// response.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.log.IngestScan(persistCtx, rec); err != nil {
		s.logger.Warn("scan record ingest failed",
			zap.String("host", target.Host), zap.Error(err))
	}
	s.ingestQuery(persistCtx, target.Host, client, false)

	s.freshProbes.Add(1)
	s.logger.Info("fresh probe completed",
		zap.String("host", target.Host),
		zap.String("grade", string(rec.Grade)),
		zap.Int("failed_rules", report.FailedCount()))
	return &rec, nil
}

// ingestQuery appends the analytics event for this request. Fire and
// forget: failures are swallowed by design.
func (s *Scanner) ingestQuery(ctx context.Context, host, client string, cached bool) {
	ev := eventlog.QueryEvent{
		Timestamp: s.now(),
		Hostname:  host,
		Client:    client,
		Cached:    cached,
	}
	go func() {
		if err := s.log.IngestQuery(context.WithoutCancel(ctx), ev); err != nil {
			s.logger.Debug("query event ingest failed",
				zap.String("host", host), zap.Error(err))
		}
	}()
}

// prune clears empty fields on a cached record; historical rows may carry
// sparse shapes.
func prune(rec *eventlog.ScanRecord) {
	if len(rec.RawHeaders) == 0 {
		rec.RawHeaders = nil
	}
	if len(rec.Addresses.V4) == 0 {
		rec.Addresses.V4 = nil
	}
	if len(rec.Addresses.V6) == 0 {
		rec.Addresses.V6 = nil
	}
}
