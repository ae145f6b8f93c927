package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"busarrival.dkucouncil.org/internal/logging"
	"busarrival.dkucouncil.org/internal/metrics"
)

const (
	DefaultRunThreshold     = 3 * time.Minute
	DefaultProviderTimeout  = 3 * time.Second
	DefaultEstimatorTimeout = time.Second
)

// AggregatorConfig tunes classification and outbound call bounds.
type AggregatorConfig struct {
	// RunThreshold is the largest live ETA still classified as RUN.
	RunThreshold     time.Duration
	ProviderTimeout  time.Duration
	EstimatorTimeout time.Duration
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.RunThreshold <= 0 {
		c.RunThreshold = DefaultRunThreshold
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = DefaultProviderTimeout
	}
	if c.EstimatorTimeout <= 0 {
		c.EstimatorTimeout = DefaultEstimatorTimeout
	}
	return c
}

// Aggregator merges every provider's readings for a station into one
// classified list of arrivals.
type Aggregator struct {
	stations  StationDirectory
	providers []Provider
	estimator Estimator
	config    AggregatorConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewAggregator creates an Aggregator. providers is queried in order; the
// order only affects the order of arrivals in the result.
func NewAggregator(stations StationDirectory, providers []Provider, estimator Estimator, config AggregatorConfig, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		stations:  stations,
		providers: providers,
		estimator: estimator,
		config:    config.withDefaults(),
		logger:    logger.With(slog.String("component", "bus_aggregator")),
		metrics:   m,
	}
}

// routeRule is one parsed allow-list entry.
type routeRule struct {
	prefix string // empty accepts any provider
	busNo  string
}

type providerResult struct {
	prefix   string
	readings []Reading
}

// merged accumulates every ETA reported for one bus number.
type merged struct {
	busNo string
	etas  []int
}

// Aggregate builds the arrivals for station at now.
func (a *Aggregator) Aggregate(ctx context.Context, station Station, now time.Time) ([]Arrival, error) {
	info, ok := a.stations.StationInfo(station)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, station)
	}
	logger := a.logger.With(slog.String("station", string(station)))
	ctx = logging.WithLogger(ctx, logger)

	providers := a.providersFor(info)
	rules := a.parseRoutes(info.Routes)

	results := a.fetchAll(ctx, station, providers)
	live := mergeReadings(results, rules)

	// Timetable lookups for every live bus plus every allow-listed route that
	// had no live reading.
	predictedOnly := make([]string, 0, len(rules))
	seen := make(map[string]bool, len(live)+len(rules))
	for _, m := range live {
		seen[m.busNo] = true
	}
	for _, rule := range rules {
		if !seen[rule.busNo] {
			seen[rule.busNo] = true
			predictedOnly = append(predictedOnly, rule.busNo)
		}
	}
	lookups := make([]string, 0, len(live)+len(predictedOnly))
	for _, m := range live {
		lookups = append(lookups, m.busNo)
	}
	lookups = append(lookups, predictedOnly...)
	estimates := a.estimateAll(ctx, station, now, lookups)

	arrivals := make([]Arrival, 0, len(lookups))
	for i, m := range live {
		arrivals = append(arrivals, a.classifyLive(m, estimates[i]))
	}
	for i, busNo := range predictedOnly {
		est := estimates[len(live)+i]
		if est.err != nil || !est.ok {
			continue
		}
		arrivals = append(arrivals, Arrival{
			BusNo:    busNo,
			FirstETA: durationSeconds(est.remaining),
			Status:   StatusPredict,
		})
	}

	logger.Debug("aggregated station arrivals",
		slog.Int("live", len(live)),
		slog.Int("predicted", len(arrivals)-len(live)))
	return arrivals, nil
}

func (a *Aggregator) providersFor(info StationInfo) []Provider {
	if len(info.Providers) == 0 {
		return a.providers
	}
	out := make([]Provider, 0, len(info.Providers))
	for _, p := range a.providers {
		if slices.Contains(info.Providers, p.Prefix()) {
			out = append(out, p)
		}
	}
	return out
}

func (a *Aggregator) parseRoutes(routes []string) []routeRule {
	rules := make([]routeRule, 0, len(routes))
	for _, entry := range routes {
		rule := routeRule{busNo: entry}
		for _, p := range a.providers {
			prefix := p.Prefix()
			if prefix != "" && len(entry) > len(prefix) && strings.HasPrefix(entry, prefix) {
				rule = routeRule{prefix: prefix, busNo: entry[len(prefix):]}
				break
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

// fetchAll queries providers concurrently and returns once every call has
// returned or hit its deadline. Failed providers contribute no readings.
func (a *Aggregator) fetchAll(ctx context.Context, station Station, providers []Provider) []providerResult {
	results := make([]providerResult, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		results[i].prefix = p.Prefix()
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i].readings = a.fetchOne(ctx, station, p)
		}()
	}
	wg.Wait()
	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, station Station, p Provider) []Reading {
	ctx, cancel := context.WithTimeout(ctx, a.config.ProviderTimeout)
	defer cancel()

	type outcome struct {
		readings []Reading
		err      error
	}
	// Buffered so a provider that ignores ctx can still finish and be collected.
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		readings, err := p.Fetch(ctx, station)
		done <- outcome{readings, err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-ctx.Done():
		res = outcome{err: ctx.Err()}
	}
	elapsed := time.Since(start)

	if res.err != nil {
		result := metrics.ResultError
		if errors.Is(res.err, context.DeadlineExceeded) {
			result = metrics.ResultTimeout
		}
		a.metrics.ObserveProviderFetch(p.Prefix(), result, elapsed)
		logging.LogWarn(logging.FromContext(ctx), "arrival provider failed, continuing without it", res.err,
			slog.String("provider", p.Prefix()))
		return nil
	}
	a.metrics.ObserveProviderFetch(p.Prefix(), metrics.ResultOK, elapsed)
	return res.readings
}

type estimate struct {
	remaining time.Duration
	ok        bool
	err       error
}

func (a *Aggregator) estimateAll(ctx context.Context, station Station, now time.Time, busNos []string) []estimate {
	out := make([]estimate, len(busNos))
	if a.estimator == nil {
		for i := range out {
			out[i].err = errors.New("no estimator configured")
		}
		return out
	}

	var wg sync.WaitGroup
	for i, busNo := range busNos {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = a.estimateOne(ctx, station, now, busNo)
		}()
	}
	wg.Wait()
	return out
}

func (a *Aggregator) estimateOne(ctx context.Context, station Station, now time.Time, busNo string) estimate {
	ctx, cancel := context.WithTimeout(ctx, a.config.EstimatorTimeout)
	defer cancel()

	done := make(chan estimate, 1)
	go func() {
		remaining, ok, err := a.estimator.Estimate(ctx, busNo, station, now)
		done <- estimate{remaining, ok, err}
	}()

	var est estimate
	select {
	case est = <-done:
	case <-ctx.Done():
		est = estimate{err: ctx.Err()}
	}

	switch {
	case est.err != nil:
		a.metrics.ObserveEstimate(metrics.OutcomeError)
		logging.FromContext(ctx).Debug("no timetable estimate",
			slog.String("bus", busNo), slog.String("error", est.err.Error()))
	case !est.ok:
		a.metrics.ObserveEstimate(metrics.OutcomeNoService)
	default:
		a.metrics.ObserveEstimate(metrics.OutcomeEstimate)
	}
	return est
}

func (a *Aggregator) classifyLive(m merged, est estimate) Arrival {
	arrival := Arrival{BusNo: m.busNo, FirstETA: m.etas[0]}
	if len(m.etas) > 1 {
		arrival.SecondETA = m.etas[1]
		arrival.HasSecond = true
	}

	switch {
	case est.err == nil && !est.ok:
		arrival.Status = StatusStop
	case time.Duration(arrival.FirstETA)*time.Second <= a.config.RunThreshold:
		arrival.Status = StatusRun
	default:
		arrival.Status = StatusPredict
	}
	return arrival
}

// mergeReadings filters readings through the allow-list and pools them by bus
// number. Each result keeps its two smallest ETAs, ascending, in order of the
// bus number's first appearance.
func mergeReadings(results []providerResult, rules []routeRule) []merged {
	var order []string
	pooled := make(map[string][]int)

	for _, res := range results {
		for _, r := range res.readings {
			if !allowed(rules, res.prefix, r.BusNo) {
				continue
			}
			if _, ok := pooled[r.BusNo]; !ok {
				order = append(order, r.BusNo)
			}
			pooled[r.BusNo] = append(pooled[r.BusNo], max(r.FirstETA, 0))
			if r.HasSecond {
				pooled[r.BusNo] = append(pooled[r.BusNo], max(r.SecondETA, 0))
			}
		}
	}

	out := make([]merged, 0, len(order))
	for _, busNo := range order {
		etas := pooled[busNo]
		slices.Sort(etas)
		if len(etas) > 2 {
			etas = etas[:2]
		}
		out = append(out, merged{busNo: busNo, etas: etas})
	}
	return out
}

func allowed(rules []routeRule, prefix, busNo string) bool {
	for _, rule := range rules {
		if rule.busNo == busNo && (rule.prefix == "" || rule.prefix == prefix) {
			return true
		}
	}
	return false
}

func durationSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
