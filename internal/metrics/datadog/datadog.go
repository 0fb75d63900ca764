// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Extraction runs are usually short (one page, one directory), but the same
// binary is also driven in loops over many pages. The backend therefore:
//   - buffers observations in memory under a mutex
//   - flushes on a ticker (default once per minute)
//   - flushes one final time on Close()
//
// Flush snapshots and resets the buffers under the lock, then submits outside it.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"github.com/MingmaMoktan/Web-Scraping-Portfolio/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "extract".
	JobName string

	// Tags are extra Datadog tags (e.g. "env:prod", "preset:business-listings").
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams; production callers never set them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the one method of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu      sync.Mutex
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

// family describes how one internal metric name is shipped. Label values
// named in tagKeys become "key:value" tags; a missing value becomes
// "unknown", unless strict is set, in which case the observation is dropped.
type family struct {
	name    string
	tagKeys []string
	hist    bool
	strict  bool
}

var families = map[string]family{
	"extract_listings_total":        {name: "extract.listings.total", tagKeys: []string{"outcome"}},
	"extract_runs_total":            {name: "extract.runs.total", tagKeys: []string{"status"}},
	"load_rows_total":               {name: "load.rows.total", tagKeys: []string{"kind"}, strict: true},
	"http_requests_total":           {name: "extract.http.requests.total", tagKeys: []string{"status"}},
	"extract_duration_seconds":      {name: "extract.duration_seconds", tagKeys: []string{"stage", "status"}, hist: true},
	"http_request_duration_seconds": {name: "extract.http.request_duration_seconds", tagKeys: []string{"status"}, hist: true},
	"http_download_bytes":           {name: "extract.http.download_bytes", tagKeys: []string{"status"}, hist: true},
}

// seriesKey identifies one buffered series. tags holds the family's tags
// joined with NUL, in tagKeys order.
type seriesKey struct {
	metric string
	tags   string
}

func (f family) key(labels metrics.Labels) (seriesKey, bool) {
	tags := make([]string, len(f.tagKeys))
	for i, k := range f.tagKeys {
		v := labels[k]
		if v == "" {
			if f.strict {
				return seriesKey{}, false
			}
			v = "unknown"
		}
		tags[i] = k + ":" + v
	}
	return seriesKey{metric: f.name, tags: strings.Join(tags, "\x00")}, true
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, "\x00")
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and starts
// its periodic flush loop. Credentials come from DD_API_KEY / DD_SITE via the
// SDK's default context.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil parent context"))
	}

	job := opts.JobName
	if job == "" {
		job = "extract"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
	}
	b.resetLocked()

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call it once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

func (b *Backend) resetLocked() {
	b.counts = make(map[seriesKey]float64)
	b.samples = make(map[seriesKey][]float64)
}

// IncCounter implements metrics.Backend. Unknown metric names are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	f, ok := families[name]
	if !ok || f.hist || delta <= 0 {
		return
	}
	k, ok := f.key(labels)
	if !ok {
		return
	}

	b.mu.Lock()
	b.counts[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend. Unknown metric names are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	f, ok := families[name]
	if !ok || !f.hist || value < 0 {
		return
	}
	k, ok := f.key(labels)
	if !ok {
		return
	}

	b.mu.Lock()
	b.samples[k] = append(b.samples[k], value)
	b.mu.Unlock()
}

// snapshot is the detached buffer state for one flush.
type snapshot struct {
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counts: b.counts, samples: b.samples}
	b.resetLocked()
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.counts) == 0 && len(s.samples) == 0
}

// Flush submits buffered metrics and resets the buffers, even when the
// submission fails. Safe to call concurrently with IncCounter/ObserveHistogram.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure: it turns a snapshot into Datadog series at nowUnix,
// counts first, each group ordered by metric name then tags.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counts)+6*len(s.samples))

	for _, k := range sortedKeys(s.counts) {
		if s.counts[k] == 0 {
			continue
		}
		series = append(series, countSeries(k.metric, s.counts[k], withTags(b.baseTags, k.tagList()...), nowUnix))
	}
	for _, k := range sortedKeys(s.samples) {
		addPercentiles(&series, k.metric, withTags(b.baseTags, k.tagList()...), s.samples[k], nowUnix)
	}
	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples.
// It sorts a copy; samples is not mutated. Empty samples append nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, metricPrefix string, tags []string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,preset:product-cards".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
