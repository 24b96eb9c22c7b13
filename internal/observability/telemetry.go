package observability

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// TelemetrySystem is the process-wide counter registry. It is nil until
// InitTelemetry runs.
var TelemetrySystem *Telemetry

// PrometheusExporter serves TelemetrySystem in the Prometheus text
// exposition format. It is nil until InitTelemetry runs.
var PrometheusExporter *Exporter

// InitTelemetry creates the telemetry registry and its exporter for the
// given service identity.
func InitTelemetry(service, version string) {
	TelemetrySystem = NewTelemetry(service, version)
	PrometheusExporter = NewExporter(TelemetrySystem)
}

// Telemetry holds named monotonic counters plus the service identity
// reported on the metrics endpoint. Counter names may carry a Prometheus
// label set, as in `trellis_http_responses_total{status="200"}`; the
// exporter groups samples by metric family when rendering.
type Telemetry struct {
	service   string
	version   string
	startedAt time.Time

	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewTelemetry returns an empty registry stamped with the service identity.
func NewTelemetry(service, version string) *Telemetry {
	return &Telemetry{
		service:   service,
		version:   version,
		startedAt: time.Now(),
		counters:  make(map[string]*atomic.Int64),
	}
}

// Counter returns the counter registered under name, creating it at zero
// on first use.
func (t *Telemetry) Counter(name string) *atomic.Int64 {
	t.mu.RLock()
	c, ok := t.counters[name]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok = t.counters[name]; ok {
		return c
	}
	c = new(atomic.Int64)
	t.counters[name] = c
	return c
}

// Inc increments the named counter by one.
func (t *Telemetry) Inc(name string) {
	t.Counter(name).Add(1)
}

// Uptime reports how long ago the registry was created.
func (t *Telemetry) Uptime() time.Duration {
	return time.Since(t.startedAt)
}

// snapshot copies the current counter values.
func (t *Telemetry) snapshot() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int64, len(t.counters))
	for name, c := range t.counters {
		out[name] = c.Load()
	}
	return out
}

// Exporter renders a Telemetry registry in the Prometheus text exposition
// format (version 0.0.4).
type Exporter struct {
	telemetry *Telemetry
}

// NewExporter returns an exporter backed by t.
func NewExporter(t *Telemetry) *Exporter {
	return &Exporter{telemetry: t}
}

func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	t := e.telemetry
	var b strings.Builder

	fmt.Fprintf(&b, "# HELP trellis_build_info Build information for the running process.\n")
	fmt.Fprintf(&b, "# TYPE trellis_build_info gauge\n")
	fmt.Fprintf(&b, "trellis_build_info{service=%q,version=%q} 1\n", t.service, t.version)

	fmt.Fprintf(&b, "# HELP trellis_uptime_seconds Seconds since the telemetry registry was created.\n")
	fmt.Fprintf(&b, "# TYPE trellis_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "trellis_uptime_seconds %.3f\n", t.Uptime().Seconds())

	// Group samples into metric families so each family renders its TYPE
	// line once, followed by all of its label variants.
	samples := t.snapshot()
	families := make(map[string][]string, len(samples))
	for name := range samples {
		families[familyName(name)] = append(families[familyName(name)], name)
	}
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, family := range names {
		fmt.Fprintf(&b, "# TYPE %s counter\n", family)
		members := families[family]
		sort.Strings(members)
		for _, sample := range members {
			fmt.Fprintf(&b, "%s %d\n", sample, samples[sample])
		}
	}

	_, _ = w.Write([]byte(b.String()))
}

// familyName strips the label set from a sample name.
func familyName(sample string) string {
	if i := strings.IndexByte(sample, '{'); i >= 0 {
		return sample[:i]
	}
	return sample
}

// HTTPMetrics counts requests and responses by status code. A nil registry
// disables collection.
func HTTPMetrics(t *Telemetry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if t == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Inc("trellis_http_requests_total")
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			t.Inc(fmt.Sprintf(`trellis_http_responses_total{status="%d"}`, status))
		})
	}
}
