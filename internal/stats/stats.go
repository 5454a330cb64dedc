package stats

import (
	"encoding/json"
	"expvar"
	"net/http"
	"time"
)

// StatsProvider is the counter interface consumed by the realtime and
// HTTP layers.
type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

// StatsUpdater keeps counters in an expvar map fed through a buffered
// channel, so callers on hot paths never contend on the map itself.
type StatsUpdater struct {
	vars       *expvar.Map
	updateChan chan metricsUpdateReq
}

type metricsUpdateReq struct {
	name  string
	delta int64
}

// NewStatsUpdater creates the updater and mounts its vars handler.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		vars:       expvar.NewMap("teamchat-stats"),
		updateChan: make(chan metricsUpdateReq, 512),
	}
	mux.Handle("GET /debug/vars", http.HandlerFunc(su.expvarHandler))

	startTime := time.Now()
	su.vars.Set("UptimeMs", expvar.Func(func() any {
		return time.Since(startTime).Milliseconds()
	}))

	return su
}

func (su *StatsUpdater) expvarHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	data := make(map[string]any)
	su.vars.Do(func(kv expvar.KeyValue) {
		var value any
		json.Unmarshal([]byte(kv.Value.String()), &value)
		data[kv.Key] = value
	})

	json.NewEncoder(w).Encode(data)
}

// RegisterMetric creates a counter up front so it is visible on
// /debug/vars at zero. Counters are kept out of the global expvar
// namespace; only the map itself is published.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.vars.Set(name, new(expvar.Int))
}

func (su *StatsUpdater) Incr(name string) {
	su.updateChan <- metricsUpdateReq{name: name, delta: 1}
}

func (su *StatsUpdater) Decr(name string) {
	su.updateChan <- metricsUpdateReq{name: name, delta: -1}
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

func (su *StatsUpdater) Stop() {
	close(su.updateChan)
}

func (su *StatsUpdater) updateMetrics() {
	for req := range su.updateChan {
		metric, ok := su.vars.Get(req.name).(*expvar.Int)
		if !ok {
			// names that skipped RegisterMetric are created on first update
			metric = new(expvar.Int)
			su.vars.Set(req.name, metric)
		}
		metric.Add(req.delta)
	}
}
