package vibe

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registry *prometheus.Registry

	// Counters
	nextConnectionID prometheus.CounterFunc

	// Gauges
	openConnections   prometheus.GaugeFunc
	storedDefinitions prometheus.GaugeFunc
	boundNames        prometheus.GaugeFunc
	typeCacheEntries  prometheus.GaugeFunc
	valueCacheEntries prometheus.GaugeFunc

	// Latency histograms
	addLatency     prometheus.Summary
	evalLatency    prometheus.Summary
	updateLatency  prometheus.Summary
	persistLatency prometheus.Summary
}

func newMetrics(cb *Codebase) *metrics {
	m := &metrics{
		nextConnectionID: prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "next_connection_id",
				Help: "number of connections to this server over its lifetime",
			},
			func() float64 {
				cb.connMu.Lock()
				defer cb.connMu.Unlock()
				return float64(cb.nextConnectionID)
			},
		),
		openConnections: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "open_connections",
				Help: "number of connections currently open",
			},
			func() float64 {
				return float64(cb.connectionCount())
			},
		),
		storedDefinitions: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "stored_definitions",
				Help: "number of definitions in the store",
			},
			func() float64 {
				return float64(cb.store.count())
			},
		),
		boundNames: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "bound_names",
				Help: "number of names currently bound in the registry",
			},
			func() float64 {
				return float64(len(cb.registry.list()))
			},
		),
		typeCacheEntries: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "type_cache_entries",
				Help: "number of memoized type check results",
			},
			func() float64 {
				return float64(cb.types.len())
			},
		),
		valueCacheEntries: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "value_cache_entries",
				Help: "number of memoized evaluation results",
			},
			func() float64 {
				return float64(cb.values.len())
			},
		),
		addLatency: prometheus.NewSummary(
			prometheus.SummaryOpts{
				Name: "add_latency_ns",
				Help: "latency to parse, canonicalize, check, and store an input",
			},
		),
		evalLatency: prometheus.NewSummary(
			prometheus.SummaryOpts{
				Name: "eval_latency_ns",
				Help: "latency to evaluate a definition (cache misses included)",
			},
		),
		updateLatency: prometheus.NewSummary(
			prometheus.SummaryOpts{
				Name: "update_latency_ns",
				Help: "latency to propagate pending edits through dependents",
			},
		),
		persistLatency: prometheus.NewSummary(
			prometheus.SummaryOpts{
				Name: "persist_latency_ns",
				Help: "latency of storage layer commits",
			},
		),
	}
	m.registry = prometheus.NewPedanticRegistry()
	reg := m.registry

	reg.MustRegister(prometheus.NewProcessCollector(os.Getpid(), ""))
	reg.MustRegister(prometheus.NewGoCollector())

	reg.MustRegister(m.nextConnectionID)
	reg.MustRegister(m.openConnections)
	reg.MustRegister(m.storedDefinitions)
	reg.MustRegister(m.boundNames)
	reg.MustRegister(m.typeCacheEntries)
	reg.MustRegister(m.valueCacheEntries)
	reg.MustRegister(m.addLatency)
	reg.MustRegister(m.evalLatency)
	reg.MustRegister(m.updateLatency)
	reg.MustRegister(m.persistLatency)
	return m
}
