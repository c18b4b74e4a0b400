// Package metrics exposes Prometheus metrics for feed revalidation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RevalidationsTotal counts feed rebuilds by result (ok, source_error, build_error).
	RevalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcaster_feed_revalidations_total",
		Help: "Total number of feed revalidations, by result.",
	}, []string{"result"})

	// RevalidationDuration observes fetch plus build time.
	RevalidationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "podcaster_feed_revalidation_duration_seconds",
		Help:    "Time spent fetching and building the episode feed.",
		Buckets: prometheus.DefBuckets,
	})

	// FeedEpisodes tracks the size of each section of the served feed.
	FeedEpisodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "podcaster_feed_episodes",
		Help: "Number of episodes in the served feed, by section.",
	}, []string{"section"})

	// FeedBuiltTimestamp is the Unix time of the last successful build.
	FeedBuiltTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "podcaster_feed_built_timestamp_seconds",
		Help: "Unix time of the last successful feed build.",
	})

	// SourceRequestsTotal counts upstream episode fetches by source and outcome.
	SourceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podcaster_source_requests_total",
		Help: "Total number of episode source requests, by source and outcome.",
	}, []string{"source", "outcome"})
)

const (
	ResultOK          = "ok"
	ResultSourceError = "source_error"
	ResultBuildError  = "build_error"
)
