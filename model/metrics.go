package model

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "protomodel"

var (
	metricLockContentions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "lock_contentions_total",
			Help:      "Failed non-blocking attempts to take a registry metadata lock",
		},
	)

	metricGraphBuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "graph_builds_total",
			Help:      "Serializer graphs compiled",
		},
	)

	metricTypesRegistered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "types_registered_total",
			Help:      "Type entries added to any registry",
		},
	)
)

func init() {
	prometheus.MustRegister(
		metricLockContentions,
		metricGraphBuilds,
		metricTypesRegistered,
	)
}
