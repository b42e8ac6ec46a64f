// Package metrics holds the prometheus collectors shared by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agegate_verifications_total",
		Help: "Completed OAuth callbacks by outcome",
	}, []string{"outcome"})

	Rewards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agegate_rewards_total",
		Help: "Balance credits issued on a false to true verification transition",
	})

	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agegate_store_retries_total",
		Help: "Units of work retried after a connectivity failure",
	})

	StoreUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agegate_store_unavailable_total",
		Help: "Store operations that exhausted the retry budget",
	})

	OAuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agegate_oauth_failures_total",
		Help: "Failed provider round trips by stage and kind",
	}, []string{"stage", "kind"})
)
