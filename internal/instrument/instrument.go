// Package instrument holds the Prometheus counters of the module.
package instrument

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsBuilt = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omemo_sessions_built_total",
			Help: "Number of sessions built, by role",
		},
		[]string{"role"},
	)
	sessionBuildFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "omemo_session_build_failures_total",
			Help: "Number of sessions that could not be established",
		},
	)
	recipientsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omemo_recipients_skipped_total",
			Help: "Number of recipient devices left out of a message, by reason",
		},
		[]string{"reason"},
	)
	sessionRepairs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "omemo_session_repairs_total",
			Help: "Number of sessions rebuilt after an unreadable message",
		},
	)
	preKeysConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "omemo_pre_keys_consumed_total",
			Help: "Number of one-time pre-keys used up by incoming sessions",
		},
	)
	corruptedBundleKeys = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "omemo_corrupted_bundle_keys_total",
			Help: "Number of unusable pre-keys skipped while parsing bundles",
		},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omemo_messages_total",
			Help: "Number of messages processed, by direction",
		},
		[]string{"direction"},
	)
	keyserverRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "omemo_keyserver_requests_total",
			Help: "Number of keyserver requests, by operation",
		},
		[]string{"op"},
	)

	registerOnce sync.Once
)

// Init registers every counter with the default registry. It is safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsBuilt,
			sessionBuildFailures,
			sessionRepairs,
			recipientsSkipped,
			preKeysConsumed,
			corruptedBundleKeys,
			messages,
			keyserverRequests,
		)
	})
}

// Handler serves the registered metrics.
func Handler() http.Handler { return promhttp.Handler() }

func SessionBuilt(role string) { sessionsBuilt.WithLabelValues(role).Inc() }

func SessionBuildFailed() { sessionBuildFailures.Inc() }

func SessionRepaired() { sessionRepairs.Inc() }

func RecipientSkipped(reason string) { recipientsSkipped.WithLabelValues(reason).Inc() }

func PreKeyConsumed() { preKeysConsumed.Inc() }

func CorruptedBundleKey() { corruptedBundleKeys.Inc() }

func MessageEncrypted() { messages.WithLabelValues("out").Inc() }

func MessageDecrypted() { messages.WithLabelValues("in").Inc() }

func KeyserverRequest(op string) { keyserverRequests.WithLabelValues(op).Inc() }
