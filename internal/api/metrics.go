package api

import "github.com/prometheus/client_golang/prometheus"

// metrics tracks this system's write paths on /metrics: upload
// starts/finishes, publishes, restores, and changelog appends.
type metrics struct {
	uploadsStarted  prometheus.Counter
	uploadsFinished prometheus.Counter
	versionsPublished prometheus.Counter
	versionsRestored  prometheus.Counter
	changelogAppended prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		uploadsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_store_uploads_started_total",
			Help: "Number of startUpload calls.",
		}),
		uploadsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_store_uploads_finished_total",
			Help: "Number of finishUpload calls that created a version.",
		}),
		versionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_store_versions_published_total",
			Help: "Number of versions transitioned to published.",
		}),
		versionsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_store_versions_restored_total",
			Help: "Number of restoreVersion calls.",
		}),
		changelogAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "asset_store_changelog_appended_total",
			Help: "Number of changelog entries appended, across all kinds.",
		}),
	}
	reg.MustRegister(m.uploadsStarted, m.uploadsFinished, m.versionsPublished, m.versionsRestored, m.changelogAppended)
	return m
}
