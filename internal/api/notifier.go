package api

import (
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/catalog"
)

// metricsNotifier forwards every changelog append to the websocket hub and
// counts it, so internal/catalog stays ignorant of both concerns (it only
// knows the catalog.Notifier interface).
type metricsNotifier struct {
	next catalog.Notifier
	m    *metrics
}

func (n *metricsNotifier) Publish(entry catalog.ChangelogEntry) {
	n.m.changelogAppended.Inc()
	if n.next != nil {
		n.next.Publish(entry)
	}
}
