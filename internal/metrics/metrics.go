// Package metrics registers the Prometheus instruments shared across the
// crawl engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts listing pages per source and outcome kind.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Total listing pages fetched, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	// PagesRetried counts transient page refetches.
	PagesRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_page_retries_total",
			Help: "Total transient page retries, labeled by source.",
		},
		[]string{"source"},
	)

	// CardsExtracted counts successfully extracted job cards.
	CardsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cards_total",
			Help: "Total job cards extracted, labeled by source.",
		},
		[]string{"source"},
	)

	// CardsPromoSkipped counts cards dropped as promotional placements.
	CardsPromoSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_cards_promo_skipped_total",
			Help: "Total cards skipped as promotional, labeled by source.",
		},
		[]string{"source"},
	)

	// CardErrors counts cards that failed extraction.
	CardErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_card_errors_total",
			Help: "Total card extraction failures, labeled by source.",
		},
		[]string{"source"},
	)

	// DetailsFetched counts detail page fetches by result.
	DetailsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_details_total",
			Help: "Total detail pages fetched, labeled by source and result.",
		},
		[]string{"source", "result"},
	)

	// RecordsExcluded counts filtered records per exclusion reason.
	RecordsExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_excluded_total",
			Help: "Total records excluded by the filter, labeled by reason.",
		},
		[]string{"reason"},
	)

	// RecordsDeduplicated counts records dropped as duplicates.
	RecordsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_records_deduplicated_total",
			Help: "Total records dropped by phone deduplication.",
		},
	)

	// ActiveTasks tracks crawl tasks currently holding a concurrency slot.
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvest_active_tasks",
			Help: "Crawl tasks currently running.",
		},
	)

	// ProgressEvents counts progress events by stage.
	ProgressEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_progress_events_total",
			Help: "Total progress events emitted, labeled by stage.",
		},
		[]string{"stage"},
	)

	// RecordsSaved counts store writes by result.
	RecordsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_saved_total",
			Help: "Total records written to the store, labeled by result.",
		},
		[]string{"result"},
	)
)
