// Package metrics exposes campaign processing counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/adcraft/ad-pipeline/internal/orchestrator"
)

var (
	campaignsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpipeline_campaigns_total",
		Help: "Campaign runs by final state.",
	}, []string{"state"})

	renditionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adpipeline_renditions_total",
		Help: "Product x template rendition attempts by outcome.",
	}, []string{"outcome"})

	productsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adpipeline_products_skipped_total",
		Help: "Products skipped before any rendition was attempted.",
	})
)

// RecordSummary records the counters for one finished campaign run.
func RecordSummary(s *orchestrator.CampaignSummary) {
	if s == nil {
		return
	}

	campaignsTotal.WithLabelValues(string(s.State)).Inc()

	for _, p := range s.Products {
		if p.Skipped {
			productsSkippedTotal.Inc()
			continue
		}
		for _, r := range p.Renditions {
			renditionsTotal.WithLabelValues(string(r.Outcome)).Inc()
		}
	}
}
