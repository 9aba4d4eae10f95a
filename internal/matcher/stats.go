package matcher

import (
	"math"

	"github.com/majibu/backend/internal/models"
)

// computePoolStats derives the per-category adaptive statistics for a tick.
//
// The mean pairwise difference is taken over consecutive nodes in queue
// order (expiry ascending), not score order. That matches the production
// behaviour this engine replaces and must not be changed silently.
func computePoolStats(queue []*ResultNode, prev *models.PoolSessionStats, alpha, threshold float64) map[string]models.CategoryStats {
	byCategory := make(map[string][]*ResultNode)
	for _, n := range queue {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}

	stats := make(map[string]models.CategoryStats, len(byCategory))
	for category, nodes := range byCategory {
		var sum float64
		for _, n := range nodes {
			sum += n.Score
		}

		var averageScore float64
		if len(nodes) > 0 {
			averageScore = sum / float64(len(nodes))
		}

		mpd, mpdDefined := meanPairwiseDiff(nodes)

		var ewma float64
		if prevStats, ok := previousCategory(prev, category); ok {
			// Warm update: an undefined MPD contributes 0 so the average decays
			ewma = alpha*mpd + (1-alpha)*prevStats.Ewma
		} else if mpdDefined {
			ewma = mpd
		}

		stats[category] = models.CategoryStats{
			Players:          len(nodes),
			MeanPairwiseDiff: mpd,
			AverageScore:     averageScore,
			Ewma:             ewma,
			PairingRange:     ewma * threshold,
			Threshold:        threshold,
		}
	}

	return stats
}

// meanPairwiseDiff returns the mean absolute difference of consecutive
// scores and whether it is defined (needs at least two nodes).
func meanPairwiseDiff(nodes []*ResultNode) (float64, bool) {
	if len(nodes) < 2 {
		return 0, false
	}

	var total float64
	for i := 1; i < len(nodes); i++ {
		total += math.Abs(nodes[i].Score - nodes[i-1].Score)
	}
	return total / float64(len(nodes)-1), true
}

func previousCategory(prev *models.PoolSessionStats, category string) (models.CategoryStats, bool) {
	if prev == nil {
		return models.CategoryStats{}, false
	}
	s, ok := prev.Categories[category]
	return s, ok
}
