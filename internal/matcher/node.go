package matcher

import (
	"sort"
	"time"

	"github.com/majibu/backend/internal/models"
)

// ResultNode is the in-memory projection of a Result used during one tick.
// Nodes are shared between the score list and the expiry heap; flipping
// IsActive here is what lets a later target skip an already consumed partner.
type ResultNode struct {
	ResultID      string
	PlayerID      string
	QuizSessionID string
	Category      string
	Score         float64
	ExpiresAt     time.Time
	IsActive      bool
}

func newNode(r models.Result) *ResultNode {
	return &ResultNode{
		ResultID:      r.ID,
		PlayerID:      r.PlayerID,
		QuizSessionID: r.QuizSessionID,
		Category:      r.Category,
		Score:         r.Score,
		ExpiresAt:     r.ExpiresAt,
		IsActive:      r.IsActive,
	}
}

// scoreList keeps nodes ordered by score ascending, ties in insertion order.
type scoreList struct {
	entries []*ResultNode
}

// insert places the node after any existing entries with an equal score.
func (l *scoreList) insert(n *ResultNode) {
	i := l.bisectRight(n.Score)
	l.entries = append(l.entries, nil)
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = n
}

// bisectLeft returns the first index whose score is >= the key.
func (l *scoreList) bisectLeft(score float64) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Score >= score
	})
}

// bisectRight returns the first index whose score is > the key.
func (l *scoreList) bisectRight(score float64) int {
	return sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].Score > score
	})
}

func (l *scoreList) len() int { return len(l.entries) }

// expiryHeap is a min-heap of nodes keyed on ExpiresAt. Draining it yields
// the tick's processing queue: earliest-expiring result first.
type expiryHeap []*ResultNode

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].ExpiresAt.Before(h[j].ExpiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(*ResultNode)) }

func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return node
}
