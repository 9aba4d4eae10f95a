package matcher

import (
	"container/heap"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/majibu/backend/internal/config"
	"github.com/majibu/backend/internal/models"
	"github.com/majibu/backend/internal/store"
)

var (
	// ErrLeaseNotAcquired means another matcher instance holds the tick lease.
	ErrLeaseNotAcquired = errors.New("matcher lease held by another instance")
	// ErrLeaseLost means the lease expired or was taken over mid-tick.
	ErrLeaseLost = errors.New("matcher lease lost mid-tick")
)

// Ledger credit reasons
const (
	ReasonReward = "REWARD"
	ReasonRefund = "REFUND"
)

// ResultSource reads and mutates Result records.
type ResultSource interface {
	EligibleForMatching(ctx context.Context, now time.Time, loadDelay, expiryBuffer time.Duration) ([]models.Result, error)
	Deactivate(ctx context.Context, id string) error
}

// DuoSessionSink appends matching outcomes. Create must return
// store.ErrDuplicateDuoSession when a party already has an outcome for the
// quiz session; the matcher treats that as idempotent success.
type DuoSessionSink interface {
	Create(ctx context.Context, duo models.DuoSession) error
}

// StatsSource persists per-tick pool snapshots and serves the previous one.
type StatsSource interface {
	Append(ctx context.Context, stats models.PoolSessionStats) error
	Latest(ctx context.Context) (*models.PoolSessionStats, error)
}

// Ledger credits a player account. Debits happen at stake time, outside
// the matcher.
type Ledger interface {
	Credit(ctx context.Context, account string, amount float64, reason, description string) error
}

// Notifier delivers a best-effort, at-least-once message to a player.
type Notifier interface {
	Notify(ctx context.Context, recipient, channel, kind, message string) error
}

// Lease serialises ticks across deployments.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	StillHeld(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// Matcher is the periodically invoked pool matching engine.
type Matcher struct {
	cfg      *config.Config
	results  ResultSource
	duos     DuoSessionSink
	stats    StatsSource
	ledger   Ledger
	notifier Notifier
	lease    Lease
	rng      *rand.Rand

	// effectsWG tracks fire-and-forget ledger/notifier work. RunTick never
	// waits on it; tests do.
	effectsWG sync.WaitGroup
}

func New(cfg *config.Config, results ResultSource, duos DuoSessionSink, stats StatsSource, ledger Ledger, notifier Notifier, lease Lease, rng *rand.Rand) *Matcher {
	return &Matcher{
		cfg:      cfg,
		results:  results,
		duos:     duos,
		stats:    stats,
		ledger:   ledger,
		notifier: notifier,
		lease:    lease,
		rng:      rng,
	}
}

// RunTick runs one matching pass over all eligible results.
//
// The tick acquires the lease, scans eligible results, persists the pool
// statistics snapshot, then settles each result in expiry order: partial
// refund for unplayed results, otherwise nearest-active-neighbour pairing
// under the category's adaptive range.
func (m *Matcher) RunTick(ctx context.Context, now time.Time) error {
	ok, err := m.lease.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return ErrLeaseNotAcquired
	}
	defer m.lease.Release(ctx)

	started := time.Now()
	budget := time.Duration(m.cfg.TickPeriodSeconds-m.cfg.TickSafetyMarginSecs) * time.Second

	results, err := m.scanEligible(ctx, now)
	if err != nil {
		return fmt.Errorf("scan eligible results: %w", err)
	}

	list, queue := buildIndices(results)

	prev, err := m.stats.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load previous pool stats: %w", err)
	}

	categories := computePoolStats(queue, prev, m.cfg.EwmaAlpha, m.cfg.PairingThreshold)

	snapshot := models.PoolSessionStats{
		ID:           uuid.NewString(),
		TickTime:     now,
		TotalPlayers: len(queue),
		Categories:   categories,
	}
	// The snapshot must be durable before any matching so the next tick
	// reads a consistent predecessor even if this one aborts.
	if err := m.stats.Append(ctx, snapshot); err != nil {
		return fmt.Errorf("persist pool stats: %w", err)
	}

	log.Printf("[MATCHER] Tick %s: %d eligible results, %d categories", snapshot.ID, len(queue), len(categories))

	for _, target := range queue {
		if time.Since(started) > budget {
			log.Printf("[MATCHER] Tick budget exhausted after %v; remaining results roll to next tick", time.Since(started))
			break
		}
		if !target.IsActive {
			// Consumed earlier this tick as someone's partner
			continue
		}
		if err := m.settle(ctx, target, list, categories); err != nil {
			if errors.Is(err, ErrLeaseLost) {
				return err
			}
			log.Printf("[MATCHER] Failed to settle result %s: %v (stays active, retried next tick)", target.ResultID, err)
		}
	}

	return nil
}

// scanEligible reads all results admitted to this tick, retrying transient
// store faults, and drops rows that violate basic invariants.
func (m *Matcher) scanEligible(ctx context.Context, now time.Time) ([]models.Result, error) {
	loadDelay := time.Duration(m.cfg.LoadDelaySeconds) * time.Second
	expiryBuffer := time.Duration(m.cfg.ExpiryBufferSeconds) * time.Second

	var results []models.Result
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		results, err = m.results.EligibleForMatching(ctx, now, loadDelay, expiryBuffer)
		if err == nil {
			break
		}
		log.Printf("[MATCHER] Eligible scan attempt %d failed: %v", attempt+1, err)
		time.Sleep(time.Duration(100<<attempt) * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	valid := results[:0]
	for _, r := range results {
		if err := validateResult(r, m.cfg.QuestionsInSession); err != nil {
			log.Printf("[MATCHER] ERROR: skipping result %s: %v", r.ID, err)
			continue
		}
		valid = append(valid, r)
	}
	return valid, nil
}

func validateResult(r models.Result, questionsInSession int) error {
	if r.TotalAnswered < 0 || r.TotalCorrect < 0 {
		return fmt.Errorf("negative counters (answered=%d correct=%d)", r.TotalAnswered, r.TotalCorrect)
	}
	if r.TotalCorrect > r.TotalAnswered {
		return fmt.Errorf("total_correct %d exceeds total_answered %d", r.TotalCorrect, r.TotalAnswered)
	}
	if r.TotalAnswered > questionsInSession {
		return fmt.Errorf("total_answered %d exceeds questions per session %d", r.TotalAnswered, questionsInSession)
	}
	if !r.ExpiresAt.After(r.CreatedAt) {
		return fmt.Errorf("expires_at %v not after created_at %v", r.ExpiresAt, r.CreatedAt)
	}
	return nil
}

// buildIndices projects results into nodes and loads both tick-local
// indices. The heap is drained immediately: its pop order (expiry
// ascending) is the processing queue and the statistics iteration order.
func buildIndices(results []models.Result) (*scoreList, []*ResultNode) {
	list := &scoreList{}
	h := &expiryHeap{}
	heap.Init(h)

	for _, r := range results {
		node := newNode(r)
		list.insert(node)
		heap.Push(h, node)
	}

	queue := make([]*ResultNode, 0, h.Len())
	for h.Len() > 0 {
		queue = append(queue, heap.Pop(h).(*ResultNode))
	}
	return list, queue
}

// settle decides and durably records the outcome for one target node.
func (m *Matcher) settle(ctx context.Context, target *ResultNode, list *scoreList, categories map[string]models.CategoryStats) error {
	var partner *ResultNode
	status := models.StatusRefunded

	if target.Score == 0.0 {
		// Sentinel: the player never attempted a question
		status = models.StatusPartiallyRefunded
	} else if candidate := m.pickPartner(target, list); candidate != nil {
		pairingRange := categories[target.Category].PairingRange
		delta := math.Abs(target.Score - candidate.Score)
		if delta <= pairingRange && target.Score != candidate.Score {
			partner = candidate
			status = models.StatusPaired
		}
	}

	duo := models.DuoSession{
		ID:            uuid.NewString(),
		QuizSessionID: target.QuizSessionID,
		PartyA:        target.PlayerID,
		Status:        status,
		Amount:        m.cfg.SessionAmount,
		CreatedAt:     time.Now(),
	}
	if status == models.StatusPaired {
		duo.PartyB = sql.NullString{String: partner.PlayerID, Valid: true}
		winner := target
		if partner.Score > target.Score {
			winner = partner
		}
		duo.WinnerID = sql.NullString{String: winner.PlayerID, Valid: true}
	}

	if held, err := m.lease.StillHeld(ctx); err == nil && !held {
		return ErrLeaseLost
	}

	if err := m.createDuoSession(ctx, duo); err != nil {
		return err
	}

	m.deactivate(ctx, target)
	if partner != nil {
		m.deactivate(ctx, partner)
	}

	log.Printf("[MATCHER] %s: session=%s party_a=%s party_b=%s winner=%s",
		duo.Status, duo.QuizSessionID, duo.PartyA, duo.PartyB.String, duo.WinnerID.String)

	// Ledger and notifier effects run after the durable state change and
	// are never awaited by the tick.
	m.effectsWG.Add(1)
	go func() {
		defer m.effectsWG.Done()
		m.applyEffects(context.Background(), duo)
	}()

	return nil
}

// createDuoSession appends the outcome, retrying transient failures. A
// duplicate means a previous tick already settled one of the parties for
// this quiz session; the write is skipped and the tick proceeds.
func (m *Matcher) createDuoSession(ctx context.Context, duo models.DuoSession) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = m.duos.Create(ctx, duo)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrDuplicateDuoSession) {
			log.Printf("[MATCHER] DuoSession for (%s, %s) already recorded; treating as settled", duo.PartyA, duo.QuizSessionID)
			return nil
		}
		log.Printf("[MATCHER] DuoSession write attempt %d failed: %v", attempt+1, err)
		time.Sleep(time.Duration(100<<attempt) * time.Millisecond)
	}
	return err
}

// deactivate consumes a node: the in-memory flag flips first so the rest
// of this tick skips it even if the store write fails.
func (m *Matcher) deactivate(ctx context.Context, node *ResultNode) {
	node.IsActive = false
	if err := m.results.Deactivate(ctx, node.ResultID); err != nil {
		log.Printf("[MATCHER] Failed to deactivate result %s: %v", node.ResultID, err)
	}
}

// pickPartner finds the nearest active neighbour of the target in the
// ordered score list: same quiz session, still active, a different player,
// and a strictly different score (equal-score entries sit inside the
// bisect window and are skipped over).
func (m *Matcher) pickPartner(target *ResultNode, list *scoreList) *ResultNode {
	left, right := closestNodes(target, list)

	switch {
	case left == nil && right == nil:
		return nil
	case left == nil:
		return right
	case right == nil:
		return left
	}

	dLeft := math.Abs(target.Score - left.Score)
	dRight := math.Abs(right.Score - target.Score)
	switch {
	case dLeft < dRight:
		return left
	case dRight < dLeft:
		return right
	default:
		if m.rng.Intn(2) == 0 {
			return left
		}
		return right
	}
}

func closestNodes(target *ResultNode, list *scoreList) (left, right *ResultNode) {
	lo := list.bisectLeft(target.Score)
	hi := list.bisectRight(target.Score)

	for i := lo - 1; i >= 0; i-- {
		if isCandidate(list.entries[i], target) {
			left = list.entries[i]
			break
		}
	}
	for i := hi; i < list.len(); i++ {
		if isCandidate(list.entries[i], target) {
			right = list.entries[i]
			break
		}
	}
	return left, right
}

// isCandidate filters the neighbour scan: same quiz session, still active,
// a different player, and not a sentinel (an unplayed result can never be
// pulled in as a partner, it only ever settles as a partial refund).
func isCandidate(n, target *ResultNode) bool {
	return n.QuizSessionID == target.QuizSessionID &&
		n.IsActive &&
		n.PlayerID != target.PlayerID &&
		n.Score != 0.0
}
