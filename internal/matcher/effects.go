package matcher

import (
	"context"
	"fmt"
	"log"

	"github.com/majibu/backend/internal/models"
	"github.com/majibu/backend/internal/scoring"
)

const notifyChannel = "SMS"

// applyEffects runs the ledger credits and notifications for a recorded
// DuoSession. Failures are logged only: the DuoSession row is the source
// of truth and gets reconciled out-of-band.
func (m *Matcher) applyEffects(ctx context.Context, duo models.DuoSession) {
	switch duo.Status {
	case models.StatusPaired:
		amount := scoring.Round(duo.Amount*m.cfg.WinRatio, 2)
		winner := duo.WinnerID.String
		description := fmt.Sprintf("Winnings for quiz session %s", duo.QuizSessionID)
		if err := m.ledger.Credit(ctx, winner, amount, ReasonReward, description); err != nil {
			log.Printf("[MATCHER] Credit failed for winner %s on duo %s: %v", winner, duo.ID, err)
		}

		loser := duo.PartyA
		if loser == winner {
			loser = duo.PartyB.String
		}
		winMsg := fmt.Sprintf("Majibu: Congratulations! You won KES %.2f in your last quiz. Play again to keep your streak.", amount)
		loseMsg := "Majibu: Your opponent edged you out this time. Play another session to win your stake back."
		m.notify(ctx, winner, duo.Status, winMsg)
		m.notify(ctx, loser, duo.Status, loseMsg)

	case models.StatusRefunded:
		amount := scoring.Round(duo.Amount*m.cfg.RefundRatio, 2)
		description := fmt.Sprintf("Refund for quiz session %s", duo.QuizSessionID)
		if err := m.ledger.Credit(ctx, duo.PartyA, amount, ReasonRefund, description); err != nil {
			log.Printf("[MATCHER] Refund credit failed for %s on duo %s: %v", duo.PartyA, duo.ID, err)
		}
		msg := fmt.Sprintf("Majibu: No suitable opponent was found, so KES %.2f has been returned to your wallet.", amount)
		m.notify(ctx, duo.PartyA, duo.Status, msg)

	case models.StatusPartiallyRefunded:
		amount := scoring.Round(duo.Amount*m.cfg.PartialRefundRatio, 2)
		description := fmt.Sprintf("Partial refund for quiz session %s", duo.QuizSessionID)
		if err := m.ledger.Credit(ctx, duo.PartyA, amount, ReasonRefund, description); err != nil {
			log.Printf("[MATCHER] Partial refund credit failed for %s on duo %s: %v", duo.PartyA, duo.ID, err)
		}
		msg := fmt.Sprintf("Majibu: You did not attempt any questions, so KES %.2f has been returned to your wallet.", amount)
		m.notify(ctx, duo.PartyA, duo.Status, msg)
	}
}

func (m *Matcher) notify(ctx context.Context, recipient, kind, message string) {
	if err := m.notifier.Notify(ctx, recipient, notifyChannel, kind, message); err != nil {
		log.Printf("[MATCHER] Notification to %s failed: %v", recipient, err)
	}
}
