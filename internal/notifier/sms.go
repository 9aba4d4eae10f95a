package notifier

import (
	"context"

	"github.com/majibu/backend/internal/sms"
)

// SMSNotifier delivers notifications directly through the SMS client.
type SMSNotifier struct {
	client *sms.Client
}

func NewSMSNotifier(client *sms.Client) *SMSNotifier {
	return &SMSNotifier{client: client}
}

func (n *SMSNotifier) Notify(ctx context.Context, recipient, _, _, message string) error {
	_, err := n.client.SendSMS(ctx, recipient, message)
	return err
}
