// Package email delivers staff notification mail for screening handoffs.
package email

import "context"

// HandoffAlertData carries everything the recruiting team needs to pick up a
// conversation that ended in a handoff.
type HandoffAlertData struct {
	StudyID   string
	SessionID string
	LeadID    int64
	Reason    string
	Details   []string
}

type Sender interface {
	SendHandoffAlert(ctx context.Context, toEmail string, data HandoffAlertData) error
}

// NoopSender is used when email delivery is not configured.
type NoopSender struct{}

func (NoopSender) SendHandoffAlert(context.Context, string, HandoffAlertData) error {
	return nil
}
