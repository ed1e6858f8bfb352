// Package notification bridges domain events to staff email alerts.
package notification

import (
	"context"

	"intake_backend/internal/email"
	"intake_backend/internal/events"
	"intake_backend/platform/logger"
)

// Module listens for handoff events and mails the recruiting team.
type Module struct {
	sender        email.Sender
	notifyAddress string
	log           *logger.Logger
}

func NewModule(sender email.Sender, notifyAddress string, log *logger.Logger) *Module {
	return &Module{
		sender:        sender,
		notifyAddress: notifyAddress,
		log:           log,
	}
}

// RegisterHandlers subscribes to the domain events this module reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.HandoffCreated{}.EventName(), m)
}

// Handle routes events to the appropriate notification.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.HandoffCreated:
		return m.handleHandoff(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleHandoff(ctx context.Context, e events.HandoffCreated) error {
	if m.notifyAddress == "" {
		return nil
	}

	err := m.sender.SendHandoffAlert(ctx, m.notifyAddress, email.HandoffAlertData{
		StudyID:   e.StudyID,
		SessionID: e.SessionID,
		LeadID:    e.LeadID,
		Reason:    e.Reason,
		Details:   e.Details,
	})
	if err != nil {
		m.log.Error("handoff alert email failed", "session_id", e.SessionID, "reason", e.Reason, "error", err)
		return err
	}

	m.log.WithSessionID(e.SessionID).Info("handoff alert sent", "reason", e.Reason)
	return nil
}

var _ events.Handler = (*Module)(nil)
