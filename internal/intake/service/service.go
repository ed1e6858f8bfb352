// Package service orchestrates screening turns: session persistence, study
// configuration, the conversation engine, and the FAQ side-channel.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"intake_backend/internal/eligibility"
	"intake_backend/internal/events"
	"intake_backend/internal/faq"
	"intake_backend/internal/intake/engine"
	"intake_backend/internal/intake/transport"
	"intake_backend/internal/sessions"
	"intake_backend/internal/studies"
	"intake_backend/platform/apperr"
	"intake_backend/platform/logger"
	"intake_backend/platform/sanitize"
)

// FAQAnswerer is the slice of the FAQ service the turn loop uses. Nil means
// FAQ answering is disabled.
type FAQAnswerer interface {
	AnswerQuestion(ctx context.Context, question, studyID string) (faq.Answer, error)
}

type Service struct {
	engine   *engine.Engine
	sessions sessions.Store
	loader   *studies.Loader
	faq      FAQAnswerer
	bus      events.Bus
	log      *logger.Logger

	// Study configs are immutable once loaded; singleflight collapses
	// concurrent first loads.
	cfgMu    sync.RWMutex
	cfgCache map[string]*studies.Config
	cfgGroup singleflight.Group

	// One lock per live session serializes concurrent turns.
	turnMu    sync.Mutex
	turnLocks map[string]*sync.Mutex
}

func New(eng *engine.Engine, store sessions.Store, loader *studies.Loader, log *logger.Logger) *Service {
	return &Service{
		engine:    eng,
		sessions:  store,
		loader:    loader,
		log:       log,
		cfgCache:  make(map[string]*studies.Config),
		turnLocks: make(map[string]*sync.Mutex),
	}
}

// SetEventBus wires the domain event bus.
func (s *Service) SetEventBus(bus events.Bus) { s.bus = bus }

// SetFAQ wires the FAQ answering service.
func (s *Service) SetFAQ(f FAQAnswerer) { s.faq = f }

// CreateSession starts a new screening conversation for a study and returns
// the greeting turn.
func (s *Service) CreateSession(ctx context.Context, studyID string) (transport.TurnResponse, error) {
	cfg, err := s.studyConfig(studyID)
	if err != nil {
		return transport.TurnResponse{}, err
	}

	state, err := s.engine.Initialize(ctx, cfg)
	if err != nil {
		return transport.TurnResponse{}, apperr.Wrap(apperr.KindInternal, "failed to start conversation", err).WithOp("intake.CreateSession")
	}

	session := &sessions.Session{
		ID:      uuid.New().String(),
		StudyID: studyID,
		State:   state,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return transport.TurnResponse{}, apperr.Wrap(apperr.KindInternal, "failed to persist session", err).WithOp("intake.CreateSession")
	}

	s.log.WithSessionID(session.ID).WithStudyID(studyID).Info("session created")
	return transport.Render(session.ID, state, cfg), nil
}

// SendMessage processes one participant message and returns the next turn.
// Messages to completed conversations return the final state unchanged, and
// FAQ-looking questions are answered out-of-band without advancing the flow.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string) (transport.TurnResponse, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	message = sanitize.Text(message)

	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return transport.TurnResponse{}, apperr.NotFound("session not found").WithOp("intake.SendMessage")
		}
		return transport.TurnResponse{}, apperr.Wrap(apperr.KindInternal, "failed to load session", err).WithOp("intake.SendMessage")
	}

	cfg, err := s.studyConfig(session.StudyID)
	if err != nil {
		return transport.TurnResponse{}, err
	}

	if session.State.CurrentStep.IsTerminal() {
		return transport.Render(session.ID, session.State, cfg), nil
	}

	// FAQ interrupt: answer the question without stepping the flow, so the
	// participant can resume exactly where they were.
	if s.faq != nil && faq.IsQuestion(message) {
		answer, err := s.faq.AnswerQuestion(ctx, message, session.StudyID)
		if err == nil {
			resp := transport.Render(session.ID, session.State, cfg)
			resp.Message = answer.Text
			resp.Type = transport.TypeText
			resp.Fields = nil
			resp.Field = ""
			resp.Options = nil
			return resp, nil
		}
		// Fall through to the flow on FAQ errors rather than losing the turn.
		s.log.WithSessionID(sessionID).Warn("faq answer failed, continuing flow", "error", err)
	}

	before := session.State
	state, err := s.engine.Step(ctx, cfg, session.State, message)
	if err != nil {
		return transport.TurnResponse{}, apperr.Wrap(apperr.KindInternal, "failed to process turn", err).WithOp("intake.SendMessage")
	}

	session.State = state
	if err := s.sessions.Save(ctx, session); err != nil {
		return transport.TurnResponse{}, apperr.Wrap(apperr.KindInternal, "failed to persist session", err).WithOp("intake.SendMessage")
	}

	s.publishTurnEvents(ctx, session, before, state)
	return transport.Render(session.ID, state, cfg), nil
}

// publishTurnEvents emits domain events for state transitions this turn
// caused: lead creation and conversation completion.
func (s *Service) publishTurnEvents(ctx context.Context, session *sessions.Session, before, after engine.State) {
	if s.bus == nil {
		return
	}

	if before.LeadID == 0 && after.LeadID != 0 && after.IsNewLead {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    after.LeadID,
			StudyID:   after.StudyID,
			Email:     after.LeadIdentity.Email,
			Phone:     after.LeadIdentity.Phone,
		})
	}

	if !before.CurrentStep.IsTerminal() && after.CurrentStep.IsTerminal() {
		s.bus.Publish(ctx, events.SessionCompleted{
			BaseEvent: events.NewBaseEvent(),
			SessionID: session.ID,
			StudyID:   after.StudyID,
			FinalStep: after.CurrentStep.String(),
		})

		if reason := handoffReason(after); reason != "" {
			s.bus.Publish(ctx, events.HandoffCreated{
				BaseEvent: events.NewBaseEvent(),
				SessionID: session.ID,
				StudyID:   after.StudyID,
				LeadID:    after.LeadID,
				Reason:    reason,
				Details:   after.PreferredTimes,
			})
		}
	}
}

// handoffReason maps a terminal state to its staff follow-up category.
// Declined consent needs no follow-up.
func handoffReason(st engine.State) string {
	switch st.CurrentStep.Kind {
	case engine.StepQualifiedHandoff:
		if st.EligibilityResult == eligibility.NeedsHuman {
			return "needs_human"
		}
		return "qualified"
	case engine.StepAuthFailHandoff:
		return "auth_failed"
	case engine.StepDisqualified:
		return "disqualified"
	}
	return ""
}

// studyConfig returns the cached study configuration, loading it once.
func (s *Service) studyConfig(studyID string) (*studies.Config, error) {
	s.cfgMu.RLock()
	cfg, ok := s.cfgCache[studyID]
	s.cfgMu.RUnlock()
	if ok {
		return cfg, nil
	}

	result, err, _ := s.cfgGroup.Do(studyID, func() (interface{}, error) {
		cfg, err := s.loader.Load(studyID)
		if err != nil {
			return nil, err
		}
		s.cfgMu.Lock()
		s.cfgCache[studyID] = cfg
		s.cfgMu.Unlock()
		return cfg, nil
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Sprintf("failed to load study %q", studyID), err)
	}
	return result.(*studies.Config), nil
}

// lockSession acquires the per-session turn lock and returns its unlock.
func (s *Service) lockSession(sessionID string) func() {
	s.turnMu.Lock()
	lock, ok := s.turnLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.turnLocks[sessionID] = lock
	}
	s.turnMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
