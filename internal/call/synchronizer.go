package call

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/utils"
)

var (
	ErrNoSession            = errors.New("call: no session bound")
	ErrConversationConflict = errors.New("call: session already has a different conversation id")
)

// SessionWriter persists live call state onto the interview row.
type SessionWriter interface {
	SetConversationID(ctx context.Context, sessionID, conversationID string) error
	RecordDuration(ctx context.Context, sessionID string, d models.CallDuration) error
}

// Synchronizer keeps the interview row in step with a live call. The
// conversation id is written once and the duration it sends never decreases.
type Synchronizer struct {
	writer  SessionWriter
	log     *logrus.Logger
	flushes metric.Int64Counter

	mu             sync.Mutex
	sessionID      string
	conversationID string
	persisted      models.CallDuration
}

func NewSynchronizer(w SessionWriter, log *logrus.Logger) *Synchronizer {
	if log == nil {
		log = logrus.New()
	}
	flushes, err := otel.Meter("github.com/yoockh/hiready/internal/call").Int64Counter(
		"hiready.call.flushes",
		metric.WithDescription("Duration writes issued for live calls"),
	)
	if err != nil {
		log.WithError(err).Warn("flush counter unavailable")
	}
	return &Synchronizer{writer: w, log: log, flushes: flushes}
}

func (s *Synchronizer) Bind(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

func (s *Synchronizer) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Persisted returns the largest duration written so far.
func (s *Synchronizer) Persisted() models.CallDuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted
}

// SyncConversationID stores the provider conversation id. Re-delivery of the
// stored id is a no-op; a different id is refused.
func (s *Synchronizer) SyncConversationID(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" {
		return ErrNoSession
	}
	if conversationID == "" || conversationID == s.conversationID {
		return nil
	}
	log := s.log.WithFields(logrus.Fields{
		"session_id":      s.sessionID,
		"conversation_id": conversationID,
	})
	if s.conversationID != "" {
		log.WithField("current", s.conversationID).Error("conversation id reassigned")
		return ErrConversationConflict
	}

	if err := s.writer.SetConversationID(ctx, s.sessionID, conversationID); err != nil {
		if errors.Is(err, utils.ErrConflict) || utils.IsCode(err, utils.CodeConflict) {
			log.WithError(err).Error("conversation id rejected by store")
			return ErrConversationConflict
		}
		log.WithError(err).Warn("conversation id sync failed")
		return err
	}
	s.conversationID = conversationID
	log.Info("conversation id stored")
	return nil
}

func (s *Synchronizer) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Heartbeat writes the latest observed duration.
func (s *Synchronizer) Heartbeat(ctx context.Context, d models.CallDuration) error {
	return s.write(ctx, d, "heartbeat")
}

// Flush is the final write when the call closes. It is always issued, even
// when a heartbeat already stored the same value.
func (s *Synchronizer) Flush(ctx context.Context, d models.CallDuration) error {
	return s.write(ctx, d, "final")
}

func (s *Synchronizer) write(ctx context.Context, d models.CallDuration, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" {
		return ErrNoSession
	}
	if d < s.persisted {
		d = s.persisted
	}
	if s.flushes != nil {
		s.flushes.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	if err := s.writer.RecordDuration(ctx, s.sessionID, d); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"session_id": s.sessionID,
			"duration":   d.String(),
			"kind":       kind,
		}).Warn("duration sync failed")
		return err
	}
	s.persisted = d
	return nil
}
