package services

import (
	"context"
	"time"

	"github.com/yoockh/hiready/internal/models"
	mongorepo "github.com/yoockh/hiready/internal/repositories/mongo"
	"github.com/yoockh/hiready/internal/transcript"
	"github.com/yoockh/hiready/internal/utils"
)

type TranscriptService interface {
	Record(ctx context.Context, interviewID, conversationID string, seq int64, f transcript.Fragment) error
	AttachConversation(ctx context.Context, interviewID, conversationID string) error
	Fragments(ctx context.Context, interviewID string) ([]transcript.Fragment, error)
	Condensed(ctx context.Context, userID, interviewID string) ([]transcript.Turn, error)
}

type transcriptService struct {
	fragments  mongorepo.TranscriptRepository
	interviews InterviewService
	ttl        time.Duration
}

func NewTranscriptService(fragments mongorepo.TranscriptRepository, interviews InterviewService, ttl time.Duration) TranscriptService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &transcriptService{fragments: fragments, interviews: interviews, ttl: ttl}
}

func (s *transcriptService) Record(ctx context.Context, interviewID, conversationID string, seq int64, f transcript.Fragment) error {
	const op = "TranscriptService.Record"

	if interviewID == "" || seq <= 0 {
		return utils.E(utils.CodeInvalidArgument, op, "interview_id is required and seq must be > 0", nil)
	}
	now := time.Now().UTC()
	doc := &models.TranscriptFragment{
		InterviewID:    interviewID,
		ConversationID: conversationID,
		Seq:            seq,
		Role:           f.Role,
		Content:        f.Text,
		Timestamp:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.fragments.Append(ctx, doc); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record transcript fragment", err)
	}
	return nil
}

func (s *transcriptService) AttachConversation(ctx context.Context, interviewID, conversationID string) error {
	const op = "TranscriptService.AttachConversation"

	if err := s.fragments.AttachConversation(ctx, interviewID, conversationID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to tag transcript fragments", err)
	}
	return nil
}

func (s *transcriptService) Fragments(ctx context.Context, interviewID string) ([]transcript.Fragment, error) {
	const op = "TranscriptService.Fragments"

	rows, err := s.fragments.ListByInterview(ctx, interviewID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load transcript", err)
	}
	return transcript.FromRecords(rows), nil
}

// Condensed replays a finished call for review. Calls that never connected have
// no transcript.
func (s *transcriptService) Condensed(ctx context.Context, userID, interviewID string) ([]transcript.Turn, error) {
	const op = "TranscriptService.Condensed"

	iv, err := s.interviews.Get(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	if iv.ConversationID == nil {
		return nil, utils.E(utils.CodeNotFound, op, "interview has no transcript", nil)
	}
	frags, err := s.Fragments(ctx, interviewID)
	if err != nil {
		return nil, err
	}
	return transcript.CondenseAll(frags), nil
}
