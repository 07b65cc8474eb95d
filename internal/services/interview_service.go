package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/hiready/internal/models"
	pgrepo "github.com/yoockh/hiready/internal/repositories/postgres"
	"github.com/yoockh/hiready/internal/utils"
)

// InterviewPatch is a client-driven sync of live call state.
type InterviewPatch struct {
	ConversationID *string              `json:"conversation_id,omitempty"`
	Duration       *models.CallDuration `json:"duration,omitempty"`
}

type InterviewService interface {
	Get(ctx context.Context, userID, id string) (*models.Interview, error)
	ListByJobInfo(ctx context.Context, userID, jobInfoID string) ([]models.Interview, error)
	SetConversationID(ctx context.Context, userID, id, conversationID string) error
	RecordDuration(ctx context.Context, userID, id string, d models.CallDuration) error
	Update(ctx context.Context, userID, id string, p InterviewPatch) error
}

type interviewService struct {
	interviews pgrepo.InterviewRepository
	jobs       JobInfoService
}

func NewInterviewService(interviews pgrepo.InterviewRepository, jobs JobInfoService) InterviewService {
	return &interviewService{interviews: interviews, jobs: jobs}
}

// owned loads the interview only if userID owns its job info; anything else is
// the same permission error.
func (s *interviewService) owned(ctx context.Context, op, userID, id string) (*models.OwnedInterview, error) {
	if userID == "" || id == "" {
		return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
	}
	row, err := s.interviews.GetOwned(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get interview", err)
	}
	if row.OwnerID != userID {
		return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
	}
	return row, nil
}

func (s *interviewService) Get(ctx context.Context, userID, id string) (*models.Interview, error) {
	row, err := s.owned(ctx, "InterviewService.Get", userID, id)
	if err != nil {
		return nil, err
	}
	return &row.Interview, nil
}

func (s *interviewService) ListByJobInfo(ctx context.Context, userID, jobInfoID string) ([]models.Interview, error) {
	const op = "InterviewService.ListByJobInfo"

	if _, err := s.jobs.GetOwned(ctx, userID, jobInfoID); err != nil {
		return nil, err
	}
	rows, err := s.interviews.ListByJobInfo(ctx, jobInfoID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list interviews", err)
	}
	return rows, nil
}

func (s *interviewService) SetConversationID(ctx context.Context, userID, id, conversationID string) error {
	const op = "InterviewService.SetConversationID"

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "conversation_id is required", nil)
	}
	if _, err := s.owned(ctx, op, userID, id); err != nil {
		return err
	}
	if err := s.interviews.SetConversationID(ctx, id, conversationID); err != nil {
		switch {
		case errors.Is(err, utils.ErrConflict):
			return utils.E(utils.CodeConflict, op, "conversation id already assigned", err)
		case errors.Is(err, utils.ErrNotFound):
			return utils.E(utils.CodeForbidden, op, MessageNotPermitted, err)
		}
		return utils.E(utils.CodeInternal, op, "failed to set conversation id", err)
	}
	return nil
}

func (s *interviewService) RecordDuration(ctx context.Context, userID, id string, d models.CallDuration) error {
	const op = "InterviewService.RecordDuration"

	if d < 0 {
		return utils.E(utils.CodeInvalidArgument, op, "duration must not be negative", nil)
	}
	if _, err := s.owned(ctx, op, userID, id); err != nil {
		return err
	}
	if err := s.interviews.AdvanceDuration(ctx, id, d); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeForbidden, op, MessageNotPermitted, err)
		}
		return utils.E(utils.CodeInternal, op, "failed to record duration", err)
	}
	return nil
}

func (s *interviewService) Update(ctx context.Context, userID, id string, p InterviewPatch) error {
	const op = "InterviewService.Update"

	if p.ConversationID == nil && p.Duration == nil {
		return utils.E(utils.CodeInvalidArgument, op, "nothing to update", nil)
	}
	if p.ConversationID != nil {
		if err := s.SetConversationID(ctx, userID, id, *p.ConversationID); err != nil {
			return err
		}
	}
	if p.Duration != nil {
		if err := s.RecordDuration(ctx, userID, id, *p.Duration); err != nil {
			return err
		}
	}
	return nil
}
