package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/providers/llm"
	pgrepo "github.com/yoockh/hiready/internal/repositories/postgres"
	"github.com/yoockh/hiready/internal/transcript"
	"github.com/yoockh/hiready/internal/utils"
)

type FeedbackService interface {
	// Generate is the user-triggered path; it checks ownership.
	Generate(ctx context.Context, userID, interviewID string) (string, error)
	// GenerateForSession is the worker path, run after a call closes.
	GenerateForSession(ctx context.Context, interviewID string) (string, error)
}

type feedbackService struct {
	interviews  pgrepo.InterviewRepository
	jobs        pgrepo.JobInfoRepository
	users       pgrepo.UserRepository
	transcripts TranscriptService
	llm         llm.Provider
	log         *logrus.Logger
}

func NewFeedbackService(
	interviews pgrepo.InterviewRepository,
	jobs pgrepo.JobInfoRepository,
	users pgrepo.UserRepository,
	transcripts TranscriptService,
	provider llm.Provider,
	log *logrus.Logger,
) FeedbackService {
	if log == nil {
		log = logrus.New()
	}
	return &feedbackService{
		interviews:  interviews,
		jobs:        jobs,
		users:       users,
		transcripts: transcripts,
		llm:         provider,
		log:         log,
	}
}

func (s *feedbackService) Generate(ctx context.Context, userID, interviewID string) (string, error) {
	const op = "FeedbackService.Generate"

	row, err := s.interviews.GetOwned(ctx, interviewID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return "", utils.E(utils.CodeForbidden, op, MessageNotPermitted, err)
		}
		return "", utils.E(utils.CodeInternal, op, "failed to get interview", err)
	}
	if userID == "" || row.OwnerID != userID {
		return "", utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
	}
	return s.generate(ctx, op, row)
}

func (s *feedbackService) GenerateForSession(ctx context.Context, interviewID string) (string, error) {
	const op = "FeedbackService.GenerateForSession"

	row, err := s.interviews.GetOwned(ctx, interviewID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return "", utils.E(utils.CodeNotFound, op, "interview not found", err)
		}
		return "", utils.E(utils.CodeInternal, op, "failed to get interview", err)
	}
	return s.generate(ctx, op, row)
}

func (s *feedbackService) generate(ctx context.Context, op string, row *models.OwnedInterview) (string, error) {
	if row.Feedback != nil {
		return *row.Feedback, nil
	}
	if row.ConversationID == nil {
		return "", utils.E(utils.CodeInvalidArgument, op, "interview never connected", nil)
	}
	if s.llm == nil {
		return "", utils.E(utils.CodeUnavailable, op, "feedback generation is not configured", nil)
	}

	job, err := s.jobs.GetOwned(ctx, row.JobInfoID, row.OwnerID)
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to load job info", err)
	}

	userName := "the candidate"
	if s.users != nil {
		if u, err := s.users.GetByID(ctx, row.OwnerID); err == nil && u.Name != "" {
			userName = u.Name
		}
	}

	frags, err := s.transcripts.Fragments(ctx, row.ID)
	if err != nil {
		return "", err
	}
	if len(frags) == 0 {
		return "", utils.E(utils.CodeInvalidArgument, op, "interview has no transcript", nil)
	}

	text, err := s.complete(ctx, feedbackPrompt(job, userName, row.Duration, transcript.CondenseAll(frags)))
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "feedback generation failed", err)
	}

	if err := s.interviews.SetFeedback(ctx, row.ID, text); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			// generated concurrently; keep the stored one
			cur, gerr := s.interviews.GetOwned(ctx, row.ID)
			if gerr == nil && cur.Feedback != nil {
				return *cur.Feedback, nil
			}
		}
		return "", utils.E(utils.CodeInternal, op, "failed to save feedback", err)
	}

	s.log.WithFields(logrus.Fields{
		"session_id":      row.ID,
		"conversation_id": *row.ConversationID,
	}).Info("interview feedback generated")
	return text, nil
}

func (s *feedbackService) complete(ctx context.Context, prompt string) (string, error) {
	chunks, errs := s.llm.StreamAnswer(ctx, prompt)

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	if err := <-errs; err != nil {
		return "", err
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}

func feedbackPrompt(job *models.JobInfo, userName string, d models.CallDuration, turns []transcript.Turn) string {
	var b strings.Builder
	b.WriteString("You are an expert interview coach. Review the mock interview below and give ")
	b.WriteString("detailed, actionable feedback in markdown: communication, technical depth, ")
	b.WriteString("fit for the role, and a 1-10 overall rating. Address the candidate directly.\n\n")

	title := job.Title
	if title == "" {
		title = job.Name
	}
	fmt.Fprintf(&b, "Role: %s (%s)\n", title, job.ExperienceLevel.Label())
	fmt.Fprintf(&b, "Job description:\n%s\n\n", job.Description)
	fmt.Fprintf(&b, "Candidate: %s\nDuration: %s\n\nTranscript:\n", userName, d)

	for _, t := range turns {
		speaker := "Interviewer"
		if t.IsUser {
			speaker = userName
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, strings.Join(t.Content, " "))
	}
	return b.String()
}
