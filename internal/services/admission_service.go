package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/ratelimit"
	pgrepo "github.com/yoockh/hiready/internal/repositories/postgres"
	"github.com/yoockh/hiready/internal/utils"
)

type DenialReason string

const (
	DenialUnauthenticated DenialReason = "unauthenticated"
	DenialPlanLimit       DenialReason = "plan_limit"
	DenialRateLimited     DenialReason = "rate_limited"
	DenialNotPermitted    DenialReason = "not_permitted"
)

// Code is the error code a transport reports for the denial.
func (r DenialReason) Code() utils.Code {
	switch r {
	case DenialUnauthenticated:
		return utils.CodeUnauthorized
	case DenialRateLimited:
		return utils.CodeRateLimited
	default:
		return utils.CodeForbidden
	}
}

// AdmissionResult is either an approved session or a denial with a user-facing
// message. Denials are not errors.
type AdmissionResult struct {
	Allowed    bool          `json:"allowed"`
	SessionID  string        `json:"id,omitempty"`
	Reason     DenialReason  `json:"-"`
	Message    string        `json:"message,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

func deny(reason DenialReason, msg string) *AdmissionResult {
	return &AdmissionResult{Allowed: false, Reason: reason, Message: msg}
}

type EntitlementEvaluator interface {
	CanCreate(ctx context.Context, id *models.Identity) bool
}

type RateLimiter interface {
	Allow(ctx context.Context, userID string) (ratelimit.Decision, error)
}

type AdmissionService interface {
	CreateSession(ctx context.Context, id *models.Identity, jobInfoID string) (*AdmissionResult, error)
}

type admissionService struct {
	entitlements EntitlementEvaluator
	limiter      RateLimiter
	jobs         JobInfoService
	interviews   pgrepo.InterviewRepository
	log          *logrus.Logger

	decisions metric.Int64Counter
}

func NewAdmissionService(
	entitlements EntitlementEvaluator,
	limiter RateLimiter,
	jobs JobInfoService,
	interviews pgrepo.InterviewRepository,
	log *logrus.Logger,
) AdmissionService {
	if log == nil {
		log = logrus.New()
	}
	decisions, err := otel.Meter("github.com/yoockh/hiready/internal/services").Int64Counter(
		"hiready.admission.decisions",
		metric.WithDescription("Interview session admission outcomes"),
	)
	if err != nil {
		log.WithError(err).Warn("admission counter unavailable")
	}
	return &admissionService{
		entitlements: entitlements,
		limiter:      limiter,
		jobs:         jobs,
		interviews:   interviews,
		log:          log,
		decisions:    decisions,
	}
}

// CreateSession runs the guards in a fixed order and stops at the first denial:
// identity, plan entitlement, rate limit, job info ownership. Only then is the
// interview row inserted. A rate-limit token is therefore spent only by callers
// whose plan allows the interview.
func (s *admissionService) CreateSession(ctx context.Context, id *models.Identity, jobInfoID string) (*AdmissionResult, error) {
	const op = "AdmissionService.CreateSession"

	res, err := s.admit(ctx, op, id, jobInfoID)
	if err == nil {
		s.record(ctx, res)
	}
	return res, err
}

func (s *admissionService) admit(ctx context.Context, op string, id *models.Identity, jobInfoID string) (*AdmissionResult, error) {
	if id == nil || id.UserID == "" {
		return deny(DenialUnauthenticated, MessageNotPermitted), nil
	}
	log := s.log.WithFields(logrus.Fields{"user_id": id.UserID, "job_info_id": jobInfoID})

	if !s.entitlements.CanCreate(ctx, id) {
		log.Info("interview denied: plan limit")
		return deny(DenialPlanLimit, MessagePlanLimit), nil
	}

	decision, err := s.limiter.Allow(ctx, id.UserID)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "rate limiter unavailable", err)
	}
	if !decision.Allowed {
		log.WithField("retry_after", decision.RetryAfter.String()).Info("interview denied: rate limited")
		res := deny(DenialRateLimited, MessageRateLimited)
		res.RetryAfter = decision.RetryAfter
		return res, nil
	}

	if _, err := s.jobs.GetOwned(ctx, id.UserID, jobInfoID); err != nil {
		if utils.IsCode(err, utils.CodeForbidden) {
			return deny(DenialNotPermitted, MessageNotPermitted), nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	iv := &models.Interview{
		ID:        uuid.NewString(),
		JobInfoID: jobInfoID,
		Duration:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.interviews.Insert(ctx, iv); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create interview", err)
	}

	log.WithField("session_id", iv.ID).Info("interview created")
	return &AdmissionResult{Allowed: true, SessionID: iv.ID}, nil
}

func (s *admissionService) record(ctx context.Context, res *AdmissionResult) {
	if s.decisions == nil || res == nil {
		return
	}
	outcome := "allowed"
	if !res.Allowed {
		outcome = string(res.Reason)
	}
	s.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
