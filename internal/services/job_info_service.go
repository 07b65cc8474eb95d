package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/hiready/internal/cache"
	"github.com/yoockh/hiready/internal/models"
	pgrepo "github.com/yoockh/hiready/internal/repositories/postgres"
	"github.com/yoockh/hiready/internal/utils"
)

type JobInfoInput struct {
	Title           string                 `json:"title"`
	Name            string                 `json:"name" binding:"required"`
	ExperienceLevel models.ExperienceLevel `json:"experience_level" binding:"required"`
	Description     string                 `json:"description" binding:"required"`
}

type JobInfoService interface {
	Create(ctx context.Context, userID string, in JobInfoInput) (*models.JobInfo, error)
	Update(ctx context.Context, userID, id string, in JobInfoInput) (*models.JobInfo, error)
	GetOwned(ctx context.Context, userID, id string) (*models.JobInfo, error)
	List(ctx context.Context, userID string) ([]models.JobInfo, error)
}

type jobInfoService struct {
	repo  pgrepo.JobInfoRepository
	cache cache.Cache
	ttl   time.Duration
	log   *logrus.Logger
}

func NewJobInfoService(repo pgrepo.JobInfoRepository, c cache.Cache, ttl time.Duration, log *logrus.Logger) JobInfoService {
	if c == nil {
		c = cache.Nop{}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = logrus.New()
	}
	return &jobInfoService{repo: repo, cache: c, ttl: ttl, log: log}
}

func validateJobInfo(op string, in JobInfoInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Description) == "" {
		return utils.E(utils.CodeInvalidArgument, op, "name and description are required", nil)
	}
	if !in.ExperienceLevel.Valid() {
		return utils.E(utils.CodeInvalidArgument, op, "experience_level must be junior, mid-level or senior", nil)
	}
	return nil
}

func (s *jobInfoService) Create(ctx context.Context, userID string, in JobInfoInput) (*models.JobInfo, error) {
	const op = "JobInfoService.Create"

	if userID == "" {
		return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
	}
	if err := validateJobInfo(op, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := &models.JobInfo{
		ID:              uuid.NewString(),
		UserID:          userID,
		Title:           strings.TrimSpace(in.Title),
		Name:            strings.TrimSpace(in.Name),
		ExperienceLevel: in.ExperienceLevel,
		Description:     in.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create job info", err)
	}
	return row, nil
}

func (s *jobInfoService) Update(ctx context.Context, userID, id string, in JobInfoInput) (*models.JobInfo, error) {
	const op = "JobInfoService.Update"

	if err := validateJobInfo(op, in); err != nil {
		return nil, err
	}
	existing, err := s.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	existing.Title = strings.TrimSpace(in.Title)
	existing.Name = strings.TrimSpace(in.Name)
	existing.ExperienceLevel = in.ExperienceLevel
	existing.Description = in.Description
	existing.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update job info", err)
	}
	if err := s.cache.Del(ctx, cache.JobInfoKey(id)); err != nil {
		s.log.WithError(err).WithField("job_info_id", id).Warn("job info cache invalidation failed")
	}
	return existing, nil
}

// GetOwned answers "missing" and "not yours" the same way.
func (s *jobInfoService) GetOwned(ctx context.Context, userID, id string) (*models.JobInfo, error) {
	const op = "JobInfoService.GetOwned"

	if userID == "" || id == "" {
		return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
	}

	var cached models.JobInfo
	hit, err := s.cache.GetJSON(ctx, cache.JobInfoKey(id), &cached)
	if err != nil {
		s.log.WithError(err).WithField("job_info_id", id).Warn("job info cache read failed")
	}
	if hit {
		if cached.UserID != userID {
			return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
		}
		return &cached, nil
	}

	row, err := s.repo.GetOwned(ctx, id, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get job info", err)
	}
	if err := s.cache.SetJSON(ctx, cache.JobInfoKey(id), row, s.ttl); err != nil {
		s.log.WithError(err).WithField("job_info_id", id).Warn("job info cache write failed")
	}
	return row, nil
}

func (s *jobInfoService) List(ctx context.Context, userID string) ([]models.JobInfo, error) {
	const op = "JobInfoService.List"

	if userID == "" {
		return nil, utils.E(utils.CodeForbidden, op, MessageNotPermitted, nil)
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list job infos", err)
	}
	return rows, nil
}
