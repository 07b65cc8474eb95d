package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/utils"
	"gorm.io/gorm"
)

type JobInfoRepository interface {
	Insert(ctx context.Context, j *models.JobInfo) error
	Update(ctx context.Context, j *models.JobInfo) error
	GetOwned(ctx context.Context, id, userID string) (*models.JobInfo, error)
	ListByUser(ctx context.Context, userID string) ([]models.JobInfo, error)
}

type jobInfoRepo struct {
	db *gorm.DB
}

func NewJobInfoRepo(db *gorm.DB) JobInfoRepository {
	return &jobInfoRepo{db: db}
}

func (r *jobInfoRepo) Insert(ctx context.Context, j *models.JobInfo) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *jobInfoRepo) Update(ctx context.Context, j *models.JobInfo) error {
	res := r.db.WithContext(ctx).
		Model(&models.JobInfo{}).
		Where("id = ? AND user_id = ?", j.ID, j.UserID).
		Updates(map[string]any{
			"title":            j.Title,
			"name":             j.Name,
			"experience_level": j.ExperienceLevel,
			"description":      j.Description,
			"updated_at":       j.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

// GetOwned returns ErrNotFound both when the row is missing and when it belongs to someone else.
func (r *jobInfoRepo) GetOwned(ctx context.Context, id, userID string) (*models.JobInfo, error) {
	var row models.JobInfo
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *jobInfoRepo) ListByUser(ctx context.Context, userID string) ([]models.JobInfo, error) {
	var rows []models.JobInfo
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error
	return rows, err
}
