package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/utils"
	"gorm.io/gorm"
)

type InterviewRepository interface {
	Insert(ctx context.Context, iv *models.Interview) error
	GetOwned(ctx context.Context, id string) (*models.OwnedInterview, error)
	ListByJobInfo(ctx context.Context, jobInfoID string) ([]models.Interview, error)
	SetConversationID(ctx context.Context, id, conversationID string) error
	AdvanceDuration(ctx context.Context, id string, d models.CallDuration) error
	SetFeedback(ctx context.Context, id, feedback string) error
	CountActivatedByOwner(ctx context.Context, userID string) (int64, error)
}

type interviewRepo struct {
	db *gorm.DB
}

func NewInterviewRepo(db *gorm.DB) InterviewRepository {
	return &interviewRepo{db: db}
}

func (r *interviewRepo) Insert(ctx context.Context, iv *models.Interview) error {
	return r.db.WithContext(ctx).Create(iv).Error
}

// GetOwned loads the interview together with the user owning its job info.
func (r *interviewRepo) GetOwned(ctx context.Context, id string) (*models.OwnedInterview, error) {
	var row models.OwnedInterview
	err := r.db.WithContext(ctx).
		Table("interviews").
		Select("interviews.*, job_infos.user_id AS owner_id").
		Joins("JOIN job_infos ON job_infos.id = interviews.job_info_id").
		Where("interviews.id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}

func (r *interviewRepo) ListByJobInfo(ctx context.Context, jobInfoID string) ([]models.Interview, error) {
	var rows []models.Interview
	err := r.db.WithContext(ctx).
		Where("job_info_id = ?", jobInfoID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// SetConversationID assigns the provider conversation id once. Writing the same
// value again is a no-op; a different value is ErrConflict.
func (r *interviewRepo) SetConversationID(ctx context.Context, id, conversationID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ? AND conversation_id IS NULL", id).
		Updates(map[string]any{
			"conversation_id": conversationID,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	cur, err := r.take(ctx, id)
	if err != nil {
		return err
	}
	if cur.ConversationID != nil && *cur.ConversationID == conversationID {
		return nil
	}
	return utils.ErrConflict
}

// AdvanceDuration only ever raises the stored duration; smaller or equal values
// are dropped so reordered writes cannot move it backwards.
func (r *interviewRepo) AdvanceDuration(ctx context.Context, id string, d models.CallDuration) error {
	res := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ? AND duration_seconds < ?", id, int64(d)).
		Updates(map[string]any{
			"duration_seconds": int64(d),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	_, err := r.take(ctx, id)
	return err
}

// SetFeedback writes feedback once; a second write is ErrConflict.
func (r *interviewRepo) SetFeedback(ctx context.Context, id, feedback string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Where("id = ? AND feedback IS NULL", id).
		Updates(map[string]any{
			"feedback":   feedback,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.take(ctx, id); err != nil {
		return err
	}
	return utils.ErrConflict
}

// CountActivatedByOwner counts the user's interviews that reached a live call.
func (r *interviewRepo) CountActivatedByOwner(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Interview{}).
		Joins("JOIN job_infos ON job_infos.id = interviews.job_info_id").
		Where("job_infos.user_id = ? AND interviews.conversation_id IS NOT NULL", userID).
		Count(&n).Error
	return n, err
}

func (r *interviewRepo) take(ctx context.Context, id string) (*models.Interview, error) {
	var row models.Interview
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
