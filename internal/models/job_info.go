package models

import "time"

type ExperienceLevel string

const (
	ExperienceJunior   ExperienceLevel = "junior"
	ExperienceMidLevel ExperienceLevel = "mid-level"
	ExperienceSenior   ExperienceLevel = "senior"
)

func (l ExperienceLevel) Valid() bool {
	switch l {
	case ExperienceJunior, ExperienceMidLevel, ExperienceSenior:
		return true
	}
	return false
}

// Label is the display form used in prompts.
func (l ExperienceLevel) Label() string {
	switch l {
	case ExperienceJunior:
		return "Junior"
	case ExperienceMidLevel:
		return "Mid-Level"
	case ExperienceSenior:
		return "Senior"
	default:
		return string(l)
	}
}

// JobInfo is the job description a user prepares against. Interviews hang off it.
type JobInfo struct {
	ID              string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID          string          `gorm:"column:user_id;type:varchar;index" json:"user_id"`
	Title           string          `gorm:"column:title;type:varchar" json:"title"`
	Name            string          `gorm:"column:name;type:varchar" json:"name"`
	ExperienceLevel ExperienceLevel `gorm:"column:experience_level;type:varchar" json:"experience_level"`
	Description     string          `gorm:"column:description;type:text" json:"description"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (JobInfo) TableName() string { return "job_infos" }
