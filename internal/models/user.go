package models

import (
	"time"

	"github.com/lib/pq"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Entitlement flags granted by a plan.
const (
	EntitlementUnlimitedInterviews = "unlimited_interviews"
	EntitlementSingleInterview     = "1_interview"
)

// User mirrors the identity provider's user record. Rows are upserted on sign-in;
// entitlements may also be granted here by an admin.
type User struct {
	ID           string         `gorm:"column:id;type:varchar;primaryKey" json:"id"`
	Email        string         `gorm:"column:email;type:varchar;uniqueIndex" json:"email"`
	Name         string         `gorm:"column:name;type:varchar" json:"name"`
	ImageURL     string         `gorm:"column:image_url;type:varchar" json:"image_url"`
	Entitlements pq.StringArray `gorm:"column:entitlements;type:text[]" json:"entitlements"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Identity is the authenticated caller as resolved from the bearer token.
type Identity struct {
	UserID       string
	Name         string
	Role         UserRole
	Entitlements []string
}

func (i *Identity) Has(flag string) bool {
	if i == nil {
		return false
	}
	for _, e := range i.Entitlements {
		if e == flag {
			return true
		}
	}
	return false
}
