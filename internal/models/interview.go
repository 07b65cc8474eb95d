package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Interview is one attempt at a live voice interview for a job info.
// ConversationID is assigned by the voice provider once the call connects and is
// write-once. Duration never decreases.
type Interview struct {
	ID             string       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	JobInfoID      string       `gorm:"column:job_info_id;type:uuid;index" json:"job_info_id"`
	ConversationID *string      `gorm:"column:conversation_id;type:varchar" json:"conversation_id"`
	Duration       CallDuration `gorm:"column:duration_seconds;type:bigint;not null;default:0" json:"duration"`
	Feedback       *string      `gorm:"column:feedback;type:text" json:"feedback"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Interview) TableName() string { return "interviews" }

// OwnedInterview is an interview resolved together with its job info owner,
// for authorization.
type OwnedInterview struct {
	Interview
	OwnerID string `gorm:"column:owner_id" json:"-"`
}

// CallDuration is elapsed call time in whole seconds, rendered as HH:MM:SS.
type CallDuration int64

func DurationOf(d time.Duration) CallDuration {
	if d < 0 {
		return 0
	}
	return CallDuration(d / time.Second)
}

func (d CallDuration) String() string {
	s := int64(d)
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

func (d CallDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *CallDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseCallDuration(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// maxCallHours keeps hours*3600+59*60+59 within int64.
const maxCallHours = (math.MaxInt64 - 59*60 - 59) / 3600

// ParseCallDuration accepts HH:MM:SS (hours may exceed two digits).
func ParseCallDuration(s string) (CallDuration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration %q: want HH:MM:SS", s)
	}
	var n [3]int64
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if i == 0 && v > maxCallHours {
			return 0, fmt.Errorf("invalid duration %q: hours out of range", s)
		}
		if i > 0 && v > 59 {
			return 0, fmt.Errorf("invalid duration %q: field out of range", s)
		}
		n[i] = v
	}
	return CallDuration(n[0]*3600 + n[1]*60 + n[2]), nil
}
