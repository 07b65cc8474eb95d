package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// TranscriptFragment is one speaker-tagged utterance observed during a call.
type TranscriptFragment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID    string             `bson:"interview_id" json:"interview_id"`
	ConversationID string             `bson:"conversation_id,omitempty" json:"conversation_id,omitempty"`
	Seq            int64              `bson:"seq" json:"seq"`
	Role           string             `bson:"role" json:"role"` // user|assistant
	Content        string             `bson:"content" json:"content"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`

	ExpiresAt time.Time `bson:"expires_at" json:"-"` // for TTL index
}
