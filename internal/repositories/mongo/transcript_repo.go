package mongo

import (
	"context"
	"time"

	"github.com/yoockh/hiready/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TranscriptRepository interface {
	Append(ctx context.Context, f *models.TranscriptFragment) error
	AttachConversation(ctx context.Context, interviewID, conversationID string) error
	ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.TranscriptFragment, error)
}

type transcriptRepo struct {
	col *mongo.Collection
}

func NewTranscriptRepo(db *mongo.Database) TranscriptRepository {
	return &transcriptRepo{col: db.Collection("transcript_fragments")}
}

func (r *transcriptRepo) Append(ctx context.Context, f *models.TranscriptFragment) error {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, f)
	return err
}

// AttachConversation stamps fragments recorded before the provider assigned the
// conversation id.
func (r *transcriptRepo) AttachConversation(ctx context.Context, interviewID, conversationID string) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{"interview_id": interviewID, "conversation_id": bson.M{"$in": bson.A{nil, ""}}},
		bson.M{"$set": bson.M{"conversation_id": conversationID}},
	)
	return err
}

// ListByInterview returns fragments in seq order. A limit <= 0 returns all of them.
func (r *transcriptRepo) ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.TranscriptFragment, error) {
	cur, err := r.col.Find(ctx, bson.M{"interview_id": interviewID}, listOptions(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.TranscriptFragment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func listOptions(limit int64) *options.FindOptions {
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetBatchSize(500)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}
