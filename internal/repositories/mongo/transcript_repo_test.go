package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yoockh/hiready/internal/models"
)

func TestListOptions_NoLimitReadsEverything(t *testing.T) {
	assert.Nil(t, listOptions(0).Limit)
	assert.Nil(t, listOptions(-1).Limit)

	opts := listOptions(25)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(25), *opts.Limit)
}

func TestTranscriptRepo_ListsLongCallsInFull(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background())

	db := client.Database("hiready_test_" + uuid.NewString()[:8])
	defer db.Drop(context.Background())

	repo := NewTranscriptRepo(db)
	interviewID := uuid.NewString()
	const n = 1200
	for i := 1; i <= n; i++ {
		require.NoError(t, repo.Append(ctx, &models.TranscriptFragment{
			InterviewID: interviewID,
			Seq:         int64(i),
			Role:        models.SpeakerUser,
			Content:     "x",
		}))
	}

	rows, err := repo.ListByInterview(ctx, interviewID, 0)
	require.NoError(t, err)
	require.Len(t, rows, n)
	assert.Equal(t, int64(n), rows[n-1].Seq)
}
