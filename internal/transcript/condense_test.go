package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/hiready/internal/models"
)

func TestCondenseAll_Empty(t *testing.T) {
	got := CondenseAll(nil)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCondenseAll_GroupsConsecutiveSpeakers(t *testing.T) {
	in := []Fragment{
		{Role: models.SpeakerUser, Text: "a"},
		{Role: models.SpeakerUser, Text: "b"},
		{Role: models.SpeakerAssistant, Text: "c"},
	}

	got := CondenseAll(in)

	assert.Equal(t, []Turn{
		{IsUser: true, Content: []string{"a", "b"}},
		{IsUser: false, Content: []string{"c"}},
	}, got)
}

func TestCondenseAll_Idempotent(t *testing.T) {
	in := []Fragment{
		{Role: models.SpeakerAssistant, Text: "hello"},
		{Role: models.SpeakerUser, Text: "hi"},
		{Role: models.SpeakerAssistant, Text: "tell me about yourself"},
		{Role: models.SpeakerAssistant, Text: "take your time"},
		{Role: models.SpeakerUser, Text: "sure"},
	}

	first := CondenseAll(in)
	second := CondenseAll(in)

	assert.Equal(t, first, second)
	assert.Len(t, first, 4)
	assert.Equal(t, []string{"tell me about yourself", "take your time"}, first[2].Content)
}

func TestCondense_RecomputeOnGrowingHistory(t *testing.T) {
	history := []Fragment{{Role: models.SpeakerUser, Text: "one"}}
	assert.Len(t, CondenseAll(history), 1)

	history = append(history, Fragment{Role: models.SpeakerUser, Text: "two"})
	got := CondenseAll(history)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"one", "two"}, got[0].Content)
}

func TestCondense_StopsEarly(t *testing.T) {
	in := []Fragment{
		{Role: models.SpeakerUser, Text: "a"},
		{Role: models.SpeakerAssistant, Text: "b"},
		{Role: models.SpeakerUser, Text: "c"},
	}

	n := 0
	for range Condense(in) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestFromRecords(t *testing.T) {
	rows := []models.TranscriptFragment{
		{Role: models.SpeakerAssistant, Content: "q"},
		{Role: models.SpeakerUser, Content: "a"},
	}
	assert.Equal(t, []Fragment{
		{Role: models.SpeakerAssistant, Text: "q"},
		{Role: models.SpeakerUser, Text: "a"},
	}, FromRecords(rows))
}
