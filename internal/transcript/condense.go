// Package transcript groups raw speaker-tagged call fragments into display turns.
package transcript

import (
	"iter"

	"github.com/yoockh/hiready/internal/models"
)

// Fragment is one utterance as delivered by the voice provider.
type Fragment struct {
	Role string `json:"role"` // user|assistant
	Text string `json:"text"`
}

func (f Fragment) IsUser() bool { return f.Role == models.SpeakerUser }

// Turn aggregates consecutive fragments from the same speaker.
type Turn struct {
	IsUser  bool     `json:"is_user"`
	Content []string `json:"content"`
}

// Condense scans fragments once and yields a Turn each time the speaker changes.
// It holds no state between calls, so it can be re-run over a growing history.
func Condense(fragments []Fragment) iter.Seq[Turn] {
	return func(yield func(Turn) bool) {
		var cur *Turn
		for _, f := range fragments {
			if cur != nil && cur.IsUser == f.IsUser() {
				cur.Content = append(cur.Content, f.Text)
				continue
			}
			if cur != nil && !yield(*cur) {
				return
			}
			cur = &Turn{IsUser: f.IsUser(), Content: []string{f.Text}}
		}
		if cur != nil {
			yield(*cur)
		}
	}
}

// CondenseAll collects Condense into a slice. Empty input gives an empty, non-nil slice.
func CondenseAll(fragments []Fragment) []Turn {
	out := []Turn{}
	for t := range Condense(fragments) {
		out = append(out, t)
	}
	return out
}

// FromRecords maps stored fragments, in stored order.
func FromRecords(rows []models.TranscriptFragment) []Fragment {
	out := make([]Fragment, 0, len(rows))
	for _, r := range rows {
		out = append(out, Fragment{Role: r.Role, Text: r.Content})
	}
	return out
}
