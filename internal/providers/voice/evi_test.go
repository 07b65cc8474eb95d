package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/hiready/internal/call"
	"github.com/yoockh/hiready/internal/models"
)

type fakeProvider struct {
	t      *testing.T
	script []string

	mu       sync.Mutex
	received []map[string]any
	query    string
	apiKey   string
	gotAudio chan struct{}
}

func (p *fakeProvider) handler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	p.mu.Lock()
	p.query = r.URL.RawQuery
	p.apiKey = r.Header.Get("X-Hume-Api-Key")
	p.mu.Unlock()

	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(data, &m)
			p.mu.Lock()
			p.received = append(p.received, m)
			p.mu.Unlock()
			if m["type"] == "audio_input" {
				select {
				case p.gotAudio <- struct{}{}:
				default:
				}
			}
		}
	}()

	for _, s := range p.script {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
			return
		}
	}

	select {
	case <-p.gotAudio:
	case <-time.After(2 * time.Second):
	}
	time.Sleep(50 * time.Millisecond)
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func newTestClient(t *testing.T, p *fakeProvider) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(p.handler))
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewClient(Config{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey:   "key-1",
		ConfigID: "cfg-1",
		Logger:   log,
	})
}

func collect(t *testing.T, tr call.Transport) []call.Event {
	t.Helper()
	var out []call.Event
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("transport did not finish")
			return out
		}
	}
}

func TestConn_TranslatesProviderMessages(t *testing.T) {
	p := &fakeProvider{
		t:        t,
		gotAudio: make(chan struct{}, 1),
		script: []string{
			`{"type":"chat_metadata","chat_id":"conv-1","chat_group_id":"g"}`,
			`{"type":"assistant_message","message":{"role":"assistant","content":"Tell me about yourself."}}`,
			`{"type":"user_message","interim":true,"message":{"role":"user","content":"I am"}}`,
			`{"type":"user_message","message":{"role":"user","content":"I am a backend engineer."}}`,
			`{"type":"audio_output","data":"AQID"}`,
			`not json`,
		},
	}
	c := newTestClient(t, p)

	tr, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer tr.Close()

	require.NoError(t, tr.SendAudio(context.Background(), []byte{9, 9}))
	events := collect(t, tr)

	kinds := make([]call.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []call.EventKind{
		call.EventReady,
		call.EventConversation,
		call.EventFragment,
		call.EventFragment,
		call.EventPlayback,
		call.EventClosed,
	}, kinds)

	assert.Equal(t, "conv-1", events[1].ConversationID)
	assert.Equal(t, models.SpeakerAssistant, events[2].Fragment.Role)
	assert.Equal(t, models.SpeakerUser, events[3].Fragment.Role)
	assert.Equal(t, "I am a backend engineer.", events[3].Fragment.Text)
	assert.Equal(t, []byte{1, 2, 3}, events[4].Audio)
	assert.NoError(t, events[5].Err)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, "config_id=cfg-1", p.query)
	assert.Equal(t, "key-1", p.apiKey)
	require.Len(t, p.received, 1)
	assert.Equal(t, "audio_input", p.received[0]["type"])
	assert.Equal(t, "CQk=", p.received[0]["data"])
}

func TestConn_MutedDropsAudio(t *testing.T) {
	p := &fakeProvider{t: t, gotAudio: make(chan struct{}, 1)}
	c := newTestClient(t, p)

	tr, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer tr.Close()

	ctx := context.Background()
	require.NoError(t, tr.SetMuted(ctx, true))
	require.NoError(t, tr.SendAudio(ctx, []byte{1}))
	require.NoError(t, tr.SetMuted(ctx, false))
	require.NoError(t, tr.SendAudio(ctx, []byte{2}))

	collect(t, tr)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.received, 1)
	assert.Equal(t, "Ag==", p.received[0]["data"])
}

func TestConn_ProviderErrorCloses(t *testing.T) {
	p := &fakeProvider{
		t:        t,
		gotAudio: make(chan struct{}, 1),
		script:   []string{`{"type":"error","code":"E0100","slug":"bad","message":"quota exceeded"}`},
	}
	c := newTestClient(t, p)

	tr, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer tr.Close()

	events := collect(t, tr)
	require.Len(t, events, 1)
	assert.Equal(t, call.EventClosed, events[0].Kind)
	require.Error(t, events[0].Err)
	assert.Contains(t, events[0].Err.Error(), "quota exceeded")
}

func TestClient_DialRequiresURL(t *testing.T) {
	_, err := NewClient(Config{}).Dial(context.Background())
	require.Error(t, err)
}

func TestClient_SendsVariables(t *testing.T) {
	p := &fakeProvider{t: t, gotAudio: make(chan struct{}, 1)}
	c := newTestClient(t, p).WithVariables(map[string]string{"job_title": "SRE"})

	tr, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer tr.Close()
	collect(t, tr)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.received)
	assert.Equal(t, "session_settings", p.received[0]["type"])
}
