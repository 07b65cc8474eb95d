// Package voice connects calls to an EVI-style empathic voice provider over a
// websocket.
package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/call"
	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/transcript"
)

type Config struct {
	URL      string
	APIKey   string
	ConfigID string

	// Variables are passed to the provider's prompt template.
	Variables map[string]string

	HandshakeTimeout time.Duration
	Logger           *logrus.Logger
}

type Client struct {
	cfg    Config
	dialer websocket.Dialer
}

func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Client{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

// WithVariables returns a client that sends vars on connect.
func (c *Client) WithVariables(vars map[string]string) *Client {
	cp := *c
	cp.cfg.Variables = vars
	return &cp
}

type serverMsg struct {
	Type    string          `json:"type"`
	ChatID  string          `json:"chat_id"`
	Interim bool            `json:"interim"`
	Data    string          `json:"data"`
	Code    string          `json:"code"`
	Slug    string          `json:"slug"`
	Message json.RawMessage `json:"message"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type audioInput struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type sessionSettings struct {
	Type      string            `json:"type"`
	Variables map[string]string `json:"variables"`
}

// Dial opens a provider connection. The call is Ready once the provider
// sends its chat metadata.
func (c *Client) Dial(ctx context.Context) (call.Transport, error) {
	if c.cfg.URL == "" {
		return nil, errors.New("voice: provider url is not configured")
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("voice: parse url: %w", err)
	}
	if c.cfg.ConfigID != "" {
		q := u.Query()
		q.Set("config_id", c.cfg.ConfigID)
		u.RawQuery = q.Encode()
	}

	hdr := http.Header{}
	if c.cfg.APIKey != "" {
		hdr.Set("X-Hume-Api-Key", c.cfg.APIKey)
	}

	ws, resp, err := c.dialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("voice: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("voice: dial: %w", err)
	}

	conn := &Conn{
		ws:     ws,
		log:    c.cfg.Logger,
		events: make(chan call.Event, 64),
		done:   make(chan struct{}),
	}
	if len(c.cfg.Variables) > 0 {
		if err := conn.writeJSON(sessionSettings{Type: "session_settings", Variables: c.cfg.Variables}); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("voice: session settings: %w", err)
		}
	}
	go conn.readLoop()
	return conn, nil
}

// Conn is one provider connection.
type Conn struct {
	ws  *websocket.Conn
	log *logrus.Logger

	events chan call.Event
	done   chan struct{}

	writeMu   sync.Mutex
	muted     atomic.Bool
	closeOnce sync.Once
}

func (c *Conn) Events() <-chan call.Event { return c.events }

// SendAudio forwards microphone audio. Audio is dropped while muted.
func (c *Conn) SendAudio(_ context.Context, pcm []byte) error {
	if c.muted.Load() || len(pcm) == 0 {
		return nil
	}
	return c.writeJSON(audioInput{Type: "audio_input", Data: base64.StdEncoding.EncodeToString(pcm)})
}

func (c *Conn) SetMuted(_ context.Context, muted bool) error {
	c.muted.Store(muted)
	return nil
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *Conn) emit(ev call.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Conn) readLoop() {
	defer close(c.events)

	ready := false
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			c.emit(call.Event{Kind: call.EventClosed, Err: err})
			return
		}

		var msg serverMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.WithError(err).Warn("voice: undecodable provider message")
			continue
		}

		switch msg.Type {
		case "chat_metadata":
			if !ready {
				ready = true
				if !c.emit(call.Event{Kind: call.EventReady}) {
					return
				}
			}
			if msg.ChatID != "" && !c.emit(call.Event{Kind: call.EventConversation, ConversationID: msg.ChatID}) {
				return
			}

		case "user_message", "assistant_message":
			if msg.Interim {
				continue
			}
			var cm chatMessage
			if err := json.Unmarshal(msg.Message, &cm); err != nil || cm.Content == "" {
				continue
			}
			role := models.SpeakerAssistant
			if msg.Type == "user_message" {
				role = models.SpeakerUser
			}
			if !c.emit(call.Event{Kind: call.EventFragment, Fragment: transcript.Fragment{Role: role, Text: cm.Content}}) {
				return
			}

		case "audio_output":
			pcm, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				continue
			}
			if !c.emit(call.Event{Kind: call.EventPlayback, Audio: pcm}) {
				return
			}

		case "error":
			var text string
			_ = json.Unmarshal(msg.Message, &text)
			c.emit(call.Event{Kind: call.EventClosed, Err: fmt.Errorf("voice: provider error %s: %s", msg.Code, text)})
			return
		}
	}
}
