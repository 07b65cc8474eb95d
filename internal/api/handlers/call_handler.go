package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/call"
	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/providers/voice"
	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/transcript"
	"github.com/yoockh/hiready/internal/utils"
)

const callIdleTimeout = 2 * time.Minute

type CallHandler struct {
	admission   services.AdmissionService
	jobs        services.JobInfoService
	interviews  services.InterviewService
	transcripts services.TranscriptService
	feedback    call.FeedbackQueue
	voice       *voice.Client
	heartbeat   time.Duration
	log         *logrus.Logger
	upgrader    websocket.Upgrader
}

type CallHandlerDeps struct {
	Admission   services.AdmissionService
	Jobs        services.JobInfoService
	Interviews  services.InterviewService
	Transcripts services.TranscriptService
	Feedback    call.FeedbackQueue // optional
	Voice       *voice.Client
	Heartbeat   time.Duration
	Logger      *logrus.Logger
}

func NewCallHandler(d CallHandlerDeps) *CallHandler {
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return &CallHandler{
		admission:   d.Admission,
		jobs:        d.Jobs,
		interviews:  d.Interviews,
		transcripts: d.Transcripts,
		feedback:    d.Feedback,
		voice:       d.Voice,
		heartbeat:   d.Heartbeat,
		log:         d.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type callClientMsg struct {
	Type string `json:"type"` // start|audio_input|mute|unmute|disconnect
	Data string `json:"data"` // base64 audio for audio_input
}

type callServerMsg struct {
	Type      string               `json:"type"`
	State     string               `json:"state,omitempty"`
	SessionID string               `json:"session_id,omitempty"`
	Message   string               `json:"message,omitempty"`
	Code      utils.Code           `json:"code,omitempty"`
	Turns     []transcript.Turn    `json:"turns,omitempty"`
	Duration  *models.CallDuration `json:"duration,omitempty"`
	Audio     string               `json:"audio,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// sessionWriter binds interview writes to the socket's user.
type sessionWriter struct {
	svc    services.InterviewService
	userID string
}

func (w sessionWriter) SetConversationID(ctx context.Context, sessionID, conversationID string) error {
	return w.svc.SetConversationID(ctx, w.userID, sessionID, conversationID)
}

func (w sessionWriter) RecordDuration(ctx context.Context, sessionID string, d models.CallDuration) error {
	return w.svc.RecordDuration(ctx, w.userID, sessionID, d)
}

func interviewerVariables(job *models.JobInfo, userName string) map[string]string {
	title := job.Title
	if title == "" {
		title = job.Name
	}
	vars := map[string]string{
		"job_title":        title,
		"experience_level": job.ExperienceLevel.Label(),
		"job_description":  job.Description,
	}
	if userName != "" {
		vars["user_name"] = userName
	}
	return vars
}

// Call hosts one live interview per socket. The socket closes after the call
// ends; a retry is a new socket.
func (h *CallHandler) Call(c *gin.Context) {
	const op = "CallHandler.Call"

	id, ok := requireIdentity(c)
	if !ok {
		return
	}
	jobInfoID := c.Param("job_info_id")

	job, err := h.jobs.GetOwned(c.Request.Context(), id.UserID, jobInfoID)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.voice == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "voice provider is not configured", nil))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.log.WithFields(logrus.Fields{"user_id": id.UserID, "job_info_id": jobInfoID})

	var fragments call.FragmentSink
	if h.transcripts != nil {
		fragments = h.transcripts
	}

	m := call.NewMachine(call.Config{
		Admitter: call.AdmitterFunc(func(ctx context.Context) (call.Admission, error) {
			res, err := h.admission.CreateSession(ctx, id, jobInfoID)
			if err != nil {
				return call.Admission{}, err
			}
			return call.Admission{Allowed: res.Allowed, SessionID: res.SessionID, Message: res.Message}, nil
		}),
		Dial:      h.voice.WithVariables(interviewerVariables(job, id.Name)).Dial,
		Sync:      call.NewSynchronizer(sessionWriter{svc: h.interviews, userID: id.UserID}, h.log),
		Fragments: fragments,
		Feedback:  h.feedback,
		Logger:    h.log,
		Heartbeat: h.heartbeat,
	})

	m.SetHooks(call.Hooks{
		OnState: func(s call.State) {
			_ = wc.writeJSON(callServerMsg{Type: "state", State: s.String(), SessionID: m.SessionID()})
		},
		OnDenied: func(msg string) {
			_ = wc.writeJSON(callServerMsg{Type: "denied", Message: msg})
		},
		OnTranscript: func(turns []transcript.Turn) {
			_ = wc.writeJSON(callServerMsg{Type: "transcript", Turns: turns})
		},
		OnDuration: func(d models.CallDuration) {
			_ = wc.writeJSON(callServerMsg{Type: "duration", Duration: &d})
		},
		OnPlayback: func(audio []byte) {
			_ = wc.writeJSON(callServerMsg{Type: "playback", Audio: base64.StdEncoding.EncodeToString(audio)})
		},
		OnError: func(err error) {
			code := utils.CodeInternal
			var ae *utils.AppError
			if errors.As(err, &ae) {
				code = ae.Code
			}
			_ = wc.writeJSON(callServerMsg{Type: "error", Code: code, Message: "could not start the interview"})
		},
	})

	_ = wc.writeJSON(callServerMsg{Type: "state", State: m.State().String()})

	// reader: socket -> machine
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(callIdleTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(callIdleTimeout))
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(callIdleTimeout))

			var msg callClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeJSON(callServerMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "invalid json"})
				continue
			}

			ev, ok := clientEvent(msg)
			if !ok {
				_ = wc.writeJSON(callServerMsg{Type: "error", Code: utils.CodeInvalidArgument, Message: "unknown message type"})
				continue
			}
			if err := m.Post(ctx, ev); err != nil {
				return
			}
		}
	}()

	if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("call ended with error")
	}

	wc.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
		time.Now().Add(time.Second))
	wc.mu.Unlock()
}

func clientEvent(msg callClientMsg) (call.Event, bool) {
	switch msg.Type {
	case "start":
		return call.Event{Kind: call.EventStart}, true
	case "audio_input":
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil || len(pcm) == 0 {
			return call.Event{}, false
		}
		return call.Event{Kind: call.EventAudio, Audio: pcm}, true
	case "mute":
		return call.Event{Kind: call.EventMute, Muted: true}, true
	case "unmute":
		return call.Event{Kind: call.EventMute, Muted: false}, true
	case "disconnect":
		return call.Event{Kind: call.EventDisconnect}, true
	default:
		return call.Event{}, false
	}
}
