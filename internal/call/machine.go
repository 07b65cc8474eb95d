// Package call drives one live voice interview from start to close and keeps
// the interview row in step with it.
package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/hiready/internal/models"
	"github.com/yoockh/hiready/internal/transcript"
)

var (
	ErrInvalidTransition = errors.New("call: event not valid in current state")
	ErrClosed            = errors.New("call: machine closed")
)

const DefaultHeartbeat = 10 * time.Second

// Hooks are invoked from the machine's goroutine.
type Hooks struct {
	OnState      func(State)
	OnDenied     func(message string)
	OnTranscript func([]transcript.Turn)
	OnDuration   func(models.CallDuration)
	OnPlayback   func(audio []byte)
	OnError      func(error)
}

type Config struct {
	Admitter  Admitter
	Dial      DialFunc
	Sync      *Synchronizer
	Fragments FragmentSink  // optional
	Feedback  FeedbackQueue // optional
	Hooks     Hooks
	Logger    *logrus.Logger

	Heartbeat time.Duration
	Clock     func() time.Time
	QueueSize int
}

// Machine is the call state machine. All transitions happen in Dispatch, which
// must only be called from one goroutine (normally Run). Post is safe from any
// goroutine.
type Machine struct {
	cfg    Config
	log    *logrus.Entry
	events chan Event
	done   chan struct{}

	mu    sync.RWMutex
	state State

	sessionID  string
	transport  Transport
	cancelDial context.CancelFunc
	activeAt   time.Time
	elapsed    time.Duration
	seq        int64
	fragments  []transcript.Fragment

	ticker *time.Ticker
	tick   <-chan time.Time
}

func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Machine{
		cfg:    cfg,
		log:    logrus.NewEntry(cfg.Logger),
		events: make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		state:  StateIdle,
	}
}

func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Machine) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

// SetHooks replaces the hooks. Call it before Run.
func (m *Machine) SetHooks(h Hooks) { m.cfg.Hooks = h }

// Done is closed once the machine reaches Closed.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Post queues an event for Run.
func (m *Machine) Post(ctx context.Context, ev Event) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes queued events and heartbeat ticks until the machine closes or
// ctx ends. A cancelled ctx is treated as a user disconnect.
func (m *Machine) Run(ctx context.Context) error {
	defer m.stopHeartbeat()

	for m.State() != StateClosed {
		select {
		case <-ctx.Done():
			if s := m.State(); s == StateConnecting || s == StateActive {
				m.dispatchLogged(context.WithoutCancel(ctx), Event{Kind: EventDisconnect})
			}
			return ctx.Err()
		case ev := <-m.events:
			m.dispatchLogged(ctx, ev)
		case <-m.tick:
			m.dispatchLogged(ctx, Event{Kind: EventHeartbeat})
		}
	}
	return nil
}

func (m *Machine) dispatchLogged(ctx context.Context, ev Event) {
	if err := m.Dispatch(ctx, ev); err != nil {
		entry := m.log.WithError(err).WithFields(logrus.Fields{
			"event": ev.Kind.String(),
			"state": m.State().String(),
		})
		if errors.Is(err, ErrInvalidTransition) {
			entry.Debug("call event ignored")
			return
		}
		entry.Warn("call event failed")
	}
}

// Dispatch applies one event.
func (m *Machine) Dispatch(ctx context.Context, ev Event) error {
	switch m.State() {
	case StateIdle:
		if ev.Kind == EventStart {
			return m.start(ctx)
		}
	case StateConnecting:
		switch ev.Kind {
		case EventDialed:
			m.transport = ev.transport
			return nil
		case EventReady:
			m.activate()
			return nil
		case EventConversation:
			return m.conversation(ctx, ev.ConversationID)
		case EventDisconnect, EventClosed:
			m.close(ctx, ev.Err)
			return nil
		}
	case StateActive:
		switch ev.Kind {
		case EventConversation:
			return m.conversation(ctx, ev.ConversationID)
		case EventFragment:
			return m.fragment(ctx, ev.Fragment)
		case EventAudio:
			return m.transport.SendAudio(ctx, ev.Audio)
		case EventPlayback:
			if m.cfg.Hooks.OnPlayback != nil {
				m.cfg.Hooks.OnPlayback(ev.Audio)
			}
			return nil
		case EventMute:
			return m.transport.SetMuted(ctx, ev.Muted)
		case EventHeartbeat:
			return m.heartbeat(ctx)
		case EventDisconnect, EventClosed:
			m.close(ctx, ev.Err)
			return nil
		}
	case StateClosed:
	}

	// a connection finished dialing after the call ended
	if ev.Kind == EventDialed && ev.transport != nil {
		_ = ev.transport.Close()
	}
	return ErrInvalidTransition
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()

	m.log.WithField("state", s.String()).Debug("call state changed")
	if m.cfg.Hooks.OnState != nil {
		m.cfg.Hooks.OnState(s)
	}
}

func (m *Machine) start(ctx context.Context) error {
	res, err := m.cfg.Admitter.Admit(ctx)
	if err != nil {
		if m.cfg.Hooks.OnError != nil {
			m.cfg.Hooks.OnError(err)
		}
		return err
	}
	if !res.Allowed || res.SessionID == "" {
		m.log.WithField("message", res.Message).Info("call start denied")
		if m.cfg.Hooks.OnDenied != nil {
			m.cfg.Hooks.OnDenied(res.Message)
		}
		return nil
	}

	m.mu.Lock()
	m.sessionID = res.SessionID
	m.mu.Unlock()
	m.cfg.Sync.Bind(res.SessionID)
	m.log = m.log.WithField("session_id", res.SessionID)

	dialCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelDial = cancel
	m.setState(StateConnecting)

	go m.connect(dialCtx)
	return nil
}

// connect dials and then forwards transport events until the transport or the
// machine is done. The dialed transport is closed when connect returns.
func (m *Machine) connect(ctx context.Context) {
	t, err := m.cfg.Dial(ctx)
	if err != nil {
		_ = m.Post(ctx, Event{Kind: EventClosed, Err: err})
		return
	}
	// the machine may close before it consumes EventDialed
	defer t.Close()
	if err := m.Post(ctx, Event{Kind: EventDialed, transport: t}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-t.Events():
			if !ok {
				_ = m.Post(ctx, Event{Kind: EventClosed})
				return
			}
			if err := m.Post(ctx, ev); err != nil {
				return
			}
		case <-m.done:
			return
		}
	}
}

func (m *Machine) activate() {
	m.activeAt = m.cfg.Clock()
	m.ticker = time.NewTicker(m.cfg.Heartbeat)
	m.tick = m.ticker.C
	m.setState(StateActive)
}

func (m *Machine) stopHeartbeat() {
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	m.tick = nil
}

func (m *Machine) observe() models.CallDuration {
	if !m.activeAt.IsZero() {
		if d := m.cfg.Clock().Sub(m.activeAt); d > m.elapsed {
			m.elapsed = d
		}
	}
	return models.DurationOf(m.elapsed)
}

func (m *Machine) heartbeat(ctx context.Context) error {
	d := m.observe()
	if m.cfg.Hooks.OnDuration != nil {
		m.cfg.Hooks.OnDuration(d)
	}
	return m.cfg.Sync.Heartbeat(ctx, d)
}

func (m *Machine) conversation(ctx context.Context, conversationID string) error {
	if err := m.cfg.Sync.SyncConversationID(ctx, conversationID); err != nil {
		return err
	}
	if a, ok := m.cfg.Fragments.(ConversationAttacher); ok && m.seq > 0 {
		return a.AttachConversation(ctx, m.sessionID, conversationID)
	}
	return nil
}

func (m *Machine) fragment(ctx context.Context, f transcript.Fragment) error {
	m.fragments = append(m.fragments, f)
	m.seq++
	if m.cfg.Hooks.OnTranscript != nil {
		m.cfg.Hooks.OnTranscript(transcript.CondenseAll(m.fragments))
	}
	if m.cfg.Fragments == nil {
		return nil
	}
	return m.cfg.Fragments.Record(ctx, m.sessionID, m.cfg.Sync.ConversationID(), m.seq, f)
}

func (m *Machine) close(ctx context.Context, cause error) {
	m.stopHeartbeat()
	d := m.observe()

	if m.cancelDial != nil {
		m.cancelDial()
	}
	if m.transport != nil {
		_ = m.transport.Close()
	}

	entry := m.log.WithField("duration", d.String())
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("call closed")

	if m.sessionID != "" {
		_ = m.cfg.Sync.Flush(ctx, d)
		if m.cfg.Feedback != nil && m.cfg.Sync.ConversationID() != "" {
			if err := m.cfg.Feedback.Enqueue(ctx, m.sessionID); err != nil {
				m.log.WithError(err).Warn("feedback enqueue failed")
			}
		}
	}

	m.setState(StateClosed)
	close(m.done)
}
