// Package playback wraps a waveform widget in a small state object so callers can
// ask "is it ready, is it playing" without tracking widget callbacks themselves.
package playback

import (
	"math"
	"sync"

	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// Event is a callback name the widget reports.
type Event string

const (
	EventLoading Event = "loading"
	EventReady   Event = "ready"
	EventPlay    Event = "play"
	EventPause   Event = "pause"
	EventFinish  Event = "finish"
	EventError   Event = "error"
	EventDestroy Event = "destroy"
)

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
)

var (
	ErrNotReady = errors.Wrapf(errors.ErrInvalidState, "player not ready")
	ErrClosed   = errors.Wrapf(errors.ErrInvalidState, "player closed")
)

// Widget is the waveform renderer. It reports what actually happened through the
// handler given to OnEvent; the player only moves state on those reports.
type Widget interface {
	OnEvent(handler func(ev Event, err error))
	Load(url string) error
	Play() error
	Pause() error
	SeekTo(fraction float64) error
	SetPlaybackRate(rate float64) error
	// Position returns seconds played and total seconds.
	Position() (current, duration float64)
	Destroy()
}

// Transition is delivered to subscribers after every state change.
type Transition struct {
	From  State
	To    State
	Event Event
	Err   error
}

type Player struct {
	widget Widget
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	url     string
	lastErr error
	closed  bool
	nextID  int
	subs    map[int]func(Transition)
}

type PlayerOption func(*Player)

func WithLogger(logger zerolog.Logger) PlayerOption {
	return func(p *Player) {
		p.log = logger
	}
}

func NewPlayer(widget Widget, options ...PlayerOption) *Player {
	p := &Player{
		widget: widget,
		log:    log.Logger,
		state:  StateIdle,
		subs:   map[int]func(Transition){},
	}
	for _, opt := range options {
		opt(p)
	}
	widget.OnEvent(p.handle)
	return p
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) IsReady() bool {
	s := p.State()
	return s == StateReady || s == StatePlaying || s == StatePaused
}

func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

// Err returns the error carried by the last "error" event, if any.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// URL returns the source last passed to Load.
func (p *Player) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Subscribe registers fn for state changes and returns its cancel func.
func (p *Player) Subscribe(fn func(Transition)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Load points the widget at a new source. Any previous source is dropped.
func (p *Player) Load(url string) error {
	if url == "" {
		return errors.Wrapf(errors.ErrInvalidInput, "load: empty url")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.url = url
	p.lastErr = nil
	notify := p.setLocked(StateLoading, EventLoading, nil)
	p.mu.Unlock()
	notify()

	if err := p.widget.Load(url); err != nil {
		p.handle(EventError, err)
		return errors.Wrapf(err, "load %s", url)
	}
	return nil
}

func (p *Player) Play() error {
	s, err := p.commandState()
	if err != nil {
		return err
	}
	switch s {
	case StatePlaying:
		return nil
	case StateReady, StatePaused:
		return p.widget.Play()
	}
	return ErrNotReady
}

func (p *Player) Pause() error {
	s, err := p.commandState()
	if err != nil {
		return err
	}
	switch s {
	case StatePlaying:
		return p.widget.Pause()
	case StateReady, StatePaused:
		return nil
	}
	return ErrNotReady
}

// Toggle plays when stopped and pauses when playing.
func (p *Player) Toggle() error {
	s, err := p.commandState()
	if err != nil {
		return err
	}
	switch s {
	case StatePlaying:
		return p.widget.Pause()
	case StateReady, StatePaused:
		return p.widget.Play()
	}
	return ErrNotReady
}

// Seek jumps to fraction of the track, 0 the start and 1 the end.
func (p *Player) Seek(fraction float64) error {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return errors.Wrapf(errors.ErrInvalidInput, "seek fraction %v outside [0,1]", fraction)
	}
	s, err := p.commandState()
	if err != nil {
		return err
	}
	if s == StateIdle || s == StateLoading {
		return ErrNotReady
	}
	return p.widget.SeekTo(fraction)
}

func (p *Player) SetSpeed(rate float64) error {
	if math.IsNaN(rate) || rate < MinSpeed || rate > MaxSpeed {
		return errors.Wrapf(errors.ErrInvalidInput, "speed %v outside [%v,%v]", rate, MinSpeed, MaxSpeed)
	}
	if _, err := p.commandState(); err != nil {
		return err
	}
	return p.widget.SetPlaybackRate(rate)
}

// Progress returns the played fraction in [0,1]; 0 before the track is ready.
func (p *Player) Progress() float64 {
	if !p.IsReady() {
		return 0
	}
	current, duration := p.widget.Position()
	if duration <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, current/duration))
}

// Close destroys the widget. Further commands return ErrClosed.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.widget.Destroy()
	p.handle(EventDestroy, nil)
}

func (p *Player) commandState() (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return p.state, ErrClosed
	}
	return p.state, nil
}

// handle applies a widget report. Reports that make no sense in the current state
// (a late "ready" after destroy, "pause" while loading) are ignored.
func (p *Player) handle(ev Event, err error) {
	p.mu.Lock()
	from := p.state
	to := from
	switch ev {
	case EventLoading:
		if !p.closed {
			to = StateLoading
		}
	case EventReady:
		if from == StateLoading {
			to = StateReady
		}
	case EventPlay:
		if from == StateReady || from == StatePaused {
			to = StatePlaying
		}
	case EventPause:
		if from == StatePlaying {
			to = StatePaused
		}
	case EventFinish:
		if from == StatePlaying || from == StatePaused {
			to = StateReady
		}
	case EventError:
		p.lastErr = err
		to = StateIdle
	case EventDestroy:
		to = StateIdle
	}
	notify := p.setLocked(to, ev, err)
	p.mu.Unlock()
	notify()
}

// setLocked moves to state and returns the subscriber fan-out to run after unlocking.
func (p *Player) setLocked(to State, ev Event, err error) func() {
	from := p.state
	if from == to {
		return func() {}
	}
	p.state = to
	p.log.Debug().Str("from", string(from)).Str("to", string(to)).Str("event", string(ev)).Msg("playback state")

	subs := make([]func(Transition), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	tr := Transition{From: from, To: to, Event: ev, Err: err}
	return func() {
		for _, fn := range subs {
			fn(tr)
		}
	}
}
