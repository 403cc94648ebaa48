package playback_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/lipvoice/voice-client/internal/errors"
	"github.com/lipvoice/voice-client/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeWidget answers commands the way a waveform widget would: by reporting
// play/pause back through the event handler.
type fakeWidget struct {
	mu        sync.Mutex
	handler   func(playback.Event, error)
	calls     []string
	loadErr   error
	current   float64
	duration  float64
	destroyed bool
}

func (w *fakeWidget) OnEvent(handler func(playback.Event, error)) {
	w.handler = handler
}

func (w *fakeWidget) record(call string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, call)
}

func (w *fakeWidget) Load(url string) error {
	w.record("load " + url)
	return w.loadErr
}

func (w *fakeWidget) Play() error {
	w.record("play")
	w.handler(playback.EventPlay, nil)
	return nil
}

func (w *fakeWidget) Pause() error {
	w.record("pause")
	w.handler(playback.EventPause, nil)
	return nil
}

func (w *fakeWidget) SeekTo(fraction float64) error {
	w.record(fmt.Sprintf("seek %.2f", fraction))
	w.current = fraction * w.duration
	return nil
}

func (w *fakeWidget) SetPlaybackRate(rate float64) error {
	w.record(fmt.Sprintf("rate %.1f", rate))
	return nil
}

func (w *fakeWidget) Position() (float64, float64) {
	return w.current, w.duration
}

func (w *fakeWidget) Destroy() {
	w.record("destroy")
	w.destroyed = true
}

func (w *fakeWidget) emit(ev playback.Event, err error) {
	w.handler(ev, err)
}

func newPlayer(t *testing.T) (*playback.Player, *fakeWidget) {
	t.Helper()
	w := &fakeWidget{duration: 10}
	return playback.NewPlayer(w, playback.WithLogger(zerolog.Nop())), w
}

func TestLifecycle(t *testing.T) {
	p, w := newPlayer(t)
	var seen []playback.State
	p.Subscribe(func(tr playback.Transition) { seen = append(seen, tr.To) })

	require.Equal(t, playback.StateIdle, p.State())
	require.NoError(t, p.Load("https://cdn.example.com/a.mp3"))
	require.Equal(t, playback.StateLoading, p.State())

	w.emit(playback.EventReady, nil)
	require.True(t, p.IsReady())
	require.False(t, p.IsPlaying())

	require.NoError(t, p.Toggle())
	require.True(t, p.IsPlaying())
	require.NoError(t, p.Toggle())
	require.Equal(t, playback.StatePaused, p.State())
	require.NoError(t, p.Play())
	w.emit(playback.EventFinish, nil)
	require.Equal(t, playback.StateReady, p.State())

	require.Equal(t, []playback.State{
		playback.StateLoading, playback.StateReady, playback.StatePlaying,
		playback.StatePaused, playback.StatePlaying, playback.StateReady,
	}, seen)
	require.Equal(t, []string{"load https://cdn.example.com/a.mp3", "play", "pause", "play"}, w.calls)
}

func TestCommandsBeforeReady(t *testing.T) {
	p, w := newPlayer(t)

	require.ErrorIs(t, p.Play(), playback.ErrNotReady)
	require.ErrorIs(t, p.Toggle(), playback.ErrNotReady)
	require.ErrorIs(t, p.Pause(), playback.ErrNotReady)
	require.ErrorIs(t, p.Seek(0.5), playback.ErrNotReady)

	require.NoError(t, p.Load("a.mp3"))
	require.ErrorIs(t, p.Play(), playback.ErrNotReady)
	require.Equal(t, []string{"load a.mp3"}, w.calls)
	require.Zero(t, p.Progress())
}

func TestSeekAndProgress(t *testing.T) {
	p, w := newPlayer(t)
	require.NoError(t, p.Load("a.mp3"))
	w.emit(playback.EventReady, nil)

	require.NoError(t, p.Seek(0.25))
	require.InDelta(t, 0.25, p.Progress(), 1e-9)
	require.NoError(t, p.Seek(1))
	require.InDelta(t, 1, p.Progress(), 1e-9)

	for _, bad := range []float64{-0.1, 1.01} {
		require.ErrorIs(t, p.Seek(bad), errors.ErrInvalidInput)
	}
	require.ErrorIs(t, p.SetSpeed(3), errors.ErrInvalidInput)
	require.NoError(t, p.SetSpeed(1.5))
	require.Contains(t, w.calls, "rate 1.5")
}

func TestWidgetError(t *testing.T) {
	t.Run("reported by the widget", func(t *testing.T) {
		p, w := newPlayer(t)
		require.NoError(t, p.Load("a.mp3"))
		boom := fmt.Errorf("decode failed")
		w.emit(playback.EventError, boom)

		require.Equal(t, playback.StateIdle, p.State())
		require.ErrorIs(t, p.Err(), boom)
		require.ErrorIs(t, p.Play(), playback.ErrNotReady)
	})

	t.Run("load rejected", func(t *testing.T) {
		p, w := newPlayer(t)
		w.loadErr = fmt.Errorf("bad url")
		require.Error(t, p.Load("a.mp3"))
		require.Equal(t, playback.StateIdle, p.State())
		require.ErrorIs(t, p.Err(), w.loadErr)
	})

	t.Run("empty url", func(t *testing.T) {
		p, _ := newPlayer(t)
		require.ErrorIs(t, p.Load(""), errors.ErrInvalidInput)
	})
}

func TestIgnoresOutOfOrderEvents(t *testing.T) {
	p, w := newPlayer(t)
	w.emit(playback.EventPlay, nil)
	require.Equal(t, playback.StateIdle, p.State())

	require.NoError(t, p.Load("a.mp3"))
	w.emit(playback.EventPause, nil)
	require.Equal(t, playback.StateLoading, p.State())
}

func TestClose(t *testing.T) {
	p, w := newPlayer(t)
	require.NoError(t, p.Load("a.mp3"))
	w.emit(playback.EventReady, nil)
	require.NoError(t, p.Play())

	p.Close()
	p.Close()
	require.True(t, w.destroyed)
	require.Equal(t, playback.StateIdle, p.State())
	require.ErrorIs(t, p.Play(), playback.ErrClosed)
	require.ErrorIs(t, p.Load("b.mp3"), playback.ErrClosed)

	w.emit(playback.EventReady, nil)
	require.Equal(t, playback.StateIdle, p.State(), "late events after close are ignored")
}

func TestUnsubscribe(t *testing.T) {
	p, w := newPlayer(t)
	count := 0
	cancel := p.Subscribe(func(playback.Transition) { count++ })
	require.NoError(t, p.Load("a.mp3"))
	cancel()
	w.emit(playback.EventReady, nil)
	require.Equal(t, 1, count)
}
