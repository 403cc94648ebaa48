package api

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lipvoice/voice-client/gateway"
	"github.com/pkg/errors"
)

const (
	SynthesizePath = "/tts/synthesize"
	TranscribePath = "/stt/transcribe"

	// TranscribeField is the multipart field carrying the audio file.
	TranscribeField = "file"

	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
)

// SpeechService runs text-to-speech and speech-to-text jobs.
type SpeechService struct {
	gateway *gateway.Gateway
}

func NewSpeechService(g *gateway.Gateway) *SpeechService {
	return &SpeechService{gateway: g}
}

// Synthesize renders text with the given voice. A zero Speed means normal speed.
func (s *SpeechService) Synthesize(ctx context.Context, req SynthesizeRequest) (*Synthesis, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, errors.Wrap(ErrInvalidInput, "[SpeechService.Synthesize] text is required")
	}
	if req.VoiceID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "[SpeechService.Synthesize] voice id is required")
	}
	if req.Speed == 0 {
		req.Speed = DefaultSpeed
	}
	if req.Speed < MinSpeed || req.Speed > MaxSpeed {
		return nil, errors.Wrapf(ErrInvalidInput, "[SpeechService.Synthesize] speed %.2f outside [%.1f, %.1f]", req.Speed, MinSpeed, MaxSpeed)
	}

	var out Synthesis
	if err := s.gateway.PostJSON(ctx, SynthesizePath, req, &out); err != nil {
		return nil, errors.Wrap(err, "[SpeechService.Synthesize]")
	}
	return &out, nil
}

// Transcribe uploads audio and returns the recognised text.
func (s *SpeechService) Transcribe(ctx context.Context, filename string, audio io.Reader) (*Transcript, error) {
	if audio == nil {
		return nil, errors.Wrap(ErrInvalidInput, "[SpeechService.Transcribe] audio is required")
	}
	if filename == "" {
		filename = "recording.webm"
	}
	var out Transcript
	if err := s.gateway.PostMultipart(ctx, TranscribePath, TranscribeField, filename, audio, nil, &out); err != nil {
		return nil, errors.Wrap(err, "[SpeechService.Transcribe]")
	}
	return &out, nil
}

// DownloadAudio copies generated audio into w. Paths relative to the API root go
// through the gateway with credentials; absolute URLs elsewhere (object storage)
// are fetched without them.
func (s *SpeechService) DownloadAudio(ctx context.Context, audioURL string, w io.Writer) (int64, error) {
	if audioURL == "" {
		return 0, errors.Wrap(ErrInvalidInput, "[SpeechService.DownloadAudio] url is required")
	}
	target, authenticated, err := s.resolve(audioURL)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, errors.Wrap(err, "[SpeechService.DownloadAudio] build request")
	}

	var resp *http.Response
	if authenticated {
		resp, err = s.gateway.Do(req)
	} else {
		resp, err = s.gateway.HTTPClient().Do(req)
	}
	if err != nil {
		return 0, errors.Wrap(err, "[SpeechService.DownloadAudio]")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, gateway.ReadStatusError(resp)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrap(err, "[SpeechService.DownloadAudio] copy")
	}
	return n, nil
}

func (s *SpeechService) resolve(audioURL string) (string, bool, error) {
	base, err := url.Parse(s.gateway.BaseURL())
	if err != nil {
		return "", false, errors.Wrap(err, "[SpeechService] parse base url")
	}
	u, err := url.Parse(audioURL)
	if err != nil {
		return "", false, errors.Wrapf(ErrInvalidInput, "[SpeechService] audio url %q", audioURL)
	}
	if !u.IsAbs() {
		// "/media/x.mp3" is host-relative, "audio/x.mp3" is relative to the API root
		if strings.HasPrefix(u.Path, "/") {
			return base.ResolveReference(u).String(), true, nil
		}
		ref := base.JoinPath(u.Path)
		ref.RawQuery = u.RawQuery
		return ref.String(), true, nil
	}
	return u.String(), u.Host == base.Host, nil
}
