package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/lipvoice/voice-client/gateway"
	"github.com/pkg/errors"
)

const (
	SystemVoicesPath = "/voices/system"
	voicePath        = "/voices/"
)

// VoiceService reads the voice catalogue.
type VoiceService struct {
	gateway *gateway.Gateway
}

func NewVoiceService(g *gateway.Gateway) *VoiceService {
	return &VoiceService{gateway: g}
}

// Values encodes the non-zero fields as query parameters.
func (q VoiceQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("name", q.Name)
	set("gender", q.Gender)
	set("language", q.Language)
	set("style", q.Style)
	set("region", q.Region)
	return v
}

// System lists the built-in voices matching q.
func (s *VoiceService) System(ctx context.Context, q VoiceQuery) (*VoicePage, error) {
	var page VoicePage
	if err := s.gateway.GetJSON(ctx, SystemVoicesPath, q.Values(), &page); err != nil {
		return nil, errors.Wrap(err, "[VoiceService.System]")
	}
	if page.Voices == nil {
		page.Voices = []Voice{}
	}
	return &page, nil
}

// Get fetches one voice. The backend may return it bare or wrapped as {"voice": {...}}.
func (s *VoiceService) Get(ctx context.Context, id string) (*Voice, error) {
	if id == "" {
		return nil, errors.Wrap(ErrInvalidInput, "[VoiceService.Get] voice id is required")
	}
	var raw json.RawMessage
	if err := s.gateway.GetJSON(ctx, voicePath+url.PathEscape(id), nil, &raw); err != nil {
		return nil, errors.Wrap(err, "[VoiceService.Get]")
	}
	if len(raw) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "[VoiceService.Get] voice %s", id)
	}

	var wrapped struct {
		Voice *Voice `json:"voice"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Voice != nil {
		return wrapped.Voice, nil
	}
	var v Voice
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrap(err, "[VoiceService.Get] decode voice")
	}
	return &v, nil
}
