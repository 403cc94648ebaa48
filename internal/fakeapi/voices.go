package fakeapi

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	URL      string `json:"url"`
	Gender   string `json:"gender,omitempty"`
	Style    string `json:"style,omitempty"`
	Region   string `json:"region,omitempty"`
}

const sampleURL = "https://minio.zoffice.vn/uploads/3cbd8bd5-0032-4452-be9f-ef53a55cc956.mp3"

// SeedVoices is the default system catalogue.
func SeedVoices() []Voice {
	return []Voice{
		{ID: "19610196e6c0000000000000410", Name: "Trần Huy - Tin tức", Language: "vi", URL: sampleURL, Gender: "male", Style: "mangxahoi", Region: "bac"},
		{ID: "19610196e6c0000000000000411", Name: "Ngọc Huyền - Đọc truyện", Language: "vi", URL: sampleURL, Gender: "female", Style: "truyen", Region: "bac"},
		{ID: "19610196e6c0000000000000412", Name: "Minh Khang - Podcast", Language: "vi", URL: sampleURL, Gender: "male", Style: "podcast", Region: "nam"},
		{ID: "19610196e6c0000000000000413", Name: "Thu Hà - Thơ", Language: "vi", URL: sampleURL, Gender: "female", Style: "tho", Region: "trung"},
		{ID: "19610196e6c0000000000000414", Name: "Emma - Narration", Language: "en", URL: sampleURL, Gender: "female", Style: "truyen"},
	}
}

func (b *Backend) systemVoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := atoiDefault(q.Get("page"), 1)
	limit := atoiDefault(q.Get("limit"), 10)
	name := strings.ToLower(q.Get("name"))

	b.mu.Lock()
	var matched []Voice
	for _, v := range b.voices {
		if name != "" && !strings.Contains(strings.ToLower(v.Name), name) {
			continue
		}
		if !matches(q.Get("gender"), v.Gender) || !matches(q.Get("language"), v.Language) ||
			!matches(q.Get("style"), v.Style) || !matches(q.Get("region"), v.Region) {
			continue
		}
		matched = append(matched, v)
	}
	b.mu.Unlock()

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, "ok", map[string]any{
		"voices": append([]Voice{}, matched[start:end]...),
		"pagination": map[string]int{
			"total":      total,
			"page":       page,
			"limit":      limit,
			"totalPages": int(math.Ceil(float64(total) / float64(limit))),
		},
	})
}

func (b *Backend) voice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.voices {
		if v.ID == id {
			writeJSON(w, http.StatusOK, "ok", v)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, "voice not found", nil)
}

func (b *Backend) synthesize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string  `json:"text"`
		VoiceID string  `json:"voiceId"`
		Speed   float64 `json:"speed"`
	}
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, "text is required", nil)
		return
	}
	if req.Speed <= 0 {
		req.Speed = 1
	}

	b.mu.Lock()
	known := false
	for _, v := range b.voices {
		known = known || v.ID == req.VoiceID
	}
	name := uuid.NewString() + ".mp3"
	if known {
		b.audio[name] = []byte("ID3" + req.Text)
	}
	b.mu.Unlock()
	if !known {
		writeJSON(w, http.StatusNotFound, "voice not found", nil)
		return
	}

	words := len(strings.Fields(req.Text))
	writeJSON(w, http.StatusOK, "ok", map[string]any{
		"audioUrl": BasePath + "/audio/" + name,
		"duration": math.Round(float64(words)*0.4/req.Speed*100) / 100,
	})
}

func (b *Backend) transcribe(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "file is required", nil)
		return
	}
	defer file.Close()
	n, _ := io.Copy(io.Discard, file)
	writeJSON(w, http.StatusOK, "ok", map[string]string{
		"text": fmt.Sprintf("transcript of %s (%d bytes)", header.Filename, n),
	})
}

func (b *Backend) downloadAudio(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	data, ok := b.audio[r.PathValue("name")]
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, "audio not found", nil)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(data)
}

func matches(filter, value string) bool {
	return filter == "" || strings.EqualFold(filter, value)
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
