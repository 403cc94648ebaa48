// Package catalog holds the fixed option lists the UI offers: voice filters and
// pricing plans.
package catalog

import (
	"strings"
)

// Kind names a voice filter dimension; it doubles as the query parameter name.
type Kind string

const (
	KindLanguage Kind = "language"
	KindGender   Kind = "gender"
	KindStyle    Kind = "style"
	KindRegion   Kind = "region"
)

// Option is one selectable filter value.
type Option struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

var filters = map[Kind][]Option{
	KindLanguage: {
		{ID: "vi", Name: "Tiếng Việt"},
		{ID: "en", Name: "Tiếng Anh"},
	},
	KindGender: {
		{ID: "male", Name: "Nam"},
		{ID: "female", Name: "Nữ"},
	},
	KindStyle: {
		{ID: "truyen", Name: "Truyện"},
		{ID: "mangxahoi", Name: "Mạng xã hội"},
		{ID: "tho", Name: "Thơ"},
		{ID: "podcast", Name: "Podcast"},
	},
	KindRegion: {
		{ID: "bac", Name: "Miền Bắc"},
		{ID: "trung", Name: "Miền Trung"},
		{ID: "nam", Name: "Miền Nam"},
	},
}

// Kinds lists the filter dimensions in display order.
func Kinds() []Kind {
	return []Kind{KindLanguage, KindGender, KindStyle, KindRegion}
}

// Options returns a copy of the choices for kind, nil for an unknown kind.
func Options(kind Kind) []Option {
	opts, ok := filters[kind]
	if !ok {
		return nil
	}
	return append([]Option(nil), opts...)
}

// Valid reports whether id is an offered value of kind. The empty id means
// "any" and is always valid.
func Valid(kind Kind, id string) bool {
	if id == "" {
		return true
	}
	for _, o := range filters[kind] {
		if strings.EqualFold(o.ID, id) {
			return true
		}
	}
	return false
}

// Label returns the display name of id, or id itself when unknown.
func Label(kind Kind, id string) string {
	for _, o := range filters[kind] {
		if strings.EqualFold(o.ID, id) {
			return o.Name
		}
	}
	return id
}
