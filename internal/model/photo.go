package model

import "time"

// PhotoCategory classifies a photo. The set is closed; see Categories.
type PhotoCategory string

const (
	CategorySelfie    PhotoCategory = "SELFIE"
	CategoryPortrait  PhotoCategory = "PORTRAIT"
	CategoryAction    PhotoCategory = "ACTION"
	CategoryLandscape PhotoCategory = "LANDSCAPE"
	CategoryGraphic   PhotoCategory = "GRAPHIC"
	CategoryAnimal    PhotoCategory = "ANIMAL"
)

// Categories lists every valid PhotoCategory in schema order.
var Categories = []PhotoCategory{
	CategorySelfie,
	CategoryPortrait,
	CategoryAction,
	CategoryLandscape,
	CategoryGraphic,
	CategoryAnimal,
}

// Valid reports whether c is one of the known categories.
func (c PhotoCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Photo is a posted picture.
//
// ONE ID FIELD:
// The storage layer assigns ID at insert time and every layer above it sees
// the same field, whether the photo was just inserted or read back later.
type Photo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    PhotoCategory `json:"category"`
	UserID      string        `json:"userID"` // owner's GitHubLogin
	Created     time.Time     `json:"created"`
}

// URL is the static path the photo file is served from. It is derived from
// the ID alone, so it never needs a database round trip.
func (p *Photo) URL() string {
	return "/img/photos/" + p.ID + ".jpg"
}
