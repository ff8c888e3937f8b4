package model

import "testing"

func TestPhotoURL(t *testing.T) {
	p := &Photo{ID: "cv37rs3pp9olc6atsptg"}

	if got, want := p.URL(), "/img/photos/cv37rs3pp9olc6atsptg.jpg"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestPhotoCategoryValid(t *testing.T) {
	for _, c := range Categories {
		if !c.Valid() {
			t.Errorf("%s.Valid() = false, want true", c)
		}
	}
	if PhotoCategory("SUNSET").Valid() {
		t.Error(`PhotoCategory("SUNSET").Valid() = true, want false`)
	}
}
