package browse

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		itemType string
		ids      []string
	}{
		{"library", nil},
		{"movie", []string{"abc123"}},
		{"episode", []string{"show1", "season2", "ep3"}},
		{"playlist", []string{"f0e1d2c3b4a5"}},
	}

	for _, tc := range cases {
		encoded := Encode(tc.itemType, tc.ids...)
		gotType, gotIDs := Decode(encoded)
		if gotType != tc.itemType {
			t.Errorf("Decode(Encode(%q)) type = %q", tc.itemType, gotType)
		}
		want := tc.ids
		if want == nil {
			want = []string{}
		}
		if !reflect.DeepEqual(gotIDs, want) {
			t.Errorf("Decode(Encode(%q, %v)) ids = %v, want %v", tc.itemType, tc.ids, gotIDs, want)
		}
	}
}

func TestEncodeBareTypeTag(t *testing.T) {
	if got := Encode("library"); got != "library" {
		t.Errorf("Encode with no ids = %q, want bare tag", got)
	}
	itemType, ids := Decode("library")
	if itemType != "library" || len(ids) != 0 {
		t.Errorf("Decode bare tag = (%q, %v)", itemType, ids)
	}
}

func TestTypeDisplayClass(t *testing.T) {
	cases := map[string]DisplayClass{
		"Movie":      ClassMovie,
		"Series":     ClassTVShow,
		"Season":     ClassSeason,
		"Episode":    ClassEpisode,
		"Audio":      ClassMusic,
		"MusicAlbum": ClassAlbum,
		"Playlist":   ClassPlaylist,
		"TvChannel":  ClassChannel,
	}
	for itemType, want := range cases {
		if got := TypeDisplayClass(itemType); got != want {
			t.Errorf("TypeDisplayClass(%q) = %q, want %q", itemType, got, want)
		}
	}
}

func TestUnknownTypeDefaultsToDirectory(t *testing.T) {
	if got := TypeDisplayClass("SomeFutureType"); got != ClassDirectory {
		t.Errorf("unknown type class = %q, want directory", got)
	}
}

func TestPlayableExpandableDisjoint(t *testing.T) {
	for itemType := range playableTypes {
		if IsExpandable(itemType) {
			t.Errorf("%q is both playable and expandable", itemType)
		}
	}
	for itemType := range expandableTypes {
		if IsPlayable(itemType) {
			t.Errorf("%q is both expandable and playable", itemType)
		}
	}
}

func TestPlayableMembership(t *testing.T) {
	if !IsPlayable("Movie") || !IsPlayable("Episode") || !IsPlayable("Audio") {
		t.Error("expected core media types to be playable")
	}
	if IsPlayable("Series") || IsPlayable("Photo") {
		t.Error("unexpected playable types")
	}
	if !IsExpandable("Series") || !IsExpandable("Season") || !IsExpandable("Playlist") {
		t.Error("expected container types to be expandable")
	}
	// Photo is neither playable nor expandable; that is allowed.
	if IsExpandable("Photo") {
		t.Error("Photo should not be expandable")
	}
}
