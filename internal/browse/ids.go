// Package browse implements the flat identifier scheme used to address
// positions in a server's browse hierarchy, plus the item-type
// classification tables that drive how entries are presented.
package browse

import "strings"

// Delimiter joins the content-type tag and path segments. Item ids are
// server GUIDs and never contain it, so splitting is unambiguous.
const Delimiter = "--"

// Encode joins a content-type tag and zero or more path segments into a
// flat identifier. Zero ids yields the bare type tag.
func Encode(itemType string, ids ...string) string {
	if len(ids) == 0 {
		return itemType
	}
	return itemType + Delimiter + strings.Join(ids, Delimiter)
}

// Decode is the inverse of Encode. A bare type tag decodes to an empty
// id list.
func Decode(s string) (itemType string, ids []string) {
	parts := strings.Split(s, Delimiter)
	return parts[0], parts[1:]
}

// DisplayClass is the presentation classification of a server item type.
type DisplayClass string

const (
	ClassMovie     DisplayClass = "movie"
	ClassTVShow    DisplayClass = "tvshow"
	ClassSeason    DisplayClass = "season"
	ClassEpisode   DisplayClass = "episode"
	ClassMusic     DisplayClass = "music"
	ClassAlbum     DisplayClass = "album"
	ClassArtist    DisplayClass = "artist"
	ClassPlaylist  DisplayClass = "playlist"
	ClassChannel   DisplayClass = "channel"
	ClassVideo     DisplayClass = "video"
	ClassDirectory DisplayClass = "directory"
)

var displayClasses = map[string]DisplayClass{
	"Movie":            ClassMovie,
	"Series":           ClassTVShow,
	"Season":           ClassSeason,
	"Episode":          ClassEpisode,
	"Audio":            ClassMusic,
	"MusicAlbum":       ClassAlbum,
	"MusicArtist":      ClassArtist,
	"AlbumArtist":      ClassArtist,
	"Playlist":         ClassPlaylist,
	"TvChannel":        ClassChannel,
	"Video":            ClassVideo,
	"MusicVideo":       ClassVideo,
	"BoxSet":           ClassDirectory,
	"CollectionFolder": ClassDirectory,
	"Folder":           ClassDirectory,
	"UserView":         ClassDirectory,
}

// TypeDisplayClass maps a server item type to its presentation class.
// Unknown types are treated as plain directories rather than rejected,
// so new server-side types degrade gracefully.
func TypeDisplayClass(itemType string) DisplayClass {
	if c, ok := displayClasses[itemType]; ok {
		return c
	}
	return ClassDirectory
}

var playableTypes = map[string]struct{}{
	"Audio":      {},
	"Episode":    {},
	"Movie":      {},
	"MusicVideo": {},
	"Trailer":    {},
	"TvChannel":  {},
	"Video":      {},
}

var expandableTypes = map[string]struct{}{
	"BoxSet":           {},
	"CollectionFolder": {},
	"Folder":           {},
	"MusicAlbum":       {},
	"MusicArtist":      {},
	"Playlist":         {},
	"Season":           {},
	"Series":           {},
	"UserView":         {},
}

// IsPlayable reports whether items of this type resolve to a stream.
func IsPlayable(itemType string) bool {
	_, ok := playableTypes[itemType]
	return ok
}

// IsExpandable reports whether items of this type contain children.
// The playable and expandable sets are disjoint; a type may be neither.
func IsExpandable(itemType string) bool {
	_, ok := expandableTypes[itemType]
	return ok
}
