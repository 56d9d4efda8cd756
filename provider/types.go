package provider

import (
	"net/url"
	"strconv"

	"github.com/jrsteele09/go-playlist-gateway/internal/utils"
)

// Profile is the subset of the current user's profile the gateway needs.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Image struct {
	URL string `json:"url"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type Playlist struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
	Owner  *Owner  `json:"owner"`
	Tracks *struct {
		Total *int `json:"total"`
	} `json:"tracks"`
}

// PlaylistPage is one page of GET /me/playlists.
type PlaylistPage struct {
	Items  []Playlist `json:"items"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	Total  int        `json:"total"`
	Next   *string    `json:"next"`
}

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
}

type Track struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Artists []Artist `json:"artists"`
	Album   *Album   `json:"album"`
}

// TrackPage is one page of GET /playlists/{id}/tracks.
type TrackPage struct {
	Items []struct {
		Track *Track `json:"track"`
	} `json:"items"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Total  int     `json:"total"`
	Next   *string `json:"next"`
}

// NextOffset extracts the offset query parameter of a provider "next" URL.
// ok is false when there is no next page.
func NextOffset(next *string) (offset int, ok bool) {
	raw := utils.Value(next)
	if raw == "" {
		return 0, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return 0, false
	}
	offset, err = strconv.Atoi(u.Query().Get("offset"))
	if err != nil || offset < 0 {
		return 0, false
	}
	return offset, true
}
