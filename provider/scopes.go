package provider

import (
	"strings"

	"github.com/jrsteele09/go-playlist-gateway/internal/errors"
)

// supportedScopes is the provider's published scope list.
var supportedScopes = map[string]struct{}{
	"ugc-image-upload":            {},
	"user-read-playback-state":    {},
	"user-modify-playback-state":  {},
	"user-read-currently-playing": {},
	"app-remote-control":          {},
	"streaming":                   {},
	"playlist-read-private":       {},
	"playlist-read-collaborative": {},
	"playlist-modify-private":     {},
	"playlist-modify-public":      {},
	"user-follow-modify":          {},
	"user-follow-read":            {},
	"user-read-playback-position": {},
	"user-top-read":               {},
	"user-read-recently-played":   {},
	"user-library-modify":         {},
	"user-library-read":           {},
	"user-read-email":             {},
	"user-read-private":           {},
}

// ValidateScopes trims and deduplicates scopes, preserving order. It fails
// with errors.ErrInvalidScope when nothing is requested or a scope is unknown.
func ValidateScopes(scopes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := supportedScopes[s]; !ok {
			return nil, errors.Wrapf(errors.ErrInvalidScope, "unsupported scope %q", s)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidScope, "at least one scope is required")
	}
	return out, nil
}
