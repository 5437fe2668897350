// Package validate holds input checks shared by the bot and the HTTP API.
package validate

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TagYouTubeURL is the struct tag registered by New.
const TagYouTubeURL = "youtube_url"

var youtubeHosts = map[string]bool{
	"youtube.com":     true,
	"www.youtube.com": true,
	"m.youtube.com":   true,
	"youtu.be":        true,
}

// IsYouTubeURL reports whether raw points at a single YouTube video.
func IsYouTubeURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !youtubeHosts[u.Host] {
		return false
	}

	if u.Host == "youtu.be" {
		return strings.Trim(u.Path, "/") != ""
	}
	if u.Path == "/watch" {
		return u.Query().Get("v") != ""
	}
	return strings.HasPrefix(u.Path, "/shorts/") || strings.HasPrefix(u.Path, "/live/")
}

// New returns a validator with the youtube_url tag registered.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation(TagYouTubeURL, func(fl validator.FieldLevel) bool {
		return IsYouTubeURL(fl.Field().String())
	})
	return v
}
