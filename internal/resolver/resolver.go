// Package resolver normalizes submission URLs before any network call.
package resolver

import (
	"net/url"
	"strings"
)

const (
	galleryHost   = "imgur.com"
	directHost    = "i.imgur.com"
	albumPrefix   = "/a/"
	placeholderEx = ".png"
)

// Resolve rewrites known gallery-host links to their direct-content form.
// Single-image imgur pages become i.imgur.com links with a placeholder
// extension; the extension doesn't need to be correct, the content type is
// taken from the probe response. Albums and everything else pass through
// unchanged.
func Resolve(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Host != galleryHost || strings.HasPrefix(u.Path, albumPrefix) {
		return raw
	}
	return "http://" + directHost + u.Path + placeholderEx
}
