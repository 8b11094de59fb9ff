package domain

import "strings"

// Mention is an inbound comment notification that summoned the bot.
type Mention struct {
	// Name is the comment's fullname (e.g. "t1_abc123"), used for replies
	// and for marking the notification read.
	Name   string
	ID     string
	Author string
	Body   string
	// LinkID is the fullname of the submission the comment belongs to
	// (e.g. "t3_abc123").
	LinkID string
}

// Submission is the thread a mention points at. Fetched once per mention,
// read-only afterwards.
type Submission struct {
	ID     string
	Domain string
	URL    string
}

// SupportedContentTypes is the set of media types the transcoding service
// accepts. Anything else is refused before a download is attempted.
var SupportedContentTypes = []string{
	"image/jpg",
	"image/jpeg",
	"image/png",
	"image/svg",
	"image/gif",
	"video/mp4",
	"video/ogv",
	"audio/mp3",
}

// SupportedContentType reports whether ct names a supported media type.
// Parameters after a semicolon (charset and friends) are ignored.
func SupportedContentType(ct string) bool {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	for _, s := range SupportedContentTypes {
		if ct == s {
			return true
		}
	}
	return false
}
