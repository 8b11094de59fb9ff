package domain

import "time"

// Outcome is the terminal result of one upload workflow run.
type Outcome string

const (
	OutcomeDone              Outcome = "done"
	OutcomeAlreadyHosted     Outcome = "already_hosted"
	OutcomeUnsupportedMedia  Outcome = "unsupported_media"
	OutcomeFetchError        Outcome = "fetch_error"
	OutcomeUploadRejected    Outcome = "upload_rejected"
	OutcomeProcessingTimeout Outcome = "processing_timeout"
	OutcomeProcessingError   Outcome = "processing_error"
)

// UploadSession is the ephemeral state threaded through the transfer and
// polling stages of one workflow run. It is owned exclusively by the run
// that created it and is discarded once terminal.
type UploadSession struct {
	// Hash is the service-assigned token identifying the upload.
	Hash string
	// AlreadyHosted is set when the service answered the upload with a
	// conflict, meaning this exact content was processed before.
	AlreadyHosted bool
	Outcome       Outcome
	// Compression is the service-reported compression fraction, only
	// meaningful when Outcome is OutcomeDone.
	Compression float64
}

// CompressionPercent converts the compression fraction to a whole percentage.
func (s *UploadSession) CompressionPercent() int {
	return int(s.Compression * 100)
}

// ReplyRecord is the stored trace of one handled mention. Observability
// only; delivery decisions never consult it.
type ReplyRecord struct {
	ID        string    `json:"id"`
	MentionID string    `json:"mention_id"`
	Author    string    `json:"author,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Hash      string    `json:"hash,omitempty"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}
