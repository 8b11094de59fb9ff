// Package pipeline implements the per-mention upload workflow: validate the
// linked media, transfer it to the transcoding service, poll for completion,
// and reply with the outcome.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Web5design/MediaCrusher/internal/domain"
	"github.com/Web5design/MediaCrusher/internal/downloader"
	"github.com/Web5design/MediaCrusher/internal/resolver"
	"github.com/Web5design/MediaCrusher/pkg/mediacrush"
	"github.com/Web5design/MediaCrusher/pkg/reddit"
)

type fetcher interface {
	Probe(ctx context.Context, url string) (*downloader.ProbeResult, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

type crusher interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (*mediacrush.UploadResult, error)
	Status(ctx context.Context, hash string) (string, error)
	FileInfo(ctx context.Context, hash string) (*mediacrush.FileInfo, error)
	PageURL(hash string) string
}

type replier interface {
	Reply(ctx context.Context, parentName, text string) error
}

type recorder interface {
	Record(ctx context.Context, rec domain.ReplyRecord) error
}

// EngineConfig holds workflow engine configuration.
type EngineConfig struct {
	// ServiceDomain is the transcoding service's own domain; submissions
	// already pointing there short-circuit the whole pipeline.
	ServiceDomain string
	// PollTimeout caps the total wall-clock wait for processing. Hitting
	// it maps to the processing-timeout reply.
	PollTimeout time.Duration
}

// Engine runs the upload workflow for one mention at a time. Instances are
// safe for concurrent use; runs share nothing but the immutable compliment
// table and its guarded random source.
type Engine struct {
	cfg         EngineConfig
	fetcher     fetcher
	crush       crusher
	replier     replier
	recorder    recorder
	compliments *Compliments
	logger      *slog.Logger
}

// NewEngine creates a workflow engine.
func NewEngine(
	cfg EngineConfig,
	f fetcher,
	c crusher,
	r replier,
	rec recorder,
	compliments *Compliments,
	logger *slog.Logger,
) *Engine {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 15 * time.Minute
	}
	if cfg.ServiceDomain == "" {
		cfg.ServiceDomain = "mediacru.sh"
	}
	return &Engine{
		cfg:         cfg,
		fetcher:     f,
		crush:       c,
		replier:     r,
		recorder:    rec,
		compliments: compliments,
		logger:      logger,
	}
}

// Run executes the full workflow for one mention and returns the terminal
// outcome. Exactly one reply is attempted per call.
func (e *Engine) Run(ctx context.Context, m domain.Mention, sub domain.Submission) domain.Outcome {
	runID := "run_" + uuid.New().String()[:8]
	logger := e.logger.With("run_id", runID, "mention", m.Name, "author", m.Author)

	session := e.execute(ctx, logger, sub)

	text := e.composeReply(session)
	if err := e.sendReply(ctx, logger, m.Name, text); err != nil {
		// Reply failures are logged, not retried.
		logger.Error("failed to post reply", "outcome", session.Outcome, "error", err)
	} else {
		logger.Info("replied", "outcome", session.Outcome, "hash", session.Hash)
	}

	e.record(ctx, logger, m, session, text)
	return session.Outcome
}

// execute runs stages 1-4 (resolve, validate, transfer, poll) and returns
// the terminal session. It never sends the reply itself.
func (e *Engine) execute(ctx context.Context, logger *slog.Logger, sub domain.Submission) *domain.UploadSession {
	session := &domain.UploadSession{}

	// Domain guard: already hosted on the service, nothing to do.
	if sub.Domain == e.cfg.ServiceDomain {
		session.Outcome = domain.OutcomeAlreadyHosted
		return session
	}

	target := resolver.Resolve(sub.URL)

	probe, err := e.fetcher.Probe(ctx, target)
	if err != nil {
		logger.Warn("probe failed", "url", target, "error", err)
		session.Outcome = domain.OutcomeFetchError
		return session
	}
	if !domain.SupportedContentType(probe.ContentType) {
		logger.Info("unsupported media type", "url", target, "content_type", probe.ContentType)
		session.Outcome = domain.OutcomeUnsupportedMedia
		return session
	}
	if !probe.OK {
		logger.Warn("probe returned non-success status", "url", target, "status", probe.StatusCode)
		session.Outcome = domain.OutcomeFetchError
		return session
	}

	data, err := e.fetcher.Download(ctx, target)
	if err != nil {
		logger.Warn("download failed", "url", target, "error", err)
		session.Outcome = domain.OutcomeFetchError
		return session
	}

	// The filename is arbitrary; only the extension (derived from the
	// confirmed content type) matters to the service.
	ext := contentSubtype(probe.ContentType)
	var result *mediacrush.UploadResult
	err = e.withRateLimitRetry(ctx, logger, func() error {
		var uerr error
		result, uerr = e.crush.Upload(ctx, "foobar."+ext, probe.ContentType, data)
		return uerr
	})
	if err != nil {
		if errors.Is(err, mediacrush.ErrMissingHash) {
			// A conflict whose hash we couldn't extract may mask a
			// genuine duplicate; keep the generic rejection reply but
			// make the distinction visible in the logs.
			logger.Warn("conflict response had no usable hash; treating as rejection", "url", target)
		} else {
			logger.Warn("upload rejected", "url", target, "error", err)
		}
		session.Outcome = domain.OutcomeUploadRejected
		return session
	}

	session.Hash = result.Hash
	session.AlreadyHosted = result.AlreadyHosted
	if result.AlreadyHosted {
		logger.Info("content already processed by service; polling existing session", "hash", result.Hash)
	}

	e.poll(ctx, logger, session)
	return session
}

// poll queries processing status until a terminal state, honoring rate
// limits and the configured wall-clock cap.
func (e *Engine) poll(ctx context.Context, logger *slog.Logger, session *domain.UploadSession) {
	deadline := time.Now().Add(e.cfg.PollTimeout)

	for {
		if time.Now().After(deadline) {
			logger.Warn("processing wait exceeded poll timeout", "hash", session.Hash)
			session.Outcome = domain.OutcomeProcessingTimeout
			return
		}
		if ctx.Err() != nil {
			session.Outcome = domain.OutcomeProcessingTimeout
			return
		}

		var status string
		err := e.withRateLimitRetry(ctx, logger, func() error {
			var serr error
			status, serr = e.crush.Status(ctx, session.Hash)
			return serr
		})
		if err != nil {
			logger.Warn("status poll failed", "hash", session.Hash, "error", err)
			session.Outcome = domain.OutcomeProcessingError
			return
		}

		switch status {
		case mediacrush.StatusDone:
			var info *mediacrush.FileInfo
			err := e.withRateLimitRetry(ctx, logger, func() error {
				var ferr error
				info, ferr = e.crush.FileInfo(ctx, session.Hash)
				return ferr
			})
			if err != nil {
				logger.Warn("result metadata fetch failed", "hash", session.Hash, "error", err)
				session.Outcome = domain.OutcomeProcessingError
				return
			}
			session.Compression = info.Compression
			session.Outcome = domain.OutcomeDone
			return
		case mediacrush.StatusTimeout:
			session.Outcome = domain.OutcomeProcessingTimeout
			return
		case mediacrush.StatusError:
			session.Outcome = domain.OutcomeProcessingError
			return
		default:
			// Still processing; poll again immediately. The only
			// sanctioned delay in this loop is a rate-limit wait.
		}
	}
}

// withRateLimitRetry runs fn, sleeping out any rate-limit signal and
// retrying the same call. The sleep blocks only this pipeline run.
func (e *Engine) withRateLimitRetry(ctx context.Context, logger *slog.Logger, fn func() error) error {
	for {
		err := fn()
		if err == nil {
			return nil
		}
		wait, ok := rateLimitWait(err)
		if !ok {
			return err
		}

		logger.Info("rate limited; waiting for reset", "wait", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// rateLimitWait extracts the server-specified reset duration from a
// rate-limit error of either external service.
func rateLimitWait(err error) (time.Duration, bool) {
	var mc *mediacrush.RateLimitError
	if errors.As(err, &mc) {
		return mc.RetryAfter, true
	}
	var rd *reddit.RateLimitError
	if errors.As(err, &rd) {
		return rd.RetryAfter, true
	}
	return 0, false
}

// sendReply posts the reply, sleeping out reply-side rate limits the same
// way polling does.
func (e *Engine) sendReply(ctx context.Context, logger *slog.Logger, parentName, text string) error {
	return e.withRateLimitRetry(ctx, logger, func() error {
		return e.replier.Reply(ctx, parentName, text)
	})
}

func (e *Engine) record(ctx context.Context, logger *slog.Logger, m domain.Mention, session *domain.UploadSession, text string) {
	if e.recorder == nil {
		return
	}
	rec := domain.ReplyRecord{
		MentionID: m.Name,
		Author:    m.Author,
		Outcome:   session.Outcome,
		Hash:      session.Hash,
		Reply:     text,
		CreatedAt: time.Now(),
	}
	if err := e.recorder.Record(ctx, rec); err != nil {
		logger.Warn("failed to record reply", "error", err)
	}
}

// contentSubtype returns the subtype of a media type ("image/gif" → "gif").
func contentSubtype(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	if i := strings.IndexByte(ct, '/'); i >= 0 {
		return ct[i+1:]
	}
	return ct
}
