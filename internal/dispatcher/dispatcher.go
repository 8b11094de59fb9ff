// Package dispatcher polls the unread-notification queue and hands
// qualifying mentions to the worker pool.
package dispatcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Web5design/MediaCrusher/internal/config"
	"github.com/Web5design/MediaCrusher/internal/domain"
	"github.com/Web5design/MediaCrusher/internal/worker"
	"github.com/Web5design/MediaCrusher/pkg/reddit"
)

type notificationSource interface {
	UnreadMessages(ctx context.Context) ([]reddit.Message, error)
	MarkRead(ctx context.Context, name string) error
}

type submissionLookup interface {
	SubmissionByFullname(ctx context.Context, fullname string) (*domain.Submission, error)
}

type submitter interface {
	Submit(task worker.Task) error
}

// Dispatcher drains the unread queue on a fixed cadence. It never waits for
// pipelines: qualifying mentions go to the pool and the next tick proceeds
// regardless of what is still in flight.
type Dispatcher struct {
	cfg         config.DispatcherConfig
	summonToken string
	botUser     string
	src         notificationSource
	lookup      submissionLookup
	pool        submitter
	logger      *slog.Logger

	mu        sync.RWMutex
	lastPoll  time.Time
	lastError string
}

// New creates a dispatcher.
func New(
	cfg config.DispatcherConfig,
	summonToken, botUser string,
	src notificationSource,
	lookup submissionLookup,
	pool submitter,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Dispatcher{
		cfg:         cfg,
		summonToken: summonToken,
		botUser:     botUser,
		src:         src,
		lookup:      lookup,
		pool:        pool,
		logger:      logger,
	}
}

// LastPoll returns the timestamp of the last poll attempt.
func (d *Dispatcher) LastPoll() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastPoll
}

// LastError returns the last batch-level error message, if any.
func (d *Dispatcher) LastError() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastError
}

// Start polls immediately, then on the configured interval, until the
// context is canceled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("starting mention dispatcher",
		"poll_interval", d.cfg.PollInterval.String(),
		"summon_token", d.summonToken,
	)

	d.poll(ctx)

	t := time.NewTicker(d.cfg.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("mention dispatcher stopped")
			return
		case <-t.C:
			d.poll(ctx)
		}
	}
}

// poll drains one notification batch. Any failure abandons the batch until
// the next tick; pipeline failures never reach here.
func (d *Dispatcher) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during notification batch", "panic", r)
			d.setLastError("panic during batch")
		}
	}()

	d.mu.Lock()
	d.lastPoll = time.Now()
	d.mu.Unlock()

	msgs, err := d.src.UnreadMessages(ctx)
	if err != nil {
		d.logger.Warn("failed to fetch unread notifications", "error", err)
		d.setLastError(err.Error())
		return
	}
	d.setLastError("")

	enqueued := 0
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return
		}
		if d.classify(ctx, msg) {
			enqueued++
		}
	}

	d.logger.Info("notification batch complete", "total", len(msgs), "enqueued", enqueued)
}

// classify marks one notification read and decides whether it is a
// qualifying mention. Marking read happens before the pipeline ever runs,
// so a crash mid-pipeline cannot cause redelivery.
func (d *Dispatcher) classify(ctx context.Context, msg reddit.Message) bool {
	if !msg.IsComment() {
		if err := d.src.MarkRead(ctx, msg.Name); err != nil {
			d.logger.Warn("failed to mark private message read", "name", msg.Name, "error", err)
		}
		return false
	}

	if err := d.src.MarkRead(ctx, msg.Name); err != nil {
		// An unread mention would be redelivered next tick; running the
		// pipeline now would reply twice. Defer the whole mention instead.
		d.logger.Warn("failed to mark comment read, deferring mention", "name", msg.Name, "error", err)
		return false
	}

	if !strings.Contains(msg.Body, d.summonToken) {
		return false
	}
	if strings.EqualFold(msg.Author, d.botUser) {
		return false
	}

	sub, err := d.lookup.SubmissionByFullname(ctx, msg.LinkID)
	if err != nil {
		d.logger.Warn("failed to resolve submission", "mention", msg.Name, "link_id", msg.LinkID, "error", err)
		return false
	}

	task := worker.Task{
		Mention: domain.Mention{
			Name:   msg.Name,
			ID:     msg.ID,
			Author: msg.Author,
			Body:   msg.Body,
			LinkID: msg.LinkID,
		},
		Submission: *sub,
	}
	if err := d.pool.Submit(task); err != nil {
		d.logger.Warn("dropping mention, work queue full", "mention", msg.Name)
		return false
	}

	d.logger.Info("mention enqueued", "mention", msg.Name, "author", msg.Author, "domain", sub.Domain)
	return true
}

func (d *Dispatcher) setLastError(err string) {
	d.mu.Lock()
	d.lastError = err
	d.mu.Unlock()
}
