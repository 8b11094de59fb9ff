package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Web5design/MediaCrusher/internal/domain"
	"github.com/Web5design/MediaCrusher/internal/downloader"
	"github.com/Web5design/MediaCrusher/pkg/mediacrush"
)

type fakeFetcher struct {
	probeResult   *downloader.ProbeResult
	probeErr      error
	data          []byte
	downloadErr   error
	probeCalls    atomic.Int32
	downloadCalls atomic.Int32
}

func (f *fakeFetcher) Probe(ctx context.Context, url string) (*downloader.ProbeResult, error) {
	f.probeCalls.Add(1)
	return f.probeResult, f.probeErr
}

func (f *fakeFetcher) Download(ctx context.Context, url string) ([]byte, error) {
	f.downloadCalls.Add(1)
	return f.data, f.downloadErr
}

type fakeCrusher struct {
	mu           sync.Mutex
	uploadResult *mediacrush.UploadResult
	uploadErr    error
	// statusQueue is consumed one entry per Status call; errors and
	// tokens interleave in order.
	statusQueue []statusStep
	info        *mediacrush.FileInfo
	infoErr     error
	statusCalls atomic.Int32
	uploadCalls atomic.Int32
}

type statusStep struct {
	token string
	err   error
}

func (f *fakeCrusher) Upload(ctx context.Context, filename, contentType string, data []byte) (*mediacrush.UploadResult, error) {
	f.uploadCalls.Add(1)
	return f.uploadResult, f.uploadErr
}

func (f *fakeCrusher) Status(ctx context.Context, hash string) (string, error) {
	f.statusCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusQueue) == 0 {
		return "processing", nil
	}
	step := f.statusQueue[0]
	f.statusQueue = f.statusQueue[1:]
	return step.token, step.err
}

func (f *fakeCrusher) FileInfo(ctx context.Context, hash string) (*mediacrush.FileInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeCrusher) PageURL(hash string) string {
	return "https://mediacru.sh/" + hash
}

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
	err     error
}

func (f *fakeReplier) Reply(ctx context.Context, parentName, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeReplier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.replies))
	copy(out, f.replies)
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []domain.ReplyRecord
}

func (f *fakeRecorder) Record(ctx context.Context, rec domain.ReplyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func goodProbe(ct string) *downloader.ProbeResult {
	return &downloader.ProbeResult{ContentType: ct, StatusCode: 200, OK: true}
}

func testEngine(t *testing.T, f *fakeFetcher, c *fakeCrusher, r *fakeReplier, rec *fakeRecorder) *Engine {
	t.Helper()
	compliments, err := NewCompliments([]string{"You're great!"})
	if err != nil {
		t.Fatal(err)
	}
	// Avoid boxing a typed nil into the recorder interface.
	var store recorder
	if rec != nil {
		store = rec
	}
	return NewEngine(
		EngineConfig{ServiceDomain: "mediacru.sh", PollTimeout: 2 * time.Second},
		f, c, r, store, compliments, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func mention() domain.Mention {
	return domain.Mention{Name: "t1_c1", ID: "c1", Author: "alice", Body: "/u/MediaCrusher", LinkID: "t3_s1"}
}

func TestRun_DomainGuardShortCircuits(t *testing.T) {
	f := &fakeFetcher{}
	c := &fakeCrusher{}
	r := &fakeReplier{}
	rec := &fakeRecorder{}
	e := testEngine(t, f, c, r, rec)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "mediacru.sh", URL: "https://mediacru.sh/abc"})

	if outcome != domain.OutcomeAlreadyHosted {
		t.Errorf("outcome = %v, want already_hosted", outcome)
	}
	if f.probeCalls.Load() != 0 || f.downloadCalls.Load() != 0 || c.uploadCalls.Load() != 0 || c.statusCalls.Load() != 0 {
		t.Error("domain guard must bypass the entire pipeline")
	}
	replies := r.all()
	if len(replies) != 1 || replies[0] != "This post is already on mediacru.sh, silly!" {
		t.Errorf("replies = %v, want the fixed already-hosted sentence", replies)
	}
}

func TestRun_UnsupportedTypeSkipsDownload(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("text/html")}
	c := &fakeCrusher{}
	r := &fakeReplier{}
	e := testEngine(t, f, c, r, nil)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/page"})

	if outcome != domain.OutcomeUnsupportedMedia {
		t.Errorf("outcome = %v, want unsupported_media", outcome)
	}
	if f.downloadCalls.Load() != 0 {
		t.Errorf("download calls = %d, want 0", f.downloadCalls.Load())
	}
	replies := r.all()
	if len(replies) != 1 || replies[0] != "This post isn't a supported media type. :(" {
		t.Errorf("replies = %v, want the unsupported-media apology", replies)
	}
}

func TestRun_ProbeFailureIsFetchError(t *testing.T) {
	f := &fakeFetcher{probeResult: &downloader.ProbeResult{ContentType: "image/gif", StatusCode: 500, OK: false}}
	r := &fakeReplier{}
	e := testEngine(t, f, &fakeCrusher{}, r, nil)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.gif"})

	if outcome != domain.OutcomeFetchError {
		t.Errorf("outcome = %v, want fetch_error", outcome)
	}
	if got := r.all(); len(got) != 1 || got[0] != "There was an error fetching this file. :(" {
		t.Errorf("replies = %v, want the fetch-error apology", got)
	}
}

func TestRun_SuccessReplies(t *testing.T) {
	tests := []struct {
		name        string
		compression float64
		wantPart    string
		wantNoPct   bool
	}{
		{"full improvement", 1.0, "**100% faster**", false},
		{"above full", 1.2, "**120% faster**", false},
		{"below full omits percentage", 0.5, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{probeResult: goodProbe("image/gif"), data: []byte("gif")}
			c := &fakeCrusher{
				uploadResult: &mediacrush.UploadResult{Hash: "abc123"},
				statusQueue:  []statusStep{{token: "done"}},
				info:         &mediacrush.FileInfo{Compression: tt.compression},
			}
			r := &fakeReplier{}
			rec := &fakeRecorder{}
			e := testEngine(t, f, c, r, rec)

			outcome := e.Run(context.Background(), mention(),
				domain.Submission{Domain: "example.com", URL: "http://example.com/cat.gif"})

			if outcome != domain.OutcomeDone {
				t.Fatalf("outcome = %v, want done", outcome)
			}
			replies := r.all()
			if len(replies) != 1 {
				t.Fatalf("replies = %d, want 1", len(replies))
			}
			reply := replies[0]
			if !strings.Contains(reply, "https://mediacru.sh/abc123") {
				t.Errorf("reply %q missing the service URL", reply)
			}
			if !strings.Contains(reply, "You're great!") {
				t.Errorf("reply %q missing the compliment", reply)
			}
			if !strings.Contains(reply, "[faq]") {
				t.Errorf("reply %q missing the footer", reply)
			}
			if tt.wantNoPct {
				if strings.Contains(reply, "%") {
					t.Errorf("reply %q should omit the percentage clause", reply)
				}
			} else if !strings.Contains(reply, tt.wantPart) {
				t.Errorf("reply %q missing %q", reply, tt.wantPart)
			}
		})
	}
}

func TestRun_ConflictProceedsToPolling(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("image/png"), data: []byte("png")}
	c := &fakeCrusher{
		uploadResult: &mediacrush.UploadResult{Hash: "existing", AlreadyHosted: true},
		statusQueue:  []statusStep{{token: "done"}},
		info:         &mediacrush.FileInfo{Compression: 1.0},
	}
	r := &fakeReplier{}
	e := testEngine(t, f, c, r, nil)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.png"})

	if outcome != domain.OutcomeDone {
		t.Fatalf("outcome = %v, want done", outcome)
	}
	if c.statusCalls.Load() == 0 {
		t.Error("conflict upload must proceed to polling with the carried hash")
	}
	if got := r.all(); len(got) != 1 || !strings.Contains(got[0], "https://mediacru.sh/existing") {
		t.Errorf("replies = %v, want success reply for the existing hash", got)
	}
}

func TestRun_UploadRejected(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("image/png"), data: []byte("png")}
	c := &fakeCrusher{uploadErr: mediacrush.ErrMissingHash}
	r := &fakeReplier{}
	e := testEngine(t, f, c, r, nil)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.png"})

	if outcome != domain.OutcomeUploadRejected {
		t.Errorf("outcome = %v, want upload_rejected", outcome)
	}
	if got := r.all(); len(got) != 1 || got[0] != "MediaCrush didn't like this for some reason. Sorry :(" {
		t.Errorf("replies = %v, want the rejection apology", got)
	}
}

func TestRun_ProcessingTerminalTokens(t *testing.T) {
	tests := []struct {
		token       string
		wantOutcome domain.Outcome
		wantReply   string
	}{
		{"timeout", domain.OutcomeProcessingTimeout, "This took too long for us to process :("},
		{"error", domain.OutcomeProcessingError, "Something went wrong :("},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			f := &fakeFetcher{probeResult: goodProbe("video/mp4"), data: []byte("mp4")}
			c := &fakeCrusher{
				uploadResult: &mediacrush.UploadResult{Hash: "abc"},
				statusQueue:  []statusStep{{token: tt.token}},
			}
			r := &fakeReplier{}
			e := testEngine(t, f, c, r, nil)

			outcome := e.Run(context.Background(), mention(),
				domain.Submission{Domain: "example.com", URL: "http://example.com/clip.mp4"})

			if outcome != tt.wantOutcome {
				t.Errorf("outcome = %v, want %v", outcome, tt.wantOutcome)
			}
			if got := r.all(); len(got) != 1 || got[0] != tt.wantReply {
				t.Errorf("replies = %v, want %q", got, tt.wantReply)
			}
		})
	}
}

func TestRun_PendingTokenRePolls(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("image/gif"), data: []byte("gif")}
	c := &fakeCrusher{
		uploadResult: &mediacrush.UploadResult{Hash: "abc"},
		statusQueue:  []statusStep{{token: "processing"}, {token: "uploading"}, {token: "done"}},
		info:         &mediacrush.FileInfo{Compression: 1.0},
	}
	r := &fakeReplier{}
	e := testEngine(t, f, c, r, nil)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.gif"})

	if outcome != domain.OutcomeDone {
		t.Fatalf("outcome = %v, want done", outcome)
	}
	if got := c.statusCalls.Load(); got != 3 {
		t.Errorf("status calls = %d, want 3", got)
	}
}

func TestRun_RateLimitSleepsOnceThenRetries(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("image/gif"), data: []byte("gif")}
	c := &fakeCrusher{
		uploadResult: &mediacrush.UploadResult{Hash: "abc"},
		statusQueue: []statusStep{
			{err: &mediacrush.RateLimitError{RetryAfter: 50 * time.Millisecond}},
			{token: "done"},
		},
		info: &mediacrush.FileInfo{Compression: 1.0},
	}
	r := &fakeReplier{}
	e := testEngine(t, f, c, r, nil)

	start := time.Now()
	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.gif"})
	elapsed := time.Since(start)

	if outcome != domain.OutcomeDone {
		t.Fatalf("outcome = %v, want done", outcome)
	}
	if got := c.statusCalls.Load(); got != 2 {
		t.Errorf("status calls = %d, want exactly one retry after the rate limit", got)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("elapsed = %v, want at least the signaled 50ms wait", elapsed)
	}
	if got := r.all(); len(got) != 1 {
		t.Errorf("replies = %d, want exactly 1 (none during the wait)", len(got))
	}
}

func TestRun_PollTimeoutCapsPendingLoop(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("image/gif"), data: []byte("gif")}
	// Empty queue: the fake always answers "processing".
	c := &fakeCrusher{uploadResult: &mediacrush.UploadResult{Hash: "abc"}}
	r := &fakeReplier{}

	compliments, _ := NewCompliments([]string{"hi"})
	e := NewEngine(
		EngineConfig{ServiceDomain: "mediacru.sh", PollTimeout: 30 * time.Millisecond},
		f, c, r, nil, compliments, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	outcome := e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.gif"})

	if outcome != domain.OutcomeProcessingTimeout {
		t.Errorf("outcome = %v, want processing_timeout", outcome)
	}
	if got := r.all(); len(got) != 1 || got[0] != "This took too long for us to process :(" {
		t.Errorf("replies = %v, want the timeout apology", got)
	}
}

// perHashCrusher stalls one hash in a rate-limit wait while another
// completes immediately.
type perHashCrusher struct {
	fakeCrusher
	stallHash string
	stallFor  time.Duration
	stalled   atomic.Bool
}

func (p *perHashCrusher) Upload(ctx context.Context, filename, contentType string, data []byte) (*mediacrush.UploadResult, error) {
	return &mediacrush.UploadResult{Hash: string(data)}, nil
}

func (p *perHashCrusher) Status(ctx context.Context, hash string) (string, error) {
	if hash == p.stallHash && p.stalled.CompareAndSwap(false, true) {
		return "", &mediacrush.RateLimitError{RetryAfter: p.stallFor}
	}
	return "done", nil
}

func (p *perHashCrusher) FileInfo(ctx context.Context, hash string) (*mediacrush.FileInfo, error) {
	return &mediacrush.FileInfo{Compression: 1.0}, nil
}

func TestRun_ConcurrentPipelinesDoNotBlockEachOther(t *testing.T) {
	c := &perHashCrusher{stallHash: "slow", stallFor: 400 * time.Millisecond}
	r := &fakeReplier{}
	compliments, _ := NewCompliments([]string{"hi"})

	e := NewEngine(
		EngineConfig{ServiceDomain: "mediacru.sh", PollTimeout: 5 * time.Second},
		nil, c, r, nil, compliments, slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	// Drive execute/poll directly with per-run fetchers so the upload
	// hash identifies the run.
	run := func(hash string, done chan<- time.Time) {
		f := &fakeFetcher{probeResult: goodProbe("image/gif"), data: []byte(hash)}
		eng := NewEngine(e.cfg, f, c, r, nil, compliments, slog.New(slog.NewTextHandler(io.Discard, nil)))
		eng.Run(context.Background(), mention(),
			domain.Submission{Domain: "example.com", URL: "http://example.com/" + hash + ".gif"})
		done <- time.Now()
	}

	slowDone := make(chan time.Time, 1)
	fastDone := make(chan time.Time, 1)
	start := time.Now()
	go run("slow", slowDone)
	go run("fast", fastDone)

	select {
	case finished := <-fastDone:
		if finished.Sub(start) > 200*time.Millisecond {
			t.Errorf("fast pipeline took %v; a stalled sibling must not delay it", finished.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast pipeline did not finish while sibling was rate-limit stalled")
	}
	<-slowDone
}

func TestRun_RecordsOutcome(t *testing.T) {
	f := &fakeFetcher{probeResult: goodProbe("image/gif"), data: []byte("gif")}
	c := &fakeCrusher{
		uploadResult: &mediacrush.UploadResult{Hash: "abc123"},
		statusQueue:  []statusStep{{token: "done"}},
		info:         &mediacrush.FileInfo{Compression: 0.8},
	}
	rec := &fakeRecorder{}
	e := testEngine(t, f, c, &fakeReplier{}, rec)

	e.Run(context.Background(), mention(),
		domain.Submission{Domain: "example.com", URL: "http://example.com/cat.gif"})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	got := rec.records[0]
	if got.Outcome != domain.OutcomeDone || got.Hash != "abc123" || got.MentionID != "t1_c1" {
		t.Errorf("record = %+v, want done/abc123/t1_c1", got)
	}
}

func TestContentSubtype(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"image/gif", "gif"},
		{"video/mp4; codecs=avc1", "mp4"},
		{"weird", "weird"},
	}
	for _, tt := range tests {
		if got := contentSubtype(tt.in); got != tt.want {
			t.Errorf("contentSubtype(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
