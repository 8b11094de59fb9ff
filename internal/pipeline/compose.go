package pipeline

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Web5design/MediaCrusher/internal/domain"
)

// Reply wording. The footer and apology sentences are part of the bot's
// public voice and stay stable across releases.
const replyFooter = "^^[faq](http://www.reddit.com/r/MediaCrush/wiki/mediacrusher) " +
	"^^- ^^[upload](https://mediacru.sh)"

var apologies = map[domain.Outcome]string{
	domain.OutcomeAlreadyHosted:     "This post is already on mediacru.sh, silly!",
	domain.OutcomeUnsupportedMedia:  "This post isn't a supported media type. :(",
	domain.OutcomeFetchError:        "There was an error fetching this file. :(",
	domain.OutcomeUploadRejected:    "MediaCrush didn't like this for some reason. Sorry :(",
	domain.OutcomeProcessingTimeout: "This took too long for us to process :(",
	domain.OutcomeProcessingError:   "Something went wrong :(",
}

// composeReply maps a terminal session to the reply text.
func (e *Engine) composeReply(session *domain.UploadSession) string {
	if session.Outcome == domain.OutcomeDone {
		return e.successReply(session)
	}
	if text, ok := apologies[session.Outcome]; ok {
		return text
	}
	return apologies[domain.OutcomeProcessingError]
}

func (e *Engine) successReply(session *domain.UploadSession) string {
	pct := session.CompressionPercent()
	pageURL := e.crush.PageURL(session.Hash)
	compliment := e.compliments.Pick()

	if pct >= 100 {
		return fmt.Sprintf("Done! It loads **%d%% faster** now. %s\n\n*%s* %s",
			pct, pageURL, compliment, replyFooter)
	}
	return fmt.Sprintf("Done! %s\n\n*%s* %s", pageURL, compliment, replyFooter)
}

// Compliments is an immutable phrase table with a guarded random source,
// shared read-only by all concurrent pipeline runs.
type Compliments struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	phrases []string
}

// NewCompliments builds the phrase table. The table must not be empty.
func NewCompliments(phrases []string) (*Compliments, error) {
	if len(phrases) == 0 {
		return nil, domain.ErrNoCompliments
	}
	table := make([]string, len(phrases))
	copy(table, phrases)
	return &Compliments{
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		phrases: table,
	}, nil
}

// Pick returns one phrase chosen uniformly at random. Safe for concurrent
// use.
func (c *Compliments) Pick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phrases[c.rnd.Intn(len(c.phrases))]
}
