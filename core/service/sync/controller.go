package sync

import (
	"context"
	"sync"

	"github.com/bbangmxn/mailintel/core/agent/embed"
	"github.com/bbangmxn/mailintel/core/port/out"
	"github.com/bbangmxn/mailintel/core/service/classification"
	"github.com/bbangmxn/mailintel/pkg/logger"
)

const (
	pullOp                  = "pull"
	classifyOp              = "classify"
	maxPrintedErrorsDefault = 10
	classifyPageSize        = 100
)

// Controller runs the Pull and Classify+Embed background operations, each
// single-flight. Grounded on core/service/email/worker_email_sync.go's
// SyncService, narrowed from its connection-scoped checkpoint/watch/SSE
// machinery down to a single in-memory Progress record per operation (no
// guaranteed-delivery queue, no push notifications).
type Controller struct {
	mail       out.MailProvider
	store      out.MessageStore
	chunks     out.ChunkStore
	classifier *classification.Pipeline
	embedder   *embed.Engine

	classifierModel  string
	embeddingModel   string
	maxPrintedErrors int

	mu       sync.Mutex
	pull     Progress
	classify Progress
}

// New constructs a Controller. mail may be nil, representing missing
// provider credentials: StartPull still
// succeeds (the single-flight transition happens regardless) but the run
// immediately fails with an explanatory message.
func New(
	mail out.MailProvider,
	store out.MessageStore,
	chunks out.ChunkStore,
	classifier *classification.Pipeline,
	embedder *embed.Engine,
	classifierModel, embeddingModel string,
	maxPrintedErrors int,
) *Controller {
	if maxPrintedErrors <= 0 {
		maxPrintedErrors = maxPrintedErrorsDefault
	}
	return &Controller{
		mail:             mail,
		store:            store,
		chunks:           chunks,
		classifier:       classifier,
		embedder:         embedder,
		classifierModel:  classifierModel,
		embeddingModel:   embeddingModel,
		maxPrintedErrors: maxPrintedErrors,
		pull:             newProgress(pullOp),
		classify:         newProgress(classifyOp),
	}
}

// StartPull starts a Pull run, returning false if one is already running.
func (c *Controller) StartPull(ctx context.Context) bool {
	c.mu.Lock()
	if c.pull.Status == StatusRunning {
		c.mu.Unlock()
		return false
	}
	c.pull.start()
	c.mu.Unlock()

	go c.runPull(ctx)
	return true
}

// StartClassify starts a Classify+Embed run, returning false if one is
// already running.
func (c *Controller) StartClassify(ctx context.Context) bool {
	c.mu.Lock()
	if c.classify.Status == StatusRunning {
		c.mu.Unlock()
		return false
	}
	c.classify.start()
	c.mu.Unlock()

	go c.runClassify(ctx)
	return true
}

// PullProgress returns a snapshot of the Pull operation's progress.
func (c *Controller) PullProgress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pull
}

// ClassifyProgress returns a snapshot of the Classify+Embed operation's progress.
func (c *Controller) ClassifyProgress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classify
}

func (c *Controller) updatePull(fn func(*Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.pull)
}

func (c *Controller) updateClassify(fn func(*Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.classify)
}

// recordError increments the given progress record's error count and
// prints up to maxPrintedErrors log lines, suppressing (but still
// counting) the rest, step 4.
func (c *Controller) recordError(p *Progress, op, id string, err error, printed int) int {
	c.mu.Lock()
	p.Errors++
	c.mu.Unlock()

	if printed < c.maxPrintedErrors {
		logger.Error("[sync.%s] failed on message %s: %v", op, id, err)
		printed++
	}
	return printed
}
