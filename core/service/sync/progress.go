// Package sync implements the two single-flight background operations,
// Pull and Classify+Embed.
package sync

import "time"

// Status is a Progress record's lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Progress is the in-memory record a caller polls mid-run. There is no
// guaranteed-delivery queue behind it — a process
// restart loses it.
type Progress struct {
	Op           string
	Status       Status
	Total        int
	Processed    int
	Errors       int
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func newProgress(op string) Progress {
	return Progress{Op: op, Status: StatusIdle}
}

func (p *Progress) start() {
	now := time.Now()
	p.Status = StatusRunning
	p.Total = 0
	p.Processed = 0
	p.Errors = 0
	p.ErrorMessage = ""
	p.StartedAt = &now
	p.CompletedAt = nil
}

func (p *Progress) fail(message string) {
	now := time.Now()
	p.Status = StatusError
	p.ErrorMessage = message
	p.CompletedAt = &now
}

func (p *Progress) complete() {
	now := time.Now()
	p.Status = StatusCompleted
	p.CompletedAt = &now
}
