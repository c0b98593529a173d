package sync

import (
	"context"
	"fmt"
)

// runPull implements the Pull operation.
func (c *Controller) runPull(ctx context.Context) {
	if c.mail == nil {
		c.updatePull(func(p *Progress) { p.fail("mail provider credentials are not configured") })
		return
	}

	ids, err := c.mail.ListInboxIDs(ctx)
	if err != nil {
		c.updatePull(func(p *Progress) { p.fail(fmt.Sprintf("failed to enumerate inbox: %v", err)) })
		return
	}

	existing, err := c.store.GetMessageIDs(ctx)
	if err != nil {
		c.updatePull(func(p *Progress) { p.fail(fmt.Sprintf("failed to read existing message ids: %v", err)) })
		return
	}

	var newIDs []string
	for _, id := range ids {
		if _, ok := existing[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}

	c.updatePull(func(p *Progress) { p.Total = len(newIDs) })

	if len(newIDs) == 0 {
		c.updatePull(func(p *Progress) { p.complete() })
		return
	}

	printed := 0
	for _, id := range newIDs {
		if err := c.pullOne(ctx, id); err != nil {
			printed = c.recordError(&c.pull, pullOp, id, err, printed)
			continue
		}
		c.updatePull(func(p *Progress) { p.Processed++ })
	}

	c.updatePull(func(p *Progress) { p.complete() })
}

// pullOne fetches one message in full format and saves it immediately, so
// progress survives mid-run inspection.
func (c *Controller) pullOne(ctx context.Context, id string) error {
	payload, err := c.mail.FetchMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	msg, err := convertPayload(payload)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	if err := c.store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
