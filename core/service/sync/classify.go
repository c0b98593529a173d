package sync

import (
	"context"
	"fmt"

	"github.com/bbangmxn/mailintel/core/domain"
	"github.com/bbangmxn/mailintel/core/service/classification"
)

// runClassify implements the Classify+Embed operation.
// It re-queries ListUnclassified on every page, since each classified
// message leaves the unclassified set — paginating by a fixed offset
// against a shrinking set would skip entries. A message that fails stays
// in the set; it is attempted once per run, and a page holding only
// already-attempted messages is stepped over.
func (c *Controller) runClassify(ctx context.Context) {
	printed := 0
	total := -1
	offset := 0
	attempted := make(map[string]struct{})

	for {
		msgs, count, err := c.store.ListUnclassified(ctx, classifyPageSize, offset)
		if err != nil {
			c.updateClassify(func(p *Progress) { p.fail(fmt.Sprintf("failed to list unclassified messages: %v", err)) })
			return
		}
		if total < 0 {
			total = count
			c.updateClassify(func(p *Progress) { p.Total = total })
		}
		if len(msgs) == 0 {
			break
		}

		fresh := 0
		for _, msg := range msgs {
			if _, done := attempted[msg.ID]; done {
				continue
			}
			attempted[msg.ID] = struct{}{}
			fresh++
			if err := c.classifyOne(ctx, msg); err != nil {
				printed = c.recordError(&c.classify, classifyOp, msg.ID, err, printed)
				continue
			}
			c.updateClassify(func(p *Progress) { p.Processed++ })
		}
		if fresh == 0 {
			offset += len(msgs)
		}
	}

	c.updateClassify(func(p *Progress) { p.complete() })
}

// classifyOne classifies one message, persists the classification, embeds
// the canonical text, and persists the embedding (single or chunked). Each
// message contributes at most one to processed or errors.
func (c *Controller) classifyOne(ctx context.Context, msg *domain.Message) error {
	body := extractPlainTextBody(msg)

	result, err := c.classifier.Classify(ctx, classification.Input{
		Subject: msg.Subject,
		Body:    body,
		Sender:  msg.Sender,
		Headers: headersFromMap(msg.Headers),
	})
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	if _, err := c.store.CreateClassification(ctx, msg.ID, result.Labels, result.Priority, result.Summary, c.classifierModel); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}

	embedding, err := c.embedder.EmbedEmail(ctx, msg.Subject, body, msg.Sender)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if embedding.IsChunked() {
		if c.chunks == nil {
			return fmt.Errorf("save chunks: no chunk storage configured")
		}
		chunks := make([]domain.EmailChunk, len(embedding.Chunks))
		for i, ch := range embedding.Chunks {
			chunks[i] = domain.EmailChunk{MessageID: msg.ID, Index: i, Text: ch.Text, Embedding: ch.Embedding}
		}
		if err := c.chunks.SaveChunks(ctx, msg.ID, chunks); err != nil {
			return fmt.Errorf("save chunks: %w", err)
		}
		return nil
	}

	if err := c.store.SaveEmbedding(ctx, msg.ID, embedding.Single, c.embeddingModel); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}
