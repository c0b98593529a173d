package out

import "context"

// PayloadStore persists the opaque MIME payload tree and raw body for a
// message, kept out of the relational store as a large, rarely-queried
// blob.
type PayloadStore interface {
	SavePayload(ctx context.Context, messageID string, payload, rawBody []byte) error
	GetPayload(ctx context.Context, messageID string) (payload, rawBody []byte, err error)
}
