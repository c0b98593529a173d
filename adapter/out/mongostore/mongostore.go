// Package mongostore implements the opaque payload/raw-body blob store
// against MongoDB.
package mongostore

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bbangmxn/mailintel/core/port/out"
)

const (
	collectionPayloads   = "message_payloads"
	compressionThreshold = 1024
)

// PayloadStore implements out.PayloadStore using MongoDB, gzip-compressing
// blobs above compressionThreshold the way a Mongo-backed mail body cache
// does.
type PayloadStore struct {
	collection *mongo.Collection
}

// NewPayloadStore creates a PayloadStore.
func NewPayloadStore(db *mongo.Database) *PayloadStore {
	return &PayloadStore{collection: db.Collection(collectionPayloads)}
}

// EnsureIndexes creates the unique index on message_id.
func (s *PayloadStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type payloadDocument struct {
	MessageID    string    `bson:"message_id"`
	Payload      []byte    `bson:"payload"`
	RawBody      []byte    `bson:"raw_body"`
	IsCompressed bool      `bson:"is_compressed"`
	CachedAt     time.Time `bson:"cached_at"`
}

var _ out.PayloadStore = (*PayloadStore)(nil)

func (s *PayloadStore) SavePayload(ctx context.Context, messageID string, payload, rawBody []byte) error {
	isCompressed := false
	if len(payload)+len(rawBody) > compressionThreshold {
		compressedPayload, err := compress(payload)
		if err != nil {
			return fmt.Errorf("compress payload: %w", err)
		}
		compressedRaw, err := compress(rawBody)
		if err != nil {
			return fmt.Errorf("compress raw body: %w", err)
		}
		payload, rawBody = compressedPayload, compressedRaw
		isCompressed = true
	}

	doc := payloadDocument{
		MessageID:    messageID,
		Payload:      payload,
		RawBody:      rawBody,
		IsCompressed: isCompressed,
		CachedAt:     time.Now(),
	}

	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"message_id": messageID}, doc, opts)
	if err != nil {
		return fmt.Errorf("save payload: %w", err)
	}
	return nil
}

func (s *PayloadStore) GetPayload(ctx context.Context, messageID string) ([]byte, []byte, error) {
	var doc payloadDocument
	err := s.collection.FindOne(ctx, bson.M{"message_id": messageID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get payload: %w", err)
	}

	if !doc.IsCompressed {
		return doc.Payload, doc.RawBody, nil
	}

	payload, err := decompress(doc.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress payload: %w", err)
	}
	rawBody, err := decompress(doc.RawBody)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress raw body: %w", err)
	}
	return payload, rawBody, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
