package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bbangmxn/mailintel/pkg/apperr"
)

// Connect opens and pings a Mongo client, returning the named database.
func Connect(url, database string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(url).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, apperr.TransientExternal("connect to mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, apperr.TransientExternal("ping mongodb", err)
	}

	return client.Database(database), nil
}
