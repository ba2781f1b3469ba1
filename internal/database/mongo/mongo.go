package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoConfig struct {
	URI             string
	Database        string
	ConnectTimeout  time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	RetryWrites     bool
	RetryReads      bool
}

func DefaultConfig(uri, database string) *MongoConfig {
	return &MongoConfig{
		URI:             uri,
		Database:        database,
		ConnectTimeout:  10 * time.Second,
		MaxPoolSize:     100,
		MinPoolSize:     5,
		MaxConnIdleTime: 5 * time.Minute,
		RetryWrites:     true,
		RetryReads:      true,
	}
}

// Connect establishes the client and verifies the connection with a ping.
func Connect(ctx context.Context, config *MongoConfig) (*mongo.Client, *mongo.Database, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)

	opts := options.Client().
		ApplyURI(config.URI).
		SetServerAPIOptions(serverAPI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetMaxConnIdleTime(config.MaxConnIdleTime).
		SetRetryWrites(config.RetryWrites).
		SetRetryReads(config.RetryReads)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("could not verify MongoDB connection: %s", err)
	}

	return client, client.Database(config.Database), nil
}
