package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	vectorsCollection := db.Collection("vectors")
	vectorIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "metadata.type", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "metadata.fileName", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "metadata.uploadedAt", Value: -1}},
		},
	}
	_, err := vectorsCollection.Indexes().CreateMany(context.Background(), vectorIndexes)
	if err != nil {
		return err
	}

	return nil
}
