// Package mongodb implements the dispatch record store using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ianmp91/sqs-consumer-producer-micro/internal/storage"
)

// Store implements storage.Recorder using MongoDB
type Store struct {
	client  *mongo.Client
	records *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
	// Retention, when positive, expires records through a TTL index on
	// completed_at.
	Retention time.Duration
}

// NewStore connects to MongoDB and prepares the record collection
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "dispatch_records"
	}

	s := &Store{
		client:  client,
		records: client.Database(cfg.Database).Collection(collection),
	}

	if err := s.createIndexes(ctx, cfg.Retention); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context, retention time.Duration) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "received_at", Value: -1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "failed_stage", Value: 1}}},
		{Keys: bson.D{{Key: "correlation_id", Value: 1}}},
	}
	if retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention / time.Second)),
		})
	}

	_, err := s.records.Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("creating record indexes: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Record implements storage.Recorder
func (s *Store) Record(ctx context.Context, rec *storage.Record) error {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	_, err := s.records.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec, options.Replace().SetUpsert(true))
	return err
}

// Get implements storage.Recorder
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	var rec storage.Record
	err := s.records.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List implements storage.Recorder
func (s *Store) List(ctx context.Context, filter *storage.RecordFilter) ([]*storage.Record, error) {
	query := buildQuery(filter)

	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	if filter != nil && filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.records.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []*storage.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func buildQuery(filter *storage.RecordFilter) bson.M {
	query := bson.M{}
	if filter == nil {
		return query
	}
	if filter.State != "" {
		query["state"] = filter.State
	}
	if filter.FailedStage != "" {
		query["failed_stage"] = filter.FailedStage
	}
	if filter.CorrelationID != "" {
		query["correlation_id"] = filter.CorrelationID
	}
	if filter.Since != nil {
		query["received_at"] = bson.M{"$gte": *filter.Since}
	}
	return query
}
