package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docchat-platform/internal/apperrors"
)

// MongoStore persists vector records in a MongoDB collection and ranks
// matches with in-process cosine similarity over the filtered set.
type MongoStore struct {
	collection *mongo.Collection
	dimension  int
}

type mongoRecord struct {
	ID       string         `bson:"_id"`
	Vector   []float64      `bson:"vector"`
	Metadata map[string]any `bson:"metadata"`
}

func NewMongoStore(db *mongo.Database, dimension int) *MongoStore {
	return &MongoStore{
		collection: db.Collection("vectors"),
		dimension:  dimension,
	}
}

func (s *MongoStore) Upsert(ctx context.Context, rec Record) error {
	if len(rec.Vector) != s.dimension {
		return &apperrors.StorageError{
			Backend: "vector",
			Op:      "upsert",
			Err:     fmt.Errorf("vector dimension %d does not match index dimension %d", len(rec.Vector), s.dimension),
		}
	}

	vec := make([]float64, len(rec.Vector))
	for i, v := range rec.Vector {
		vec[i] = float64(v)
	}

	doc := mongoRecord{ID: rec.ID, Vector: vec, Metadata: rec.Metadata}
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": rec.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return &apperrors.StorageError{Backend: "vector", Op: "upsert", Err: err}
	}
	return nil
}

func (s *MongoStore) QueryTopK(ctx context.Context, vector []float32, k int, filter map[string]any) ([]Match, error) {
	if k <= 0 {
		k = 5
	}

	query := bson.M{}
	for key, val := range filter {
		query["metadata."+key] = val
	}

	cursor, err := s.collection.Find(ctx, query)
	if err != nil {
		return nil, &apperrors.StorageError{Backend: "vector", Op: "query", Err: err}
	}
	defer cursor.Close(ctx)

	var matches []Match
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		vec := make([]float32, len(doc.Vector))
		for i, v := range doc.Vector {
			vec[i] = float32(v)
		}
		matches = append(matches, Match{
			Record: Record{ID: doc.ID, Vector: vec, Metadata: doc.Metadata},
			Score:  CosineSimilarity(vector, vec),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, &apperrors.StorageError{Backend: "vector", Op: "query", Err: err}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return &apperrors.StorageError{Backend: "vector", Op: "delete", Err: err}
	}
	return nil
}

func (s *MongoStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return &apperrors.StorageError{Backend: "vector", Op: "delete_many", Err: err}
	}
	return nil
}
