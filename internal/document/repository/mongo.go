package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/collabdoc/collabdoc/backend/sync-server/internal/document"
)

// MongoRepo implements a MongoDB-backed repository for documents.
// The document id is used as _id, so uniqueness is enforced by the primary
// index. Content is kept as the exact JSON text in the "data" field.
type MongoRepo struct {
	col *mongo.Collection
	now func() time.Time
}

type mongoRecord struct {
	ID        string    `bson:"_id"`
	Data      string    `bson:"data"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func (r *mongoRecord) toDocument() *document.Document {
	return &document.Document{
		ID:        r.ID,
		Content:   json.RawMessage(r.Data),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	return &MongoRepo{col: col, now: time.Now}
}

func (m *MongoRepo) Load(ctx context.Context, id string) (*document.Document, error) {
	var rec mongoRecord
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("mongo load %s: %w", id, err)
	}
	return rec.toDocument(), nil
}

func (m *MongoRepo) Create(ctx context.Context, id string) (*document.Document, error) {
	d := document.New(id, m.now().UTC())
	rec := mongoRecord{ID: d.ID, Data: string(d.Content), CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
	if _, err := m.col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, document.ErrAlreadyExists
		}
		return nil, fmt.Errorf("mongo create %s: %w", id, err)
	}
	return d, nil
}

// GetOrCreate relies on the unique _id index: of several concurrent inserts
// exactly one succeeds, the others observe a duplicate key and load it.
func (m *MongoRepo) GetOrCreate(ctx context.Context, id string) (*document.Document, bool, error) {
	d, err := m.Load(ctx, id)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, document.ErrNotFound) {
		return nil, false, err
	}
	d, err = m.Create(ctx, id)
	if err == nil {
		return d, true, nil
	}
	if !errors.Is(err, document.ErrAlreadyExists) {
		return nil, false, err
	}
	d, err = m.Load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return d, false, nil
}

func (m *MongoRepo) Save(ctx context.Context, id string, content json.RawMessage) error {
	set := bson.M{"data": string(content), "updatedAt": m.now().UTC()}
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongo save %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (m *MongoRepo) List(ctx context.Context) ([]*document.Document, error) {
	cur, err := m.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo list: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var rec mongoRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, err
		}
		out = append(out, rec.toDocument())
	}
	return out, cur.Err()
}
