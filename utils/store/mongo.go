package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tsinghua-fib-lab/microsim/schema"
	"github.com/tsinghua-fib-lab/microsim/utils/input"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore 每个快照一个文档，_id为{prefix}:{step}
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	prefix string
}

type snapshotDoc struct {
	ID       string           `bson:"_id"`
	Prefix   string           `bson:"prefix"`
	Step     int32            `bson:"step"`
	Snapshot *schema.Snapshot `bson:"snapshot"`
}

func NewMongoStore(ctx context.Context, uri, database, collection, prefix string) (*MongoStore, error) {
	if database == "" || collection == "" {
		return nil, errors.New("mongo store needs database and collection")
	}
	client, err := input.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		prefix: prefix,
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, snap *schema.Snapshot) error {
	doc := snapshotDoc{
		ID:       fmt.Sprintf("%s:%d", s.prefix, snap.Step),
		Prefix:   s.prefix,
		Step:     snap.Step,
		Snapshot: snap,
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save snapshot at step %d: %w", snap.Step, err)
	}
	return nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*schema.Snapshot, error) {
	var doc snapshotDoc
	err := s.coll.FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return doc.Snapshot, nil
}

func (s *MongoStore) Load(ctx context.Context, step int32) (*schema.Snapshot, error) {
	snap, err := s.find(ctx, bson.M{"_id": fmt.Sprintf("%s:%d", s.prefix, step)})
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", step, err)
	}
	return snap, nil
}

func (s *MongoStore) Latest(ctx context.Context) (*schema.Snapshot, error) {
	snap, err := s.find(ctx, bson.M{"prefix": s.prefix}, options.FindOne().SetSort(bson.D{{Key: "step", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	return snap, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
