package persist

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mparet/crashcast/internal/event"
)

// MongoLog is a Log backed by the MongoDB events collection.
type MongoLog struct {
	coll *mongo.Collection
}

// NewMongoLog returns a Log writing to the store's events collection.
func NewMongoLog(store *Store) *MongoLog {
	return &MongoLog{coll: store.DB().Collection("events")}
}

// eventDoc is the stored form of an event. A zero Multiplier is stored
// as a missing field so session_start rows round-trip like CSV blanks.
type eventDoc struct {
	Timestamp  time.Time  `bson:"timestamp"`
	Type       event.Type `bson:"event_type"`
	Multiplier *float64   `bson:"multiplier,omitempty"`
	Comment    string     `bson:"comment,omitempty"`
}

func (d eventDoc) toEvent() event.Event {
	e := event.Event{Timestamp: d.Timestamp, Type: d.Type, Comment: d.Comment}
	if d.Multiplier != nil {
		e.Multiplier = *d.Multiplier
	}
	return e
}

func docFor(e event.Event) eventDoc {
	d := eventDoc{Timestamp: e.Timestamp, Type: e.Type, Comment: e.Comment}
	if e.Multiplier != 0 {
		m := e.Multiplier
		d.Multiplier = &m
	}
	return d
}

func (l *MongoLog) Append(ctx context.Context, e event.Event) error {
	if _, err := l.coll.InsertOne(ctx, docFor(e)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Replay streams all events in timestamp order through fn. Documents
// with an unknown event type are skipped and counted, matching the
// CSV backend's tolerance for malformed rows.
func (l *MongoLog) Replay(ctx context.Context, fn func(event.Event) error) (int, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := l.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return 0, fmt.Errorf("query events: %w", err)
	}
	defer cur.Close(ctx)

	skipped := 0
	for cur.Next(ctx) {
		var d eventDoc
		if err := cur.Decode(&d); err != nil {
			skipped++
			continue
		}
		if !event.Known(d.Type) {
			skipped++
			continue
		}
		if err := fn(d.toEvent()); err != nil {
			return skipped, err
		}
	}
	if err := cur.Err(); err != nil {
		return skipped, fmt.Errorf("iterate events: %w", err)
	}
	return skipped, nil
}

// Tail returns up to limit most recent events, oldest first. An empty
// typ matches all event types.
func (l *MongoLog) Tail(ctx context.Context, limit int, typ event.Type) ([]event.Event, error) {
	filter := bson.D{}
	if typ != "" {
		filter = bson.D{{Key: "event_type", Value: typ}}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := l.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer cur.Close(ctx)

	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	out := make([]event.Event, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d.toEvent()
	}
	return out, nil
}

func (l *MongoLog) Close(ctx context.Context) error {
	return nil
}

// Truncate removes all events, used by a full restart.
func (l *MongoLog) Truncate(ctx context.Context) error {
	if _, err := l.coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("truncate events: %w", err)
	}
	return nil
}
