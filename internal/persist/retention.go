package persist

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunRetention periodically deletes events older than the retention period.
// Blocks until ctx is cancelled. Pass retentionDays <= 0 to disable.
func RunRetention(ctx context.Context, store *Store, retentionDays int) {
	if retentionDays <= 0 {
		log.Println("event retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Printf("event retention: pruning events older than %d days every %v", retentionDays, interval)

	// Run once immediately on startup, then on the ticker.
	prune(ctx, store, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, store, retentionDays)
		}
	}
}

func prune(ctx context.Context, store *Store, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := store.db.Collection("events").DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("event retention prune error: %v", err)
		return
	}

	if result.DeletedCount > 0 {
		log.Printf("event retention: pruned %d events older than %s", result.DeletedCount, cutoff.Format(time.DateOnly))
	}
}
