package persistence

import (
	"context"
	"fmt"

	"refdata-seeder/internal/seeding/domain/model"
	"refdata-seeder/internal/seeding/domain/repository"
	"refdata-seeder/internal/shared/logger"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisRunStore appends run summaries to a capped Redis stream
type RedisRunStore struct {
	client redis.Cmdable
	stream string
	maxLen int64
	logger logger.Logger
}

var _ repository.RunReporter = (*RedisRunStore)(nil)

// NewRedisRunStore creates a run store writing to stream, trimmed to roughly maxLen entries
func NewRedisRunStore(client redis.Cmdable, stream string, maxLen int64, log logger.Logger) *RedisRunStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisRunStore{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: log.WithComponent("run-store"),
	}
}

// Publish appends the summary to the stream
func (r *RedisRunStore) Publish(ctx context.Context, summary *model.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		r.logger.WithFields(map[string]interface{}{
			"run_id": summary.RunID,
		}).Errorf("Failed to serialize run summary: %v", err)
		return err
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"runId":       summary.RunID,
			"outcome":     string(summary.Outcome),
			"dryRun":      summary.DryRun,
			"startedAt":   summary.StartedAt.UnixNano(),
			"totalErrors": summary.TotalErrors,
			"summary":     payload,
		},
	}).Result()
	if err != nil {
		r.logger.WithFields(map[string]interface{}{
			"stream": r.stream,
			"run_id": summary.RunID,
		}).Errorf("Failed to publish run summary: %v", err)
		return err
	}

	r.logger.WithFields(map[string]interface{}{
		"stream":     r.stream,
		"run_id":     summary.RunID,
		"message_id": id,
	}).Debug("Run summary published")
	return nil
}

// Latest returns the most recent summary, or nil when the stream is empty
func (r *RedisRunStore) Latest(ctx context.Context) (*model.RunSummary, error) {
	runs, err := r.History(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// History returns up to limit summaries, newest first
func (r *RedisRunStore) History(ctx context.Context, limit int64) ([]*model.RunSummary, error) {
	msgs, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", limit).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	runs := make([]*model.RunSummary, 0, len(msgs))
	for _, msg := range msgs {
		summary, err := parseSummary(msg)
		if err != nil {
			r.logger.WithFields(map[string]interface{}{
				"stream":     r.stream,
				"message_id": msg.ID,
			}).Warnf("Skipping unreadable run summary: %v", err)
			continue
		}
		runs = append(runs, summary)
	}
	return runs, nil
}

func parseSummary(msg redis.XMessage) (*model.RunSummary, error) {
	raw, ok := msg.Values["summary"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no summary field", msg.ID)
	}
	var summary model.RunSummary
	if err := json.UnmarshalFromString(raw, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
