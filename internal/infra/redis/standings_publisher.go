package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assessment-engine/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const publishAttempts = 3

var errSuperseded = errors.New("standings superseded")

// StandingsPublisher mirrors recomputed standings into Redis so other
// instances and consumers can read them without touching the database.
//
//	GET standings:{testID}:generation             (WATCHed, must be lower)
//	SET standings:{testID}:generation {generation}
//	ZADD standings:{testID} {rank} {attemptID}    (replaced as a whole)
//	PUBLISH standings:{testID}:updates {leaderboard JSON}
//
// A leaderboard whose generation is not above the stored one is skipped, so
// a slow recompute never overwrites a newer ranking.
type StandingsPublisher struct {
	client *redis.Client
}

func NewStandingsPublisher(client *redis.Client) *StandingsPublisher {
	return &StandingsPublisher{client: client}
}

func (p *StandingsPublisher) PublishStandings(ctx context.Context, lb domain.Leaderboard) error {
	payload, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("encode standings %s: %w", lb.TestID, err)
	}

	key := StandingsKey(lb.TestID)
	genKey := GenerationKey(lb.TestID)
	members := make([]redis.Z, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		members = append(members, redis.Z{Score: float64(e.Rank), Member: e.AttemptID})
	}

	replace := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current >= lb.Generation {
			return errSuperseded
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, genKey, lb.Generation, 0)
			pipe.Del(ctx, key)
			if len(members) > 0 {
				pipe.ZAdd(ctx, key, members...)
			}
			pipe.Publish(ctx, UpdatesChannel(lb.TestID), payload)
			return nil
		})
		return err
	}

	for i := 0; i < publishAttempts; i++ {
		err = p.client.Watch(ctx, replace, genKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	switch {
	case errors.Is(err, errSuperseded):
		log.Debug().Str("test_id", lb.TestID).Int64("generation", lb.Generation).Msg("skip superseded standings")
		return nil
	case err != nil:
		return fmt.Errorf("publish standings %s: %w", lb.TestID, err)
	}
	return nil
}

// StandingsKey is the sorted set holding attempt ids scored by rank.
func StandingsKey(testID string) string {
	return "standings:" + testID
}

// GenerationKey holds the generation of the standings in StandingsKey.
func GenerationKey(testID string) string {
	return "standings:" + testID + ":generation"
}

// UpdatesChannel is the pub/sub channel announcing new standings.
func UpdatesChannel(testID string) string {
	return "standings:" + testID + ":updates"
}
