// Package ticker journals the device state to Redis: the live snapshot
// while it changes and every closed round.
package ticker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
	"github.com/LBBNetwork/JeopardyRingInPublic/telemetry"
)

// HistoryLength caps rounds:<device>.
const HistoryLength = 100

// Source is the round controller as the journal sees it. Changed wakes an
// idle journal without waiting out its sleep.
type Source interface {
	Snapshot() shared.Snapshot
	Changed() <-chan struct{}
	ClosedRounds() <-chan shared.Snapshot
}

// Store persists journal entries.
type Store interface {
	Save(ctx context.Context, deviceID string, data []byte) error
	Archive(ctx context.Context, deviceID string, data []byte) error
}

// RedisStore writes under the tick:<device> mutex so two controllers
// sharing a Redis never interleave.
type RedisStore struct {
	rdb *redis.Client
	rs  *redsync.Redsync
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, rs: redsync.New(goredis.NewPool(rdb))}
}

func (s *RedisStore) locked(ctx context.Context, deviceID string, fn func() error) error {
	mutex := s.rs.NewMutex(shared.RoundLockName(deviceID), redsync.WithExpiry(5*time.Second))
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("lock %s: %w", shared.RoundLockName(deviceID), err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			log.Warn().Err(err).Str("device", deviceID).Msg("unlock failed")
		}
	}()
	return fn()
}

func (s *RedisStore) Save(ctx context.Context, deviceID string, data []byte) error {
	return s.locked(ctx, deviceID, func() error {
		return s.rdb.Set(ctx, shared.RoundKey(deviceID), data, 0).Err()
	})
}

func (s *RedisStore) Archive(ctx context.Context, deviceID string, data []byte) error {
	return s.locked(ctx, deviceID, func() error {
		key := shared.RoundHistoryKey(deviceID)
		_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, key, data)
			pipe.LTrim(ctx, key, 0, HistoryLength-1)
			return nil
		})
		return err
	})
}

type Journal struct {
	deviceID string
	clock    clockwork.Clock
	src      Source
	store    Store
	pacer    *Pacer
	last     []byte
}

func NewJournal(deviceID string, tick time.Duration, clock clockwork.Clock, src Source, store Store) *Journal {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Journal{
		deviceID: deviceID,
		clock:    clock,
		src:      src,
		store:    store,
		pacer:    NewPacer(tick),
	}
}

// New runs a journal against the Redis client in ctx.
func New(ctx context.Context, deviceID string, tick time.Duration, src Source) func() error {
	return func() error {
		rdb := shared.RedisFrom(ctx)
		if rdb == nil {
			return fmt.Errorf("journal: no redis client in context")
		}
		if prev, err := shared.LoadSnapshot(ctx, deviceID); err != nil {
			log.Warn().Err(err).Msg("could not read previous journal entry")
		} else if prev != nil {
			log.Info().Str("round_id", prev.RoundID).Str("status", prev.Status).Msg("previous run's last journaled round")
		}
		return NewJournal(deviceID, tick, clockwork.NewRealClock(), src, NewRedisStore(rdb)).Run(ctx)
	}
}

func (j *Journal) Run(ctx context.Context) error {
	log.Info().Str("device", j.deviceID).Msg("journal started")
	var sleep time.Duration
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("journal stopping")
			return nil
		case snap := <-j.src.ClosedRounds():
			start := j.clock.Now()
			j.archive(ctx, snap)
			sleep = j.pacer.Busy(j.clock.Since(start))
		case <-j.src.Changed():
			sleep = j.tryTick(ctx)
		case <-j.clock.After(sleep):
			sleep = j.tryTick(ctx)
		}
	}
}

// tryTick saves the snapshot if it changed and returns the next sleep.
func (j *Journal) tryTick(ctx context.Context) time.Duration {
	data, err := json.Marshal(j.src.Snapshot())
	if err != nil {
		log.Error().Err(err).Msg("error marshalling snapshot")
		return j.pacer.Quiet()
	}
	if bytes.Equal(data, j.last) {
		wasIdle := j.pacer.Idle()
		next := j.pacer.Quiet()
		if !wasIdle && j.pacer.Idle() {
			log.Debug().Msg("journal idle")
		}
		return next
	}

	start := j.clock.Now()
	if err := j.store.Save(ctx, j.deviceID, data); err != nil {
		telemetry.JournalWrites.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("journal write failed")
		// Retry on the next half tick.
		return j.pacer.Busy(j.clock.Since(start))
	}
	telemetry.JournalWrites.WithLabelValues("ok").Inc()
	j.last = data
	return j.pacer.Busy(j.clock.Since(start))
}

func (j *Journal) archive(ctx context.Context, snap shared.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("error marshalling closed round")
		return
	}
	if err := j.store.Archive(ctx, j.deviceID, data); err != nil {
		telemetry.JournalWrites.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("round_id", snap.RoundID).Msg("round archive failed")
		return
	}
	telemetry.JournalWrites.WithLabelValues("archived").Inc()
	log.Debug().Str("round_id", snap.RoundID).Msg("round archived")
}
