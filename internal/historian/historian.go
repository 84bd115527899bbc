// internal/historian/historian.go
//
// The historian is an asynchronous archival service: it pops
// finished-game records from the Redis queue the engine feeds and
// persists them to PostgreSQL in batched transactions. Losing it costs
// history, never gameplay.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/goldrush-io/goldrush/internal/game"
)

// Service reads archive records from Redis and flushes them to the DB.
type Service struct {
	rdb        *redis.Client
	pool       *pgxpool.Pool
	log        *logrus.Logger
	queue      string
	batchSize  int
	flushDelay time.Duration
	popWait    time.Duration

	batchMu sync.Mutex
	batch   []game.ArchiveRecord
}

// New constructs a Service. Tunables come from the environment:
// ARCHIVE_QUEUE_NAME, HISTORIAN_BATCH_SIZE, HISTORIAN_FLUSH_MS.
func New(rdb *redis.Client, pool *pgxpool.Pool, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	batchSize := getEnvInt("HISTORIAN_BATCH_SIZE", 20)
	flushMs := getEnvInt("HISTORIAN_FLUSH_MS", 500)
	queue := os.Getenv("ARCHIVE_QUEUE_NAME")
	if queue == "" {
		queue = "goldrush:archive"
	}
	flushDelay := time.Duration(flushMs) * time.Millisecond
	// The pop wait bounds how long an idle queue can delay a periodic
	// flush, so it must never exceed the flush window itself.
	popWait := 3 * time.Second
	if flushDelay < popWait {
		popWait = flushDelay
	}
	return &Service{
		rdb:        rdb,
		pool:       pool,
		log:        logger,
		queue:      queue,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		popWait:    popWait,
		batch:      make([]game.ArchiveRecord, 0, batchSize),
	}
}

// Run blocks, draining the queue until ctx ends. A final flush runs on
// the way out.
func (hs *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(hs.flushDelay)
	defer ticker.Stop()

	hs.log.WithField("queue", hs.queue).Info("historian started")
	for {
		select {
		case <-ctx.Done():
			hs.flush(context.Background())
			hs.log.Info("historian shutting down")
			return

		case <-ticker.C:
			hs.flush(ctx)

		default:
			// BLPop with a short timeout so ctx cancellation is noticed.
			res, err := hs.rdb.BLPop(ctx, hs.popWait, hs.queue).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					// Queue idle; do not sit on pending records.
					hs.flush(ctx)
				} else if ctx.Err() == nil {
					hs.log.WithError(err).Error("BLPop failed")
				}
				continue
			}
			if len(res) < 2 {
				continue
			}

			var record game.ArchiveRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				hs.log.WithError(err).Warn("dropping malformed archive record")
				continue
			}
			hs.append(ctx, record)
		}
	}
}

func (hs *Service) append(ctx context.Context, record game.ArchiveRecord) {
	hs.batchMu.Lock()
	hs.batch = append(hs.batch, record)
	full := len(hs.batch) >= hs.batchSize
	hs.batchMu.Unlock()
	if full {
		hs.flush(ctx)
	}
}

// flush writes the pending batch in one transaction. Records are
// upserts keyed on the archive id, so a crash between flush and queue
// acknowledgement at worst rewrites identical rows.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	pending := make([]game.ArchiveRecord, len(hs.batch))
	copy(pending, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	err := pgx.BeginTxFunc(ctx, hs.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range pending {
			if err := insertRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert archive record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		hs.log.WithError(err).Error("flush to DB failed")
		return
	}
	hs.log.WithField("count", len(pending)).Info("flushed finished games to DB")
}

func insertRecordTx(ctx context.Context, tx pgx.Tx, rec game.ArchiveRecord) error {
	upsertGame := `
		INSERT INTO games (id, name, finished_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = $2, finished_at = $3
	`
	if _, err := tx.Exec(ctx, upsertGame, rec.ID, rec.Game, rec.FinishedAt); err != nil {
		return err
	}

	for _, res := range rec.Results {
		q := `
			INSERT INTO game_results (game_id, player, loot, artifacts, did_win)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (game_id, player)
			DO UPDATE SET loot = $3, artifacts = $4, did_win = $5
		`
		if _, err := tx.Exec(ctx, q, rec.ID, res.Name, res.Loot, len(res.Artifacts), res.Winner); err != nil {
			return err
		}
	}
	return nil
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
