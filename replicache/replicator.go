package replicache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"orchestrator/job"
)

var replLogger = logrus.WithFields(logrus.Fields{"component": "replicache"})

// replCmd is the kind of change an update carries, mirroring the teacher's
// redis_stream Ticket/Activate/Deactivate/Assign enum but for job entries.
type replCmd int

const (
	cmdPut replCmd = iota
	cmdRemove
)

// update is one replicated change to a single cache entry.
type update struct {
	Cmd      replCmd
	Key      string
	Revision int64
	Status   job.CacheStatus
	Value    []byte // codec-encoded job.State, empty on remove
}

// replicator pushes local updates to the shared Redis stream and polls the
// stream for updates originating from other instances, following the
// teacher's redisReplicator XADD/XREAD pipeline.
type replicator struct {
	pool       *redis.Pool
	cfg        Config
	lastReplID string
}

func newReplicator(ctx context.Context, cfg Config) (*replicator, error) {
	pool := &redis.Pool{
		MaxIdle:     10,
		MaxActive:   cfg.PoolSize,
		IdleTimeout: cfg.PoolTimeout,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			var conn redis.Conn
			err := backoff.RetryNotify(
				func() error {
					var dialErr error
					opts := []redis.DialOption{
						redis.DialPassword(cfg.Password),
						redis.DialConnectTimeout(cfg.DialTimeout),
						redis.DialReadTimeout(cfg.ReadTimeout),
					}
					conn, dialErr = redis.Dial("tcp", cfg.Addr, opts...)
					return dialErr
				},
				backoff.WithContext(backoff.NewExponentialBackOff(
					backoff.WithMaxElapsedTime(cfg.DialMaxElapsedTime)), ctx),
				func(err error, d time.Duration) {
					replLogger.WithFields(logrus.Fields{"error": err}).Debugf("redis dial retry in %s", d)
				},
			)
			return conn, err
		},
	}

	conn, err := pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	conn.Close()

	return &replicator{
		pool:       pool,
		cfg:        cfg,
		lastReplID: "0",
	}, nil
}

func (r *replicator) close() error {
	return r.pool.Close()
}

// sendUpdates pipelines a batch of updates into the replication stream,
// followed by an XTRIM dropping entries older than the retention window —
// the same per-batch pipeline the teacher's SendUpdates runs.
func (r *replicator) sendUpdates(updates []*update, retention time.Duration) error {
	if len(updates) == 0 {
		return nil
	}

	conn := r.pool.Get()
	defer conn.Close()

	for _, u := range updates {
		args := []any{r.cfg.StreamName, "*"}
		switch u.Cmd {
		case cmdPut:
			args = append(args, "op", "put", "key", u.Key,
				"revision", strconv.FormatInt(u.Revision, 10),
				"status", string(u.Status),
				"value", string(u.Value))
		case cmdRemove:
			args = append(args, "op", "remove", "key", u.Key,
				"revision", strconv.FormatInt(u.Revision, 10))
		}
		if err := conn.Send("XADD", args...); err != nil {
			return fmt.Errorf("queue XADD for %s: %w", u.Key, err)
		}
	}

	minID := strconv.FormatInt(time.Now().Add(-retention).UnixMilli(), 10)
	if err := conn.Send("XTRIM", r.cfg.StreamName, "MINID", minID); err != nil {
		return fmt.Errorf("queue XTRIM: %w", err)
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("flush replication batch: %w", err)
	}
	for range updates {
		if _, err := conn.Receive(); err != nil {
			return fmt.Errorf("receive replication ack: %w", err)
		}
	}
	if _, err := conn.Receive(); err != nil {
		return fmt.Errorf("receive XTRIM ack: %w", err)
	}
	return nil
}

// poll performs a blocking XREAD for new updates since the last seen ID.
func (r *replicator) poll(blockMs int) ([]*update, error) {
	conn := r.pool.Get()
	defer conn.Close()

	args := []any{"COUNT", 256, "BLOCK", blockMs, "STREAMS", r.cfg.StreamName, r.lastReplID}
	data, err := conn.Do("XREAD", args...)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	streams, ok := data.([]any)
	if !ok || len(streams) == 0 {
		return nil, nil
	}
	entries, ok := streams[0].([]any)
	if !ok || len(entries) < 2 {
		return nil, nil
	}
	records, ok := entries[1].([]any)
	if !ok {
		return nil, nil
	}

	out := make([]*update, 0, len(records))
	for _, rec := range records {
		fields, ok := rec.([]any)
		if !ok || len(fields) != 2 {
			continue
		}
		replID, err := redis.String(fields[0], nil)
		if err != nil {
			continue
		}
		kv, err := redis.StringMap(fields[1], nil)
		if err != nil {
			continue
		}

		u := &update{Key: kv["key"]}
		if rev, err := strconv.ParseInt(kv["revision"], 10, 64); err == nil {
			u.Revision = rev
		}
		switch kv["op"] {
		case "put":
			u.Cmd = cmdPut
			u.Status = job.CacheStatus(kv["status"])
			u.Value = []byte(kv["value"])
		case "remove":
			u.Cmd = cmdRemove
		default:
			continue
		}

		out = append(out, u)
		r.lastReplID = replID
	}
	return out, nil
}
