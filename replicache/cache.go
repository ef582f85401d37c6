package replicache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"orchestrator/cache"
	"orchestrator/job"
)

var cacheLogger = logrus.WithFields(logrus.Fields{"component": "replicache.cache"})

// mirrorEntry is the local, eventually-consistent copy of one hash entry,
// kept warm by the incoming replication loop so GetEntry and QueryState
// don't need a Redis round trip on every call.
type mirrorEntry struct {
	exists   bool
	revision int64
	status   job.CacheStatus
	value    *job.State
}

// RedisCache is a cache.Cache backed by a Redis hash per key (authoritative
// storage, read/written directly for anything ticket-gated) plus a stream
// replication feed that keeps a local sync.Map mirror warm for cheap reads,
// the same split the teacher's ReplicatedTicketCache draws between its
// state storage and its local Tickets/Assignments maps.
type RedisCache struct {
	c         *client
	repl      *replicator
	codec     *cache.Codec
	ttl       time.Duration
	retention time.Duration

	mirror sync.Map // string -> *mirrorEntry

	locksMu sync.Mutex
	locks   map[string]*lock // key -> lock currently held by this instance
}

// NewRedisCache dials Redis (data connection and replication stream) and
// returns a ready cache. Call StartReplication to begin mirroring.
func NewRedisCache(ctx context.Context, cfg Config, codec *cache.Codec) (*RedisCache, error) {
	cfg = cfg.withDefaults()

	c, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r, err := newReplicator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &RedisCache{
		c:         c,
		repl:      r,
		codec:     codec,
		ttl:       cfg.LockTTL,
		retention: cfg.RetentionWindow,
		locks:     make(map[string]*lock),
	}, nil
}

func (rc *RedisCache) Close() error {
	err1 := rc.c.Close()
	err2 := rc.repl.close()
	if err1 != nil {
		return err1
	}
	return err2
}

// StartReplication runs the incoming-update loop until ctx is cancelled,
// applying remote writes to the local mirror as they arrive.
func (rc *RedisCache) StartReplication(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			updates, err := rc.repl.poll(2000)
			if err != nil {
				cacheLogger.WithFields(logrus.Fields{"error": err}).Debug("replication poll failed")
				time.Sleep(time.Second)
				continue
			}
			for _, u := range updates {
				rc.applyRemote(u)
			}
		}
	}()
}

func (rc *RedisCache) applyRemote(u *update) {
	switch u.Cmd {
	case cmdRemove:
		rc.mirror.Delete(u.Key)
	case cmdPut:
		var state job.State
		if len(u.Value) > 0 {
			if err := rc.codec.Decode(u.Value, &state); err != nil {
				cacheLogger.WithFields(logrus.Fields{"error": err, "key": u.Key}).Warn("discarding malformed replicated entry")
				return
			}
		}
		rc.mirror.Store(u.Key, &mirrorEntry{
			exists:   true,
			revision: u.Revision,
			status:   u.Status,
			value:    &state,
		})
	}
}

func hashKey(key string) string {
	return fmt.Sprintf("job-entry:%s", key)
}

// readHash reads the authoritative hash entry directly from Redis.
func (rc *RedisCache) readHash(key string) (revision int64, status job.CacheStatus, value *job.State, exists bool, err error) {
	fields, err := rc.c.hGetAll(hashKey(key))
	if err != nil {
		return 0, "", nil, false, err
	}
	if len(fields) == 0 {
		return 0, "", nil, false, nil
	}
	rev, _ := strconv.ParseInt(fields["revision"], 10, 64)
	var state job.State
	if raw := fields["value"]; raw != "" {
		if err := rc.codec.Decode([]byte(raw), &state); err != nil {
			return 0, "", nil, false, fmt.Errorf("decode cache entry %s: %w", key, err)
		}
	}
	return rev, job.CacheStatus(fields["status"]), &state, true, nil
}

func (rc *RedisCache) writeHash(key string, revision int64, status job.CacheStatus, value *job.State) ([]byte, error) {
	encoded, err := rc.codec.Encode(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	err = rc.c.hSet(hashKey(key), map[string]any{
		"revision": strconv.FormatInt(revision, 10),
		"status":   string(status),
		"value":    string(encoded),
	})
	if err != nil {
		return nil, err
	}
	return encoded, nil
}

func (rc *RedisCache) trackLock(key string, l *lock) {
	rc.locksMu.Lock()
	rc.locks[key] = l
	rc.locksMu.Unlock()
}

func (rc *RedisCache) untrackLock(key string, l *lock) bool {
	rc.locksMu.Lock()
	defer rc.locksMu.Unlock()
	if rc.locks[key] != l {
		return false
	}
	delete(rc.locks, key)
	return true
}

// OpenNewTicket grants a ticket for a key expected not to exist yet.
func (rc *RedisCache) OpenNewTicket(ctx context.Context, key string, duration time.Duration) (*cache.Ticket, error) {
	_, _, _, exists, err := rc.readHash(key)
	if err != nil {
		return nil, err
	}
	if exists {
		return &cache.Ticket{Key: key, Superseded: true}, nil
	}

	l := newLock(rc.c, key, rc.ttl)
	ok, err := l.acquire()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &cache.Ticket{Key: key, Superseded: true}, nil
	}
	rc.trackLock(key, l)

	now := time.Now()
	return &cache.Ticket{
		Key:       key,
		Revision:  0,
		GrantTime: now,
		Expiry:    now.Add(duration),
	}, nil
}

// OpenTicket grants a ticket for an existing key at the expected revision.
func (rc *RedisCache) OpenTicket(ctx context.Context, key string, revision int64, duration time.Duration) (*cache.Ticket, error) {
	rev, _, _, exists, err := rc.readHash(key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &cache.Ticket{Key: key, Missing: true}, nil
	}
	if rev != revision {
		return &cache.Ticket{Key: key, Superseded: true}, nil
	}

	l := newLock(rc.c, key, rc.ttl)
	ok, err := l.acquire()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &cache.Ticket{Key: key, Superseded: true}, nil
	}
	rc.trackLock(key, l)

	now := time.Now()
	return &cache.Ticket{
		Key:       key,
		Revision:  revision,
		GrantTime: now,
		Expiry:    now.Add(duration),
	}, nil
}

// CloseTicket releases the underlying distributed lock. Idempotent.
func (rc *RedisCache) CloseTicket(ctx context.Context, t *cache.Ticket) error {
	if t == nil {
		return nil
	}
	rc.locksMu.Lock()
	l, ok := rc.locks[t.Key]
	rc.locksMu.Unlock()
	if !ok {
		return nil
	}
	if !rc.untrackLock(t.Key, l) {
		return nil
	}
	return l.release()
}

func (rc *RedisCache) checkTicket(t *cache.Ticket) error {
	if t == nil || t.Missing || t.Superseded {
		return job.ErrTicketSuperseded
	}
	if !time.Now().Before(t.Expiry) {
		return job.ErrTicketExpired
	}
	rc.locksMu.Lock()
	_, held := rc.locks[t.Key]
	rc.locksMu.Unlock()
	if !held {
		return job.ErrTicketSuperseded
	}
	return nil
}

func (rc *RedisCache) AddEntry(ctx context.Context, t *cache.Ticket, status job.CacheStatus, value *job.State) error {
	if err := rc.checkTicket(t); err != nil {
		return err
	}
	_, _, _, exists, err := rc.readHash(t.Key)
	if err != nil {
		return err
	}
	if exists {
		return job.ErrDuplicateJob
	}

	encoded, err := rc.writeHash(t.Key, 0, status, value)
	if err != nil {
		return err
	}
	if err := rc.repl.sendUpdates([]*update{{Cmd: cmdPut, Key: t.Key, Revision: 0, Status: status, Value: encoded}}, rc.retention); err != nil {
		cacheLogger.WithFields(logrus.Fields{"error": err, "key": t.Key}).Warn("replication publish failed")
	}
	rc.mirror.Store(t.Key, &mirrorEntry{exists: true, revision: 0, status: status, value: value})
	return nil
}

func (rc *RedisCache) getLocal(key string) (*mirrorEntry, bool) {
	if v, ok := rc.mirror.Load(key); ok {
		e := v.(*mirrorEntry)
		if e.exists {
			return e, true
		}
	}
	return nil, false
}

func (rc *RedisCache) GetEntry(ctx context.Context, ticket *cache.Ticket) (*cache.Entry, error) {
	key := ticket.Key
	if e, ok := rc.getLocal(key); ok {
		return &cache.Entry{Key: key, Revision: e.revision, CacheStatus: e.status, Value: e.value}, nil
	}
	return rc.GetLatestEntry(ctx, key)
}

// GetLatestEntry bypasses the local mirror and reads straight from Redis.
func (rc *RedisCache) GetLatestEntry(ctx context.Context, key string) (*cache.Entry, error) {
	rev, status, value, exists, err := rc.readHash(key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, job.ErrCacheMissing
	}
	return &cache.Entry{Key: key, Revision: rev, CacheStatus: status, Value: value}, nil
}

func (rc *RedisCache) UpdateEntry(ctx context.Context, t *cache.Ticket, status job.CacheStatus, value *job.State) (int64, error) {
	if err := rc.checkTicket(t); err != nil {
		return 0, err
	}
	rev, _, _, exists, err := rc.readHash(t.Key)
	if err != nil {
		return 0, err
	}
	if !exists || rev != t.Revision {
		return 0, job.ErrTicketSuperseded
	}

	newRev := rev + 1
	encoded, err := rc.writeHash(t.Key, newRev, status, value)
	if err != nil {
		return 0, err
	}
	if err := rc.repl.sendUpdates([]*update{{Cmd: cmdPut, Key: t.Key, Revision: newRev, Status: status, Value: encoded}}, rc.retention); err != nil {
		cacheLogger.WithFields(logrus.Fields{"error": err, "key": t.Key}).Warn("replication publish failed")
	}
	rc.mirror.Store(t.Key, &mirrorEntry{exists: true, revision: newRev, status: status, value: value})
	t.Revision = newRev
	return newRev, nil
}

func (rc *RedisCache) RemoveEntry(ctx context.Context, t *cache.Ticket) error {
	if err := rc.checkTicket(t); err != nil {
		return err
	}
	if err := rc.c.del(hashKey(t.Key)); err != nil {
		return err
	}
	if err := rc.repl.sendUpdates([]*update{{Cmd: cmdRemove, Key: t.Key}}, rc.retention); err != nil {
		cacheLogger.WithFields(logrus.Fields{"error": err, "key": t.Key}).Warn("replication publish failed")
	}
	rc.mirror.Delete(t.Key)
	return nil
}

// QueryState scans the local mirror. This trades strict consistency for
// speed: entries not yet replicated to this instance won't appear. Callers
// needing an authoritative view should pair this with GetLatestEntry.
func (rc *RedisCache) QueryState(ctx context.Context, statuses []job.CacheStatus, includeActiveTickets bool) ([]*cache.Entry, error) {
	want := make(map[job.CacheStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	out := make([]*cache.Entry, 0)
	rc.mirror.Range(func(k, v any) bool {
		key := k.(string)
		e := v.(*mirrorEntry)
		if !e.exists || !want[e.status] {
			return true
		}
		if !includeActiveTickets {
			rc.locksMu.Lock()
			_, locked := rc.locks[key]
			rc.locksMu.Unlock()
			if locked {
				return true
			}
		}
		out = append(out, &cache.Entry{Key: key, Revision: e.revision, CacheStatus: e.status, Value: e.value})
		return true
	})
	return out, nil
}

var _ cache.Cache = (*RedisCache)(nil)
