package sqlcache

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"orchestrator/cache"
	"orchestrator/job"
	"orchestrator/mysql"
)

// row is the job_cache table shape. Expected DDL:
//
//	CREATE TABLE job_cache (
//	  job_key        VARCHAR(255) PRIMARY KEY,
//	  entry_exists   TINYINT NOT NULL DEFAULT 0,
//	  revision       BIGINT  NOT NULL DEFAULT 0,
//	  status         VARCHAR(64) NOT NULL DEFAULT '',
//	  value          MEDIUMBLOB,
//	  ticket_token   VARCHAR(64),
//	  ticket_expiry  DATETIME(6)
//	)
type row struct {
	JobKey        string         `db:"job_key"`
	EntryExists   bool           `db:"entry_exists"`
	Revision      int64          `db:"revision"`
	Status        string         `db:"status"`
	Value         []byte         `db:"value"`
	TicketToken   sql.NullString `db:"ticket_token"`
	TicketExpiry  sql.NullTime   `db:"ticket_expiry"`
}

// SQLCache is a MySQL-backed cache.Cache. Unlike replicache (authoritative
// store plus an eventually-consistent local mirror), every operation here
// reads and writes the table directly — the database itself is the only
// shared state, so ticket ownership is enforced with conditional UPDATEs
// keyed on ticket_token rather than an in-process lock.
type SQLCache struct {
	db    *sqlx.DB
	table string
	codec *cache.Codec
}

func newSQLCache(db *sqlx.DB, cfg Config, codec *cache.Codec) *SQLCache {
	return &SQLCache{db: db, table: cfg.Table, codec: codec}
}

var _ cache.Cache = (*SQLCache)(nil)

func (s *SQLCache) Close() error {
	return s.db.Close()
}

// OpenNewTicket claims a brand-new key, or returns a Superseded ticket if a
// committed entry (or another live ticket) already occupies the row.
func (s *SQLCache) OpenNewTicket(ctx context.Context, key string, duration time.Duration) (*cache.Ticket, error) {
	now := time.Now()
	token := uuid.New().String()
	expiry := now.Add(duration)

	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO `+s.table+` (job_key, entry_exists, revision, status, ticket_token, ticket_expiry)
		 VALUES (?, 0, 0, '', ?, ?)
		 ON DUPLICATE KEY UPDATE
		   ticket_token = IF(entry_exists = 0 AND (ticket_expiry IS NULL OR ticket_expiry < ?), VALUES(ticket_token), ticket_token),
		   ticket_expiry = IF(entry_exists = 0 AND (ticket_expiry IS NULL OR ticket_expiry < ?), VALUES(ticket_expiry), ticket_expiry)`),
		key, token, expiry, now, now)
	if err != nil {
		return nil, errors.Errorf("sqlcache open new ticket: %w", err)
	}

	r, err := s.selectRow(ctx, key)
	if err != nil {
		return nil, err
	}
	if r == nil || r.TicketToken.String != token {
		return &cache.Ticket{Key: key, Superseded: true}, nil
	}
	return &cache.Ticket{Key: key, Revision: 0, GrantTime: now, Expiry: expiry}, nil
}

// OpenTicket reclaims an existing key at the expected revision, provided no
// other live ticket currently holds it.
func (s *SQLCache) OpenTicket(ctx context.Context, key string, revision int64, duration time.Duration) (*cache.Ticket, error) {
	existing, err := s.selectRow(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil || !existing.EntryExists {
		return &cache.Ticket{Key: key, Missing: true}, nil
	}
	if existing.Revision != revision {
		return &cache.Ticket{Key: key, Revision: revision, Superseded: true}, nil
	}

	now := time.Now()
	token := uuid.New().String()
	expiry := now.Add(duration)

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE `+s.table+` SET ticket_token = ?, ticket_expiry = ?
		 WHERE job_key = ? AND revision = ? AND entry_exists = 1
		   AND (ticket_expiry IS NULL OR ticket_expiry < ?)`),
		token, expiry, key, revision, now)
	if err != nil {
		return nil, errors.Errorf("sqlcache open ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &cache.Ticket{Key: key, Revision: revision, Superseded: true}, nil
	}
	return &cache.Ticket{Key: key, Revision: revision, GrantTime: now, Expiry: expiry}, nil
}

// CloseTicket releases a ticket early, but only if it is still the holder
// of record — a superseding ticket's lease is never clobbered.
func (s *SQLCache) CloseTicket(ctx context.Context, ticket *cache.Ticket) error {
	if ticket == nil {
		return nil
	}
	token, ok := s.ticketToken(ctx, ticket)
	if !ok {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE `+s.table+` SET ticket_token = NULL, ticket_expiry = NULL WHERE job_key = ? AND ticket_token = ?`),
		ticket.Key, token)
	return err
}

func (s *SQLCache) AddEntry(ctx context.Context, ticket *cache.Ticket, status job.CacheStatus, value *job.State) error {
	if err := validTicket(ticket); err != nil {
		return err
	}
	token, ok := s.ticketToken(ctx, ticket)
	if !ok {
		return job.ErrTicketSuperseded
	}

	enc, err := s.codec.Encode(value)
	if err != nil {
		return errors.Errorf("sqlcache encode: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE `+s.table+` SET entry_exists = 1, revision = 0, status = ?, value = ?
		 WHERE job_key = ? AND ticket_token = ? AND entry_exists = 0`),
		string(status), enc, ticket.Key, token)
	if err != nil {
		return errors.Errorf("sqlcache add entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return job.ErrDuplicateJob
	}
	return nil
}

func (s *SQLCache) GetEntry(ctx context.Context, ticket *cache.Ticket) (*cache.Entry, error) {
	if ticket == nil {
		return nil, job.ErrCacheMissing
	}
	return s.GetLatestEntry(ctx, ticket.Key)
}

func (s *SQLCache) GetLatestEntry(ctx context.Context, key string) (*cache.Entry, error) {
	r, err := s.selectRow(ctx, key)
	if err != nil {
		return nil, err
	}
	if r == nil || !r.EntryExists {
		return nil, job.ErrCacheMissing
	}
	return s.toEntry(r)
}

func (s *SQLCache) UpdateEntry(ctx context.Context, ticket *cache.Ticket, status job.CacheStatus, value *job.State) (int64, error) {
	if err := validTicket(ticket); err != nil {
		return 0, err
	}
	token, ok := s.ticketToken(ctx, ticket)
	if !ok {
		return 0, job.ErrTicketSuperseded
	}

	enc, err := s.codec.Encode(value)
	if err != nil {
		return 0, errors.Errorf("sqlcache encode: %w", err)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE `+s.table+` SET revision = revision + 1, status = ?, value = ?
		 WHERE job_key = ? AND ticket_token = ? AND revision = ? AND entry_exists = 1`),
		string(status), enc, ticket.Key, token, ticket.Revision)
	if err != nil {
		return 0, errors.Errorf("sqlcache update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, job.ErrTicketSuperseded
	}
	ticket.Revision++
	return ticket.Revision, nil
}

func (s *SQLCache) RemoveEntry(ctx context.Context, ticket *cache.Ticket) error {
	if err := validTicket(ticket); err != nil {
		return err
	}
	token, ok := s.ticketToken(ctx, ticket)
	if !ok {
		return job.ErrTicketSuperseded
	}

	_, err := mysql.DeleteFrom(s.table).
		Where(mysql.And(mysql.Eq("job_key", ticket.Key), mysql.Eq("ticket_token", token))).
		Exec(ctx, s.db)
	if err != nil {
		return errors.Errorf("sqlcache remove entry: %w", err)
	}
	return nil
}

func (s *SQLCache) QueryState(ctx context.Context, statuses []job.CacheStatus, includeActiveTickets bool) ([]*cache.Entry, error) {
	vals := make([]any, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}

	where := mysql.And(mysql.Eq("entry_exists", true), mysql.In("status", vals))
	sel := mysql.SelectFrom[row](s.table).Where(where)

	rows, err := sel.FetchAll(ctx, s.db)
	if err != nil {
		return nil, errors.Errorf("sqlcache query state: %w", err)
	}

	now := time.Now()
	out := make([]*cache.Entry, 0, len(rows))
	for i := range rows {
		r := rows[i]
		live := r.TicketToken.Valid && r.TicketExpiry.Valid && r.TicketExpiry.Time.After(now)
		if live && !includeActiveTickets {
			continue
		}
		e, err := s.toEntry(&r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLCache) toEntry(r *row) (*cache.Entry, error) {
	state := new(job.State)
	if len(r.Value) > 0 {
		if err := s.codec.Decode(r.Value, state); err != nil {
			return nil, errors.Errorf("sqlcache decode: %w", err)
		}
	}
	return &cache.Entry{Key: r.JobKey, Revision: r.Revision, CacheStatus: job.CacheStatus(r.Status), Value: state}, nil
}

func (s *SQLCache) selectRow(ctx context.Context, key string) (*row, error) {
	r, err := mysql.SelectFrom[row](s.table).Where(mysql.Eq("job_key", key)).Fetch(ctx, s.db)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Errorf("sqlcache select: %w", err)
	}
	return &r, nil
}

// ticketToken looks up the current ticket_token for the ticket's key and
// reports whether it still matches the ticket in hand.
func (s *SQLCache) ticketToken(ctx context.Context, ticket *cache.Ticket) (string, bool) {
	r, err := s.selectRow(ctx, ticket.Key)
	if err != nil || r == nil || !r.TicketToken.Valid {
		return "", false
	}
	if !r.TicketExpiry.Valid || !r.TicketExpiry.Time.After(time.Now()) {
		return "", false
	}
	return r.TicketToken.String, true
}

func validTicket(ticket *cache.Ticket) error {
	if ticket == nil || ticket.Missing || ticket.Superseded {
		return job.ErrTicketSuperseded
	}
	if !time.Now().Before(ticket.Expiry) {
		return job.ErrTicketExpired
	}
	return nil
}
