package sqlcache

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator/cache"
	"orchestrator/job"
)

func newTestCache(t *testing.T) (*SQLCache, sqlmock.Sqlmock, func()) {
	t.Helper()

	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(rawDB, "mysql")

	sc := newSQLCache(db, Config{Table: "job_cache", LockTTL: 30 * time.Second}, cache.NewCodec(nil))
	return sc, mock, func() { _ = db.Close() }
}

func TestSQLCache_AddEntry(t *testing.T) {
	ctx := context.Background()
	sc, mock, cleanup := newTestCache(t)
	defer cleanup()

	ticket := &cache.Ticket{Key: "run-1", Expiry: time.Now().Add(time.Minute)}

	mock.ExpectQuery("SELECT \\* FROM job_cache WHERE job_key = \\?").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_key", "entry_exists", "revision", "status", "value", "ticket_token", "ticket_expiry",
		}).AddRow("run-1", false, 0, "", nil, "tok-1", time.Now().Add(time.Minute)))

	mock.ExpectExec("UPDATE job_cache SET entry_exists = 1, revision = 0, status = \\?, value = \\? WHERE job_key = \\? AND ticket_token = \\? AND entry_exists = 0").
		WithArgs(string(job.CacheQueuedInTrac), sqlmock.AnyArg(), "run-1", "tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := sc.AddEntry(ctx, ticket, job.CacheQueuedInTrac, &job.State{JobKey: "run-1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCache_AddEntry_TicketNotLive(t *testing.T) {
	ctx := context.Background()
	sc, mock, cleanup := newTestCache(t)
	defer cleanup()

	ticket := &cache.Ticket{Key: "run-2", Expiry: time.Now().Add(time.Minute)}

	mock.ExpectQuery("SELECT \\* FROM job_cache WHERE job_key = \\?").
		WithArgs("run-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_key", "entry_exists", "revision", "status", "value", "ticket_token", "ticket_expiry",
		}))

	err := sc.AddEntry(ctx, ticket, job.CacheQueuedInTrac, &job.State{JobKey: "run-2"})
	assert.ErrorIs(t, err, job.ErrTicketSuperseded)
}

func TestSQLCache_UpdateEntry_RevisionMismatch(t *testing.T) {
	ctx := context.Background()
	sc, mock, cleanup := newTestCache(t)
	defer cleanup()

	ticket := &cache.Ticket{Key: "run-3", Revision: 2, Expiry: time.Now().Add(time.Minute)}

	mock.ExpectQuery("SELECT \\* FROM job_cache WHERE job_key = \\?").
		WithArgs("run-3").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_key", "entry_exists", "revision", "status", "value", "ticket_token", "ticket_expiry",
		}).AddRow("run-3", true, 2, string(job.CacheQueuedInTrac), nil, "tok-3", time.Now().Add(time.Minute)))

	mock.ExpectExec("UPDATE job_cache SET revision = revision \\+ 1").
		WithArgs(string(job.CacheLaunchScheduled), sqlmock.AnyArg(), "run-3", "tok-3", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := sc.UpdateEntry(ctx, ticket, job.CacheLaunchScheduled, &job.State{JobKey: "run-3"})
	assert.ErrorIs(t, err, job.ErrTicketSuperseded)
}

func TestSQLCache_RemoveEntry(t *testing.T) {
	ctx := context.Background()
	sc, mock, cleanup := newTestCache(t)
	defer cleanup()

	ticket := &cache.Ticket{Key: "run-4", Expiry: time.Now().Add(time.Minute)}

	mock.ExpectQuery("SELECT \\* FROM job_cache WHERE job_key = \\?").
		WithArgs("run-4").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_key", "entry_exists", "revision", "status", "value", "ticket_token", "ticket_expiry",
		}).AddRow("run-4", true, 0, string(job.CacheReadyToRemove), nil, "tok-4", time.Now().Add(time.Minute)))

	mock.ExpectExec("DELETE FROM job_cache WHERE \\(job_key = \\?\\) AND \\(ticket_token = \\?\\)").
		WithArgs("run-4", "tok-4").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := sc.RemoveEntry(ctx, ticket)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCache_GetLatestEntry_Missing(t *testing.T) {
	ctx := context.Background()
	sc, mock, cleanup := newTestCache(t)
	defer cleanup()

	mock.ExpectQuery("SELECT \\* FROM job_cache WHERE job_key = \\?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_key", "entry_exists", "revision", "status", "value", "ticket_token", "ticket_expiry",
		}))

	_, err := sc.GetLatestEntry(ctx, "missing")
	assert.ErrorIs(t, err, job.ErrCacheMissing)
}
