package mysql

import (
	"context"
	"fmt"
	"github.com/jmoiron/sqlx"
	"strings"
)

type deleteBuilder struct {
	table string
	where *WhereCond
}

// DeleteWithoutWhere is a DELETE still missing its WHERE clause.
type DeleteWithoutWhere struct{ builder deleteBuilder }

// DeleteWithWhere is a DELETE ready to run.
type DeleteWithWhere struct{ builder deleteBuilder }

// DeleteFrom initializes a new delete against the given table.
func DeleteFrom(table string) DeleteWithoutWhere {
	return DeleteWithoutWhere{builder: deleteBuilder{table: table}}
}

// Where attaches the WHERE condition, unlocking Exec. A DELETE with no
// WHERE clause is never allowed — there is no WithoutWhere.Exec.
func (b DeleteWithoutWhere) Where(c *WhereCond) DeleteWithWhere {
	b.builder.where = c
	return DeleteWithWhere{builder: b.builder}
}

// Exec runs the DELETE and returns the number of rows affected.
func (b DeleteWithWhere) Exec(ctx context.Context, db *sqlx.DB) (int64, error) {
	q, args, err := b.builder.build()
	if err != nil {
		return 0, err
	}
	q = db.Rebind(q)

	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// build constructs the DELETE statement and its bound arguments.
func (b deleteBuilder) build() (string, []any, error) {
	if b.where == nil {
		return "", nil, ErrWhereRequired
	}
	if !safeIdent(b.table) {
		return "", nil, fmt.Errorf("unsafe table: %s", b.table)
	}

	sb := strings.Builder{}
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	sb.WriteString(" WHERE ")
	sb.WriteString(b.where.GetSQL())

	return sb.String(), b.where.args, nil
}
