package mysql

import (
	"context"
	"errors"
	"fmt"
	"github.com/jmoiron/sqlx"
	"strings"
)

var ErrSetRequired = errors.New("update requires set")

type updateBuilder struct {
	table string
	sets  []UpdateCond
	where *WhereCond
}

// UpdateWithoutWhere is an UPDATE still missing its WHERE clause; Exec is
// only reachable after Where, following the same two-stage shape as
// SelectWithoutWhere/SelectWithWhere.
type UpdateWithoutWhere struct{ builder updateBuilder }

// UpdateWithWhere is an UPDATE ready to run.
type UpdateWithWhere struct{ builder updateBuilder }

// UpdateFrom initializes a new update against the given table.
func UpdateFrom(table string) UpdateWithoutWhere {
	return UpdateWithoutWhere{builder: updateBuilder{table: table}}
}

// Set appends one or more assignments to the update.
func (b UpdateWithoutWhere) Set(conds ...UpdateCond) UpdateWithoutWhere {
	b.builder.sets = append(b.builder.sets, conds...)
	return b
}

// Where attaches the WHERE condition, unlocking Exec.
func (b UpdateWithoutWhere) Where(c *WhereCond) UpdateWithWhere {
	b.builder.where = c
	return UpdateWithWhere{builder: b.builder}
}

// Exec runs the UPDATE and returns the number of rows affected.
func (b UpdateWithWhere) Exec(ctx context.Context, db *sqlx.DB) (int64, error) {
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

// build constructs the UPDATE statement and its bound arguments.
func (b updateBuilder) build() (string, []any, error) {
	if len(b.sets) == 0 {
		return "", nil, ErrSetRequired
	}
	if b.where == nil {
		return "", nil, ErrWhereRequired
	}
	if !safeIdent(b.table) {
		return "", nil, fmt.Errorf("unsafe table: %s", b.table)
	}

	setStrs := make([]string, 0, len(b.sets))
	setArgs := make([]any, 0, len(b.sets))
	for _, s := range b.sets {
		setStrs = append(setStrs, fmt.Sprintf("%s = ?", s.Set))
		setArgs = append(setArgs, s.Arg)
	}

	sb := strings.Builder{}
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(setStrs, ", "))
	sb.WriteString(" WHERE ")
	sb.WriteString(b.where.GetSQL())

	return sb.String(), append(setArgs, b.where.args...), nil
}
