package postgres

import (
	"fmt"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

// applyListOpts appends time-window, ordering and pagination clauses for
// opts to query. tsCol names the timestamp column filtered and ordered on.
func applyListOpts(query string, args []any, tsCol string, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", tsCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", tsCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY %s DESC", tsCol)

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}
