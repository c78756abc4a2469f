package database

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// AllocateRange reserves n consecutive values from the named sequence and
// returns the first. The UPDATE takes the row (or database) write lock before
// the read, so concurrent callers never receive overlapping ranges. Call it
// inside a transaction.
func AllocateRange(tx *gorm.DB, name string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("allocation size must be positive, got %d", n)
	}

	updateSQL, args, err := psql.Update("sequences").
		Set("value", sq.Expr("value + ?", n)).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for AllocateRange update: %w", err)
	}

	res := tx.Exec(updateSQL, args...)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, res.Error)
	}

	if res.RowsAffected == 0 {
		// sequence missing (schema created outside AutoMigrateModels); seed from the photos table
		insertSQL, insertArgs, err := psql.Insert("sequences").
			Columns("name", "value").
			Select(psql.Select().
				Column("?", name).
				Column("COALESCE(MAX(order_index), 0) + ?", n).
				From("photos")).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build SQL for AllocateRange seed: %w", err)
		}
		if err := tx.Exec(insertSQL, insertArgs...).Error; err != nil {
			return 0, fmt.Errorf("failed to seed sequence %s: %w", name, err)
		}
	}

	selectSQL, selectArgs, err := psql.Select("value").
		From("sequences").
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for AllocateRange select: %w", err)
	}

	var value int64
	if err := tx.Raw(selectSQL, selectArgs...).Scan(&value).Error; err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return value - n + 1, nil
}

// CountsByKey runs "SELECT key, COUNT(*) FROM table GROUP BY key" and returns
// the counts keyed by id.
func CountsByKey(db *gorm.DB, table, key string) (map[uint]int64, error) {
	sqlStr, args, err := psql.Select(key+" AS id", "COUNT(*) AS n").
		From(table).
		GroupBy(key).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for CountsByKey(%s): %w", table, err)
	}

	var rows []struct {
		ID uint
		N  int64
	}
	if err := db.Raw(sqlStr, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count %s by %s: %w", table, key, err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.ID] = row.N
	}
	return counts, nil
}
