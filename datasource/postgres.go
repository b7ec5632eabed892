package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/carbonwise/go-forecaster/feature"
	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresSource reads readings from tables with "Date", "Usage" and "BuildingId" columns and
// sums them per month in the database.
type PostgresSource struct {
	pool   *pgxpool.Pool
	tables Tables
}

// NewPostgresSource connects to dsn and verifies the connection.
func NewPostgresSource(ctx context.Context, dsn string, tables Tables) (*PostgresSource, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresSourceFromPool(pool, tables), nil
}

func NewPostgresSourceFromPool(pool *pgxpool.Pool, tables Tables) *PostgresSource {
	if tables == nil {
		tables = DefaultTables()
	}
	return &PostgresSource{pool: pool, tables: tables}
}

func monthlyQuery(table string, filtered bool) string {
	where := `"Usage" > 0`
	if filtered {
		where += ` AND "BuildingId" = $1`
	}
	return fmt.Sprintf(`SELECT date_trunc('month', "Date") AS period, SUM("Usage")::numeric AS usage
FROM %s
WHERE %s
GROUP BY period
ORDER BY period`, pgx.Identifier{table}.Sanitize(), where)
}

func (s *PostgresSource) Observations(ctx context.Context, r feature.Resource, entity string) ([]timedataset.Observation, error) {
	table, err := s.tables.table(r)
	if err != nil {
		return nil, err
	}
	id, filtered, err := building(entity)
	if err != nil {
		return nil, err
	}

	var args []any
	if filtered {
		args = append(args, id.String())
	}
	rows, err := s.pool.Query(ctx, monthlyQuery(table, filtered), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var obs []timedataset.Observation
	for rows.Next() {
		var (
			period time.Time
			usage  pgtype.Numeric
		)
		if err := rows.Scan(&period, &usage); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if !usage.Valid || usage.NaN || usage.Int == nil {
			continue
		}
		obs = append(obs, timedataset.Observation{
			Period: period,
			Usage:  decimal.NewFromBigInt(usage.Int, usage.Exp),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return obs, nil
}

func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresSource) Close() {
	s.pool.Close()
}
