package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/metrics"
)

// Repository handles raw batch inserts into ClickHouse tables
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ClickHouse repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// InsertBatch inserts a batch of rows into the given table. All rows must
// carry the same column count, in table column order.
func (r *Repository) InsertBatch(ctx context.Context, tableName string, values [][]interface{}) error {
	if len(values) == 0 {
		return nil
	}

	columnCount := len(values[0])
	if columnCount == 0 {
		return fmt.Errorf("values have no columns")
	}

	placeholders := make([]string, len(values))
	args := make([]interface{}, 0, len(values)*columnCount)

	for i, row := range values {
		if len(row) != columnCount {
			return fmt.Errorf("row %d has wrong column count: expected %d, got %d", i, columnCount, len(row))
		}

		valuePlaceholders := make([]string, columnCount)
		for j := range row {
			valuePlaceholders[j] = "?"
		}
		placeholders[i] = "(" + strings.Join(valuePlaceholders, ", ") + ")"

		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s VALUES %s", tableName, strings.Join(placeholders, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("ClickHouse insert failed: %w", err)
	}

	logger.Debug("ClickHouse batch insert successful",
		zap.String("table", tableName),
		zap.Int("rows", len(values)),
	)

	return nil
}

// Close closes the connection pool
func (r *Repository) Close() error {
	return r.db.Close()
}

// Writer adapts the repository to the metrics.Writer interface
type Writer struct {
	repo *Repository
}

// NewWriter creates new metrics writer backed by the repository
func NewWriter(repo *Repository) *Writer {
	return &Writer{repo: repo}
}

// Write converts metrics to value rows and batch-inserts them
func (w *Writer) Write(ctx context.Context, tableName string, batch []metrics.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	values := make([][]interface{}, len(batch))
	for i, metric := range batch {
		values[i] = metric.Values()
	}

	return w.repo.InsertBatch(ctx, tableName, values)
}

// Close closes the underlying repository
func (w *Writer) Close() error {
	if w.repo != nil {
		return w.repo.Close()
	}
	return nil
}
