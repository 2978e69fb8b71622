package infreport

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"infwatch/services/infreport/db"

	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

// Store mirrors each run into the investigations database the web app
// reads from. One investigation per run, one product row per item.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(db.Schema); err != nil {
		database.Close()
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// cleanNumeric strips thousands separators from a scraped count. Values
// that still fail to parse store as zero rather than failing the run.
func cleanNumeric(value string) int64 {
	n, err := strconv.ParseInt(strings.ReplaceAll(value, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// CreateInvestigation records one run and bulk-inserts its items. The
// upsert keyed on (investigation_id, sku) makes replays idempotent.
func (s *Store) CreateInvestigation(ctx context.Context, name string, items []ReportItem) (int64, error) {
	ctx, span := tracer.Start(ctx, "CreateInvestigation")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO investigations (name) VALUES (?)`, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	investigationID, err := res.LastInsertId()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx, `
INSERT INTO products (
    investigation_id, sku, product_name, inf_units,
    orders_impacted, successful_substitution_percent, status
) VALUES (?, ?, ?, ?, ?, ?, 'pending')
ON CONFLICT (investigation_id, sku) DO UPDATE SET
    product_name = excluded.product_name,
    inf_units = excluded.inf_units,
    orders_impacted = excluded.orders_impacted,
    successful_substitution_percent = excluded.successful_substitution_percent`,
			investigationID,
			item.SKU,
			item.ProductName,
			cleanNumeric(item.InfUnits),
			cleanNumeric(item.OrdersImpacted),
			item.InfPct,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	return investigationID, nil
}
