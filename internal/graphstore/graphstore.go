// Package graphstore is an optional SQL-backed history sink for built flow
// Graphs: a component the core never requires, wired so the runtime can
// persist a record of what it built . Grounded on the driver-dispatch and connection-pool
// sizing style of internal/database's DBManager.Connect (sqlite/postgres/
// mysql driver-name mapping, SetMaxOpenConns/SetMaxIdleConns/
// SetConnMaxLifetime, db.Ping() on open), extended with
// github.com/denisenkom/go-mssqldb for SQL Server since that driver is
// otherwise unused by any SPEC_FULL.md component.
package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // cgo sqlite3 driver, alt to modernc's pure-Go one
	_ "modernc.org/sqlite"

	"bohrium/internal/errorsx"
	"bohrium/internal/flow"
)

// Store persists a summary of each flow Graph built during a run.
type Store struct {
	db *sql.DB
}

// Open dials a SQL backend by (dbType, dsn), the same driver-name mapping
// DBManager.Connect used.
func Open(dbType, dsn string) (*Store, error) {
	var driverName string
	switch dbType {
	case "sqlite":
		driverName = "sqlite" // modernc.org/sqlite, pure Go
	case "sqlite3":
		driverName = "sqlite3" // github.com/mattn/go-sqlite3, cgo
	case "postgres", "postgresql":
		driverName = "postgres"
	case "mysql":
		driverName = "mysql"
	case "mssql", "sqlserver":
		driverName = "sqlserver"
	default:
		return nil, errorsx.New(errorsx.ExecutorFailure, "graphstore.Open", "unsupported database type %q", dbType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ExecutorFailure, "graphstore.Open", "open %s", dbType)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errorsx.Wrap(err, errorsx.ExecutorFailure, "graphstore.Open", "ping %s", dbType)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Init creates the backing table if it does not already exist.
func (s *Store) Init(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS flow_batches (
 id INTEGER PRIMARY KEY AUTOINCREMENT,
 reason TEXT NOT NULL,
 node_count INTEGER NOT NULL,
 sub_dag_count INTEGER NOT NULL,
 instruction_count INTEGER NOT NULL,
 recorded_at TIMESTAMP NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "graphstore.Init", "create table")
	}
	return nil
}

// RecordGraph inserts one summary row for a built Graph. Instruction
// content itself is not persisted (no cross-invocation replay is in
// scope); only the shape of the built graph is, for offline inspection.
func (s *Store) RecordGraph(ctx context.Context, reason string, g *flow.Graph, recordedAt time.Time) error {
	const stmt = `INSERT INTO flow_batches (reason, node_count, sub_dag_count, instruction_count, recorded_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, reason, len(g.Nodes), g.SubDAGs, len(g.Instrs), recordedAt)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "graphstore.RecordGraph", "insert")
	}
	return nil
}

// RecentGraphs returns the last n recorded summaries, most recent first.
func (s *Store) RecentGraphs(ctx context.Context, n int) ([]GraphSummary, error) {
	const q = `SELECT reason, node_count, sub_dag_count, instruction_count, recorded_at FROM flow_batches ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ExecutorFailure, "graphstore.RecentGraphs", "query")
	}
	defer rows.Close()

	var out []GraphSummary
	for rows.Next() {
		var gs GraphSummary
		if err := rows.Scan(&gs.Reason, &gs.NodeCount, &gs.SubDAGCount, &gs.InstructionCount, &gs.RecordedAt); err != nil {
			return nil, fmt.Errorf("graphstore: scan row: %w", err)
		}
		out = append(out, gs)
	}
	return out, rows.Err()
}

// GraphSummary is one persisted row.
type GraphSummary struct {
	Reason string
	NodeCount int
	SubDAGCount int
	InstructionCount int
	RecordedAt time.Time
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
