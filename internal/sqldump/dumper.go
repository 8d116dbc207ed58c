// Package sqldump writes MySQL databases as re-executable SQL text and plays
// such text back against a live connection.
package sqldump

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DumpInfo is written into the dump header
type DumpInfo struct {
	SystemName  string
	Database    string
	User        string
	GeneratedAt time.Time
}

// DumpStats summarizes a finished dump
type DumpStats struct {
	Tables    int
	Views     int
	Rows      int
	Bytes     int64
	TableRows map[string]int
}

// Dumper serializes schema and data
type Dumper struct {
	// MaxRowsPerInsert splits large tables into several INSERT statements; 0 means one per table.
	MaxRowsPerInsert int
	logger           *logging.Logger
}

// NewDumper creates a dumper
func NewDumper(logger *logging.Logger) *Dumper {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Dumper{logger: logger}
}

type tableRef struct {
	name string
	view bool
}

// Dump writes the header, every base table (DDL then data) and finally every
// view to w. Tables are visited in the order the server lists them.
func (d *Dumper) Dump(ctx context.Context, q Queryer, w io.Writer, info DumpInfo) (*DumpStats, error) {
	done := d.logger.LogOperationStart("database_dump", map[string]interface{}{"database": info.Database})

	stats, err := d.dump(ctx, q, w, info)
	done(err)
	return stats, err
}

func (d *Dumper) dump(ctx context.Context, q Queryer, w io.Writer, info DumpInfo) (*DumpStats, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, 64*1024)
	stats := &DumpStats{TableRows: make(map[string]int)}

	tables, err := listTables(ctx, q)
	if err != nil {
		return nil, err
	}

	writeHeader(bw, info)

	var views []tableRef
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "dump canceled", err)
		}
		if t.view {
			views = append(views, t)
			continue
		}

		ddl, err := showCreate(ctx, q, "TABLE", t.name)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(bw, "\n-- -----------------------------------------------------\n")
		fmt.Fprintf(bw, "-- Table structure for %s\n", QuoteIdentifier(t.name))
		fmt.Fprintf(bw, "-- -----------------------------------------------------\n\n")
		fmt.Fprintf(bw, "DROP TABLE IF EXISTS %s;\n", QuoteIdentifier(t.name))
		fmt.Fprintf(bw, "%s;\n\n", strings.TrimSpace(ddl))

		rows, err := d.writeTableData(ctx, q, bw, t.name)
		if err != nil {
			return nil, err
		}
		if err := bw.Flush(); err != nil {
			return nil, appErrors.NewIOError("failed to write database dump", err)
		}
		stats.Tables++
		stats.Rows += rows
		stats.TableRows[t.name] = rows
		d.logger.WithFields(map[string]interface{}{"table": t.name, "rows": rows}).Debug("Table dumped")
	}

	for _, v := range views {
		ddl, err := showCreate(ctx, q, "VIEW", v.name)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(bw, "\n-- View %s\n", QuoteIdentifier(v.name))
		fmt.Fprintf(bw, "DROP VIEW IF EXISTS %s;\n", QuoteIdentifier(v.name))
		fmt.Fprintf(bw, "%s;\n", strings.TrimSpace(ddl))
		stats.Views++
	}

	bw.WriteString("\nSET FOREIGN_KEY_CHECKS = 1;\nCOMMIT;\n")

	if err := bw.Flush(); err != nil {
		return nil, appErrors.NewIOError("failed to write database dump", err)
	}
	stats.Bytes = cw.n
	return stats, nil
}

func writeHeader(w *bufio.Writer, info DumpInfo) {
	generated := info.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	title := "Database backup"
	if info.SystemName != "" {
		title += " - " + info.SystemName
	}

	fmt.Fprintf(w, "-- =====================================================\n")
	fmt.Fprintf(w, "-- %s\n", title)
	fmt.Fprintf(w, "-- Generated: %s\n", generated.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "-- Database: %s\n", info.Database)
	fmt.Fprintf(w, "-- User: %s\n", info.User)
	fmt.Fprintf(w, "-- =====================================================\n\n")
	w.WriteString("SET FOREIGN_KEY_CHECKS = 0;\n")
	w.WriteString("SET SQL_MODE = 'NO_AUTO_VALUE_ON_ZERO';\n")
	w.WriteString("SET AUTOCOMMIT = 0;\n")
	w.WriteString("START TRANSACTION;\n")
	w.WriteString("SET time_zone = '+00:00';\n")
}

func listTables(ctx context.Context, q Queryer) ([]tableRef, error) {
	rows, err := q.QueryContext(ctx, "SHOW FULL TABLES")
	if err != nil {
		return nil, appErrors.WrapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []tableRef
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, appErrors.WrapError(err, "failed to read table list")
		}
		tables = append(tables, tableRef{name: name, view: strings.EqualFold(kind, "VIEW")})
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.WrapError(err, "failed to read table list")
	}
	return tables, nil
}

// showCreate returns the DDL column of SHOW CREATE TABLE/VIEW
func showCreate(ctx context.Context, q Queryer, kind, name string) (string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SHOW CREATE %s %s", kind, QuoteIdentifier(name)))
	if err != nil {
		return "", appErrors.WrapError(err, fmt.Sprintf("failed to read definition of %s", name))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", appErrors.WrapError(err, fmt.Sprintf("failed to read definition of %s", name))
	}

	ddlIndex := -1
	for i, c := range cols {
		if strings.Contains(strings.ToLower(c), "create") {
			ddlIndex = i
			break
		}
	}
	if ddlIndex < 0 {
		if len(cols) < 2 {
			return "", appErrors.NewIOError(fmt.Sprintf("unexpected SHOW CREATE result for %s", name), nil)
		}
		ddlIndex = 1
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", appErrors.WrapError(err, fmt.Sprintf("failed to read definition of %s", name))
		}
		return "", appErrors.NewIOError(fmt.Sprintf("no definition returned for %s", name), nil)
	}

	values := make([]sql.RawBytes, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return "", appErrors.WrapError(err, fmt.Sprintf("failed to read definition of %s", name))
	}
	return string(values[ddlIndex]), nil
}

func (d *Dumper) writeTableData(ctx context.Context, q Queryer, w *bufio.Writer, table string) (int, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", QuoteIdentifier(table)))
	if err != nil {
		return 0, appErrors.WrapError(err, fmt.Sprintf("failed to read data of %s", table))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, appErrors.WrapError(err, fmt.Sprintf("failed to read columns of %s", table))
	}
	binary := binaryColumns(rows, len(cols))

	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = QuoteIdentifier(c)
	}
	insertPrefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES\n", QuoteIdentifier(table), strings.Join(quotedCols, ", "))

	values := make([]sql.RawBytes, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	count, inStatement := 0, 0
	for rows.Next() {
		if count%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return count, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "dump canceled", err)
			}
		}
		if err := rows.Scan(dest...); err != nil {
			return count, appErrors.WrapError(err, fmt.Sprintf("failed to read row of %s", table))
		}

		switch {
		case inStatement == 0:
			w.WriteString(fmt.Sprintf("-- Data for %s\n", QuoteIdentifier(table)))
			w.WriteString(insertPrefix)
		case d.MaxRowsPerInsert > 0 && inStatement >= d.MaxRowsPerInsert:
			w.WriteString(";\n")
			w.WriteString(insertPrefix)
			inStatement = 0
		default:
			w.WriteString(",\n")
		}

		w.WriteByte('(')
		for i, v := range values {
			if i > 0 {
				w.WriteString(", ")
			}
			w.WriteString(FormatValue(v, binary[i]))
		}
		w.WriteByte(')')

		count++
		inStatement++
	}
	if err := rows.Err(); err != nil {
		return count, appErrors.WrapError(err, fmt.Sprintf("failed to read data of %s", table))
	}
	if count > 0 {
		w.WriteString(";\n\n")
	}
	return count, nil
}

var binaryTypes = map[string]bool{
	"BINARY": true, "VARBINARY": true, "BLOB": true, "TINYBLOB": true,
	"MEDIUMBLOB": true, "LONGBLOB": true, "BIT": true, "GEOMETRY": true,
}

func binaryColumns(rows *sql.Rows, n int) []bool {
	out := make([]bool, n)
	types, err := rows.ColumnTypes()
	if err != nil {
		return out
	}
	for i, t := range types {
		if i < n {
			out[i] = binaryTypes[strings.ToUpper(t.DatabaseTypeName())]
		}
	}
	return out
}

// FormatValue renders one column value. nil is the bare NULL literal,
// binary columns become hex literals and everything else is a quoted string.
func FormatValue(v []byte, binary bool) string {
	switch {
	case v == nil:
		return "NULL"
	case binary && len(v) > 0:
		return "0x" + hex.EncodeToString(v)
	default:
		return QuoteString(v)
	}
}

// QuoteString quotes v as a MySQL string literal using backslash escapes
func QuoteString(v []byte) string {
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('\'')
	for _, c := range v {
		switch c {
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case 0x1a:
			b.WriteString(`\Z`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// QuoteIdentifier wraps a table or column name in backticks
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
