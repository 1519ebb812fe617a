package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/hpungsan/sift/internal/errors"
)

// RunRow is one analysis_runs row. Data is the serialized findings blob.
type RunRow struct {
	ID        int64
	ProjectID int64
	ToolName  string
	DataType  string
	Data      []byte
	Timestamp int64 // unix milliseconds
	Source    string
}

// RunFilter narrows QueryRuns. Zero fields do not filter.
type RunFilter struct {
	ProjectID int64
	ToolName  string
	DataTypes []string
	Limit     int
	Offset    int
}

const runColumns = `id, project_id, tool_name, data_type, data, timestamp, source`

// InsertRun appends a row and returns the assigned id.
func InsertRun(ctx context.Context, db *sql.DB, r *RunRow) (int64, error) {
	query := `
		INSERT INTO analysis_runs (project_id, tool_name, data_type, data, timestamp, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := db.ExecContext(ctx, query,
		r.ProjectID, r.ToolName, r.DataType, string(r.Data), r.Timestamp, toNullString(r.Source),
	)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return id, nil
}

// QueryRuns returns matching rows, most recent first. Rows with equal
// timestamps are ordered by descending id so insertion order breaks ties.
func QueryRuns(ctx context.Context, db *sql.DB, f RunFilter) ([]RunRow, error) {
	where, args := f.clause()
	query := "SELECT " + runColumns + " FROM analysis_runs WHERE " + where +
		" ORDER BY timestamp DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []RunRow{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// MostRecentRun returns the newest row for project and tool, or nil if there is none.
func MostRecentRun(ctx context.Context, db *sql.DB, projectID int64, toolName string, dataTypes []string) (*RunRow, error) {
	rows, err := QueryRuns(ctx, db, RunFilter{
		ProjectID: projectID,
		ToolName:  toolName,
		DataTypes: dataTypes,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// GetRun retrieves one row by id.
func GetRun(ctx context.Context, db *sql.DB, id int64) (*RunRow, error) {
	row := db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM analysis_runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(formatID(id))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// CountRuns counts rows for a project.
func CountRuns(ctx context.Context, db *sql.DB, projectID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_runs WHERE project_id = ?", projectID).Scan(&n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// CountFiltered counts rows matching f. Limit and Offset are ignored.
func CountFiltered(ctx context.Context, db *sql.DB, f RunFilter) (int, error) {
	where, args := f.clause()
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analysis_runs WHERE "+where, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func (f RunFilter) clause() (string, []any) {
	where := []string{"project_id = ?"}
	args := []any{f.ProjectID}
	if f.ToolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, f.ToolName)
	}
	if len(f.DataTypes) > 0 {
		where = append(where, "data_type IN ("+placeholders(len(f.DataTypes))+")")
		for _, dt := range f.DataTypes {
			args = append(args, dt)
		}
	}
	return strings.Join(where, " AND "), args
}

// DistinctTools returns the tool names that have rows for a project, sorted.
func DistinctTools(ctx context.Context, db *sql.DB, projectID int64, dataTypes []string) ([]string, error) {
	query := "SELECT DISTINCT tool_name FROM analysis_runs WHERE project_id = ?"
	args := []any{projectID}
	if len(dataTypes) > 0 {
		query += " AND data_type IN (" + placeholders(len(dataTypes)) + ")"
		for _, dt := range dataTypes {
			args = append(args, dt)
		}
	}
	query += " ORDER BY tool_name"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// DeleteProjectRuns removes every row of a project and returns how many were deleted.
// This is the only delete path; individual runs are never removed.
func DeleteProjectRuns(ctx context.Context, db *sql.DB, projectID int64) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM analysis_runs WHERE project_id = ?", projectID)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row into a RunRow.
func scanRun(s scanner) (*RunRow, error) {
	var (
		r      RunRow
		data   string
		source sql.NullString
	)
	if err := s.Scan(&r.ID, &r.ProjectID, &r.ToolName, &r.DataType, &data, &r.Timestamp, &source); err != nil {
		return nil, err
	}
	r.Data = []byte(data)
	r.Source = source.String
	return &r, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// toNullString stores empty strings as NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
