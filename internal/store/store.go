package store

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hpungsan/sift/internal/config"
	"github.com/hpungsan/sift/internal/db"
	"github.com/hpungsan/sift/internal/errors"
	"github.com/hpungsan/sift/internal/finding"
)

// DefaultCacheSize is the number of decoded runs kept in memory.
const DefaultCacheSize = 512

// analysisDataTypes are the data types read back as findings.
var analysisDataTypes = []string{
	finding.DataTypeCodeAnalysis,
	finding.DataTypeSemgrepLegacy,
	finding.DataTypeHighlightsLegacy,
}

// Options configures a Store.
type Options struct {
	Logger    hclog.Logger
	Config    *config.Config
	CacheSize int
	// Now overrides the clock for run timestamps.
	Now func() time.Time
}

// Store is the append-only log of analysis runs for one store file.
// Appends are serialized; reads run concurrently.
type Store struct {
	path string
	db   *sql.DB
	log  hclog.Logger
	now  func() time.Time

	mu sync.Mutex // serializes Append and Clear

	// Runs are immutable once stored, so decoded findings are cached by id.
	cache *lru.Cache[int64, []finding.Finding]
}

// Open opens an existing store file. Fails with STORE_UNAVAILABLE when the file is
// missing, corrupt or uninitialized.
func Open(path string, opts Options) (*Store, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return newStore(path, conn, opts)
}

// Create opens the store file at path, creating it if needed.
func Create(path string, opts Options) (*Store, error) {
	conn, err := db.Create(path)
	if err != nil {
		return nil, errors.NewStoreUnavailable(path, err)
	}
	return newStore(path, conn, opts)
}

func newStore(path string, conn *sql.DB, opts Options) (*Store, error) {
	db.ConfigurePool(conn, opts.Config)

	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[int64, []finding.Finding](size)
	if err != nil {
		conn.Close()
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		path:  path,
		db:    conn,
		log:   log.Named("store"),
		now:   now,
		cache: cache,
	}, nil
}

// Path returns the store file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append assigns an id to run and appends it. It never overwrites or merges with
// an earlier run. DataType defaults to code-analysis and Timestamp to now.
func (s *Store) Append(ctx context.Context, run *finding.Run) (int64, error) {
	if run == nil {
		return 0, errors.NewInvalidRequest("run is required")
	}
	if run.ProjectID <= 0 {
		return 0, errors.NewInvalidRequest("project_id must be positive")
	}
	if run.ToolName == "" {
		return 0, errors.NewInvalidRequest("tool_name is required")
	}
	if run.DataType == "" {
		run.DataType = finding.DataTypeCodeAnalysis
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = s.now()
	}

	blob, err := finding.Encode(run.Findings)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	// Cache the stored form so cached and re-read runs are identical.
	stored, err := finding.DecodeStored(run.ToolName, blob)
	if err != nil {
		return 0, errors.NewInternal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := db.InsertRun(ctx, s.db, &db.RunRow{
		ProjectID: run.ProjectID,
		ToolName:  run.ToolName,
		DataType:  run.DataType,
		Data:      blob,
		Timestamp: run.Timestamp.UnixMilli(),
		Source:    run.Source,
	})
	if err != nil {
		return 0, err
	}
	run.ID = id
	s.cache.Add(id, stored)

	s.log.Debug("run appended", "id", id, "project", run.ProjectID, "tool", run.ToolName,
		"findings", len(run.Findings), "source", run.Source)
	return id, nil
}

// QueryRuns returns the project's analysis runs, most recent first, optionally
// filtered by tool. A project with no runs yields an empty list.
// Rows of other data types are skipped; rows whose blob cannot be decoded are
// logged and skipped.
func (s *Store) QueryRuns(ctx context.Context, projectID int64, toolName string) ([]finding.Run, error) {
	return s.query(ctx, db.RunFilter{ProjectID: projectID, ToolName: toolName, DataTypes: analysisDataTypes})
}

// ListRuns is QueryRuns with paging.
func (s *Store) ListRuns(ctx context.Context, projectID int64, toolName string, limit, offset int) ([]finding.Run, error) {
	return s.query(ctx, db.RunFilter{
		ProjectID: projectID,
		ToolName:  toolName,
		DataTypes: analysisDataTypes,
		Limit:     limit,
		Offset:    offset,
	})
}

// MostRecentRun returns the newest run for project and tool, or nil.
func (s *Store) MostRecentRun(ctx context.Context, projectID int64, toolName string) (*finding.Run, error) {
	row, err := db.MostRecentRun(ctx, s.db, projectID, toolName, analysisDataTypes)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return s.decodeRow(row)
}

// LatestRuns returns the most recent run of every tool in the project.
func (s *Store) LatestRuns(ctx context.Context, projectID int64) ([]finding.Run, error) {
	tools, err := db.DistinctTools(ctx, s.db, projectID, analysisDataTypes)
	if err != nil {
		return nil, err
	}
	out := make([]finding.Run, 0, len(tools))
	for _, tool := range tools {
		run, err := s.MostRecentRun(ctx, projectID, tool)
		if err != nil {
			if errors.Is(err, errors.ErrParse) {
				s.log.Warn("skipping undecodable run", "tool", tool, "error", err)
				continue
			}
			return nil, err
		}
		if run != nil {
			out = append(out, *run)
		}
	}
	return out, nil
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id int64) (*finding.Run, error) {
	row, err := db.GetRun(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !finding.IsAnalysisDataType(row.DataType) {
		return nil, errors.NewNotFound(strconv.FormatInt(id, 10))
	}
	return s.decodeRow(row)
}

// Count returns the number of rows stored for a project, of any data type.
func (s *Store) Count(ctx context.Context, projectID int64) (int, error) {
	return db.CountRuns(ctx, s.db, projectID)
}

// CountRuns counts the project's analysis runs, optionally for one tool.
func (s *Store) CountRuns(ctx context.Context, projectID int64, toolName string) (int, error) {
	return db.CountFiltered(ctx, s.db, db.RunFilter{ProjectID: projectID, ToolName: toolName, DataTypes: analysisDataTypes})
}

// Clear deletes every run of a project.
func (s *Store) Clear(ctx context.Context, projectID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := db.DeleteProjectRuns(ctx, s.db, projectID)
	if err != nil {
		return 0, err
	}
	s.cache.Purge()
	s.log.Info("project runs cleared", "project", projectID, "deleted", n)
	return n, nil
}

func (s *Store) query(ctx context.Context, f db.RunFilter) ([]finding.Run, error) {
	rows, err := db.QueryRuns(ctx, s.db, f)
	if err != nil {
		return nil, err
	}
	out := make([]finding.Run, 0, len(rows))
	for i := range rows {
		run, err := s.decodeRow(&rows[i])
		if err != nil {
			s.log.Warn("skipping undecodable run", "id", rows[i].ID, "tool", rows[i].ToolName, "error", err)
			continue
		}
		out = append(out, *run)
	}
	return out, nil
}

func (s *Store) decodeRow(row *db.RunRow) (*finding.Run, error) {
	findings, ok := s.cache.Get(row.ID)
	if !ok {
		decoded, err := finding.DecodeStored(row.ToolName, row.Data)
		if err != nil {
			return nil, err
		}
		s.cache.Add(row.ID, decoded)
		findings = decoded
	}
	return &finding.Run{
		ID:        row.ID,
		ProjectID: row.ProjectID,
		ToolName:  row.ToolName,
		DataType:  row.DataType,
		Findings:  cloneFindings(findings),
		Timestamp: time.UnixMilli(row.Timestamp),
		Source:    row.Source,
	}, nil
}

// cloneFindings keeps cached slices private to the store.
func cloneFindings(in []finding.Finding) []finding.Finding {
	out := make([]finding.Finding, len(in))
	copy(out, in)
	return out
}
