package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/pingwatch/internal/model"
)

const (
	// DefaultRecentLimit is the page size of GetRecentIncidents.
	DefaultRecentLimit = 50
	// DefaultHostLimit is the page size of GetIncidentsByHost.
	DefaultHostLimit = 20
)

// ErrNotFound is returned when a single incident lookup matches no row.
var ErrNotFound = errors.New("incident not found")

const incidentColumns = `id, host, timestamp, resolved,
	ping_success, ping_latency_ms, ping_error, ping_timestamp,
	has_trace, trace_success, trace_error, trace_hops, trace_timestamp`

// IncidentStorage handles incident persistence. Read methods never fail:
// storage errors are logged and degrade to empty results. Writes return
// their errors so callers know persistence did not happen.
type IncidentStorage struct {
	db     *DB
	logger *zap.Logger
}

// NewIncidentStorage creates a new incident storage handler.
func NewIncidentStorage(db *DB, logger *zap.Logger) *IncidentStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentStorage{db: db, logger: logger}
}

// SaveIncident stores an incident and returns its newly assigned ID.
// inc.ID is updated as well.
func (s *IncidentStorage) SaveIncident(ctx context.Context, inc *model.Incident) (int64, error) {
	if inc.Timestamp.IsZero() {
		inc.Timestamp = time.Now()
	}
	if inc.PingResult.Timestamp.IsZero() {
		inc.PingResult.Timestamp = inc.Timestamp
	}

	var (
		latency        sql.NullFloat64
		hasTrace       bool
		traceSuccess   bool
		traceError     sql.NullString
		traceHops      sql.NullString
		traceTimestamp sql.NullInt64
	)
	if inc.PingResult.LatencyMs != nil {
		latency = sql.NullFloat64{Float64: *inc.PingResult.LatencyMs, Valid: true}
	}
	if tr := inc.DiagnosticTrace; tr != nil {
		hasTrace = true
		traceSuccess = tr.Success
		traceError = nullString(tr.Error)
		hops, err := encodeHops(tr.Hops)
		if err != nil {
			return 0, fmt.Errorf("failed to encode hops: %w", err)
		}
		traceHops = sql.NullString{String: hops, Valid: true}
		if !tr.Timestamp.IsZero() {
			traceTimestamp = sql.NullInt64{Int64: tr.Timestamp.UnixMilli(), Valid: true}
		}
	}

	query := `INSERT INTO incidents (host, timestamp, resolved,
				ping_success, ping_latency_ms, ping_error, ping_timestamp,
				has_trace, trace_success, trace_error, trace_hops, trace_timestamp)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		inc.Host, inc.Timestamp.UnixMilli(), inc.Resolved,
		inc.PingResult.Success, latency, nullString(inc.PingResult.Error), inc.PingResult.Timestamp.UnixMilli(),
		hasTrace, traceSuccess, traceError, traceHops, traceTimestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert incident: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	inc.ID = id

	return id, nil
}

// GetRecentIncidents returns up to limit incidents, newest first.
func (s *IncidentStorage) GetRecentIncidents(ctx context.Context, limit int) []model.Incident {
	if limit <= 0 {
		return []model.Incident{}
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents
			  ORDER BY timestamp DESC, id DESC LIMIT ?`
	return s.list(ctx, "get_recent_incidents", query, limit)
}

// GetIncidentsByHost returns up to limit incidents for host, newest first.
func (s *IncidentStorage) GetIncidentsByHost(ctx context.Context, host string, limit int) []model.Incident {
	if limit <= 0 {
		return []model.Incident{}
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents
			  WHERE host = ? ORDER BY timestamp DESC, id DESC LIMIT ?`
	return s.list(ctx, "get_incidents_by_host", query, host, limit)
}

// GetUnresolvedIncidents returns every open incident, newest first.
func (s *IncidentStorage) GetUnresolvedIncidents(ctx context.Context) []model.Incident {
	query := `SELECT ` + incidentColumns + ` FROM incidents
			  WHERE resolved = 0 ORDER BY timestamp DESC, id DESC`
	return s.list(ctx, "get_unresolved_incidents", query)
}

// GetIncidentsBetween returns incidents created in [since, until], newest first.
func (s *IncidentStorage) GetIncidentsBetween(ctx context.Context, since, until time.Time) []model.Incident {
	query := `SELECT ` + incidentColumns + ` FROM incidents
			  WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp DESC, id DESC`
	return s.list(ctx, "get_incidents_between", query, since.UnixMilli(), until.UnixMilli())
}

// GetLatestIncident returns the most recent incident, or nil when the table is empty.
func (s *IncidentStorage) GetLatestIncident(ctx context.Context) *model.Incident {
	query := `SELECT ` + incidentColumns + ` FROM incidents
			  ORDER BY timestamp DESC, id DESC LIMIT 1`
	inc, err := s.one(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("store_read_failed", zap.String("op", "get_latest_incident"), zap.Error(err))
		}
		return nil
	}
	return inc
}

// GetIncident returns the incident with the given ID, or nil.
func (s *IncidentStorage) GetIncident(ctx context.Context, id int64) *model.Incident {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = ?`
	inc, err := s.one(ctx, query, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("store_read_failed", zap.String("op", "get_incident"),
				zap.Int64("id", id), zap.Error(err))
		}
		return nil
	}
	return inc
}

// MarkIncidentResolved flips resolved to true. It reports whether a row
// changed, so resolving a missing or already resolved incident returns false.
func (s *IncidentStorage) MarkIncidentResolved(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE incidents SET resolved = 1 WHERE id = ? AND resolved = 0", id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve incident %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to resolve incident %d: %w", id, err)
	}
	return n > 0, nil
}

// ClearAllIncidents deletes every incident and returns the number removed.
func (s *IncidentStorage) ClearAllIncidents(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM incidents")
	if err != nil {
		return 0, fmt.Errorf("failed to clear incidents: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// GetStatistics returns aggregate counts, zeroed on failure.
func (s *IncidentStorage) GetStatistics(ctx context.Context) model.Statistics {
	var stats model.Statistics
	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN resolved = 0 THEN 1 ELSE 0 END), 0),
			COUNT(DISTINCT host)
		FROM incidents`).Scan(&stats.TotalIncidents, &stats.UnresolvedIncidents, &stats.HostsAffected)
	if err != nil {
		s.logger.Error("store_read_failed", zap.String("op", "get_statistics"), zap.Error(err))
		return model.Statistics{}
	}
	return stats
}

// Close releases the underlying database handle.
func (s *IncidentStorage) Close() error {
	return s.db.Close()
}

func (s *IncidentStorage) list(ctx context.Context, op, query string, args ...any) []model.Incident {
	incidents, err := s.query(ctx, query, args...)
	if err != nil {
		s.logger.Error("store_read_failed", zap.String("op", op), zap.Error(err))
		return []model.Incident{}
	}
	return incidents
}

func (s *IncidentStorage) query(ctx context.Context, query string, args ...any) ([]model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	incidents := []model.Incident{}
	for rows.Next() {
		inc, err := s.scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, *inc)
	}

	return incidents, rows.Err()
}

func (s *IncidentStorage) one(ctx context.Context, query string, args ...any) (*model.Incident, error) {
	inc, err := s.scanIncident(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inc, err
}

type scanner interface {
	Scan(dest ...any) error
}

// scanIncident reads one row. A hop blob that fails to decode is logged and
// read as no hops so the row stays visible to listings and resolution.
func (s *IncidentStorage) scanIncident(row scanner) (*model.Incident, error) {
	var (
		inc            model.Incident
		ts, pingTS     int64
		latency        sql.NullFloat64
		pingError      sql.NullString
		hasTrace       bool
		traceSuccess   bool
		traceError     sql.NullString
		traceHops      sql.NullString
		traceTimestamp sql.NullInt64
	)

	err := row.Scan(&inc.ID, &inc.Host, &ts, &inc.Resolved,
		&inc.PingResult.Success, &latency, &pingError, &pingTS,
		&hasTrace, &traceSuccess, &traceError, &traceHops, &traceTimestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan incident: %w", err)
	}

	inc.Timestamp = time.UnixMilli(ts).UTC()
	inc.PingResult.Host = inc.Host
	inc.PingResult.Timestamp = time.UnixMilli(pingTS).UTC()
	inc.PingResult.Error = pingError.String
	if latency.Valid {
		v := latency.Float64
		inc.PingResult.LatencyMs = &v
	}

	if hasTrace {
		hops, err := decodeHops(traceHops)
		if err != nil {
			s.logger.Warn("trace_hops_corrupt", zap.Int64("id", inc.ID), zap.Error(err))
			hops = []model.TraceHop{}
		}
		trace := &model.DiagnosticTrace{
			Host:    inc.Host,
			Hops:    hops,
			Success: traceSuccess,
			Error:   traceError.String,
		}
		if traceTimestamp.Valid {
			trace.Timestamp = time.UnixMilli(traceTimestamp.Int64).UTC()
		}
		inc.DiagnosticTrace = trace
	}

	return &inc, nil
}

func encodeHops(hops []model.TraceHop) (string, error) {
	if hops == nil {
		hops = []model.TraceHop{}
	}
	data, err := json.Marshal(hops)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeHops(raw sql.NullString) ([]model.TraceHop, error) {
	hops := []model.TraceHop{}
	if !raw.Valid || raw.String == "" {
		return hops, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &hops); err != nil {
		return nil, fmt.Errorf("failed to decode hops: %w", err)
	}
	return hops, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
