package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/okian/biotica/internal/domain/ibr"
	"github.com/okian/biotica/internal/domain/model"
	"github.com/okian/biotica/pkg/metrics"
)

// Supported SQL drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

//go:embed sql/*
var schemas embed.FS

// SQLStore is a Store persisted in a SQL database. Every measurement is kept
// in the measurements table and the sites table holds each site's latest one,
// maintained in the same transaction as the save.
type SQLStore struct {
	db     *sql.DB
	driver string
	seq    atomic.Int64
}

// NewStore opens the store selected by driver. "memory" (or empty) returns a
// TreapStore; the SQL drivers open dsn and apply the schema.
func NewStore(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewTreapStore(ctx, opts...), nil
	case DriverSQLite, DriverPostgres, DriverMySQL:
		return OpenSQLStore(ctx, driver, dsn)
	default:
		return nil, errors.Wrapf(ErrUnsupportedDriver, "driver %q", driver)
	}
}

// OpenSQLStore opens dsn with the given driver and creates missing tables.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("dsn not specified")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	if driver == DriverSQLite {
		// A single connection serialises writers and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to reach %s database", driver)
	}

	s := &SQLStore{db: db, driver: driver}
	s.seq.Store(time.Now().UnixNano())
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	b, err := schemas.ReadFile("sql/" + s.driver + ".sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to create %s schema", s.driver)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) upsert(table, key string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == key {
			continue
		}
		if s.driver == DriverMySQL {
			sets = append(sets, c+" = VALUES("+c+")")
		} else {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	if s.driver == DriverMySQL {
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return s.rebind(q + " ON CONFLICT (" + key + ") DO UPDATE SET " + strings.Join(sets, ", "))
}

var measurementCols = []string{"id", "site_id", "score", "classification", "parameters", "result", "ts", "saved_at"}

var siteCols = []string{"site_id", "measurement_id", "score", "classification", "ts"}

// Save implements Store.Save.
func (s *SQLStore) Save(ctx context.Context, m model.Measurement) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if m.ID == "" || m.SiteID == "" {
		return ErrInvalidID
	}
	params, err := json.Marshal(m.Parameters)
	if err != nil {
		return errors.Wrap(err, "failed to encode parameters")
	}
	result, err := json.Marshal(m.Result)
	if err != nil {
		return errors.Wrap(err, "failed to encode result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var oldSite string
	err = tx.QueryRowContext(ctx, s.rebind("SELECT site_id FROM measurements WHERE id = ?"), m.ID).Scan(&oldSite)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(err, "failed to look up measurement %s", m.ID)
	}

	_, err = tx.ExecContext(ctx, s.upsert("measurements", "id", measurementCols),
		m.ID, m.SiteID, rankKey(m.Result.Score), string(m.Result.Classification),
		string(params), string(result), m.TS.UnixNano(), s.seq.Add(1))
	if err != nil {
		return errors.Wrapf(err, "failed to save measurement %s", m.ID)
	}

	if oldSite != "" && oldSite != m.SiteID {
		if err := s.refreshSite(ctx, tx, oldSite); err != nil {
			return err
		}
	}
	if err := s.refreshSite(ctx, tx, m.SiteID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit measurement")
	}

	metrics.UpdateStoreRecordsTotal(s.Count(ctx))
	return nil
}

// refreshSite points the sites row at the site's latest measurement.
func (s *SQLStore) refreshSite(ctx context.Context, tx *sql.Tx, siteID string) error {
	var (
		id, class string
		score     float64
		ts        int64
	)
	err := tx.QueryRowContext(ctx, s.rebind(
		"SELECT id, score, classification, ts FROM measurements WHERE site_id = ? ORDER BY ts DESC, saved_at DESC LIMIT 1"),
		siteID).Scan(&id, &score, &class, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, s.rebind("DELETE FROM sites WHERE site_id = ?"), siteID)
		return errors.Wrapf(err, "failed to drop site %s", siteID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to find latest measurement of %s", siteID)
	}
	_, err = tx.ExecContext(ctx, s.upsert("sites", "site_id", siteCols), siteID, id, score, class, ts)
	return errors.Wrapf(err, "failed to rank site %s", siteID)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeasurement(row scanner) (model.Measurement, error) {
	var (
		m              model.Measurement
		params, result string
		ts             int64
	)
	if err := row.Scan(&m.ID, &m.SiteID, &params, &result, &ts); err != nil {
		return model.Measurement{}, err
	}
	if err := json.Unmarshal([]byte(params), &m.Parameters); err != nil {
		return model.Measurement{}, errors.Wrapf(err, "corrupt parameters for %s", m.ID)
	}
	if err := json.Unmarshal([]byte(result), &m.Result); err != nil {
		return model.Measurement{}, errors.Wrapf(err, "corrupt result for %s", m.ID)
	}
	if m.Parameters == nil {
		m.Parameters = ibr.Parameters{}
	}
	m.TS = time.Unix(0, ts).UTC()
	return m, nil
}

// Get implements Store.Get.
func (s *SQLStore) Get(ctx context.Context, id string) (model.Measurement, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		"SELECT id, site_id, parameters, result, ts FROM measurements WHERE id = ?"), id)
	m, err := scanMeasurement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Measurement{}, ErrNotFound
	}
	if err != nil {
		return model.Measurement{}, errors.Wrapf(err, "failed to load measurement %s", id)
	}
	return m, nil
}

// History implements Store.History.
func (s *SQLStore) History(ctx context.Context, siteID string, limit int) ([]model.Measurement, error) {
	q := "SELECT id, site_id, parameters, result, ts FROM measurements WHERE site_id = ? ORDER BY ts DESC, saved_at DESC"
	args := []any{siteID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query history of %s", siteID)
	}
	defer rows.Close()

	var out []model.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read history of %s", siteID)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read history of %s", siteID)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e     Entry
		class string
		ts    int64
	)
	if err := row.Scan(&e.SiteID, &e.MeasurementID, &e.Score, &class, &ts); err != nil {
		return Entry{}, err
	}
	e.Classification = ibr.Band(class)
	e.TS = time.Unix(0, ts).UTC()
	return e, nil
}

// Rank implements Store.Rank.
func (s *SQLStore) Rank(ctx context.Context, siteID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	e, err := scanEntry(s.db.QueryRowContext(ctx, s.rebind(
		"SELECT site_id, measurement_id, score, classification, ts FROM sites WHERE site_id = ?"), siteID))
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, errors.Wrapf(err, "failed to load site %s", siteID)
	}
	var above int
	if err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM sites WHERE score > ?"), e.Score).Scan(&above); err != nil {
		return Entry{}, errors.Wrapf(err, "failed to rank site %s", siteID)
	}
	e.Rank = above + 1
	return e, nil
}

// TopN implements Store.TopN.
func (s *SQLStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT site_id, measurement_id, score, classification, ts FROM sites ORDER BY score DESC, site_id ASC LIMIT ?"), n)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query leaderboard")
	}
	defer rows.Close()

	out := make([]Entry, 0, n)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read leaderboard")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read leaderboard")
	}
	assignRanks(out, 1)
	return out, nil
}

// Count implements Store.Count. It returns 0 if the database cannot be read.
func (s *SQLStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sites").Scan(&n); err != nil {
		metrics.RecordErrorByComponent("repository", "count")
		return 0
	}
	return n
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
