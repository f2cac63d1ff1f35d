// Package storage persists disappearance records in SQLite and snapshots as JPEG files.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/LdDl/lastseen/mot"
	"github.com/LdDl/lastseen/snapshot"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const snapshotNameLayout = "20060102150405"

// Store is a persistence sink and a search backend
type Store struct {
	db         *sql.DB
	historyDir string
	maxWidth   int
	quality    int
	logger     *slog.Logger
}

// Option configures Store
type Option func(*Store)

// WithSnapshotMaxWidth downsizes stored snapshots wider than maxWidth
func WithSnapshotMaxWidth(maxWidth int) Option {
	return func(s *Store) {
		s.maxWidth = maxWidth
	}
}

// WithJPEGQuality sets quality of stored snapshots
func WithJPEGQuality(quality int) Option {
	return func(s *Store) {
		s.quality = quality
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (creating if needed) SQLite database at dbPath, applies migrations and prepares history directory
func Open(dbPath, historyDir string, options ...Option) (*Store, error) {
	if err := os.MkdirAll(historyDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "can't create history directory '%s'", historyDir)
	}
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open database '%s'", dbPath)
	}
	store := New(db, historyDir, options...)
	if err := store.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	store.logger.Info("database is ready", "path", dbPath, "history_dir", historyDir)
	return store, nil
}

// New wraps already opened database. Schema is not touched.
func New(db *sql.DB, historyDir string, options ...Option) *Store {
	store := &Store{
		db:         db,
		historyDir: historyDir,
		quality:    90,
		logger:     slog.Default(),
	}
	for _, option := range options {
		option(store)
	}
	store.logger = store.logger.With("component", "storage")
	return store
}

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "can't read embedded migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "can't create sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "can't create migrate instance")
	}
	// Note: m is not closed since it would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// HistoryDir returns directory with snapshot files
func (s *Store) HistoryDir() string {
	return s.historyDir
}

// Persist writes the snapshot and inserts the record. On insert failure the written snapshot is removed.
func (s *Store) Persist(ctx context.Context, d mot.Disappearance) (mot.DisappearanceRecord, error) {
	seen := d.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}
	record := mot.DisappearanceRecord{
		Timestamp:  seen.Format(mot.TimestampLayout),
		Label:      d.Label,
		BBoxCoords: mot.FormatBBoxCoords(d.BBox),
	}
	if d.Image != nil {
		filename := fmt.Sprintf("%s_%06d_%s.jpg", seen.Format(snapshotNameLayout), seen.Nanosecond()/1000, d.ObjectID.String()[:8])
		record.ImagePath = filepath.Join(s.historyDir, filename)
		if err := snapshot.WriteJPEG(record.ImagePath, snapshot.Prepare(d.Image, s.maxWidth), s.quality); err != nil {
			return mot.DisappearanceRecord{}, errors.Wrapf(err, "can't save snapshot of '%s'", d.Label)
		}
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO detections (timestamp, label, bbox_coords, image_path) VALUES (?, ?, ?, ?)",
		record.Timestamp, record.Label, record.BBoxCoords, record.ImagePath,
	)
	if err != nil {
		if record.ImagePath != "" {
			os.Remove(record.ImagePath)
		}
		return mot.DisappearanceRecord{}, errors.Wrapf(err, "can't insert record of '%s'", d.Label)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mot.DisappearanceRecord{}, errors.Wrap(err, "can't get id of inserted record")
	}
	record.ID = id
	s.logger.DebugContext(ctx, "record saved", "id", id, "label", record.Label)
	return record, nil
}

// Search returns records whose label contains term (ASCII case-insensitive), newest first.
// Empty term gives no results.
func (s *Store) Search(ctx context.Context, term string) ([]mot.DisappearanceRecord, error) {
	term = strings.TrimSpace(term)
	records := make([]mot.DisappearanceRecord, 0)
	if term == "" {
		return records, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, label, bbox_coords, image_path FROM detections
		WHERE label LIKE ? ESCAPE '\' ORDER BY timestamp DESC, id DESC`,
		"%"+escapeLike(term)+"%",
	)
	if err != nil {
		return nil, errors.Wrapf(err, "can't search for '%s'", term)
	}
	defer rows.Close()
	for rows.Next() {
		var record mot.DisappearanceRecord
		var coords, imagePath sql.NullString
		if err := rows.Scan(&record.ID, &record.Timestamp, &record.Label, &coords, &imagePath); err != nil {
			return nil, errors.Wrap(err, "can't scan record")
		}
		record.BBoxCoords = coords.String
		record.ImagePath = imagePath.String
		records = append(records, record)
	}
	return records, errors.Wrap(rows.Err(), "can't iterate records")
}

// Count returns number of stored records
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detections").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "can't count records")
	}
	return count, nil
}

// Clear deletes every record and its snapshot file. Returns number of deleted records.
func (s *Store) Clear(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT image_path FROM detections WHERE image_path IS NOT NULL AND image_path != ''")
	if err != nil {
		return 0, errors.Wrap(err, "can't list snapshots")
	}
	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, errors.Wrap(err, "can't scan snapshot path")
		}
		paths = append(paths, path)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "can't iterate snapshots")
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM detections")
	if err != nil {
		return 0, errors.Wrap(err, "can't delete records")
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "can't get number of deleted records")
	}

	filesDeleted := 0
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				s.logger.WarnContext(ctx, "can't delete snapshot", "path", path, "err", err)
			}
			continue
		}
		filesDeleted++
	}
	s.logger.InfoContext(ctx, "history cleared", "records_deleted", deleted, "files_deleted", filesDeleted)
	return int(deleted), nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
