package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/imagelayer/pkg/imagelayer"
)

// Schema creates the image_layer table used by Repository
const Schema = `
CREATE TABLE IF NOT EXISTS image_layer (
	id                       UUID PRIMARY KEY,
	scene_id                 UUID NOT NULL,
	name                     TEXT NOT NULL DEFAULT '',
	width                    INTEGER NOT NULL,
	height                   INTEGER NOT NULL,
	duration_us              BIGINT NOT NULL CHECK (duration_us >= 0),
	editable_index           INTEGER NOT NULL DEFAULT -1,
	default_image_key        TEXT NOT NULL DEFAULT '',
	default_content_duration BIGINT NOT NULL DEFAULT 0,
	default_video_ranges     JSONB NOT NULL DEFAULT '[]',
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS image_layer_scene_idx ON image_layer (scene_id, created_at);
`

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements imagelayer.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) imagelayer.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) imagelayer.Repository {
	return &Repository{db: pool}
}

// Migrate applies Schema
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate image_layer: %w", err)
	}
	return nil
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return imagelayer.ErrLayerNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("layer already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%s: %w", operation, imagelayer.ErrNegativeDuration)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const layerColumns = `id, scene_id, name, width, height, duration_us, editable_index,
	default_image_key, default_content_duration, default_video_ranges, created_at, updated_at`

func (r *Repository) CreateLayer(ctx context.Context, record *imagelayer.LayerRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	ranges := record.DefaultVideoRanges
	if ranges == nil {
		ranges = []imagelayer.VideoRange{}
	}
	rangesJSON, err := json.Marshal(ranges)
	if err != nil {
		return fmt.Errorf("encode video ranges: %w", err)
	}

	query := `INSERT INTO image_layer (` + layerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		record.ID, record.SceneID, record.Name, record.Width, record.Height,
		int64(record.Duration), record.EditableIndex, record.DefaultImageKey,
		int64(record.DefaultContentDuration), rangesJSON, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create layer", err)
	}
	return nil
}

func (r *Repository) GetLayer(ctx context.Context, id uuid.UUID) (*imagelayer.LayerRecord, error) {
	query := `SELECT ` + layerColumns + ` FROM image_layer WHERE id = $1`

	record, err := scanLayer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get layer", err)
	}
	return record, nil
}

func (r *Repository) ListLayers(ctx context.Context, sceneID uuid.UUID) ([]*imagelayer.LayerRecord, error) {
	query := `SELECT ` + layerColumns + ` FROM image_layer
		WHERE scene_id = $1 ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, sceneID)
	if err != nil {
		return nil, r.handlePostgresError("list layers", err)
	}
	defer rows.Close()

	var result []*imagelayer.LayerRecord
	for rows.Next() {
		record, err := scanLayer(rows)
		if err != nil {
			return nil, r.handlePostgresError("list layers", err)
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list layers", err)
	}
	return result, nil
}

func (r *Repository) DeleteLayer(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM image_layer WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete layer", err)
	}
	if tag.RowsAffected() == 0 {
		return imagelayer.ErrLayerNotFound
	}
	return nil
}

func scanLayer(row pgx.Row) (*imagelayer.LayerRecord, error) {
	var (
		record          imagelayer.LayerRecord
		duration        int64
		contentDuration int64
		rangesJSON      []byte
	)
	err := row.Scan(
		&record.ID, &record.SceneID, &record.Name, &record.Width, &record.Height,
		&duration, &record.EditableIndex, &record.DefaultImageKey,
		&contentDuration, &rangesJSON, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	record.Duration = imagelayer.Time(duration)
	record.DefaultContentDuration = imagelayer.Time(contentDuration)
	if len(rangesJSON) > 0 {
		if err := json.Unmarshal(rangesJSON, &record.DefaultVideoRanges); err != nil {
			return nil, fmt.Errorf("decode video ranges: %w", err)
		}
	}
	if len(record.DefaultVideoRanges) == 0 {
		record.DefaultVideoRanges = nil
	}
	return &record, nil
}
