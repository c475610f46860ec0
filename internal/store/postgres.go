package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Postgres backs the repository with a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, applies embedded migrations, and seeds extra
// dictionary words if any were loaded from a words file.
func NewPostgres(ctx context.Context, connString string, extraWords []string) (*Postgres, error) {
	if err := migrate(connString); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	p := &Postgres{pool: pool}

	if err := p.addWords(ctx, extraWords); err != nil {
		log.Warn().Err(err).Msg("[NewPostgres] seeding extra words failed")
	}
	return p, nil
}

func migrate(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (p *Postgres) addWords(ctx context.Context, words []string) error {
	for _, w := range words {
		if w == "" {
			continue
		}
		_, err := p.pool.Exec(ctx,
			"INSERT INTO words (word) VALUES ($1) ON CONFLICT (word) DO NOTHING", w)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) PickWord(ctx context.Context) (string, error) {
	var word string
	row := p.pool.QueryRow(ctx, "SELECT word FROM words ORDER BY random() LIMIT 1")
	if err := row.Scan(&word); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultWord, nil
		}
		return DefaultWord, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return word, nil
}

func (p *Postgres) ListCandidates(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, "SELECT word FROM words ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

func (p *Postgres) AppendHistory(ctx context.Context, rec HistoryRecord) error {
	_, err := p.pool.Exec(ctx,
		"INSERT INTO history (game_id, word, username, user_guess, game_time) VALUES ($1, $2, $3, $4, $5)",
		rec.GameID, rec.Word, rec.Nickname, rec.Guess, rec.GameTime)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) ListHistory(ctx context.Context, nickname string, limit int) ([]HistoryRecord, error) {
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	rows, err := p.pool.Query(ctx,
		"SELECT game_id, word, user_guess, game_time FROM history WHERE username = $1 ORDER BY record_id DESC LIMIT $2",
		nickname, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var recs []HistoryRecord
	for rows.Next() {
		rec := HistoryRecord{Nickname: nickname}
		if err := rows.Scan(&rec.GameID, &rec.Word, &rec.Guess, &rec.GameTime); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (p *Postgres) AppendDrawing(ctx context.Context, rec DrawingRecord) error {
	_, err := p.pool.Exec(ctx,
		"INSERT INTO drawing_data (game_id, x, y, action, color_r, color_g, color_b, ts) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		rec.GameID, int(rec.X), int(rec.Y), int(rec.Action), int(rec.R), int(rec.G), int(rec.B), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Ping reports pool health for the status endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}
