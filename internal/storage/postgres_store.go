package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/bike-rental/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Bikes(ctx context.Context) ([]models.Bike, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, size, status FROM bikes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Bike
	for rows.Next() {
		var b models.Bike
		if err := rows.Scan(&b.ID, &b.Size, &b.Status); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) HeightRanges(ctx context.Context) ([]models.HeightRange, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT size, min_height, max_height FROM height_ranges`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.HeightRange
	for rows.Next() {
		var r models.HeightRange
		if err := rows.Scan(&r.Size, &r.MinHeight, &r.MaxHeight); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) BookingsInWindow(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, date, session, status FROM bookings WHERE date BETWEEN $1 AND $2`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.Date, &b.Session, &b.Status); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		riders, err := p.riders(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Riders = riders
	}
	return out, nil
}

func (p *PostgresStore) riders(ctx context.Context, bookingID string) ([]models.Rider, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, height, COALESCE(bike_id, 0), COALESCE(size, '') FROM booking_riders WHERE booking_id = $1`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Rider
	for rows.Next() {
		var r models.Rider
		if err := rows.Scan(&r.ID, &r.Height, &r.AssignedBikeID, &r.AssignedSize); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertAttempt archives one attempt record; used by the stream consumer.
func (p *PostgresStore) InsertAttempt(ctx context.Context, rec models.AttemptRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO attempt_records(client_id, category, outcome, attempted_at) VALUES($1,$2,$3,$4)`,
		rec.ClientID, rec.Category, rec.Outcome, rec.At)
	return err
}

// PruneAttemptsBefore deletes archived attempts older than cutoff and
// returns the number of rows removed.
func (p *PostgresStore) PruneAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM attempt_records WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *PostgresStore) Close() error { return p.db.Close() }
