package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-navigation/internal/models"
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

func (p *PostgresStore) SaveBooking(ctx context.Context, b *models.Booking) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO bookings(id, type, driver_id, customer_id, owner_id, status, shared_booking_id,
			origin_lat, origin_lng, dest_lat, dest_lng, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.Type, b.DriverID, b.CustomerID, b.OwnerID, b.Status, nullable(b.SharedBookingID),
		b.Origin.Lat, b.Origin.Lng, b.Destination.Lat, b.Destination.Lng, b.CreatedAt, b.UpdatedAt)
	return err
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, type, driver_id, customer_id, owner_id, status, COALESCE(shared_booking_id, ''),
			origin_lat, origin_lng, dest_lat, dest_lng, created_at, updated_at
		 FROM bookings WHERE id=$1`, id)
	var b models.Booking
	err := row.Scan(&b.ID, &b.Type, &b.DriverID, &b.CustomerID, &b.OwnerID, &b.Status, &b.SharedBookingID,
		&b.Origin.Lat, &b.Origin.Lng, &b.Destination.Lat, &b.Destination.Lng, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE bookings SET status=$1, updated_at=$2 WHERE id=$3`, status, time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) SaveStops(ctx context.Context, bookingID string, stops []models.Stop) error {
	if err := models.ValidateStops(stops); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_stops WHERE booking_id=$1`, bookingID); err != nil {
		return err
	}
	for _, s := range stops {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_stops(booking_id, stock_id, kind, lat, lng, address, stop_order)
			 VALUES($1,$2,$3,$4,$5,$6,$7)`,
			bookingID, s.StockID, s.Kind, s.Lat, s.Lng, s.Address, s.Order); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) GetStops(ctx context.Context, bookingID string) ([]models.Stop, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT stock_id, kind, lat, lng, address, stop_order
		 FROM booking_stops WHERE booking_id=$1 ORDER BY stop_order`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []models.Stop
	for rows.Next() {
		var s models.Stop
		if err := rows.Scan(&s.StockID, &s.Kind, &s.Lat, &s.Lng, &s.Address, &s.Order); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, ErrNotFound
	}
	return stops, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
