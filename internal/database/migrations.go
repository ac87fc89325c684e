package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createEventsTable,
		createZonesTable,
		createAreasTable,
		createBookingsTable,
		createPaymentsTable,
		createTicketsTable,
		createBookingIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

// Events are owned by the external catalog service; this is the projection
// the core needs for sale-window and event-start checks.
const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id BIGSERIAL PRIMARY KEY,
    title VARCHAR(500) NOT NULL,
    location VARCHAR(500),
    starts_at TIMESTAMPTZ NOT NULL,
    ends_at TIMESTAMPTZ NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createZonesTable = `
CREATE TABLE IF NOT EXISTS zones (
    id BIGSERIAL PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES events(id),
    name VARCHAR(100) NOT NULL,
    price BIGINT NOT NULL DEFAULT 0,
    capacity INTEGER NOT NULL DEFAULT 0,
    sold_count INTEGER NOT NULL DEFAULT 0,
    confirmed_sold_count INTEGER NOT NULL DEFAULT 0,
    has_seating BOOLEAN NOT NULL DEFAULT FALSE,
    sale_starts_at TIMESTAMPTZ,
    sale_ends_at TIMESTAMPTZ,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(event_id, name),
    CHECK (capacity >= 0),
    CHECK (sold_count >= 0 AND sold_count <= capacity),
    CHECK (confirmed_sold_count >= 0 AND confirmed_sold_count <= sold_count)
);`

const createAreasTable = `
CREATE TABLE IF NOT EXISTS areas (
    id BIGSERIAL PRIMARY KEY,
    zone_id BIGINT NOT NULL REFERENCES zones(id),
    event_id BIGINT NOT NULL REFERENCES events(id),
    name VARCHAR(100) NOT NULL,
    row_label VARCHAR(20),
    seats TEXT[] NOT NULL DEFAULT '{}',
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE(zone_id, name)
);`

const createBookingsTable = `
CREATE TABLE IF NOT EXISTS bookings (
    id BIGSERIAL PRIMARY KEY,
    booking_code VARCHAR(32) NOT NULL UNIQUE,
    user_id BIGINT NOT NULL,
    event_id BIGINT NOT NULL REFERENCES events(id),
    zone_id BIGINT NOT NULL REFERENCES zones(id),
    area_id BIGINT REFERENCES areas(id),
    seats TEXT[] NOT NULL DEFAULT '{}',
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    unit_price BIGINT NOT NULL DEFAULT 0,
    total_price BIGINT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    payment_status VARCHAR(20) NOT NULL DEFAULT 'unpaid',
    provider_txn_id VARCHAR(255),
    customer_email VARCHAR(255) NOT NULL,
    customer_name VARCHAR(255),
    customer_phone VARCHAR(50),
    notes TEXT,
    expires_at TIMESTAMPTZ NOT NULL,
    paid_at TIMESTAMPTZ,
    cancelled_at TIMESTAMPTZ,
    cancellation_reason TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'confirmed', 'cancelled', 'expired')),
    CHECK (payment_status IN ('unpaid', 'paid', 'refunded'))
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    booking_id BIGINT NOT NULL REFERENCES bookings(id),
    user_id BIGINT NOT NULL,
    provider VARCHAR(20) NOT NULL,
    provider_txn_id VARCHAR(255) NOT NULL UNIQUE,
    amount BIGINT NOT NULL CHECK (amount >= 0),
    currency VARCHAR(8) NOT NULL,
    method VARCHAR(20) NOT NULL DEFAULT 'card',
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    error_message TEXT,
    metadata JSONB,
    paid_at TIMESTAMPTZ,
    refunded_at TIMESTAMPTZ,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('pending', 'processing', 'succeeded', 'failed', 'canceled', 'refunded'))
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id BIGSERIAL PRIMARY KEY,
    ticket_code VARCHAR(32) NOT NULL UNIQUE,
    booking_id BIGINT NOT NULL REFERENCES bookings(id),
    user_id BIGINT NOT NULL,
    event_id BIGINT NOT NULL REFERENCES events(id),
    zone_id BIGINT NOT NULL REFERENCES zones(id),
    area_id BIGINT REFERENCES areas(id),
    seat_label VARCHAR(20),
    price BIGINT NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'valid',
    qr_code TEXT,
    checked_in_at TIMESTAMPTZ,
    checked_in_by BIGINT,
    check_in_location VARCHAR(255),
    device_info VARCHAR(255),
    cancelled_at TIMESTAMPTZ,
    cancelled_by BIGINT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (status IN ('valid', 'used', 'cancelled', 'expired'))
);`

const createBookingIndexes = `
CREATE INDEX IF NOT EXISTS bookings_status_expires_idx ON bookings (status, expires_at);
CREATE INDEX IF NOT EXISTS bookings_user_created_idx ON bookings (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS bookings_zone_status_idx ON bookings (zone_id, status);
CREATE INDEX IF NOT EXISTS payments_booking_idx ON payments (booking_id);
CREATE INDEX IF NOT EXISTS tickets_booking_idx ON tickets (booking_id);
CREATE INDEX IF NOT EXISTS tickets_event_status_idx ON tickets (event_id, status);`
