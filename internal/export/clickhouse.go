// Package export mirrors ingested session data out of the SQLite file into
// server-side stores: ClickHouse for large-scale telemetry analytics and
// PostgreSQL for multi-reader dashboards. The SQLite file stays the system
// of record.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"f1timing/internal/storage"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DefaultClickHouseConfig returns local development settings.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Host:     "localhost",
		Port:     9000,
		Database: "f1timing",
		User:     "default",
	}
}

// ClickHouseDB wraps a ClickHouse connection for analytics export.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens and pings a ClickHouse connection.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the denormalized analytics tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS laps (
			session_id    UInt64,
			event_name    LowCardinality(String),
			session_type  LowCardinality(String),
			track_name    LowCardinality(String),
			driver_name   LowCardinality(String),
			lap_number    UInt16,
			lap_time_s    Nullable(Float64),
			sector_1_s    Nullable(Float64),
			sector_2_s    Nullable(Float64),
			sector_3_s    Nullable(Float64),
			speed_fl_kmh  Nullable(Float64),
			speed_st_kmh  Nullable(Float64),
			tyre_compound LowCardinality(String),
			tyre_life     Nullable(Int32),
			fresh_tyre    UInt8,
			personal_best UInt8,
			position      Nullable(Int32),
			lap_start     Nullable(DateTime64(3)),
			exported_at   DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		ORDER BY (event_name, session_type, driver_name, lap_number)`,

		`CREATE TABLE IF NOT EXISTS telemetry (
			session_id   UInt64,
			lap_id       UInt64,
			driver_name  LowCardinality(String),
			lap_number   UInt16,
			ts           DateTime64(3),
			speed_kmh    Float64,
			rpm          Int32,
			gear         Int8,
			throttle     Float64,
			brake        UInt8,
			drs          UInt8,
			x            Float64,
			y            Float64,
			z            Float64,
			off_track    UInt8,
			exported_at  DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(ts)
		ORDER BY (session_id, driver_name, lap_number, ts)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// ExportSession batch-copies one session's laps and telemetry from the
// timing database.
func (d *ClickHouseDB) ExportSession(ctx context.Context, db *storage.DB, sessionID int64) (laps, samples int, err error) {
	laps, err = d.exportLaps(ctx, db, sessionID)
	if err != nil {
		return 0, 0, err
	}
	samples, err = d.exportTelemetry(ctx, db, sessionID)
	if err != nil {
		return laps, 0, err
	}
	return laps, samples, nil
}

func (d *ClickHouseDB) exportLaps(ctx context.Context, db *storage.DB, sessionID int64) (int, error) {
	rows, err := db.Handle().QueryContext(ctx, `
		SELECT l.session_id, e.event_name, s.session_type, t.track_name,
			l.driver_name, l.lap_number, l.lap_time_in_seconds,
			l.sector_1_time_in_seconds, l.sector_2_time_in_seconds,
			l.sector_3_time_in_seconds, l.finish_line_speed_trap_in_km,
			l.longest_strait_speed_trap_in_km, l.tyre_compound,
			l.tyre_life_in_laps, l.is_fresh_tyre, l.is_personal_best,
			l.position, l.lap_start_time_in_datetime
		FROM Laps l
		JOIN Sessions s ON s.session_id = l.session_id
		JOIN Tracks t ON t.track_id = s.track_id
		JOIN Event e ON e.event_id = s.event_id
		WHERE l.session_id = ?
		ORDER BY l.driver_name, l.lap_number`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("read laps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO laps (session_id, event_name, session_type, track_name,
			driver_name, lap_number, lap_time_s, sector_1_s, sector_2_s,
			sector_3_s, speed_fl_kmh, speed_st_kmh, tyre_compound, tyre_life,
			fresh_tyre, personal_best, position, lap_start)`)
	if err != nil {
		return 0, fmt.Errorf("prepare laps batch: %w", err)
	}

	count := 0
	for rows.Next() {
		var (
			sid                               uint64
			eventName, sessionType, trackName string
			driverName, compound              string
			lapNumber                         uint16
			lapTime, s1, s2, s3, spFL, spST   *float64
			tyreLife, position                *int32
			fresh, best                       bool
			lapStart                          *string
		)
		err := rows.Scan(&sid, &eventName, &sessionType, &trackName,
			&driverName, &lapNumber, &lapTime, &s1, &s2, &s3, &spFL, &spST,
			&compound, &tyreLife, &fresh, &best, &position, &lapStart)
		if err != nil {
			return 0, fmt.Errorf("scan lap: %w", err)
		}

		err = batch.Append(sid, eventName, sessionType, trackName, driverName,
			lapNumber, lapTime, s1, s2, s3, spFL, spST, compound, tyreLife,
			boolU8(fresh), boolU8(best), position, parseStoredTime(lapStart))
		if err != nil {
			return 0, fmt.Errorf("append lap: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate laps: %w", err)
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send laps batch: %w", err)
	}
	return count, nil
}

func (d *ClickHouseDB) exportTelemetry(ctx context.Context, db *storage.DB, sessionID int64) (int, error) {
	rows, err := db.Handle().QueryContext(ctx, `
		SELECT l.session_id, tm.lap_id, l.driver_name, l.lap_number,
			tm.datetime, tm.speed_in_km, tm.RPM, tm.gear_number,
			tm.throttle_input, tm.is_brake_pressed, tm.is_DRS_open,
			tm.x_position, tm.y_position, tm.z_position, tm.is_off_track
		FROM Telemetry tm
		JOIN Laps l ON l.lap_id = tm.lap_id
		WHERE l.session_id = ?
		ORDER BY tm.lap_id, tm.datetime`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("read telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO telemetry (session_id, lap_id, driver_name, lap_number,
			ts, speed_kmh, rpm, gear, throttle, brake, drs, x, y, z, off_track)`)
	if err != nil {
		return 0, fmt.Errorf("prepare telemetry batch: %w", err)
	}

	count := 0
	for rows.Next() {
		var (
			sid, lapID           uint64
			driverName, ts       string
			lapNumber            uint16
			speed, throttle      float64
			x, y, z              float64
			rpm                  int32
			gear                 int8
			brake, drs, offTrack bool
		)
		err := rows.Scan(&sid, &lapID, &driverName, &lapNumber, &ts, &speed,
			&rpm, &gear, &throttle, &brake, &drs, &x, &y, &z, &offTrack)
		if err != nil {
			return 0, fmt.Errorf("scan telemetry: %w", err)
		}

		at, err := time.Parse(storage.TimeFormat, ts)
		if err != nil {
			return 0, fmt.Errorf("parse telemetry time %q: %w", ts, err)
		}

		err = batch.Append(sid, lapID, driverName, lapNumber, at, speed, rpm,
			gear, throttle, boolU8(brake), boolU8(drs), x, y, z, boolU8(offTrack))
		if err != nil {
			return 0, fmt.Errorf("append telemetry: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate telemetry: %w", err)
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send telemetry batch: %w", err)
	}
	return count, nil
}

func boolU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func parseStoredTime(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(storage.TimeFormat, *s)
	if err != nil {
		return nil
	}
	return &t
}
