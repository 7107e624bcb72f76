package export

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"f1timing/internal/storage"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DefaultPostgresConfig returns local development settings.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "f1timing",
		User:     "f1timing",
		Password: "f1timing",
	}
}

// PostgresDB wraps a connection pool for the dashboard mirror.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDB{pool: pool}, nil
}

// Close closes the connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the mirror tables. Ids are copied verbatim from the
// timing database, so primary keys are plain BIGINTs, not serials.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS drivers (
		driver_name TEXT PRIMARY KEY,
		team        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tracks (
		track_id   BIGINT PRIMARY KEY,
		track_name TEXT NOT NULL,
		country    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		event_id     BIGINT PRIMARY KEY,
		round_number INTEGER,
		country      TEXT,
		location     TEXT,
		event_date   DATE,
		event_name   TEXT
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id   BIGINT PRIMARY KEY,
		event_id     BIGINT REFERENCES events(event_id),
		track_id     BIGINT REFERENCES tracks(track_id),
		session_type TEXT NOT NULL,
		date         TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS laps (
		lap_id         BIGINT PRIMARY KEY,
		session_id     BIGINT REFERENCES sessions(session_id),
		driver_name    TEXT NOT NULL,
		lap_number     INTEGER NOT NULL,
		lap_time_s     DOUBLE PRECISION,
		sector_1_s     DOUBLE PRECISION,
		sector_2_s     DOUBLE PRECISION,
		sector_3_s     DOUBLE PRECISION,
		speed_fl_kmh   DOUBLE PRECISION,
		speed_st_kmh   DOUBLE PRECISION,
		tyre_compound  TEXT,
		tyre_life      INTEGER,
		fresh_tyre     BOOLEAN,
		personal_best  BOOLEAN,
		position       INTEGER,
		lap_start      TIMESTAMPTZ,
		UNIQUE (session_id, driver_name, lap_number)
	);

	CREATE TABLE IF NOT EXISTS telemetry (
		telemetry_id BIGSERIAL PRIMARY KEY,
		lap_id       BIGINT REFERENCES laps(lap_id),
		ts           TIMESTAMPTZ,
		speed_kmh    DOUBLE PRECISION,
		rpm          INTEGER,
		gear         INTEGER,
		throttle     DOUBLE PRECISION,
		brake        BOOLEAN,
		drs          BOOLEAN,
		x            DOUBLE PRECISION,
		y            DOUBLE PRECISION,
		z            DOUBLE PRECISION,
		off_track    BOOLEAN
	);

	CREATE TABLE IF NOT EXISTS weather (
		weather_id     BIGINT PRIMARY KEY,
		session_id     BIGINT REFERENCES sessions(session_id),
		ts             TIMESTAMPTZ,
		air_temp_c     DOUBLE PRECISION,
		track_temp_c   DOUBLE PRECISION,
		humidity_pct   DOUBLE PRECISION,
		pressure_mbar  DOUBLE PRECISION,
		wind_speed_ms  DOUBLE PRECISION,
		wind_dir_deg   DOUBLE PRECISION,
		raining        BOOLEAN
	);

	CREATE INDEX IF NOT EXISTS idx_laps_session ON laps(session_id);
	CREATE INDEX IF NOT EXISTS idx_telemetry_lap ON telemetry(lap_id);
	CREATE INDEX IF NOT EXISTS idx_weather_session ON weather(session_id);
	`
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ExportSession mirrors one session and its dependents. Re-exporting the
// same session replaces its laps, telemetry and weather rows.
func (d *PostgresDB) ExportSession(ctx context.Context, db *storage.DB, sessionID int64) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := d.exportHeader(ctx, tx, db, sessionID); err != nil {
		return err
	}
	if err := d.exportLaps(ctx, tx, db, sessionID); err != nil {
		return err
	}
	if err := d.exportTelemetry(ctx, tx, db, sessionID); err != nil {
		return err
	}
	if err := d.exportWeather(ctx, tx, db, sessionID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// exportHeader mirrors the event, track, session and roster rows.
func (d *PostgresDB) exportHeader(ctx context.Context, tx pgx.Tx, db *storage.DB, sessionID int64) error {
	var (
		eventID, trackID             int64
		roundNumber                  *int
		country, location, eventName *string
		eventDate                    *string
		trackName, trackCountry      string
		sessionType, sessionDate     string
	)
	err := db.Handle().QueryRowContext(ctx, `
		SELECT e.event_id, e.round_number, e.country, e.location, e.event_date,
			e.event_name, t.track_id, t.track_name, t.country,
			s.session_type, s.date
		FROM Sessions s
		JOIN Event e ON e.event_id = s.event_id
		JOIN Tracks t ON t.track_id = s.track_id
		WHERE s.session_id = ?`, sessionID).
		Scan(&eventID, &roundNumber, &country, &location, &eventDate,
			&eventName, &trackID, &trackName, &trackCountry, &sessionType, &sessionDate)
	if err != nil {
		return fmt.Errorf("read session header: %w", err)
	}

	sessionAt, err := time.Parse(storage.TimeFormat, sessionDate)
	if err != nil {
		return fmt.Errorf("parse session date %q: %w", sessionDate, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (event_id, round_number, country, location, event_date, event_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO UPDATE SET round_number = $2, country = $3,
			location = $4, event_date = $5, event_name = $6`,
		eventID, roundNumber, country, location, eventDate, eventName)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tracks (track_id, track_name, country) VALUES ($1, $2, $3)
		ON CONFLICT (track_id) DO NOTHING`,
		trackID, trackName, trackCountry)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (session_id, event_id, track_id, session_type, date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, eventID, trackID, sessionType, sessionAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	rows, err := db.Handle().QueryContext(ctx, `SELECT driver_name, team FROM Drivers`)
	if err != nil {
		return fmt.Errorf("read drivers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name, team string
		if err := rows.Scan(&name, &team); err != nil {
			return fmt.Errorf("scan driver: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO drivers (driver_name, team) VALUES ($1, $2)
			ON CONFLICT (driver_name) DO NOTHING`, name, team)
		if err != nil {
			return fmt.Errorf("upsert driver: %w", err)
		}
	}
	return rows.Err()
}

func (d *PostgresDB) exportLaps(ctx context.Context, tx pgx.Tx, db *storage.DB, sessionID int64) error {
	rows, err := db.Handle().QueryContext(ctx, `
		SELECT lap_id, session_id, driver_name, lap_number,
			lap_time_in_seconds, sector_1_time_in_seconds,
			sector_2_time_in_seconds, sector_3_time_in_seconds,
			finish_line_speed_trap_in_km, longest_strait_speed_trap_in_km,
			tyre_compound, tyre_life_in_laps, is_fresh_tyre, is_personal_best,
			position, lap_start_time_in_datetime
		FROM Laps WHERE session_id = ? ORDER BY lap_id`, sessionID)
	if err != nil {
		return fmt.Errorf("read laps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var src [][]any
	for rows.Next() {
		var (
			lapID, sid                      int64
			driverName, compound            string
			lapNumber                       int
			lapTime, s1, s2, s3, spFL, spST *float64
			tyreLife, position              *int
			fresh, best                     bool
			lapStart                        *string
		)
		err := rows.Scan(&lapID, &sid, &driverName, &lapNumber, &lapTime,
			&s1, &s2, &s3, &spFL, &spST, &compound, &tyreLife, &fresh, &best,
			&position, &lapStart)
		if err != nil {
			return fmt.Errorf("scan lap: %w", err)
		}
		src = append(src, []any{lapID, sid, driverName, lapNumber, lapTime,
			s1, s2, s3, spFL, spST, compound, tyreLife, fresh, best, position,
			parseStoredTime(lapStart)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate laps: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM telemetry WHERE lap_id IN (SELECT lap_id FROM laps WHERE session_id = $1)`, sessionID); err != nil {
		return fmt.Errorf("clear telemetry: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM laps WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear laps: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"laps"},
		[]string{"lap_id", "session_id", "driver_name", "lap_number",
			"lap_time_s", "sector_1_s", "sector_2_s", "sector_3_s",
			"speed_fl_kmh", "speed_st_kmh", "tyre_compound", "tyre_life",
			"fresh_tyre", "personal_best", "position", "lap_start"},
		pgx.CopyFromRows(src))
	if err != nil {
		return fmt.Errorf("copy laps: %w", err)
	}
	return nil
}

func (d *PostgresDB) exportTelemetry(ctx context.Context, tx pgx.Tx, db *storage.DB, sessionID int64) error {
	rows, err := db.Handle().QueryContext(ctx, `
		SELECT tm.lap_id, tm.datetime, tm.speed_in_km, tm.RPM, tm.gear_number,
			tm.throttle_input, tm.is_brake_pressed, tm.is_DRS_open,
			tm.x_position, tm.y_position, tm.z_position, tm.is_off_track
		FROM Telemetry tm
		JOIN Laps l ON l.lap_id = tm.lap_id
		WHERE l.session_id = ? ORDER BY tm.telemetry_id`, sessionID)
	if err != nil {
		return fmt.Errorf("read telemetry: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var src [][]any
	for rows.Next() {
		var (
			lapID                int64
			ts                   string
			speed, throttle      float64
			x, y, z              float64
			rpm, gear            int
			brake, drs, offTrack bool
		)
		err := rows.Scan(&lapID, &ts, &speed, &rpm, &gear, &throttle,
			&brake, &drs, &x, &y, &z, &offTrack)
		if err != nil {
			return fmt.Errorf("scan telemetry: %w", err)
		}
		at, err := time.Parse(storage.TimeFormat, ts)
		if err != nil {
			return fmt.Errorf("parse telemetry time %q: %w", ts, err)
		}
		src = append(src, []any{lapID, at, speed, rpm, gear, throttle,
			brake, drs, x, y, z, offTrack})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate telemetry: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"telemetry"},
		[]string{"lap_id", "ts", "speed_kmh", "rpm", "gear", "throttle",
			"brake", "drs", "x", "y", "z", "off_track"},
		pgx.CopyFromRows(src))
	if err != nil {
		return fmt.Errorf("copy telemetry: %w", err)
	}
	return nil
}

func (d *PostgresDB) exportWeather(ctx context.Context, tx pgx.Tx, db *storage.DB, sessionID int64) error {
	rows, err := db.Handle().QueryContext(ctx, `
		SELECT weather_id, session_id, datetime, air_temperature_in_celsius,
			track_temperature_in_celsius, relative_air_humidity_in_percentage,
			air_pressure_in_mbar, wind_speed_in_meters_per_seconds,
			wind_direction_in_grads, is_raining
		FROM Weather WHERE session_id = ? ORDER BY weather_id`, sessionID)
	if err != nil {
		return fmt.Errorf("read weather: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var src [][]any
	for rows.Next() {
		var (
			weatherID, sid         int64
			ts                     string
			air, track, hum, press float64
			windSpeed, windDir     float64
			raining                bool
		)
		err := rows.Scan(&weatherID, &sid, &ts, &air, &track, &hum, &press,
			&windSpeed, &windDir, &raining)
		if err != nil {
			return fmt.Errorf("scan weather: %w", err)
		}
		at, err := time.Parse(storage.TimeFormat, ts)
		if err != nil {
			return fmt.Errorf("parse weather time %q: %w", ts, err)
		}
		src = append(src, []any{weatherID, sid, at, air, track, hum, press,
			windSpeed, windDir, raining})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate weather: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM weather WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear weather: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"weather"},
		[]string{"weather_id", "session_id", "ts", "air_temp_c",
			"track_temp_c", "humidity_pct", "pressure_mbar", "wind_speed_ms",
			"wind_dir_deg", "raining"},
		pgx.CopyFromRows(src))
	if err != nil {
		return fmt.Errorf("copy weather: %w", err)
	}
	return nil
}
