package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Row structs mirror one table each. Pointer fields are nullable columns;
// insert statements name every column explicitly so the schema stays the
// single source of column order.

// EventRow is one race weekend.
type EventRow struct {
	RoundNumber  int
	Country      string
	Location     string
	EventDate    string // DATE, storage encoding
	EventName    string
	SessionDates [5]*string // DATETIME, storage encoding
	SessionNames [5]*string // 'practice' | 'qualify' | 'race'
}

// SessionRow is one practice/qualifying/race instance.
type SessionRow struct {
	EventID     int64
	TrackID     int64
	SessionType string
	Date        string
}

// DriverRow is one roster entry, deduplicated globally by driver_name.
type DriverRow struct {
	DriverName string
	Team       string
}

// LapRow is one driver's one lap. (SessionID, DriverName, LapNumber) is the
// natural key.
type LapRow struct {
	SessionID        int64
	DriverName       string
	LapNumber        int
	Stint            *int
	SpeedTrapS1Kmh   *float64
	SpeedTrapS2Kmh   *float64
	SpeedTrapFLKmh   *float64
	SpeedTrapSTKmh   *float64
	IsPersonalBest   bool
	TyreCompound     string
	TyreLifeInLaps   *int
	IsFreshTyre      bool
	Position         *int
	LapTimeSec       *float64
	Sector1TimeSec   *float64
	Sector2TimeSec   *float64
	Sector3TimeSec   *float64
	LapStartDatetime *string
	PitInDatetime    *string
	PitOutDatetime   *string
}

// TelemetryRow is one car-state sample owned by exactly one lap.
type TelemetryRow struct {
	LapID    int64
	SpeedKmh float64
	RPM      int
	Gear     int
	Throttle float64
	Brake    bool
	DRS      bool
	X        float64
	Y        float64
	Z        float64
	OffTrack bool
	Datetime string
}

// WeatherRow is one atmospheric sample within a session.
type WeatherRow struct {
	SessionID     int64
	Datetime      string
	AirTemp       float64
	Humidity      float64
	Pressure      float64
	Raining       bool
	TrackTemp     float64
	WindDirection float64
	WindSpeed     float64
}

// UpsertEvent inserts the event or, when a row with the same (round_number,
// event_name) exists, updates it in place and reuses its id. Re-ingesting an
// event therefore never duplicates Event rows.
func UpsertEvent(ctx context.Context, tx *sql.Tx, e EventRow) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT event_id FROM Event WHERE round_number = ? AND event_name = ?`,
		e.RoundNumber, e.EventName).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO Event (round_number, country, location, event_date, event_name,
				session_1_date_utc, session_1_name, session_2_date_utc, session_2_name,
				session_3_date_utc, session_3_name, session_4_date_utc, session_4_name,
				session_5_date_utc, session_5_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.RoundNumber, e.Country, e.Location, e.EventDate, e.EventName,
			e.SessionDates[0], e.SessionNames[0], e.SessionDates[1], e.SessionNames[1],
			e.SessionDates[2], e.SessionNames[2], e.SessionDates[3], e.SessionNames[3],
			e.SessionDates[4], e.SessionNames[4])
		if err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("lookup event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE Event SET country = ?, location = ?, event_date = ?,
			session_1_date_utc = ?, session_1_name = ?, session_2_date_utc = ?, session_2_name = ?,
			session_3_date_utc = ?, session_3_name = ?, session_4_date_utc = ?, session_4_name = ?,
			session_5_date_utc = ?, session_5_name = ?
		WHERE event_id = ?`,
		e.Country, e.Location, e.EventDate,
		e.SessionDates[0], e.SessionNames[0], e.SessionDates[1], e.SessionNames[1],
		e.SessionDates[2], e.SessionNames[2], e.SessionDates[3], e.SessionNames[3],
		e.SessionDates[4], e.SessionNames[4], id)
	if err != nil {
		return 0, fmt.Errorf("update event: %w", err)
	}
	return id, nil
}

// GetOrCreateTrack looks a track up by its (track_name, country) natural key
// and creates it on miss. Single-writer only; two concurrent runs can race
// the lookup.
func GetOrCreateTrack(ctx context.Context, tx *sql.Tx, name, country string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT track_id FROM Tracks WHERE track_name = ? AND country = ?`,
		name, country).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO Tracks (track_name, country) VALUES (?, ?)`, name, country)
		if err != nil {
			return 0, fmt.Errorf("insert track: %w", err)
		}
		return res.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("lookup track: %w", err)
	}
	return id, nil
}

// GetOrCreateSession resolves a session by (event_id, session_type, date)
// or inserts it, returning the id every dependent insert of the run uses.
// created reports whether this run inserted the row; re-ingesting the same
// session therefore hits the existing id and the lap uniqueness constraint
// instead of silently forking a new session.
func GetOrCreateSession(ctx context.Context, tx *sql.Tx, s SessionRow) (id int64, created bool, err error) {
	err = tx.QueryRowContext(ctx,
		`SELECT session_id FROM Sessions WHERE event_id = ? AND session_type = ? AND date = ?`,
		s.EventID, s.SessionType, s.Date).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO Sessions (event_id, track_id, session_type, date) VALUES (?, ?, ?, ?)`,
			s.EventID, s.TrackID, s.SessionType, s.Date)
		if err != nil {
			return 0, false, fmt.Errorf("insert session: %w", err)
		}
		id, err = res.LastInsertId()
		return id, true, err
	case err != nil:
		return 0, false, fmt.Errorf("lookup session: %w", err)
	}
	return id, false, nil
}

// InsertDriver inserts a roster entry, ignoring duplicates by driver_name.
// The row is team-agnostic across events; a driver keeps the team recorded
// at first sight.
func InsertDriver(ctx context.Context, tx *sql.Tx, d DriverRow) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO Drivers (driver_name, team) VALUES (?, ?)`,
		d.DriverName, d.Team)
	if err != nil {
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

const insertLapSQL = `
	INSERT INTO Laps (session_id, driver_name, lap_number, stint,
		sector_1_speed_trap_in_km, sector_2_speed_trap_in_km,
		finish_line_speed_trap_in_km, longest_strait_speed_trap_in_km,
		is_personal_best, tyre_compound, tyre_life_in_laps, is_fresh_tyre,
		position, lap_time_in_seconds, sector_1_time_in_seconds,
		sector_2_time_in_seconds, sector_3_time_in_seconds,
		lap_start_time_in_datetime, pin_in_time_in_datetime, pin_out_time_in_datetime)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertLap inserts one lap and returns its generated lap_id. A duplicate
// natural key yields a *UniqueConstraintError.
func InsertLap(ctx context.Context, tx *sql.Tx, l LapRow) (int64, error) {
	res, err := tx.ExecContext(ctx, insertLapSQL,
		l.SessionID, l.DriverName, l.LapNumber, l.Stint,
		l.SpeedTrapS1Kmh, l.SpeedTrapS2Kmh, l.SpeedTrapFLKmh, l.SpeedTrapSTKmh,
		l.IsPersonalBest, l.TyreCompound, l.TyreLifeInLaps, l.IsFreshTyre,
		l.Position, l.LapTimeSec, l.Sector1TimeSec, l.Sector2TimeSec, l.Sector3TimeSec,
		l.LapStartDatetime, l.PitInDatetime, l.PitOutDatetime)
	if err != nil {
		if IsUniqueViolation(err) {
			return 0, &UniqueConstraintError{
				SessionID:  l.SessionID,
				DriverName: l.DriverName,
				LapNumber:  l.LapNumber,
				Err:        err,
			}
		}
		return 0, fmt.Errorf("insert lap: %w", err)
	}
	return res.LastInsertId()
}

// ResolveLapID returns the surrogate lap_id for a lap's natural key. Misses
// yield a *ResolveError.
func ResolveLapID(ctx context.Context, tx *sql.Tx, sessionID int64, driver string, lapNumber int) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT lap_id FROM Laps WHERE session_id = ? AND driver_name = ? AND lap_number = ?`,
		sessionID, driver, lapNumber).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, &ResolveError{
			Entity: "lap",
			Key:    fmt.Sprintf("(session %d, driver %q, lap %d)", sessionID, driver, lapNumber),
		}
	}
	if err != nil {
		return 0, fmt.Errorf("resolve lap: %w", err)
	}
	return id, nil
}

const insertTelemetrySQL = `
	INSERT INTO Telemetry (lap_id, speed_in_km, RPM, gear_number, throttle_input,
		is_brake_pressed, is_DRS_open, x_position, y_position, z_position,
		is_off_track, datetime)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// PrepareTelemetryInsert prepares the telemetry insert for batched reuse.
// Telemetry is the highest-volume table; the caller appends one sample at a
// time against a single prepared statement inside the run's transaction.
func PrepareTelemetryInsert(ctx context.Context, tx *sql.Tx) (*sql.Stmt, error) {
	stmt, err := tx.PrepareContext(ctx, insertTelemetrySQL)
	if err != nil {
		return nil, fmt.Errorf("prepare telemetry insert: %w", err)
	}
	return stmt, nil
}

// AppendTelemetry executes the prepared insert for one sample.
func AppendTelemetry(ctx context.Context, stmt *sql.Stmt, t TelemetryRow) error {
	_, err := stmt.ExecContext(ctx,
		t.LapID, t.SpeedKmh, t.RPM, t.Gear, t.Throttle,
		t.Brake, t.DRS, t.X, t.Y, t.Z, t.OffTrack, t.Datetime)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

const insertWeatherSQL = `
	INSERT INTO Weather (session_id, datetime, air_temperature_in_celsius,
		relative_air_humidity_in_percentage, air_pressure_in_mbar, is_raining,
		track_temperature_in_celsius, wind_direction_in_grads,
		wind_speed_in_meters_per_seconds)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertWeather inserts one weather sample.
func InsertWeather(ctx context.Context, tx *sql.Tx, w WeatherRow) error {
	_, err := tx.ExecContext(ctx, insertWeatherSQL,
		w.SessionID, w.Datetime, w.AirTemp, w.Humidity, w.Pressure,
		w.Raining, w.TrackTemp, w.WindDirection, w.WindSpeed)
	if err != nil {
		return fmt.Errorf("insert weather: %w", err)
	}
	return nil
}
