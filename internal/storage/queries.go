package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Typed result rows for the five analytical views. Nullable aggregates scan
// into NullFloat fields; consumers get structured values, never stringified
// tuples.

// NullFloat scans like sql.NullFloat64 and marshals to JSON as a number or
// null.
type NullFloat struct {
	sql.NullFloat64
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// DriverPerformanceRow is one driver_performance view row.
type DriverPerformanceRow struct {
	DriverName         string    `json:"driver_name"`
	EventName          string    `json:"event_name"`
	SessionType        string    `json:"session_type"`
	TrackName          string    `json:"track_name"`
	TotalLaps          int       `json:"total_laps"`
	AvgLapTime         NullFloat `json:"avg_lap_time"`
	BestLapTime        NullFloat `json:"best_lap_time"`
	AvgSector1Time     NullFloat `json:"avg_sector1_time"`
	AvgSector2Time     NullFloat `json:"avg_sector2_time"`
	AvgSector3Time     NullFloat `json:"avg_sector3_time"`
	AvgFinishLineSpeed NullFloat `json:"avg_finish_line_speed"`
	PersonalBestLaps   int       `json:"personal_best_laps"`
	AvgAirTemp         NullFloat `json:"avg_air_temp"`
	AvgTrackTemp       NullFloat `json:"avg_track_temp"`
	RainPercentage     NullFloat `json:"rain_percentage"`
}

// DriverPerformance returns one row per driver/event/session.
func (d *DB) DriverPerformance(ctx context.Context) ([]DriverPerformanceRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT driver_name, event_name, session_type, track_name, total_laps,
			avg_lap_time, best_lap_time, avg_sector1_time, avg_sector2_time,
			avg_sector3_time, avg_finish_line_speed, personal_best_laps,
			avg_air_temp, avg_track_temp, rain_percentage
		FROM driver_performance
		ORDER BY driver_name, event_name, session_type`)
	if err != nil {
		return nil, fmt.Errorf("query driver_performance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DriverPerformanceRow
	for rows.Next() {
		var r DriverPerformanceRow
		if err := rows.Scan(&r.DriverName, &r.EventName, &r.SessionType, &r.TrackName,
			&r.TotalLaps, &r.AvgLapTime, &r.BestLapTime, &r.AvgSector1Time,
			&r.AvgSector2Time, &r.AvgSector3Time, &r.AvgFinishLineSpeed,
			&r.PersonalBestLaps, &r.AvgAirTemp, &r.AvgTrackTemp, &r.RainPercentage); err != nil {
			return nil, fmt.Errorf("scan driver_performance: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TyrePerformanceRow is one tyre_performance view row.
type TyrePerformanceRow struct {
	DriverName    string    `json:"driver_name"`
	EventName     string    `json:"event_name"`
	SessionType   string    `json:"session_type"`
	TyreCompound  string    `json:"tyre_compound"`
	AvgTyreLife   NullFloat `json:"avg_tyre_life"`
	AvgLapTime    NullFloat `json:"avg_lap_time"`
	AvgTopSpeed   NullFloat `json:"avg_top_speed"`
	FreshTyreLaps int       `json:"fresh_tyre_laps"`
	UsedTyreLaps  int       `json:"used_tyre_laps"`
	AvgTrackTemp  NullFloat `json:"avg_track_temp"`
	AvgAirTemp    NullFloat `json:"avg_air_temp"`
}

// TyrePerformance returns compound aggregates for one driver across all
// their sessions.
func (d *DB) TyrePerformance(ctx context.Context, driverName string) ([]TyrePerformanceRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT driver_name, event_name, session_type, tyre_compound,
			avg_tyre_life, avg_lap_time, avg_top_speed, fresh_tyre_laps,
			used_tyre_laps, avg_track_temp, avg_air_temp
		FROM tyre_performance
		WHERE driver_name = ?
		ORDER BY event_name, session_type, tyre_compound`, driverName)
	if err != nil {
		return nil, fmt.Errorf("query tyre_performance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TyrePerformanceRow
	for rows.Next() {
		var r TyrePerformanceRow
		if err := rows.Scan(&r.DriverName, &r.EventName, &r.SessionType, &r.TyreCompound,
			&r.AvgTyreLife, &r.AvgLapTime, &r.AvgTopSpeed, &r.FreshTyreLaps,
			&r.UsedTyreLaps, &r.AvgTrackTemp, &r.AvgAirTemp); err != nil {
			return nil, fmt.Errorf("scan tyre_performance: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeatherImpactRow is one weather_impact view row.
type WeatherImpactRow struct {
	EventName      string    `json:"event_name"`
	SessionType    string    `json:"session_type"`
	TrackName      string    `json:"track_name"`
	AvgAirTemp     NullFloat `json:"avg_air_temp"`
	AvgTrackTemp   NullFloat `json:"avg_track_temp"`
	AvgHumidity    NullFloat `json:"avg_humidity"`
	AvgWindSpeed   NullFloat `json:"avg_wind_speed"`
	RainPercentage NullFloat `json:"rain_percentage"`
	AvgLapTime     NullFloat `json:"avg_lap_time"`
	BestLapTime    NullFloat `json:"best_lap_time"`
}

// WeatherImpact returns one row per event/session that has at least one
// correlated lap.
func (d *DB) WeatherImpact(ctx context.Context) ([]WeatherImpactRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT event_name, session_type, track_name, avg_air_temp,
			avg_track_temp, avg_humidity, avg_wind_speed, rain_percentage,
			avg_lap_time, best_lap_time
		FROM weather_impact
		ORDER BY event_name, session_type`)
	if err != nil {
		return nil, fmt.Errorf("query weather_impact: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []WeatherImpactRow
	for rows.Next() {
		var r WeatherImpactRow
		if err := rows.Scan(&r.EventName, &r.SessionType, &r.TrackName, &r.AvgAirTemp,
			&r.AvgTrackTemp, &r.AvgHumidity, &r.AvgWindSpeed, &r.RainPercentage,
			&r.AvgLapTime, &r.BestLapTime); err != nil {
			return nil, fmt.Errorf("scan weather_impact: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventPerformanceRow is one event_performance view row.
type EventPerformanceRow struct {
	EventName          string    `json:"event_name"`
	Country            string    `json:"country"`
	Location           string    `json:"location"`
	SessionType        string    `json:"session_type"`
	DriverCount        int       `json:"driver_count"`
	AvgLapTime         NullFloat `json:"avg_lap_time"`
	BestLapTime        NullFloat `json:"best_lap_time"`
	MaxFinishLineSpeed NullFloat `json:"max_finish_line_speed"`
	AvgAirTemp         NullFloat `json:"avg_air_temp"`
	AvgTrackTemp       NullFloat `json:"avg_track_temp"`
	RainPercentage     NullFloat `json:"rain_percentage"`
}

// EventPerformance returns one row per event/session.
func (d *DB) EventPerformance(ctx context.Context) ([]EventPerformanceRow, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT event_name, country, location, session_type, driver_count,
			avg_lap_time, best_lap_time, max_finish_line_speed, avg_air_temp,
			avg_track_temp, rain_percentage
		FROM event_performance
		ORDER BY event_name, session_type`)
	if err != nil {
		return nil, fmt.Errorf("query event_performance: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EventPerformanceRow
	for rows.Next() {
		var r EventPerformanceRow
		if err := rows.Scan(&r.EventName, &r.Country, &r.Location, &r.SessionType,
			&r.DriverCount, &r.AvgLapTime, &r.BestLapTime, &r.MaxFinishLineSpeed,
			&r.AvgAirTemp, &r.AvgTrackTemp, &r.RainPercentage); err != nil {
			return nil, fmt.Errorf("scan event_performance: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TelemetryAnalysisRow is one telemetry_analysis view row.
type TelemetryAnalysisRow struct {
	LapID              int64     `json:"lap_id"`
	DriverName         string    `json:"driver_name"`
	LapNumber          int       `json:"lap_number"`
	LapTimeInSeconds   NullFloat `json:"lap_time_in_seconds"`
	AvgSpeed           NullFloat `json:"avg_speed"`
	MaxSpeed           NullFloat `json:"max_speed"`
	AvgRPM             NullFloat `json:"avg_rpm"`
	MaxRPM             NullFloat `json:"max_rpm"`
	AvgThrottle        NullFloat `json:"avg_throttle"`
	BrakePercentage    NullFloat `json:"brake_percentage"`
	DRSUsagePercentage NullFloat `json:"drs_usage_percentage"`
	OffTrackPercentage NullFloat `json:"off_track_percentage"`
	AvgAirTemp         NullFloat `json:"avg_air_temp"`
	AvgTrackTemp       NullFloat `json:"avg_track_temp"`
	AvgWindSpeed       NullFloat `json:"avg_wind_speed"`
}

const telemetryAnalysisSelect = `
	SELECT lap_id, driver_name, lap_number, lap_time_in_seconds, avg_speed,
		max_speed, avg_rpm, max_rpm, avg_throttle, brake_percentage,
		drs_usage_percentage, off_track_percentage, avg_air_temp,
		avg_track_temp, avg_wind_speed
	FROM telemetry_analysis`

func scanTelemetryAnalysis(rows *sql.Rows) ([]TelemetryAnalysisRow, error) {
	defer func() { _ = rows.Close() }()
	var out []TelemetryAnalysisRow
	for rows.Next() {
		var r TelemetryAnalysisRow
		if err := rows.Scan(&r.LapID, &r.DriverName, &r.LapNumber, &r.LapTimeInSeconds,
			&r.AvgSpeed, &r.MaxSpeed, &r.AvgRPM, &r.MaxRPM, &r.AvgThrottle,
			&r.BrakePercentage, &r.DRSUsagePercentage, &r.OffTrackPercentage,
			&r.AvgAirTemp, &r.AvgTrackTemp, &r.AvgWindSpeed); err != nil {
			return nil, fmt.Errorf("scan telemetry_analysis: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TelemetryAnalysis returns per-lap telemetry aggregates for every lap.
func (d *DB) TelemetryAnalysis(ctx context.Context) ([]TelemetryAnalysisRow, error) {
	rows, err := d.db.QueryContext(ctx, telemetryAnalysisSelect+` ORDER BY lap_id`)
	if err != nil {
		return nil, fmt.Errorf("query telemetry_analysis: %w", err)
	}
	return scanTelemetryAnalysis(rows)
}

// TelemetryForLap returns the telemetry aggregates for one driver's lap.
func (d *DB) TelemetryForLap(ctx context.Context, driverName string, lapNumber int) ([]TelemetryAnalysisRow, error) {
	rows, err := d.db.QueryContext(ctx,
		telemetryAnalysisSelect+` WHERE driver_name = ? AND lap_number = ? ORDER BY lap_id`,
		driverName, lapNumber)
	if err != nil {
		return nil, fmt.Errorf("query telemetry_analysis: %w", err)
	}
	return scanTelemetryAnalysis(rows)
}
