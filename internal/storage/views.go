package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultWeatherWindowSeconds is the temporal tolerance for correlating a
// lap with a weather sample: the sample counts when it falls within this
// many seconds after the lap's start. Sampling intervals are irregular, so
// an exact timestamp match would drop most correlations.
const DefaultWeatherWindowSeconds = 60

// weatherJoin is the shared Laps-to-Weather correlation fragment. %[1]d is
// the tolerance window in seconds.
const weatherJoin = `w.session_id = l.session_id
		AND w.datetime >= l.lap_start_time_in_datetime
		AND w.datetime < datetime(l.lap_start_time_in_datetime, '+%[1]d seconds')`

// The five derived views. They recompute on every query; nothing is
// persisted. Aggregates over possibly duplicated lap rows (one per matched
// weather sample) count DISTINCT lap_ids.
var viewDefs = []struct {
	name string
	ddl  string
}{
	{"driver_performance", `
CREATE VIEW driver_performance AS
SELECT
	l.driver_name,
	e.event_name,
	s.session_type,
	t.track_name,
	COUNT(DISTINCT l.lap_id) AS total_laps,
	AVG(l.lap_time_in_seconds) AS avg_lap_time,
	MIN(l.lap_time_in_seconds) AS best_lap_time,
	AVG(l.sector_1_time_in_seconds) AS avg_sector1_time,
	AVG(l.sector_2_time_in_seconds) AS avg_sector2_time,
	AVG(l.sector_3_time_in_seconds) AS avg_sector3_time,
	AVG(l.finish_line_speed_trap_in_km) AS avg_finish_line_speed,
	COUNT(DISTINCT CASE WHEN l.is_personal_best THEN l.lap_id END) AS personal_best_laps,
	AVG(w.air_temperature_in_celsius) AS avg_air_temp,
	AVG(w.track_temperature_in_celsius) AS avg_track_temp,
	AVG(CASE WHEN w.is_raining THEN 100.0 ELSE 0.0 END) AS rain_percentage
FROM Laps l
JOIN Sessions s ON s.session_id = l.session_id
JOIN Tracks t ON t.track_id = s.track_id
JOIN Event e ON e.event_id = s.event_id
LEFT JOIN Weather w ON ` + weatherJoin + `
GROUP BY l.driver_name, e.event_id, s.session_id`},

	{"tyre_performance", `
CREATE VIEW tyre_performance AS
SELECT
	l.driver_name,
	e.event_name,
	s.session_type,
	l.tyre_compound,
	AVG(l.tyre_life_in_laps) AS avg_tyre_life,
	AVG(l.lap_time_in_seconds) AS avg_lap_time,
	AVG(l.longest_strait_speed_trap_in_km) AS avg_top_speed,
	COUNT(DISTINCT CASE WHEN l.is_fresh_tyre THEN l.lap_id END) AS fresh_tyre_laps,
	COUNT(DISTINCT CASE WHEN NOT l.is_fresh_tyre THEN l.lap_id END) AS used_tyre_laps,
	AVG(w.track_temperature_in_celsius) AS avg_track_temp,
	AVG(w.air_temperature_in_celsius) AS avg_air_temp
FROM Laps l
JOIN Sessions s ON s.session_id = l.session_id
JOIN Event e ON e.event_id = s.event_id
LEFT JOIN Weather w ON ` + weatherJoin + `
GROUP BY l.driver_name, e.event_id, s.session_id, l.tyre_compound`},

	{"weather_impact", `
CREATE VIEW weather_impact AS
SELECT
	e.event_name,
	s.session_type,
	t.track_name,
	AVG(w.air_temperature_in_celsius) AS avg_air_temp,
	AVG(w.track_temperature_in_celsius) AS avg_track_temp,
	AVG(w.relative_air_humidity_in_percentage) AS avg_humidity,
	AVG(w.wind_speed_in_meters_per_seconds) AS avg_wind_speed,
	AVG(CASE WHEN w.is_raining THEN 100.0 ELSE 0.0 END) AS rain_percentage,
	AVG(l.lap_time_in_seconds) AS avg_lap_time,
	MIN(l.lap_time_in_seconds) AS best_lap_time
FROM Weather w
JOIN Sessions s ON s.session_id = w.session_id
JOIN Tracks t ON t.track_id = s.track_id
JOIN Event e ON e.event_id = s.event_id
JOIN Laps l ON ` + weatherJoin + `
GROUP BY e.event_id, s.session_id`},

	{"event_performance", `
CREATE VIEW event_performance AS
SELECT
	e.event_name,
	e.country,
	e.location,
	s.session_type,
	COUNT(DISTINCT l.driver_name) AS driver_count,
	AVG(l.lap_time_in_seconds) AS avg_lap_time,
	MIN(l.lap_time_in_seconds) AS best_lap_time,
	MAX(l.finish_line_speed_trap_in_km) AS max_finish_line_speed,
	AVG(w.air_temperature_in_celsius) AS avg_air_temp,
	AVG(w.track_temperature_in_celsius) AS avg_track_temp,
	AVG(CASE WHEN w.is_raining THEN 100.0 ELSE 0.0 END) AS rain_percentage
FROM Laps l
JOIN Sessions s ON s.session_id = l.session_id
JOIN Event e ON e.event_id = s.event_id
LEFT JOIN Weather w ON ` + weatherJoin + `
GROUP BY e.event_id, s.session_id`},

	{"telemetry_analysis", `
CREATE VIEW telemetry_analysis AS
SELECT
	l.lap_id,
	l.driver_name,
	l.lap_number,
	l.lap_time_in_seconds,
	AVG(tm.speed_in_km) AS avg_speed,
	MAX(tm.speed_in_km) AS max_speed,
	AVG(tm.RPM) AS avg_rpm,
	MAX(tm.RPM) AS max_rpm,
	AVG(tm.throttle_input) AS avg_throttle,
	AVG(CASE WHEN tm.is_brake_pressed THEN 100.0 ELSE 0.0 END) AS brake_percentage,
	AVG(CASE WHEN tm.is_DRS_open THEN 100.0 ELSE 0.0 END) AS drs_usage_percentage,
	AVG(CASE WHEN tm.is_off_track THEN 100.0 ELSE 0.0 END) AS off_track_percentage,
	AVG(w.air_temperature_in_celsius) AS avg_air_temp,
	AVG(w.track_temperature_in_celsius) AS avg_track_temp,
	AVG(w.wind_speed_in_meters_per_seconds) AS avg_wind_speed
FROM Laps l
JOIN Telemetry tm ON tm.lap_id = l.lap_id
LEFT JOIN Weather w ON ` + weatherJoin + `
GROUP BY l.lap_id`},
}

// CreateViews (re)creates the five analytical views with the given weather
// correlation window. Dropping first keeps the definitions current when the
// window changes between runs.
func CreateViews(ctx context.Context, tx *sql.Tx, windowSeconds int) error {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWeatherWindowSeconds
	}
	for _, v := range viewDefs {
		if _, err := tx.ExecContext(ctx, "DROP VIEW IF EXISTS "+v.name); err != nil {
			return &SchemaError{Stmt: "DROP VIEW " + v.name, Err: err}
		}
		ddl := fmt.Sprintf(v.ddl, windowSeconds)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return &SchemaError{Stmt: head(ddl), Err: err}
		}
	}
	return nil
}

// ViewNames returns the names of the five analytical views in creation order.
func ViewNames() []string {
	names := make([]string, len(viewDefs))
	for i, v := range viewDefs {
		names[i] = v.name
	}
	return names
}
