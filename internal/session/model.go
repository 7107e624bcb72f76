// Package session defines the source model for one race session archive:
// event metadata, the driver roster, per-lap records, per-driver telemetry
// traces and the weather trace. The archive is the unit of ingestion.
package session

import (
	"fmt"
	"time"
)

// Session name labels accepted in event sub-session descriptors.
const (
	NamePractice = "practice"
	NameQualify  = "qualify"
	NameRace     = "race"
)

// SubSession is one of up to five scheduled sessions of a race weekend.
type SubSession struct {
	Name    string     `json:"name"`
	DateUTC *time.Time `json:"date_utc"`
}

// EventInfo holds the race-weekend metadata.
type EventInfo struct {
	RoundNumber int          `json:"round_number"`
	Country     string       `json:"country"`
	Location    string       `json:"location"`
	EventDate   time.Time    `json:"event_date"`
	EventName   string       `json:"event_name"`
	Sessions    []SubSession `json:"sessions"` // at most 5
}

// DriverInfo is one roster entry. FullName is the natural key.
type DriverInfo struct {
	FullName string `json:"full_name"`
	Team     string `json:"team"`
}

// LapRecord is one driver's one lap. Offsets are durations from the session
// start; nil means the source had no value for that field.
type LapRecord struct {
	Driver         string    `json:"driver"`
	LapNumber      int       `json:"lap_number"`
	Stint          *int      `json:"stint"`
	SpeedTrapS1    *float64  `json:"speed_trap_s1_kmh"`
	SpeedTrapS2    *float64  `json:"speed_trap_s2_kmh"`
	SpeedTrapFL    *float64  `json:"speed_trap_fl_kmh"`
	SpeedTrapST    *float64  `json:"speed_trap_st_kmh"`
	IsPersonalBest bool      `json:"is_personal_best"`
	Compound       string    `json:"tyre_compound"`
	TyreLife       *int      `json:"tyre_life_laps"`
	FreshTyre      bool      `json:"is_fresh_tyre"`
	Position       *int      `json:"position"`
	LapTime        *Duration `json:"lap_time"`
	Sector1Time    *Duration `json:"sector_1_time"`
	Sector2Time    *Duration `json:"sector_2_time"`
	Sector3Time    *Duration `json:"sector_3_time"`
	StartOffset    *Duration `json:"start_offset"`
	PitInOffset    *Duration `json:"pit_in_offset"`
	PitOutOffset   *Duration `json:"pit_out_offset"`
}

// CarSample is one timestamped car-state reading from a driver's trace.
type CarSample struct {
	Offset   Duration `json:"offset"`
	SpeedKmh float64  `json:"speed_kmh"`
	RPM      int      `json:"rpm"`
	Gear     int      `json:"gear"`
	Throttle float64  `json:"throttle"`
	Brake    bool     `json:"brake"`
	DRS      bool     `json:"drs"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Z        float64  `json:"z"`
	Status   string   `json:"status"`
}

// OffTrack reports whether the sample was recorded off the racing surface.
func (s *CarSample) OffTrack() bool { return s.Status == "OffTrack" }

// WeatherSample is one timestamped atmospheric reading.
type WeatherSample struct {
	Offset        Duration `json:"offset"`
	AirTemp       float64  `json:"air_temp_c"`
	TrackTemp     float64  `json:"track_temp_c"`
	Humidity      float64  `json:"humidity_pct"`
	Pressure      float64  `json:"pressure_mbar"`
	WindSpeed     float64  `json:"wind_speed_ms"`
	WindDirection float64  `json:"wind_direction_deg"`
	Rainfall      bool     `json:"rainfall"`
}

// Archive is one complete session data source.
type Archive struct {
	Event     EventInfo              `json:"event"`
	Name      string                 `json:"session_name"` // e.g. "Qualifying"
	StartTime time.Time              `json:"start_time_utc"`
	Drivers   []DriverInfo           `json:"drivers"`
	Laps      []LapRecord            `json:"laps"`
	Telemetry map[string][]CarSample `json:"telemetry"` // keyed by driver name
	Weather   []WeatherSample        `json:"weather"`
}

// AbsoluteTime converts a session-relative offset to an absolute UTC time.
// A nil offset yields nil.
func (a *Archive) AbsoluteTime(off *Duration) *time.Time {
	if off == nil {
		return nil
	}
	t := a.StartTime.Add(time.Duration(*off)).UTC()
	return &t
}

// DriverLaps returns the driver's lap records ordered by start offset.
// Laps without a start offset sort first and can never own telemetry.
func (a *Archive) DriverLaps(driver string) []LapRecord {
	var laps []LapRecord
	for _, l := range a.Laps {
		if l.Driver == driver {
			laps = append(laps, l)
		}
	}
	sortLapsByStart(laps)
	return laps
}

func sortLapsByStart(laps []LapRecord) {
	// Insertion sort; lap counts are small.
	for i := 1; i < len(laps); i++ {
		for j := i; j > 0 && lapStart(laps[j]) < lapStart(laps[j-1]); j-- {
			laps[j], laps[j-1] = laps[j-1], laps[j]
		}
	}
}

func lapStart(l LapRecord) Duration {
	if l.StartOffset == nil {
		return Duration(-1 << 62)
	}
	return *l.StartOffset
}

// OwningLap finds the lap a sample offset belongs to: the lap with the
// greatest start offset not after the sample. laps must be ordered by start
// offset (DriverLaps order).
func OwningLap(laps []LapRecord, off Duration) (LapRecord, bool) {
	for i := len(laps) - 1; i >= 0; i-- {
		if laps[i].StartOffset != nil && *laps[i].StartOffset <= off {
			return laps[i], true
		}
	}
	return LapRecord{}, false
}

// RowError reports a malformed source row. Any single malformed row fails
// the entire load or ingestion run; there is no skip-and-continue.
type RowError struct {
	Section string // "event", "drivers", "laps", "telemetry", "weather"
	Index   int    // row index within the section, -1 for section-level
	Field   string
	Err     error
}

func (e *RowError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: field %s: %v", e.Section, e.Field, e.Err)
	}
	return fmt.Sprintf("%s row %d: field %s: %v", e.Section, e.Index, e.Field, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }
