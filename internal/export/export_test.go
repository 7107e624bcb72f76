package export

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"f1timing/internal/ingest"
	"f1timing/internal/session"
	"f1timing/internal/storage"
)

// seedExportSource ingests a minimal session (one driver, two laps, two
// telemetry samples per lap, one weather sample) and returns the source
// database plus the session id to export.
func seedExportSource(t *testing.T) (*storage.DB, int64) {
	t.Helper()

	db, err := storage.Open(storage.DefaultConfig(filepath.Join(t.TempDir(), "timing.db")))
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	start := time.Date(2024, 5, 26, 13, 0, 0, 0, time.UTC)
	dur := func(seconds float64) *session.Duration {
		d := session.Duration(time.Duration(seconds * float64(time.Second)))
		return &d
	}

	arc := &session.Archive{
		Event: session.EventInfo{
			RoundNumber: 8,
			Country:     "Monaco",
			Location:    "Monte Carlo",
			EventDate:   time.Date(2024, 5, 26, 0, 0, 0, 0, time.UTC),
			EventName:   "Monaco Grand Prix",
		},
		Name:      "Race",
		StartTime: start,
		Drivers:   []session.DriverInfo{{FullName: "Charles Leclerc", Team: "Ferrari"}},
		Laps: []session.LapRecord{
			{Driver: "Charles Leclerc", LapNumber: 1, Compound: "SOFT", LapTime: dur(75), StartOffset: dur(0)},
			{Driver: "Charles Leclerc", LapNumber: 2, Compound: "SOFT", LapTime: dur(74), StartOffset: dur(75)},
		},
		Telemetry: map[string][]session.CarSample{
			"Charles Leclerc": {
				{Offset: session.Duration(10 * time.Second), SpeedKmh: 250, Throttle: 95, Status: "OnTrack"},
				{Offset: session.Duration(40 * time.Second), SpeedKmh: 280, Throttle: 100, Status: "OnTrack"},
				{Offset: session.Duration(85 * time.Second), SpeedKmh: 255, Throttle: 90, Status: "OnTrack"},
				{Offset: session.Duration(120 * time.Second), SpeedKmh: 270, Throttle: 98, Status: "OnTrack"},
			},
		},
		Weather: []session.WeatherSample{
			{Offset: 0, AirTemp: 24, TrackTemp: 39, Humidity: 60, Pressure: 1013, WindSpeed: 2.5},
		},
	}

	res, err := ingest.Run(context.Background(), db, arc, ingest.Options{})
	if err != nil {
		t.Fatalf("seed ingest: %v", err)
	}
	return db, res.SessionID
}
