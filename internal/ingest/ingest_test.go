package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"f1timing/internal/session"
	"f1timing/internal/storage"
)

const (
	lapsPerDriver    = 3
	samplesPerLap    = 100
	lapLengthSeconds = 80
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.DefaultConfig(filepath.Join(t.TempDir(), "timing.db")))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dur(seconds float64) *session.Duration {
	d := session.Duration(time.Duration(seconds * float64(time.Second)))
	return &d
}

// testArchive builds a race archive with two drivers, three laps each and
// one hundred telemetry samples per lap, plus five weather samples.
func testArchive() *session.Archive {
	start := time.Date(2024, 5, 26, 13, 0, 0, 0, time.UTC)
	a := &session.Archive{
		Event: session.EventInfo{
			RoundNumber: 8,
			Country:     "Monaco",
			Location:    "Monte Carlo",
			EventDate:   time.Date(2024, 5, 26, 0, 0, 0, 0, time.UTC),
			EventName:   "Monaco Grand Prix",
			Sessions: []session.SubSession{
				{Name: session.NamePractice, DateUTC: &start},
				{Name: session.NameRace, DateUTC: &start},
			},
		},
		Name:      "Race",
		StartTime: start,
		Drivers: []session.DriverInfo{
			{FullName: "Charles Leclerc", Team: "Ferrari"},
			{FullName: "Oscar Piastri", Team: "McLaren"},
		},
		Telemetry: map[string][]session.CarSample{},
	}

	for _, d := range a.Drivers {
		for lap := 1; lap <= lapsPerDriver; lap++ {
			startOff := float64((lap - 1) * lapLengthSeconds)
			a.Laps = append(a.Laps, session.LapRecord{
				Driver:      d.FullName,
				LapNumber:   lap,
				Compound:    "SOFT",
				FreshTyre:   lap == 1,
				LapTime:     dur(lapLengthSeconds),
				StartOffset: dur(startOff),
			})
			for i := 0; i < samplesPerLap; i++ {
				a.Telemetry[d.FullName] = append(a.Telemetry[d.FullName], session.CarSample{
					Offset:   session.Duration(time.Duration((startOff + float64(i)*0.8) * float64(time.Second))),
					SpeedKmh: 250,
					RPM:      11000,
					Gear:     7,
					Throttle: 95,
					X:        1.234567,
					Y:        2.345678,
					Z:        0.1,
					Status:   "OnTrack",
				})
			}
		}
	}

	for i := 0; i < 5; i++ {
		a.Weather = append(a.Weather, session.WeatherSample{
			Offset:    session.Duration(time.Duration(i*50) * time.Second),
			AirTemp:   24,
			TrackTemp: 39,
			Humidity:  60,
			Pressure:  1013,
			WindSpeed: 2.5,
		})
	}
	return a
}

func TestRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := Run(ctx, db, testArchive(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantLaps := 2 * lapsPerDriver
	wantTelemetry := wantLaps * samplesPerLap
	if res.Drivers != 2 {
		t.Errorf("Drivers = %d, want 2", res.Drivers)
	}
	if res.Laps != wantLaps {
		t.Errorf("Laps = %d, want %d", res.Laps, wantLaps)
	}
	if res.Telemetry != wantTelemetry {
		t.Errorf("Telemetry = %d, want %d", res.Telemetry, wantTelemetry)
	}
	if res.Weather != 5 {
		t.Errorf("Weather = %d, want 5", res.Weather)
	}

	counts := map[string]int{
		"Drivers":   2,
		"Tracks":    1,
		"Event":     1,
		"Sessions":  1,
		"Laps":      wantLaps,
		"Telemetry": wantTelemetry,
		"Weather":   5,
	}
	for table, want := range counts {
		var got int
		if err := db.Handle().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Errorf("%s = %d rows, want %d", table, got, want)
		}
	}

	perf, err := db.DriverPerformance(ctx)
	if err != nil {
		t.Fatalf("driver_performance: %v", err)
	}
	if len(perf) != 2 {
		t.Fatalf("driver_performance = %d rows, want 2", len(perf))
	}
	for _, r := range perf {
		if r.TotalLaps != lapsPerDriver {
			t.Errorf("%s total_laps = %d, want %d", r.DriverName, r.TotalLaps, lapsPerDriver)
		}
	}
}

func TestRunTelemetryLapAssociation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Give the second driver a distinct sample count per lap so a
	// lap_number-based join would visibly miscount.
	arc := testArchive()
	arc.Telemetry["Oscar Piastri"] = nil
	for lap := 1; lap <= lapsPerDriver; lap++ {
		startOff := float64((lap - 1) * lapLengthSeconds)
		for i := 0; i < 10*lap; i++ {
			arc.Telemetry["Oscar Piastri"] = append(arc.Telemetry["Oscar Piastri"], session.CarSample{
				Offset:   session.Duration(time.Duration((startOff + float64(i)) * float64(time.Second))),
				SpeedKmh: 240,
				Throttle: 80,
				Status:   "OnTrack",
			})
		}
	}

	if _, err := Run(ctx, db, arc, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	rows, err := db.Handle().Query(`
		SELECT l.driver_name, l.lap_number, COUNT(tm.telemetry_id)
		FROM Laps l JOIN Telemetry tm ON tm.lap_id = l.lap_id
		WHERE l.driver_name = 'Oscar Piastri'
		GROUP BY l.lap_id ORDER BY l.lap_number`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	lap := 0
	for rows.Next() {
		lap++
		var driver string
		var lapNumber, n int
		if err := rows.Scan(&driver, &lapNumber, &n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if lapNumber != lap {
			t.Fatalf("unexpected lap_number %d at position %d", lapNumber, lap)
		}
		if n != 10*lap {
			t.Errorf("lap %d has %d samples, want %d", lapNumber, n, 10*lap)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if lap != lapsPerDriver {
		t.Fatalf("grouped %d laps, want %d", lap, lapsPerDriver)
	}
}

func TestRunAbortsOnBadThrottle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	arc := testArchive()
	arc.Telemetry["Oscar Piastri"][50].Throttle = 150

	_, err := Run(ctx, db, arc, Options{})
	var re *session.RowError
	if !errors.As(err, &re) {
		t.Fatalf("run error = %v, want *session.RowError", err)
	}
	if re.Field != "throttle" {
		t.Errorf("Field = %q, want throttle", re.Field)
	}

	// Nothing from the failed run survives, including rows written before
	// the bad sample.
	for _, table := range []string{"Drivers", "Tracks", "Event", "Sessions", "Laps", "Telemetry", "Weather"} {
		var n int
		if err := db.Handle().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s = %d rows after rollback, want 0", table, n)
		}
	}
}

func TestRunAbortsOnUnownedSample(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A sample before every lap's start has no owning lap.
	arc := testArchive()
	arc.Telemetry["Charles Leclerc"][0].Offset = session.Duration(-5 * time.Second)

	_, err := Run(ctx, db, arc, Options{})
	var re *storage.ResolveError
	if !errors.As(err, &re) {
		t.Fatalf("run error = %v, want *storage.ResolveError", err)
	}

	var n int
	if err := db.Handle().QueryRow("SELECT COUNT(*) FROM Laps").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("Laps = %d rows after rollback, want 0", n)
	}
}

func TestRunDuplicateFails(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := Run(ctx, db, testArchive(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	_, err := Run(ctx, db, testArchive(), Options{})
	var dup *storage.UniqueConstraintError
	if !errors.As(err, &dup) {
		t.Fatalf("second run error = %v, want *storage.UniqueConstraintError", err)
	}
}

func TestRunSkipDuplicateLaps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := Run(ctx, db, testArchive(), Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := Run(ctx, db, testArchive(), Options{SkipDuplicateLaps: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Laps != 0 {
		t.Errorf("second run inserted %d laps, want 0", second.Laps)
	}
	if second.Telemetry != 0 {
		t.Errorf("second run inserted %d telemetry rows, want 0", second.Telemetry)
	}
	if second.Weather != 0 {
		t.Errorf("second run inserted %d weather rows, want 0", second.Weather)
	}
	if second.SessionID != first.SessionID {
		t.Errorf("second run resolved session %d, want %d", second.SessionID, first.SessionID)
	}

	counts := map[string]int{
		"Laps":      2 * lapsPerDriver,
		"Telemetry": 2 * lapsPerDriver * samplesPerLap,
		"Weather":   5,
		"Sessions":  1,
		"Event":     1,
	}
	for table, want := range counts {
		var got int
		if err := db.Handle().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&got); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Errorf("%s = %d rows after re-run, want %d", table, got, want)
		}
	}
}

func TestRunRejectsInvalidArchive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	arc := testArchive()
	arc.Event.EventName = ""

	_, err := Run(ctx, db, arc, Options{})
	var re *session.RowError
	if !errors.As(err, &re) {
		t.Fatalf("run error = %v, want *session.RowError", err)
	}
}

func TestResultString(t *testing.T) {
	r := &Result{EventID: 1, SessionID: 2, Drivers: 2, Laps: 6, Telemetry: 600, Weather: 5, Elapsed: 125 * time.Millisecond}
	want := "event=1 session=2 drivers=2 laps=6 telemetry=600 weather=5 elapsed=125ms"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
