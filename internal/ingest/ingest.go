// Package ingest maps one session archive into the relational schema. The
// whole run executes in a single transaction: any stage failure rolls back
// and leaves the database exactly as it was.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"f1timing/internal/session"
	"f1timing/internal/storage"
)

// Options controls one ingestion run.
type Options struct {
	// SkipDuplicateLaps switches lap insertion to insert-or-skip: a lap
	// whose (session_id, driver_name, lap_number) already exists is
	// resolved to its existing id instead of failing the run.
	SkipDuplicateLaps bool

	// WeatherWindow is the lap-to-weather correlation tolerance baked
	// into the view definitions. Zero means the default (60s).
	WeatherWindow time.Duration
}

// Result reports what one committed run wrote.
type Result struct {
	EventID   int64
	SessionID int64
	Drivers   int
	Laps      int
	Telemetry int
	Weather   int
	Elapsed   time.Duration
}

func (r *Result) String() string {
	return fmt.Sprintf("event=%d session=%d drivers=%d laps=%d telemetry=%d weather=%d elapsed=%s",
		r.EventID, r.SessionID, r.Drivers, r.Laps, r.Telemetry, r.Weather, r.Elapsed.Round(time.Millisecond))
}

// lapKey identifies a lap within the run by its per-session natural key.
type lapKey struct {
	driver    string
	lapNumber int
}

// Run ingests one archive. Stages are strictly ordered: event, session,
// drivers, laps, telemetry, weather, views, commit. No stage recovers
// locally and none is retried.
func Run(ctx context.Context, db *storage.DB, arc *session.Archive, opts Options) (*Result, error) {
	start := time.Now()

	if err := arc.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res := &Result{}

	res.EventID, err = insertEvent(ctx, tx, arc)
	if err != nil {
		return nil, err
	}

	sessionID, sessionCreated, err := insertSession(ctx, tx, res.EventID, arc)
	if err != nil {
		return nil, err
	}
	res.SessionID = sessionID

	res.Drivers, err = insertDrivers(ctx, tx, arc)
	if err != nil {
		return nil, err
	}

	lapIDs, skipped, inserted, err := insertLaps(ctx, tx, sessionID, arc, opts)
	if err != nil {
		return nil, err
	}
	res.Laps = inserted

	res.Telemetry, err = insertTelemetry(ctx, tx, arc, lapIDs, skipped)
	if err != nil {
		return nil, err
	}

	// A pre-existing session already carries its weather trace.
	if sessionCreated {
		res.Weather, err = insertWeather(ctx, tx, sessionID, arc)
		if err != nil {
			return nil, err
		}
	}

	window := int(opts.WeatherWindow / time.Second)
	if err := storage.CreateViews(ctx, tx, window); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	res.Elapsed = time.Since(start)
	return res, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, arc *session.Archive) (int64, error) {
	row := storage.EventRow{
		RoundNumber: arc.Event.RoundNumber,
		Country:     arc.Event.Country,
		Location:    arc.Event.Location,
		EventDate:   arc.Event.EventDate.UTC().Format("2006-01-02"),
		EventName:   arc.Event.EventName,
	}
	for i, ss := range arc.Event.Sessions {
		row.SessionDates[i] = storage.FormatTimePtr(ss.DateUTC)
		name := ss.Name
		row.SessionNames[i] = &name
	}
	return storage.UpsertEvent(ctx, tx, row)
}

func insertSession(ctx context.Context, tx *sql.Tx, eventID int64, arc *session.Archive) (int64, bool, error) {
	trackID, err := storage.GetOrCreateTrack(ctx, tx, arc.Event.Location, arc.Event.Country)
	if err != nil {
		return 0, false, err
	}
	return storage.GetOrCreateSession(ctx, tx, storage.SessionRow{
		EventID:     eventID,
		TrackID:     trackID,
		SessionType: arc.Name,
		Date:        storage.FormatTime(arc.StartTime),
	})
}

func insertDrivers(ctx context.Context, tx *sql.Tx, arc *session.Archive) (int, error) {
	for _, d := range arc.Drivers {
		err := storage.InsertDriver(ctx, tx, storage.DriverRow{
			DriverName: d.FullName,
			Team:       d.Team,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(arc.Drivers), nil
}

// insertLaps writes every lap record and returns the natural-key to
// surrogate-id map that telemetry insertion joins through, plus the set of
// laps that already existed and were skipped.
func insertLaps(ctx context.Context, tx *sql.Tx, sessionID int64, arc *session.Archive, opts Options) (map[lapKey]int64, map[lapKey]bool, int, error) {
	lapIDs := make(map[lapKey]int64, len(arc.Laps))
	skipped := make(map[lapKey]bool)
	inserted := 0

	for _, l := range arc.Laps {
		row := storage.LapRow{
			SessionID:        sessionID,
			DriverName:       l.Driver,
			LapNumber:        l.LapNumber,
			Stint:            l.Stint,
			SpeedTrapS1Kmh:   l.SpeedTrapS1,
			SpeedTrapS2Kmh:   l.SpeedTrapS2,
			SpeedTrapFLKmh:   l.SpeedTrapFL,
			SpeedTrapSTKmh:   l.SpeedTrapST,
			IsPersonalBest:   l.IsPersonalBest,
			TyreCompound:     l.Compound,
			TyreLifeInLaps:   l.TyreLife,
			IsFreshTyre:      l.FreshTyre,
			Position:         l.Position,
			LapTimeSec:       session.SecondsPtr(l.LapTime),
			Sector1TimeSec:   session.SecondsPtr(l.Sector1Time),
			Sector2TimeSec:   session.SecondsPtr(l.Sector2Time),
			Sector3TimeSec:   session.SecondsPtr(l.Sector3Time),
			LapStartDatetime: storage.FormatTimePtr(arc.AbsoluteTime(l.StartOffset)),
			PitInDatetime:    storage.FormatTimePtr(arc.AbsoluteTime(l.PitInOffset)),
			PitOutDatetime:   storage.FormatTimePtr(arc.AbsoluteTime(l.PitOutOffset)),
		}

		id, err := storage.InsertLap(ctx, tx, row)
		if err != nil {
			var dup *storage.UniqueConstraintError
			if opts.SkipDuplicateLaps && errors.As(err, &dup) {
				id, err = storage.ResolveLapID(ctx, tx, sessionID, l.Driver, l.LapNumber)
				if err != nil {
					return nil, nil, 0, err
				}
				key := lapKey{l.Driver, l.LapNumber}
				lapIDs[key] = id
				skipped[key] = true
				continue
			}
			return nil, nil, 0, err
		}
		lapIDs[lapKey{l.Driver, l.LapNumber}] = id
		inserted++
	}

	return lapIDs, skipped, inserted, nil
}

// insertTelemetry writes every driver's trace, tagging each sample with the
// surrogate lap_id of the lap whose time window contains it. Joining through
// lap_number alone would collide as soon as two drivers (or two sessions)
// share lap numbers.
func insertTelemetry(ctx context.Context, tx *sql.Tx, arc *session.Archive, lapIDs map[lapKey]int64, skipped map[lapKey]bool) (int, error) {
	stmt, err := storage.PrepareTelemetryInsert(ctx, tx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	total := 0
	for _, d := range arc.Drivers {
		trace := arc.Telemetry[d.FullName]
		if len(trace) == 0 {
			continue
		}
		laps := arc.DriverLaps(d.FullName)

		for i := range trace {
			s := &trace[i]

			if s.Throttle < 0 || s.Throttle > 100 {
				return 0, &session.RowError{
					Section: "telemetry",
					Index:   i,
					Field:   "throttle",
					Err:     fmt.Errorf("%.1f outside 0..100 (driver %q)", s.Throttle, d.FullName),
				}
			}

			lap, ok := session.OwningLap(laps, s.Offset)
			if !ok {
				return 0, &storage.ResolveError{
					Entity: "lap",
					Key:    fmt.Sprintf("(driver %q, offset %s)", d.FullName, s.Offset),
				}
			}
			key := lapKey{d.FullName, lap.LapNumber}
			if skipped[key] {
				// Lap was ingested by an earlier run; its samples are
				// already present.
				continue
			}
			lapID, ok := lapIDs[key]
			if !ok {
				return 0, &storage.ResolveError{
					Entity: "lap",
					Key:    fmt.Sprintf("(driver %q, lap %d)", d.FullName, lap.LapNumber),
				}
			}

			at := arc.StartTime.Add(time.Duration(s.Offset))
			err := storage.AppendTelemetry(ctx, stmt, storage.TelemetryRow{
				LapID:    lapID,
				SpeedKmh: s.SpeedKmh,
				RPM:      s.RPM,
				Gear:     s.Gear,
				Throttle: s.Throttle,
				Brake:    s.Brake,
				DRS:      s.DRS,
				X:        round2(s.X),
				Y:        round2(s.Y),
				Z:        round2(s.Z),
				OffTrack: s.OffTrack(),
				Datetime: storage.FormatTime(at),
			})
			if err != nil {
				return 0, err
			}
			total++
		}
	}
	return total, nil
}

func insertWeather(ctx context.Context, tx *sql.Tx, sessionID int64, arc *session.Archive) (int, error) {
	for _, w := range arc.Weather {
		at := arc.StartTime.Add(time.Duration(w.Offset))
		err := storage.InsertWeather(ctx, tx, storage.WeatherRow{
			SessionID:     sessionID,
			Datetime:      storage.FormatTime(at),
			AirTemp:       w.AirTemp,
			Humidity:      w.Humidity,
			Pressure:      w.Pressure,
			Raining:       w.Rainfall,
			TrackTemp:     w.TrackTemp,
			WindDirection: w.WindDirection,
			WindSpeed:     w.WindSpeed,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(arc.Weather), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
