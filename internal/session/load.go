package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Load reads and validates a session archive from a JSON file.
func Load(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates a session archive from JSON.
func Decode(r io.Reader) (*Archive, error) {
	dec := json.NewDecoder(r)
	var a Archive
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the structural invariants of the archive. It returns a
// *RowError naming the first offending row; a single bad row fails the whole
// archive.
func (a *Archive) Validate() error {
	if a.Event.EventName == "" {
		return &RowError{Section: "event", Index: -1, Field: "event_name", Err: errors.New("required")}
	}
	if a.Event.EventDate.IsZero() {
		return &RowError{Section: "event", Index: -1, Field: "event_date", Err: errors.New("required")}
	}
	if len(a.Event.Sessions) > 5 {
		return &RowError{Section: "event", Index: -1, Field: "sessions", Err: fmt.Errorf("%d descriptors, at most 5 allowed", len(a.Event.Sessions))}
	}
	for i, ss := range a.Event.Sessions {
		switch ss.Name {
		case NamePractice, NameQualify, NameRace:
		default:
			return &RowError{Section: "event", Index: i, Field: "sessions.name", Err: fmt.Errorf("unknown label %q", ss.Name)}
		}
	}

	if a.Name == "" {
		return &RowError{Section: "event", Index: -1, Field: "session_name", Err: errors.New("required")}
	}
	if a.StartTime.IsZero() {
		return &RowError{Section: "event", Index: -1, Field: "start_time_utc", Err: errors.New("required")}
	}

	roster := make(map[string]bool, len(a.Drivers))
	for i, d := range a.Drivers {
		if d.FullName == "" {
			return &RowError{Section: "drivers", Index: i, Field: "full_name", Err: errors.New("required")}
		}
		roster[d.FullName] = true
	}

	for i, l := range a.Laps {
		if l.Driver == "" {
			return &RowError{Section: "laps", Index: i, Field: "driver", Err: errors.New("required")}
		}
		if l.LapNumber < 1 {
			return &RowError{Section: "laps", Index: i, Field: "lap_number", Err: fmt.Errorf("must be >= 1, got %d", l.LapNumber)}
		}
	}

	for driver := range a.Telemetry {
		if !roster[driver] {
			return &RowError{Section: "telemetry", Index: -1, Field: "driver", Err: fmt.Errorf("%q not in roster", driver)}
		}
	}

	return nil
}
