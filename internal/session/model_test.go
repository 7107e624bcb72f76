package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testArchive() *Archive {
	start := time.Date(2024, 5, 26, 13, 0, 0, 0, time.UTC)
	off := func(s float64) *Duration {
		d := Duration(time.Duration(s * float64(time.Second)))
		return &d
	}
	return &Archive{
		Event: EventInfo{
			RoundNumber: 8,
			Country:     "Monaco",
			Location:    "Monte Carlo",
			EventDate:   time.Date(2024, 5, 26, 0, 0, 0, 0, time.UTC),
			EventName:   "Monaco Grand Prix",
			Sessions: []SubSession{
				{Name: NamePractice},
				{Name: NameQualify},
				{Name: NameRace},
			},
		},
		Name:      "Race",
		StartTime: start,
		Drivers: []DriverInfo{
			{FullName: "Charles Leclerc", Team: "Ferrari"},
		},
		Laps: []LapRecord{
			{Driver: "Charles Leclerc", LapNumber: 1, StartOffset: off(0)},
			{Driver: "Charles Leclerc", LapNumber: 2, StartOffset: off(80)},
		},
		Telemetry: map[string][]CarSample{},
	}
}

func TestValidateOK(t *testing.T) {
	if err := testArchive().Validate(); err != nil {
		t.Fatalf("valid archive rejected: %v", err)
	}
}

func TestValidateRowErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Archive)
		section string
		field   string
	}{
		{"missing event name", func(a *Archive) { a.Event.EventName = "" }, "event", "event_name"},
		{"missing event date", func(a *Archive) { a.Event.EventDate = time.Time{} }, "event", "event_date"},
		{"too many sub-sessions", func(a *Archive) {
			a.Event.Sessions = make([]SubSession, 6)
			for i := range a.Event.Sessions {
				a.Event.Sessions[i].Name = NamePractice
			}
		}, "event", "sessions"},
		{"bad sub-session label", func(a *Archive) { a.Event.Sessions[0].Name = "sprint" }, "event", "sessions.name"},
		{"missing session name", func(a *Archive) { a.Name = "" }, "event", "session_name"},
		{"missing start time", func(a *Archive) { a.StartTime = time.Time{} }, "event", "start_time_utc"},
		{"unnamed driver", func(a *Archive) { a.Drivers[0].FullName = "" }, "drivers", "full_name"},
		{"lap without driver", func(a *Archive) { a.Laps[0].Driver = "" }, "laps", "driver"},
		{"lap number zero", func(a *Archive) { a.Laps[1].LapNumber = 0 }, "laps", "lap_number"},
		{"telemetry for unknown driver", func(a *Archive) {
			a.Telemetry["Nobody"] = []CarSample{{}}
		}, "telemetry", "driver"},
	}

	for _, tt := range tests {
		a := testArchive()
		tt.mutate(a)
		err := a.Validate()
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		var re *RowError
		if !errors.As(err, &re) {
			t.Errorf("%s: got %T, want *RowError", tt.name, err)
			continue
		}
		if re.Section != tt.section || re.Field != tt.field {
			t.Errorf("%s: got %s/%s, want %s/%s", tt.name, re.Section, re.Field, tt.section, tt.field)
		}
	}
}

func TestDecode(t *testing.T) {
	in := `{
		"event": {
			"round_number": 8,
			"country": "Monaco",
			"location": "Monte Carlo",
			"event_date": "2024-05-26T00:00:00Z",
			"event_name": "Monaco Grand Prix",
			"sessions": [{"name": "race", "date_utc": "2024-05-26T13:00:00Z"}]
		},
		"session_name": "Race",
		"start_time_utc": "2024-05-26T13:00:00Z",
		"drivers": [{"full_name": "Charles Leclerc", "team": "Ferrari"}],
		"laps": [{"driver": "Charles Leclerc", "lap_number": 1, "lap_time": "1:14.165", "start_offset": 0}],
		"telemetry": {"Charles Leclerc": [{"offset": 1.5, "speed_kmh": 280, "rpm": 11000, "gear": 7, "throttle": 100, "x": 1, "y": 2, "z": 3}]},
		"weather": [{"offset": 0, "air_temp_c": 24.5, "track_temp_c": 41.0, "humidity_pct": 60, "pressure_mbar": 1013, "wind_speed_ms": 2.1, "wind_direction_deg": 180}]
	}`

	a, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Event.RoundNumber != 8 {
		t.Errorf("RoundNumber = %d, want 8", a.Event.RoundNumber)
	}
	if got := a.Laps[0].LapTime.Seconds(); got < 74.164 || got > 74.166 {
		t.Errorf("lap time = %v, want ~74.165", got)
	}
	if len(a.Telemetry["Charles Leclerc"]) != 1 {
		t.Fatalf("telemetry rows = %d, want 1", len(a.Telemetry["Charles Leclerc"]))
	}
	if a.Weather[0].AirTemp != 24.5 {
		t.Errorf("air temp = %v, want 24.5", a.Weather[0].AirTemp)
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{not json`)); err == nil {
		t.Error("expected decode error for malformed JSON")
	}
	if _, err := Decode(strings.NewReader(`{"session_name": "Race"}`)); err == nil {
		t.Error("expected validation error for incomplete archive")
	}
}

func TestAbsoluteTime(t *testing.T) {
	a := testArchive()
	if got := a.AbsoluteTime(nil); got != nil {
		t.Errorf("AbsoluteTime(nil) = %v, want nil", got)
	}
	off := Duration(90 * time.Second)
	got := a.AbsoluteTime(&off)
	want := a.StartTime.Add(90 * time.Second)
	if got == nil || !got.Equal(want) {
		t.Errorf("AbsoluteTime(90s) = %v, want %v", got, want)
	}
}

func TestOwningLap(t *testing.T) {
	a := testArchive()
	laps := a.DriverLaps("Charles Leclerc")
	if len(laps) != 2 {
		t.Fatalf("DriverLaps = %d laps, want 2", len(laps))
	}

	tests := []struct {
		offset  float64
		wantLap int
		wantOK  bool
	}{
		{0, 1, true},
		{79.9, 1, true},
		{80, 2, true},
		{5000, 2, true},
		{-1, 0, false},
	}
	for _, tt := range tests {
		lap, ok := OwningLap(laps, Duration(time.Duration(tt.offset*float64(time.Second))))
		if ok != tt.wantOK {
			t.Errorf("OwningLap(%vs) ok = %v, want %v", tt.offset, ok, tt.wantOK)
			continue
		}
		if ok && lap.LapNumber != tt.wantLap {
			t.Errorf("OwningLap(%vs) = lap %d, want %d", tt.offset, lap.LapNumber, tt.wantLap)
		}
	}
}

func TestDriverLapsOrder(t *testing.T) {
	a := testArchive()
	off := func(s float64) *Duration {
		d := Duration(time.Duration(s * float64(time.Second)))
		return &d
	}
	// Out of order on purpose.
	a.Laps = []LapRecord{
		{Driver: "Charles Leclerc", LapNumber: 3, StartOffset: off(160)},
		{Driver: "Charles Leclerc", LapNumber: 1, StartOffset: off(0)},
		{Driver: "Charles Leclerc", LapNumber: 2, StartOffset: off(80)},
	}
	laps := a.DriverLaps("Charles Leclerc")
	for i, want := range []int{1, 2, 3} {
		if laps[i].LapNumber != want {
			t.Fatalf("laps[%d] = lap %d, want %d", i, laps[i].LapNumber, want)
		}
	}
}

func TestOffTrack(t *testing.T) {
	s := CarSample{Status: "OffTrack"}
	if !s.OffTrack() {
		t.Error("OffTrack status should report off track")
	}
	s.Status = "OnTrack"
	if s.OffTrack() {
		t.Error("OnTrack status should not report off track")
	}
}
