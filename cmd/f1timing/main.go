// Command-line entry point for the F1 timing ETL.
//
// One session archive (event metadata, roster, laps, telemetry traces,
// weather trace) is ingested into a single SQLite database file with the
// normalized seven-table schema and five derived analytical views. The same
// binary serves the fixed analytical queries and mirrors sessions out to
// ClickHouse/PostgreSQL.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"f1timing/internal/export"
	"f1timing/internal/feed"
	"f1timing/internal/ingest"
	"f1timing/internal/session"
	"f1timing/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "f1timing - session-to-relational ETL. Commands:")
	fmt.Fprintln(w, "  ingest  - load one session archive into the database")
	fmt.Fprintln(w, "  watch   - ingest session archives arriving on a NATS subject")
	fmt.Fprintln(w, "  export  - mirror a session to ClickHouse and/or PostgreSQL")
	fmt.Fprintln(w, "  query   - run one of the fixed analytical queries, print JSON")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  f1timing ingest -db f1.db -input session.json [-skip-duplicate-laps] [-weather-window 60s] [-stats]")
	fmt.Fprintln(w, "  f1timing watch -db f1.db [-nats-url nats://localhost:4222] [-subject f1.sessions] [-queue NAME]")
	fmt.Fprintln(w, "  f1timing export -db f1.db -session N [-clickhouse] [-postgres]")
	fmt.Fprintln(w, "  f1timing query -db f1.db -name NAME [-driver NAME] [-lap N]")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Query names: %s, telemetry\n", strings.Join(storage.ViewNames(), ", "))
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	switch cmd := strings.ToLower(os.Args[1]); cmd {
	case "ingest":
		runIngest(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("F1TIMING_DB", "f1.db"), "SQLite database file")
	input := fs.String("input", "", "Session archive JSON file (default: stdin)")
	skipDup := fs.Bool("skip-duplicate-laps", false, "Skip laps whose natural key already exists instead of failing")
	window := fs.Duration("weather-window", storage.DefaultWeatherWindowSeconds*time.Second, "Lap-to-weather correlation window")
	showStats := fs.Bool("stats", false, "Print row counters to stderr")
	_ = fs.Parse(args)

	arc, err := loadArchive(*input)
	if err != nil {
		fatal(err)
	}

	db, err := storage.Open(storage.DefaultConfig(*dbPath))
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	res, err := ingest.Run(context.Background(), db, arc, ingest.Options{
		SkipDuplicateLaps: *skipDup,
		WeatherWindow:     *window,
	})
	if err != nil {
		fatal(fmt.Errorf("ingest %s %s: %w", arc.Event.EventName, arc.Name, err))
	}

	if *showStats {
		fmt.Fprintf(os.Stderr, "stats: %s\n", res)
	}
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("F1TIMING_DB", "f1.db"), "SQLite database file")
	natsURL := fs.String("nats-url", envOrDefault("NATS_URL", feed.DefaultConfig().URL), "NATS server URL")
	subject := fs.String("subject", envOrDefault("NATS_SUBJECT", feed.DefaultConfig().Subject), "NATS subject carrying session archives")
	queue := fs.String("queue", "", "NATS queue group (optional)")
	skipDup := fs.Bool("skip-duplicate-laps", true, "Skip laps whose natural key already exists instead of failing")
	window := fs.Duration("weather-window", storage.DefaultWeatherWindowSeconds*time.Second, "Lap-to-weather correlation window")
	_ = fs.Parse(args)

	db, err := storage.Open(storage.DefaultConfig(*dbPath))
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	opts := ingest.Options{SkipDuplicateLaps: *skipDup, WeatherWindow: *window}

	handle := func(data []byte) error {
		arc, err := session.Decode(bytes.NewReader(data))
		if err != nil {
			return err
		}
		res, err := ingest.Run(context.Background(), db, arc, opts)
		if err != nil {
			return fmt.Errorf("ingest %s %s: %w", arc.Event.EventName, arc.Name, err)
		}
		fmt.Fprintf(os.Stderr, "ingested %s %s: %s\n", arc.Event.EventName, arc.Name, res)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "watching %s on %s\n", *subject, *natsURL)
	err = feed.Watch(ctx, feed.Config{URL: *natsURL, Subject: *subject, Queue: *queue}, handle,
		func(err error) { fmt.Fprintf(os.Stderr, "feed error: %v\n", err) })
	if err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("F1TIMING_DB", "f1.db"), "SQLite database file")
	sessionID := fs.Int64("session", 0, "session_id to export")
	toCH := fs.Bool("clickhouse", false, "Export to ClickHouse")
	toPG := fs.Bool("postgres", false, "Export to PostgreSQL")

	chCfg := export.DefaultClickHouseConfig()
	fs.StringVar(&chCfg.Host, "ch-host", envOrDefault("CLICKHOUSE_HOST", chCfg.Host), "ClickHouse host")
	fs.IntVar(&chCfg.Port, "ch-port", envOrDefaultInt("CLICKHOUSE_PORT", chCfg.Port), "ClickHouse port")
	fs.StringVar(&chCfg.Database, "ch-database", envOrDefault("CLICKHOUSE_DATABASE", chCfg.Database), "ClickHouse database")
	fs.StringVar(&chCfg.User, "ch-user", envOrDefault("CLICKHOUSE_USER", chCfg.User), "ClickHouse user")
	fs.StringVar(&chCfg.Password, "ch-password", envOrDefault("CLICKHOUSE_PASSWORD", chCfg.Password), "ClickHouse password")

	pgCfg := export.DefaultPostgresConfig()
	fs.StringVar(&pgCfg.Host, "pg-host", envOrDefault("POSTGRES_HOST", pgCfg.Host), "PostgreSQL host")
	fs.IntVar(&pgCfg.Port, "pg-port", envOrDefaultInt("POSTGRES_PORT", pgCfg.Port), "PostgreSQL port")
	fs.StringVar(&pgCfg.Database, "pg-database", envOrDefault("POSTGRES_DATABASE", pgCfg.Database), "PostgreSQL database")
	fs.StringVar(&pgCfg.User, "pg-user", envOrDefault("POSTGRES_USER", pgCfg.User), "PostgreSQL user")
	fs.StringVar(&pgCfg.Password, "pg-password", envOrDefault("POSTGRES_PASSWORD", pgCfg.Password), "PostgreSQL password")
	_ = fs.Parse(args)

	if *sessionID <= 0 {
		fatal(fmt.Errorf("export: -session is required"))
	}
	if !*toCH && !*toPG {
		fatal(fmt.Errorf("export: at least one of -clickhouse or -postgres is required"))
	}

	db, err := storage.Open(storage.DefaultConfig(*dbPath))
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	if *toCH {
		ch, err := export.OpenClickHouse(ctx, chCfg)
		if err != nil {
			fatal(err)
		}
		defer ch.Close()
		if err := ch.CreateSchema(ctx); err != nil {
			fatal(err)
		}
		laps, samples, err := ch.ExportSession(ctx, db, *sessionID)
		if err != nil {
			fatal(fmt.Errorf("clickhouse export: %w", err))
		}
		fmt.Fprintf(os.Stderr, "clickhouse: session %d exported, laps=%d telemetry=%d\n", *sessionID, laps, samples)
	}

	if *toPG {
		pg, err := export.OpenPostgres(ctx, pgCfg)
		if err != nil {
			fatal(err)
		}
		defer pg.Close()
		if err := pg.CreateSchema(ctx); err != nil {
			fatal(err)
		}
		if err := pg.ExportSession(ctx, db, *sessionID); err != nil {
			fatal(fmt.Errorf("postgres export: %w", err))
		}
		fmt.Fprintf(os.Stderr, "postgres: session %d exported\n", *sessionID)
	}
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("F1TIMING_DB", "f1.db"), "SQLite database file")
	name := fs.String("name", "", "Query name")
	driver := fs.String("driver", "", "Driver name (tyre_performance, telemetry)")
	lap := fs.Int("lap", 0, "Lap number (telemetry)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	db, err := storage.Open(storage.DefaultConfig(*dbPath))
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	var out any
	switch *name {
	case "driver_performance":
		out, err = db.DriverPerformance(ctx)
	case "tyre_performance":
		if *driver == "" {
			fatal(fmt.Errorf("query tyre_performance: -driver is required"))
		}
		out, err = db.TyrePerformance(ctx, *driver)
	case "weather_impact":
		out, err = db.WeatherImpact(ctx)
	case "event_performance":
		out, err = db.EventPerformance(ctx)
	case "telemetry_analysis":
		out, err = db.TelemetryAnalysis(ctx)
	case "telemetry":
		if *driver == "" || *lap <= 0 {
			fatal(fmt.Errorf("query telemetry: -driver and -lap are required"))
		}
		out, err = db.TelemetryForLap(ctx, *driver, *lap)
	default:
		fatal(fmt.Errorf("unknown query %q", *name))
	}
	if err != nil {
		fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		fatal(fmt.Errorf("encode output: %w", err))
	}
}

func loadArchive(path string) (*session.Archive, error) {
	if path == "" {
		return session.Decode(os.Stdin)
	}
	return session.Load(path)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
