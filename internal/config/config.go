package config

import (
	"flag"
	"os"
	"strconv"
)

// Config holds all simulator configuration.
type Config struct {
	// Server
	Port int
	Host string

	// Persistence. MongoURI empty means the local CSV log is used.
	MongoURI string
	CSVPath  string

	// Event retention (Mongo backend only)
	EventRetentionDays int

	// Local archiver (opt-in: only active when ArchiveDir is set)
	ArchiveDir           string
	ArchiveMaxGB         int
	ArchiveIntervalHours int
	ArchiveAfterHours    int

	// Simulation
	Seed           int64
	ParamsFile     string
	SendBufferSize int
	AutoStart      bool
}

func Load() *Config {
	c := &Config{}

	flag.IntVar(&c.Port, "port", envInt("CRASHCAST_PORT", 8200), "HTTP server port")
	flag.StringVar(&c.Host, "host", envStr("CRASHCAST_HOST", "0.0.0.0"), "Listen host")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", ""), "MongoDB connection URI (empty = CSV event log)")
	flag.StringVar(&c.CSVPath, "csv-path", envStr("CRASHCAST_CSV", "prediction_log.csv"), "CSV event log path")
	flag.IntVar(&c.EventRetentionDays, "event-retention", envInt("EVENT_RETENTION_DAYS", 30), "Event retention in days (0 = keep forever)")

	flag.StringVar(&c.ArchiveDir, "archive-dir", envStr("ARCHIVE_DIR", ""), "Directory for event archival (empty = disabled)")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 4), "Max total size of archive files in GB")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "Hours between archive runs")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "Archive events older than this many hours")

	flag.Int64Var(&c.Seed, "seed", envInt64("CRASHCAST_SEED", 0), "PRNG seed (0 = random)")
	flag.StringVar(&c.ParamsFile, "params", envStr("CRASHCAST_PARAMS", ""), "YAML parameter file (empty = built-in defaults)")
	flag.IntVar(&c.SendBufferSize, "send-buffer", envInt("SEND_BUFFER", 256), "Per-client send buffer size")
	flag.BoolVar(&c.AutoStart, "auto-start", envBool("CRASHCAST_AUTO_START", false), "Start the session immediately on boot")

	flag.Parse()

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
