package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	RoundsPerSeries int
	NextRoundDelay  time.Duration
	SeriesEndDelay  time.Duration
	RoomTTL         time.Duration
	SweepInterval   time.Duration
	StaticEnabled   bool
}

// FromEnv loads a local .env if present, then reads configuration from
// the environment with the reference defaults: port 3000, best-of-5
// series, 5s between rounds, 3s before the series summary, 5 minute
// idle-room sweep.
func FromEnv() Config {
	_ = godotenv.Load()

	c := Config{}
	c.Port = getenv("PORT", "3000")
	c.RoundsPerSeries = getint("ROUNDS_PER_SERIES", 5)
	c.NextRoundDelay = getdur("NEXT_ROUND_DELAY", 5*time.Second)
	c.SeriesEndDelay = getdur("SERIES_END_DELAY", 3*time.Second)
	c.RoomTTL = getdur("ROOM_TTL", 5*time.Minute)
	c.SweepInterval = getdur("SWEEP_INTERVAL", 5*time.Minute)
	c.StaticEnabled = getenv("STATIC_ENABLED", "true") == "true"
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
