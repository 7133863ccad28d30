package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const usage = `gradeserver FLAGS:
  -server.addr <addr>             HTTP listen address (default: :8080, env GRADE_ADDR)
  -server.origins <list>          Comma-separated allowed WebSocket origins (env GRADE_ORIGINS)
  -server.run-rate <float>        Runs per second per connection (default: 2, env GRADE_RUN_RATE)
  -server.run-burst <n>           Run burst per connection (default: 4, env GRADE_RUN_BURST)
  -catalog <file>                 JSON exercise catalog (required, env GRADE_CATALOG)
  -exec.timeout <duration>        Default run timeout (default: 5s, env GRADE_TIMEOUT)
  -exec.max-timeout <duration>    Upper bound for exercise timeouts (default: 30s)
  -exec.max-rows <n>              Row cap for one SQL result set (default: 10000)
  -exec.max-steps <n>             Step budget for scripts, 0 for none
  -redis.addr <addr>              Publish solved exercises to Redis (env REDIS_ADDR)
  -otel.endpoint <addr>           OTLP collector endpoint (env OTEL_ENDPOINT)
  -otel.service <name>            OpenTelemetry service name (default: gradeserver)
  -log.level <level>              debug, info, warn or error (default: info)
`

type appConfig struct {
	Addr         string
	Origins      []string
	RunRate      float64
	RunBurst     int
	CatalogPath  string
	Timeout      time.Duration
	MaxTimeout   time.Duration
	MaxRows      int
	MaxSteps     uint64
	RedisAddr    string
	OtelEndpoint string
	OtelService  string
	LogLevel     string
}

func parseConfig(args []string) (appConfig, error) {
	var cfg appConfig
	var origins string

	fs := flag.NewFlagSet("gradeserver", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&cfg.Addr, "server.addr", envOrDefault("GRADE_ADDR", ":8080"), "")
	fs.StringVar(&origins, "server.origins", os.Getenv("GRADE_ORIGINS"), "")
	fs.Float64Var(&cfg.RunRate, "server.run-rate", envFloat("GRADE_RUN_RATE", 2), "")
	fs.IntVar(&cfg.RunBurst, "server.run-burst", envInt("GRADE_RUN_BURST", 4), "")
	fs.StringVar(&cfg.CatalogPath, "catalog", os.Getenv("GRADE_CATALOG"), "")
	fs.DurationVar(&cfg.Timeout, "exec.timeout", envDuration("GRADE_TIMEOUT", 5*time.Second), "")
	fs.DurationVar(&cfg.MaxTimeout, "exec.max-timeout", 30*time.Second, "")
	fs.IntVar(&cfg.MaxRows, "exec.max-rows", 10000, "")
	fs.Uint64Var(&cfg.MaxSteps, "exec.max-steps", 0, "")
	fs.StringVar(&cfg.RedisAddr, "redis.addr", os.Getenv("REDIS_ADDR"), "")
	fs.StringVar(&cfg.OtelEndpoint, "otel.endpoint", os.Getenv("OTEL_ENDPOINT"), "")
	fs.StringVar(&cfg.OtelService, "otel.service", "gradeserver", "")
	fs.StringVar(&cfg.LogLevel, "log.level", "info", "")

	if err := fs.Parse(args); err != nil {
		return appConfig{}, fmt.Errorf("%w\n\n%s", err, usage)
	}
	if cfg.CatalogPath == "" {
		return appConfig{}, fmt.Errorf("-catalog is required\n\n%s", usage)
	}
	cfg.Origins = splitList(origins)
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, field := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
