package config

import (
	"flag"
	"os"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis address (host:port)
//	-e          enable the Redis ephemeral backend
//	-q          require Redis (unreachable Redis is fatal)
//	-t int      session validity, minutes
//	-w          strict rate limiting (fail-closed on store errors)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in minutes and then converted to
// time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-e", "-q", "-t", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.BoolVar(&config.RedisEnabled, "e", config.RedisEnabled, "enable redis ephemeral backend")
	fs.BoolVar(&config.RedisRequired, "q", config.RedisRequired, "treat unreachable redis as fatal")
	fs.BoolVar(&config.RateLimitStrict, "w", config.RateLimitStrict, "strict rate limiting")

	sessionDuration := fs.Int("t", int(config.SessionDuration.Minutes()), "session_duration (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionDuration = time.Duration(*sessionDuration) * time.Minute
}
