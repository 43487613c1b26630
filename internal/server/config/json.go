package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/bashaMendi/ToDo-back/internal/flagx"
	"github.com/bashaMendi/ToDo-back/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "24h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	DatabaseDSN        string         `json:"database_dsn"`
	RedisAddr          string         `json:"redis_addr"`
	RedisPassword      string         `json:"redis_password"`
	RedisDB            int            `json:"redis_db"`
	RedisEnabled       bool           `json:"redis_enabled"`
	RedisRequired      bool           `json:"redis_required"`
	SessionDuration    timex.Duration `json:"session_duration"`
	CSRFTokenDuration  timex.Duration `json:"csrf_token_duration"`
	ResetTokenDuration timex.Duration `json:"reset_token_duration"`
	UndoTokenDuration  timex.Duration `json:"undo_token_duration"`
	QueryCacheTTL      timex.Duration `json:"query_cache_ttl"`
	SweepInterval      timex.Duration `json:"sweep_interval"`
	RateLimitStrict    bool           `json:"rate_limit_strict"`
	APIRateLimit       int            `json:"api_rate_limit"`
	APIRateWindow      timex.Duration `json:"api_rate_window"`
	AuthRateLimit      int            `json:"auth_rate_limit"`
	AuthRateWindow     timex.Duration `json:"auth_rate_window"`
	TrustProxyHeader   bool           `json:"trust_proxy_header"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics. The caller is expected to
// merge these values with defaults and command-line flags as part of the
// full configuration process.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.RedisAddr = c.RedisAddr
	config.RedisPassword = c.RedisPassword
	config.RedisDB = c.RedisDB
	config.RedisEnabled = c.RedisEnabled
	config.RedisRequired = c.RedisRequired
	config.SessionDuration = time.Duration(c.SessionDuration.Duration)
	config.CSRFTokenDuration = time.Duration(c.CSRFTokenDuration.Duration)
	config.ResetTokenDuration = time.Duration(c.ResetTokenDuration.Duration)
	config.UndoTokenDuration = time.Duration(c.UndoTokenDuration.Duration)
	config.QueryCacheTTL = time.Duration(c.QueryCacheTTL.Duration)
	config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	config.RateLimitStrict = c.RateLimitStrict
	config.APIRateLimit = c.APIRateLimit
	config.APIRateWindow = time.Duration(c.APIRateWindow.Duration)
	config.AuthRateLimit = c.AuthRateLimit
	config.AuthRateWindow = time.Duration(c.AuthRateWindow.Duration)
	config.TrustProxyHeader = c.TrustProxyHeader
}
