/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package config reads HiveBase's process configuration from environment
// variables, in the same plain os.Getenv style as the rest of the ambient
// stack — no configuration-management library is introduced.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names, matching the external-interface contract.
const (
	EnvMaxCacheSize    = "MAX_CACHE_SIZE"
	EnvMaxScanLimit    = "MAX_SCAN_LIMIT"
	EnvMaxBatchSize    = "MAX_BATCH_SIZE"
	EnvFlushInterval   = "FLUSH_INTERVAL"
	EnvMaxBufferSize   = "MAX_BUFFER_SIZE"
	EnvOptimisticMode  = "OPTIMISTIC_MODE"
	EnvJWTSecret       = "JWT_SECRET"
	EnvJWTExpiresIn    = "JWT_EXPIRES_IN"
	EnvDBPath          = "DB_PATH"
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogJSON         = "LOG_JSON"
	EnvRateLimitRPS    = "RATE_LIMIT_RPS"
	EnvRateLimitBurst  = "RATE_LIMIT_BURST"
)

// Config holds every tunable knob named in the external-interface contract,
// plus the ambient logging/rate-limit knobs the expanded spec adds.
type Config struct {
	MaxCacheSize   int
	MaxScanLimit   int
	MaxBatchSize   int
	FlushInterval  time.Duration
	MaxBufferSize  int
	OptimisticMode bool

	JWTSecret    string
	JWTExpiresIn time.Duration

	DBPath string
	Port   int

	LogLevel string
	LogJSON  bool

	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from the environment, falling back to the
// documented defaults for anything unset.
func Load() *Config {
	return &Config{
		MaxCacheSize:   envInt(EnvMaxCacheSize, 10_000),
		MaxScanLimit:   envInt(EnvMaxScanLimit, 100),
		MaxBatchSize:   envInt(EnvMaxBatchSize, 100),
		FlushInterval:  envDuration(EnvFlushInterval, 30*time.Millisecond),
		MaxBufferSize:  envInt(EnvMaxBufferSize, 500),
		OptimisticMode: envBool(EnvOptimisticMode, false),

		JWTSecret:    envString(EnvJWTSecret, "dev-secret-change-me"),
		JWTExpiresIn: envDuration(EnvJWTExpiresIn, 24*time.Hour),

		DBPath: envString(EnvDBPath, "./hivebase.db"),
		Port:   envInt(EnvPort, 8090),

		LogLevel: envString(EnvLogLevel, "info"),
		LogJSON:  envBool(EnvLogJSON, false),

		RateLimitRPS:   envFloat(EnvRateLimitRPS, 50),
		RateLimitBurst: envInt(EnvRateLimitBurst, 100),
	}
}

func envString(key, def string) string {
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

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
