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

// Command hivebase is the HiveBase server process: it opens the embedded
// KV store, wires the storage core to the REST/SSE glue, prints the
// startup banner, and serves until it receives a termination signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hivebase/hivebase/internal/appwiring"
	"github.com/hivebase/hivebase/internal/auth"
	"github.com/hivebase/hivebase/internal/banner"
	"github.com/hivebase/hivebase/internal/config"
	"github.com/hivebase/hivebase/internal/health"
	"github.com/hivebase/hivebase/internal/httpapi"
	"github.com/hivebase/hivebase/internal/logging"
	"github.com/hivebase/hivebase/internal/metrics"
	"github.com/hivebase/hivebase/internal/ratelimit"
)

func main() {
	cfg := config.Load()

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("hivebase")

	banner.PrintServerWithConfig(cfg)

	app, err := appwiring.Open(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer app.Close()

	authr := auth.NewAuthenticator(app.Engine, cfg.JWTSecret, cfg.JWTExpiresIn)
	if generated, err := auth.Bootstrap(app.Engine, "", ""); err != nil {
		logger.Error("admin bootstrap failed", "error", err)
	} else if generated != "" {
		logger.Info("generated admin account for _superusers", "password", generated)
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	requests := &metrics.RequestCounters{}
	collector := metrics.NewCollector(app.Store, app.Cache, app.Buffer, app.Broadcaster, limiter, requests)

	checker := health.NewChecker("0.1.0")
	checker.Register("kv", func() health.CheckResult {
		app.Store.Sizes()
		return health.CheckResult{Status: health.StatusHealthy}
	})
	checker.Register("write-buffer", func() health.CheckResult {
		if app.Buffer.QueueDepth() > 40 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "flush queue is deep"}
		}
		return health.CheckResult{Status: health.StatusHealthy}
	})

	server := httpapi.New(httpapi.Deps{
		Engine:      app.Engine,
		Authr:       authr,
		Broadcaster: app.Broadcaster,
		Limiter:     limiter,
		Collector:   collector,
		Requests:    requests,
		Checker:     checker,
		Rules:       nil,
		Config:      cfg,
		Logger:      logger,
	})

	go watchOverload(app, limiter, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("http server exited", "error", err)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
	}
}

// watchOverload tightens the rate limiter whenever the write buffer's
// flush queue runs deep, and restores it once pressure subsides.
func watchOverload(app *appwiring.App, limiter *ratelimit.Limiter, logger *logging.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	throttled := false
	for range ticker.C {
		depth := app.Buffer.QueueDepth()
		switch {
		case depth > 30 && !throttled:
			throttled = true
			limiter.Throttle(0.25)
			logger.Warn("throttling admission: write buffer queue is deep", "depth", depth)
		case depth <= 10 && throttled:
			throttled = false
			limiter.Restore()
			logger.Info("restoring admission rate: write buffer queue drained")
		}
	}
}
