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

// Package appwiring assembles one embedded HiveBase instance: the KV
// substrate, cache, single-flight loader, schema registry, write buffer,
// engine and change broadcaster, wired together the same way regardless of
// whether the caller is the server binary or the admin CLI.
package appwiring

import (
	"github.com/hivebase/hivebase/internal/broadcast"
	"github.com/hivebase/hivebase/internal/cache"
	"github.com/hivebase/hivebase/internal/config"
	"github.com/hivebase/hivebase/internal/engine"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/loader"
	"github.com/hivebase/hivebase/internal/logging"
	"github.com/hivebase/hivebase/internal/schema"
	"github.com/hivebase/hivebase/internal/writebuffer"
)

// App bundles every core collaborator a process needs to serve HiveBase
// out of one KV store.
type App struct {
	Config      *config.Config
	Store       *kv.Store
	Cache       *cache.Cache[engine.Record]
	Loader      *loader.Loader[engine.Record]
	Schemas     *schema.Registry
	Buffer      *writebuffer.WriteBuffer
	Engine      *engine.Engine
	Broadcaster *broadcast.Broadcaster
	Logger      *logging.Logger
}

// Open builds an App backed by the KV store at cfg.DBPath. Close must be
// called to release the WAL file handle and drain the write buffer.
func Open(cfg *config.Config, logger *logging.Logger) (*App, error) {
	store, err := kv.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	c := cache.New[engine.Record](cfg.MaxCacheSize)
	ldr := loader.New[engine.Record](c)
	schemas := schema.NewRegistry(store)

	buffer := writebuffer.New(store, engine.CacheUpdateFor(ldr), cfg.FlushInterval, cfg.MaxBufferSize, logger)
	if cfg.OptimisticMode {
		buffer.SetMode(writebuffer.ModeOptimistic)
	}

	broadcaster := broadcast.New()
	eng := engine.New(store, schemas, ldr, buffer, broadcaster, cfg.MaxScanLimit, logger)

	return &App{
		Config:      cfg,
		Store:       store,
		Cache:       c,
		Loader:      ldr,
		Schemas:     schemas,
		Buffer:      buffer,
		Engine:      eng,
		Broadcaster: broadcaster,
		Logger:      logger,
	}, nil
}

// Close drains the write buffer and closes the KV store.
func (a *App) Close() error {
	a.Buffer.Shutdown()
	a.Broadcaster.Shutdown()
	return a.Store.Close()
}
