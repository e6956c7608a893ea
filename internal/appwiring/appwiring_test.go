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

package appwiring

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hivebase/hivebase/internal/config"
	"github.com/hivebase/hivebase/internal/engine"
	"github.com/hivebase/hivebase/internal/writebuffer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBPath:        filepath.Join(t.TempDir(), "test.db"),
		MaxCacheSize:  100,
		MaxScanLimit:  100,
		FlushInterval: 5 * time.Millisecond,
		MaxBufferSize: 100,
	}
}

func TestOpenWiresAFunctioningStack(t *testing.T) {
	app, err := Open(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer app.Close()

	rec, err := app.Engine.Create("widgets", engine.Record{"name": "gadget"})
	if err != nil {
		t.Fatalf("Create through the wired engine: %v", err)
	}
	if rec["id"] == nil {
		t.Errorf("expected the wired engine to assign an id")
	}
}

func TestOpenAppliesOptimisticModeFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.OptimisticMode = true

	app, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer app.Close()

	if app.Buffer.Mode() != writebuffer.ModeOptimistic {
		t.Errorf("expected OptimisticMode config to select ModeOptimistic, got %v", app.Buffer.Mode())
	}
}

func TestCloseDrainsAndReleasesTheStore(t *testing.T) {
	app, err := Open(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := app.Engine.Create("widgets", engine.Record{"name": "gadget"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReopenReplaysPersistedRecords(t *testing.T) {
	cfg := testConfig(t)

	app1, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	created, err := app1.Engine.Create("widgets", engine.Record{"name": "gadget"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := app1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	app2, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	defer app2.Close()

	got, err := app2.Engine.Get("widgets", created["id"].(string))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got["name"] != "gadget" {
		t.Errorf("name = %v, want gadget", got["name"])
	}
}
