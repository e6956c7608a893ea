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

// Command hivebase-cli is an interactive administration shell. It opens
// the same embedded store cmd/hivebase does, but talks to the engine
// in-process rather than over HTTP: useful for inspecting collections,
// running admin bootstrap, and tailing the change feed from a terminal
// when the server binary isn't reachable or hasn't been started yet.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/hivebase/hivebase/internal/appwiring"
	"github.com/hivebase/hivebase/internal/auth"
	"github.com/hivebase/hivebase/internal/banner"
	"github.com/hivebase/hivebase/internal/config"
	"github.com/hivebase/hivebase/internal/engine"
	"github.com/hivebase/hivebase/internal/keycodec"
	"github.com/hivebase/hivebase/internal/kv"
	"github.com/hivebase/hivebase/internal/logging"
)

var allCompletions = []string{
	"help", "collections", "get", "list", "create", "delete",
	"bootstrap", "watch", "stats", "exit", "quit",
}

func createCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(allCompletions))
	for _, cmd := range allCompletions {
		items = append(items, readline.PcItem(cmd))
	}
	return readline.NewPrefixCompleter(items...)
}

func createReadlineInstance() (*readline.Instance, error) {
	historyFile := historyFilePath()
	cfg := &readline.Config{
		Prompt:              banner.AnsiGreen + "hivebase" + banner.AnsiReset + banner.AnsiDim + "> " + banner.AnsiReset,
		HistoryFile:         historyFile,
		AutoComplete:        createCompleter(),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}
	return readline.NewEx(cfg)
}

func filterInput(r rune) (rune, bool) {
	switch r {
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func historyFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hivebase-cli-history"
	}
	return home + "/.hivebase-cli-history"
}

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("hivebase-cli")

	app, err := appwiring.Open(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open store:", err)
		os.Exit(1)
	}
	defer app.Close()

	banner.Print()
	fmt.Printf("connected to %s\n", cfg.DBPath)

	rl, err := createReadlineInstance()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start shell:", err)
		os.Exit(1)
	}
	defer rl.Close()

	shell := &shell{app: app, rl: rl}
	shell.run()
}

type shell struct {
	app *appwiring.App
	rl  *readline.Instance
}

func (s *shell) run() {
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !s.dispatch(line) {
			return
		}
	}
}

func (s *shell) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return false
	case "help":
		s.help()
	case "collections":
		s.collections()
	case "get":
		s.get(args)
	case "list":
		s.list(args)
	case "create":
		s.create(args)
	case "delete":
		s.delete(args)
	case "bootstrap":
		s.bootstrap(args)
	case "watch":
		s.watch()
	case "stats":
		s.stats()
	default:
		fmt.Printf("unknown command %q, type help\n", cmd)
	}
	return true
}

func (s *shell) help() {
	fmt.Println(`commands:
  collections                     list every collection with a registered schema
  get <collection> <id>           fetch and print one record
  list <collection> [field=val]   list records, optionally filtered
  create <collection> <json>      insert a record from a JSON object
  delete <collection> <id>        delete a record
  bootstrap [email] [password]    (re)run the _superusers bootstrap
  watch                           tail the change feed until Ctrl-C
  stats                           print kv/cache/buffer counters
  exit                            leave the shell`)
}

// collections scans the meta keyspace for schema:<name> keys, since the
// registry itself only exposes point lookups.
func (s *shell) collections() {
	low, high := "schema:", "schema:"+keycodec.HighSentinel
	entries := s.app.Store.Range(kv.Meta, low, high, 0)
	if len(entries) == 0 {
		fmt.Println("(no collections registered yet)")
		return
	}
	for _, e := range entries {
		name := strings.TrimPrefix(e.Key, "schema:")
		fmt.Println(name)
	}
}

func (s *shell) get(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: get <collection> <id>")
		return
	}
	rec, err := s.app.Engine.Get(args[0], args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printRecord(rec)
}

func (s *shell) list(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: list <collection> [field=value]")
		return
	}
	opts := engine.ListOptions{PerPage: 30}
	if len(args) >= 2 {
		field, value, ok := strings.Cut(args[1], "=")
		if ok {
			opts.Filter = map[string]interface{}{field: value}
		}
	}
	result, err := s.app.Engine.List(args[0], opts)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%d of %d record(s)\n", len(result.Items), result.TotalItems)
	for _, rec := range result.Items {
		printRecord(rec)
	}
}

func (s *shell) create(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: create <collection> <json-object>")
		return
	}
	raw := strings.Join(args[1:], " ")
	var data engine.Record
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		fmt.Println("invalid JSON:", err)
		return
	}
	rec, err := s.app.Engine.Create(args[0], data)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printRecord(rec)
}

func (s *shell) delete(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: delete <collection> <id>")
		return
	}
	if err := s.app.Engine.Delete(args[0], args[1], nil); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("deleted", args[1])
}

func (s *shell) bootstrap(args []string) {
	email, password := "", ""
	if len(args) >= 1 {
		email = args[0]
	}
	if len(args) >= 2 {
		password = args[1]
	}
	generated, err := auth.Bootstrap(s.app.Engine, email, password)
	if err != nil {
		fmt.Println("bootstrap failed:", err)
		return
	}
	if generated != "" {
		fmt.Println(banner.AnsiYellow + "generated password: " + generated + banner.AnsiReset)
	} else {
		fmt.Println("_superusers already has an account, nothing to do")
	}
}

// watch subscribes a stdout-printing sink to the change feed until Ctrl-C.
func (s *shell) watch() {
	fmt.Println("tailing change feed, press Ctrl-C to stop")
	sink := &stdoutSink{done: make(chan struct{})}
	s.app.Broadcaster.Subscribe(sink)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
	case <-sink.done:
	}
	s.app.Broadcaster.Unsubscribe(sink)
	sink.Close()
}

func (s *shell) stats() {
	main, indexes, meta := s.app.Store.Sizes()
	fmt.Printf("kv:        main=%d indexes=%d meta=%d\n", main, indexes, meta)
	fmt.Printf("cache:     %+v\n", s.app.Cache.Stats())
	fmt.Printf("buffer:    mode=%s queueDepth=%d pendingIngress=%d\n",
		s.app.Buffer.Mode(), s.app.Buffer.QueueDepth(), s.app.Buffer.PendingIngress())
	fmt.Printf("broadcast: sinks=%d\n", s.app.Broadcaster.SinkCount())
}

func printRecord(rec engine.Record) {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", rec)
		return
	}
	fmt.Println(string(out))
}

// stdoutSink implements broadcast.Sink by printing every event to the
// terminal. It never reports backpressure, so the broadcaster only drops
// it on an actual write error.
type stdoutSink struct {
	done chan struct{}
}

func (s *stdoutSink) WriteEvent(event string, payload []byte) (bool, error) {
	fmt.Printf("[%s] %s\n", event, payload)
	return true, nil
}

func (s *stdoutSink) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
