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

// Command hivebase-bench is a stress-test harness for a running HiveBase
// server. It wraps testing.Benchmark in a small CLI tool and drives the
// public REST surface concurrently, the way a load generator external to
// the process would, to exercise the write coalescer's group-commit path
// and the read coalescer's single-flight collapsing under contention.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"
)

var (
	baseURL    string
	collection string
	threads    int
	keySpread  int
	skip       string
	timeout    time.Duration
)

func main() {
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "HiveBase server base URL")
	flag.StringVar(&collection, "collection", "bench_items", "collection to hammer")
	flag.IntVar(&threads, "threads", 10, "number of concurrent goroutines per test")
	flag.IntVar(&keySpread, "keys", 200, "number of distinct record ids to cycle through")
	flag.StringVar(&skip, "skip", "", "comma-separated test names to skip (create,get,list,update,delete,mixed)")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "per-request HTTP timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	b := &bencher{client: client}

	fmt.Println("HiveBase stress-test harness")
	fmt.Printf("target: %s  collection: %s  threads: %d  keys: %d\n\n", baseURL, collection, threads, keySpread)

	ids := b.seed(keySpread)
	defer b.cleanup(ids)

	results := map[string]testing.BenchmarkResult{}

	run := func(name string, fn func(b *testing.B)) {
		if shouldSkip(name) {
			printResult(name, testing.BenchmarkResult{})
			return
		}
		result := testing.Benchmark(fn)
		results[name] = result
		printResult(name, result)
	}

	run("create", func(bm *testing.B) {
		bm.SetParallelism(threads)
		bm.ResetTimer()
		bm.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				b.create(fmt.Sprintf("bench-create-%d", counter))
				counter++
			}
		})
	})

	run("get", func(bm *testing.B) {
		bm.SetParallelism(threads)
		bm.ResetTimer()
		bm.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				b.get(ids[counter%len(ids)])
				counter++
			}
		})
	})

	run("list", func(bm *testing.B) {
		bm.SetParallelism(threads)
		bm.ResetTimer()
		bm.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				b.list()
			}
		})
	})

	run("update", func(bm *testing.B) {
		bm.SetParallelism(threads)
		bm.ResetTimer()
		bm.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				b.update(ids[counter%len(ids)])
				counter++
			}
		})
	})

	run("mixed", func(bm *testing.B) {
		bm.SetParallelism(threads)
		bm.ResetTimer()
		bm.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := ids[counter%len(ids)]
				switch counter % 3 {
				case 0:
					b.get(id)
				case 1:
					b.update(id)
				case 2:
					b.list()
				}
				counter++
			}
		})
	})
}

func shouldSkip(name string) bool {
	for _, s := range strings.Split(skip, ",") {
		if strings.TrimSpace(s) == name {
			return true
		}
	}
	return false
}

type bencher struct {
	client *http.Client
}

func (b *bencher) recordsURL(id string) string {
	if id == "" {
		return fmt.Sprintf("%s/api/collections/%s/records", baseURL, collection)
	}
	return fmt.Sprintf("%s/api/collections/%s/records/%s", baseURL, collection, id)
}

func (b *bencher) seed(n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if id := b.create(fmt.Sprintf("bench-seed-%d", i)); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (b *bencher) cleanup(ids []string) {
	for _, id := range ids {
		req, err := http.NewRequest(http.MethodDelete, b.recordsURL(id), nil)
		if err != nil {
			continue
		}
		resp, err := b.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
	}
}

func (b *bencher) create(label string) string {
	body, _ := json.Marshal(map[string]interface{}{"label": label, "counter": 0})
	resp, err := b.client.Post(b.recordsURL(""), "application/json", bytes.NewReader(body))
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	var rec map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return ""
	}
	id, _ := rec["id"].(string)
	return id
}

func (b *bencher) get(id string) {
	if id == "" {
		return
	}
	resp, err := b.client.Get(b.recordsURL(id))
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (b *bencher) update(id string) {
	if id == "" {
		return
	}
	body, _ := json.Marshal(map[string]interface{}{"label": "bench-updated"})
	req, err := http.NewRequest(http.MethodPatch, b.recordsURL(id), bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (b *bencher) list() {
	resp, err := b.client.Get(b.recordsURL("") + "?perPage=30")
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// printResult mirrors the compact ns/op + ops/sec table dKV's perf
// subcommand prints, minus the CSV export the harness here doesn't need.
func printResult(name string, result testing.BenchmarkResult) {
	if result.N == 0 {
		fmt.Printf("%-10sskipped\n", name)
		return
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	fmt.Printf("%-10s%10.0f ns/op (%s/op)\t%.0f ops/sec\n", name, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}
