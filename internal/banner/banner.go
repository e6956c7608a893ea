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

// Package banner prints the startup banner and configuration summary for
// the hivebase server binary. The ASCII logo is embedded at compile time
// via go:embed, the same approach the teacher uses for its own banner.
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hivebase/hivebase/internal/config"
)

//go:embed banner.txt
var banner string

const (
	AnsiRed    = "\033[31m"
	AnsiGreen  = "\033[32m"
	AnsiYellow = "\033[33m"
	AnsiDim    = "\033[2m"
	AnsiBold   = "\033[1m"
	AnsiReset  = "\033[0m"
)

const (
	Version   = "0.1.0"
	Copyright = "(c)2026 Firefly Software Solutions Inc"
	License   = "Licensed under Apache 2.0"
)

// Print writes the plain startup banner to stdout.
func Print() {
	fmt.Println(AnsiRed + banner + AnsiReset)
	fmt.Println(AnsiRed + AnsiBold + ":: HiveBase ::                  (v" + Version + ")" + AnsiReset)
	fmt.Println(AnsiGreen + AnsiBold + Copyright + AnsiReset)
	fmt.Println(AnsiGreen + AnsiBold + License + AnsiReset)
	fmt.Println()
}

// PrintServerWithConfig writes the banner plus a compact configuration
// summary, so an operator can see what a fresh process picked up from its
// environment before the first log line appears.
func PrintServerWithConfig(cfg *config.Config) {
	PrintServerWithConfigTo(os.Stdout, cfg)
}

func PrintServerWithConfigTo(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiRed+banner+AnsiReset)
	fmt.Fprintln(w, AnsiRed+AnsiBold+":: HiveBase Server ::           (v"+Version+")"+AnsiReset)
	fmt.Fprintln(w, AnsiDim+"  Schema-aware record storage over an embedded KV store"+AnsiReset)
	fmt.Fprintln(w)

	fmt.Fprintln(w, AnsiYellow+AnsiBold+"Configuration"+AnsiReset)
	fmt.Fprintf(w, "  db path            %s\n", cfg.DBPath)
	fmt.Fprintf(w, "  port               %d\n", cfg.Port)
	fmt.Fprintf(w, "  max cache size     %d\n", cfg.MaxCacheSize)
	fmt.Fprintf(w, "  max scan limit     %d\n", cfg.MaxScanLimit)
	fmt.Fprintf(w, "  max batch size     %d\n", cfg.MaxBatchSize)
	fmt.Fprintf(w, "  flush interval     %s\n", cfg.FlushInterval)
	fmt.Fprintf(w, "  max buffer size    %d\n", cfg.MaxBufferSize)
	fmt.Fprintf(w, "  optimistic mode    %v\n", cfg.OptimisticMode)
	fmt.Fprintf(w, "  rate limit         %.0f rps, burst %d\n", cfg.RateLimitRPS, cfg.RateLimitBurst)
	fmt.Fprintln(w)

	PrintLogSeparator()
}

// PrintLogSeparator prints a visual separator before logs start.
func PrintLogSeparator() {
	printLogSeparator(os.Stdout)
}

func printLogSeparator(w io.Writer) {
	const lineWidth = 78
	text := " LOGS START HERE "
	padding := (lineWidth - len(text) - 4) / 2
	if padding < 0 {
		padding = 0
	}
	line := strings.Repeat("-", padding)
	fmt.Fprintf(w, "  %svv%s %s%s%s %s%s%s\n",
		AnsiYellow, line,
		AnsiBold, text, AnsiReset+AnsiYellow,
		line+"vv", AnsiReset, "")
	fmt.Fprintln(w)
}
