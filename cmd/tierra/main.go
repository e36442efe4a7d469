// Command tierra runs a Tierra-lineage artificial-life simulation in
// batch mode: load a configuration and an ancestor genome (or an
// inoculation list), execute until a max instruction count or a
// drop-dead timeout is reached, and print periodic status reports.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tierra-vm/tierra/internal/config"
	"github.com/tierra-vm/tierra/internal/eventlog"
	"github.com/tierra-vm/tierra/internal/sim"
	"github.com/tierra-vm/tierra/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tierra", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a Tierra config file (si0 format)")
	ancestorPath := fs.String("ancestor", "", "path to an ancestor .tie genome file")
	instructions := fs.String("instructions", "0", "max instructions to execute (0=infinite, supports K/M/G suffixes)")
	reportInterval := fs.String("report-interval", "1M", "instructions between status reports")
	soupSize := fs.Int("soup-size", 0, "override soup size (0=use config default)")
	seed := fs.Int64("seed", 0, "random seed (0=derive from clock)")
	quiet := fs.Bool("quiet", false, "suppress periodic output")
	eventLogPath := fs.String("event-log", "", "path to write a brotli-compressed event audit trail (empty=disabled)")
	telemetryInterval := fs.String("telemetry-interval", "", "sample population/size/fitness series every N instructions (empty=disabled, supports K/M/G suffixes)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tierra: loading config: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	if *soupSize > 0 {
		cfg.SoupSize = *soupSize
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	maxInst, err := parseInstructionCount(*instructions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tierra: invalid --instructions: %v\n", err)
		return 2
	}
	reportEvery, err := parseInstructionCount(*reportInterval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tierra: invalid --report-interval: %v\n", err)
		return 2
	}
	if reportEvery <= 0 {
		reportEvery = 1_000_000
	}

	s := sim.New(cfg)

	switch {
	case *ancestorPath != "":
		if err := s.Boot(*ancestorPath); err != nil {
			fmt.Fprintf(os.Stderr, "tierra: boot: %v\n", err)
			return 1
		}
	case *configPath != "":
		genebankDir := filepath.Join(filepath.Dir(*configPath), cfg.GenebankPath)
		if err := s.BootFromConfig(genebankDir); err != nil {
			fmt.Fprintf(os.Stderr, "tierra: boot from config: %v\n", err)
			return 1
		}
	}

	if s.Scheduler.NumCreatures() == 0 {
		fmt.Fprintln(os.Stderr, "tierra: no cells in simulation; provide --ancestor or --config with inoculations")
		return 1
	}

	var elog *eventlog.Log
	if *eventLogPath != "" {
		var err error
		elog, err = eventlog.Open(*eventLogPath, &s.InstExecuted)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tierra: opening event log: %v\n", err)
			return 1
		}
		elog.Subscribe(s.Events)
		defer elog.Close()
	}

	var telem *telemetry.Collector
	if *telemetryInterval != "" {
		n, err := parseInstructionCount(*telemetryInterval)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tierra: invalid --telemetry-interval: %v\n", err)
			return 2
		}
		telem = telemetry.NewCollector(n, 4096)
	}
	s.OnReport = func(running *sim.Simulation) {
		if telem != nil && telem.ShouldSample(running.InstExecuted) {
			telem.Sample(running)
		}
		if elog != nil {
			elog.Flush()
		}
	}

	if !*quiet {
		fmt.Printf("tierra starting: soup_size=%d cells=%d\n", cfg.SoupSize, s.Scheduler.NumCreatures())
		if maxInst == 0 {
			fmt.Println("running for infinite instructions...")
		} else {
			fmt.Printf("running for %d instructions...\n", maxInst)
		}
	}

	start := time.Now()
	s.Run(maxInst, reportEvery)
	elapsed := time.Since(start)

	if !*quiet {
		fmt.Printf("\nfinal: %s\n", s.Report())
		fmt.Printf("elapsed: %.1fs\n", elapsed.Seconds())
		printLivingGenotypes(s)
		if telem != nil {
			if pt, ok := telem.PopulationSize.Last(); ok {
				fmt.Printf("telemetry: last population sample at inst %d: %.0f\n", pt.Inst, pt.Value)
			}
		}
	}

	return 0
}

func printLivingGenotypes(s *sim.Simulation) {
	summary := s.Genebank.Summary()
	if len(summary) == 0 {
		return
	}
	type named struct {
		name string
		pop  int
	}
	entries := make([]named, 0, len(summary))
	for name, pop := range summary {
		entries = append(entries, named{name, pop})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pop > entries[j].pop })
	if len(entries) > 20 {
		entries = entries[:20]
	}
	fmt.Printf("\nliving genotypes (%d):\n", len(summary))
	for _, e := range entries {
		fmt.Printf("  %s: %d\n", e.name, e.pop)
	}
}

// parseInstructionCount parses an instruction count with an optional
// K/M/G suffix (×1e3/1e6/1e9), matching the lineage's run and
// report-interval flags.
func parseInstructionCount(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	multipliers := map[string]float64{"K": 1_000, "M": 1_000_000, "G": 1_000_000_000}
	for suffix, mult := range multipliers {
		if strings.HasSuffix(s, suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(s, suffix), 64)
			if err != nil {
				return 0, err
			}
			return int64(n * mult), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}
