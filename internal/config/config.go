// Package config loads the si0-style configuration file: one
// Key = Value pair per line, then a trailing inoculation list.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable the simulation reads from an si0 file,
// with the lineage's defaults as zero-value-safe field values.
type Config struct {
	SoupSize int

	SliceSize    int
	SizDepSlice  int
	SlicePow     float64
	SliceStyle   int
	SlicFixFrac  float64
	SlicRanFrac  float64

	GenPerBkgMut         int
	GenPerFlaw           int
	GenPerMovMut         int
	GenPerDivMut         int
	GenPerCroInsSamSiz   int
	GenPerInsIns         int
	GenPerDelIns         int
	GenPerCroIns         int
	GenPerDelSeg         int
	GenPerInsSeg         int
	GenPerCroSeg         int
	MutBitProp           float64

	MalMode       int
	MalReapTol    int
	MalTol        int
	MaxFreeBlocks int
	MalSamSiz     int

	MinCellSize   int
	MinGenMemSiz  int
	MinTemplSize  int
	MovPropThrDiv float64

	SearchLimit int

	ReapRndProp float64
	LazyTol     int
	DropDead    int

	DivSameGen int
	DivSameSiz int

	NumCells int

	DistFreq  float64
	DistProp  float64
	EjectRate int

	MemModeFree  int
	MemModeMine  int
	MemModeProt  int

	DiskBank     int
	GeneBnker    int
	GenebankPath string
	SaveFreq     int
	SavMinNum    int
	SavThrMem    float64
	SavThrPop    float64

	Alive   int
	NewSoup int
	Seed    int64
	Debug   int

	RateMut    float64
	RateFlaw   float64
	RateMovMut float64

	Inoculations []string
}

// Default returns the lineage's stock configuration.
func Default() Config {
	return Config{
		SoupSize: 60000,

		SliceSize:   25,
		SlicePow:    1.0,
		SliceStyle:  2,
		SlicFixFrac: 0.0,
		SlicRanFrac: 2.0,

		GenPerBkgMut:       32,
		GenPerFlaw:         32,
		GenPerDivMut:       32,
		GenPerCroInsSamSiz: 32,
		GenPerInsIns:       32,
		GenPerDelIns:       32,
		GenPerCroIns:       32,
		GenPerDelSeg:       32,
		GenPerInsSeg:       32,
		GenPerCroSeg:       32,
		MutBitProp:         0.2,

		MalMode:       1,
		MalReapTol:    1,
		MalTol:        20,
		MaxFreeBlocks: 800,

		MinCellSize:   12,
		MinGenMemSiz:  12,
		MinTemplSize:  1,
		MovPropThrDiv: 0.7,

		SearchLimit: 5,

		ReapRndProp: 0.3,
		LazyTol:     10,
		DropDead:    5,

		NumCells: 2,

		DistFreq: -0.3,
		DistProp: 0.2,

		MemModeProt: 2,

		DiskBank:     1,
		GenebankPath: "gb0/",
		SaveFreq:     100,
		SavMinNum:    10,
		SavThrMem:    0.02,
		SavThrPop:    0.02,

		NewSoup: 1,
	}
}

var si0KeyToField = map[string]string{
	"SoupSize": "SoupSize",

	"SliceSize":   "SliceSize",
	"SizDepSlice": "SizDepSlice",
	"SlicePow":    "SlicePow",
	"SliceStyle":  "SliceStyle",
	"SlicFixFrac": "SlicFixFrac",
	"SlicRanFrac": "SlicRanFrac",

	"GenPerBkgMut":       "GenPerBkgMut",
	"GenPerFlaw":         "GenPerFlaw",
	"GenPerMovMut":       "GenPerMovMut",
	"GenPerDivMut":       "GenPerDivMut",
	"GenPerCroInsSamSiz": "GenPerCroInsSamSiz",
	"GenPerInsIns":       "GenPerInsIns",
	"GenPerDelIns":       "GenPerDelIns",
	"GenPerCroIns":       "GenPerCroIns",
	"GenPerDelSeg":       "GenPerDelSeg",
	"GenPerInsSeg":       "GenPerInsSeg",
	"GenPerCroSeg":       "GenPerCroSeg",
	"MutBitProp":         "MutBitProp",

	"MalMode":       "MalMode",
	"MalReapTol":    "MalReapTol",
	"MalTol":        "MalTol",
	"MaxFreeBlocks": "MaxFreeBlocks",
	"MalSamSiz":     "MalSamSiz",

	"MinCellSize":   "MinCellSize",
	"MinGenMemSiz":  "MinGenMemSiz",
	"MinTemplSize":  "MinTemplSize",
	"MovPropThrDiv": "MovPropThrDiv",

	"SearchLimit": "SearchLimit",

	"ReapRndProp": "ReapRndProp",
	"LazyTol":     "LazyTol",
	"DropDead":    "DropDead",

	"DivSameGen": "DivSameGen",
	"DivSameSiz": "DivSameSiz",

	"NumCells": "NumCells",

	"DistFreq":  "DistFreq",
	"DistProp":  "DistProp",
	"EjectRate": "EjectRate",

	"MemModeFree": "MemModeFree",
	"MemModeMine": "MemModeMine",
	"MemModeProt": "MemModeProt",

	"DiskBank":     "DiskBank",
	"GeneBnker":    "GeneBnker",
	"GenebankPath": "GenebankPath",
	"SaveFreq":     "SaveFreq",
	"SavMinNum":    "SavMinNum",
	"SavThrMem":    "SavThrMem",
	"SavThrPop":    "SavThrPop",

	"alive":    "Alive",
	"new_soup": "NewSoup",
	"seed":     "Seed",
	"debug":    "Debug",
}

// Load reads an si0-format file, applying recognized keys over
// Default() and collecting the trailing inoculation list. A missing
// file is not an error: Default() is returned unchanged, matching the
// lineage's "missing config falls back to defaults silently" policy.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	readingInoc := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !strings.Contains(line, "=") && !readingInoc {
			readingInoc = true
		}
		if readingInoc {
			cfg.Inoculations = append(cfg.Inoculations, line)
			continue
		}

		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if !strings.Contains(line, "=") {
			continue
		}

		key, val, _ := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		applyKey(&cfg, key, val)
	}
	if err := sc.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

func applyKey(cfg *Config, key, val string) {
	field, ok := si0KeyToField[key]
	if !ok {
		return
	}
	switch field {
	case "SoupSize":
		setInt(&cfg.SoupSize, val)
	case "SliceSize":
		setInt(&cfg.SliceSize, val)
	case "SizDepSlice":
		setInt(&cfg.SizDepSlice, val)
	case "SlicePow":
		setFloat(&cfg.SlicePow, val)
	case "SliceStyle":
		setInt(&cfg.SliceStyle, val)
	case "SlicFixFrac":
		setFloat(&cfg.SlicFixFrac, val)
	case "SlicRanFrac":
		setFloat(&cfg.SlicRanFrac, val)
	case "GenPerBkgMut":
		setInt(&cfg.GenPerBkgMut, val)
	case "GenPerFlaw":
		setInt(&cfg.GenPerFlaw, val)
	case "GenPerMovMut":
		setInt(&cfg.GenPerMovMut, val)
	case "GenPerDivMut":
		setInt(&cfg.GenPerDivMut, val)
	case "GenPerCroInsSamSiz":
		setInt(&cfg.GenPerCroInsSamSiz, val)
	case "GenPerInsIns":
		setInt(&cfg.GenPerInsIns, val)
	case "GenPerDelIns":
		setInt(&cfg.GenPerDelIns, val)
	case "GenPerCroIns":
		setInt(&cfg.GenPerCroIns, val)
	case "GenPerDelSeg":
		setInt(&cfg.GenPerDelSeg, val)
	case "GenPerInsSeg":
		setInt(&cfg.GenPerInsSeg, val)
	case "GenPerCroSeg":
		setInt(&cfg.GenPerCroSeg, val)
	case "MutBitProp":
		setFloat(&cfg.MutBitProp, val)
	case "MalMode":
		setInt(&cfg.MalMode, val)
	case "MalReapTol":
		setInt(&cfg.MalReapTol, val)
	case "MalTol":
		setInt(&cfg.MalTol, val)
	case "MaxFreeBlocks":
		setInt(&cfg.MaxFreeBlocks, val)
	case "MalSamSiz":
		setInt(&cfg.MalSamSiz, val)
	case "MinCellSize":
		setInt(&cfg.MinCellSize, val)
	case "MinGenMemSiz":
		setInt(&cfg.MinGenMemSiz, val)
	case "MinTemplSize":
		setInt(&cfg.MinTemplSize, val)
	case "MovPropThrDiv":
		setFloat(&cfg.MovPropThrDiv, val)
	case "SearchLimit":
		setInt(&cfg.SearchLimit, val)
	case "ReapRndProp":
		setFloat(&cfg.ReapRndProp, val)
	case "LazyTol":
		setInt(&cfg.LazyTol, val)
	case "DropDead":
		setInt(&cfg.DropDead, val)
	case "DivSameGen":
		setInt(&cfg.DivSameGen, val)
	case "DivSameSiz":
		setInt(&cfg.DivSameSiz, val)
	case "NumCells":
		setInt(&cfg.NumCells, val)
	case "DistFreq":
		setFloat(&cfg.DistFreq, val)
	case "DistProp":
		setFloat(&cfg.DistProp, val)
	case "EjectRate":
		setInt(&cfg.EjectRate, val)
	case "MemModeFree":
		setInt(&cfg.MemModeFree, val)
	case "MemModeMine":
		setInt(&cfg.MemModeMine, val)
	case "MemModeProt":
		setInt(&cfg.MemModeProt, val)
	case "DiskBank":
		setInt(&cfg.DiskBank, val)
	case "GeneBnker":
		setInt(&cfg.GeneBnker, val)
	case "GenebankPath":
		cfg.GenebankPath = val
	case "SaveFreq":
		setInt(&cfg.SaveFreq, val)
	case "SavMinNum":
		setInt(&cfg.SavMinNum, val)
	case "SavThrMem":
		setFloat(&cfg.SavThrMem, val)
	case "SavThrPop":
		setFloat(&cfg.SavThrPop, val)
	case "Alive":
		setInt(&cfg.Alive, val)
	case "NewSoup":
		setInt(&cfg.NewSoup, val)
	case "Seed":
		setInt64(&cfg.Seed, val)
	case "Debug":
		setInt(&cfg.Debug, val)
	}
}

// setInt/setFloat/setInt64 silently leave the field unchanged on a
// parse failure, matching "missing or unparseable keys fall back to
// defaults silently".
func setInt(dst *int, val string) {
	if n, err := strconv.Atoi(val); err == nil {
		*dst = n
	}
}

func setInt64(dst *int64, val string) {
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		*dst = n
	}
}

func setFloat(dst *float64, val string) {
	if f, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = f
	}
}
