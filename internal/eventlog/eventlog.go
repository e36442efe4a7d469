// Package eventlog is a durable, replayable audit trail for simulation
// events: it subscribes to every event the core emits and appends
// brotli-compressed, newline-delimited JSON records to a file. This is
// not a whole-process snapshot — only the observable event stream is
// recorded, so restart always replays from an ancestor genome, never
// from a resurrected mid-run state.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/tierra-vm/tierra/internal/eventbus"
)

// record is the on-disk shape of one logged event.
type record struct {
	Seq       int64  `json:"seq"`
	InstExe   int64  `json:"inst_exe"`
	Type      string `json:"type"`
	CellID    uint32 `json:"cell_id,omitempty"`
	Cause     string `json:"cause,omitempty"`
	Genotype  string `json:"genotype,omitempty"`
	Parent    string `json:"parent,omitempty"`
	Addr      int    `json:"addr,omitempty"`
	Kind      string `json:"kind,omitempty"`
	InstCount int64  `json:"inst_count,omitempty"`
}

// Log appends brotli-compressed event records to a single file. It is
// safe for concurrent Close from another goroutine; record itself is
// only ever called from the emitting bus's goroutine, matching the
// core's single-thread execution contract.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	writer  *brotli.Writer
	buf     *bufio.Writer
	seq     int64
	instPtr *int64 // points at the simulation's running instruction counter
}

// Open creates (or truncates) path and returns a Log ready to accept
// events. instPtr, if non-nil, is read on every record to stamp the
// simulation instruction count at the time of emission.
func Open(path string, instPtr *int64) (*Log, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	bw := brotli.NewWriter(f)
	return &Log{
		file:    f,
		writer:  bw,
		buf:     bufio.NewWriter(bw),
		instPtr: instPtr,
	}, nil
}

// Subscribe registers the log against every named event type on bus.
func (l *Log) Subscribe(bus *eventbus.Bus) {
	for _, t := range []string{
		eventbus.CellBorn,
		eventbus.CellDied,
		eventbus.NewGenotype,
		eventbus.GenotypeExtinct,
		eventbus.Mutation,
		eventbus.Milestone,
	} {
		bus.Subscribe(t, l.record)
	}
}

func (l *Log) record(ev eventbus.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	var inst int64
	if l.instPtr != nil {
		inst = *l.instPtr
	}
	rec := record{
		Seq:       l.seq,
		InstExe:   inst,
		Type:      ev.Type,
		CellID:    uint32(ev.CellID),
		Cause:     ev.Cause,
		Genotype:  ev.Genotype,
		Parent:    ev.Parent,
		Addr:      ev.Addr,
		Kind:      ev.Kind,
		InstCount: ev.InstCount,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	l.buf.Write(data)
	l.buf.WriteByte('\n')
}

// Flush forces any buffered records out to the underlying brotli
// stream and file, without closing either.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.buf.Flush(); err != nil {
		return fmt.Errorf("eventlog: flush: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("eventlog: flush: brotli: %w", err)
	}
	return nil
}

// Close flushes and closes the brotli writer and the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.buf.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("eventlog: close: flush: %w", err)
	}
	if err := l.writer.Close(); err != nil {
		l.file.Close()
		return fmt.Errorf("eventlog: close: brotli: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("eventlog: close: %w", err)
	}
	return nil
}
