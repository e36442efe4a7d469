package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/eventbus"
)

func TestSubscribeAndRecordRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.evlog")
	var inst int64 = 42

	l, err := Open(path, &inst)
	require.NoError(t, err)

	bus := eventbus.New(0, 0)
	l.Subscribe(bus)

	bus.Emit(eventbus.Event{Type: eventbus.CellBorn, CellID: 7, Parent: "0080aaa"})
	inst = 99
	bus.Emit(eventbus.Event{Type: eventbus.CellDied, CellID: 7, Cause: "reaper"})

	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(brotli.NewReader(f))
	var records []record
	for scanner.Scan() {
		var r record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.Equal(t, eventbus.CellBorn, records[0].Type)
	assert.EqualValues(t, 7, records[0].CellID)
	assert.Equal(t, "0080aaa", records[0].Parent)
	assert.EqualValues(t, 42, records[0].InstExe)

	assert.Equal(t, eventbus.CellDied, records[1].Type)
	assert.Equal(t, "reaper", records[1].Cause)
	assert.EqualValues(t, 99, records[1].InstExe)
}

func TestFlushWithoutCloseIsSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.evlog")
	l, err := Open(path, nil)
	require.NoError(t, err)

	bus := eventbus.New(0, 0)
	l.Subscribe(bus)
	bus.Emit(eventbus.Event{Type: eventbus.Milestone, InstCount: 1000})

	require.NoError(t, l.Flush())
	require.NoError(t, l.Close())
}
