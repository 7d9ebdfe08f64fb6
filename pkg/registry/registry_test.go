package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(host string, port int) *NodeRecord {
	return NewNodeRecord(
		types.NodeID{Host: host, Port: port},
		8080,
		"/default-rack",
		"3.4.0",
		types.Resource{MemoryMiB: 8192, VCores: 4},
		types.Resource{MemoryMiB: 16384, VCores: 8},
		nil,
	)
}

func TestNextResponseID(t *testing.T) {
	tests := []struct {
		name     string
		in       uint32
		expected uint32
	}{
		{name: "zero advances to one", in: 0, expected: 1},
		{name: "ordinary advance", in: 16, expected: 17},
		{name: "wraps at 31 bits", in: 0x7fffffff, expected: 0},
		{name: "one before the mask", in: 0x7ffffffe, expected: 0x7fffffff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextResponseID(tt.in))
		})
	}
}

func TestPutIfAbsent(t *testing.T) {
	r := New()
	rec := testRecord("h1", 8041)

	got, inserted := r.PutIfAbsent(rec)
	require.True(t, inserted)
	assert.Same(t, rec, got)
	assert.Equal(t, 1, r.Len())

	// Second insert for the same ID yields the existing record.
	dup := testRecord("h1", 8041)
	got, inserted = r.PutIfAbsent(dup)
	assert.False(t, inserted)
	assert.Same(t, rec, got)
	assert.Equal(t, 1, r.Len())
}

func TestReplaceAndDelete(t *testing.T) {
	r := New()
	old := testRecord("h1", 8041)
	r.PutIfAbsent(old)

	newRec := testRecord("h1", 8041)
	newRec.HTTPPort = 9090
	prev := r.Replace(newRec)
	assert.Same(t, old, prev)
	assert.Same(t, newRec, r.Get(types.NodeID{Host: "h1", Port: 8041}))

	deleted := r.Delete(types.NodeID{Host: "h1", Port: 8041})
	assert.Same(t, newRec, deleted)
	assert.Nil(t, r.Get(types.NodeID{Host: "h1", Port: 8041}))
	assert.Nil(t, r.Delete(types.NodeID{Host: "h1", Port: 8041}))
}

func TestGetUnknownNode(t *testing.T) {
	r := New()
	assert.Nil(t, r.Get(types.NodeID{Host: "missing", Port: 1}))
}

func TestRangeVisitsAllShards(t *testing.T) {
	r := New()
	for i := 0; i < 100; i++ {
		r.PutIfAbsent(testRecord(fmt.Sprintf("h%d", i), 8041))
	}

	seen := 0
	r.Range(func(rec *NodeRecord) bool {
		seen++
		return true
	})
	assert.Equal(t, 100, seen)
	assert.Len(t, r.Summaries(), 100)
}

func TestRangeEarlyStop(t *testing.T) {
	r := New()
	for i := 0; i < 10; i++ {
		r.PutIfAbsent(testRecord(fmt.Sprintf("h%d", i), 8041))
	}

	seen := 0
	r.Range(func(rec *NodeRecord) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}

func TestConcurrentDistinctNodes(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testRecord(fmt.Sprintf("h%d", i), 8041)
			_, inserted := r.PutIfAbsent(rec)
			assert.True(t, inserted)

			got := r.Get(rec.ID)
			got.Lock()
			got.LastResponseID = NextResponseID(got.LastResponseID)
			got.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 64, r.Len())
}

func TestConcurrentPutIfAbsentSingleWinner(t *testing.T) {
	r := New()
	id := types.NodeID{Host: "h1", Port: 8041}

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserts := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := testRecord("h1", 8041)
			if _, inserted := r.PutIfAbsent(rec); inserted {
				mu.Lock()
				inserts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserts)
	assert.NotNil(t, r.Get(id))
}

func TestRecordSummary(t *testing.T) {
	rec := NewNodeRecord(
		types.NodeID{Host: "h1", Port: 8041},
		8080,
		"/rack-a",
		"3.4.0",
		types.Resource{MemoryMiB: 8192, VCores: 4},
		types.Resource{MemoryMiB: 16384, VCores: 8},
		[]string{"app-1", "app-2"},
	)

	sum := rec.Summary()
	assert.Equal(t, "h1:8041", sum.NodeID.String())
	assert.Equal(t, types.NodeStateNew, sum.State)
	assert.Equal(t, "/rack-a", sum.RackPath)
	assert.ElementsMatch(t, []string{"app-1", "app-2"}, sum.RunningApplications)
}
