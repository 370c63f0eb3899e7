package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchedStore_BuffersUntilCommit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)

	f := upsertTestFile(t, batch, "/a.rb", OutcomeParsed)
	assert.Negative(t, f.ID, "batched IDs should be negative")

	// Visible through the batch, not yet in SQLite.
	got, err := batch.FileByPath("/a.rb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, OutcomeParsed, got.Outcome)

	got, err = s.FileByPath("/a.rb")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.CommitBatch(batch))
	assert.Zero(t, batch.Len())

	got, err = s.FileByPath("/a.rb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Positive(t, got.ID)
}

func TestBatchedStore_LaterRecordWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)

	first := upsertTestFile(t, batch, "/a.rb", OutcomeFailed)
	second := upsertTestFile(t, batch, "/a.rb", OutcomeParsed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, batch.Len())

	require.NoError(t, s.CommitBatch(batch))
	got, err := s.FileByPath("/a.rb")
	require.NoError(t, err)
	assert.Equal(t, OutcomeParsed, got.Outcome)
}

func TestBatchedStore_FallsThroughToStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	upsertTestFile(t, s, "/committed.rb", OutcomeParsed)

	batch := NewBatchedStore(s)
	got, err := batch.FileByPath("/committed.rb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Positive(t, got.ID)
}

func TestBatchedStore_ConcurrentUpserts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := batch.UpsertFile(&File{
				Path:    fmt.Sprintf("/f%d.rb", i),
				RelPath: fmt.Sprintf("f%d.rb", i),
				Kind:    "ruby",
				Outcome: OutcomeParsed,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, n, batch.Len())

	require.NoError(t, s.CommitBatch(batch))
	counts, err := s.OutcomeCounts()
	require.NoError(t, err)
	assert.Equal(t, []OutcomeCount{{Outcome: OutcomeParsed, Count: n}}, counts)
}
