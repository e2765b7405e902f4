package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashr/internal/testutil"
)

func TestStoreApplyConcurrentIncrements(t *testing.T) {
	db := testutil.NewTestPool(t)
	s := NewStore(db)
	ctx := context.Background()
	day := Day(time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Apply(ctx, "task-"+string(rune('a'+i)), day, []Increment{{Key: KeyOrdersCreated, Delta: 1}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	applied, err := s.Apply(ctx, "task-a", day, []Increment{{Key: KeyOrdersCreated, Delta: 1}})
	require.NoError(t, err)
	assert.False(t, applied, "a repeated task id must not count twice")

	all, err := s.AllTime(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.EqualValues(t, 10, all[0].Value)

	daily, err := s.Daily(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.EqualValues(t, 10, daily[0].Value)
}
