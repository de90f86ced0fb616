package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/stategraph/pkg/adapters/memory"
	"github.com/aretw0/stategraph/pkg/domain"
	"github.com/aretw0/stategraph/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunCheckpointStoreContract(t, store)
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	cp := &domain.Checkpoint{RunID: "r1", Values: map[string]any{"docs": []any{"a"}}, Visits: map[string]int{"a": 1}}
	require.NoError(t, store.Save(ctx, "r1", cp))

	cp.Values["docs"].([]any)[0] = "mutated"
	cp.Visits["a"] = 9

	loaded, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, loaded.Values["docs"])
	assert.Equal(t, 1, loaded.Visits["a"])
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	locker := memory.NewLocker()

	unlock, err := locker.Lock(ctx, "run:1", time.Second)
	require.NoError(t, err)

	// A second caller waits until the first releases.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, "run:1", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Other keys are independent.
	unlockOther, err := locker.Lock(ctx, "run:2", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlockOther(ctx))

	acquired := make(chan struct{})
	go func() {
		u, err := locker.Lock(ctx, "run:1", time.Second)
		if err == nil {
			_ = u(ctx)
		}
		close(acquired)
	}()

	require.NoError(t, unlock(ctx))
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was not handed over after unlock")
	}
}
