package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
	"github.com/warp/millops/store/memory"
	"github.com/warp/millops/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return memory.New() })
}

func TestHook_FailsWithoutTouchingData(t *testing.T) {
	// GIVEN: A store whose hook rejects updates
	m := memory.New()
	m.Seed(store.TableDispatchData, store.Row{"ship_to_city": "TIRUPUR"})
	boom := errors.New("boom")

	var seen []string
	m.SetHook(func(ctx context.Context, c memory.Call) error {
		seen = append(seen, c.Op)
		if c.Op == "update" {
			return boom
		}
		return nil
	})

	// WHEN: Updating
	_, err := m.Update(context.Background(), store.TableDispatchData, store.Row{"market": "EXPORT"})

	// THEN: The error surfaces and the row is unchanged
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"update"}, seen)
	assert.Nil(t, m.Rows(store.TableDispatchData)[0]["market"])
}

func TestHook_NotCalledForInvalidInput(t *testing.T) {
	m := memory.New()
	called := false
	m.SetHook(func(ctx context.Context, c memory.Call) error {
		called = true
		return nil
	})

	_, err := m.Fetch(context.Background(), store.Query{Table: "bogus"})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestSeed_FillsEveryColumn(t *testing.T) {
	m := memory.New()
	rows := m.Seed(store.TableMarketMaster, store.Row{"ship_to_city": "SALEM"})

	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Contains(t, rows[0], "market")
	assert.Nil(t, rows[0]["market"])
	assert.NotNil(t, rows[0]["created_at"])
}

func TestFetch_CanceledContext(t *testing.T) {
	m := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Fetch(ctx, store.Query{Table: store.TableDispatchData})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_ReturnsCopies(t *testing.T) {
	m := memory.New()
	m.Seed(store.TableMarketMaster, store.Row{"ship_to_city": "SALEM"})

	rows, err := m.Fetch(context.Background(), store.Query{Table: store.TableMarketMaster})
	require.NoError(t, err)
	rows[0]["ship_to_city"] = "CHANGED"

	assert.Equal(t, "SALEM", m.Rows(store.TableMarketMaster)[0]["ship_to_city"])
}
