package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/millops/store"
	"github.com/warp/millops/store/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rc := newRootCommand(&stdout, io.Discard)
	rc.SetArgs(append(args, "--log-level=error"))
	err := rc.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestMigrate_CreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "millops.db")

	_, err := execute(t, "migrate", "--db-path="+path)
	require.NoError(t, err)

	st, err := sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()
	rows, err := st.Fetch(context.Background(), store.Query{Table: store.TableDispatchData})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSyncMasters_RefreshesAndStreams(t *testing.T) {
	// GIVEN: A database whose market master knows one city
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "millops.db")
	st, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = st.Insert(ctx, store.TableMarketMaster, []store.Row{{"ship_to_city": "SALEM", "market": "DOMESTIC"}})
	require.NoError(t, err)
	_, err = st.Insert(ctx, store.TableDispatchData, []store.Row{
		{"ship_to_city": "SALEM", "billing_document": "INV1"},
		{"ship_to_city": "DHAKA", "billing_document": "INV2"},
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// WHEN: Running the sync with a refresh
	out, err := execute(t, "sync-masters", "--refresh", "--db-path="+path)
	require.NoError(t, err)

	// THEN: The events are printed one per line
	var types []string
	sc := bufio.NewScanner(bytes.NewBufferString(out))
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e), sc.Text())
		types = append(types, e["type"].(string))
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "start", types[0])
	assert.Equal(t, "complete", types[len(types)-1])

	// AND: The new city was collected and the known one propagated
	st, err = sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()
	markets, err := st.Fetch(ctx, store.Query{Table: store.TableMarketMaster, OrderBy: []store.Order{store.Asc("ship_to_city")}})
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "DHAKA", markets[0]["ship_to_city"])

	salem, err := store.First(ctx, st, store.Query{
		Table:   store.TableDispatchData,
		Filters: []store.Filter{store.Eq("billing_document", "INV1")},
	})
	require.NoError(t, err)
	assert.Equal(t, "DOMESTIC", salem["market"])
}

// brokenPipe fails every write and counts the attempts.
type brokenPipe struct{ writes int }

func (b *brokenPipe) Write(p []byte) (int, error) {
	b.writes++
	return 0, errors.New("broken pipe")
}

func TestSyncMasters_StopsWritingAfterOutputFails(t *testing.T) {
	// GIVEN: A database with something to sync and a closed stdout
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "millops.db")
	st, err := sqlite.New(path)
	require.NoError(t, err)
	_, err = st.Insert(ctx, store.TableMarketMaster, []store.Row{{"ship_to_city": "SALEM", "market": "DOMESTIC"}})
	require.NoError(t, err)
	_, err = st.Insert(ctx, store.TableDispatchData, []store.Row{{"ship_to_city": "SALEM"}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := &brokenPipe{}
	rc := newRootCommand(out, io.Discard)
	rc.SetArgs([]string{"sync-masters", "--db-path=" + path, "--log-level=error"})

	// WHEN: Running the sync
	err = rc.ExecuteContext(ctx)

	// THEN: The sync still completes, with a single write attempt
	require.NoError(t, err)
	assert.Equal(t, 1, out.writes)

	st, err = sqlite.New(path)
	require.NoError(t, err)
	defer st.Close()
	row, err := store.First(ctx, st, store.Query{Table: store.TableDispatchData})
	require.NoError(t, err)
	assert.Equal(t, "DOMESTIC", row["market"])
}

func TestRoot_RejectsInvalidConfig(t *testing.T) {
	_, err := execute(t, "migrate", "--db-driver=postgres")
	assert.ErrorContains(t, err, "database-url")
}
