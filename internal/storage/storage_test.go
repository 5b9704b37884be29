package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "telenotify/pkg/logx"
)

func TestOpen_DisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	assert.ErrorContains(t, err, "unknown storage driver")

	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func record(i int) DeliveryRecord {
	return DeliveryRecord{
		ID:       fmt.Sprintf("id-%d", i),
		At:       time.Unix(int64(1700000000+i), 0).UTC(),
		Outcome:  "sent",
		Attempts: 1,
		Status:   200,
		Chars:    10 + i,
	}
}

func drivers(t *testing.T) map[string]Config {
	dir := t.TempDir()
	return map[string]Config{
		"file":   {Driver: "file", Path: filepath.Join(dir, "file", "telenotify.db")},
		"sqlite": {Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "telenotify.db"), BusyTimeout: time.Second},
	}
}

func TestStore_RecentDeliveriesNewestFirst(t *testing.T) {
	t.Parallel()
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, st.RecordDelivery(ctx, record(i)))
			}
			failed := record(5)
			failed.Outcome, failed.Status, failed.Description, failed.Drain = "auth_rejected", 401, "Unauthorized", true
			require.NoError(t, st.RecordDelivery(ctx, failed))

			got, err := st.RecentDeliveries(ctx, 3)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, []string{"id-5", "id-4", "id-3"}, []string{got[0].ID, got[1].ID, got[2].ID})
			assert.Equal(t, "auth_rejected", got[0].Outcome)
			assert.Equal(t, "Unauthorized", got[0].Description)
			assert.True(t, got[0].Drain)
			assert.True(t, failed.At.Equal(got[0].At))

			all, err := st.RecentDeliveries(ctx, 100)
			require.NoError(t, err)
			assert.Len(t, all, 6)

			none, err := st.RecentDeliveries(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	for name, cfg := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			require.NoError(t, st.RecordDelivery(ctx, record(1)))
			require.NoError(t, st.RecordDelivery(ctx, record(2)))
			require.NoError(t, st.AppendAudit(ctx, AuditEntry{ID: "a1", Source: "signal", Action: "reload", OK: true}))
			require.NoError(t, st.Close())

			st, err = Open(cfg, logx.Nop())
			require.NoError(t, err)
			defer st.Close()
			got, err := st.RecentDeliveries(ctx, 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "id-2", got[0].ID)
		})
	}
}

func TestFileStore_WritesJSONLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state.json")}, logx.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{ID: "a1", Source: "telegram", Actor: "42", Action: "reload", OK: false, Error: "invalid"}))
	require.NoError(t, st.RecordDelivery(ctx, record(1)))
	require.NoError(t, st.Close())

	b, err := os.ReadFile(filepath.Join(dir, "state.audit.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"actor":"42"`)
	assert.Contains(t, string(b), `"error":"invalid"`)

	b, err = os.ReadFile(filepath.Join(dir, "state.deliveries.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(b), "\n"))

	assert.ErrorIs(t, st.RecordDelivery(ctx, record(2)), ErrClosed)
	assert.ErrorIs(t, st.AppendAudit(ctx, AuditEntry{ID: "a2"}), ErrClosed)
}

func TestFileStore_RingKeepsLatest(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "s")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < recentCap+7; i++ {
		require.NoError(t, st.RecordDelivery(ctx, record(i)))
	}
	got, err := st.RecentDeliveries(ctx, recentCap+50)
	require.NoError(t, err)
	require.Len(t, got, recentCap)
	assert.Equal(t, fmt.Sprintf("id-%d", recentCap+6), got[0].ID)
	assert.Equal(t, "id-7", got[recentCap-1].ID)
}
