package journal

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peerctl/internal/model"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	t.Parallel()

	j := openTemp(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.Record(model.Event{Timestamp: base, Kind: model.EventPeerAdded, Peer: "alice", Address: "10.0.0.2"}))
	require.NoError(t, j.Record(model.Event{Timestamp: base.Add(time.Second), Kind: model.EventDaemonSync, Outcome: "failure", Detail: "no such device", Duration: 120 * time.Millisecond}))
	require.NoError(t, j.Record(model.Event{Timestamp: base.Add(2 * time.Second), Kind: model.EventPeerRemoved, Peer: "alice"}))

	got, err := j.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.EventPeerRemoved, got[0].Kind)
	assert.Equal(t, model.EventDaemonSync, got[1].Kind)
	assert.Equal(t, "no such device", got[1].Detail)
	assert.Equal(t, 120*time.Millisecond, got[1].Duration)
	assert.Equal(t, base.Add(time.Second), got[1].Timestamp)

	since, err := j.Since(context.Background(), base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, model.EventDaemonSync, since[0].Kind)
}

func TestJournal_DefaultsTimestamp(t *testing.T) {
	t.Parallel()

	j := openTemp(t)
	require.NoError(t, j.Record(model.Event{Kind: model.EventRegistryReconciled}))
	got, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.WithinDuration(t, time.Now(), got[0].Timestamp, 5*time.Second)
}

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	items := []model.Event{
		{Timestamp: time.Unix(1, 0).UTC(), Kind: model.EventPeerAdded, Peer: "p1", Address: "10.0.0.2"},
		{Timestamp: time.Unix(2, 0).UTC(), Kind: model.EventDaemonSync, Outcome: "timeout", Duration: 1500 * time.Microsecond, Detail: "a, b"},
	}
	require.NoError(t, WriteCSV(&buf, items))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,kind,peer,address,outcome,duration_ms,detail", lines[0])
	assert.Equal(t, "1970-01-01T00:00:01Z,peer.added,p1,10.0.0.2,,0.000,", lines[1])
	assert.Equal(t, `1970-01-01T00:00:02Z,daemon.sync,,,timeout,1.500,"a, b"`, lines[2])
}
