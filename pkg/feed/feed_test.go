package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desaops/fleetscan/pkg/classify"
)

func sampleRecords() []StatusRecord {
	lat := 39.78
	lon := -89.65
	ts := time.Date(2025, 6, 1, 12, 30, 0, 0, time.FixedZone("CDT", -5*3600))

	return []StatusRecord{
		{
			Timestamp:  ts,
			RunID:      "20250601-123000",
			Site:       "1001",
			DCCode:     "1001",
			DCName:     "Chicago",
			ServerIP:   "10.1.0.10",
			GatewayIP:  "10.1.0.1",
			ServerUp:   true,
			GatewayUp:  true,
			Status:     classify.StatusGreen,
			StatusCode: 0,
			Latitude:   &lat,
			Longitude:  &lon,
			City:       "Springfield",
			State:      "IL",
		},
		{
			Timestamp:  ts,
			RunID:      "20250601-123000",
			Site:       "1002",
			ServerIP:   "10.2.0.10",
			GatewayIP:  "10.2.0.1",
			Status:     classify.StatusRed,
			StatusCode: 2,
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map_status.json")
	records := sampleRecords()

	require.NoError(t, Write(path, records))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i := range records {
		assert.True(t, records[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)

		// Normalize timestamps so the remaining fields compare directly.
		got[i].Timestamp = records[i].Timestamp
		assert.Equal(t, records[i], got[i])
	}
}

func TestWrite_TimestampKeepsOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map_status.json")

	require.NoError(t, Write(path, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2025-06-01T12:30:00-05:00")
}

func TestWrite_NilRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map_status.json")

	require.NoError(t, Write(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRead_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map_status.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}

func TestFailures(t *testing.T) {
	records := []StatusRecord{
		{Site: "1", Status: classify.StatusGreen},
		{Site: "2", Status: classify.StatusYellow},
		{Site: "3", Status: classify.StatusRed},
		{Site: "4", Status: classify.StatusGreen},
	}

	failed := Failures(records)
	require.Len(t, failed, 2)
	assert.Equal(t, "2", failed[0].Site)
	assert.Equal(t, "3", failed[1].Site)
}
