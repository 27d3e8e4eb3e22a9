package guard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desaops/fleetscan/pkg/classify"
	"github.com/desaops/fleetscan/pkg/feed"
	"github.com/desaops/fleetscan/pkg/sanitize"
)

func writeFeed(t *testing.T, dir, name string, records []feed.StatusRecord) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, feed.Write(path, records))

	return path
}

func internalFeed() []feed.StatusRecord {
	lat := 39.781721
	lon := -89.650148

	return []feed.StatusRecord{
		{
			Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			RunID:      "20250601-120000",
			Site:       "1001",
			DCCode:     "1001",
			DCName:     "Chicago",
			ServerIP:   "10.1.0.10",
			GatewayIP:  "10.1.0.1",
			ServerUp:   true,
			GatewayUp:  true,
			Status:     classify.StatusGreen,
			Latitude:   &lat,
			Longitude:  &lon,
			City:       "Springfield",
			State:      "IL",
		},
	}
}

func TestCheck_RejectsInternalFeed(t *testing.T) {
	path := writeFeed(t, t.TempDir(), "feed.json", internalFeed())

	findings := Check(path)
	require.NotEmpty(t, findings)

	joined := ""
	for _, f := range findings {
		joined += f.String() + "\n"
	}

	assert.Contains(t, joined, "private IPv4")
	assert.Contains(t, joined, "site")
}

func TestCheck_AcceptsSanitizedFeed(t *testing.T) {
	records := sanitize.Records(internalFeed(), "public-demo")
	path := writeFeed(t, t.TempDir(), "feed.json", records)

	assert.Empty(t, Check(path))
}

func TestCheck_RejectsThenAcceptsAfterSanitizing(t *testing.T) {
	dir := t.TempDir()

	raw := writeFeed(t, dir, "raw.json", internalFeed())
	require.NotEmpty(t, Check(raw), "internal feed must be blocked")

	clean := writeFeed(t, dir, "clean.json", sanitize.Records(internalFeed(), "public-demo"))
	assert.Empty(t, Check(clean), "sanitized feed must pass")
}

func TestCheckFile_CoordinatePrecision(t *testing.T) {
	records := sanitize.Records(internalFeed(), "public-demo")
	fine := 39.78172144
	records[0].Latitude = &fine

	path := writeFeed(t, t.TempDir(), "feed.json", records)

	findings := Check(path)
	require.NotEmpty(t, findings)
	assert.Contains(t, findings[0].Detail, "coordinate granularity")
}

func TestCheckFile_TextWithPrivateIP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("server 192.168.1.20 did not respond\n"), 0o644))

	findings := Check(path)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Detail, "192.168.1.20")
}

func TestCheckFile_CleanText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("server 198.51.100.20 did not respond\n"), 0o644))

	assert.Empty(t, Check(path))
}

func TestCheckFile_InvalidJSONFailsClosed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	findings := Check(path)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Detail, "invalid JSON")
}

func TestCheck_Directory(t *testing.T) {
	dir := t.TempDir()

	writeFeed(t, dir, "clean.json", sanitize.Records(internalFeed(), "public-demo"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("all good"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte("gw 10.0.0.1 down"), 0o644))

	findings := Check(dir)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Path, "bad.txt")
}

func TestCheck_MissingPath(t *testing.T) {
	findings := Check(filepath.Join(t.TempDir(), "nope"))
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Detail, "unreadable")
}
