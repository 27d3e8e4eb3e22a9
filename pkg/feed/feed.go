package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/desaops/fleetscan/pkg/classify"
	"github.com/desaops/fleetscan/pkg/fsutil"
)

// StatusRecord is one site's classified scan result: the unit of the
// status feed consumed by the dashboard.
type StatusRecord struct {
	Timestamp  time.Time       `json:"timestamp"`
	RunID      string          `json:"run_id"`
	Site       string          `json:"site"`
	DCCode     string          `json:"dc_code"`
	DCName     string          `json:"dc_name"`
	ServerIP   string          `json:"server_ip"`
	GatewayIP  string          `json:"gateway_ip"`
	ServerUp   bool            `json:"server_up"`
	GatewayUp  bool            `json:"gateway_up"`
	Status     classify.Status `json:"status"`
	StatusCode int             `json:"status_code"`
	Latitude   *float64        `json:"latitude"`
	Longitude  *float64        `json:"longitude"`
	City       string          `json:"city"`
	State      string          `json:"state"`
}

// Write serializes records as an indented JSON array and writes the feed
// atomically, so a concurrent reader never sees a partial document.
func Write(path string, records []StatusRecord) error {
	if records == nil {
		records = []StatusRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling status feed: %w", err)
	}

	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing status feed: %w", err)
	}

	return nil
}

// Read loads a status feed back into records.
func Read(path string) ([]StatusRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading status feed: %w", err)
	}

	var records []StatusRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing status feed: %w", err)
	}

	return records, nil
}

// Failures returns the records with a non-green status, preserving order.
func Failures(records []StatusRecord) []StatusRecord {
	failed := make([]StatusRecord, 0, len(records))

	for _, r := range records {
		if r.Status != classify.StatusGreen {
			failed = append(failed, r)
		}
	}

	return failed
}
