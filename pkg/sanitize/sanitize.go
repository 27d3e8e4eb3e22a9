package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/desaops/fleetscan/pkg/classify"
	"github.com/desaops/fleetscan/pkg/feed"
)

// DefaultRunID is the run identifier written into sanitized records.
const DefaultRunID = "public-demo"

// testNetBlocks are the RFC 5737 documentation prefixes used for
// placeholder addresses.
var testNetBlocks = [][3]int{
	{198, 51, 100},
	{203, 0, 113},
	{192, 0, 2},
}

// Sanitizer rewrites identifying fields of a run's records into stable
// pseudonymous placeholders. The mapping is one-way: original sites, DC
// codes, addresses, and coordinates cannot be recovered.
type Sanitizer struct {
	runID   string
	siteMap map[string]string
	dcMap   map[string]int
}

// New builds a sanitizer over a record set. Site and DC tokens are
// assigned from the sorted set of raw values, which makes re-sanitizing
// an already-sanitized feed a no-op.
func New(records []feed.StatusRecord, runID string) *Sanitizer {
	if runID == "" {
		runID = DefaultRunID
	}

	rawSites := make(map[string]struct{}, len(records))
	rawDCs := make(map[string]struct{}, len(records))

	for _, r := range records {
		rawSites[orUnknown(r.Site, "UNKNOWN")] = struct{}{}
		rawDCs[orUnknown(r.DCCode, "DC")] = struct{}{}
	}

	s := &Sanitizer{
		runID:   runID,
		siteMap: make(map[string]string, len(rawSites)),
		dcMap:   make(map[string]int, len(rawDCs)),
	}

	for i, site := range sortedKeys(rawSites) {
		s.siteMap[site] = fmt.Sprintf("SITE-%04d", i+1)
	}

	for i, dc := range sortedKeys(rawDCs) {
		s.dcMap[dc] = i + 1
	}

	return s
}

// Record sanitizes one record. The index is the record's position in the
// feed and keys the placeholder IP assignment. Status, status code,
// timestamp, city, and state pass through; everything identifying is
// replaced.
func (s *Sanitizer) Record(index int, r feed.StatusRecord) feed.StatusRecord {
	siteID := s.siteMap[orUnknown(r.Site, "UNKNOWN")]
	if siteID == "" {
		siteID = fmt.Sprintf("SITE-%04d", index+1)
	}

	dcNum := s.dcMap[orUnknown(r.DCCode, "DC")]

	statusCode := r.StatusCode
	if statusCode < 0 || statusCode > 2 {
		statusCode = 0
	}

	lat := round4(stableFloat(siteID+":lat", 25.0, 48.8))
	lon := round4(stableFloat(siteID+":lon", -124.0, -67.0))

	return feed.StatusRecord{
		Timestamp:  r.Timestamp,
		RunID:      s.runID,
		Site:       siteID,
		DCCode:     fmt.Sprintf("DC%02d", dcNum),
		DCName:     fmt.Sprintf("Region %02d", dcNum),
		ServerIP:   fakeIP(index, "server"),
		GatewayIP:  fakeIP(index, "gateway"),
		ServerUp:   r.ServerUp,
		GatewayUp:  r.GatewayUp,
		Status:     statusFor(statusCode),
		StatusCode: statusCode,
		Latitude:   &lat,
		Longitude:  &lon,
		City:       r.City,
		State:      r.State,
	}
}

// Records sanitizes a whole feed. A run is either fully sanitized or
// not published; partial sanitization is not supported.
func Records(records []feed.StatusRecord, runID string) []feed.StatusRecord {
	s := New(records, runID)

	out := make([]feed.StatusRecord, len(records))
	for i, r := range records {
		out[i] = s.Record(i, r)
	}

	return out
}

func statusFor(code int) classify.Status {
	switch code {
	case 1:
		return classify.StatusYellow
	case 2:
		return classify.StatusRed
	default:
		return classify.StatusGreen
	}
}

// fakeIP deterministically assigns a TEST-NET address by feed position.
func fakeIP(index int, role string) string {
	block := testNetBlocks[index%len(testNetBlocks)]

	var host int
	if role == "gateway" {
		host = 1 + index%50
	} else {
		host = 10 + index%200
	}

	return fmt.Sprintf("%d.%d.%d.%d", block[0], block[1], block[2], host)
}

// stableInt hashes seed into [0, modulus).
func stableInt(seed string, modulus int64) int64 {
	digest := sha256.Sum256([]byte(seed))
	hexDigest := hex.EncodeToString(digest[:])

	n, err := strconv.ParseInt(hexDigest[:12], 16, 64)
	if err != nil {
		return 0
	}

	return n % modulus
}

// stableFloat hashes seed into [low, high].
func stableFloat(seed string, low, high float64) float64 {
	n := stableInt(seed, 1_000_000)

	return low + float64(n)/999_999.0*(high-low)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func orUnknown(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
