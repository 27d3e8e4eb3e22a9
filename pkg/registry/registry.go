package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Site is one scan target loaded from the site list. Immutable once loaded.
type Site struct {
	ID        string
	ServerIP  string
	GatewayIP string
	DCCode    string
	DCName    string
	Address   string
	City      string
	State     string
	ZIP       string
	Latitude  *float64
	Longitude *float64
}

// RowError describes a single malformed site-list row.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ValidationError reports every malformed row in a site list, not just
// the first. A load that returns one produces no partial site set.
type ValidationError struct {
	Rows []RowError
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		reasons = append(reasons, r.String())
	}

	return fmt.Sprintf("%d invalid site row(s): %s", len(e.Rows), strings.Join(reasons, "; "))
}

var leadingDigits = regexp.MustCompile(`^(\d+)`)

// Load reads the site list and, when dcPath is non-empty, merges the
// datacenter code-to-name mapping into each site. Site order follows the
// input file.
func Load(log logrus.FieldLogger, sitesPath, dcPath string) ([]Site, error) {
	sites, err := LoadSites(sitesPath)
	if err != nil {
		return nil, err
	}

	if dcPath != "" {
		dcMap, err := LoadDCMap(log, dcPath)
		if err != nil {
			return nil, err
		}

		MergeDCNames(sites, dcMap)
	}

	return sites, nil
}

// LoadSites reads and validates the site list CSV. Every malformed row
// is reported via a single ValidationError.
func LoadSites(path string) ([]Site, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening site list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading site list header: %w", err)
	}

	cols := normalizeHeader(header)

	idCol := cols.first("storenumber", "store", "storeno", "storenbr", "site", "siteid")
	ipCol := cols.first("ipaddress", "ip", "ipaddr")
	gwCol := cols.first("gateway", "gw", "gatewayip")
	addrCol := cols.first("address")
	cityCol := cols.first("city")
	stateCol := cols.first("state")
	zipCol := cols.first("zip", "zipcode", "postalcode")
	latCol := cols.first("latitude", "lat")
	lonCol := cols.first("longitude", "long", "lng", "lon")

	if idCol < 0 || ipCol < 0 {
		return nil, fmt.Errorf("site list %s must include site identifier and IP address headers", path)
	}

	var (
		sites   []Site
		rowErrs []RowError
		seenIDs = make(map[string]int)
		line    = 1
	)

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading site list: %w", err)
		}

		line++

		get := func(col int) string {
			if col < 0 || col >= len(record) {
				return ""
			}

			return strings.TrimSpace(record[col])
		}

		id := get(idCol)
		serverIP := get(ipCol)

		if id == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: "missing site identifier"})

			continue
		}

		if serverIP == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: fmt.Sprintf("site %q: missing server address", id)})

			continue
		}

		if net.ParseIP(serverIP) == nil {
			rowErrs = append(rowErrs, RowError{
				Line:   line,
				Reason: fmt.Sprintf("site %q: invalid server address %q", id, serverIP),
			})

			continue
		}

		if prev, dup := seenIDs[id]; dup {
			rowErrs = append(rowErrs, RowError{
				Line:   line,
				Reason: fmt.Sprintf("duplicate site identifier %q (first seen on line %d)", id, prev),
			})

			continue
		}

		seenIDs[id] = line

		gateway := get(gwCol)
		if gateway != "" && net.ParseIP(gateway) == nil {
			rowErrs = append(rowErrs, RowError{
				Line:   line,
				Reason: fmt.Sprintf("site %q: invalid gateway address %q", id, gateway),
			})

			continue
		}

		if gateway == "" {
			gateway = deriveGateway(serverIP)
		}

		site := Site{
			ID:        id,
			ServerIP:  serverIP,
			GatewayIP: gateway,
			DCCode:    dcCodeFromID(id),
			Address:   get(addrCol),
			City:      get(cityCol),
			State:     get(stateCol),
			ZIP:       get(zipCol),
			Latitude:  parseCoord(get(latCol)),
			Longitude: parseCoord(get(lonCol)),
		}

		sites = append(sites, site)
	}

	if len(rowErrs) > 0 {
		return nil, &ValidationError{Rows: rowErrs}
	}

	return sites, nil
}

// LoadDCMap reads the datacenter list CSV into a code-to-name mapping.
// A missing DC header is tolerated with a warning since DC names are
// cosmetic.
func LoadDCMap(log logrus.FieldLogger, path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening datacenter list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading datacenter list header: %w", err)
	}

	cols := normalizeHeader(header)

	dcCol := cols.first("dc", "dccode", "code")
	cityCol := cols.first("city", "name", "dcname")

	if dcCol < 0 {
		log.WithField("path", path).Warn("Datacenter list missing DC header, continuing without names")

		return map[string]string{}, nil
	}

	dcMap := make(map[string]string)

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading datacenter list: %w", err)
		}

		if dcCol >= len(record) {
			continue
		}

		code := strings.TrimSpace(record[dcCol])
		if code == "" {
			continue
		}

		name := ""
		if cityCol >= 0 && cityCol < len(record) {
			name = strings.TrimSpace(record[cityCol])
		}

		if name == "" {
			name = "DC " + code
		}

		dcMap[code] = name
	}

	return dcMap, nil
}

// MergeDCNames fills in DCName for each site from the mapping. Unmatched
// codes leave the name blank rather than failing the load.
func MergeDCNames(sites []Site, dcMap map[string]string) {
	for i := range sites {
		if name, ok := dcMap[sites[i].DCCode]; ok {
			sites[i].DCName = name
		}
	}
}

// dcCodeFromID extracts the datacenter code from a site identifier:
// its leading digits, capped at four.
func dcCodeFromID(id string) string {
	m := leadingDigits.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return ""
	}

	digits := m[1]
	if len(digits) > 4 {
		digits = digits[:4]
	}

	return digits
}

// deriveGateway guesses the gateway for an IPv4 server address by
// replacing the last octet with .1. Returns "" for IPv6.
func deriveGateway(serverIP string) string {
	ip := net.ParseIP(serverIP)
	if ip == nil || ip.To4() == nil {
		return ""
	}

	parts := strings.Split(serverIP, ".")
	if len(parts) != 4 {
		return ""
	}

	parts[3] = "1"

	return strings.Join(parts, ".")
}

func parseCoord(v string) *float64 {
	if v == "" {
		return nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}

	return &f
}

// headerIndex maps normalized header names to their column positions.
type headerIndex map[string]int

func normalizeHeader(header []string) headerIndex {
	idx := make(headerIndex, len(header))

	for i, h := range header {
		// Strip a BOM if the file came from a spreadsheet export.
		h = strings.TrimPrefix(h, "\uFEFF")
		key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "")

		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}

	return idx
}

func (h headerIndex) first(names ...string) int {
	for _, n := range names {
		if i, ok := h[n]; ok {
			return i
		}
	}

	return -1
}
