package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Finding is one sensitive-data indicator detected in candidate-for-publish
// content. Any finding blocks publication; the guard is fail-closed.
type Finding struct {
	Path   string
	Detail string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Detail)
}

var (
	// privateIPv4 matches RFC 1918 addresses anywhere in text.
	privateIPv4 = regexp.MustCompile(
		`\b(?:10\.(?:\d{1,3}\.){2}\d{1,3}|192\.168\.(?:\d{1,3})\.(?:\d{1,3})|172\.(?:1[6-9]|2\d|3[01])\.(?:\d{1,3})\.(?:\d{1,3}))\b`)

	// testNetIPv4 matches the RFC 5737 placeholder blocks the sanitizer emits.
	testNetIPv4 = regexp.MustCompile(`^(?:198\.51\.100|203\.0\.113|192\.0\.2)\.\d{1,3}$`)

	siteToken = regexp.MustCompile(`^SITE-\d{4}$`)
	dcCode    = regexp.MustCompile(`^DC\d{2,}$`)
	dcName    = regexp.MustCompile(`^Region \d{2,}$`)

	// coarseCoord limits published coordinates to four decimals.
	coarseCoord = regexp.MustCompile(`^-?\d+(?:\.\d{1,4})?$`)
)

// Check validates a file or directory tree for publication. An empty
// result means PASS.
func Check(path string) []Finding {
	info, err := os.Stat(path)
	if err != nil {
		return []Finding{{Path: path, Detail: fmt.Sprintf("unreadable: %v", err)}}
	}

	if info.IsDir() {
		return checkDir(path)
	}

	return CheckFile(path)
}

// CheckFile validates a single candidate file. JSON files get per-row
// feed checks; everything else is scanned as text.
func CheckFile(path string) []Finding {
	data, err := os.ReadFile(path)
	if err != nil {
		return []Finding{{Path: path, Detail: fmt.Sprintf("unreadable: %v", err)}}
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return checkFeed(path, data)
	}

	return checkText(path, data)
}

func checkDir(dir string) []Finding {
	var findings []Finding

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			findings = append(findings, Finding{Path: path, Detail: fmt.Sprintf("unreadable: %v", err)})

			return nil
		}

		if info.IsDir() {
			return nil
		}

		findings = append(findings, CheckFile(path)...)

		return nil
	})
	if err != nil {
		findings = append(findings, Finding{Path: dir, Detail: fmt.Sprintf("walking directory: %v", err)})
	}

	return findings
}

// checkText flags private address ranges in free-form content.
func checkText(path string, data []byte) []Finding {
	var findings []Finding

	if m := privateIPv4.Find(data); m != nil {
		findings = append(findings, Finding{
			Path:   path,
			Detail: fmt.Sprintf("private IPv4 address %q", string(m)),
		})
	}

	return findings
}

// checkFeed applies per-row indicator checks to a status feed. Parse
// failures are findings, not errors: an unparseable candidate cannot be
// proven safe.
func checkFeed(path string, data []byte) []Finding {
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return []Finding{{Path: path, Detail: fmt.Sprintf("invalid JSON feed: %v", err)}}
	}

	var findings []Finding

	add := func(row int, format string, args ...any) {
		findings = append(findings, Finding{
			Path:   path,
			Detail: fmt.Sprintf("row %d: %s", row, fmt.Sprintf(format, args...)),
		})
	}

	for i, row := range rows {
		rowJSON, err := json.Marshal(row)
		if err == nil {
			if m := privateIPv4.Find(rowJSON); m != nil {
				add(i, "private IPv4 address %q", string(m))
			}
		}

		for _, key := range []string{"server_ip", "gateway_ip"} {
			v := stringField(row, key)
			if v != "" && !testNetIPv4.MatchString(v) {
				add(i, "%s %q is not a TEST-NET placeholder", key, v)
			}
		}

		if v := stringField(row, "site"); v != "" && !siteToken.MatchString(v) {
			add(i, "site %q is not a generic token", v)
		}

		if v := stringField(row, "dc_code"); v != "" && !dcCode.MatchString(v) {
			add(i, "dc_code %q is not a generic token", v)
		}

		if v := stringField(row, "dc_name"); v != "" && !dcName.MatchString(v) {
			add(i, "dc_name %q is not a generic name", v)
		}

		for _, key := range []string{"latitude", "longitude"} {
			raw, ok := row[key]
			if !ok {
				continue
			}

			token := strings.TrimSpace(string(raw))
			if token == "" || token == "null" {
				continue
			}

			if !coarseCoord.MatchString(token) {
				add(i, "%s %s exceeds the allowed coordinate granularity", key, token)
			}
		}
	}

	return findings
}

func stringField(row map[string]json.RawMessage, key string) string {
	raw, ok := row[key]
	if !ok {
		return ""
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}

	return v
}
