// Package facts gathers environmental attributes of the audited host
// that gate rule applicability: OS identity, version, lineage.
package facts

import (
	"os"
	"strings"
)

// OSInfo is the normalized view of /etc/os-release.
type OSInfo struct {
	ID         string   `json:"id"`
	VersionID  string   `json:"version_id"`
	Name       string   `json:"name"`
	PrettyName string   `json:"pretty_name"`
	IDLike     []string `json:"id_like"`
	Raw        map[string]string
}

// Facts is the read-only snapshot used for condition evaluation and
// variable path templating for one run.
type Facts struct {
	OS OSInfo
}

const osReleasePath = "/etc/os-release"

// Collect reads host facts. A missing or unreadable os-release yields
// empty facts, not an error; rules gated on OS identity then skip.
func Collect() Facts {
	return Facts{OS: Normalize(ReadOSRelease(osReleasePath))}
}

// ReadOSRelease parses a KEY=VALUE file like /etc/os-release. Returns
// an empty map when the file cannot be read.
func ReadOSRelease(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]string{}
	}
	return ParseOSRelease(string(data))
}

// ParseOSRelease parses os-release content, for remote hosts where the
// file arrives over the transport instead of the local filesystem.
func ParseOSRelease(content string) map[string]string {
	out := make(map[string]string)
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"`)
		out[key] = value
	}
	return out
}

// Normalize lowers and tokenizes the raw os-release fields.
func Normalize(raw map[string]string) OSInfo {
	var like []string
	for _, token := range strings.Fields(raw["ID_LIKE"]) {
		like = append(like, strings.ToLower(token))
	}
	return OSInfo{
		ID:         strings.ToLower(raw["ID"]),
		VersionID:  raw["VERSION_ID"],
		Name:       raw["NAME"],
		PrettyName: raw["PRETTY_NAME"],
		IDLike:     like,
		Raw:        raw,
	}
}

// Family maps the OS onto the coarse profile families the stock
// profiles are organized by.
func (o OSInfo) Family() string {
	like := strings.Join(o.IDLike, " ")
	switch {
	case strings.Contains(o.ID, "astra") || strings.Contains(like, "astra"):
		return "astra"
	case strings.Contains(o.ID, "alt"):
		return "alt"
	case strings.Contains(o.ID, "centos") || strings.Contains(like, "rhel"):
		return "centos"
	case strings.Contains(like, "debian") || strings.Contains(o.ID, "ubuntu") || o.ID == "debian":
		return "debian"
	}
	return "unknown"
}

// Map flattens the info for report serialization.
func (o OSInfo) Map() map[string]string {
	return map[string]string{
		"id":          o.ID,
		"version_id":  o.VersionID,
		"name":        o.Name,
		"pretty_name": o.PrettyName,
		"id_like":     strings.Join(o.IDLike, " "),
	}
}
