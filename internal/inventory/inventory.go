// Package inventory describes remote audit targets. It is a thin host
// catalog: groups with shared settings and per-host overrides. The
// discovery subsystem that populates inventories lives elsewhere.
package inventory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Host is one remote audit target.
type Host struct {
	Name           string            `yaml:"name,omitempty"`
	Address        string            `yaml:"address"`
	Port           int               `yaml:"port,omitempty"`
	User           string            `yaml:"user,omitempty"`
	KeyFile        string            `yaml:"key_file,omitempty"`
	Password       string            `yaml:"password,omitempty"`
	ConnectTimeout int               `yaml:"connect_timeout,omitempty"` // seconds
	Tags           []string          `yaml:"tags,omitempty"`
	Vars           map[string]string `yaml:"vars,omitempty"` // per-host variable overrides
	Disabled       bool              `yaml:"disabled,omitempty"`
}

func (h Host) PortOrDefault() int {
	if h.Port > 0 {
		return h.Port
	}
	return 22
}

func (h Host) UserOrDefault() string {
	if h.User != "" {
		return h.User
	}
	return "root"
}

// Label names the host in reports.
func (h Host) Label() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Address
}

// Group applies shared defaults to its hosts.
type Group struct {
	Vars  map[string]string `yaml:"vars,omitempty"`
	Hosts []Host            `yaml:"hosts"`
}

// Inventory is the whole target catalog.
type Inventory struct {
	Groups map[string]Group `yaml:"groups"`
}

// Load reads an inventory document. A missing file is fatal for
// remote mode, so the error is returned as-is for the caller to wrap.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("inventory %s: malformed yaml: %w", path, err)
	}
	return &inv, nil
}

// Select returns enabled hosts, optionally filtered by group name and
// tags (all requested tags must be present). Group vars merge under
// host vars.
func (inv *Inventory) Select(group string, tags []string) []Host {
	var out []Host
	for name, g := range inv.Groups {
		if group != "" && !strings.EqualFold(name, group) {
			continue
		}
		for _, h := range g.Hosts {
			if h.Disabled || !hasAllTags(h.Tags, tags) {
				continue
			}
			merged := make(map[string]string, len(g.Vars)+len(h.Vars))
			for k, v := range g.Vars {
				merged[k] = v
			}
			for k, v := range h.Vars {
				merged[k] = v
			}
			h.Vars = merged
			out = append(out, h)
		}
	}
	return out
}

// Find looks a host up by name or address across all groups.
func (inv *Inventory) Find(label string) (Host, bool) {
	for _, h := range inv.Select("", nil) {
		if strings.EqualFold(h.Name, label) || h.Address == label {
			return h, true
		}
	}
	return Host{}, false
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
