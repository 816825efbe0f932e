/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// DefaultSelectionSize is how many catalog roles a new session starts with
// when the host did not pick any.
const DefaultSelectionSize = 10

// RoleInfo is optional metadata for a role name.
type RoleInfo struct {
	Team        string `json:"team,omitempty"`
	Description string `json:"description,omitempty"`
}

// Catalog is the immutable list of known roles.
type Catalog struct {
	Names []string            `json:"roles"`
	Info  map[string]RoleInfo `json:"roleInfo"`
}

var defaultRoles = []struct {
	name string
	team string
}{
	{"Washerwoman", "Townsfolk"},
	{"Librarian", "Townsfolk"},
	{"Investigator", "Townsfolk"},
	{"Chef", "Townsfolk"},
	{"Empath", "Townsfolk"},
	{"Fortune Teller", "Townsfolk"},
	{"Undertaker", "Townsfolk"},
	{"Monk", "Townsfolk"},
	{"Ravenkeeper", "Townsfolk"},
	{"Slayer", "Townsfolk"},
	{"Soldier", "Townsfolk"},
	{"Mayor", "Townsfolk"},
	{"Poisoner", "Minion"},
	{"Spy", "Minion"},
	{"Scarlet Woman", "Minion"},
	{"Baron", "Minion"},
	{"Imp", "Demon"},
}

// DefaultCatalog returns the built-in 17 role catalog.
func DefaultCatalog() Catalog {
	c := Catalog{
		Names: make([]string, 0, len(defaultRoles)),
		Info:  make(map[string]RoleInfo, len(defaultRoles)),
	}
	for _, r := range defaultRoles {
		c.Names = append(c.Names, r.name)
		c.Info[r.name] = RoleInfo{Team: r.team}
	}
	return c
}

// Defaults returns a copy of the first n catalog names.
func (c Catalog) Defaults(n int) []string {
	n = min(max(n, 0), len(c.Names))
	return slices.Clone(c.Names[:n])
}

func (c Catalog) clone() Catalog {
	return Catalog{
		Names: slices.Clone(c.Names),
		Info:  maps.Clone(c.Info),
	}
}

// LoadCatalog reads a role catalog file with a top-level "roles" list.
// Entries are either a bare role name or a map with name, team and
// description keys. Any format viper understands is accepted.
//
// The returned catalog is always usable: when path is empty, unreadable or
// lists no roles, the default catalog is returned, along with an error
// describing why in the latter two cases.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return DefaultCatalog(), fmt.Errorf("read role catalog %s: %w", path, err)
	}

	entries, err := cast.ToSliceE(v.Get("roles"))
	if err != nil {
		return DefaultCatalog(), fmt.Errorf("parse role catalog %s: %w", path, err)
	}

	c := Catalog{Info: make(map[string]RoleInfo)}
	for _, entry := range entries {
		name, info := catalogEntry(entry)
		if name == "" {
			continue
		}
		if _, seen := c.Info[name]; seen {
			continue
		}
		c.Names = append(c.Names, name)
		c.Info[name] = info
	}

	if len(c.Names) == 0 {
		return DefaultCatalog(), fmt.Errorf("role catalog %s: %w", path, errors.New("no roles listed"))
	}

	return c, nil
}

func catalogEntry(entry any) (string, RoleInfo) {
	if s, ok := entry.(string); ok {
		return strings.TrimSpace(s), RoleInfo{}
	}

	m, err := cast.ToStringMapStringE(entry)
	if err != nil {
		return "", RoleInfo{}
	}

	return strings.TrimSpace(m["name"]), RoleInfo{
		Team:        strings.TrimSpace(m["team"]),
		Description: strings.TrimSpace(m["description"]),
	}
}
