/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clocktower

import (
	"math/rand/v2"
	"slices"
	"strings"
)

const (
	MaxPoolSize      = 20
	MaxSelectedRoles = 25
)

// Shuffle returns a uniformly permuted copy of roles.
func Shuffle(roles []string) []string {
	out := slices.Clone(roles)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// RolePool returns exactly clamp(count, 1, MaxPoolSize) role names drawn from
// source. A source at least that long is sampled without replacement; a
// shorter one is shuffled and concatenated until long enough, so every
// source role appears at least count/len(source) times. An empty source
// falls back to the default catalog.
func RolePool(count int, source []string) []string {
	count = min(max(count, 1), MaxPoolSize)

	if len(source) == 0 {
		source = DefaultCatalog().Names
	}

	if len(source) >= count {
		return slices.Clip(Shuffle(source)[:count])
	}

	out := make([]string, 0, count+len(source))
	for len(out) < count {
		out = append(out, Shuffle(source)...)
	}

	return slices.Clip(out[:count])
}

// SanitizeRoles trims every name, drops empty ones and caps the result at
// MaxSelectedRoles entries. Duplicates are kept.
func SanitizeRoles(roles []string) []string {
	out := make([]string, 0, min(len(roles), MaxSelectedRoles))
	for _, r := range roles {
		if len(out) == MaxSelectedRoles {
			break
		}
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
