/*
Package hostname converts member display names into DNS labels and makes those labels
unique within a zone.

Every member is always reachable as "zt-<memberid>". Members with a display name are also
given the sanitized form of that name. When two members sanitize to the same label the
member with the lowest ID keeps the plain label and the others have a short suffix
derived from a SipHash of their ID appended. The suffix is lengthened until it is unique
so the outcome only depends on the set of members, never on fetch order.
*/
package hostname

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/dchest/siphash"
)

const (
	maxLabel     = 63
	minSuffix    = 4 // Hex digits
	maxSuffix    = 16
	memberPrefix = "zt-"

	// Fixed keys keep suffixes stable across restarts.
	k0 uint64 = 0x7a65726f6e736400 // "zeronsd\0"
	k1 uint64 = 0x686f73746e616d65 // "hostname"
)

// Member is the subset of a network member needed to name it.
type Member struct {
	ID   string
	Name string // Display name, possibly empty
}

// Names is the outcome of Assign for one member.
type Names struct {
	ID   string // zt-<memberid>
	Name string // Sanitized and de-duplicated display name, possibly empty
}

// Primary returns the name used as a PTR target: the display name if present, otherwise
// the ID name.
func (t Names) Primary() string {
	if len(t.Name) > 0 {
		return t.Name
	}

	return t.ID
}

// IDName returns the label always assigned to a member.
func IDName(memberID string) string {
	return memberPrefix + strings.ToLower(memberID)
}

// Sanitize converts a display name into a single DNS label. Letters are lowered, any
// run of characters other than letters and digits becomes one "-" and leading or trailing
// "-" are removed. The result is truncated to 63 octets and may be empty.
func Sanitize(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			dash = false
			sb.WriteRune(r)
			continue
		}
		dash = true
	}

	s := sb.String()
	if len(s) > maxLabel {
		s = strings.TrimRight(s[:maxLabel], "-")
	}

	return s
}

// Assign returns the names of every member keyed by member ID. Display names which
// collide with each other or with any ID name are disambiguated with a suffix.
func Assign(members []Member) map[string]Names {
	sorted := append([]Member{}, members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	ret := make(map[string]Names, len(sorted))
	taken := make(map[string]bool, len(sorted)*2)
	for _, m := range sorted {
		id := IDName(m.ID)
		ret[m.ID] = Names{ID: id}
		taken[id] = true
	}

	for _, m := range sorted {
		base := Sanitize(m.Name)
		if len(base) == 0 {
			continue
		}
		name := base
		if taken[name] {
			name = uniqueName(base, m.ID, taken)
		}
		taken[name] = true
		n := ret[m.ID]
		n.Name = name
		ret[m.ID] = n
	}

	return ret
}

// uniqueName appends progressively longer hex prefixes of the member's hash to base. In
// the vanishingly unlikely event that all lengths collide a counter is appended.
func uniqueName(base, memberID string, taken map[string]bool) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], siphash.Hash(k0, k1, []byte(memberID)))
	hex := fmt.Sprintf("%x", b)

	for l := minSuffix; l <= maxSuffix; l++ {
		if name := withSuffix(base, hex[:l]); !taken[name] {
			return name
		}
	}
	for ix := 2; ; ix++ {
		if name := withSuffix(base, fmt.Sprintf("%s-%d", hex, ix)); !taken[name] {
			return name
		}
	}
}

// withSuffix joins base and suffix, trimming base so the label stays within 63 octets.
func withSuffix(base, suffix string) string {
	if room := maxLabel - len(suffix) - 1; len(base) > room {
		base = strings.TrimRight(base[:room], "-")
	}

	return base + "-" + suffix
}
