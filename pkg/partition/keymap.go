package partition

import (
	"slices"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Wildcard selects the key for labels without an entry of their own.
const Wildcard = "*"

// KeyMap maps label strings ("3", "1:3", "0/4") to the variables partitions
// are split on at that label.
type KeyMap map[string][]string

// For returns the key at l, falling back to the wildcard entry.
func (m KeyMap) For(l asm.Label) []string {
	if key, ok := m[l.String()]; ok {
		return slices.Clone(key)
	}
	if key, ok := m[Wildcard]; ok {
		return slices.Clone(key)
	}
	return nil
}
