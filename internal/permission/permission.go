// Package permission encodes, merges and evaluates resource permissions.
//
// A permission is a (resource, action) pair. Actions are stored on the
// catalog side as a bitmask: read=1, create=2, update=4, delete=8.
package permission

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Action is one of the four CRUD verbs a permission can grant.
type Action string

const (
	Read   Action = "read"
	Create Action = "create"
	Update Action = "update"
	Delete Action = "delete"
)

// MaxValue is the largest valid bitmask (all four actions).
const MaxValue = 15

// ErrNotSequence is returned by EncodeValue when the input is not a list.
var ErrNotSequence = errors.New("permission: value is not a sequence of action names")

// bit order is the encoding order; canonical order is the presentation order.
var (
	bitOrder  = []Action{Read, Create, Update, Delete}
	canonical = map[Action]int{Read: 0, Update: 1, Create: 2, Delete: 3}
)

// Actions returns all known actions in bit order.
func Actions() []Action {
	out := make([]Action, len(bitOrder))
	copy(out, bitOrder)
	return out
}

// Bit returns the mask bit of a known action, or 0.
func (a Action) Bit() int {
	for i, known := range bitOrder {
		if known == a {
			return 1 << i
		}
	}
	return 0
}

// Valid reports whether a is one of the four known actions.
func (a Action) Valid() bool { return a.Bit() != 0 }

// ParseAction normalises name and reports whether it names a known action.
func ParseAction(name string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(name)))
	return a, a.Valid()
}

// Decode expands a bitmask into its actions in ascending bit order.
// Values outside 0..15 decode to an empty list.
func Decode(value int) []Action {
	out := []Action{}
	if value <= 0 || value > MaxValue {
		return out
	}
	for i, a := range bitOrder {
		if value&(1<<i) != 0 {
			out = append(out, a)
		}
	}
	return out
}

// DecodeString decodes a textual bitmask; anything non-numeric is empty.
func DecodeString(value string) []Action {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return []Action{}
	}
	return Decode(n)
}

// Encode sums the bits of the named actions. Names must match exactly;
// duplicates count once and anything else is ignored.
func Encode(names []string) int {
	mask := 0
	for _, name := range names {
		mask |= Action(name).Bit()
	}
	return mask
}

// EncodeValue encodes a decoded JSON value. Only lists are accepted;
// non-string entries inside a list are ignored like unknown names.
func EncodeValue(v any) (int, error) {
	switch t := v.(type) {
	case []string:
		return Encode(t), nil
	case []Action:
		names := make([]string, 0, len(t))
		for _, a := range t {
			names = append(names, string(a))
		}
		return Encode(names), nil
	case []any:
		names := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return Encode(names), nil
	default:
		return 0, ErrNotSequence
	}
}

// SortCanonical orders actions as read, update, create, delete.
func SortCanonical(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return canonical[actions[i]] < canonical[actions[j]]
	})
}
