package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Set maps a resource name to the actions held on it.
type Set map[string][]Action

// Has reports whether the set grants action on resource.
func (s Set) Has(resource string, action Action) bool {
	for _, a := range s[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// Resources returns the resource names in lexical order.
func (s Set) Resources() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Pairs flattens the set, resources sorted and actions in canonical order.
func (s Set) Pairs() []Pair {
	var out []Pair
	for _, r := range s.Resources() {
		actions := append([]Action(nil), s[r]...)
		SortCanonical(actions)
		for _, a := range actions {
			out = append(out, Pair{Resource: r, Action: a})
		}
	}
	return out
}

// Clone returns a deep copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for r, actions := range s {
		out[r] = append([]Action(nil), actions...)
	}
	return out
}

// FromPairs builds a set out of a flat list of pairs.
func FromPairs(pairs []Pair) Set {
	s := Set{}
	for _, p := range pairs {
		s[p.Resource] = append(s[p.Resource], p.Action)
	}
	return Merge([]Set{s})
}

// Pair names a single (resource, action) permission.
type Pair struct {
	Resource string
	Action   Action
}

// P is shorthand for building a Pair.
func P(resource string, action Action) Pair {
	return Pair{Resource: resource, Action: action}
}

func (p Pair) String() string { return p.Resource + ":" + string(p.Action) }

// MarshalJSON renders the pair as {"RESOURCE":"action"}.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Action{p.Resource: p.Action})
}

// UnmarshalJSON accepts the single-key object produced by MarshalJSON.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var m map[string]Action
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return errors.New("permission: pair must have exactly one resource")
	}
	for r, a := range m {
		p.Resource, p.Action = r, a
	}
	return nil
}

// Merge unions per-group sets into one effective set. Actions are
// deduplicated and ordered canonically; unknown actions and resources
// left without any action are dropped. Inputs are not modified.
func Merge(sets []Set) Set {
	seen := map[string]map[Action]struct{}{}
	for _, s := range sets {
		for r, actions := range s {
			for _, a := range actions {
				if !a.Valid() {
					continue
				}
				if seen[r] == nil {
					seen[r] = map[Action]struct{}{}
				}
				seen[r][a] = struct{}{}
			}
		}
	}
	out := make(Set, len(seen))
	for r, actions := range seen {
		list := make([]Action, 0, len(actions))
		for a := range actions {
			list = append(list, a)
		}
		SortCanonical(list)
		out[r] = list
	}
	return out
}

// Result is the outcome of an evaluation. On failure Missing lists the
// pairs to report back to the caller.
type Result struct {
	OK      bool
	Missing []Pair
}

// Err converts a failed result into an error; nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("permission: missing %d permission(s)", len(r.Missing))
}

// HasAll succeeds when every required pair is held. Missing contains
// exactly the unmet pairs, in request order.
func HasAll(effective Set, required []Pair) Result {
	var missing []Pair
	for _, p := range required {
		if !effective.Has(p.Resource, p.Action) {
			missing = append(missing, p)
		}
	}
	return Result{OK: len(missing) == 0, Missing: missing}
}

// HasAny succeeds on the first held pair. On failure Missing is the whole
// required list. An empty requirement never succeeds.
func HasAny(effective Set, required []Pair) Result {
	for _, p := range required {
		if effective.Has(p.Resource, p.Action) {
			return Result{OK: true}
		}
	}
	return Result{Missing: append([]Pair(nil), required...)}
}
