package detect

import "github.com/l1jgo/worldgrid/internal/core/ecs"

// Predicate decides whether observer may detect (or drop) target. It is
// evaluated once per candidate per update and never cached.
type Predicate interface {
	Evaluate(observer, target ecs.EntityID) (bool, error)
}

// PredicateFunc adapts a function to Predicate.
type PredicateFunc func(observer, target ecs.EntityID) (bool, error)

func (f PredicateFunc) Evaluate(observer, target ecs.EntityID) (bool, error) {
	return f(observer, target)
}

type always struct{}

func (always) Evaluate(_, _ ecs.EntityID) (bool, error) { return true, nil }

// Always accepts every pair.
var Always Predicate = always{}

// KindFunc resolves the kind tag of an entity ("" if it has none).
type KindFunc func(id ecs.EntityID) string

// KindFilter accepts targets whose kind is in Kinds, or, when Invert is
// set, targets whose kind is not.
type KindFilter struct {
	Kinds  map[string]struct{}
	Invert bool
	KindOf KindFunc
}

// AllowKinds builds a filter accepting only the listed kinds.
func AllowKinds(kindOf KindFunc, kinds ...string) *KindFilter {
	return newKindFilter(kindOf, false, kinds)
}

// DenyKinds builds a filter accepting everything except the listed kinds.
func DenyKinds(kindOf KindFunc, kinds ...string) *KindFilter {
	return newKindFilter(kindOf, true, kinds)
}

func newKindFilter(kindOf KindFunc, invert bool, kinds []string) *KindFilter {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return &KindFilter{Kinds: set, Invert: invert, KindOf: kindOf}
}

func (f *KindFilter) Evaluate(_, target ecs.EntityID) (bool, error) {
	_, listed := f.Kinds[f.KindOf(target)]
	return listed != f.Invert, nil
}
