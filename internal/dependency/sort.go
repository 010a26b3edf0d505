// Package dependency computes dependency-respecting orderings over a
// Solution's templates: the build order used at creation time and the
// reverse delete order used at teardown.
package dependency

import (
	"errors"
	"fmt"

	"github.com/vk/solkit/internal/solution"
)

// ErrCyclicDependency is returned when the template graph contains a
// cycle, including a template that depends on itself. No partial ordering
// is produced.
var ErrCyclicDependency = errors.New("cyclic dependency")

// SortTemplates returns the ids of the given templates ordered so that
// every template's dependencies appear before it. The traversal is
// deterministic: templates are visited in slice order and dependency
// lists in their listed order. Dependency ids that name no template in
// the input are skipped; they impose no ordering constraint.
func SortTemplates(templates []solution.ItemTemplate) ([]string, error) {
	byID := make(map[string]*solution.ItemTemplate, len(templates))
	for i := range templates {
		byID[templates[i].ItemID] = &templates[i]
	}

	visited := make(map[string]bool, len(templates))
	onStack := make(map[string]bool)
	order := make([]string, 0, len(templates))

	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		if onStack[id] {
			// Back-edge: id is already on the active recursion stack.
			return fmt.Errorf("%w involving item %q", ErrCyclicDependency, id)
		}
		onStack[id] = true
		for _, dep := range byID[id].Dependencies {
			if _, known := byID[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(onStack, id)
		visited[id] = true
		order = append(order, id)
		return nil
	}

	for i := range templates {
		if err := visit(templates[i].ItemID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Reverse returns a new slice with the given ids in reverse order. The
// reverse of a build order is the delete order.
func Reverse(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

// BuildOrder returns the creation order for a Solution's templates. For
// schema versions that persist templates in build order the array order
// is used directly; legacy payloads are re-sorted.
func BuildOrder(sol *solution.Solution, schemaVersion int) ([]string, error) {
	if schemaVersion >= 1 {
		ids := make([]string, len(sol.Templates))
		for i, t := range sol.Templates {
			ids[i] = t.ItemID
		}
		return ids, nil
	}
	return SortTemplates(sol.Templates)
}
