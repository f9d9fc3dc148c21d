// Package util holds small helpers shared across hookrun packages.
package util

import "slices"

// ListContainsElement returns true if the given list contains the given element.
func ListContainsElement[S ~[]E, E comparable](list S, element E) bool {
	return slices.Contains(list, element)
}

// RemoveElementFromList returns a copy of the given list with all instances of
// the given element removed.
func RemoveElementFromList[S ~[]E, E comparable](list S, element E) S {
	out := make(S, 0, len(list))

	for _, item := range list {
		if item != element {
			out = append(out, item)
		}
	}

	return out
}

// UnionStrings returns the union of the given string slices, de-duplicated,
// in sorted order so the result is stable regardless of input order.
func UnionStrings(lists ...[]string) []string {
	seen := map[string]struct{}{}
	out := []string{}

	for _, list := range lists {
		for _, item := range list {
			if _, ok := seen[item]; !ok {
				seen[item] = struct{}{}
				out = append(out, item)
			}
		}
	}

	slices.Sort(out)

	return out
}

// SortedKeys returns the keys of the given map in sorted order. Used to
// iterate maps deterministically.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}
