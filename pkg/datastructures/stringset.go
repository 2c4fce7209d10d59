// Copyright 2016 IBM Corporation
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package datastructures

// StringSet holds a set of unique strings. It is a bare map underneath,
// so callers may also range over it directly. Not safe for concurrent use.
type StringSet map[string]struct{}

// NewStringSet builds a set holding the given elements.
func NewStringSet(elements ...string) StringSet {
	set := make(StringSet, len(elements))
	for _, elem := range elements {
		set[elem] = struct{}{}
	}
	return set
}

// Add inserts s, reporting whether it was absent.
func (set StringSet) Add(s string) bool {
	if _, ok := set[s]; ok {
		return false
	}
	set[s] = struct{}{}
	return true
}

// Remove deletes s, reporting whether it was present.
func (set StringSet) Remove(s string) bool {
	if _, ok := set[s]; !ok {
		return false
	}
	delete(set, s)
	return true
}

// Exists reports whether s is in the set.
func (set StringSet) Exists(s string) bool {
	_, ok := set[s]
	return ok
}

// Elements lists the set contents in arbitrary order.
func (set StringSet) Elements() []string {
	elements := make([]string, 0, len(set))
	for elem := range set {
		elements = append(elements, elem)
	}
	return elements
}
