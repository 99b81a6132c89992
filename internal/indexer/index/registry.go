package index

import (
	"fmt"
	"iter"
)

// Registry maps document ids to file names. Ids are handed out by Add in
// call order starting at 1 and are never reused.
type Registry struct {
	names []string
}

func NewRegistry() *Registry {
	return &Registry{names: make([]string, 0, 64)}
}

// Add registers fileName and returns its document id.
func (r *Registry) Add(fileName string) int {
	r.names = append(r.names, fileName)
	return len(r.names)
}

// FileName returns the file name registered under id.
func (r *Registry) FileName(id int) (string, bool) {
	if id < 1 || id > len(r.names) {
		return "", false
	}
	return r.names[id-1], true
}

func (r *Registry) Len() int {
	return len(r.names)
}

// All yields (id, fileName) pairs in ascending id order.
func (r *Registry) All() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i, name := range r.names {
			if !yield(i+1, name) {
				return
			}
		}
	}
}

// validate checks that file names are unique, which together with dense
// ids makes the mapping bijective.
func (r *Registry) validate() error {
	seen := make(map[string]int, len(r.names))
	for i, name := range r.names {
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("file name %q registered for documents %d and %d", name, prev, i+1)
		}
		seen[name] = i + 1
	}
	return nil
}
