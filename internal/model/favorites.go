package model

// FavoriteSet is a set of session names that remembers insertion order.
// The order is what the favorites filter displays.
type FavoriteSet struct {
	names []string
	index map[string]int
}

// NewFavoriteSet builds a set from names, dropping blanks and duplicates.
func NewFavoriteSet(names ...string) FavoriteSet {
	var f FavoriteSet
	for _, n := range names {
		f.Add(n)
	}
	return f
}

// Has reports whether name is a favorite.
func (f FavoriteSet) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Len returns the number of favorites.
func (f FavoriteSet) Len() int {
	return len(f.names)
}

// Names returns the favorites in order. The slice is a copy.
func (f FavoriteSet) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Add appends name if it is not already present. Returns false for blanks and duplicates.
func (f *FavoriteSet) Add(name string) bool {
	if name == "" || f.Has(name) {
		return false
	}
	if f.index == nil {
		f.index = make(map[string]int)
	}
	f.index[name] = len(f.names)
	f.names = append(f.names, name)
	return true
}

// Remove deletes name. Returns false if it was not present.
func (f *FavoriteSet) Remove(name string) bool {
	i, ok := f.index[name]
	if !ok {
		return false
	}
	f.names = append(f.names[:i], f.names[i+1:]...)
	f.reindex()
	return true
}

// Toggle flips membership of name and returns the new membership.
func (f *FavoriteSet) Toggle(name string) bool {
	if f.Remove(name) {
		return false
	}
	f.Add(name)
	return true
}

// Rename moves the favorite old to new, keeping its position.
// If new is already a favorite, old is simply dropped so no duplicate appears.
// Returns false if old was not a favorite.
func (f *FavoriteSet) Rename(old, new string) bool {
	i, ok := f.index[old]
	if !ok {
		return false
	}
	if f.Has(new) || new == "" {
		f.Remove(old)
		return true
	}
	f.names[i] = new
	f.reindex()
	return true
}

func (f *FavoriteSet) reindex() {
	f.index = make(map[string]int, len(f.names))
	for i, n := range f.names {
		f.index[n] = i
	}
}
