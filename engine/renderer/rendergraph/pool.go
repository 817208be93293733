package rendergraph

// pool is an append-only arena of physical objects grouped by cache key.
// Indices into the arena stay valid for the lifetime of the cache.
type pool[K comparable, V any] struct {
	objects []V
	slots   map[K][]int
}

func newPool[K comparable, V any]() pool[K, V] {
	return pool[K, V]{slots: make(map[K][]int)}
}

// ensure makes sure at least n objects exist for key, calling create for the
// missing ones. It returns the arena indices for key and how many objects
// were created.
func (p *pool[K, V]) ensure(key K, n int, create func() (V, error)) ([]int, int, error) {
	created := 0
	for len(p.slots[key]) < n {
		obj, err := create()
		if err != nil {
			return nil, created, err
		}
		p.slots[key] = append(p.slots[key], len(p.objects))
		p.objects = append(p.objects, obj)
		created++
	}
	return p.slots[key][:n], created, nil
}

func (p *pool[K, V]) get(index int) V {
	return p.objects[index]
}

func (p *pool[K, V]) len() int {
	return len(p.objects)
}

// drain hands every object to fn, newest first, and empties the pool.
func (p *pool[K, V]) drain(fn func(V)) {
	for i := len(p.objects) - 1; i >= 0; i-- {
		fn(p.objects[i])
	}
	p.objects = nil
	p.slots = make(map[K][]int)
}
