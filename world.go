package arena

// Entity identifies an object in a World.
// The zero value is the null entity. Negative values are temporary handles
// issued by a CommandBuffer and are only meaningful until playback.
type Entity int64

// Null is the entity that refers to nothing.
const Null Entity = 0

// IsTemporary reports whether e is a command buffer handle not yet played back.
func (e Entity) IsTemporary() bool {
	return e < 0
}

// entityRecord stores the components of one entity.
type entityRecord struct {
	mask       Bitmask
	components map[ComponentID]any
}

// World is an in-process entity store.
//
// A World is not safe for concurrent use. The server mutates it only from
// its tick goroutine.
type World struct {
	next     Entity
	entities map[Entity]*entityRecord

	// order holds entities in creation order; dead entries are compacted lazily.
	order []Entity
	dead  int
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		entities: make(map[Entity]*entityRecord),
	}
}

// Create allocates a new entity with no components.
func (w *World) Create() Entity {
	w.next++
	e := w.next
	w.entities[e] = &entityRecord{components: make(map[ComponentID]any)}
	w.order = append(w.order, e)
	return e
}

// Alive reports whether e refers to a live entity.
func (w *World) Alive(e Entity) bool {
	_, ok := w.entities[e]
	return ok
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return len(w.entities)
}

// Destroy removes an entity and every entity in its LinkedEntities group.
// Destroying a dead entity is a no-op.
func (w *World) Destroy(e Entity) {
	rec := w.entities[e]
	if rec == nil {
		return
	}
	delete(w.entities, e)
	w.dead++

	if c, ok := rec.components[componentID[LinkedEntities]()]; ok {
		for _, linked := range c.(*LinkedEntities).Entities {
			if linked != e {
				w.Destroy(linked)
			}
		}
	}

	if w.dead > 64 && w.dead > len(w.order)/2 {
		w.compact()
	}
}

// Components returns the components attached to e.
// The order of the returned slice is unspecified.
func (w *World) Components(e Entity) []any {
	rec := w.entities[e]
	if rec == nil {
		return nil
	}
	out := make([]any, 0, len(rec.components))
	for _, c := range rec.components {
		out = append(out, c)
	}
	return out
}

func (w *World) addComponent(e Entity, id ComponentID, c any) {
	rec := w.entities[e]
	if rec == nil {
		return
	}
	rec.components[id] = c
	rec.mask.Set(id)
}

// addAny attaches a component held in an interface. The value must be a pointer.
func (w *World) addAny(e Entity, c any) {
	w.addComponent(e, componentIDOf(c), c)
}

func (w *World) removeComponent(e Entity, id ComponentID) {
	rec := w.entities[e]
	if rec == nil {
		return
	}
	delete(rec.components, id)
	rec.mask.Clear(id)
}

func (w *World) query(mask Bitmask) []Entity {
	var out []Entity
	for _, e := range w.order {
		rec := w.entities[e]
		if rec == nil {
			continue
		}
		if rec.mask.ContainsAll(mask) {
			out = append(out, e)
		}
	}
	return out
}

// compact drops destroyed entities from the creation-order index.
func (w *World) compact() {
	write := 0
	for _, e := range w.order {
		if _, ok := w.entities[e]; ok {
			w.order[write] = e
			write++
		}
	}
	clear(w.order[write:])
	w.order = w.order[:write]
	w.dead = 0
}
