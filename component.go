package arena

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// ComponentID is a unique identifier for a component type.
// Valid IDs range from 0 to 254.
type ComponentID uint8

// MaxComponents is the maximum number of component types supported.
const MaxComponents = 255

// componentRegistry manages component type registration with lock-free reads.
// Component IDs are assigned sequentially and cached for fast lookup.
type componentRegistry struct {
	// types maps reflect.Type to ComponentID.
	// Components are registered once but looked up on every access.
	types sync.Map // map[reflect.Type]ComponentID

	// names are written once during registration and read-only afterward
	names [MaxComponents]string

	nextID atomic.Uint32
	arrMu  sync.RWMutex
}

// globalRegistry is the process-wide component registry.
// Component IDs are shared by every World so masks stay comparable.
var globalRegistry = &componentRegistry{}

// registerComponentType registers a component type and returns its ID.
func registerComponentType(t reflect.Type) ComponentID {
	if id, ok := globalRegistry.types.Load(t); ok {
		return id.(ComponentID)
	}

	next := globalRegistry.nextID.Add(1) - 1
	if next >= MaxComponents {
		panic(fmt.Sprintf("arena: component limit exceeded (max %d types)", MaxComponents))
	}
	newID := ComponentID(next)

	// LoadOrStore ensures only one goroutine wins if multiple try simultaneously.
	actual, loaded := globalRegistry.types.LoadOrStore(t, newID)
	if loaded {
		return actual.(ComponentID)
	}

	globalRegistry.arrMu.Lock()
	globalRegistry.names[newID] = t.Name()
	globalRegistry.arrMu.Unlock()

	return newID
}

// componentID returns the ComponentID for type T, registering it if needed.
func componentID[T any]() ComponentID {
	return registerComponentType(reflect.TypeOf((*T)(nil)).Elem())
}

// componentIDOf returns the ComponentID for a component pointer held in an interface.
func componentIDOf(c any) ComponentID {
	t := reflect.TypeOf(c)
	if t == nil || t.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("arena: component must be a non-nil pointer, got %T", c))
	}
	return registerComponentType(t.Elem())
}

// ComponentName returns the name of the component type with the given ID.
func ComponentName(id ComponentID) string {
	globalRegistry.arrMu.RLock()
	defer globalRegistry.arrMu.RUnlock()
	return globalRegistry.names[id]
}

// Add attaches a component to an entity, replacing any component of the same type.
// Adding to a dead entity is a no-op.
func Add[T any](w *World, e Entity, component *T) {
	if w == nil || component == nil {
		return
	}
	w.addComponent(e, componentID[T](), component)
}

// Get retrieves a component from an entity.
// Returns nil if the entity is dead or does not carry the component.
func Get[T any](w *World, e Entity) *T {
	if w == nil {
		return nil
	}
	rec := w.entities[e]
	if rec == nil {
		return nil
	}
	c, ok := rec.components[componentID[T]()]
	if !ok {
		return nil
	}
	return c.(*T)
}

// Has checks if a component type is present on the entity.
func Has[T any](w *World, e Entity) bool {
	if w == nil {
		return false
	}
	rec := w.entities[e]
	if rec == nil {
		return false
	}
	return rec.mask.Has(componentID[T]())
}

// Remove detaches a component from an entity.
func Remove[T any](w *World, e Entity) {
	if w == nil {
		return
	}
	w.removeComponent(e, componentID[T]())
}

// Query returns every live entity carrying component T, in creation order.
func Query[T any](w *World) []Entity {
	if w == nil {
		return nil
	}
	var mask Bitmask
	mask.Set(componentID[T]())
	return w.query(mask)
}

// Query2 returns every live entity carrying both A and B, in creation order.
func Query2[A, B any](w *World) []Entity {
	if w == nil {
		return nil
	}
	var mask Bitmask
	mask.Set(componentID[A]())
	mask.Set(componentID[B]())
	return w.query(mask)
}

// entityRemapper is implemented by components holding entity references that
// must be rewritten when a command buffer resolves temporary handles.
type entityRemapper interface {
	remapEntities(resolve func(Entity) Entity)
}
