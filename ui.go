package arena

import (
	"reflect"
	"sync"
)

// UIKey names a UI element.
type UIKey string

// SearchingPopup shows progress while a game is starting. Its payload is a
// status line.
const SearchingPopup UIKey = "searching-popup"

// UIElement is a UI element receiving payloads of type T.
type UIElement[T any] interface {
	Show()
	Hide()
	UpdateData(data T)
}

type uiEntry struct {
	element any
}

type uiSlot struct {
	key UIKey
	typ reflect.Type
}

// UIRegistry routes UI calls to elements registered under a key and a
// payload type. The same key may be registered once per payload type.
// A nil registry accepts every call and does nothing.
type UIRegistry struct {
	mu       sync.RWMutex
	elements map[uiSlot]*uiEntry
}

// NewUIRegistry creates an empty registry.
func NewUIRegistry() *UIRegistry {
	return &UIRegistry{elements: make(map[uiSlot]*uiEntry)}
}

// RegisterUI registers el under key for payloads of type T, replacing any
// earlier element. The returned function unregisters it.
func RegisterUI[T any](r *UIRegistry, key UIKey, el UIElement[T]) func() {
	slot := uiSlot{key: key, typ: reflect.TypeFor[T]()}

	entry := &uiEntry{element: el}

	r.mu.Lock()
	r.elements[slot] = entry
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if r.elements[slot] == entry {
			delete(r.elements, slot)
		}
		r.mu.Unlock()
	}
}

func lookupUI[T any](r *UIRegistry, key UIKey) (UIElement[T], bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	entry, ok := r.elements[uiSlot{key: key, typ: reflect.TypeFor[T]()}]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.element.(UIElement[T]), true
}

// ShowUI shows the element registered under key for T.
// It reports whether such an element exists.
func ShowUI[T any](r *UIRegistry, key UIKey) bool {
	el, ok := lookupUI[T](r, key)
	if ok {
		el.Show()
	}
	return ok
}

// HideUI hides the element registered under key for T.
func HideUI[T any](r *UIRegistry, key UIKey) bool {
	el, ok := lookupUI[T](r, key)
	if ok {
		el.Hide()
	}
	return ok
}

// UpdateUI passes data to the element registered under key for T.
func UpdateUI[T any](r *UIRegistry, key UIKey, data T) bool {
	el, ok := lookupUI[T](r, key)
	if ok {
		el.UpdateData(data)
	}
	return ok
}
