package arena

import (
	"fmt"
	"sort"
)

// Template names a replicated entity prefab.
type Template string

const (
	// PlayerTemplate is the default avatar prefab.
	PlayerTemplate Template = "player"
	// CharacterTemplate is the default controllable character prefab.
	CharacterTemplate Template = "character"
)

// TemplateFunc returns fresh component pointers for one instance of a template.
type TemplateFunc func() []any

// Templates maps template names to the components they instantiate.
type Templates struct {
	funcs map[Template]TemplateFunc
}

// NewTemplates creates a registry holding the default player and character templates.
func NewTemplates() *Templates {
	t := &Templates{funcs: make(map[Template]TemplateFunc)}
	t.Register(PlayerTemplate, func() []any {
		return []any{&Avatar{}}
	})
	t.Register(CharacterTemplate, func() []any {
		return []any{&Character{}, &Transform{}}
	})
	return t
}

// Register adds or replaces a template.
func (t *Templates) Register(name Template, fn TemplateFunc) {
	t.funcs[name] = fn
}

// Has reports whether name is registered.
func (t *Templates) Has(name Template) bool {
	_, ok := t.funcs[name]
	return ok
}

// Names returns the registered template names, sorted.
func (t *Templates) Names() []Template {
	names := make([]Template, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// instantiate creates an entity carrying Ghost plus the template components.
func (t *Templates) instantiate(w *World, name Template) Entity {
	fn, ok := t.funcs[name]
	if !ok {
		panic(fmt.Sprintf("arena: unknown template %q", name))
	}
	e := w.Create()
	Add(w, e, &Ghost{Template: name})
	for _, c := range fn() {
		w.addAny(e, c)
	}
	return e
}
