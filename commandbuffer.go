package arena

import (
	"fmt"
)

type commandKind uint8

const (
	cmdCreate commandKind = iota
	cmdInstantiate
	cmdAddComponent
	cmdRemoveComponent
	cmdDestroy
	cmdAppendLinked
	cmdAppendOwnership
)

// command is one deferred structural change.
type command struct {
	kind      commandKind
	entity    Entity
	other     Entity
	template  Template
	component any
	id        ComponentID
	table     *OwnershipMap
	entry     OwnershipEntry
}

// CommandBuffer records structural world changes and applies them in one
// playback. Entities created through the buffer get temporary negative handles
// which may be used in later commands and inside components; playback rewrites
// them to the final entities.
//
// A CommandBuffer is not safe for concurrent use.
type CommandBuffer struct {
	world     *World
	templates *Templates
	commands  []command
	nextTemp  Entity
}

// NewCommandBuffer creates a buffer that plays back into w.
func NewCommandBuffer(w *World, templates *Templates) *CommandBuffer {
	return &CommandBuffer{
		world:     w,
		templates: templates,
	}
}

// Len returns the number of recorded commands.
func (b *CommandBuffer) Len() int {
	return len(b.commands)
}

func (b *CommandBuffer) temp() Entity {
	b.nextTemp--
	return b.nextTemp
}

// Create records the creation of an empty entity.
func (b *CommandBuffer) Create() Entity {
	e := b.temp()
	b.commands = append(b.commands, command{kind: cmdCreate, entity: e})
	return e
}

// Instantiate records the creation of an entity from a template.
func (b *CommandBuffer) Instantiate(t Template) Entity {
	e := b.temp()
	b.commands = append(b.commands, command{kind: cmdInstantiate, entity: e, template: t})
	return e
}

// AddComponent records attaching component to e. The value must be a pointer.
func (b *CommandBuffer) AddComponent(e Entity, component any) {
	b.commands = append(b.commands, command{kind: cmdAddComponent, entity: e, component: component})
}

// RemoveComponent records detaching component T from e.
func RemoveComponent[T any](b *CommandBuffer, e Entity) {
	b.commands = append(b.commands, command{kind: cmdRemoveComponent, entity: e, id: componentID[T]()})
}

// Destroy records the destruction of e and its linked group.
func (b *CommandBuffer) Destroy(e Entity) {
	b.commands = append(b.commands, command{kind: cmdDestroy, entity: e})
}

// AppendLinked records adding linked to the LinkedEntities group of owner.
func (b *CommandBuffer) AppendLinked(owner, linked Entity) {
	b.commands = append(b.commands, command{kind: cmdAppendLinked, entity: owner, other: linked})
}

// AppendOwnership records staging entry into table for the slot of target.
func (b *CommandBuffer) AppendOwnership(table *OwnershipMap, target ConnectionID, entry OwnershipEntry) {
	b.commands = append(b.commands, command{kind: cmdAppendOwnership, table: table, entry: entry, other: Entity(target)})
}

// Playback applies every recorded command in order and resets the buffer.
// It returns the number of commands applied.
func (b *CommandBuffer) Playback() int {
	if len(b.commands) == 0 {
		return 0
	}

	remap := make(map[Entity]Entity)
	resolve := func(e Entity) Entity {
		if !e.IsTemporary() {
			return e
		}
		if real, ok := remap[e]; ok {
			return real
		}
		panic(fmt.Sprintf("arena: temporary entity %d used before its creation", e))
	}

	w := b.world
	for i := range b.commands {
		cmd := &b.commands[i]
		switch cmd.kind {
		case cmdCreate:
			remap[cmd.entity] = w.Create()

		case cmdInstantiate:
			remap[cmd.entity] = b.templates.instantiate(w, cmd.template)

		case cmdAddComponent:
			if r, ok := cmd.component.(entityRemapper); ok {
				r.remapEntities(resolve)
			}
			w.addAny(resolve(cmd.entity), cmd.component)

		case cmdRemoveComponent:
			w.removeComponent(resolve(cmd.entity), cmd.id)

		case cmdDestroy:
			w.Destroy(resolve(cmd.entity))

		case cmdAppendLinked:
			owner := resolve(cmd.entity)
			if !w.Alive(owner) {
				continue
			}
			group := Get[LinkedEntities](w, owner)
			if group == nil {
				group = &LinkedEntities{}
				Add(w, owner, group)
			}
			group.Entities = append(group.Entities, resolve(cmd.other))

		case cmdAppendOwnership:
			cmd.entry.remapEntities(resolve)
			cmd.table.AppendPending(ConnectionID(cmd.other), cmd.entry)
		}
	}

	n := len(b.commands)
	clear(b.commands)
	b.commands = b.commands[:0]
	b.nextTemp = 0
	return n
}
