package arena

import (
	"time"
)

// Bundle groups related systems together.
// Bundles are registered with the Builder and provide isolation between
// different gameplay features.
type Bundle struct {
	name string

	// loops holds loop system registrations
	loops []loopRegistration

	postInitHooks []func(*Manager)
}

// loopRegistration holds a loop system registration.
type loopRegistration struct {
	name     string
	system   Runnable
	interval time.Duration
	stage    Stage
}

// NewBundle creates a new bundle with the given name.
func NewBundle(name string) *Bundle {
	return &Bundle{name: name}
}

// Name returns the bundle name.
func (b *Bundle) Name() string {
	return b.name
}

// PostInit registers a hook called once the manager is built.
func (b *Bundle) PostInit(hook func(*Manager)) *Bundle {
	b.postInitHooks = append(b.postInitHooks, hook)
	return b
}

// Build returns a callback function that returns this bundle.
// This allows for cleaner inline bundle initialization:
//
//	bund := arena.NewBundle("gameplay").
//	    Loop("regen", &RegenLoop{}, time.Second, arena.Default).
//	    Build()
//
//	mngr, err := arena.NewBuilder().
//	    Bundle(bund).
//	    Build()
func (b *Bundle) Build() func(*Manager) *Bundle {
	return func(*Manager) *Bundle {
		return b
	}
}

// Loop registers a loop system that runs at fixed intervals.
// Interval of 0 means the loop runs every tick.
func (b *Bundle) Loop(name string, sys Runnable, interval time.Duration, stage Stage) *Bundle {
	b.loops = append(b.loops, loopRegistration{
		name:     name,
		system:   sys,
		interval: interval,
		stage:    stage,
	})
	return b
}

// register adds the bundle's systems to the scheduler.
func (b *Bundle) register(s *Scheduler) {
	for _, reg := range b.loops {
		s.AddLoop(b.name+"/"+reg.name, reg.system, reg.interval, reg.stage)
	}
}
