package arena

import (
	"time"
)

// Tick describes the simulation step a system runs in.
type Tick struct {
	// Number is the tick counter, starting at 1 for the first tick.
	Number uint64
	// Delta is the fixed simulation step.
	Delta time.Duration
	// Now is the wall-clock time the tick started.
	Now time.Time
}

// Seconds returns Delta in seconds.
func (t Tick) Seconds() float64 {
	return t.Delta.Seconds()
}

// Runnable is the interface implemented by systems.
// The Run method contains the system's logic and is called once per due tick.
type Runnable interface {
	Run(t Tick)
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func(t Tick)

// Run implements Runnable.
func (f RunnableFunc) Run(t Tick) {
	f(t)
}
