package arena

// Stage represents a scheduling stage for system execution.
// Systems are executed in stage order: Before → Default → After.
type Stage int

const (
	// Before stage runs first. The server patches the ownership table and
	// applies connection events here.
	Before Stage = iota

	// Default stage runs second. Join handling, spawning and most gameplay
	// systems belong here.
	Default

	// After stage runs last. Command buffer playback and replication run here.
	After

	// stageCount is the total number of stages.
	stageCount
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	switch s {
	case Before:
		return "Before"
	case Default:
		return "Default"
	case After:
		return "After"
	default:
		return "Unknown"
	}
}
