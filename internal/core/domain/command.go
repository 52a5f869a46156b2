package domain

// Command is the tagged union of control intents accepted into the Command
// Inbox, originating from HTTP or the publish-bus exporter. Grounded on the
// teacher's BatteryControlRequest interface-plus-mixin pattern (a request
// type per operation), simplified to a closed sum type since this driver
// has exactly three writable properties and commands carry no reply.
type Command interface {
	isCommand()
	// Path is the canonical property path this command supersedes when
	// the Command Inbox deduplicates a pending command of the same kind.
	Path() string
}

// SetMode requests a mode change. Raw may be an int, bool, or string; use
// service.NormalizeMode to coerce it (the only place coercion is allowed).
type SetMode struct {
	Raw any
}

func (SetMode) isCommand()   {}
func (SetMode) Path() string { return "/Mode" }

// SetStartStop requests a start/stop change. Raw may be a bool, number, or
// string; anything truthy normalises to 1.
type SetStartStop struct {
	Raw any
}

func (SetStartStop) isCommand()   {}
func (SetStartStop) Path() string { return "/StartStop" }

// SetCurrent requests a new user set-current in amps, clamped to
// [MinSetCurrentA, MaxSetCurrentA] at normalisation time.
type SetCurrent struct {
	Amps float64
}

func (SetCurrent) isCommand()   {}
func (SetCurrent) Path() string { return "/SetCurrent" }

// CommandRejection is returned when a command cannot be normalised. It is a
// Policy notice, not an error: the command is discarded with a warning.
type CommandRejection struct {
	Command Command
	Reason  string
}
