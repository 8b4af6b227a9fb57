package messages

import "strings"

// VaccineType is the eligibility category derived from a patient's age.
type VaccineType string

const (
	VaccineBlue  VaccineType = "Blue"  // at or above the age threshold
	VaccineGreen VaccineType = "Green" // below the age threshold
)

// Sample is one raw reading from the recognizer at one poll tick.
// Either field may be absent when recognition of that field failed.
type Sample struct {
	Age  *int
	Name string
}

// Complete reports whether both fields were recognized.
func (s Sample) Complete() bool {
	return s.Age != nil && strings.TrimSpace(s.Name) != ""
}

// Reading is a classified sample, the payload handed to the display.
type Reading struct {
	Age     int
	Name    string
	Vaccine VaccineType
}

// Command is the base interface for debug-console and hotkey commands
// posted into the event loop.
type Command interface {
	Type() string
}

// CommandType constants for type identification
const (
	TypeForceSample    = "ForceSample"
	TypeResetStore     = "ResetStore"
	TypeDumpStore      = "DumpStore"
	TypeSetOverride    = "SetOverride"
	TypeClearOverride  = "ClearOverride"
	TypeStartSampling  = "StartSampling"
	TypeStopSampling   = "StopSampling"
	TypeToggleSampling = "ToggleSampling"
	TypeShutdown       = "Shutdown"
)

// ForceSample - inject a synthetic sample through the normal reconciliation path
type ForceSample struct {
	Age  int
	Name string
}

func (c ForceSample) Type() string { return TypeForceSample }

// ResetStore - drop and recreate both ledger tables
type ResetStore struct{}

func (c ResetStore) Type() string { return TypeResetStore }

// DumpStore - write the left-joined patient/vaccination report to the log sink
type DumpStore struct{}

func (c DumpStore) Type() string { return TypeDumpStore }

// SetOverride - freeze the display to a fixed vaccine type
type SetOverride struct {
	Vaccine VaccineType
}

func (c SetOverride) Type() string { return TypeSetOverride }

// ClearOverride - return the display to automatic mode
type ClearOverride struct{}

func (c ClearOverride) Type() string { return TypeClearOverride }

// StartSampling - begin the poll loop (no-op when already active)
type StartSampling struct{}

func (c StartSampling) Type() string { return TypeStartSampling }

// StopSampling - clear the active flag; the loop exits at its next iteration
type StopSampling struct{}

func (c StopSampling) Type() string { return TypeStopSampling }

// ToggleSampling - hotkey action: start when idle, stop when active
type ToggleSampling struct{}

func (c ToggleSampling) Type() string { return TypeToggleSampling }

// Shutdown - terminate the event loop
type Shutdown struct{}

func (c Shutdown) Type() string { return TypeShutdown }
