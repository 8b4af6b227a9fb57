package display

import (
	"fmt"
	"log"
	"sync"

	"vaxscreen/messages"
)

// Sink renders a classification state. A nil vaccine means the neutral
// "awaiting input" state. Implementations must tolerate being called after
// their surface is gone.
type Sink interface {
	Display(vaccine *messages.VaccineType, label string)
}

// Mode is the override state of the controller.
type Mode int

const (
	Automatic Mode = iota
	Overridden
)

const awaitingLabel = "Awaiting next input..."

// Controller gates reconciler output to the sink. While overridden, live
// readings are still accepted (and the ledger keeps writing elsewhere) but
// the sink stays frozen on the manual state; clearing the override
// immediately re-renders the most recent reading.
type Controller struct {
	mu       sync.Mutex
	sink     Sink
	mode     Mode
	override messages.VaccineType
	last     *messages.Reading
}

func NewController(sink Sink) *Controller {
	c := &Controller{sink: sink}
	c.render(nil)
	return c
}

// Update feeds the latest reading (nil for an incomplete sample) to the sink,
// unless an override is active.
func (c *Controller) Update(r *messages.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = r
	if c.mode == Overridden {
		return
	}
	c.render(r)
}

// SetOverride freezes the display to a fixed vaccine type.
func (c *Controller) SetOverride(v messages.VaccineType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = Overridden
	c.override = v
	log.Printf("Display: manual override set to %s", v)
	c.sink.Display(&v, "Manual: "+string(v))
}

// ClearOverride returns to automatic mode and re-renders the latest reading.
func (c *Controller) ClearOverride() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == Automatic {
		return
	}
	c.mode = Automatic
	log.Printf("Display: manual override cleared")
	c.render(c.last)
}

// Mode returns the current override state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) render(r *messages.Reading) {
	if r == nil {
		c.sink.Display(nil, awaitingLabel)
		return
	}
	v := r.Vaccine
	c.sink.Display(&v, fmt.Sprintf("Age: %d  Name: %s", r.Age, r.Name))
}

// LogSink writes display states to the log; used headless and in tests.
type LogSink struct{}

func (LogSink) Display(vaccine *messages.VaccineType, label string) {
	if vaccine == nil {
		log.Printf("Display: [neutral] %s", label)
		return
	}
	log.Printf("Display: [%s] %s", *vaccine, label)
}
