package eventloop

import (
	"context"
	"log"

	"vaxscreen/display"
	"vaxscreen/ledger"
	"vaxscreen/messages"
	"vaxscreen/reconciler"
)

// Admin is the administrative surface of the ledger (reset and report dump).
type Admin interface {
	Reset(ctx context.Context) error
	Dump(ctx context.Context) ([]ledger.ReportRow, error)
}

// SamplerControl starts and stops the poll loop.
type SamplerControl interface {
	Start(ctx context.Context)
	Stop()
	Active() bool
}

// Loop is the single goroutine that owns the reconciler, the ledger and the
// display controller. Routing every sample and every debug command through
// one select keeps all ledger access serialized, which SQLite's single
// concurrent writer requires.
type Loop struct {
	samples  <-chan messages.Sample
	commands chan messages.Command
	rec      *reconciler.Reconciler
	admin    Admin
	disp     *display.Controller
	sampler  SamplerControl
}

func New(samples <-chan messages.Sample, rec *reconciler.Reconciler, admin Admin, disp *display.Controller, sampler SamplerControl) *Loop {
	return &Loop{
		samples:  samples,
		commands: make(chan messages.Command, 8),
		rec:      rec,
		admin:    admin,
		disp:     disp,
		sampler:  sampler,
	}
}

// Post queues a command for the loop. Returns false when the queue is full.
func (l *Loop) Post(cmd messages.Command) bool {
	select {
	case l.commands <- cmd:
		return true
	default:
		log.Printf("Eventloop: command queue full, dropping %s", cmd.Type())
		return false
	}
}

// Run processes samples and commands until ctx is cancelled or a Shutdown
// command arrives.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-l.samples:
			l.handleSample(ctx, s)
		case cmd := <-l.commands:
			if !l.handleCommand(ctx, cmd) {
				return nil
			}
		}
	}
}

func (l *Loop) handleSample(ctx context.Context, s messages.Sample) {
	out, err := l.rec.Reconcile(ctx, s)
	if err != nil {
		// Fatal for this attempt only; the loop stays up for the next tick.
		log.Printf("Eventloop: reconciliation failed: %v", err)
	}
	l.disp.Update(out.Reading)
	if out.Applied {
		log.Printf("Eventloop: sample applied: created=%v updated=%v recorded=%v",
			out.PatientCreated, out.PatientUpdated, out.VaccinationRecorded)
	}
}

// handleCommand returns false when the loop should terminate.
func (l *Loop) handleCommand(ctx context.Context, cmd messages.Command) bool {
	switch c := cmd.(type) {
	case messages.ForceSample:
		log.Printf("Eventloop: forced sample age=%d name=%q", c.Age, c.Name)
		age := c.Age
		l.handleSample(ctx, messages.Sample{Age: &age, Name: c.Name})
	case messages.ResetStore:
		if err := l.admin.Reset(ctx); err != nil {
			log.Printf("Eventloop: reset failed: %v", err)
			return true
		}
		l.rec.ResetCache()
		log.Printf("Eventloop: store reset")
	case messages.DumpStore:
		rows, err := l.admin.Dump(ctx)
		if err != nil {
			log.Printf("Eventloop: dump failed: %v", err)
			return true
		}
		log.Printf("Eventloop: joined patient/vaccination report (%d rows):", len(rows))
		log.Printf("PatientID | Age | PatientVaccine | PatientName | EventVaccine | DateAdministered")
		for _, row := range rows {
			log.Printf("%d | %v | %v | %s | %v | %v",
				row.PatientID, deref(row.Age), derefStr(row.PatientVaccine), row.PatientName,
				derefStr(row.EventVaccine), derefStr(row.DateAdministered))
		}
	case messages.SetOverride:
		l.disp.SetOverride(c.Vaccine)
	case messages.ClearOverride:
		l.disp.ClearOverride()
	case messages.StartSampling:
		l.sampler.Start(ctx)
	case messages.StopSampling:
		l.sampler.Stop()
	case messages.ToggleSampling:
		if l.sampler.Active() {
			l.sampler.Stop()
		} else {
			l.sampler.Start(ctx)
		}
	case messages.Shutdown:
		log.Printf("Eventloop: shutdown requested")
		l.sampler.Stop()
		return false
	default:
		log.Printf("Eventloop: unknown command %s", cmd.Type())
	}
	return true
}

func deref(f *float64) interface{} {
	if f == nil {
		return "NULL"
	}
	return *f
}

func derefStr(s *string) interface{} {
	if s == nil {
		return "NULL"
	}
	return *s
}
