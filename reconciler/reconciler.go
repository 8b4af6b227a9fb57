package reconciler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"vaxscreen/ledger"
	"vaxscreen/messages"
)

// Store is the subset of the ledger the reconciler writes through.
type Store interface {
	FindPatient(ctx context.Context, name string) (*ledger.Patient, error)
	CreatePatient(ctx context.Context, p *ledger.Patient) error
	UpdatePatient(ctx context.Context, name string, age float64, vaccine messages.VaccineType, hash string) error
	RecordVaccination(ctx context.Context, name string, vaccine messages.VaccineType, date string) (bool, error)
}

// Outcome describes what one reconciliation did.
type Outcome struct {
	// Reading is the classified sample, nil when the sample was incomplete.
	// It is set even when the ledger was skipped, so the display always
	// reflects the latest poll.
	Reading *messages.Reading
	// Applied reports that the sample differed from the last processed tuple
	// and the ledger was consulted.
	Applied             bool
	PatientCreated      bool
	PatientUpdated      bool
	VaccinationRecorded bool
}

// tuple is the last-processed state per patient name. The day is part of the
// key so an unchanged reading still reaches the ledger after midnight, where
// it records the new day's vaccination.
type tuple struct {
	age     int
	vaccine messages.VaccineType
	day     string
}

// Reconciler decides, for each sample, whether it represents new information
// worth persisting. It is not safe for concurrent use: the event loop is its
// single caller, which also serializes all ledger access.
type Reconciler struct {
	store     Store
	threshold int
	last      map[string]tuple
	now       func() time.Time
}

func New(store Store, threshold int) *Reconciler {
	return &Reconciler{
		store:     store,
		threshold: threshold,
		last:      make(map[string]tuple),
		now:       time.Now,
	}
}

// Classify derives the vaccine type from an age via the threshold rule.
func (r *Reconciler) Classify(age int) messages.VaccineType {
	if age >= r.threshold {
		return messages.VaccineBlue
	}
	return messages.VaccineGreen
}

// RecordHash returns the integrity token stored alongside a patient row.
func RecordHash(age int, name string, vaccine messages.VaccineType) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%s-%s", age, name, vaccine)))
	return hex.EncodeToString(sum[:])
}

// Reconcile processes one sample. Incomplete samples are a no-op. A sample
// identical to the last processed tuple for the same name skips the ledger
// entirely. Otherwise the patient row is upserted and a per-day vaccination
// is recorded; the cache is updated only after both succeed, so a failed
// attempt is retried on the next differing-or-same sample.
func (r *Reconciler) Reconcile(ctx context.Context, s messages.Sample) (Outcome, error) {
	name := strings.TrimSpace(s.Name)
	if s.Age == nil || name == "" {
		return Outcome{}, nil
	}
	age := *s.Age
	vaccine := r.Classify(age)
	out := Outcome{Reading: &messages.Reading{Age: age, Name: name, Vaccine: vaccine}}

	date := r.now().Format("2006-01-02")
	cur := tuple{age: age, vaccine: vaccine, day: date}
	if last, ok := r.last[name]; ok && last == cur {
		return out, nil
	}
	out.Applied = true

	hash := RecordHash(age, name, vaccine)
	p, err := r.store.FindPatient(ctx, name)
	if err != nil {
		return out, err
	}
	switch {
	case p == nil:
		ageF := float64(age)
		vaccineStr := string(vaccine)
		newP := &ledger.Patient{Name: name, Age: &ageF, VaccineType: &vaccineStr, DataHash: &hash}
		if err := r.store.CreatePatient(ctx, newP); err != nil {
			return out, err
		}
		out.PatientCreated = true
		log.Printf("Reconciler: created patient %q age=%d vaccine=%s", name, age, vaccine)
	case p.Age == nil || *p.Age != float64(age) || p.DataHash == nil || *p.DataHash != hash:
		if err := r.store.UpdatePatient(ctx, name, float64(age), vaccine, hash); err != nil {
			return out, err
		}
		out.PatientUpdated = true
		log.Printf("Reconciler: updated patient %q age=%d vaccine=%s", name, age, vaccine)
	}

	// Even without an attribute change a vaccination may be owed (new day).
	recorded, err := r.store.RecordVaccination(ctx, name, vaccine, date)
	if err != nil {
		return out, err
	}
	out.VaccinationRecorded = recorded
	if recorded {
		log.Printf("Reconciler: recorded vaccination %q vaccine=%s date=%s", name, vaccine, date)
	}

	r.last[name] = cur
	return out, nil
}

// ResetCache clears the last-processed cache. Called after an administrative
// store reset so dropped rows are re-created on the next sample.
func (r *Reconciler) ResetCache() {
	r.last = make(map[string]tuple)
}
