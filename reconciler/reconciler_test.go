package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"vaxscreen/ledger"
	"vaxscreen/messages"
)

// fakeStore is an in-memory Store recording call counts.
type fakeStore struct {
	patients map[string]*ledger.Patient
	events   map[string]int // "name|vaccine|date" -> count

	creates, updates, finds, records int
	failWith                         error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients: make(map[string]*ledger.Patient),
		events:   make(map[string]int),
	}
}

func (f *fakeStore) FindPatient(ctx context.Context, name string) (*ledger.Patient, error) {
	f.finds++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.patients[name], nil
}

func (f *fakeStore) CreatePatient(ctx context.Context, p *ledger.Patient) error {
	f.creates++
	if f.failWith != nil {
		return f.failWith
	}
	p.ID = uint(len(f.patients) + 1)
	f.patients[p.Name] = p
	return nil
}

func (f *fakeStore) UpdatePatient(ctx context.Context, name string, age float64, vaccine messages.VaccineType, hash string) error {
	f.updates++
	if f.failWith != nil {
		return f.failWith
	}
	p := f.patients[name]
	v := string(vaccine)
	p.Age, p.VaccineType, p.DataHash = &age, &v, &hash
	return nil
}

func (f *fakeStore) RecordVaccination(ctx context.Context, name string, vaccine messages.VaccineType, date string) (bool, error) {
	f.records++
	if f.failWith != nil {
		return false, f.failWith
	}
	if _, ok := f.patients[name]; !ok {
		return false, ledger.ErrUnknownPatient
	}
	key := name + "|" + string(vaccine) + "|" + date
	if f.events[key] > 0 {
		return false, nil
	}
	f.events[key]++
	return true, nil
}

func sample(age int, name string) messages.Sample {
	return messages.Sample{Age: &age, Name: name}
}

func fixedDay(r *Reconciler, day string) {
	t, _ := time.Parse("2006-01-02", day)
	r.now = func() time.Time { return t }
}

func TestClassifyThreshold(t *testing.T) {
	r := New(newFakeStore(), 65)

	if got := r.Classify(65); got != messages.VaccineBlue {
		t.Errorf("Classify(65) = %s, want Blue", got)
	}
	if got := r.Classify(64); got != messages.VaccineGreen {
		t.Errorf("Classify(64) = %s, want Green", got)
	}
	if got := r.Classify(102); got != messages.VaccineBlue {
		t.Errorf("Classify(102) = %s, want Blue", got)
	}
	if got := r.Classify(0); got != messages.VaccineGreen {
		t.Errorf("Classify(0) = %s, want Green", got)
	}
}

func TestIncompleteSampleIsNoOp(t *testing.T) {
	store := newFakeStore()
	r := New(store, 65)
	ctx := context.Background()

	for _, s := range []messages.Sample{
		{Age: nil, Name: "Jane Doe"},
		sample(70, ""),
		sample(70, "   "),
		{},
	} {
		out, err := r.Reconcile(ctx, s)
		if err != nil {
			t.Fatalf("Reconcile(%+v) failed: %v", s, err)
		}
		if out.Reading != nil || out.Applied {
			t.Errorf("Reconcile(%+v): expected no-op outcome, got %+v", s, out)
		}
	}
	if store.finds+store.creates+store.updates+store.records != 0 {
		t.Error("incomplete samples must not touch the store")
	}
}

func TestIdenticalConsecutiveSamplesWriteOnce(t *testing.T) {
	store := newFakeStore()
	r := New(store, 65)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, sample(70, "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !first.Applied || !first.PatientCreated || !first.VaccinationRecorded {
		t.Errorf("first sample should create and record, got %+v", first)
	}

	second, err := r.Reconcile(ctx, sample(70, "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if second.Applied {
		t.Errorf("identical sample should skip the ledger, got %+v", second)
	}
	if second.Reading == nil || second.Reading.Vaccine != messages.VaccineBlue {
		t.Errorf("skipped sample must still produce a reading, got %+v", second.Reading)
	}
	if store.creates != 1 || store.records != 1 {
		t.Errorf("expected exactly one create and one record, got %d/%d", store.creates, store.records)
	}
}

func TestValueSequenceSameDay(t *testing.T) {
	// Value sequence [64, 64, 70] on one day: two patient writes,
	// two vaccinations (Green and Blue), final state 70/Blue.
	store := newFakeStore()
	r := New(store, 65)
	fixedDay(r, "2026-08-28")
	ctx := context.Background()

	for _, age := range []int{64, 64, 70} {
		if _, err := r.Reconcile(ctx, sample(age, "Jane Doe")); err != nil {
			t.Fatalf("Reconcile(%d) failed: %v", age, err)
		}
	}

	if store.creates != 1 || store.updates != 1 {
		t.Errorf("expected 1 create + 1 update, got %d/%d", store.creates, store.updates)
	}
	if n := store.events["Jane Doe|Green|2026-08-28"]; n != 1 {
		t.Errorf("expected 1 Green vaccination, got %d", n)
	}
	if n := store.events["Jane Doe|Blue|2026-08-28"]; n != 1 {
		t.Errorf("expected 1 Blue vaccination, got %d", n)
	}
	p := store.patients["Jane Doe"]
	if *p.Age != 70 || *p.VaccineType != "Blue" {
		t.Errorf("final state: age=%v vaccine=%v, want 70/Blue", *p.Age, *p.VaccineType)
	}
}

func TestUnchangedValueAcrossDays(t *testing.T) {
	// Same value on day 1 and day 2: one patient write, two vaccinations.
	store := newFakeStore()
	r := New(store, 65)
	ctx := context.Background()

	fixedDay(r, "2026-08-28")
	if _, err := r.Reconcile(ctx, sample(70, "John Smith")); err != nil {
		t.Fatalf("day 1 failed: %v", err)
	}

	fixedDay(r, "2026-08-29")
	// The cached tuple is keyed on the day too, so the unchanged reading
	// still reaches the ledger and records the new day's vaccination.
	out, err := r.Reconcile(ctx, sample(70, "John Smith"))
	if err != nil {
		t.Fatalf("day 2 failed: %v", err)
	}
	if !out.Applied || out.PatientCreated || out.PatientUpdated {
		t.Errorf("unchanged attributes must not rewrite the patient, got %+v", out)
	}
	if !out.VaccinationRecorded {
		t.Error("new day should record a fresh vaccination")
	}
	if store.creates != 1 || store.updates != 0 {
		t.Errorf("expected 1 create and 0 updates, got %d/%d", store.creates, store.updates)
	}
	if store.events["John Smith|Blue|2026-08-28"] != 1 || store.events["John Smith|Blue|2026-08-29"] != 1 {
		t.Errorf("expected one vaccination per day, got %v", store.events)
	}
}

func TestResetCacheForcesRewrite(t *testing.T) {
	store := newFakeStore()
	r := New(store, 65)
	fixedDay(r, "2026-08-28")
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, sample(70, "Jane Doe")); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	// Simulate an administrative reset: rows gone, cache cleared.
	store.patients = make(map[string]*ledger.Patient)
	store.events = make(map[string]int)
	r.ResetCache()

	out, err := r.Reconcile(ctx, sample(70, "Jane Doe"))
	if err != nil {
		t.Fatalf("Reconcile after reset failed: %v", err)
	}
	if !out.PatientCreated || !out.VaccinationRecorded {
		t.Errorf("expected re-creation after reset, got %+v", out)
	}
}

func TestStoreErrorPropagatesAndRetries(t *testing.T) {
	store := newFakeStore()
	r := New(store, 65)
	ctx := context.Background()

	boom := errors.New("database is locked")
	store.failWith = boom
	if _, err := r.Reconcile(ctx, sample(70, "Jane Doe")); !errors.Is(err, boom) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}

	// The cache must not have been updated, so the next identical sample
	// retries the write.
	store.failWith = nil
	out, err := r.Reconcile(ctx, sample(70, "Jane Doe"))
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !out.Applied || !out.PatientCreated {
		t.Errorf("expected retry to write, got %+v", out)
	}
}

func TestRecordHashStable(t *testing.T) {
	h1 := RecordHash(70, "Jane Doe", messages.VaccineBlue)
	h2 := RecordHash(70, "Jane Doe", messages.VaccineBlue)
	if h1 != h2 {
		t.Error("hash must be deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(h1))
	}
	if RecordHash(71, "Jane Doe", messages.VaccineBlue) == h1 {
		t.Error("hash must depend on age")
	}
}

func TestNameWhitespaceTrimmed(t *testing.T) {
	store := newFakeStore()
	r := New(store, 65)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, sample(70, "  Jane Doe \n")); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if _, ok := store.patients["Jane Doe"]; !ok {
		t.Errorf("expected trimmed name key, have %v", store.patients)
	}
}
