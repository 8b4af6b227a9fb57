package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vaxscreen/messages"
)

// ErrUnknownPatient reports a vaccination record for a patient that does not
// exist. Patient upsert always precedes vaccination recording, so seeing this
// means the reconciliation ordering was broken.
var ErrUnknownPatient = errors.New("vaccination for unknown patient")

// Patient is one tracked individual; at most one row per distinct name.
type Patient struct {
	ID          uint     `gorm:"primaryKey;autoIncrement"`
	Name        string   `gorm:"column:patient_name;uniqueIndex;not null"`
	Age         *float64 `gorm:"column:age"`
	VaccineType *string  `gorm:"column:vaccine_type"`
	// DataHash is an integrity token over (age, name, vaccine), used to
	// detect external edits; it is not the dedup key.
	DataHash *string `gorm:"column:data_hash"`

	Vaccinations []Vaccination `gorm:"foreignKey:PatientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (Patient) TableName() string { return "patients" }

// Vaccination is a dated record of a patient receiving a vaccine type.
// The composite unique index enforces at most one row per patient, vaccine
// and calendar day.
type Vaccination struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	PatientID        uint   `gorm:"not null;uniqueIndex:idx_vaccination_per_day"`
	VaccineType      string `gorm:"not null;uniqueIndex:idx_vaccination_per_day"`
	DateAdministered string `gorm:"column:date_administered;not null;uniqueIndex:idx_vaccination_per_day"` // YYYY-MM-DD
}

func (Vaccination) TableName() string { return "vaccinations" }

// ReportRow is one line of the left-joined patient/vaccination dump.
type ReportRow struct {
	PatientID        uint
	Age              *float64
	PatientVaccine   *string
	PatientName      string
	EventVaccine     *string
	DateAdministered *string
}

// Store is the relational ledger. SQLite allows a single concurrent writer,
// so all mutating calls must come from one goroutine (the event loop).
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. Foreign key enforcement is switched on in the DSN so it applies
// to every pooled connection.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&Patient{}, &Vaccination{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// FindPatient looks a patient up by name. A missing patient is not an error:
// it returns (nil, nil).
func (s *Store) FindPatient(ctx context.Context, name string) (*Patient, error) {
	var p Patient
	err := s.db.WithContext(ctx).Where("patient_name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up patient %q: %w", name, err)
	}
	return &p, nil
}

// CreatePatient inserts a new patient row.
func (s *Store) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create patient %q: %w", p.Name, err)
	}
	return nil
}

// UpdatePatient overwrites a patient's age, vaccine type and data hash.
func (s *Store) UpdatePatient(ctx context.Context, name string, age float64, vaccine messages.VaccineType, hash string) error {
	err := s.db.WithContext(ctx).
		Model(&Patient{}).
		Where("patient_name = ?", name).
		Updates(map[string]interface{}{
			"age":          age,
			"vaccine_type": string(vaccine),
			"data_hash":    hash,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update patient %q: %w", name, err)
	}
	return nil
}

// RecordVaccination records one vaccination for (patient, vaccine, date)
// unless one already exists for that day. Returns whether a row was inserted.
// The named patient must already exist.
func (s *Store) RecordVaccination(ctx context.Context, name string, vaccine messages.VaccineType, date string) (bool, error) {
	p, err := s.FindPatient(ctx, name)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, fmt.Errorf("%w: name=%q vaccine=%s date=%s", ErrUnknownPatient, name, vaccine, date)
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&Vaccination{}).
		Where("patient_id = ? AND vaccine_type = ? AND date_administered = ?", p.ID, string(vaccine), date).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count vaccinations for %q: %w", name, err)
	}
	if count > 0 {
		return false, nil
	}

	v := Vaccination{PatientID: p.ID, VaccineType: string(vaccine), DateAdministered: date}
	if err := s.db.WithContext(ctx).Create(&v).Error; err != nil {
		return false, fmt.Errorf("failed to record vaccination for %q: %w", name, err)
	}
	return true, nil
}

// Reset drops and recreates both tables. Administrative use only.
func (s *Store) Reset(ctx context.Context) error {
	// Vaccinations first so the FK does not block the drop.
	if err := s.db.WithContext(ctx).Migrator().DropTable(&Vaccination{}, &Patient{}); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Printf("Ledger: dropped patient and vaccination tables")
	return s.migrate()
}

// Dump returns the left-joined patient/vaccination report.
func (s *Store) Dump(ctx context.Context) ([]ReportRow, error) {
	var rows []ReportRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT p.id AS patient_id, p.age, p.vaccine_type AS patient_vaccine, p.patient_name,
		       v.vaccine_type AS event_vaccine, v.date_administered
		FROM patients p
		LEFT JOIN vaccinations v ON p.id = v.patient_id
		ORDER BY p.id, v.date_administered`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to dump ledger: %w", err)
	}
	return rows, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
