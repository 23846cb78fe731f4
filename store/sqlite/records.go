/*
Record stores for the administrative entities.

PURPOSE:
  Plain CRUD over the non-reactive tables: patients, doctors,
  appointments, medical records, departments, users, plus listings over
  the fact tables for the dashboard. None of these writes fire rules;
  the rule-bearing paths (billing, payments, lab test status, room
  occupancy, prescriptions) go through ledger.Engine instead.

SEE ALSO:
  - sqlite.go: schema and the ledger.Store implementation
  - api/handlers.go: the HTTP surface over these stores
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/medcore/hospital-ledger/ledger"
)

// =============================================================================
// PATIENT STORE
// =============================================================================

// Patient represents a patient record.
type Patient struct {
	ID      ledger.PatientID
	Name    string
	Age     int
	Gender  string
	Address string
	Phone   string
}

// AddPatient inserts a patient and returns its assigned identifier.
func (s *Store) AddPatient(ctx context.Context, p Patient) (ledger.PatientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO patients (name, age, gender, address, phone) VALUES (?, ?, ?, ?, ?)",
		p.Name, p.Age, p.Gender, p.Address, p.Phone,
	)
	if err != nil {
		return 0, wrapConstraint("patients", "insert", err)
	}
	id, err := res.LastInsertId()
	return ledger.PatientID(id), err
}

// GetPatient retrieves a patient by ID. Returns nil when not found.
func (s *Store) GetPatient(ctx context.Context, id ledger.PatientID) (*Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p Patient
	err := s.db.QueryRowContext(ctx,
		"SELECT patient_id, name, age, gender, address, phone FROM patients WHERE patient_id = ?",
		int64(id),
	).Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Address, &p.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPatients returns all patients ordered by name.
func (s *Store) ListPatients(ctx context.Context) ([]Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT patient_id, name, age, gender, address, phone FROM patients ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Address, &p.Phone); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// UpdatePatient overwrites a patient's demographic fields.
func (s *Store) UpdatePatient(ctx context.Context, p Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE patients SET name = ?, age = ?, gender = ?, address = ?, phone = ? WHERE patient_id = ?",
		p.Name, p.Age, p.Gender, p.Address, p.Phone, int64(p.ID),
	)
	if err != nil {
		return wrapConstraint("patients", "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrPatientNotFound
	}
	return nil
}

// DeletePatient removes a patient. Owned rows (bills, payments, tests,
// records, prescriptions) cascade; room back-references null out. Audit
// log rows for the patient remain.
func (s *Store) DeletePatient(ctx context.Context, id ledger.PatientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE patient_id = ?", int64(id))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrPatientNotFound
	}
	return nil
}

// =============================================================================
// DOCTOR STORE
// =============================================================================

// Doctor represents a doctor record.
type Doctor struct {
	ID             ledger.DoctorID
	Name           string
	Specialization string
	Phone          string
}

// AddDoctor inserts a doctor and returns the created row.
func (s *Store) AddDoctor(ctx context.Context, d Doctor) (*Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO doctors (name, specialization, phone) VALUES (?, ?, ?)",
		d.Name, d.Specialization, d.Phone,
	)
	if err != nil {
		return nil, wrapConstraint("doctors", "insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	var created Doctor
	err = s.db.QueryRowContext(ctx,
		"SELECT doctor_id, name, specialization, phone FROM doctors WHERE doctor_id = ?",
		id,
	).Scan(&created.ID, &created.Name, &created.Specialization, &created.Phone)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetDoctor retrieves a doctor by ID. Returns nil when not found.
func (s *Store) GetDoctor(ctx context.Context, id ledger.DoctorID) (*Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var d Doctor
	err := s.db.QueryRowContext(ctx,
		"SELECT doctor_id, name, specialization, phone FROM doctors WHERE doctor_id = ?",
		int64(id),
	).Scan(&d.ID, &d.Name, &d.Specialization, &d.Phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDoctors returns all doctors ordered by name.
func (s *Store) ListDoctors(ctx context.Context) ([]Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT doctor_id, name, specialization, phone FROM doctors ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Specialization, &d.Phone); err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// =============================================================================
// APPOINTMENT STORE
// =============================================================================

// Appointment links a patient and a doctor on a date. PatientName and
// DoctorName are filled on listing reads only.
type Appointment struct {
	ID          int64
	PatientID   ledger.PatientID
	DoctorID    ledger.DoctorID
	Date        time.Time
	PatientName string
	DoctorName  string
}

// AddAppointment inserts an appointment.
func (s *Store) AddAppointment(ctx context.Context, a Appointment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO appointments (patient_id, doctor_id, appointment_date) VALUES (?, ?, ?)",
		int64(a.PatientID), int64(a.DoctorID), a.Date.Format(dateLayout),
	)
	if err != nil {
		return 0, wrapConstraint("appointments", "insert", err)
	}
	return res.LastInsertId()
}

// ListAppointments returns all appointments with patient and doctor
// names joined in, newest date first.
func (s *Store) ListAppointments(ctx context.Context) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.appointment_id, a.patient_id, a.doctor_id, a.appointment_date, p.name, d.name
		FROM appointments a
		JOIN patients p ON p.patient_id = a.patient_id
		JOIN doctors d ON d.doctor_id = a.doctor_id
		ORDER BY a.appointment_date DESC, a.appointment_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		var (
			a    Appointment
			date string
		)
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &a.PatientName, &a.DoctorName); err != nil {
			return nil, err
		}
		a.Date, _ = time.Parse(dateLayout, date)
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

// =============================================================================
// MEDICAL RECORD STORE
// =============================================================================

// MedicalRecord is a diagnosis/treatment note for a patient visit.
type MedicalRecord struct {
	ID        int64
	PatientID ledger.PatientID
	DoctorID  ledger.DoctorID
	Diagnosis string
	Treatment string
}

// AddMedicalRecord inserts a medical record.
func (s *Store) AddMedicalRecord(ctx context.Context, r MedicalRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO medical_records (patient_id, doctor_id, diagnosis, treatment) VALUES (?, ?, ?, ?)",
		int64(r.PatientID), int64(r.DoctorID), r.Diagnosis, r.Treatment,
	)
	if err != nil {
		return 0, wrapConstraint("medical_records", "insert", err)
	}
	return res.LastInsertId()
}

// ListMedicalRecords returns a patient's records, newest first.
func (s *Store) ListMedicalRecords(ctx context.Context, patientID ledger.PatientID) ([]MedicalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, patient_id, doctor_id, diagnosis, treatment
		FROM medical_records WHERE patient_id = ?
		ORDER BY record_id DESC
	`, int64(patientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []MedicalRecord
	for rows.Next() {
		var r MedicalRecord
		if err := rows.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.Diagnosis, &r.Treatment); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// DEPARTMENT STORE
// =============================================================================

// Department groups rooms under an optional head doctor.
type Department struct {
	ID         int64
	Name       string
	HeadDoctor *ledger.DoctorID
	Phone      string
}

// AddDepartment inserts a department.
func (s *Store) AddDepartment(ctx context.Context, d Department) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var head any
	if d.HeadDoctor != nil {
		head = int64(*d.HeadDoctor)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO departments (department_name, head_doctor, phone) VALUES (?, ?, ?)",
		d.Name, head, d.Phone,
	)
	if err != nil {
		return 0, wrapConstraint("departments", "insert", err)
	}
	return res.LastInsertId()
}

// ListDepartments returns all departments ordered by name.
func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT department_id, department_name, head_doctor, phone FROM departments ORDER BY department_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var (
			d     Department
			name  sql.NullString
			head  sql.NullInt64
			phone sql.NullString
		)
		if err := rows.Scan(&d.ID, &name, &head, &phone); err != nil {
			return nil, err
		}
		d.Name = name.String
		d.Phone = phone.String
		if head.Valid {
			h := ledger.DoctorID(head.Int64)
			d.HeadDoctor = &h
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

// =============================================================================
// ROOM STORE (creation and listing; occupancy changes go through the engine)
// =============================================================================

// AddRoom inserts a room, initially vacant.
func (s *Store) AddRoom(ctx context.Context, r ledger.Room) (ledger.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var department any
	if r.DepartmentID != nil {
		department = *r.DepartmentID
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (room_number, room_type, capacity, is_occupied, department_id) VALUES (?, ?, ?, 0, ?)",
		r.RoomNumber, r.RoomType, r.Capacity, department,
	)
	if err != nil {
		return 0, wrapConstraint("rooms", "insert", err)
	}
	id, err := res.LastInsertId()
	return ledger.RoomID(id), err
}

// ListRooms returns all rooms ordered by room number.
func (s *Store) ListRooms(ctx context.Context) ([]ledger.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, room_number, room_type, capacity, is_occupied, current_patient_id, department_id
		FROM rooms ORDER BY room_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []ledger.Room
	for rows.Next() {
		var (
			r          ledger.Room
			roomType   sql.NullString
			capacity   sql.NullInt64
			occupied   int
			patientID  sql.NullInt64
			department sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.RoomNumber, &roomType, &capacity, &occupied, &patientID, &department); err != nil {
			return nil, err
		}
		r.RoomType = roomType.String
		r.Capacity = int(capacity.Int64)
		r.IsOccupied = occupied != 0
		if patientID.Valid {
			p := ledger.PatientID(patientID.Int64)
			r.CurrentPatientID = &p
		}
		if department.Valid {
			d := department.Int64
			r.DepartmentID = &d
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// =============================================================================
// LAB TEST STORE (creation and listing; status changes go through the engine)
// =============================================================================

// AddLabTest inserts a lab test. An empty Status defaults to Pending.
func (s *Store) AddLabTest(ctx context.Context, t ledger.LabTest) (ledger.TestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := t.Status
	if status == "" {
		status = ledger.TestPending
	}
	if !ledger.ValidTestStatus(status) {
		return 0, fmt.Errorf("%w: %q", ledger.ErrInvalidStatus, status)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO lab_tests (patient_id, doctor_id, test_name, test_date, result, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(t.PatientID), int64(t.DoctorID), t.TestName, formatDate(t.TestDate),
		t.Result, string(status), t.Notes)
	if err != nil {
		return 0, wrapConstraint("lab_tests", "insert", err)
	}
	id, err := res.LastInsertId()
	return ledger.TestID(id), err
}

// ListLabTests returns a patient's lab tests, newest first.
func (s *Store) ListLabTests(ctx context.Context, patientID ledger.PatientID) ([]ledger.LabTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT test_id, patient_id, doctor_id, test_name, test_date, result, status, notes
		FROM lab_tests WHERE patient_id = ?
		ORDER BY test_id DESC
	`, int64(patientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []ledger.LabTest
	for rows.Next() {
		var (
			t        ledger.LabTest
			name     sql.NullString
			testDate sql.NullString
			result   sql.NullString
			notes    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.PatientID, &t.DoctorID, &name, &testDate, &result, &t.Status, &notes); err != nil {
			return nil, err
		}
		t.TestName = name.String
		t.Result = result.String
		t.Notes = notes.String
		if testDate.Valid {
			t.TestDate, _ = time.Parse(dateLayout, testDate.String)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// =============================================================================
// PRESCRIPTION LISTING (creation goes through the engine)
// =============================================================================

// ListPrescriptions returns a patient's prescriptions, newest first.
func (s *Store) ListPrescriptions(ctx context.Context, patientID ledger.PatientID) ([]ledger.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT prescription_id, patient_id, doctor_id, medicine_name, dosage, frequency, start_date, end_date, notes
		FROM prescriptions WHERE patient_id = ?
		ORDER BY prescription_id DESC
	`, int64(patientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prescriptions []ledger.Prescription
	for rows.Next() {
		var (
			p         ledger.Prescription
			medicine  sql.NullString
			dosage    sql.NullString
			frequency sql.NullString
			start     sql.NullString
			end       sql.NullString
			notes     sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.PatientID, &p.DoctorID, &medicine, &dosage,
			&frequency, &start, &end, &notes); err != nil {
			return nil, err
		}
		p.MedicineName = medicine.String
		p.Dosage = dosage.String
		p.Frequency = frequency.String
		p.Notes = notes.String
		if start.Valid {
			p.StartDate, _ = time.Parse(dateLayout, start.String)
		}
		if end.Valid {
			p.EndDate, _ = time.Parse(dateLayout, end.String)
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, rows.Err()
}

// =============================================================================
// FACT LISTINGS (read-only views over the append-only tables)
// =============================================================================

// ListBillings returns a patient's billing facts, newest first.
func (s *Store) ListBillings(ctx context.Context, patientID ledger.PatientID) ([]ledger.Billing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT bill_id, patient_id, amount, billing_date
		FROM billing WHERE patient_id = ?
		ORDER BY billing_date DESC, bill_id DESC
	`, int64(patientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bills []ledger.Billing
	for rows.Next() {
		var (
			b    ledger.Billing
			raw  string
			date string
		)
		if err := rows.Scan(&b.ID, &b.PatientID, &raw, &date); err != nil {
			return nil, err
		}
		amount, err := ledger.NewMoney(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		b.Amount = amount
		b.BillingDate, _ = time.Parse(dateLayout, date)
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// ListPayments returns a patient's payment facts, newest first.
func (s *Store) ListPayments(ctx context.Context, patientID ledger.PatientID) ([]ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_id, patient_id, amount_paid, payment_date
		FROM payments WHERE patient_id = ?
		ORDER BY payment_date DESC, payment_id DESC
	`, int64(patientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p    ledger.Payment
			raw  string
			date string
		)
		if err := rows.Scan(&p.ID, &p.PatientID, &raw, &date); err != nil {
			return nil, err
		}
		amount, err := ledger.NewMoney(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		p.Amount = amount
		p.PaymentDate, _ = time.Parse(dateLayout, date)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// USER STORE
// =============================================================================

// User is a dashboard login. PasswordHash is a bcrypt hash, never the
// plain credential.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
}

// CreateUser inserts a user. Usernames are unique.
func (s *Store) CreateUser(ctx context.Context, u User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		u.Username, u.PasswordHash, u.Role,
	)
	if err != nil {
		return 0, wrapConstraint("users", "insert", err)
	}
	return res.LastInsertId()
}

// GetUserByUsername retrieves a user. Returns nil when not found.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, username, password_hash, role FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers reports how many users exist. Used by startup seeding.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}
