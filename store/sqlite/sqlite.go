/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.Store (facts, derived state, audit trail) plus the
  CRUD record stores the dashboard consumes (patients, doctors,
  appointments, medical records, departments, users).

SCHEMA:
  Patient-owned
  rows cascade on patient delete; room and department back-references
  null out. Monetary amounts are stored as TEXT and summed in Go with
  exact decimals - never as floating point.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for billing, payments, or the
  trigger action log (the log's only delete is the administrative purge).

CONCURRENCY:
  A store-level mutex serializes units of work, so the read-compute-write
  sequence of a rule firing cannot interleave with another writer. SQLite
  is opened in WAL mode with foreign keys on.

USAGE:
  store, err := sqlite.New("./data/hospital.db")
  engine := ledger.New(store, log)

SEE ALSO:
  - ledger/store.go: interface definitions
  - records.go: CRUD record stores
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/medcore/hospital-ledger/ledger"
)

// Store implements ledger.Store and the CRUD record stores using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store at dbPath. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema. Every statement is create-if-missing, so
// re-running setup against an existing database is safe.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		patient_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age INTEGER,
		gender TEXT,
		address TEXT,
		phone TEXT
	);

	CREATE TABLE IF NOT EXISTS doctors (
		doctor_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		specialization TEXT,
		phone TEXT
	);

	CREATE TABLE IF NOT EXISTS appointments (
		appointment_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		doctor_id INTEGER NOT NULL REFERENCES doctors(doctor_id) ON DELETE CASCADE,
		appointment_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS medical_records (
		record_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		doctor_id INTEGER NOT NULL REFERENCES doctors(doctor_id) ON DELETE CASCADE,
		diagnosis TEXT,
		treatment TEXT
	);

	-- Billing facts (append-only)
	CREATE TABLE IF NOT EXISTS billing (
		bill_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		billing_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_billing_patient_date
		ON billing(patient_id, billing_date DESC, bill_id DESC);

	-- Payment facts (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		payment_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		amount_paid TEXT NOT NULL,
		payment_date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_patient
		ON payments(patient_id);

	-- Derived state: one row per patient, rebuilt by reconciliation
	CREATE TABLE IF NOT EXISTS payment_status (
		patient_id INTEGER PRIMARY KEY REFERENCES patients(patient_id) ON DELETE CASCADE,
		latest_bill_amount TEXT NOT NULL,
		payment_complete INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL
	);

	-- Audit trail (append-only; no FK so log rows outlive their subjects)
	CREATE TABLE IF NOT EXISTS trigger_action_log (
		log_id INTEGER PRIMARY KEY AUTOINCREMENT,
		trigger_name TEXT NOT NULL,
		action_type TEXT NOT NULL,
		table_name TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		old_value TEXT,
		new_value TEXT,
		action_timestamp TEXT NOT NULL,
		patient_id INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_log_patient
		ON trigger_action_log(patient_id);
	CREATE INDEX IF NOT EXISTS idx_log_trigger
		ON trigger_action_log(trigger_name);

	CREATE TABLE IF NOT EXISTS prescriptions (
		prescription_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		doctor_id INTEGER NOT NULL REFERENCES doctors(doctor_id) ON DELETE CASCADE,
		medicine_name TEXT,
		dosage TEXT,
		frequency TEXT,
		start_date TEXT,
		end_date TEXT,
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS departments (
		department_id INTEGER PRIMARY KEY AUTOINCREMENT,
		department_name TEXT UNIQUE,
		head_doctor INTEGER REFERENCES doctors(doctor_id) ON DELETE SET NULL,
		phone TEXT
	);

	CREATE TABLE IF NOT EXISTS rooms (
		room_id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_number TEXT NOT NULL UNIQUE,
		room_type TEXT CHECK (room_type IN ('General', 'ICU', 'Private', 'Semi-Private')),
		capacity INTEGER,
		is_occupied INTEGER NOT NULL DEFAULT 0,
		current_patient_id INTEGER REFERENCES patients(patient_id) ON DELETE SET NULL,
		department_id INTEGER REFERENCES departments(department_id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS lab_tests (
		test_id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_id INTEGER NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		doctor_id INTEGER NOT NULL REFERENCES doctors(doctor_id) ON DELETE CASCADE,
		test_name TEXT,
		test_date TEXT,
		result TEXT,
		status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Completed', 'Cancelled')),
		notes TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// coreTables are the structures the reactive core depends on, keyed by
// the names the dashboard reports them under.
var coreTables = map[string]string{
	"Patient":          "patients",
	"Doctor":           "doctors",
	"Appointment":      "appointments",
	"MedicalRecord":    "medical_records",
	"Billing":          "billing",
	"Payment":          "payments",
	"PaymentStatus":    "payment_status",
	"Users":            "users",
	"TriggerActionLog": "trigger_action_log",
	"Prescription":     "prescriptions",
	"Department":       "departments",
	"Room":             "rooms",
	"LabTest":          "lab_tests",
}

// VerifySchema reports which expected tables are missing, by name.
func (s *Store) VerifySchema(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for name, table := range coreTables {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(&count)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// =============================================================================
// TRANSACTIONS (ledger.Store.WithTx)
// =============================================================================

// WithTx executes fn in a database transaction. The store mutex is held
// for the duration, serializing the read-compute-write sequence of rule
// firings against concurrent writers.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.FactStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txFacts{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txFacts implements ledger.FactStore against an open transaction. The
// WithTx mutex is already held; no further locking.
type txFacts struct {
	q dbtx
}

func (t *txFacts) InsertBilling(ctx context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.BillID, error) {
	return insertBilling(ctx, t.q, patientID, amount, date)
}

func (t *txFacts) InsertPayment(ctx context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.PaymentID, error) {
	return insertPayment(ctx, t.q, patientID, amount, date)
}

func (t *txFacts) TotalBilled(ctx context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	return sumAmounts(ctx, t.q, "SELECT amount FROM billing WHERE patient_id = ?", patientID)
}

func (t *txFacts) TotalPaid(ctx context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	return sumAmounts(ctx, t.q, "SELECT amount_paid FROM payments WHERE patient_id = ?", patientID)
}

func (t *txFacts) LatestBillAmount(ctx context.Context, patientID ledger.PatientID) (*ledger.Money, error) {
	return latestBillAmount(ctx, t.q, patientID)
}

func (t *txFacts) GetPaymentStatus(ctx context.Context, patientID ledger.PatientID) (*ledger.PaymentStatus, error) {
	return getPaymentStatus(ctx, t.q, patientID)
}

func (t *txFacts) UpsertPaymentStatus(ctx context.Context, status ledger.PaymentStatus) error {
	return upsertPaymentStatus(ctx, t.q, status)
}

func (t *txFacts) BilledPatients(ctx context.Context) ([]ledger.PatientID, error) {
	return billedPatients(ctx, t.q)
}

func (t *txFacts) GetLabTest(ctx context.Context, id ledger.TestID) (*ledger.LabTest, error) {
	return getLabTest(ctx, t.q, id)
}

func (t *txFacts) SetLabTestStatus(ctx context.Context, id ledger.TestID, status ledger.TestStatus) error {
	return setLabTestStatus(ctx, t.q, id, status)
}

func (t *txFacts) GetRoom(ctx context.Context, id ledger.RoomID) (*ledger.Room, error) {
	return getRoom(ctx, t.q, id)
}

func (t *txFacts) SetRoomOccupancy(ctx context.Context, id ledger.RoomID, occupied bool, patientID *ledger.PatientID) error {
	return setRoomOccupancy(ctx, t.q, id, occupied, patientID)
}

func (t *txFacts) InsertPrescription(ctx context.Context, p ledger.Prescription) (ledger.PrescriptionID, error) {
	return insertPrescription(ctx, t.q, p)
}

func (t *txFacts) AppendAudit(ctx context.Context, entry ledger.AuditEntry) (ledger.LogID, error) {
	return appendAudit(ctx, t.q, entry)
}

// =============================================================================
// FACT STORE (direct, non-transactional reads and writes)
// =============================================================================

func (s *Store) InsertBilling(ctx context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.BillID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertBilling(ctx, s.db, patientID, amount, date)
}

func (s *Store) InsertPayment(ctx context.Context, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.PaymentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, patientID, amount, date)
}

func (s *Store) TotalBilled(ctx context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumAmounts(ctx, s.db, "SELECT amount FROM billing WHERE patient_id = ?", patientID)
}

func (s *Store) TotalPaid(ctx context.Context, patientID ledger.PatientID) (ledger.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sumAmounts(ctx, s.db, "SELECT amount_paid FROM payments WHERE patient_id = ?", patientID)
}

func (s *Store) LatestBillAmount(ctx context.Context, patientID ledger.PatientID) (*ledger.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return latestBillAmount(ctx, s.db, patientID)
}

func (s *Store) GetPaymentStatus(ctx context.Context, patientID ledger.PatientID) (*ledger.PaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getPaymentStatus(ctx, s.db, patientID)
}

func (s *Store) UpsertPaymentStatus(ctx context.Context, status ledger.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertPaymentStatus(ctx, s.db, status)
}

func (s *Store) BilledPatients(ctx context.Context) ([]ledger.PatientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return billedPatients(ctx, s.db)
}

func (s *Store) GetLabTest(ctx context.Context, id ledger.TestID) (*ledger.LabTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getLabTest(ctx, s.db, id)
}

func (s *Store) SetLabTestStatus(ctx context.Context, id ledger.TestID, status ledger.TestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setLabTestStatus(ctx, s.db, id, status)
}

func (s *Store) GetRoom(ctx context.Context, id ledger.RoomID) (*ledger.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getRoom(ctx, s.db, id)
}

func (s *Store) SetRoomOccupancy(ctx context.Context, id ledger.RoomID, occupied bool, patientID *ledger.PatientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setRoomOccupancy(ctx, s.db, id, occupied, patientID)
}

func (s *Store) InsertPrescription(ctx context.Context, p ledger.Prescription) (ledger.PrescriptionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPrescription(ctx, s.db, p)
}

func (s *Store) AppendAudit(ctx context.Context, entry ledger.AuditEntry) (ledger.LogID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, entry)
}

// =============================================================================
// AUDIT QUERIES
// =============================================================================

// QueryAudit returns audit entries matching the filter, newest first.
func (s *Store) QueryAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT log_id, trigger_name, action_type, table_name, record_id,
		       old_value, new_value, action_timestamp, patient_id
		FROM trigger_action_log
	`
	var conds []string
	var args []any
	if filter.PatientID != nil {
		conds = append(conds, "patient_id = ?")
		args = append(args, int64(*filter.PatientID))
	}
	if filter.TriggerName != "" {
		conds = append(conds, "trigger_name = ?")
		args = append(args, filter.TriggerName)
	}
	if filter.TableName != "" {
		conds = append(conds, "table_name = ?")
		args = append(args, filter.TableName)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY log_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e         ledger.AuditEntry
			oldValue  sql.NullString
			newValue  sql.NullString
			timestamp string
			patientID sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.TriggerName, &e.Action, &e.TableName,
			&e.RecordID, &oldValue, &newValue, &timestamp, &patientID); err != nil {
			return nil, err
		}
		e.OldValue = oldValue.String
		e.NewValue = newValue.String
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		if patientID.Valid {
			p := ledger.PatientID(patientID.Int64)
			e.PatientID = &p
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeAudit removes all audit entries. This is the administrative purge,
// the only delete path that exists on the log.
func (s *Store) PurgeAudit(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM trigger_action_log")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// QUERY HELPERS (shared by direct and transactional paths)
// =============================================================================

const dateLayout = "2006-01-02"

func insertBilling(ctx context.Context, q dbtx, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.BillID, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO billing (patient_id, amount, billing_date) VALUES (?, ?, ?)",
		int64(patientID), amount.String(), date.Format(dateLayout),
	)
	if err != nil {
		return 0, wrapConstraint("billing", "insert", err)
	}
	id, err := res.LastInsertId()
	return ledger.BillID(id), err
}

func insertPayment(ctx context.Context, q dbtx, patientID ledger.PatientID, amount ledger.Money, date time.Time) (ledger.PaymentID, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO payments (patient_id, amount_paid, payment_date) VALUES (?, ?, ?)",
		int64(patientID), amount.String(), date.Format(dateLayout),
	)
	if err != nil {
		return 0, wrapConstraint("payments", "insert", err)
	}
	id, err := res.LastInsertId()
	return ledger.PaymentID(id), err
}

// sumAmounts loads amount strings and sums with exact decimals. SQL SUM
// over floats would drift; the ledger never goes through binary floats.
func sumAmounts(ctx context.Context, q dbtx, query string, patientID ledger.PatientID) (ledger.Money, error) {
	rows, err := q.QueryContext(ctx, query, int64(patientID))
	if err != nil {
		return ledger.Money{}, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return ledger.Money{}, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return ledger.Money{}, fmt.Errorf("corrupt amount %q: %w", raw, err)
		}
		total = total.Add(d)
	}
	return ledger.Money{Value: total}, rows.Err()
}

// latestBillAmount: latest by billing date, ties broken by highest id.
func latestBillAmount(ctx context.Context, q dbtx, patientID ledger.PatientID) (*ledger.Money, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		`SELECT amount FROM billing WHERE patient_id = ?
		 ORDER BY billing_date DESC, bill_id DESC LIMIT 1`,
		int64(patientID),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", raw, err)
	}
	m := ledger.Money{Value: d}
	return &m, nil
}

func getPaymentStatus(ctx context.Context, q dbtx, patientID ledger.PatientID) (*ledger.PaymentStatus, error) {
	var (
		raw      string
		complete int
	)
	err := q.QueryRowContext(ctx,
		"SELECT latest_bill_amount, payment_complete FROM payment_status WHERE patient_id = ?",
		int64(patientID),
	).Scan(&raw, &complete)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", raw, err)
	}
	return &ledger.PaymentStatus{
		PatientID:        patientID,
		LatestBillAmount: ledger.Money{Value: d},
		PaymentComplete:  complete != 0,
	}, nil
}

func upsertPaymentStatus(ctx context.Context, q dbtx, status ledger.PaymentStatus) error {
	complete := 0
	if status.PaymentComplete {
		complete = 1
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_status (patient_id, latest_bill_amount, payment_complete)
		VALUES (?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET
			latest_bill_amount = excluded.latest_bill_amount,
			payment_complete = excluded.payment_complete
	`, int64(status.PatientID), status.LatestBillAmount.String(), complete)
	if err != nil {
		return wrapConstraint("payment_status", "upsert", err)
	}
	return nil
}

func billedPatients(ctx context.Context, q dbtx) ([]ledger.PatientID, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT DISTINCT patient_id FROM billing ORDER BY patient_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []ledger.PatientID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, ledger.PatientID(id))
	}
	return ids, rows.Err()
}

func getLabTest(ctx context.Context, q dbtx, id ledger.TestID) (*ledger.LabTest, error) {
	var (
		t        ledger.LabTest
		name     sql.NullString
		testDate sql.NullString
		result   sql.NullString
		notes    sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT test_id, patient_id, doctor_id, test_name, test_date, result, status, notes
		FROM lab_tests WHERE test_id = ?
	`, int64(id)).Scan(&t.ID, &t.PatientID, &t.DoctorID, &name, &testDate, &result, &t.Status, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.TestName = name.String
	t.Result = result.String
	t.Notes = notes.String
	if testDate.Valid {
		t.TestDate, _ = time.Parse(dateLayout, testDate.String)
	}
	return &t, nil
}

func setLabTestStatus(ctx context.Context, q dbtx, id ledger.TestID, status ledger.TestStatus) error {
	res, err := q.ExecContext(ctx,
		"UPDATE lab_tests SET status = ? WHERE test_id = ?",
		string(status), int64(id),
	)
	if err != nil {
		return wrapConstraint("lab_tests", "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrLabTestNotFound
	}
	return nil
}

func getRoom(ctx context.Context, q dbtx, id ledger.RoomID) (*ledger.Room, error) {
	var (
		r          ledger.Room
		roomType   sql.NullString
		capacity   sql.NullInt64
		occupied   int
		patientID  sql.NullInt64
		department sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT room_id, room_number, room_type, capacity, is_occupied, current_patient_id, department_id
		FROM rooms WHERE room_id = ?
	`, int64(id)).Scan(&r.ID, &r.RoomNumber, &roomType, &capacity, &occupied, &patientID, &department)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
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
	return &r, nil
}

func setRoomOccupancy(ctx context.Context, q dbtx, id ledger.RoomID, occupied bool, patientID *ledger.PatientID) error {
	occ := 0
	if occupied {
		occ = 1
	}
	var patient any
	if patientID != nil {
		patient = int64(*patientID)
	}
	res, err := q.ExecContext(ctx,
		"UPDATE rooms SET is_occupied = ?, current_patient_id = ? WHERE room_id = ?",
		occ, patient, int64(id),
	)
	if err != nil {
		return wrapConstraint("rooms", "update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrRoomNotFound
	}
	return nil
}

func insertPrescription(ctx context.Context, q dbtx, p ledger.Prescription) (ledger.PrescriptionID, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO prescriptions (patient_id, doctor_id, medicine_name, dosage, frequency, start_date, end_date, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, int64(p.PatientID), int64(p.DoctorID), p.MedicineName, p.Dosage, p.Frequency,
		formatDate(p.StartDate), formatDate(p.EndDate), p.Notes)
	if err != nil {
		return 0, wrapConstraint("prescriptions", "insert", err)
	}
	id, err := res.LastInsertId()
	return ledger.PrescriptionID(id), err
}

func appendAudit(ctx context.Context, q dbtx, entry ledger.AuditEntry) (ledger.LogID, error) {
	var patient any
	if entry.PatientID != nil {
		patient = int64(*entry.PatientID)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO trigger_action_log
		(trigger_name, action_type, table_name, record_id, old_value, new_value, action_timestamp, patient_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.TriggerName, string(entry.Action), entry.TableName, entry.RecordID,
		entry.OldValue, entry.NewValue, entry.Timestamp.UTC().Format(time.RFC3339Nano), patient)
	if err != nil {
		return 0, fmt.Errorf("failed to append audit entry: %w", err)
	}
	id, err := res.LastInsertId()
	return ledger.LogID(id), err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data except users (for demo scenario loading).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// child tables first; cascades would cover most of these, but this
	// keeps the order explicit
	tables := []string{
		"trigger_action_log", "payment_status", "payments", "billing",
		"lab_tests", "prescriptions", "medical_records", "appointments",
		"rooms", "departments", "doctors", "patients",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func formatDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func wrapConstraint(table, op string, err error) error {
	if isConstraintError(err) {
		return &ledger.IntegrityError{Table: table, Op: op, Cause: err}
	}
	return fmt.Errorf("%s %s: %w", table, op, err)
}

func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
