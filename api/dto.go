/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY REPRESENTATION:
  Amounts travel as decimal strings ("500.00"), never as JSON numbers.
  Parsing happens in handlers via ledger.NewMoney, which also enforces
  the two-fraction-digit limit.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest is the credential check input.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// =============================================================================
// PATIENTS / DOCTORS
// =============================================================================

// PatientDTO represents a patient in API responses.
type PatientDTO struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// CreatePatientRequest is the request to register a patient.
type CreatePatientRequest struct {
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// DoctorDTO represents a doctor in API responses.
type DoctorDTO struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Phone          string `json:"phone"`
}

// CreateDoctorRequest is the request to register a doctor. The response
// echoes the created row, identifier included.
type CreateDoctorRequest struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Phone          string `json:"phone"`
}

// =============================================================================
// APPOINTMENTS / MEDICAL RECORDS
// =============================================================================

// AppointmentDTO represents an appointment with names joined in.
type AppointmentDTO struct {
	ID          int64  `json:"id"`
	PatientID   int64  `json:"patient_id"`
	DoctorID    int64  `json:"doctor_id"`
	Date        string `json:"date"`
	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// CreateAppointmentRequest schedules an appointment.
type CreateAppointmentRequest struct {
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	Date      string `json:"date"`
}

// MedicalRecordDTO represents a diagnosis/treatment note.
type MedicalRecordDTO struct {
	ID        int64  `json:"id"`
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	Diagnosis string `json:"diagnosis"`
	Treatment string `json:"treatment"`
}

// CreateMedicalRecordRequest adds a diagnosis/treatment note.
type CreateMedicalRecordRequest struct {
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	Diagnosis string `json:"diagnosis"`
	Treatment string `json:"treatment"`
}

// =============================================================================
// BILLING / PAYMENTS
// =============================================================================

// BillingDTO represents one billing fact.
type BillingDTO struct {
	ID          int64  `json:"id"`
	PatientID   int64  `json:"patient_id"`
	Amount      string `json:"amount"`
	BillingDate string `json:"billing_date"`
}

// CreateBillingRequest records a charge against a patient.
type CreateBillingRequest struct {
	PatientID int64  `json:"patient_id"`
	Amount    string `json:"amount"`
	Date      string `json:"date,omitempty"`
}

// PaymentDTO represents one payment fact.
type PaymentDTO struct {
	ID          int64  `json:"id"`
	PatientID   int64  `json:"patient_id"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"payment_date"`
}

// CreatePaymentRequest records a payment from a patient.
type CreatePaymentRequest struct {
	PatientID int64  `json:"patient_id"`
	Amount    string `json:"amount"`
	Date      string `json:"date,omitempty"`
}

// BalanceDTO is the outstanding balance for one patient.
type BalanceDTO struct {
	PatientID   int64  `json:"patient_id"`
	TotalBilled string `json:"total_billed"`
	TotalPaid   string `json:"total_paid"`
	Balance     string `json:"balance"`
}

// PaymentStatusDTO is the derived payment completion row.
type PaymentStatusDTO struct {
	PatientID        int64  `json:"patient_id"`
	LatestBillAmount string `json:"latest_bill_amount"`
	PaymentComplete  bool   `json:"payment_complete"`
}

// =============================================================================
// LAB TESTS / ROOMS / PRESCRIPTIONS
// =============================================================================

// LabTestDTO represents a lab test order.
type LabTestDTO struct {
	ID        int64  `json:"id"`
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	TestName  string `json:"test_name"`
	TestDate  string `json:"test_date,omitempty"`
	Result    string `json:"result,omitempty"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

// CreateLabTestRequest orders a lab test.
type CreateLabTestRequest struct {
	PatientID int64  `json:"patient_id"`
	DoctorID  int64  `json:"doctor_id"`
	TestName  string `json:"test_name"`
	TestDate  string `json:"test_date,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// SetLabTestStatusRequest moves a test to a new status. Transitions into
// Completed fire the automatic charge.
type SetLabTestStatusRequest struct {
	Status string `json:"status"`
}

// RoomDTO represents a room and its occupancy.
type RoomDTO struct {
	ID               int64  `json:"id"`
	RoomNumber       string `json:"room_number"`
	RoomType         string `json:"room_type"`
	Capacity         int    `json:"capacity"`
	IsOccupied       bool   `json:"is_occupied"`
	CurrentPatientID *int64 `json:"current_patient_id,omitempty"`
	DepartmentID     *int64 `json:"department_id,omitempty"`
}

// CreateRoomRequest adds a room, initially vacant.
type CreateRoomRequest struct {
	RoomNumber   string `json:"room_number"`
	RoomType     string `json:"room_type"`
	Capacity     int    `json:"capacity"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

// SetOccupancyRequest admits or discharges a patient from a room.
type SetOccupancyRequest struct {
	IsOccupied bool   `json:"is_occupied"`
	PatientID  *int64 `json:"patient_id,omitempty"`
}

// PrescriptionDTO represents a prescription.
type PrescriptionDTO struct {
	ID           int64  `json:"id"`
	PatientID    int64  `json:"patient_id"`
	DoctorID     int64  `json:"doctor_id"`
	MedicineName string `json:"medicine_name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// CreatePrescriptionRequest issues a prescription.
type CreatePrescriptionRequest struct {
	PatientID    int64  `json:"patient_id"`
	DoctorID     int64  `json:"doctor_id"`
	MedicineName string `json:"medicine_name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// DepartmentDTO represents a department.
type DepartmentDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HeadDoctor *int64 `json:"head_doctor,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// CreateDepartmentRequest adds a department.
type CreateDepartmentRequest struct {
	Name       string `json:"name"`
	HeadDoctor *int64 `json:"head_doctor,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// =============================================================================
// AUDIT / ADMIN
// =============================================================================

// AuditEntryDTO is one trigger action log row.
type AuditEntryDTO struct {
	ID          int64  `json:"id"`
	TriggerName string `json:"trigger_name"`
	Action      string `json:"action"`
	TableName   string `json:"table_name"`
	RecordID    int64  `json:"record_id"`
	OldValue    string `json:"old_value,omitempty"`
	NewValue    string `json:"new_value,omitempty"`
	Timestamp   string `json:"timestamp"`
	PatientID   *int64 `json:"patient_id,omitempty"`
}

// ReconcileReportDTO summarizes a reconciliation run.
type ReconcileReportDTO struct {
	Patients int `json:"patients"`
	Updated  int `json:"updated"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
