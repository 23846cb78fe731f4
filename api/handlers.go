/*
handlers.go - HTTP API handlers for the hospital ledger

PURPOSE:
  Exposes the hospital administration system via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.
  Every rule-bearing write (billing, payments, lab test status, room
  occupancy, prescriptions) goes through ledger.Engine so the reactive
  rules fire; plain record CRUD talks to the store directly.

ENDPOINTS:
  Auth:
    POST   /api/login                        Credential check, returns JWT

  Patients:
    GET    /api/patients                     List patients
    POST   /api/patients                     Register patient
    GET    /api/patients/{id}                Patient details
    PUT    /api/patients/{id}                Update patient
    DELETE /api/patients/{id}                Delete patient (cascades)
    GET    /api/patients/{id}/balance        Outstanding balance
    GET    /api/patients/{id}/payment-status Derived payment status
    GET    /api/patients/{id}/bills          Billing history
    GET    /api/patients/{id}/payments       Payment history
    GET    /api/patients/{id}/records        Medical records
    GET    /api/patients/{id}/prescriptions  Prescriptions
    GET    /api/patients/{id}/lab-tests      Lab tests
    GET    /api/patients/{id}/audit          Audit entries for patient

  Billing / Payments:
    POST   /api/bills                        Record a charge
    POST   /api/payments                     Record a payment

  Lab tests / Rooms / Prescriptions:
    POST   /api/lab-tests                    Order a test
    POST   /api/lab-tests/{id}/status        Change status (may auto-bill)
    GET    /api/rooms                        List rooms
    POST   /api/rooms                        Add room
    POST   /api/rooms/{id}/occupancy         Admit/discharge
    POST   /api/prescriptions                Issue prescription

  Audit / Admin:
    GET    /api/audit                        Query the trigger action log
    DELETE /api/admin/audit                  Purge the log (admin only)
    POST   /api/admin/reconcile              Rebuild derived state

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, integrity violations
  - 401: Missing/invalid credentials
  - 404: Resource not found
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medcore/hospital-ledger/auth"
	"github.com/medcore/hospital-ledger/ledger"
	"github.com/medcore/hospital-ledger/store/sqlite"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *ledger.Engine
	Auth   *auth.Service
	Log    *zap.Logger

	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, engine *ledger.Engine, authSvc *auth.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Engine: engine, Auth: authSvc, Log: log}
}

// =============================================================================
// AUTH
// =============================================================================

// Login verifies a credential and returns a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required", nil)
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	user, _ := h.Auth.Verify(token)
	resp := LoginResponse{Token: token}
	if user != nil {
		resp.Role = user.Role
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PATIENT HANDLERS
// =============================================================================

// ListPatients returns all patients.
func (h *Handler) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.Store.ListPatients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list patients", err)
		return
	}

	dtos := make([]PatientDTO, len(patients))
	for i, p := range patients {
		dtos[i] = toPatientDTO(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": dtos})
}

// CreatePatient registers a new patient.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	id, err := h.Store.AddPatient(r.Context(), sqlite.Patient{
		Name:    req.Name,
		Age:     req.Age,
		Gender:  req.Gender,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		h.domainError(w, "Failed to create patient", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": int64(id)})
}

// GetPatient returns one patient.
func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	patient, err := h.Store.GetPatient(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get patient", err)
		return
	}
	if patient == nil {
		writeError(w, http.StatusNotFound, "Patient not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toPatientDTO(*patient))
}

// UpdatePatient overwrites a patient's demographic fields.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Store.UpdatePatient(r.Context(), sqlite.Patient{
		ID:      ledger.PatientID(id),
		Name:    req.Name,
		Age:     req.Age,
		Gender:  req.Gender,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		h.domainError(w, "Failed to update patient", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeletePatient removes a patient and all owned rows.
func (h *Handler) DeletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeletePatient(r.Context(), ledger.PatientID(id)); err != nil {
		h.domainError(w, "Failed to delete patient", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetBalance returns a patient's outstanding balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	patientID := ledger.PatientID(id)
	ctx := r.Context()

	billed, err := h.Engine.TotalBilled(ctx, patientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	paid, err := h.Engine.TotalPaid(ctx, patientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		PatientID:   id,
		TotalBilled: billed.String(),
		TotalPaid:   paid.String(),
		Balance:     billed.Sub(paid).String(),
	})
}

// GetPaymentStatus returns the derived payment completion row.
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	status, err := h.Engine.PaymentStatusFor(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get payment status", err)
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "No payment status for patient", nil)
		return
	}
	writeJSON(w, http.StatusOK, PaymentStatusDTO{
		PatientID:        int64(status.PatientID),
		LatestBillAmount: status.LatestBillAmount.String(),
		PaymentComplete:  status.PaymentComplete,
	})
}

// ListPatientBills returns a patient's billing history.
func (h *Handler) ListPatientBills(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bills, err := h.Store.ListBillings(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bills", err)
		return
	}

	dtos := make([]BillingDTO, len(bills))
	for i, b := range bills {
		dtos[i] = BillingDTO{
			ID:          int64(b.ID),
			PatientID:   int64(b.PatientID),
			Amount:      b.Amount.String(),
			BillingDate: b.BillingDate.Format(dateLayout),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": dtos})
}

// ListPatientPayments returns a patient's payment history.
func (h *Handler) ListPatientPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	payments, err := h.Store.ListPayments(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = PaymentDTO{
			ID:          int64(p.ID),
			PatientID:   int64(p.PatientID),
			Amount:      p.Amount.String(),
			PaymentDate: p.PaymentDate.Format(dateLayout),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": dtos})
}

// ListPatientRecords returns a patient's medical records.
func (h *Handler) ListPatientRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	records, err := h.Store.ListMedicalRecords(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list medical records", err)
		return
	}

	dtos := make([]MedicalRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = MedicalRecordDTO{
			ID:        rec.ID,
			PatientID: int64(rec.PatientID),
			DoctorID:  int64(rec.DoctorID),
			Diagnosis: rec.Diagnosis,
			Treatment: rec.Treatment,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": dtos})
}

// ListPatientPrescriptions returns a patient's prescriptions.
func (h *Handler) ListPatientPrescriptions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	prescriptions, err := h.Store.ListPrescriptions(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list prescriptions", err)
		return
	}

	dtos := make([]PrescriptionDTO, len(prescriptions))
	for i, p := range prescriptions {
		dtos[i] = toPrescriptionDTO(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"prescriptions": dtos})
}

// ListPatientLabTests returns a patient's lab tests.
func (h *Handler) ListPatientLabTests(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tests, err := h.Store.ListLabTests(r.Context(), ledger.PatientID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lab tests", err)
		return
	}

	dtos := make([]LabTestDTO, len(tests))
	for i, t := range tests {
		dtos[i] = toLabTestDTO(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"lab_tests": dtos})
}

// GetPatientAudit returns the audit entries attributed to a patient.
func (h *Handler) GetPatientAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	patientID := ledger.PatientID(id)
	entries, err := h.Engine.AuditTrail(r.Context(), ledger.AuditFilter{PatientID: &patientID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditDTOs(entries)})
}

// =============================================================================
// DOCTOR HANDLERS
// =============================================================================

// ListDoctors returns all doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.Store.ListDoctors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list doctors", err)
		return
	}

	dtos := make([]DoctorDTO, len(doctors))
	for i, d := range doctors {
		dtos[i] = toDoctorDTO(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": dtos})
}

// CreateDoctor registers a doctor and echoes the created row.
func (h *Handler) CreateDoctor(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	created, err := h.Store.AddDoctor(r.Context(), sqlite.Doctor{
		Name:           req.Name,
		Specialization: req.Specialization,
		Phone:          req.Phone,
	})
	if err != nil {
		h.domainError(w, "Failed to create doctor", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDoctorDTO(*created))
}

// GetDoctor returns one doctor.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doctor, err := h.Store.GetDoctor(r.Context(), ledger.DoctorID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get doctor", err)
		return
	}
	if doctor == nil {
		writeError(w, http.StatusNotFound, "Doctor not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDoctorDTO(*doctor))
}

// =============================================================================
// APPOINTMENT / MEDICAL RECORD HANDLERS
// =============================================================================

// ListAppointments returns all appointments with names joined.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	appointments, err := h.Store.ListAppointments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list appointments", err)
		return
	}

	dtos := make([]AppointmentDTO, len(appointments))
	for i, a := range appointments {
		dtos[i] = AppointmentDTO{
			ID:          a.ID,
			PatientID:   int64(a.PatientID),
			DoctorID:    int64(a.DoctorID),
			Date:        a.Date.Format(dateLayout),
			PatientName: a.PatientName,
			DoctorName:  a.DoctorName,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": dtos})
}

// CreateAppointment schedules an appointment.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	id, err := h.Store.AddAppointment(r.Context(), sqlite.Appointment{
		PatientID: ledger.PatientID(req.PatientID),
		DoctorID:  ledger.DoctorID(req.DoctorID),
		Date:      date,
	})
	if err != nil {
		h.domainError(w, "Failed to create appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// CreateMedicalRecord adds a diagnosis/treatment note.
func (h *Handler) CreateMedicalRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateMedicalRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id, err := h.Store.AddMedicalRecord(r.Context(), sqlite.MedicalRecord{
		PatientID: ledger.PatientID(req.PatientID),
		DoctorID:  ledger.DoctorID(req.DoctorID),
		Diagnosis: req.Diagnosis,
		Treatment: req.Treatment,
	})
	if err != nil {
		h.domainError(w, "Failed to create medical record", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// =============================================================================
// BILLING / PAYMENT HANDLERS
// =============================================================================

// CreateBilling records a charge against a patient.
func (h *Handler) CreateBilling(w http.ResponseWriter, r *http.Request) {
	var req CreateBillingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, date, ok := parseAmountAndDate(w, req.Amount, req.Date)
	if !ok {
		return
	}

	id, err := h.Engine.RecordBilling(r.Context(), ledger.PatientID(req.PatientID), amount, date)
	if err != nil {
		h.domainError(w, "Failed to record billing", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": int64(id)})
}

// CreatePayment records a payment. The payment status rule fires inside
// the same unit of work.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, date, ok := parseAmountAndDate(w, req.Amount, req.Date)
	if !ok {
		return
	}

	id, err := h.Engine.RecordPayment(r.Context(), ledger.PatientID(req.PatientID), amount, date)
	if err != nil {
		h.domainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": int64(id)})
}

// =============================================================================
// LAB TEST HANDLERS
// =============================================================================

// CreateLabTest orders a lab test (status Pending).
func (h *Handler) CreateLabTest(w http.ResponseWriter, r *http.Request) {
	var req CreateLabTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	test := ledger.LabTest{
		PatientID: ledger.PatientID(req.PatientID),
		DoctorID:  ledger.DoctorID(req.DoctorID),
		TestName:  req.TestName,
		Notes:     req.Notes,
	}
	if req.TestDate != "" {
		date, err := time.Parse(dateLayout, req.TestDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		test.TestDate = date
	}

	id, err := h.Store.AddLabTest(r.Context(), test)
	if err != nil {
		h.domainError(w, "Failed to create lab test", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": int64(id)})
}

// SetLabTestStatus changes a test's status through the engine, so a
// transition into Completed fires the automatic charge.
func (h *Handler) SetLabTestStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetLabTestStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Engine.UpdateLabTestStatus(r.Context(), ledger.TestID(id), ledger.TestStatus(req.Status))
	if err != nil {
		h.domainError(w, "Failed to update lab test status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// =============================================================================
// ROOM HANDLERS
// =============================================================================

// ListRooms returns all rooms.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.Store.ListRooms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rooms", err)
		return
	}

	dtos := make([]RoomDTO, len(rooms))
	for i, room := range rooms {
		dtos[i] = toRoomDTO(room)
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": dtos})
}

// CreateRoom adds a room.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RoomNumber == "" {
		writeError(w, http.StatusBadRequest, "Room number is required", nil)
		return
	}

	id, err := h.Store.AddRoom(r.Context(), ledger.Room{
		RoomNumber:   req.RoomNumber,
		RoomType:     req.RoomType,
		Capacity:     req.Capacity,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		h.domainError(w, "Failed to create room", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": int64(id)})
}

// SetRoomOccupancy admits or discharges through the engine, so flips are
// logged to the audit trail.
func (h *Handler) SetRoomOccupancy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req SetOccupancyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var patientID *ledger.PatientID
	if req.PatientID != nil {
		p := ledger.PatientID(*req.PatientID)
		patientID = &p
	}
	err := h.Engine.SetRoomOccupancy(r.Context(), ledger.RoomID(id), req.IsOccupied, patientID)
	if err != nil {
		h.domainError(w, "Failed to update room occupancy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// =============================================================================
// PRESCRIPTION HANDLERS
// =============================================================================

// CreatePrescription issues a prescription through the engine, which
// appends the audit entry.
func (h *Handler) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req CreatePrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.MedicineName == "" {
		writeError(w, http.StatusBadRequest, "Medicine name is required", nil)
		return
	}

	p := ledger.Prescription{
		PatientID:    ledger.PatientID(req.PatientID),
		DoctorID:     ledger.DoctorID(req.DoctorID),
		MedicineName: req.MedicineName,
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		Notes:        req.Notes,
	}
	if req.StartDate != "" {
		date, err := time.Parse(dateLayout, req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start date (use YYYY-MM-DD)", err)
			return
		}
		p.StartDate = date
	}
	if req.EndDate != "" {
		date, err := time.Parse(dateLayout, req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end date (use YYYY-MM-DD)", err)
			return
		}
		p.EndDate = date
	}

	id, err := h.Engine.AddPrescription(r.Context(), p)
	if err != nil {
		h.domainError(w, "Failed to create prescription", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": int64(id)})
}

// =============================================================================
// DEPARTMENT HANDLERS
// =============================================================================

// ListDepartments returns all departments.
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list departments", err)
		return
	}

	dtos := make([]DepartmentDTO, len(departments))
	for i, d := range departments {
		dto := DepartmentDTO{ID: d.ID, Name: d.Name, Phone: d.Phone}
		if d.HeadDoctor != nil {
			head := int64(*d.HeadDoctor)
			dto.HeadDoctor = &head
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, map[string]any{"departments": dtos})
}

// CreateDepartment adds a department.
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req CreateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	dept := sqlite.Department{Name: req.Name, Phone: req.Phone}
	if req.HeadDoctor != nil {
		head := ledger.DoctorID(*req.HeadDoctor)
		dept.HeadDoctor = &head
	}
	id, err := h.Store.AddDepartment(r.Context(), dept)
	if err != nil {
		h.domainError(w, "Failed to create department", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// =============================================================================
// AUDIT / ADMIN HANDLERS
// =============================================================================

// QueryAudit returns audit entries, newest first. Filters come from
// query params: patient_id, trigger, table, limit.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	filter := ledger.AuditFilter{
		TriggerName: r.URL.Query().Get("trigger"),
		TableName:   r.URL.Query().Get("table"),
	}
	if raw := r.URL.Query().Get("patient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid patient_id", err)
			return
		}
		p := ledger.PatientID(id)
		filter.PatientID = &p
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	entries, err := h.Engine.AuditTrail(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toAuditDTOs(entries)})
}

// PurgeAudit clears the audit log. Admin only; routed behind RequireRole.
func (h *Handler) PurgeAudit(w http.ResponseWriter, r *http.Request) {
	purged, err := h.Engine.PurgeAuditLog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to purge audit log", err)
		return
	}

	user, _ := auth.FromContext(r.Context())
	if user != nil {
		h.Log.Info("audit log purged",
			zap.String("by", user.Username),
			zap.Int64("entries", purged))
	}
	writeJSON(w, http.StatusOK, map[string]any{"purged": purged})
}

// Reconcile rebuilds derived payment state from facts.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Reconcile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileReportDTO{
		Patients: report.Patients,
		Updated:  report.Updated,
	})
}

// VerifySchema reports expected tables missing from the database.
func (h *Handler) VerifySchema(w http.ResponseWriter, r *http.Request) {
	missing, err := h.Store.VerifySchema(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Schema verification failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      len(missing) == 0,
		"missing": missing,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// domainError maps domain errors to HTTP status codes.
func (h *Handler) domainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// pathID parses the {id} URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// parseAmountAndDate validates a money string and an optional date
// (today when absent), writing a 400 on failure.
func parseAmountAndDate(w http.ResponseWriter, rawAmount, rawDate string) (ledger.Money, time.Time, bool) {
	amount, err := ledger.NewMoney(rawAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return ledger.Money{}, time.Time{}, false
	}
	date := time.Now().UTC()
	if rawDate != "" {
		date, err = time.Parse(dateLayout, rawDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return ledger.Money{}, time.Time{}, false
		}
	}
	return amount, date, true
}

func toPatientDTO(p sqlite.Patient) PatientDTO {
	return PatientDTO{
		ID:      int64(p.ID),
		Name:    p.Name,
		Age:     p.Age,
		Gender:  p.Gender,
		Address: p.Address,
		Phone:   p.Phone,
	}
}

func toDoctorDTO(d sqlite.Doctor) DoctorDTO {
	return DoctorDTO{
		ID:             int64(d.ID),
		Name:           d.Name,
		Specialization: d.Specialization,
		Phone:          d.Phone,
	}
}

func toRoomDTO(r ledger.Room) RoomDTO {
	dto := RoomDTO{
		ID:         int64(r.ID),
		RoomNumber: r.RoomNumber,
		RoomType:   r.RoomType,
		Capacity:   r.Capacity,
		IsOccupied: r.IsOccupied,
	}
	if r.CurrentPatientID != nil {
		p := int64(*r.CurrentPatientID)
		dto.CurrentPatientID = &p
	}
	if r.DepartmentID != nil {
		d := *r.DepartmentID
		dto.DepartmentID = &d
	}
	return dto
}

func toLabTestDTO(t ledger.LabTest) LabTestDTO {
	dto := LabTestDTO{
		ID:        int64(t.ID),
		PatientID: int64(t.PatientID),
		DoctorID:  int64(t.DoctorID),
		TestName:  t.TestName,
		Result:    t.Result,
		Status:    string(t.Status),
		Notes:     t.Notes,
	}
	if !t.TestDate.IsZero() {
		dto.TestDate = t.TestDate.Format(dateLayout)
	}
	return dto
}

func toPrescriptionDTO(p ledger.Prescription) PrescriptionDTO {
	dto := PrescriptionDTO{
		ID:           int64(p.ID),
		PatientID:    int64(p.PatientID),
		DoctorID:     int64(p.DoctorID),
		MedicineName: p.MedicineName,
		Dosage:       p.Dosage,
		Frequency:    p.Frequency,
		Notes:        p.Notes,
	}
	if !p.StartDate.IsZero() {
		dto.StartDate = p.StartDate.Format(dateLayout)
	}
	if !p.EndDate.IsZero() {
		dto.EndDate = p.EndDate.Format(dateLayout)
	}
	return dto
}

func toAuditDTOs(entries []ledger.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dto := AuditEntryDTO{
			ID:          int64(e.ID),
			TriggerName: e.TriggerName,
			Action:      string(e.Action),
			TableName:   e.TableName,
			RecordID:    e.RecordID,
			OldValue:    e.OldValue,
			NewValue:    e.NewValue,
			Timestamp:   e.Timestamp.Format(time.RFC3339Nano),
		}
		if e.PatientID != nil {
			p := int64(*e.PatientID)
			dto.PatientID = &p
		}
		dtos[i] = dto
	}
	return dtos
}
