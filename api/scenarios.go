/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with realistic
  data for demos. Each scenario creates patients, doctors and the writes
  that exercise the reactive rules, so the audit trail and derived
  payment state come out non-trivial.

AVAILABLE SCENARIOS:
  general-ward:     Departments, rooms, doctors, patients, appointments
  billing-cycle:    One patient through bill -> partial pay -> full pay
  lab-workflow:     Lab tests moving to Completed, automatic charges

HOW SCENARIOS WORK:
 1. Reset database (clear all data; users survive)
 2. Create base records via the store
 3. Drive rule-bearing writes through the engine

NOTE:
  Scenarios reset the database. Only use in development/demo
  environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - ledger/engine.go: the rule-firing entry points
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/medcore/hospital-ledger/ledger"
	"github.com/medcore/hospital-ledger/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "general-ward",
		Name:        "General Ward",
		Description: "Departments, rooms, doctors, patients and appointments",
	},
	{
		ID:          "billing-cycle",
		Name:        "Billing Cycle",
		Description: "One patient billed 500.00, paying 300.00 then 200.00",
	},
	{
		ID:          "lab-workflow",
		Name:        "Lab Workflow",
		Description: "Lab tests completing and firing automatic charges",
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

// GetCurrentScenario reports which scenario was last loaded.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario resets the database and loads the named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "general-ward":
		err = h.loadGeneralWard(ctx)
	case "billing-cycle":
		err = h.loadBillingCycle(ctx)
	case "lab-workflow":
		err = h.loadLabWorkflow(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// ResetDatabase clears all data (users survive).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadGeneralWard(ctx context.Context) error {
	smith, err := h.Store.AddDoctor(ctx, sqlite.Doctor{
		Name: "Dr. Sarah Smith", Specialization: "Cardiology", Phone: "555-0101",
	})
	if err != nil {
		return err
	}
	patel, err := h.Store.AddDoctor(ctx, sqlite.Doctor{
		Name: "Dr. Raj Patel", Specialization: "General Medicine", Phone: "555-0102",
	})
	if err != nil {
		return err
	}

	cardiology, err := h.Store.AddDepartment(ctx, sqlite.Department{
		Name: "Cardiology", HeadDoctor: &smith.ID, Phone: "555-0201",
	})
	if err != nil {
		return err
	}

	alice, err := h.Store.AddPatient(ctx, sqlite.Patient{
		Name: "Alice Brown", Age: 58, Gender: "F", Address: "12 Oak St", Phone: "555-0301",
	})
	if err != nil {
		return err
	}
	bob, err := h.Store.AddPatient(ctx, sqlite.Patient{
		Name: "Bob Green", Age: 34, Gender: "M", Address: "7 Elm Ave", Phone: "555-0302",
	})
	if err != nil {
		return err
	}

	room, err := h.Store.AddRoom(ctx, ledger.Room{
		RoomNumber: "101", RoomType: "General", Capacity: 2, DepartmentID: &cardiology,
	})
	if err != nil {
		return err
	}
	if _, err := h.Store.AddRoom(ctx, ledger.Room{
		RoomNumber: "102", RoomType: "ICU", Capacity: 1, DepartmentID: &cardiology,
	}); err != nil {
		return err
	}

	// Admit Alice; the occupancy flip lands in the audit trail.
	if err := h.Engine.SetRoomOccupancy(ctx, room, true, &alice); err != nil {
		return err
	}

	today := time.Now().UTC()
	if _, err := h.Store.AddAppointment(ctx, sqlite.Appointment{
		PatientID: alice, DoctorID: smith.ID, Date: today.AddDate(0, 0, 1),
	}); err != nil {
		return err
	}
	if _, err := h.Store.AddAppointment(ctx, sqlite.Appointment{
		PatientID: bob, DoctorID: patel.ID, Date: today.AddDate(0, 0, 2),
	}); err != nil {
		return err
	}

	if _, err := h.Store.AddMedicalRecord(ctx, sqlite.MedicalRecord{
		PatientID: alice, DoctorID: smith.ID,
		Diagnosis: "Hypertension", Treatment: "Beta blockers, follow-up in 2 weeks",
	}); err != nil {
		return err
	}

	_, err = h.Engine.AddPrescription(ctx, ledger.Prescription{
		PatientID: alice, DoctorID: smith.ID,
		MedicineName: "Atenolol", Dosage: "50mg", Frequency: "once daily",
		StartDate: today,
	})
	return err
}

func (h *Handler) loadBillingCycle(ctx context.Context) error {
	doctor, err := h.Store.AddDoctor(ctx, sqlite.Doctor{
		Name: "Dr. Raj Patel", Specialization: "General Medicine", Phone: "555-0102",
	})
	if err != nil {
		return err
	}

	john, err := h.Store.AddPatient(ctx, sqlite.Patient{
		Name: "John Doe", Age: 45, Gender: "M", Address: "3 Pine Rd", Phone: "555-0303",
	})
	if err != nil {
		return err
	}

	today := time.Now().UTC()
	if _, err := h.Store.AddMedicalRecord(ctx, sqlite.MedicalRecord{
		PatientID: john, DoctorID: doctor.ID,
		Diagnosis: "Appendicitis", Treatment: "Appendectomy",
	}); err != nil {
		return err
	}
	if _, err := h.Engine.RecordBilling(ctx, john, ledger.MustMoney("500.00"), today); err != nil {
		return err
	}
	// Partial payment leaves PaymentComplete false...
	if _, err := h.Engine.RecordPayment(ctx, john, ledger.MustMoney("300.00"), today); err != nil {
		return err
	}
	// ...and the remainder flips it true.
	if _, err := h.Engine.RecordPayment(ctx, john, ledger.MustMoney("200.00"), today); err != nil {
		return err
	}
	return nil
}

func (h *Handler) loadLabWorkflow(ctx context.Context) error {
	doctor, err := h.Store.AddDoctor(ctx, sqlite.Doctor{
		Name: "Dr. Sarah Smith", Specialization: "Cardiology", Phone: "555-0101",
	})
	if err != nil {
		return err
	}

	alice, err := h.Store.AddPatient(ctx, sqlite.Patient{
		Name: "Alice Brown", Age: 58, Gender: "F", Address: "12 Oak St", Phone: "555-0301",
	})
	if err != nil {
		return err
	}

	today := time.Now().UTC()
	done, err := h.Store.AddLabTest(ctx, ledger.LabTest{
		PatientID: alice, DoctorID: doctor.ID,
		TestName: "Lipid Panel", TestDate: today,
	})
	if err != nil {
		return err
	}
	if _, err := h.Store.AddLabTest(ctx, ledger.LabTest{
		PatientID: alice, DoctorID: doctor.ID,
		TestName: "ECG", TestDate: today,
	}); err != nil {
		return err
	}

	// Completing the first test fires the automatic 500.00 charge.
	return h.Engine.UpdateLabTestStatus(ctx, done, ledger.TestCompleted)
}
