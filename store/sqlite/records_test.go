package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/hospital-ledger/ledger"
	"github.com/medcore/hospital-ledger/store/sqlite"
)

func TestPatientCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.AddPatient(ctx, sqlite.Patient{
		Name: "Alice Brown", Age: 58, Gender: "F", Address: "12 Oak St", Phone: "555-0301",
	})
	require.NoError(t, err)

	got, err := store.GetPatient(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Alice Brown", got.Name)
	assert.Equal(t, 58, got.Age)

	got.Address = "99 Maple Dr"
	require.NoError(t, store.UpdatePatient(ctx, *got))

	got, err = store.GetPatient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "99 Maple Dr", got.Address)

	patients, err := store.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, patients, 1)

	require.NoError(t, store.DeletePatient(ctx, id))
	assert.ErrorIs(t, store.DeletePatient(ctx, id), ledger.ErrPatientNotFound)

	missing, err := store.GetPatient(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAddDoctor_ReturnsCreatedRow(t *testing.T) {
	store := newTestStore(t)

	created, err := store.AddDoctor(context.Background(), sqlite.Doctor{
		Name: "Dr. Sarah Smith", Specialization: "Cardiology", Phone: "555-0101",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Dr. Sarah Smith", created.Name)
	assert.Equal(t, "Cardiology", created.Specialization)
}

func TestListAppointments_JoinsNames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	patient := addPatient(t, store, "Alice")
	doctor := addDoctor(t, store)

	_, err := store.AddAppointment(ctx, sqlite.Appointment{
		PatientID: patient, DoctorID: doctor, Date: day(2025, time.July, 4),
	})
	require.NoError(t, err)

	appointments, err := store.ListAppointments(ctx)
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, "Alice", appointments[0].PatientName)
	assert.Equal(t, "Dr. Test", appointments[0].DoctorName)
	assert.Equal(t, "2025-07-04", appointments[0].Date.Format("2006-01-02"))
}

func TestMedicalRecords_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	patient := addPatient(t, store, "Alice")
	doctor := addDoctor(t, store)

	for _, diag := range []string{"Flu", "Follow-up"} {
		_, err := store.AddMedicalRecord(ctx, sqlite.MedicalRecord{
			PatientID: patient, DoctorID: doctor, Diagnosis: diag, Treatment: "Rest",
		})
		require.NoError(t, err)
	}

	records, err := store.ListMedicalRecords(ctx, patient)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Follow-up", records[0].Diagnosis)
}

func TestRooms_CreateAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doctor := addDoctor(t, store)

	deptID, err := store.AddDepartment(ctx, sqlite.Department{
		Name: "Cardiology", HeadDoctor: &doctor, Phone: "555-0201",
	})
	require.NoError(t, err)

	_, err = store.AddRoom(ctx, ledger.Room{
		RoomNumber: "101", RoomType: "ICU", Capacity: 1, DepartmentID: &deptID,
	})
	require.NoError(t, err)

	rooms, err := store.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "ICU", rooms[0].RoomType)
	assert.False(t, rooms[0].IsOccupied, "new rooms start vacant")
	require.NotNil(t, rooms[0].DepartmentID)
	assert.Equal(t, deptID, *rooms[0].DepartmentID)

	// The type check constraint rejects unknown room types.
	_, err = store.AddRoom(ctx, ledger.Room{RoomNumber: "102", RoomType: "Penthouse"})
	assert.ErrorIs(t, err, ledger.ErrIntegrityViolation)
}

func TestLabTests_InvalidStatusRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	patient := addPatient(t, store, "Alice")
	doctor := addDoctor(t, store)

	_, err := store.AddLabTest(ctx, ledger.LabTest{
		PatientID: patient, DoctorID: doctor, TestName: "CBC", Status: "Done",
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)

	err = store.SetLabTestStatus(ctx, 999, ledger.TestCompleted)
	assert.ErrorIs(t, err, ledger.ErrLabTestNotFound)
}

func TestUsers_UniqueUsernames(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateUser(ctx, sqlite.User{
		Username: "admin", PasswordHash: "x", Role: "admin",
	})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, sqlite.User{
		Username: "admin", PasswordHash: "y", Role: "staff",
	})
	assert.ErrorIs(t, err, ledger.ErrIntegrityViolation)

	n, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	user, err := store.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "admin", user.Role)

	missing, err := store.GetUserByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
