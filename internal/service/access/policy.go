// Package access holds the read-time authorization predicates. They are
// pure functions of the caller and the current rows; nothing here is cached,
// so a change to a patient's admitting hospital is visible on the next call.
package access

import (
	"github.com/jwalitptl/carebridge/internal/model"
)

// CanAccessPatientData decides whether actor may read the health records,
// reports and summaries of patient.
func CanAccessPatientData(actor model.Actor, patient *model.Patient) bool {
	if patient == nil {
		return false
	}
	switch a := actor.(type) {
	case model.PatientActor:
		return patient.UserID == a.ID
	case model.HospitalActor:
		return patient.IsAdmittedAt(a.ID)
	case model.DoctorActor:
		return patient.IsAdmittedAt(a.HospitalID)
	case model.AdminActor:
		return false
	default:
		return false
	}
}

// CanRemovePatientData decides whether actor may delete a health record or
// report of patient: the patient themselves, or a doctor at the admitting
// hospital.
func CanRemovePatientData(actor model.Actor, patient *model.Patient) bool {
	if patient == nil {
		return false
	}
	switch a := actor.(type) {
	case model.PatientActor:
		return patient.UserID == a.ID
	case model.DoctorActor:
		return patient.IsAdmittedAt(a.HospitalID)
	case model.HospitalActor, model.AdminActor:
		return false
	default:
		return false
	}
}

// CanViewTransfer decides whether actor may see transfer t of patient.
// Hospitals keep visibility after handover; doctors only see accepted or
// completed transfers that touch their own hospital.
func CanViewTransfer(actor model.Actor, t *model.Transfer, patient *model.Patient) bool {
	if t == nil {
		return false
	}
	switch a := actor.(type) {
	case model.PatientActor:
		return patient != nil && patient.ID == t.PatientID && patient.UserID == a.ID
	case model.HospitalActor:
		return t.Involves(a.ID)
	case model.DoctorActor:
		if t.Status != model.TransferStatusAccepted && t.Status != model.TransferStatusCompleted {
			return false
		}
		return t.Involves(a.HospitalID)
	case model.AdminActor:
		return false
	default:
		return false
	}
}
