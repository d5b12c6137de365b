package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Actor is the resolved caller of an operation. It is a closed set:
// PatientActor, DoctorActor, HospitalActor and AdminActor are the only
// implementations, so a type switch over them is exhaustive.
type Actor interface {
	ActorID() uuid.UUID
	Role() Role
	actor()
}

type PatientActor struct {
	ID uuid.UUID
}

type DoctorActor struct {
	ID         uuid.UUID
	HospitalID uuid.UUID
}

type HospitalActor struct {
	ID uuid.UUID
}

type AdminActor struct {
	ID uuid.UUID
}

func (a PatientActor) ActorID() uuid.UUID  { return a.ID }
func (a DoctorActor) ActorID() uuid.UUID   { return a.ID }
func (a HospitalActor) ActorID() uuid.UUID { return a.ID }
func (a AdminActor) ActorID() uuid.UUID    { return a.ID }

func (PatientActor) Role() Role  { return RolePatient }
func (DoctorActor) Role() Role   { return RoleDoctor }
func (HospitalActor) Role() Role { return RoleHospital }
func (AdminActor) Role() Role    { return RoleAdmin }

func (PatientActor) actor()  {}
func (DoctorActor) actor()   {}
func (HospitalActor) actor() {}
func (AdminActor) actor()    {}

// ActorFromUser builds the actor for a directory row. A doctor without an
// employing hospital cannot act.
func ActorFromUser(u *User) (Actor, error) {
	switch u.Role {
	case RolePatient:
		return PatientActor{ID: u.ID}, nil
	case RoleDoctor:
		if u.HospitalID == nil {
			return nil, fmt.Errorf("doctor %s has no hospital", u.ID)
		}
		return DoctorActor{ID: u.ID, HospitalID: *u.HospitalID}, nil
	case RoleHospital:
		return HospitalActor{ID: u.ID}, nil
	case RoleAdmin:
		return AdminActor{ID: u.ID}, nil
	default:
		return nil, fmt.Errorf("unknown role %q", u.Role)
	}
}
