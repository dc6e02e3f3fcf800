package domain

import "time"

// State is a node of the booking dialogue graph.
type State string

// Dialogue states.
const (
	StateStart             State = "start"
	StateNameExtraction    State = "name_extraction"
	StateCareCategory      State = "care_category"
	StateSeriousCare       State = "serious_care"
	StateCosmeticCare      State = "cosmetic_care"
	StateCareConfirmation  State = "care_confirmation"
	StateDateConfirmation  State = "date_confirmation"
	StateNumberExtraction  State = "number_extraction"
	StateFinalConfirmation State = "final_confirmation"
	StateEnd               State = "end"
)

// States lists every dialogue state in graph order.
var States = []State{
	StateStart,
	StateNameExtraction,
	StateCareCategory,
	StateSeriousCare,
	StateCosmeticCare,
	StateCareConfirmation,
	StateDateConfirmation,
	StateNumberExtraction,
	StateFinalConfirmation,
	StateEnd,
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

// BackendChoice selects which generation backend serves a session.
type BackendChoice string

// Backend choices.
const (
	BackendLocal  BackendChoice = "local"
	BackendRemote BackendChoice = "remote"
)

// ParseBackendChoice maps a user supplied value to a BackendChoice.
func ParseBackendChoice(s string) (BackendChoice, bool) {
	switch BackendChoice(s) {
	case BackendLocal:
		return BackendLocal, true
	case BackendRemote:
		return BackendRemote, true
	}
	return "", false
}

// Specialist is the kind of doctor an appointment is booked with.
type Specialist string

// Specialists offered by the clinic.
const (
	SpecialistTherapist    Specialist = "Dental therapist"
	SpecialistSurgeon      Specialist = "Oral surgeon"
	SpecialistOrthodontist Specialist = "Orthodontist"
	SpecialistPeriodontist Specialist = "Periodontist"
	SpecialistHygienist    Specialist = "Dental hygienist"
)

// CareType is the kind of care an appointment is booked for.
type CareType string

// Care types offered by the clinic.
const (
	CareTreatment    CareType = "Treatment"
	CareExtraction   CareType = "Tooth extraction"
	CareCorrection   CareType = "Bite correction"
	CareGumTreatment CareType = "Gum treatment"
	CareWhitening    CareType = "Teeth whitening"
	CareExamination  CareType = "Examination"
)

// Slots holds the booking fields collected during a dialogue.
type Slots struct {
	Name          string     `json:"name,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Specialist    Specialist `json:"specialist,omitempty"`
	CareType      CareType   `json:"care_type,omitempty"`
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
}

// Session is the per-user dialogue state.
type Session struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	State      State         `json:"state"`
	Transcript []Message     `json:"transcript"`
	Slots      Slots         `json:"slots"`
	Backend    BackendChoice `json:"backend"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Append adds a message to the end of the transcript.
func (s *Session) Append(msg Message) {
	s.Transcript = append(s.Transcript, msg)
}

// History returns a copy of the transcript.
func (s *Session) History() []Message {
	out := make([]Message, len(s.Transcript))
	copy(out, s.Transcript)
	return out
}
