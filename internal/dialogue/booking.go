package dialogue

import (
	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/intent"
)

// Booking is the appointment a problem maps to.
type Booking struct {
	Specialist   domain.Specialist
	CareType     domain.CareType
	Confirmation string
}

var examination = Booking{
	Specialist:   domain.SpecialistTherapist,
	CareType:     domain.CareExamination,
	Confirmation: "I'll book you with a dental therapist who will determine the problem and refer you to the right specialist. Ok?",
}

var seriousBookings = map[intent.SeriousProblem]Booking{
	intent.Toothache: {
		Specialist:   domain.SpecialistTherapist,
		CareType:     domain.CareTreatment,
		Confirmation: "I will refer you to a dental therapist for treatment, ok?",
	},
	intent.GumPain: {
		Specialist:   domain.SpecialistPeriodontist,
		CareType:     domain.CareGumTreatment,
		Confirmation: "I'll book you with a periodontist who will treat your gums, ok?",
	},
	intent.Extraction: {
		Specialist:   domain.SpecialistSurgeon,
		CareType:     domain.CareExtraction,
		Confirmation: "Shall I reserve an oral surgeon to remove your problem tooth?",
	},
	intent.SeriousUnknown: examination,
}

var cosmeticBookings = map[intent.CosmeticProblem]Booking{
	intent.Whitening: {
		Specialist:   domain.SpecialistHygienist,
		CareType:     domain.CareWhitening,
		Confirmation: "Shall I refer you to a dental hygienist?",
	},
	intent.Alignment: {
		Specialist:   domain.SpecialistOrthodontist,
		CareType:     domain.CareCorrection,
		Confirmation: "Shall I refer you to an orthodontist to correct your bite?",
	},
	intent.CosmeticUnknown: examination,
}

// LookupBooking maps a problem result to its booking. Results that carry no
// problem fall back to an examination with a dental therapist.
func LookupBooking(r intent.Result) Booking {
	switch r.Kind() {
	case intent.KindSeriousProblem:
		if b, ok := seriousBookings[r.SeriousProblem()]; ok {
			return b
		}
	case intent.KindCosmeticProblem:
		if b, ok := cosmeticBookings[r.CosmeticProblem()]; ok {
			return b
		}
	}
	return examination
}
