// Package dialogue drives the appointment booking conversation: a pure
// transition table over intent results, reply composition, and the engine
// that owns per-user sessions.
package dialogue

import (
	"time"

	"github.com/ashureev/aicare/internal/domain"
	"github.com/ashureev/aicare/internal/intent"
)

// TransitionOptions carries the inputs Transition needs from outside the
// session.
type TransitionOptions struct {
	Now time.Time
}

// SlotUpdates lists slot writes. Nil fields are left untouched.
type SlotUpdates struct {
	Name          *string
	Phone         *string
	Specialist    *domain.Specialist
	CareType      *domain.CareType
	ScheduledTime *time.Time
}

// Empty reports whether the update writes nothing.
func (u SlotUpdates) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.Specialist == nil && u.CareType == nil && u.ScheduledTime == nil
}

// Apply writes the updates into s.
func (u SlotUpdates) Apply(s *domain.Slots) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Phone != nil {
		s.Phone = *u.Phone
	}
	if u.Specialist != nil {
		s.Specialist = *u.Specialist
	}
	if u.CareType != nil {
		s.CareType = *u.CareType
	}
	if u.ScheduledTime != nil {
		t := *u.ScheduledTime
		s.ScheduledTime = &t
	}
}

func book(b Booking) SlotUpdates {
	return SlotUpdates{Specialist: &b.Specialist, CareType: &b.CareType}
}

// Outcome is the result of one transition.
type Outcome struct {
	Next    domain.State
	Updates SlotUpdates
	Reply   ReplySpec
	// Restart asks the engine to discard the session and greet again.
	Restart bool
}

// Expects returns the extraction a state needs from the next user message.
// States that take no input return KindUnparseable.
func Expects(s domain.State) intent.Kind {
	switch s {
	case domain.StateNameExtraction:
		return intent.KindName
	case domain.StateCareCategory, domain.StateCareConfirmation,
		domain.StateDateConfirmation, domain.StateFinalConfirmation:
		return intent.KindAgreement
	case domain.StateSeriousCare:
		return intent.KindSeriousProblem
	case domain.StateCosmeticCare:
		return intent.KindCosmeticProblem
	case domain.StateNumberExtraction:
		return intent.KindPhone
	}
	return intent.KindUnparseable
}

// Transition computes the next state, slot updates and reply. It is total:
// a result of the wrong kind for the state counts as unparseable, and an
// unparseable result loops on the current state with the generic retry
// without touching slots.
func Transition(state domain.State, r intent.Result, slots domain.Slots, opts TransitionOptions) Outcome {
	switch state {
	case domain.StateStart:
		return Outcome{Next: domain.StateNameExtraction, Reply: ReplySpec{Template: Greeting, Verbatim: true}, Restart: true}
	case domain.StateEnd:
		return Outcome{Next: domain.StateEnd, Reply: ReplySpec{Template: FarewellHint, Verbatim: true}}
	}

	if !state.Valid() || r.Kind() != Expects(state) {
		return stay(state)
	}

	switch state {
	case domain.StateNameExtraction:
		name := r.Text()
		return Outcome{
			Next:    domain.StateCareCategory,
			Updates: SlotUpdates{Name: &name},
			Reply:   askCareCategory(name),
		}

	case domain.StateCareCategory:
		switch r.Agreement() {
		case intent.Yes:
			return Outcome{Next: domain.StateSeriousCare, Reply: askSeriousProblem()}
		case intent.No:
			return Outcome{Next: domain.StateCosmeticCare, Reply: askCosmeticService(slots.Name)}
		case intent.Unsure:
			return Outcome{Next: domain.StateCareConfirmation, Updates: book(examination), Reply: offerExamination()}
		}

	case domain.StateSeriousCare, domain.StateCosmeticCare:
		b := LookupBooking(r)
		return Outcome{Next: domain.StateCareConfirmation, Updates: book(b), Reply: reply(b.Confirmation, "")}

	case domain.StateCareConfirmation:
		switch r.Agreement() {
		case intent.Yes:
			now := opts.Now
			if now.IsZero() {
				now = time.Now()
			}
			return Outcome{
				Next:    domain.StateDateConfirmation,
				Updates: SlotUpdates{ScheduledTime: &now},
				Reply:   offerTime(now),
			}
		case intent.No, intent.Unsure:
			return Outcome{Next: domain.StateCareCategory, Reply: startOver()}
		}

	case domain.StateDateConfirmation:
		switch r.Agreement() {
		case intent.Yes:
			return Outcome{Next: domain.StateNumberExtraction, Reply: askPhone()}
		case intent.Unsure:
			return Outcome{Next: domain.StateDateConfirmation, Reply: pressTime()}
		case intent.No:
			return Outcome{Next: domain.StateEnd, Reply: noOtherTime()}
		}

	case domain.StateNumberExtraction:
		phone := r.Text()
		filled := slots
		filled.Phone = phone
		return Outcome{
			Next:    domain.StateFinalConfirmation,
			Updates: SlotUpdates{Phone: &phone},
			Reply:   confirmBooking(filled),
		}

	case domain.StateFinalConfirmation:
		switch r.Agreement() {
		case intent.Yes:
			return Outcome{Next: domain.StateEnd, Reply: booked()}
		case intent.Unsure:
			return Outcome{Next: domain.StateFinalConfirmation, Reply: pressFinal()}
		case intent.No:
			return Outcome{Next: domain.StateEnd, Reply: declined()}
		}
	}

	return stay(state)
}

func stay(state domain.State) Outcome {
	return Outcome{Next: state, Reply: retry()}
}
