package dialogue

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/aicare/internal/domain"
)

// Fixed texts.
const (
	Greeting     = "Hello, this is AIcare clinic. What is your name?"
	GenericRetry = "Unfortunately, I don't understand. Could you rephrase that?"
	FarewellHint = "This conversation is over. Send /start to book another appointment."

	// StartCommand restarts the dialogue.
	StartCommand = "/start"

	defaultPurpose = "Not given, deduce from text."
	timeLayout     = "2006-01-02T15:04"
)

// ReplySpec tells the composer what to say.
type ReplySpec struct {
	Template string
	Purpose  string
	// Verbatim replies are sent as is, without paraphrasing.
	Verbatim bool
}

func retry() ReplySpec {
	return ReplySpec{Template: GenericRetry, Verbatim: true}
}

func reply(template, purpose string) ReplySpec {
	if purpose == "" {
		purpose = defaultPurpose
	}
	return ReplySpec{Template: template, Purpose: purpose}
}

func askCareCategory(name string) ReplySpec {
	return reply(
		fmt.Sprintf("%s, are you here because of a dental health <b>problem</b>?", name),
		"Determine whether user has a real and urgent problem or not.",
	)
}

func askSeriousProblem() ReplySpec {
	return reply("What is the problem exactly?", "Determine the type of dental health issue.")
}

func askCosmeticService(name string) ReplySpec {
	return reply(
		fmt.Sprintf("AIcare provides a few cosmetic services. How can I help you, %s?", name),
		"Determine the kind of cosmetic service.",
	)
}

func offerExamination() ReplySpec {
	return reply(
		"If you are not sure, I can make an appointment for you to see a dental therapist, who will determine your problem. Ok?",
		"Get user's agreement or disagreement.",
	)
}

func offerTime(t time.Time) ReplySpec {
	return reply(
		fmt.Sprintf("Are you fine with the following date and time: %s?", t.Format(timeLayout)),
		"To confirm that appointment time fits the user.",
	)
}

func startOver() ReplySpec {
	return reply(
		"Ok. Then let's start from the beginning. Are you here because of a serious dental health problem?",
		"Determine whether user has an urgent, non-cosmetic problem.",
	)
}

func askPhone() ReplySpec {
	return reply("We need your phone number to remind you about an appointment.", "Determine user's phone number.")
}

func pressTime() ReplySpec {
	return reply(
		"Sorry, this is the only available time. Should I make an appointment, after all?",
		"Determine user's agreement or disagreement.",
	)
}

func noOtherTime() ReplySpec {
	return reply("We cannot provide you a different time slot. Sorry and goodbye.", "")
}

func pressFinal() ReplySpec {
	return reply(
		"You must decide now. Should we make this appointment anyway?",
		"Trying to get agreement for appointment from user again.",
	)
}

func booked() ReplySpec {
	return reply("We will be waiting for you. Goodbye.", "")
}

func declined() ReplySpec {
	return reply("Goodbye then.", "")
}

// BookingSummary renders the appointment details for final confirmation.
func BookingSummary(s domain.Slots) string {
	var b strings.Builder
	b.WriteString("Appointment details:\n\n")
	fmt.Fprintf(&b, "Patient name: %s\n", s.Name)
	fmt.Fprintf(&b, "Phone: %s\n", s.Phone)
	fmt.Fprintf(&b, "Doctor: %s\n", s.Specialist)
	fmt.Fprintf(&b, "Care: %s\n", s.CareType)
	if s.ScheduledTime != nil {
		fmt.Fprintf(&b, "Date: %s\n", s.ScheduledTime.Format(timeLayout))
	}
	b.WriteString("\nBook it?")
	return b.String()
}

func confirmBooking(s domain.Slots) ReplySpec {
	return reply(BookingSummary(s), "Present final appointment information to user and ask for user's agreement.")
}
