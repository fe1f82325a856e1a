package calls

import "testing"

func TestOutcomeFromEndedReason(t *testing.T) {
	cases := map[string]Outcome{
		"no-answer":               OutcomeNoAnswer,
		"customer-did-not-answer": OutcomeNoAnswer,
		"voicemail":               OutcomeVoicemail,
		"busy":                    OutcomeBusy,
		"customer-busy":           OutcomeBusy,
		"failed":                  OutcomeFailed,
		"error-providerfault":     OutcomeFailed,
		"customer-ended-call":     OutcomeCompleted,
		"":                        OutcomeCompleted,
	}
	for reason, want := range cases {
		if got := OutcomeFromEndedReason(reason); got != want {
			t.Fatalf("%q: expected %s, got %s", reason, want, got)
		}
	}
}

func TestOutcomePredicates(t *testing.T) {
	if OutcomeInitiated.Terminal() || OutcomeInProgress.Terminal() {
		t.Fatalf("initiated/in_progress must not be terminal")
	}
	if !OutcomeNoAnswer.Terminal() || !OutcomeAppointmentBooked.Terminal() {
		t.Fatalf("expected terminal outcomes")
	}
	if !OutcomeAppointmentBooked.Connected() || OutcomeVoicemail.Connected() {
		t.Fatalf("unexpected connected classification")
	}
	for _, o := range Outcomes {
		if o == "" {
			t.Fatalf("expected non-empty outcome")
		}
	}
}
