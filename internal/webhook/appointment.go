package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadgen-platform/internal/billing"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/notify"
	"leadgen-platform/internal/pricing"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"
)

const (
	msgNeedTime       = "I need a specific date and time to book the meeting. What works for you?"
	msgAlreadyBooked  = "The meeting is already booked."
	msgUnknownCall    = "I couldn't find this call, so the meeting was not booked."
	bookedTimeDisplay = "Monday, January 2 at 3:04 PM MST"
)

var scheduledTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

type bookingArgs struct {
	ScheduledTime string  `json:"scheduledTime"`
	Duration      float64 `json:"duration"`
	MeetingType   string  `json:"meetingType"`
	Notes         string  `json:"notes"`
}

// parseBookingArgs accepts the arguments as an object or as a JSON-encoded
// string, which is how OpenAI-style function calls deliver them.
func parseBookingArgs(raw json.RawMessage) (bookingArgs, error) {
	var a bookingArgs
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return a, ErrMalformed
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return a, errors.Join(ErrMalformed, err)
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return a, errors.Join(ErrMalformed, err)
	}
	return a, nil
}

func parseScheduledTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range scheduledTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// bookAppointment books the meeting in one transaction: appointment row,
// call outcome, lead conversion, campaign counter and the appointment
// charge. The notification goes out after commit.
func (p *Processor) bookAppointment(ctx context.Context, e Event) (string, error) {
	log := logger.From(ctx)
	args, err := parseBookingArgs(e.Arguments)
	if err != nil || args.ScheduledTime == "" {
		log.Warn("bookAppointment without a usable time", "err", err)
		return msgNeedTime, nil
	}
	at, ok := parseScheduledTime(args.ScheduledTime)
	if !ok {
		log.Warn("bookAppointment with unparseable time", "scheduled_time", args.ScheduledTime)
		return msgNeedTime, nil
	}

	duration := int(args.Duration)
	if duration <= 0 {
		duration = calls.DefaultMeetingMinutes
	}
	meetingType := args.MeetingType
	if meetingType == "" {
		meetingType = calls.DefaultMeetingType
	}
	notes := args.Notes
	if notes == "" {
		notes = calls.DefaultAppointmentNotes
	}

	now := p.now()
	var (
		booked  notify.AppointmentBooked
		already bool
	)
	err = p.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cl, err := tx.GetCallLogByVAPIID(ctx, e.Call.ID)
		if err != nil {
			return err
		}
		if cl.Outcome == calls.OutcomeAppointmentBooked {
			already = true
			return nil
		}
		l, err := tx.GetLead(ctx, cl.LeadID)
		if err != nil {
			return err
		}
		_, biz, err := tx.GetCampaign(ctx, cl.CampaignID)
		if err != nil {
			return err
		}

		attendee := l.ContactName
		if attendee == "" {
			attendee = l.BusinessName
		}
		appt := calls.Appointment{
			ID:              p.newID(),
			LeadID:          l.ID,
			CallLogID:       cl.ID,
			CampaignID:      cl.CampaignID,
			ScheduledTime:   at,
			DurationMinutes: duration,
			MeetingType:     meetingType,
			Notes:           notes,
			AttendeeName:    attendee,
			AttendeeEmail:   l.ContactEmail,
			AttendeePhone:   l.ContactPhone,
			Status:          calls.AppointmentScheduled,
			CreatedAt:       now,
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if err := tx.SetCallOutcome(ctx, e.Call.ID, calls.OutcomeAppointmentBooked, now); err != nil {
			return err
		}
		if leads.CanTransition(l.Status, leads.StatusConverted) {
			if err := tx.TransitionLead(ctx, l.ID, l.Status, leads.StatusConverted, now); err != nil {
				return err
			}
		}

		var spent int64
		t, applied, err := p.billing.Charge(ctx, tx, billing.Charge{
			UserID:         biz.UserID,
			CampaignID:     cl.CampaignID,
			Event:          pricing.EventAppointmentBooked,
			Quantity:       1,
			RelatedID:      appt.ID,
			IdempotencyKey: "appointment_booked:" + e.Call.ID,
			Description:    "Appointment booked with " + l.BusinessName,
		})
		switch {
		case errors.Is(err, billing.ErrInsufficientCredits):
			// The prospect already agreed to the meeting; book it unbilled.
			log.Warn("appointment charge skipped", "appointment_id", appt.ID, "err", err)
		case err != nil:
			return err
		case applied:
			spent = t.CreditsUsed
		}
		if err := tx.BumpCampaign(ctx, cl.CampaignID, campaigns.Counters{AppointmentsBooked: 1, Spent: spent}, now); err != nil {
			return err
		}

		booked = notify.AppointmentBooked{
			AppointmentID:   appt.ID,
			LeadID:          l.ID,
			CampaignID:      cl.CampaignID,
			UserID:          biz.UserID,
			BusinessName:    biz.BusinessName,
			AttendeeName:    appt.AttendeeName,
			AttendeeEmail:   appt.AttendeeEmail,
			AttendeePhone:   appt.AttendeePhone,
			ScheduledTime:   at,
			DurationMinutes: duration,
			MeetingType:     meetingType,
			Notes:           notes,
		}
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("bookAppointment for unknown call")
		return msgUnknownCall, nil
	case err != nil:
		return "", err
	case already:
		return msgAlreadyBooked, nil
	}

	log.Info("appointment booked", "appointment_id", booked.AppointmentID, "lead_id", booked.LeadID)
	if err := p.notify.PublishAppointmentBooked(context.WithoutCancel(ctx), booked); err != nil {
		log.Error("publish appointment booked", "appointment_id", booked.AppointmentID, "err", err)
	}
	return fmt.Sprintf("The meeting is booked for %s.", at.Format(bookedTimeDisplay)), nil
}
