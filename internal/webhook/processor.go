// Package webhook receives VAPI call events and applies them to call logs,
// leads, campaigns, appointments and the ledger.
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
	"leadgen-platform/internal/leads"
	"leadgen-platform/internal/metrics"
	"leadgen-platform/internal/notify"
	"leadgen-platform/internal/store"
	"leadgen-platform/pkg/logger"

	"github.com/google/uuid"
)

// Result is what the handler reports back to VAPI.
type Result struct {
	Duplicate bool
	// FunctionResult is spoken back by the assistant after a function call.
	FunctionResult string
}

type Processor struct {
	store    store.Store
	billing  *billing.Service
	notify   notify.Publisher
	dedup    Deduper
	dedupTTL time.Duration

	clock func() time.Time
	newID func() string
}

func NewProcessor(st store.Store, b *billing.Service, pub notify.Publisher, d Deduper, ttl time.Duration) *Processor {
	if pub == nil {
		pub = notify.NopPublisher{}
	}
	if d == nil {
		d = NewMemoryDeduper()
	}
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Processor{
		store:    st,
		billing:  b,
		notify:   pub,
		dedup:    d,
		dedupTTL: ttl,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the clock; used by tests.
func (p *Processor) WithClock(clock func() time.Time) *Processor {
	p.clock = clock
	return p
}

func (p *Processor) now() time.Time { return p.clock().UTC() }

// Process handles one delivery. Deliveries are at-least-once: a repeat of an
// already processed payload is reported as a duplicate, and a failure
// releases the de-dup key so the vendor's retry runs again.
func (p *Processor) Process(ctx context.Context, body []byte) (Result, error) {
	e, err := Parse(body)
	if err != nil {
		return Result{}, err
	}
	log := logger.From(ctx).With("type", e.Type, "vapi_call_id", e.Call.ID)
	ctx = logger.With(ctx, log)
	metrics.RecordWebhookEvent(e.Type)

	key := deliveryKey(e, body)
	if key != "" {
		first, err := p.dedup.MarkOnce(ctx, key, p.dedupTTL)
		if err != nil {
			// Without de-dup the handlers are still safe to replay.
			log.Warn("webhook de-dup unavailable", "err", err)
			key = ""
		} else if !first {
			metrics.RecordWebhookDuplicate()
			log.Info("duplicate webhook delivery")
			return Result{Duplicate: true}, nil
		}
	}

	res, err := p.dispatch(ctx, e)
	if err != nil && key != "" {
		if uerr := p.dedup.Unmark(context.WithoutCancel(ctx), key); uerr != nil {
			log.Warn("release de-dup key", "err", uerr)
		}
	}
	return res, err
}

func (p *Processor) dispatch(ctx context.Context, e Event) (Result, error) {
	switch e.Type {
	case TypeCallStarted:
		return Result{}, p.callStarted(ctx, e)
	case TypeCallEnded:
		return Result{}, p.callEnded(ctx, e)
	case TypeTranscript:
		return Result{}, p.transcript(ctx, e)
	case TypeFunctionCall:
		if e.FunctionName != FunctionBookMeeting {
			logger.From(ctx).Info("unhandled function call", "function", e.FunctionName)
			return Result{}, nil
		}
		msg, err := p.bookAppointment(ctx, e)
		return Result{FunctionResult: msg}, err
	case TypeEndOfCallReport:
		return Result{}, p.endOfCallReport(ctx, e)
	default:
		logger.From(ctx).Info("unhandled webhook type")
		return Result{}, nil
	}
}

// unknownCall acknowledges events for calls this service never placed.
func unknownCall(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		logger.From(ctx).Warn("webhook for unknown call")
		return nil
	}
	return err
}

func (p *Processor) callStarted(ctx context.Context, e Event) error {
	return unknownCall(ctx, p.store.MarkCallStarted(ctx, e.Call.ID, p.now()))
}

func (p *Processor) callEnded(ctx context.Context, e Event) error {
	now := p.now()
	outcome := calls.OutcomeFromEndedReason(e.Call.EndedReason)
	err := p.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cl, err := tx.GetCallLogByVAPIID(ctx, e.Call.ID)
		if err != nil {
			return err
		}
		if err := tx.EndCall(ctx, e.Call.ID, calls.CallEnd{
			Outcome:         outcome,
			DurationSeconds: e.Call.DurationSeconds(),
			Cost:            e.Call.Cost,
			RecordingURL:    e.Call.RecordingURL,
			VAPIData:        e.Call.Raw,
			EndedAt:         now,
		}); err != nil {
			return err
		}
		l, err := tx.GetLead(ctx, cl.LeadID)
		if err != nil {
			return err
		}
		// A converted lead stays converted.
		if l.Status != leads.StatusCalling {
			return nil
		}
		return tx.TransitionLead(ctx, l.ID, leads.StatusCalling, leads.StatusCalled, now)
	})
	if err == nil {
		logger.From(ctx).Info("call ended", "outcome", outcome, "ended_reason", e.Call.EndedReason)
	}
	return unknownCall(ctx, err)
}

func (p *Processor) transcript(ctx context.Context, e Event) error {
	if e.Partial || strings.TrimSpace(e.Content) == "" {
		return nil
	}
	role := e.Role
	if role == "" {
		role = "unknown"
	}
	line := fmt.Sprintf("%s: %s\n", role, e.Content)
	return unknownCall(ctx, p.store.AppendTranscript(ctx, e.Call.ID, line, p.now()))
}

func (p *Processor) endOfCallReport(ctx context.Context, e Event) error {
	report := e.Report
	if len(report) == 0 {
		report = json.RawMessage(`{}`)
	}
	patch, err := json.Marshal(map[string]json.RawMessage{"endOfCallReport": report})
	if err != nil {
		return err
	}
	if err := p.store.MergeCallData(ctx, e.Call.ID, patch, p.now()); err != nil {
		return unknownCall(ctx, err)
	}

	var summary struct {
		Sentiment         string `json:"sentiment"`
		AppointmentBooked bool   `json:"appointmentBooked"`
		FollowUpNeeded    bool   `json:"followUpNeeded"`
	}
	_ = json.Unmarshal(report, &summary)
	if summary.Sentiment == "" {
		summary.Sentiment = "neutral"
	}
	logger.From(ctx).Info("end of call report",
		"sentiment", summary.Sentiment,
		"appointment_booked", summary.AppointmentBooked,
		"follow_up_needed", summary.FollowUpNeeded)
	return nil
}
