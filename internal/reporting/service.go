// Package reporting aggregates call logs and lead states into the summaries
// shown on the dashboard.
package reporting

import (
	"context"
	"errors"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations must scope call listings to the user's campaigns.
type Repository interface {
	ListCallLogs(ctx context.Context, f calls.ListFilter) ([]calls.CallLog, error)
	GetOwnedCampaign(ctx context.Context, userID, id string) (campaigns.Campaign, businesses.Business, error)
	LeadStatusCounts(ctx context.Context, campaignID string) (map[leads.Status]int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.UserID == "" || !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.allCalls(ctx, calls.ListFilter{UserID: req.UserID, CampaignID: req.CampaignID})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{CampaignID: req.CampaignID, ByOutcome: map[calls.Outcome]int{}}
	for _, o := range calls.Outcomes {
		out.ByOutcome[o] = 0
	}
	for _, c := range rows {
		if !req.Range.contains(c.CreatedAt) {
			continue
		}
		out.TotalCalls++
		out.ByOutcome[c.Outcome]++
		out.TotalDurationSeconds += c.DurationSeconds
		out.TotalCost += c.Cost
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		if c.Outcome.Connected() {
			out.ConnectedCalls++
		}
		if !c.Outcome.Terminal() {
			out.InProgressCalls++
		}
		if c.Outcome == calls.OutcomeAppointmentBooked {
			out.AppointmentsBooked++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}

func (s *Service) ConversionMetrics(ctx context.Context, userID, campaignID string) (ConversionMetrics, error) {
	if userID == "" || campaignID == "" {
		return ConversionMetrics{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return ConversionMetrics{}, errors.New("reporting: repository not configured")
	}

	c, _, err := s.repo.GetOwnedCampaign(ctx, userID, campaignID)
	if err != nil {
		return ConversionMetrics{}, err
	}
	counts, err := s.repo.LeadStatusCounts(ctx, campaignID)
	if err != nil {
		return ConversionMetrics{}, err
	}
	rows, err := s.allCalls(ctx, calls.ListFilter{UserID: userID, CampaignID: campaignID})
	if err != nil {
		return ConversionMetrics{}, err
	}

	out := ConversionMetrics{
		CampaignID:         campaignID,
		LeadsScraped:       c.LeadsScraped,
		AppointmentsBooked: c.AppointmentsBooked,
		CreditsSpent:       c.TotalSpent,
		CallsAttempted:     len(rows),
	}
	// Each count includes the leads that moved further down the funnel.
	for st, n := range counts {
		if st == leads.StatusValidated || leads.PastValidation(st) {
			out.LeadsValidated += n
		}
		if leads.PastValidation(st) {
			out.LeadsEnriched += n
		}
		switch st {
		case leads.StatusCalled, leads.StatusConverted:
			out.LeadsCalled += n
		}
		if st == leads.StatusConverted {
			out.LeadsConverted += n
		}
	}
	for _, cl := range rows {
		if cl.Outcome.Connected() {
			out.CallsConnected++
		}
	}

	if out.CallsAttempted > 0 {
		out.ConnectionRate = float64(out.CallsConnected) / float64(out.CallsAttempted)
	}
	if out.LeadsCalled > 0 {
		out.ConversionRate = float64(out.LeadsConverted) / float64(out.LeadsCalled)
	}
	return out, nil
}

// allCalls pages through the listing; the store caps a single page.
func (s *Service) allCalls(ctx context.Context, f calls.ListFilter) ([]calls.CallLog, error) {
	f.Limit = leads.MaxListLimit
	var out []calls.CallLog
	for {
		page, err := s.repo.ListCallLogs(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < f.Limit {
			return out, nil
		}
		f.Offset += len(page)
	}
}
