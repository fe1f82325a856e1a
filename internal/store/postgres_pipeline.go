package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"leadgen-platform/internal/businesses"
	"leadgen-platform/internal/calls"
	"leadgen-platform/internal/campaigns"
	"leadgen-platform/internal/leads"

	sq "github.com/Masterminds/squirrel"
)

/* ===================== CAMPAIGNS ===================== */

const campaignColumns = `c.id, c.business_id, c.name, c.status, c.search_parameters, c.budget_limit,
c.credits_allocated, c.leads_scraped, c.leads_called, c.appointments_booked, c.total_spent,
c.scrape_cursor, c.vapi_assistant_id, c.started_at, c.completed_at, c.created_at, c.updated_at`

func scanCampaign(s scanner) (campaigns.Campaign, error) {
	var (
		c                  campaigns.Campaign
		params             []byte
		started, completed sql.NullTime
	)
	if err := s.Scan(
		&c.ID,
		&c.BusinessID,
		&c.Name,
		&c.Status,
		&params,
		&c.BudgetLimit,
		&c.CreditsAllocated,
		&c.LeadsScraped,
		&c.LeadsCalled,
		&c.AppointmentsBooked,
		&c.TotalSpent,
		&c.ScrapeCursor,
		&c.VAPIAssistantID,
		&started,
		&completed,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return campaigns.Campaign{}, err
	}
	if err := decodeJSON(params, &c.SearchParameters); err != nil {
		return campaigns.Campaign{}, err
	}
	c.StartedAt = nullTime(started)
	c.CompletedAt = nullTime(completed)
	return c, nil
}

func (t pgTx) InsertCampaign(ctx context.Context, c campaigns.Campaign) error {
	params, err := encodeJSON(c.SearchParameters)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO campaigns (
  id, business_id, name, status, search_parameters, budget_limit, credits_allocated,
  scrape_cursor, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err = t.q.ExecContext(ctx, q,
		c.ID,
		c.BusinessID,
		c.Name,
		c.Status,
		params,
		c.BudgetLimit,
		c.CreditsAllocated,
		c.ScrapeCursor,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (t pgTx) GetCampaign(ctx context.Context, id string) (campaigns.Campaign, businesses.Business, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns c WHERE c.id = $1`
	return t.campaignWithBusiness(ctx, q, id)
}

func (t pgTx) GetOwnedCampaign(ctx context.Context, userID, id string) (campaigns.Campaign, businesses.Business, error) {
	q := `SELECT ` + campaignColumns + `
FROM campaigns c JOIN businesses b ON b.id = c.business_id
WHERE c.id = $1 AND b.user_id = $2`
	return t.campaignWithBusiness(ctx, q, id, userID)
}

func (t pgTx) campaignWithBusiness(ctx context.Context, q string, args ...any) (campaigns.Campaign, businesses.Business, error) {
	c, err := scanCampaign(t.q.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return campaigns.Campaign{}, businesses.Business{}, ErrNotFound
		}
		return campaigns.Campaign{}, businesses.Business{}, err
	}
	b, err := t.businessByID(ctx, c.BusinessID)
	if err != nil {
		return campaigns.Campaign{}, businesses.Business{}, err
	}
	return c, b, nil
}

func (t pgTx) ListCampaigns(ctx context.Context, f campaigns.ListFilter) ([]campaigns.Campaign, error) {
	b := psql.Select(campaignColumns).
		From("campaigns c").
		Join("businesses b ON b.id = c.business_id").
		Where(sq.Eq{"b.user_id": f.UserID}).
		OrderBy("c.created_at DESC")
	if f.BusinessID != "" {
		b = b.Where(sq.Eq{"c.business_id": f.BusinessID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"c.status": f.Status})
	}
	return t.campaigns(ctx, b)
}

func (t pgTx) ListStuckCampaigns(ctx context.Context, startedBefore time.Time) ([]campaigns.Campaign, error) {
	b := psql.Select(campaignColumns).
		From("campaigns c").
		Where(sq.Eq{"c.status": campaigns.StatusActive}).
		Where(sq.Lt{"c.started_at": startedBefore}).
		OrderBy("c.started_at")
	return t.campaigns(ctx, b)
}

func (t pgTx) campaigns(ctx context.Context, b sq.SelectBuilder) ([]campaigns.Campaign, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []campaigns.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t pgTx) TransitionCampaign(ctx context.Context, id string, from, to campaigns.Status, now time.Time) error {
	if err := campaigns.Transition(from, to); err != nil {
		return err
	}
	const q = `
UPDATE campaigns SET
  status = $3,
  started_at = CASE WHEN $3 = 'active' THEN $4 WHEN $3 = 'draft' THEN NULL ELSE started_at END,
  completed_at = CASE WHEN $3 = 'completed' THEN $4 ELSE completed_at END,
  scrape_cursor = CASE WHEN $3 = 'draft' THEN 0 ELSE scrape_cursor END,
  updated_at = $4
WHERE id = $1 AND status = $2
`
	res, err := t.q.ExecContext(ctx, q, id, string(from), string(to), now)
	if err != nil {
		return err
	}
	return t.casResult(ctx, res, `SELECT 1 FROM campaigns WHERE id = $1`, id)
}

func (t pgTx) AdvanceScrape(ctx context.Context, id string, added, cursor int, now time.Time) error {
	const q = `
UPDATE campaigns SET leads_scraped = leads_scraped + $2, scrape_cursor = $3, updated_at = $4
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q, id, added, cursor, now)
	if err != nil {
		return err
	}
	return expectOne(res, ErrNotFound)
}

func (t pgTx) SetAssistantID(ctx context.Context, id, assistantID string, now time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE campaigns SET vapi_assistant_id = $2, updated_at = $3 WHERE id = $1`, id, assistantID, now)
	if err != nil {
		return err
	}
	return expectOne(res, ErrNotFound)
}

func (t pgTx) BumpCampaign(ctx context.Context, id string, d campaigns.Counters, now time.Time) error {
	const q = `
UPDATE campaigns SET
  leads_called = leads_called + $2,
  appointments_booked = appointments_booked + $3,
  total_spent = total_spent + $4,
  updated_at = $5
WHERE id = $1
`
	res, err := t.q.ExecContext(ctx, q, id, d.LeadsCalled, d.AppointmentsBooked, d.Spent, now)
	if err != nil {
		return err
	}
	return expectOne(res, ErrNotFound)
}

// casResult turns a zero-row compare-and-set into ErrConflict when the row
// exists and ErrNotFound when it does not.
func (t pgTx) casResult(ctx context.Context, res sql.Result, existsQuery string, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	if err := t.q.QueryRowContext(ctx, existsQuery, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

/* ===================== LEADS ===================== */

const leadColumns = `l.id, l.campaign_id, l.business_name, l.category, l.address, l.phone, l.website, l.email,
l.rating, l.reviews_count, l.latitude, l.longitude, l.google_place_id, l.place_url,
l.validation_score, l.validation_data, l.contact_name, l.contact_title, l.contact_email,
l.contact_phone, l.contact_linkedin, l.enrichment_data, l.status, l.scrape_charged,
l.validated_at, l.enriched_at, l.called_at, l.created_at, l.updated_at`

func scanLead(s scanner) (leads.Lead, error) {
	var (
		l                           leads.Lead
		validation, enrichment      []byte
		validated, enriched, called sql.NullTime
	)
	if err := s.Scan(
		&l.ID,
		&l.CampaignID,
		&l.BusinessName,
		&l.Category,
		&l.Address,
		&l.Phone,
		&l.Website,
		&l.Email,
		&l.Rating,
		&l.ReviewsCount,
		&l.Latitude,
		&l.Longitude,
		&l.GooglePlaceID,
		&l.PlaceURL,
		&l.ValidationScore,
		&validation,
		&l.ContactName,
		&l.ContactTitle,
		&l.ContactEmail,
		&l.ContactPhone,
		&l.ContactLinkedIn,
		&enrichment,
		&l.Status,
		&l.ScrapeCharged,
		&validated,
		&enriched,
		&called,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return leads.Lead{}, err
	}
	l.ValidationData = rawJSON(validation)
	l.EnrichmentData = rawJSON(enrichment)
	l.ValidatedAt = nullTime(validated)
	l.EnrichedAt = nullTime(enriched)
	l.CalledAt = nullTime(called)
	return l, nil
}

func (t pgTx) InsertLead(ctx context.Context, l leads.Lead) (bool, error) {
	const q = `
INSERT INTO leads (
  id, campaign_id, business_name, category, address, phone, website, email,
  rating, reviews_count, latitude, longitude, google_place_id, place_url,
  validation_score, validation_data, status, validated_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT DO NOTHING
`
	res, err := t.q.ExecContext(ctx, q,
		l.ID,
		l.CampaignID,
		l.BusinessName,
		l.Category,
		l.Address,
		l.Phone,
		l.Website,
		l.Email,
		l.Rating,
		l.ReviewsCount,
		l.Latitude,
		l.Longitude,
		l.GooglePlaceID,
		l.PlaceURL,
		l.ValidationScore,
		nullJSON(l.ValidationData),
		l.Status,
		l.ValidatedAt,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t pgTx) GetLead(ctx context.Context, id string) (leads.Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads l WHERE l.id = $1`
	l, err := scanLead(t.q.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return leads.Lead{}, ErrNotFound
		}
		return leads.Lead{}, err
	}
	return l, nil
}

// LeadsByIDs returns the campaign's leads among ids, in ids order.
func (t pgTx) LeadsByIDs(ctx context.Context, campaignID string, ids []string) ([]leads.Lead, error) {
	if len(ids) == 0 {
		return []leads.Lead{}, nil
	}
	b := psql.Select(leadColumns).
		From("leads l").
		Where(sq.Eq{"l.campaign_id": campaignID, "l.id": ids})
	found, err := t.leads(ctx, b)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]leads.Lead, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}
	out := make([]leads.Lead, 0, len(found))
	seen := map[string]struct{}{}
	for _, id := range ids {
		l, ok := byID[id]
		if _, dup := seen[id]; !ok || dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

func (t pgTx) ListLeads(ctx context.Context, f leads.ListFilter) ([]leads.Lead, error) {
	f = f.Normalize()
	b := psql.Select(leadColumns).
		From("leads l").
		Join("campaigns c ON c.id = l.campaign_id").
		Join("businesses b ON b.id = c.business_id").
		Where(sq.Eq{"b.user_id": f.UserID}).
		OrderBy("l.created_at DESC", "l.id").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))
	if f.CampaignID != "" {
		b = b.Where(sq.Eq{"l.campaign_id": f.CampaignID})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"l.status": f.Status})
	}
	return t.leads(ctx, b)
}

func (t pgTx) leads(ctx context.Context, b sq.SelectBuilder) ([]leads.Lead, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []leads.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t pgTx) UnchargedLeads(ctx context.Context, campaignID string) ([]string, error) {
	const q = `SELECT id FROM leads WHERE campaign_id = $1 AND NOT scrape_charged ORDER BY created_at, id`
	rows, err := t.q.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (t pgTx) MarkLeadsCharged(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := psql.Update("leads").
		Set("scrape_charged", true).
		Set("updated_at", now).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, query, args...)
	return err
}

func (t pgTx) EnrichLead(ctx context.Context, id string, e leads.Enrichment) error {
	const q = `
UPDATE leads SET
  contact_name = $2,
  contact_title = $3,
  contact_email = $4,
  contact_phone = $5,
  contact_linkedin = $6,
  enrichment_data = $7,
  status = 'enriched',
  enriched_at = $8,
  updated_at = $8
WHERE id = $1 AND status = 'validated'
`
	res, err := t.q.ExecContext(ctx, q,
		id,
		e.Primary.Name,
		e.Primary.Title,
		e.Primary.Email,
		e.Primary.Phone,
		e.Primary.LinkedInURL,
		nullJSON(e.Data),
		e.At,
	)
	if err != nil {
		return err
	}
	return t.casResult(ctx, res, `SELECT 1 FROM leads WHERE id = $1`, id)
}

func (t pgTx) RecordEnrichmentFailure(ctx context.Context, id string, data json.RawMessage, now time.Time) error {
	res, err := t.q.ExecContext(ctx, `UPDATE leads SET enrichment_data = $2, updated_at = $3 WHERE id = $1`, id, nullJSON(data), now)
	if err != nil {
		return err
	}
	return expectOne(res, ErrNotFound)
}

func (t pgTx) TransitionLead(ctx context.Context, id string, from, to leads.Status, now time.Time) error {
	if err := leads.Transition(from, to); err != nil {
		return err
	}
	const q = `
UPDATE leads SET
  status = $3,
  called_at = CASE WHEN $3 = 'calling' THEN $4 ELSE called_at END,
  updated_at = $4
WHERE id = $1 AND status = $2
`
	res, err := t.q.ExecContext(ctx, q, id, string(from), string(to), now)
	if err != nil {
		return err
	}
	return t.casResult(ctx, res, `SELECT 1 FROM leads WHERE id = $1`, id)
}

func (t pgTx) LeadStatusCounts(ctx context.Context, campaignID string) (map[leads.Status]int, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT status, count(*) FROM leads WHERE campaign_id = $1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[leads.Status]int{}
	for rows.Next() {
		var s leads.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

/* ===================== CALLS ===================== */

const callColumns = `cl.id, cl.lead_id, cl.campaign_id, cl.vapi_call_id, cl.phone_number_from, cl.phone_number_to,
cl.outcome, cl.duration_seconds, cl.cost, cl.recording_url, cl.transcript, cl.vapi_data,
cl.started_at, cl.ended_at, cl.created_at, cl.updated_at`

func scanCallLog(s scanner) (calls.CallLog, error) {
	var (
		c            calls.CallLog
		data         []byte
		started, end sql.NullTime
	)
	if err := s.Scan(
		&c.ID,
		&c.LeadID,
		&c.CampaignID,
		&c.VAPICallID,
		&c.From,
		&c.To,
		&c.Outcome,
		&c.DurationSeconds,
		&c.Cost,
		&c.RecordingURL,
		&c.Transcript,
		&data,
		&started,
		&end,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return calls.CallLog{}, err
	}
	c.VAPIData = rawJSON(data)
	c.StartedAt = nullTime(started)
	c.EndedAt = nullTime(end)
	return c, nil
}

func (t pgTx) InsertCallLog(ctx context.Context, c calls.CallLog) error {
	const q = `
INSERT INTO call_logs (
  id, lead_id, campaign_id, vapi_call_id, phone_number_from, phone_number_to,
  outcome, vapi_data, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := t.q.ExecContext(ctx, q,
		c.ID,
		c.LeadID,
		c.CampaignID,
		c.VAPICallID,
		c.From,
		c.To,
		c.Outcome,
		nullJSON(c.VAPIData),
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (t pgTx) GetCallLogByVAPIID(ctx context.Context, vapiCallID string) (calls.CallLog, error) {
	q := `SELECT ` + callColumns + ` FROM call_logs cl WHERE cl.vapi_call_id = $1`
	c, err := scanCallLog(t.q.QueryRowContext(ctx, q, vapiCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.CallLog{}, ErrNotFound
		}
		return calls.CallLog{}, err
	}
	return c, nil
}

func (t pgTx) MarkCallStarted(ctx context.Context, vapiCallID string, at time.Time) error {
	const q = `
UPDATE call_logs SET
  started_at = $2,
  outcome = CASE WHEN outcome = 'initiated' THEN 'in_progress' ELSE outcome END,
  updated_at = $2
WHERE vapi_call_id = $1
`
	return t.execCall(ctx, q, vapiCallID, at)
}

func (t pgTx) EndCall(ctx context.Context, vapiCallID string, e calls.CallEnd) error {
	const q = `
UPDATE call_logs SET
  outcome = CASE WHEN outcome = 'appointment_booked' THEN outcome ELSE $2 END,
  duration_seconds = $3,
  cost = $4,
  recording_url = $5,
  vapi_data = COALESCE(vapi_data, '{}'::jsonb) || COALESCE($6::jsonb, '{}'::jsonb),
  ended_at = $7,
  updated_at = $7
WHERE vapi_call_id = $1
`
	return t.execCall(ctx, q, vapiCallID, string(e.Outcome), e.DurationSeconds, e.Cost, e.RecordingURL, nullJSON(e.VAPIData), e.EndedAt)
}

// AppendTranscript concatenates in the UPDATE so concurrent lines are not lost.
func (t pgTx) AppendTranscript(ctx context.Context, vapiCallID, line string, at time.Time) error {
	return t.execCall(ctx, `UPDATE call_logs SET transcript = transcript || $2, updated_at = $3 WHERE vapi_call_id = $1`, vapiCallID, line, at)
}

func (t pgTx) SetCallOutcome(ctx context.Context, vapiCallID string, o calls.Outcome, at time.Time) error {
	return t.execCall(ctx, `UPDATE call_logs SET outcome = $2, updated_at = $3 WHERE vapi_call_id = $1`, vapiCallID, string(o), at)
}

func (t pgTx) MergeCallData(ctx context.Context, vapiCallID string, patch json.RawMessage, at time.Time) error {
	const q = `
UPDATE call_logs SET vapi_data = COALESCE(vapi_data, '{}'::jsonb) || $2::jsonb, updated_at = $3
WHERE vapi_call_id = $1
`
	return t.execCall(ctx, q, vapiCallID, string(patch), at)
}

func (t pgTx) execCall(ctx context.Context, q, vapiCallID string, args ...any) error {
	res, err := t.q.ExecContext(ctx, q, append([]any{vapiCallID}, args...)...)
	if err != nil {
		return err
	}
	return expectOne(res, ErrNotFound)
}

func (t pgTx) ListCallLogs(ctx context.Context, f calls.ListFilter) ([]calls.CallLog, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = leads.DefaultListLimit
	}
	if limit > leads.MaxListLimit {
		limit = leads.MaxListLimit
	}
	b := psql.Select(callColumns).
		From("call_logs cl").
		Join("campaigns c ON c.id = cl.campaign_id").
		Join("businesses b ON b.id = c.business_id").
		Where(sq.Eq{"b.user_id": f.UserID}).
		OrderBy("cl.created_at DESC", "cl.id").
		Limit(uint64(limit))
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	if f.CampaignID != "" {
		b = b.Where(sq.Eq{"cl.campaign_id": f.CampaignID})
	}
	if f.LeadID != "" {
		b = b.Where(sq.Eq{"cl.lead_id": f.LeadID})
	}
	if f.Outcome != "" {
		b = b.Where(sq.Eq{"cl.outcome": f.Outcome})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []calls.CallLog{}
	for rows.Next() {
		c, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t pgTx) InsertAppointment(ctx context.Context, a calls.Appointment) error {
	const q = `
INSERT INTO appointments (
  id, lead_id, call_log_id, campaign_id, scheduled_time, duration_minutes, meeting_type,
  notes, attendee_name, attendee_email, attendee_phone, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	_, err := t.q.ExecContext(ctx, q,
		a.ID,
		a.LeadID,
		a.CallLogID,
		a.CampaignID,
		a.ScheduledTime,
		a.DurationMinutes,
		a.MeetingType,
		a.Notes,
		a.AttendeeName,
		a.AttendeeEmail,
		a.AttendeePhone,
		a.Status,
		a.CreatedAt,
	)
	return err
}
