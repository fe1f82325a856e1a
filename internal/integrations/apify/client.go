// Package apify drives the Google Maps scraping actors on Apify.
package apify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadgen-platform/internal/config"
	"leadgen-platform/internal/leads"
	"leadgen-platform/pkg/httpclient"
)

const MaxPlacesPerQuery = 100

var (
	ErrNotConfigured = errors.New("apify: api token not configured")
	ErrRunFailed     = errors.New("apify: actor run failed")
)

type Client struct {
	http         *httpclient.Client
	token        string
	mapsActor    string
	syncActor    string
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(cfg config.ApifyConfig, opts ...httpclient.Option) *Client {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	opts = append([]httpclient.Option{httpclient.WithBearer(cfg.Token)}, opts...)
	return &Client{
		http:         httpclient.New("apify", cfg.BaseURL, opts...),
		token:        cfg.Token,
		mapsActor:    cfg.MapsActor,
		syncActor:    cfg.SyncActor,
		pollInterval: poll,
		sleep:        sleepCtx,
	}
}

// SearchPlaces runs the maps actor for "{query} in {location}" and waits for
// the dataset. max is capped at MaxPlacesPerQuery.
func (c *Client) SearchPlaces(ctx context.Context, query, location string, max int) ([]leads.Lead, error) {
	if c.token == "" {
		return nil, ErrNotConfigured
	}
	if max <= 0 || max > MaxPlacesPerQuery {
		max = MaxPlacesPerQuery
	}

	var started runEnvelope
	err := c.http.Do(ctx, http.MethodPost, "/acts/"+url.PathEscape(c.mapsActor)+"/runs", nil, mapsRunInput{
		SearchQueries:       []string{query + " in " + location},
		MaxPlacesPerQuery:   max,
		Language:            "en",
		ExportPlaceURLs:     true,
		IncludeWebResults:   true,
		IncludeOpeningHours: true,
	}, &started)
	if err != nil {
		return nil, err
	}

	r, err := c.waitForRun(ctx, started.Data)
	if err != nil {
		return nil, err
	}

	var places []Place
	if err := c.http.Do(ctx, http.MethodGet, "/datasets/"+url.PathEscape(r.DefaultDatasetID)+"/items", nil, nil, &places); err != nil {
		return nil, err
	}
	out := make([]leads.Lead, 0, len(places))
	for _, p := range places {
		out = append(out, p.ToLead())
	}
	return out, nil
}

func (c *Client) waitForRun(ctx context.Context, r run) (run, error) {
	if r.ID == "" {
		return run{}, fmt.Errorf("%w: no run id in response", ErrRunFailed)
	}
	for {
		switch r.Status {
		case statusSucceeded:
			return r, nil
		case statusFailed, statusAborted, statusTimedOut:
			return run{}, fmt.Errorf("%w: run %s status %s", ErrRunFailed, r.ID, r.Status)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return run{}, err
		}
		var env runEnvelope
		if err := c.http.Do(ctx, http.MethodGet, "/acts/"+url.PathEscape(c.mapsActor)+"/runs/"+url.PathEscape(r.ID), nil, nil, &env); err != nil {
			return run{}, err
		}
		datasetID := r.DefaultDatasetID
		r = env.Data
		if r.DefaultDatasetID == "" {
			r.DefaultDatasetID = datasetID
		}
	}
}

// AdHocLead is the flattened record returned by the ad-hoc scrape endpoint.
type AdHocLead struct {
	BusinessName  string  `json:"businessName"`
	Category      string  `json:"category"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	Phone         string  `json:"phone,omitempty"`
	Website       string  `json:"website,omitempty"`
	Rating        float64 `json:"rating,omitempty"`
	ReviewsCount  int     `json:"reviewsCount"`
	GooglePlaceID string  `json:"googlePlaceId,omitempty"`
	PlaceURL      string  `json:"placeUrl,omitempty"`
	Latitude      float64 `json:"latitude,omitempty"`
	Longitude     float64 `json:"longitude,omitempty"`
}

// RunSync calls the crawler actor's run-sync endpoint for every target in
// location. quantity sizes the per-search limit; the actor may still return
// more, so callers truncate.
func (c *Client) RunSync(ctx context.Context, targets []string, location string, quantity int) ([]AdHocLead, error) {
	if c.token == "" {
		return nil, ErrNotConfigured
	}
	if len(targets) == 0 || quantity <= 0 {
		return nil, nil
	}
	searches := make([]string, len(targets))
	for i, t := range targets {
		searches[i] = t + " in " + location
	}
	perSearch := int(math.Ceil(float64(quantity) / float64(len(targets))))

	var places []Place
	path := "/acts/" + url.PathEscape(c.syncActor) + "/run-sync-get-dataset-items"
	err := c.http.Do(ctx, http.MethodPost, path, nil, syncRunInput{
		SearchStringsArray:        searches,
		MaxCrawledPlacesPerSearch: perSearch,
		Language:                  "en",
		OnlyDataFromSearchPage:    true,
	}, &places)
	if err != nil {
		return nil, err
	}

	city, state := splitLocation(location)
	out := make([]AdHocLead, 0, len(places))
	for _, p := range places {
		out = append(out, p.toAdHoc(city, state))
	}
	return out, nil
}

// ToLead maps a place onto a new lead row.
func (p Place) ToLead() leads.Lead {
	name := p.Name
	if name == "" {
		name = p.Title
	}
	category := strings.Join(p.Categories, ", ")
	if category == "" {
		category = p.CategoryName
	}
	rating := p.TotalScore
	if rating == 0 {
		rating = p.Rating
	}
	l := leads.Lead{
		BusinessName:  name,
		Category:      category,
		Address:       p.Address,
		Phone:         p.Phone,
		Website:       p.Website,
		Rating:        rating,
		ReviewsCount:  p.ReviewsCount,
		GooglePlaceID: p.PlaceID,
		PlaceURL:      p.URL,
		Status:        leads.StatusNew,
	}
	if p.Location != nil {
		l.Latitude, l.Longitude = p.Location.Lat, p.Location.Lng
	}
	return l
}

func (p Place) toAdHoc(city, state string) AdHocLead {
	name := p.Title
	if name == "" {
		name = p.Name
	}
	if name == "" {
		name = "Unknown Business"
	}
	category := p.CategoryName
	if category == "" {
		category = "Unknown Category"
	}
	address := p.Address
	if address == "" {
		address = strings.Join(nonEmpty(p.Street, p.City, p.State), " ")
	}
	if p.City != "" {
		city = p.City
	}
	if p.State != "" {
		state = p.State
	}
	rating := p.TotalScore
	if rating == 0 {
		rating = p.Rating
	}
	website := p.Website
	if website == "" {
		website = p.URL
	}
	out := AdHocLead{
		BusinessName:  name,
		Category:      category,
		Address:       address,
		City:          city,
		State:         state,
		Phone:         p.Phone,
		Website:       website,
		Rating:        rating,
		ReviewsCount:  p.ReviewsCount,
		GooglePlaceID: p.PlaceID,
		PlaceURL:      p.URL,
	}
	if p.Location != nil {
		out.Latitude, out.Longitude = p.Location.Lat, p.Location.Lng
	}
	return out
}

// splitLocation turns "Austin, TX" into ("Austin", "TX").
func splitLocation(loc string) (string, string) {
	parts := strings.SplitN(loc, ",", 2)
	city := strings.TrimSpace(parts[0])
	if len(parts) == 1 {
		return city, ""
	}
	return city, strings.TrimSpace(parts[1])
}

func nonEmpty(vs ...string) []string {
	var out []string
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
