// Package contactout finds decision makers for a company via ContactOut.
package contactout

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"leadgen-platform/internal/config"
	"leadgen-platform/internal/leads"
	"leadgen-platform/pkg/httpclient"
	"leadgen-platform/pkg/logger"
)

const searchLimit = 10

var ErrNotConfigured = errors.New("contactout: api key not configured")

type Client struct {
	http   *httpclient.Client
	apiKey string
}

func New(cfg config.ContactOutConfig, opts ...httpclient.Option) *Client {
	opts = append([]httpclient.Option{httpclient.WithBearer(cfg.APIKey)}, opts...)
	return &Client{
		http:   httpclient.New("contactout", cfg.BaseURL, opts...),
		apiKey: cfg.APIKey,
	}
}

// SearchPeople returns people at company holding title. Vendor failures are
// logged and yield an empty result.
func (c *Client) SearchPeople(ctx context.Context, company, title, location string) []leads.Contact {
	if c.apiKey == "" {
		logger.From(ctx).Warn("contactout search skipped", "err", ErrNotConfigured)
		return nil
	}
	q := url.Values{}
	q.Set("company", company)
	q.Set("title", title)
	if location != "" {
		q.Set("location", location)
	}
	q.Set("limit", strconv.Itoa(searchLimit))

	var resp searchResponse
	if err := c.http.Do(ctx, http.MethodGet, "/search/people", q, nil, &resp); err != nil {
		logger.From(ctx).Warn("contactout search failed", "company", company, "title", title, "err", err)
		return nil
	}
	out := make([]leads.Contact, 0, len(resp.People))
	for _, p := range resp.People {
		out = append(out, p.contact())
	}
	return out
}

// FindContacts searches every role and merges the results. Contacts are
// de-duplicated by email, or by name when they have none.
func (c *Client) FindContacts(ctx context.Context, company, location string, roles []string) []leads.Contact {
	seen := map[string]struct{}{}
	var out []leads.Contact
	for _, role := range roles {
		if ctx.Err() != nil {
			break
		}
		for _, ct := range c.SearchPeople(ctx, company, role, location) {
			key := dedupKey(ct)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, ct)
		}
	}
	return out
}

// GetPerson fetches one profile by id.
func (c *Client) GetPerson(ctx context.Context, id string) (leads.Contact, error) {
	if c.apiKey == "" {
		return leads.Contact{}, ErrNotConfigured
	}
	var resp personResponse
	if err := c.http.Do(ctx, http.MethodGet, "/people/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return leads.Contact{}, err
	}
	if resp.Person == nil {
		return leads.Contact{}, &httpclient.StatusError{Service: "contactout", StatusCode: http.StatusNotFound, Body: "person not found"}
	}
	return resp.Person.contact(), nil
}

func (p person) contact() leads.Contact {
	ct := leads.Contact{
		ID:          p.ID,
		Name:        strings.TrimSpace(p.FirstName + " " + p.LastName),
		Title:       p.Title,
		Company:     p.Company,
		Email:       p.Email,
		LinkedInURL: p.LinkedInURL,
	}
	if len(p.PhoneNumbers) > 0 {
		ct.Phone = p.PhoneNumbers[0]
	}
	return ct
}

func dedupKey(ct leads.Contact) string {
	if ct.Email != "" {
		return "email:" + strings.ToLower(ct.Email)
	}
	return "name:" + strings.ToLower(ct.Name)
}
