package apify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"leadgen-platform/internal/config"
	"leadgen-platform/internal/leads"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(config.ApifyConfig{
		Token:     "tok",
		BaseURL:   srv.URL,
		MapsActor: "maps",
		SyncActor: "sync",
	})
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestSearchPlaces_PollsUntilSucceeded(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/acts/maps/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var in mapsRunInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"dentists in Austin, TX"}, in.SearchQueries)
		assert.Equal(t, 20, in.MaxPlacesPerQuery)
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"RUNNING","defaultDatasetId":"ds1"}}`))
	})
	mux.HandleFunc("/acts/maps/runs/run1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"RUNNING"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"SUCCEEDED","defaultDatasetId":"ds1"}}`))
	})
	mux.HandleFunc("/datasets/ds1/items", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"title":"Smile Dental","categories":["Dentist","Orthodontist"],"address":"1 Main St",
			"phone":"+15125550100","totalScore":4.7,"reviewsCount":120,"location":{"lat":30.1,"lng":-97.7},"placeId":"p1","url":"https://maps/p1"}]`))
	})

	c := newTestClient(t, mux)
	got, err := c.SearchPlaces(context.Background(), "dentists", "Austin, TX", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int32(2), polls)

	l := got[0]
	assert.Equal(t, "Smile Dental", l.BusinessName)
	assert.Equal(t, "Dentist, Orthodontist", l.Category)
	assert.Equal(t, 4.7, l.Rating)
	assert.Equal(t, "p1", l.GooglePlaceID)
	assert.Equal(t, 30.1, l.Latitude)
	assert.Equal(t, leads.StatusNew, l.Status)
}

func TestSearchPlaces_FailedRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acts/maps/runs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"RUNNING","defaultDatasetId":"ds1"}}`))
	})
	mux.HandleFunc("/acts/maps/runs/run1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"run1","status":"ABORTED"}}`))
	})

	c := newTestClient(t, mux)
	_, err := c.SearchPlaces(context.Background(), "dentists", "Austin", 10)
	assert.ErrorIs(t, err, ErrRunFailed)
}

func TestRunSync_Transforms(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acts/sync/run-sync-get-dataset-items", func(w http.ResponseWriter, r *http.Request) {
		var in syncRunInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, []string{"gyms in Denver, CO", "spas in Denver, CO"}, in.SearchStringsArray)
		assert.Equal(t, 1, in.MaxCrawledPlacesPerSearch)
		assert.True(t, in.OnlyDataFromSearchPage)
		_, _ = w.Write([]byte(`[{"title":"Iron Gym","categoryName":"Gym","address":"5 Oak"},{"street":"9 Elm","city":"Boulder"},{"title":"Extra"}]`))
	})

	c := newTestClient(t, mux)
	got, err := c.RunSync(context.Background(), []string{"gyms", "spas"}, "Denver, CO", 2)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Iron Gym", got[0].BusinessName)
	assert.Equal(t, "Denver", got[0].City)
	assert.Equal(t, "CO", got[0].State)

	assert.Equal(t, "Unknown Business", got[1].BusinessName)
	assert.Equal(t, "Unknown Category", got[1].Category)
	assert.Equal(t, "9 Elm Boulder", got[1].Address)
	assert.Equal(t, "Boulder", got[1].City)
}

func TestNotConfigured(t *testing.T) {
	c := New(config.ApifyConfig{BaseURL: "http://unused"})
	_, err := c.SearchPlaces(context.Background(), "a", "b", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.RunSync(context.Background(), []string{"a"}, "b", 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
