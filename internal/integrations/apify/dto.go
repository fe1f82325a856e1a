package apify

// Place is one Google Maps result as returned by the maps actors. Field
// names differ slightly between actors, so several are optional aliases.
type Place struct {
	Title        string    `json:"title"`
	Name         string    `json:"name"`
	CategoryName string    `json:"categoryName"`
	Categories   []string  `json:"categories"`
	Address      string    `json:"address"`
	Street       string    `json:"street"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	Phone        string    `json:"phone"`
	Website      string    `json:"website"`
	TotalScore   float64   `json:"totalScore"`
	Rating       float64   `json:"rating"`
	ReviewsCount int       `json:"reviewsCount"`
	Location     *Location `json:"location"`
	PlaceID      string    `json:"placeId"`
	URL          string    `json:"url"`
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// mapsRunInput is the body for the async maps actor.
type mapsRunInput struct {
	SearchQueries       []string `json:"searchQueries"`
	MaxPlacesPerQuery   int      `json:"maxPlacesPerQuery"`
	Language            string   `json:"language"`
	ExportPlaceURLs     bool     `json:"exportPlaceUrls"`
	IncludeWebResults   bool     `json:"includeWebResults"`
	IncludeOpeningHours bool     `json:"includeOpeningHours"`
	IncludeReviews      bool     `json:"includeReviews"`
}

// syncRunInput is the body for the run-sync crawler actor.
type syncRunInput struct {
	SearchStringsArray        []string `json:"searchStringsArray"`
	MaxCrawledPlacesPerSearch int      `json:"maxCrawledPlacesPerSearch"`
	Language                  string   `json:"language"`
	ExportPlaceURLs           bool     `json:"exportPlaceUrls"`
	AdditionalInfo            bool     `json:"additionalInfo"`
	MaxReviews                int      `json:"maxReviews"`
	MaxImages                 int      `json:"maxImages"`
	OnlyDataFromSearchPage    bool     `json:"onlyDataFromSearchPage"`
	IncludeWebResults         bool     `json:"includeWebResults"`
}

type runEnvelope struct {
	Data run `json:"data"`
}

type run struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

const (
	statusReady     = "READY"
	statusRunning   = "RUNNING"
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusAborted   = "ABORTED"
	statusTimedOut  = "TIMED-OUT"
)
