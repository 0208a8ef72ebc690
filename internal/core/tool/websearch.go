package tool

import (
	"strconv"
	"strings"
)

// WebSearchInput is the input of google_web_search_tool.
type WebSearchInput struct {
	SearchQuery string `json:"search_query"`
	NumResults  int    `json:"num_results,omitempty"`
	Location    string `json:"location,omitempty"`
	Language    string `json:"language,omitempty"`
	Country     string `json:"country,omitempty"`
	Device      string `json:"device,omitempty"`
	SafeSearch  string `json:"safe_search,omitempty"`
	SearchType  string `json:"search_type,omitempty"`
	TimePeriod  string `json:"time_period,omitempty"`
}

// ApplyDefaults fills optional fields with their documented defaults.
func (in *WebSearchInput) ApplyDefaults() {
	if in.NumResults == 0 {
		in.NumResults = 10
	}
	if in.Device == "" {
		in.Device = "desktop"
	}
	if in.SearchType == "" {
		in.SearchType = "search"
	}
}

func (in *WebSearchInput) Validate() error {
	var errs ValidationErrors
	in.SearchQuery = strings.TrimSpace(in.SearchQuery)
	if in.SearchQuery == "" {
		errs.Add("search_query", "must not be empty")
	}
	if in.NumResults < 1 || in.NumResults > 100 {
		errs.Add("num_results", "must be between 1 and 100")
	}
	if !oneOf(in.Device, "desktop", "mobile", "tablet") {
		errs.Add("device", "must be one of desktop, mobile, tablet")
	}
	if in.SafeSearch != "" && !oneOf(in.SafeSearch, "active", "off") {
		errs.Add("safe_search", "must be one of active, off")
	}
	if !oneOf(in.SearchType, "search", "news", "images", "shopping") {
		errs.Add("search_type", "must be one of search, news, images, shopping")
	}
	if in.TimePeriod != "" && !oneOf(in.TimePeriod, "hour", "day", "week", "month", "year") {
		errs.Add("time_period", "must be one of hour, day, week, month, year")
	}
	return errs.Err()
}

// SerpQuery maps the input onto SerpAPI Google engine parameters.
// The api key is added by the caller.
func SerpQuery(in WebSearchInput) map[string]string {
	q := map[string]string{
		"engine": "google",
		"q":      in.SearchQuery,
		"num":    strconv.Itoa(in.NumResults),
		"device": in.Device,
	}
	if in.Location != "" {
		q["location"] = in.Location
	}
	if in.Language != "" {
		q["hl"] = in.Language
	}
	if in.Country != "" {
		q["gl"] = in.Country
	}
	if in.SafeSearch != "" {
		q["safe"] = in.SafeSearch
	}
	switch in.SearchType {
	case "news":
		q["tbm"] = "nws"
	case "images":
		q["tbm"] = "isch"
	case "shopping":
		q["tbm"] = "shop"
	}
	if in.TimePeriod != "" {
		q["tbs"] = "qdr:" + in.TimePeriod[:1]
	}
	return q
}

// WebSearchResult is a single typed search hit.
type WebSearchResult struct {
	Title         string   `json:"title"`
	Link          string   `json:"link"`
	Snippet       string   `json:"snippet,omitempty"`
	Position      int      `json:"position,omitempty"`
	DisplayedLink string   `json:"displayed_link,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	Source        string   `json:"source,omitempty"`
	Date          string   `json:"date,omitempty"`
	ResultType    string   `json:"result_type"`
	Price         string   `json:"price,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	Reviews       *int     `json:"reviews,omitempty"`
	Address       string   `json:"address,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Ingredients   []string `json:"ingredients,omitempty"`
	TotalTime     string   `json:"total_time,omitempty"`
}

// KnowledgeGraph is the knowledge panel attached to a search.
type KnowledgeGraph struct {
	Title        string           `json:"title,omitempty"`
	Type         string           `json:"type,omitempty"`
	Description  string           `json:"description,omitempty"`
	Source       map[string]any   `json:"source,omitempty"`
	HeaderImages []map[string]any `json:"header_images,omitempty"`
}

// RelatedQuestion is a "people also ask" entry.
type RelatedQuestion struct {
	Question string `json:"question"`
	Snippet  string `json:"snippet,omitempty"`
	Title    string `json:"title,omitempty"`
	Link     string `json:"link,omitempty"`
}

// WebSearchOutput is the output of google_web_search_tool.
type WebSearchOutput struct {
	Tool              Name              `json:"tool"`
	Query             string            `json:"query"`
	Results           []WebSearchResult `json:"results"`
	TotalResults      *int64            `json:"total_results,omitempty"`
	KnowledgeGraph    *KnowledgeGraph   `json:"knowledge_graph,omitempty"`
	RelatedQuestions  []RelatedQuestion `json:"related_questions,omitempty"`
	SearchInformation map[string]any    `json:"search_information,omitempty"`
}
