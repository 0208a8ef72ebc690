package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// SerpAPIBaseURL is the SerpAPI root.
const SerpAPIBaseURL = "https://serpapi.com"

// WebSearch runs Google searches through SerpAPI.
type WebSearch struct {
	client *Client
	apiKey string
}

// NewWebSearch creates the google_web_search_tool handler.
func NewWebSearch(cfg Config, opts ...ClientOption) *WebSearch {
	return &WebSearch{
		client: NewClient("SerpAPI", cfg.BaseURL(SerpAPIBaseURL), opts...),
		apiKey: cfg.APIKey,
	}
}

// Definition registers the tool.
func (t *WebSearch) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.GoogleWebSearch,
		Description: "Google web, news, image and shopping search.",
		Inputs:      []any{tool.WebSearchInput{}},
		Outputs:     []any{tool.WebSearchOutput{}},
		Examples: []tool.Example{
			{Tool: tool.GoogleWebSearch, ToolInput: map[string]any{"search_query": "apple cider recipe", "num_results": 5}},
			{Tool: tool.GoogleWebSearch, ToolInput: map[string]any{"search_query": "election results", "search_type": "news", "time_period": "day"}},
			{Tool: tool.GoogleWebSearch, ToolInput: map[string]any{"search_query": "coffee shops", "location": "Philadelphia, Pennsylvania"}},
		},
		Decode: tool.DecoderFor[tool.WebSearchInput](),
		Handler: func(ctx context.Context, input any) (any, error) {
			return t.Run(ctx, *input.(*tool.WebSearchInput))
		},
	}
}

// serpResultSets lists the SerpAPI result arrays and the type they map to.
var serpResultSets = []struct {
	key        string
	resultType string
}{
	{"organic_results", "organic"},
	{"news_results", "news"},
	{"shopping_results", "shopping"},
	{"images_results", "image"},
	{"recipes_results", "recipe"},
	{"local_results", "local"},
}

// Run executes the search described by in.
func (t *WebSearch) Run(ctx context.Context, in tool.WebSearchInput) (tool.WebSearchOutput, error) {
	if t.apiKey == "" {
		return tool.WebSearchOutput{}, errors.New("SerpAPI key not configured")
	}

	q := queryOf(tool.SerpQuery(in))
	q.Set("api_key", t.apiKey)

	resp, err := t.client.Do(ctx, Call{Path: "/search.json", Query: q})
	if err != nil {
		return tool.WebSearchOutput{}, err
	}

	var data map[string]any
	if err := resp.DecodeJSON(&data); err != nil {
		if !resp.OK() {
			return tool.WebSearchOutput{}, &UpstreamError{Service: t.client.Service(), StatusCode: resp.StatusCode}
		}
		return tool.WebSearchOutput{}, fmt.Errorf("failed to decode search response: %w", err)
	}
	if msg := str(data, "error"); msg != "" || !resp.OK() {
		return tool.WebSearchOutput{}, &UpstreamError{
			Service:    t.client.Service(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Search API error: %d %s", resp.StatusCode, msg),
		}
	}

	return mapSearch(in.SearchQuery, data), nil
}

func mapSearch(query string, data map[string]any) tool.WebSearchOutput {
	out := tool.WebSearchOutput{
		Tool:    tool.GoogleWebSearch,
		Query:   query,
		Results: []tool.WebSearchResult{},
	}

	for _, set := range serpResultSets {
		for _, item := range items(data[set.key]) {
			out.Results = append(out.Results, mapResult(item, set.resultType))
		}
	}

	if info, ok := data["search_information"].(map[string]any); ok {
		out.SearchInformation = info
		if n, ok := info["total_results"].(float64); ok {
			total := int64(n)
			out.TotalResults = &total
		}
	}

	if kg, ok := data["knowledge_graph"].(map[string]any); ok {
		graph := &tool.KnowledgeGraph{
			Title:       str(kg, "title"),
			Type:        str(kg, "type"),
			Description: str(kg, "description"),
		}
		if src, ok := kg["source"].(map[string]any); ok {
			graph.Source = src
		}
		graph.HeaderImages = items(kg["header_images"])
		out.KnowledgeGraph = graph
	}

	for _, q := range items(data["related_questions"]) {
		out.RelatedQuestions = append(out.RelatedQuestions, tool.RelatedQuestion{
			Question: str(q, "question"),
			Snippet:  str(q, "snippet"),
			Title:    str(q, "title"),
			Link:     str(q, "link"),
		})
	}
	return out
}

func mapResult(item map[string]any, resultType string) tool.WebSearchResult {
	r := tool.WebSearchResult{
		Title:         str(item, "title"),
		Link:          str(item, "link", "product_link", "original", "website"),
		Snippet:       str(item, "snippet", "description"),
		DisplayedLink: str(item, "displayed_link"),
		Thumbnail:     str(item, "thumbnail"),
		Source:        str(item, "source"),
		Date:          str(item, "date"),
		ResultType:    resultType,
		Price:         str(item, "price"),
		Address:       str(item, "address"),
		Phone:         str(item, "phone"),
		TotalTime:     str(item, "total_time"),
	}
	if n, ok := item["position"].(float64); ok {
		r.Position = int(n)
	}
	if n, ok := item["rating"].(float64); ok {
		r.Rating = &n
	}
	if n, ok := item["reviews"].(float64); ok {
		reviews := int(n)
		r.Reviews = &reviews
	}
	if src, ok := item["source"].(map[string]any); ok && r.Source == "" {
		r.Source = str(src, "name")
	}
	for _, ing := range asSlice(item["ingredients"]) {
		if s, ok := ing.(string); ok {
			r.Ingredients = append(r.Ingredients, s)
		}
	}
	return r
}

// items returns the objects of a JSON array. A SerpAPI block wrapping a
// "places" array is unwrapped.
func items(v any) []map[string]any {
	if m, ok := v.(map[string]any); ok {
		v = m["places"]
	}
	var out []map[string]any
	for _, e := range asSlice(v) {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// str returns the first key of m holding a non-empty string.
func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
