// Package nlp is an HTTP client for the sentence-annotation helper
// service. The helper runs as a sidecar process and exposes a small JSON
// API for sentence segmentation, entity recognition, and verb tagging.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/archivist-labs/chronicle/internal/resilience"
)

const defaultBaseURL = "http://127.0.0.1:8100"

// Client performs calls against the helper service.
type Client interface {
	Health(ctx context.Context) (*HealthResponse, error)
	Preprocess(ctx context.Context, req PreprocessRequest) (*PreprocessResponse, error)
	VerbCategories(ctx context.Context) (map[string]float64, error)
}

// HealthResponse is the body of GET /health. A loaded model shows up as a
// non-empty spacy_model.
type HealthResponse struct {
	Status     string `json:"status"`
	SpacyModel string `json:"spacy_model"`
	Version    string `json:"version,omitempty"`
}

// PreprocessRequest is the body of POST /preprocess.
type PreprocessRequest struct {
	Text         string `json:"text"`
	ArticleDate  string `json:"article_date,omitempty"`
	MaxSentences int    `json:"max_sentences,omitempty"`
}

// SentenceAnnotation is one annotated sentence from the helper.
type SentenceAnnotation struct {
	Text               string             `json:"text"`
	Index              int                `json:"index"`
	IsTimelineRelevant bool               `json:"is_timeline_relevant"`
	RelevanceScore     float64            `json:"relevance_score"`
	Verbs              []VerbAnnotation   `json:"verbs,omitempty"`
	Entities           []EntityAnnotation `json:"entities,omitempty"`
	Dates              []DateAnnotation   `json:"dates,omitempty"`
}

// VerbAnnotation is a categorized verb occurrence.
type VerbAnnotation struct {
	Text     string `json:"text"`
	Lemma    string `json:"lemma"`
	Category string `json:"category"`
	Position int    `json:"position"`
}

// EntityAnnotation is a named-entity span.
type EntityAnnotation struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// DateAnnotation is a date reference with best-effort normalization.
type DateAnnotation struct {
	Text       string `json:"text"`
	Normalized string `json:"normalized,omitempty"`
	Precision  string `json:"precision,omitempty"`
}

// PreprocessResponse is the body of POST /preprocess.
type PreprocessResponse struct {
	Sentences []SentenceAnnotation `json:"sentences"`
	WordCount int                  `json:"word_count"`
	ModelName string               `json:"model_name,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default helper address.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a helper service client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.get(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Preprocess(ctx context.Context, req PreprocessRequest) (*PreprocessResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "nlp: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/preprocess", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "nlp: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "nlp: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nlp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("nlp: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var result PreprocessResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "nlp: unmarshal response")
	}

	return &result, nil
}

// VerbCategories fetches the helper's category definitions, flattened to a
// category-to-weight map. The helper sends a list of category objects.
func (c *httpClient) VerbCategories(ctx context.Context) (map[string]float64, error) {
	var out struct {
		Categories []struct {
			Category string  `json:"category"`
			Weight   float64 `json:"weight"`
		} `json:"categories"`
	}
	if err := c.get(ctx, "/verb-categories", &out); err != nil {
		return nil, err
	}
	weights := make(map[string]float64, len(out.Categories))
	for _, cat := range out.Categories {
		weights[cat.Category] = cat.Weight
	}
	return weights, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrapf(err, "nlp: create request %s", path)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "nlp: send request %s", path), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "nlp: read response %s", path)
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("nlp: unexpected status %d on %s: %s", resp.StatusCode, path, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "nlp: unmarshal response %s", path)
	}
	return nil
}
