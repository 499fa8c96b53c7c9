package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"IdeaDigest/internal/domain"
	"IdeaDigest/internal/infrastructure/pacing"
	"IdeaDigest/internal/ports"
)

const (
	airtableAPI         = "https://api.airtable.com/v0"
	airtablePageSize    = 100
	airtableDeleteBatch = 10
	// AirtablePacing keeps us under the 5 requests/second API limit.
	AirtablePacing = 250 * time.Millisecond
)

// AirtableConfig holds credentials and table coordinates.
type AirtableConfig struct {
	APIKey  string
	BaseID  string
	Table   string
	BaseURL string
	Timeout time.Duration
	Pacer   *pacing.Pacer
}

// AirtableBackend talks to the Airtable REST API. Every request is paced.
type AirtableBackend struct {
	cfg    AirtableConfig
	client *http.Client
	logger *slog.Logger
}

var _ ports.KeyedBackend = (*AirtableBackend)(nil)

// NewAirtableBackend builds the backend. Missing credentials surface from Check.
func NewAirtableBackend(cfg AirtableConfig, logger *slog.Logger) *AirtableBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = airtableAPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Pacer == nil {
		cfg.Pacer = pacing.New(AirtablePacing)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AirtableBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (a *AirtableBackend) Name() string {
	return "airtable"
}

// Check reports missing credentials; it makes no network call.
func (a *AirtableBackend) Check(context.Context) error {
	var missing []string
	if a.cfg.APIKey == "" {
		missing = append(missing, "AIRTABLE_API_KEY")
	}
	if a.cfg.BaseID == "" {
		missing = append(missing, "AIRTABLE_BASE_ID")
	}
	if a.cfg.Table == "" {
		missing = append(missing, "AIRTABLE_TABLE_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMisconfigured, strings.Join(missing, ", "))
	}
	return nil
}

type airtableFields struct {
	UniqueKey     string   `json:"unique_key"`
	ItemID        string   `json:"item_id,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	URL           string   `json:"url"`
	SourceName    string   `json:"source_name"`
	SourceDate    string   `json:"source_date,omitempty"`
	Score         float64  `json:"score"`
	Tags          []string `json:"tags"`
	CreatedAt     string   `json:"created_at,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
	Points        *int     `json:"points,omitempty"`
	Comments      *int     `json:"comments_count,omitempty"`
	Votes         *int     `json:"votes,omitempty"`
	Stars         *int     `json:"stars,omitempty"`
	StarsToday    *int     `json:"stars_today,omitempty"`
	Forks         *int     `json:"forks,omitempty"`
	Language      string   `json:"language,omitempty"`
	MakerName     string   `json:"maker_name,omitempty"`
	MakerUsername string   `json:"maker_username,omitempty"`
	MakerURL      string   `json:"maker_url,omitempty"`
}

type airtableRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields airtableFields `json:"fields"`
}

type airtableList struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

func toAirtableFields(idea domain.Idea) airtableFields {
	f := airtableFields{
		UniqueKey:     idea.ID,
		ItemID:        idea.ID,
		Title:         idea.Title,
		Description:   idea.Description,
		URL:           idea.URL,
		SourceName:    idea.SourceName,
		Score:         idea.Score,
		Tags:          idea.Tags.Names(),
		CreatedAt:     domain.FormatTimestamp(idea.CreatedAt),
		UpdatedAt:     domain.FormatTimestamp(idea.UpdatedAt),
		Points:        idea.Engagement.Points,
		Comments:      idea.Engagement.Comments,
		Votes:         idea.Engagement.Votes,
		Stars:         idea.Engagement.Stars,
		StarsToday:    idea.Engagement.StarsToday,
		Forks:         idea.Engagement.Forks,
		Language:      idea.Engagement.Language,
		MakerName:     idea.Maker.Name,
		MakerUsername: idea.Maker.Username,
		MakerURL:      idea.Maker.URL,
	}
	if idea.SourceDate != nil {
		f.SourceDate = domain.FormatTimestamp(*idea.SourceDate)
	}
	return f
}

func fromAirtableFields(f airtableFields) domain.Idea {
	idea := domain.Idea{
		ID:          f.ItemID,
		Title:       f.Title,
		Description: f.Description,
		URL:         f.URL,
		SourceName:  f.SourceName,
		Score:       f.Score,
		Tags:        domain.NewTagSet(f.Tags...),
		Engagement: domain.Engagement{
			Points:     f.Points,
			Comments:   f.Comments,
			Votes:      f.Votes,
			Stars:      f.Stars,
			StarsToday: f.StarsToday,
			Forks:      f.Forks,
			Language:   f.Language,
		},
		Maker: domain.Maker{Name: f.MakerName, Username: f.MakerUsername, URL: f.MakerURL},
	}
	if idea.ID == "" {
		idea.ID = f.UniqueKey
	}
	if t, err := domain.ParseTimestamp(f.SourceDate); err == nil && f.SourceDate != "" {
		idea.SourceDate = &t
	}
	if t, err := domain.ParseTimestamp(f.CreatedAt); err == nil {
		idea.CreatedAt = t
	}
	if t, err := domain.ParseTimestamp(f.UpdatedAt); err == nil {
		idea.UpdatedAt = t
	}
	return idea
}

func (a *AirtableBackend) tableURL() string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(a.cfg.BaseURL, "/"),
		url.PathEscape(a.cfg.BaseID), url.PathEscape(a.cfg.Table))
}

// do sends one paced request and decodes a 200 response into out when non-nil.
func (a *AirtableBackend) do(ctx context.Context, method, target string, body, out any) error {
	if err := a.cfg.Pacer.Wait(ctx); err != nil {
		return fmt.Errorf("wait for pacer: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("airtable error: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (a *AirtableBackend) FindByKey(ctx context.Context, key string) (ports.StoredRecord, bool, error) {
	params := url.Values{}
	params.Set("filterByFormula", fmt.Sprintf("{unique_key}='%s'", escapeFormula(key)))
	params.Set("maxRecords", "1")

	var page airtableList
	if err := a.do(ctx, http.MethodGet, a.tableURL()+"?"+params.Encode(), nil, &page); err != nil {
		return ports.StoredRecord{}, false, err
	}
	if len(page.Records) == 0 {
		return ports.StoredRecord{}, false, nil
	}
	rec := page.Records[0]
	return ports.StoredRecord{RecordID: rec.ID, Idea: fromAirtableFields(rec.Fields)}, true, nil
}

func (a *AirtableBackend) Create(ctx context.Context, idea domain.Idea) error {
	body := airtableRecord{Fields: toAirtableFields(idea)}
	return a.do(ctx, http.MethodPost, a.tableURL(), body, nil)
}

func (a *AirtableBackend) Update(ctx context.Context, recordID string, idea domain.Idea) error {
	body := airtableRecord{Fields: toAirtableFields(idea)}
	return a.do(ctx, http.MethodPatch, a.tableURL()+"/"+url.PathEscape(recordID), body, nil)
}

// listFormula combines the query filters into one Airtable formula.
func listFormula(q ports.ListQuery) string {
	var clauses []string
	if !q.CreatedAfter.IsZero() {
		clauses = append(clauses, fmt.Sprintf("IS_AFTER({created_at}, '%s')", domain.FormatTimestamp(q.CreatedAfter)))
	}
	if q.MinScore > 0 {
		clauses = append(clauses, "{score} >= "+strconv.FormatFloat(q.MinScore, 'f', -1, 64))
	}
	switch len(clauses) {
	case 0:
		return ""
	case 1:
		return clauses[0]
	default:
		return "AND(" + strings.Join(clauses, ", ") + ")"
	}
}

// pages walks every page of a listing, stopping once limit records were seen.
func (a *AirtableBackend) pages(ctx context.Context, base url.Values, limit int, visit func(airtableRecord)) error {
	seen := 0
	offset := ""
	for {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		pageSize := airtablePageSize
		if limit > 0 && limit-seen < pageSize {
			pageSize = limit - seen
		}
		params.Set("pageSize", strconv.Itoa(pageSize))
		if offset != "" {
			params.Set("offset", offset)
		}

		var page airtableList
		if err := a.do(ctx, http.MethodGet, a.tableURL()+"?"+params.Encode(), nil, &page); err != nil {
			return err
		}
		for _, rec := range page.Records {
			visit(rec)
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
		if page.Offset == "" {
			return nil
		}
		offset = page.Offset
	}
}

func (a *AirtableBackend) List(ctx context.Context, q ports.ListQuery) ([]domain.Idea, error) {
	params := url.Values{}
	if formula := listFormula(q); formula != "" {
		params.Set("filterByFormula", formula)
	}
	if q.SortBy != "" {
		direction := "asc"
		if q.Descending {
			direction = "desc"
		}
		params.Set("sort[0][field]", string(q.SortBy))
		params.Set("sort[0][direction]", direction)
		params.Set("sort[1][field]", "unique_key")
		params.Set("sort[1][direction]", "asc")
	}
	if q.Limit > 0 {
		params.Set("maxRecords", strconv.Itoa(q.Limit))
	}

	var ideas []domain.Idea
	err := a.pages(ctx, params, q.Limit, func(rec airtableRecord) {
		idea := fromAirtableFields(rec.Fields)
		if idea.Score < q.MinScore {
			return
		}
		ideas = append(ideas, idea)
	})
	if err != nil {
		return nil, err
	}
	return ideas, nil
}

func (a *AirtableBackend) Count(ctx context.Context) (int, error) {
	params := url.Values{}
	params.Set("fields[]", "unique_key")

	n := 0
	err := a.pages(ctx, params, 0, func(airtableRecord) { n++ })
	return n, err
}

// DeleteCreatedBefore deletes in batches of ten, the API maximum. A failed
// batch is logged and skipped so later batches still run.
func (a *AirtableBackend) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	params := url.Values{}
	params.Set("filterByFormula", fmt.Sprintf("IS_BEFORE({created_at}, '%s')", domain.FormatTimestamp(cutoff)))
	params.Set("fields[]", "unique_key")

	var ids []string
	if err := a.pages(ctx, params, 0, func(rec airtableRecord) { ids = append(ids, rec.ID) }); err != nil {
		return 0, err
	}

	deleted := 0
	var errs []error
	for start := 0; start < len(ids); start += airtableDeleteBatch {
		batch := ids[start:min(start+airtableDeleteBatch, len(ids))]
		q := url.Values{}
		for _, id := range batch {
			q.Add("records[]", id)
		}

		var resp struct {
			Records []struct {
				ID      string `json:"id"`
				Deleted bool   `json:"deleted"`
			} `json:"records"`
		}
		if err := a.do(ctx, http.MethodDelete, a.tableURL()+"?"+q.Encode(), nil, &resp); err != nil {
			a.logger.Warn("delete batch failed", "size", len(batch), "error", err)
			errs = append(errs, err)
			continue
		}
		for _, rec := range resp.Records {
			if rec.Deleted {
				deleted++
			}
		}
	}
	return deleted, errors.Join(errs...)
}

func escapeFormula(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `'`, `\'`)
}
