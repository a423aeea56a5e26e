// Package dashboard derives the admin view of the fetched registrations.
package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"confreg/internal/adapters/metrics"
	"confreg/internal/adapters/spreadsheet"
	"confreg/internal/adapters/storage/kv"
	"confreg/internal/application/listutil"
	"confreg/internal/application/orchestrators"
	"confreg/internal/domain/adminsession"
	"confreg/internal/domain/audit"
	"confreg/internal/domain/export"
	"confreg/internal/domain/registration"

	"github.com/samber/lo"
)

// Sort keys.
const (
	SortDate         = "date"
	SortOrganization = "organization"
	SortRelationship = "relationship"
)

// FilterAll disables the relationship filter.
const FilterAll = "all"

// SortKeys lists the accepted sort keys.
var SortKeys = []string{SortDate, SortOrganization, SortRelationship}

// FilterValues lists the accepted category filter values.
var FilterValues = append([]string{FilterAll}, registration.ValidRelationships...)

// DefaultSort is newest first.
var DefaultSort = listutil.SortParams{Sort: SortDate, Dir: listutil.Desc}

// MsgNoData is shown when an export is requested for an empty view.
const MsgNoData = "No data to export"

var ErrUnknownSortKey = errors.New("unknown sort key")

// Query selects and orders the visible registrations.
type Query struct {
	Search string `json:"q"`
	Filter string `json:"filter"`
	Sort   string `json:"sort"`
	Dir    string `json:"dir"`
}

// DefaultQuery shows everything newest first.
func DefaultQuery() Query {
	return Query{Filter: FilterAll, Sort: DefaultSort.Sort, Dir: DefaultSort.Dir}
}

// ParseQuery reads q, filter, sort and dir from URL query values.
// Missing or unknown values keep their defaults.
func ParseQuery(values url.Values) Query {
	p := listutil.ParseListParams(values, SortKeys, DefaultSort, map[string][]string{"filter": FilterValues})
	filter := p.Filters["filter"]
	if filter == "" {
		filter = FilterAll
	}
	return Query{Search: p.Search, Filter: filter, Sort: p.Sort, Dir: p.Dir}
}

// Values encodes q for links.
func (q Query) Values() url.Values {
	p := listutil.ListParams{
		SortParams:   listutil.SortParams{Sort: q.Sort, Dir: q.Dir},
		FilterParams: listutil.FilterParams{Search: q.Search},
	}
	if q.Filter != "" && q.Filter != FilterAll {
		p.Filters = map[string]string{"filter": q.Filter}
	}
	return p.Values()
}

// Derive filters and sorts regs without modifying them.
// Sorting is stable, so ties keep the fetched order.
// PRE: regs is in fetched order (created desc)
// POST: result is a new slice; regs is unchanged
func Derive(regs []registration.Registration, q Query) []registration.Registration {
	term := strings.ToLower(q.Search)
	out := lo.Filter(regs, func(r registration.Registration, _ int) bool {
		if q.Filter != "" && q.Filter != FilterAll && r.Relationship != q.Filter {
			return false
		}
		return term == "" || matches(r, term)
	})

	cmp := comparator(q.Sort)
	if cmp == nil {
		return out
	}
	desc := q.Dir != listutil.Asc
	slices.SortStableFunc(out, func(a, b registration.Registration) int {
		if desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
	return out
}

func matches(r registration.Registration, term string) bool {
	return lo.SomeBy([]string{r.OrganizationName, r.Website, r.Address.City, r.Address.State, r.Relationship},
		func(s string) bool { return strings.Contains(strings.ToLower(s), term) })
}

func comparator(key string) func(a, b registration.Registration) int {
	switch key {
	case SortDate:
		return func(a, b registration.Registration) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortOrganization:
		return func(a, b registration.Registration) int {
			return strings.Compare(strings.ToLower(a.OrganizationName), strings.ToLower(b.OrganizationName))
		}
	case SortRelationship:
		return func(a, b registration.Registration) int {
			return strings.Compare(strings.ToLower(a.Relationship), strings.ToLower(b.Relationship))
		}
	}
	return nil
}

// FetchFunc runs the guarded registration query for this client.
type FetchFunc func(ctx context.Context) orchestrators.FetchResult

// Deps holds the collaborators of a Controller.
type Deps struct {
	Fetch      FetchFunc
	Local      kv.Local
	Writer     spreadsheet.Writer
	Auditor    orchestrators.Auditor
	Client     orchestrators.Client
	Now        func() time.Time
	GenerateID func() string
	Location   *time.Location
	Metrics    *metrics.Metrics
}

// Controller holds the fetched set for one admin client and the current query.
type Controller struct {
	mu     sync.Mutex
	deps   Deps
	all    []registration.Registration
	query  Query
	loaded bool
	errMsg string
}

// New creates a controller with the default query.
func New(deps Deps) *Controller {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Controller{deps: deps, query: DefaultQuery()}
}

// Load fetches the registrations. clearCache drops the fetch stamp first.
// A failed fetch keeps the previously loaded set and records the message.
// POST: View reports Error until the next successful Load
func (c *Controller) Load(ctx context.Context, clearCache bool) orchestrators.FetchResult {
	if clearCache {
		if err := c.deps.Local.Remove(ctx, adminsession.KeyLastFetch); err != nil {
			slog.Warn("fetch_stamp_clear_failed", "client_id", c.deps.Client.ID, "error", err)
		}
	}

	return c.apply(c.deps.Fetch(ctx), false)
}

// Refresh re-fetches on a dashboard visit.
// A rate-limited refresh of a loaded set keeps that set and its current message.
func (c *Controller) Refresh(ctx context.Context) orchestrators.FetchResult {
	return c.apply(c.deps.Fetch(ctx), true)
}

func (c *Controller) apply(res orchestrators.FetchResult, quietLimit bool) orchestrators.FetchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !res.Success {
		if quietLimit && c.loaded && errors.Is(res.Err, orchestrators.ErrRateLimited) {
			return res
		}
		c.errMsg = res.Message
		return res
	}
	c.all = res.Registrations
	c.loaded = true
	c.errMsg = ""
	return res
}

// SetQuery replaces the whole query.
func (c *Controller) SetQuery(q Query) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if q.Filter == "" {
		q.Filter = FilterAll
	}
	c.query = q
}

// SetSearch sets the free-text search.
func (c *Controller) SetSearch(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Search = term
}

// SetFilter sets the relationship filter; unknown values show everything.
func (c *Controller) SetFilter(filter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(FilterValues, filter) {
		filter = FilterAll
	}
	c.query.Filter = filter
}

// ToggleSort flips the direction of the active key, or switches to key descending.
func (c *Controller) ToggleSort(key string) error {
	if !slices.Contains(SortKeys, key) {
		return ErrUnknownSortKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.query.Sort == key {
		if c.query.Dir == listutil.Asc {
			c.query.Dir = listutil.Desc
		} else {
			c.query.Dir = listutil.Asc
		}
		return nil
	}
	c.query.Sort = key
	c.query.Dir = listutil.Desc
	return nil
}

// SetSort sets key and direction explicitly.
func (c *Controller) SetSort(key, dir string) error {
	if !slices.Contains(SortKeys, key) {
		return ErrUnknownSortKey
	}
	if dir != listutil.Asc {
		dir = listutil.Desc
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.query.Sort = key
	c.query.Dir = dir
	return nil
}

// View is the rendered dashboard state.
type View struct {
	Query     Query
	Rows      []registration.Registration
	Page      listutil.PageInfo
	Total     int
	Count     int
	Loaded    bool
	Error     string
	CanExport bool
}

// View derives the visible rows for page (1-indexed) of perPage rows.
func (c *Controller) View(page, perPage int) View {
	c.mu.Lock()
	all, q, loaded, errMsg := c.all, c.query, c.loaded, c.errMsg
	c.mu.Unlock()

	rows := Derive(all, q)
	info := listutil.NewPageInfo(page, perPage, len(rows))
	return View{
		Query:     q,
		Rows:      listutil.Paginate(rows, info),
		Page:      info,
		Total:     len(all),
		Count:     len(rows),
		Loaded:    loaded,
		Error:     errMsg,
		CanExport: len(rows) > 0,
	}
}

// Export writes the filtered view as a workbook to w and returns its file name.
// The file is assembled in memory so w never receives a partial workbook.
// PRE: deps.Writer is set
// POST: ErrNoData without touching w when the filtered view is empty
func (c *Controller) Export(ctx context.Context, w io.Writer) (string, error) {
	c.mu.Lock()
	rows := Derive(c.all, c.query)
	c.mu.Unlock()

	now := c.deps.Now()
	table, err := export.Build(rows, c.deps.Location)
	if err != nil {
		c.deps.Metrics.Export(metrics.OutcomeDenied)
		return "", err
	}

	var buf bytes.Buffer
	if err := c.deps.Writer.Write(&buf, table); err != nil {
		c.deps.Metrics.Export(metrics.OutcomeFailure)
		c.audit(ctx, now, false, map[string]any{"error": err.Error()})
		return "", err
	}
	if _, err := buf.WriteTo(w); err != nil {
		return "", err
	}

	c.deps.Metrics.Export(metrics.OutcomeSuccess)
	c.audit(ctx, now, true, map[string]any{"rows": len(rows)})
	slog.Info("registrations_exported", "client_id", c.deps.Client.ID, "rows", len(rows))
	return export.FileName(now), nil
}

func (c *Controller) audit(ctx context.Context, now time.Time, success bool, details map[string]any) {
	if c.deps.Auditor == nil {
		return
	}
	id := ""
	if c.deps.GenerateID != nil {
		id = c.deps.GenerateID()
	}
	event := audit.NewEvent(id, now, audit.ActionDataExport, success).
		WithClient(c.deps.Client.ID, c.deps.Client.IPAddress, c.deps.Client.UserAgent)
	for k, v := range details {
		event = event.WithDetail(k, v)
	}
	c.deps.Auditor.Record(ctx, event)
}

// displayDateLayout matches the dashboard column, e.g. "Jan 2, 2025, 03:04 PM".
const displayDateLayout = "Jan 2, 2006, 03:04 PM"

// DisplayDate formats a submission time for the dashboard table.
func DisplayDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(displayDateLayout)
}

// DisplayPhone formats a phone as "(area) number", or "N/A" when both parts are blank.
func DisplayPhone(p registration.Phone) string {
	if p.IsEmpty() {
		return "N/A"
	}
	return "(" + p.Area + ") " + p.Number
}

// RelationshipLabel is the badge text of a relationship value.
func RelationshipLabel(relationship string) string {
	switch relationship {
	case registration.RelationshipCurrentClient:
		return "Current Client"
	case registration.RelationshipProspectiveClient:
		return "Prospective Client"
	case registration.RelationshipSponsor:
		return "Sponsor"
	case registration.RelationshipVendor:
		return "Vendor"
	}
	return relationship
}
