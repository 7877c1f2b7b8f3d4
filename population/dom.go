package population

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/popharvest/config"
	"github.com/use-agent/popharvest/models"
	"golang.org/x/net/html"
)

// infoTotalPattern finds the row count in "Showing 1 to 25 of 1,234 entries".
var infoTotalPattern = regexp.MustCompile(`(?:of|to)\s+([\d,]+)\s+(?:entries|total)`)

// Selectors holds the compiled table selectors. The raw strings are kept
// for the calls that run inside the browser.
type Selectors struct {
	cfg config.SelectorConfig

	info      cascadia.Selector
	rows      cascadia.Selector
	challenge cascadia.Selector
	cells     cascadia.Selector
	title     cascadia.Selector
}

// CompileSelectors validates every selector up front so a typo in the
// environment fails at startup instead of silently matching nothing.
func CompileSelectors(cfg config.SelectorConfig) (*Selectors, error) {
	s := &Selectors{cfg: cfg}
	for _, c := range []struct {
		dst  *cascadia.Selector
		expr string
	}{
		{&s.info, cfg.Info},
		{&s.rows, cfg.Rows},
		{&s.challenge, cfg.ChallengeMarker},
		{&s.cells, "td"},
		{&s.title, "title"},
	} {
		sel, err := cascadia.Compile(c.expr)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("invalid selector %q", c.expr), err)
		}
		*c.dst = sel
	}
	for _, expr := range []string{cfg.Length, cfg.PageIndicator, cfg.Next} {
		if _, err := cascadia.Compile(expr); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidInput,
				fmt.Sprintf("invalid selector %q", expr), err)
		}
	}
	return s, nil
}

// parseSnapshot turns a rendered HTML snapshot into a queryable document.
func parseSnapshot(raw string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// TotalFromInfo reads the advertised row count from the table summary
// text. It returns 0 when the element or the count is missing.
func (s *Selectors) TotalFromInfo(doc *goquery.Document) int {
	text := doc.FindMatcher(s.info).First().Text()
	m := infoTotalPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// IsChallenge reports whether the snapshot is an anti-bot interstitial.
func (s *Selectors) IsChallenge(doc *goquery.Document) bool {
	title := doc.FindMatcher(s.title).First().Text()
	for _, marker := range s.cfg.ChallengeTitles {
		if marker != "" && strings.Contains(title, marker) {
			return true
		}
	}
	return doc.FindMatcher(s.challenge).Length() > 0
}

// TableRows converts the data rows of a snapshot into raw items. Footer
// rows, rows with fewer than three cells, and rows missing a subject or
// certification number are dropped.
func (s *Selectors) TableRows(doc *goquery.Document) []RawItem {
	var items []RawItem
	doc.FindMatcher(s.rows).Each(func(i int, row *goquery.Selection) {
		text := row.Text()
		for _, marker := range s.cfg.FooterMarkers {
			if marker != "" && strings.Contains(text, marker) {
				return
			}
		}

		cells := row.FindMatcher(s.cells)
		if cells.Length() < 3 {
			return
		}

		subject, variety := ExtractVariant(strings.TrimSpace(cells.Eq(0).Text()))
		cert := strings.TrimSpace(cells.Eq(1).Text())
		if subject == "" || cert == "" {
			return
		}

		items = append(items, &DOMItem{
			SubjectName: subject,
			Variety:     variety,
			CardNumber:  cert,
			Total:       strings.TrimSpace(cells.Last().Text()),
		})
	})
	return items
}

// DOMExtractor reads totals, page size and rows from the live page when
// interception produced nothing.
type DOMExtractor struct {
	sel     *Selectors
	wait    time.Duration
	debug   *Debugger
	timeout time.Duration
}

// NewDOMExtractor creates an extractor. wait bounds the row wait; timeout
// bounds every other page call.
func NewDOMExtractor(sel *Selectors, wait, timeout time.Duration, debug *Debugger) *DOMExtractor {
	return &DOMExtractor{sel: sel, wait: wait, timeout: timeout, debug: debug}
}

// snapshot fetches and parses the current document.
func (d *DOMExtractor) snapshot(ctx context.Context, page Page) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return parseSnapshot(raw)
}

// TotalRecords returns the advertised row count, or 0 when unknown.
func (d *DOMExtractor) TotalRecords(ctx context.Context, page Page) int {
	doc, err := d.snapshot(ctx, page)
	if err != nil {
		slog.Warn("dom: total records unavailable", "error", err)
		return 0
	}
	return d.sel.TotalFromInfo(doc)
}

// PageSize returns the selected page length, or 0 when unknown.
func (d *DOMExtractor) PageSize(ctx context.Context, page Page) int {
	return d.intValue(ctx, page, d.sel.cfg.Length)
}

// CurrentPage returns the page number shown by the pagination control,
// or 0 when it cannot be read.
func (d *DOMExtractor) CurrentPage(ctx context.Context, page Page) int {
	return d.intValue(ctx, page, d.sel.cfg.PageIndicator)
}

func (d *DOMExtractor) intValue(ctx context.Context, page Page, selector string) int {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	v, err := page.Value(ctx, selector)
	if err != nil {
		slog.Debug("dom: value unavailable", "selector", selector, "error", err)
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ChallengePresent reports whether the page currently shows a challenge.
// A page that cannot be read is not treated as a challenge.
func (d *DOMExtractor) ChallengePresent(ctx context.Context, page Page) bool {
	doc, err := d.snapshot(ctx, page)
	if err != nil {
		slog.Debug("dom: challenge check skipped", "error", err)
		return false
	}
	return d.sel.IsChallenge(doc)
}

// ExtractData scrapes the rendered rows for pageNum. An empty table,
// a row wait that times out and a challenge page all yield no records;
// none of them is an error.
func (d *DOMExtractor) ExtractData(ctx context.Context, page Page, pageNum int) []models.PopulationRecord {
	waitCtx, cancel := context.WithTimeout(ctx, d.wait)
	err := page.WaitElement(waitCtx, d.sel.cfg.Rows)
	cancel()
	if err != nil {
		slog.Warn("dom: no table rows appeared", "page", pageNum, "error", err)
		d.debug.Capture(ctx, page, fmt.Sprintf("dom-wait-timeout-page%d", pageNum))
		return nil
	}

	doc, err := d.snapshot(ctx, page)
	if err != nil {
		slog.Warn("dom: snapshot failed", "page", pageNum, "error", err)
		return nil
	}
	if d.sel.IsChallenge(doc) {
		slog.Warn("dom: challenge page during extraction", "page", pageNum)
		d.debug.Capture(ctx, page, fmt.Sprintf("dom-challenge-page%d", pageNum))
		return nil
	}

	items := d.sel.TableRows(doc)
	recs := FormatResponseData(items)
	slog.Info("dom: extracted rows", "page", pageNum, "rows", len(items), "records", len(recs))
	return recs
}
