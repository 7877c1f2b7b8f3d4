package population

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/use-agent/popharvest/models"
)

// interceptBuffer is the number of responses one armed page can queue.
const interceptBuffer = 8

// tableResponse is the server-side DataTables payload.
type tableResponse struct {
	Draw            any               `json:"draw"`
	RecordsTotal    any               `json:"recordsTotal"`
	RecordsFiltered any               `json:"recordsFiltered"`
	Length          any               `json:"length"`
	Data            []json.RawMessage `json:"data"`
}

// Intercepted is one data response observed for an armed page.
type Intercepted struct {
	// Page is the page number the interceptor was armed for.
	Page int

	Items        []RawItem
	RecordsTotal int

	// PageSize is the response's length field, else its data length.
	PageSize int

	// Skipped counts data entries that were not objects.
	Skipped int

	// Err is set when the response was unusable. Items is then nil.
	Err error
}

// Interceptor bridges the page's network events into the fetch loop. Each
// Arm attaches a fresh observer with its own channel, so a response that
// arrives late for one page can never be read as data for the next.
type Interceptor struct {
	endpoint string
	stop     func()
}

// NewInterceptor recognizes data responses by URL substring.
func NewInterceptor(endpoint string) *Interceptor {
	return &Interceptor{endpoint: endpoint}
}

// Arm detaches the previous observer and starts observing for expectedPage.
// Every matching response produces exactly one message on the returned
// channel; sends never block the browser's event loop.
func (ic *Interceptor) Arm(page Page, expectedPage int) (<-chan Intercepted, error) {
	ic.Disarm()

	ch := make(chan Intercepted, interceptBuffer)
	stop, err := page.Observe(ic.matches, func(r ObservedResponse) {
		msg := decodeTableResponse(r, expectedPage)
		select {
		case ch <- msg:
		default:
			slog.Warn("interceptor: buffer full, dropping response",
				"page", expectedPage,
				"url", r.URL,
			)
		}
	})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeIntercept, "failed to observe responses", err)
	}
	ic.stop = stop
	slog.Debug("interceptor armed", "page", expectedPage, "endpoint", ic.endpoint)
	return ch, nil
}

// Disarm detaches the current observer, if any. It is safe to call twice.
func (ic *Interceptor) Disarm() {
	if ic.stop != nil {
		ic.stop()
		ic.stop = nil
	}
}

func (ic *Interceptor) matches(url string) bool {
	return ic.endpoint != "" && strings.Contains(url, ic.endpoint)
}

// decodeTableResponse turns an observed response into a message. Failures
// are carried in Err; the message is always produced.
func decodeTableResponse(r ObservedResponse, page int) Intercepted {
	msg := Intercepted{Page: page}

	switch {
	case r.Err != nil:
		msg.Err = models.NewScrapeError(models.ErrCodeIntercept, "response failed", r.Err)
		return msg
	case r.Status < 200 || r.Status > 299:
		msg.Err = models.NewScrapeError(models.ErrCodeIntercept,
			fmt.Sprintf("non-OK status %d", r.Status), nil)
		return msg
	}

	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 || body[0] != '{' {
		msg.Err = models.NewScrapeError(models.ErrCodeIntercept, "response is not a JSON object", nil)
		return msg
	}

	var resp tableResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		msg.Err = models.NewScrapeError(models.ErrCodeIntercept, "malformed JSON body", err)
		return msg
	}
	if resp.Data == nil {
		msg.Err = models.NewScrapeError(models.ErrCodeIntercept, "response has no data array", nil)
		return msg
	}

	items := make([]RawItem, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var item APIItem
		if err := json.Unmarshal(raw, &item); err != nil {
			msg.Skipped++
			continue
		}
		items = append(items, &item)
	}

	msg.Items = items
	msg.RecordsTotal = intOf(resp.RecordsTotal)
	msg.PageSize = intOf(resp.Length)
	if msg.PageSize <= 0 {
		msg.PageSize = len(resp.Data)
	}
	return msg
}

// intOf reads a whole JSON number, returning 0 for anything else.
func intOf(v any) int {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return int(f)
}
