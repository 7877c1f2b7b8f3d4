package population

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	testEndpointURL = "https://example.test/Pop/GetSetItems"
	testIndicator   = "select.paginate_input"
	testLength      = "select[name='tablePSA_length']"
)

// fakeScreen is what the fake browser shows for one table page.
type fakeScreen struct {
	// body is the data response fired after the page is shown; empty
	// means the table renders without a matching request.
	body string

	// html is the rendered document while the page is shown.
	html string

	// challengeFor shows challengeHTML instead of html for this long
	// after the page is shown.
	challengeFor time.Duration
}

type observer struct {
	match func(string) bool
	fn    func(ObservedResponse)
}

// fakePage simulates a DataTables page. Data responses are delivered on
// a separate goroutine, the way browser network events arrive.
type fakePage struct {
	mu        sync.Mutex
	screens   map[int]fakeScreen
	current   int
	shownAt   time.Time
	length    string
	observers map[int]observer
	nextID    int

	navigations int
	clicks      int
	selects     int

	// onNavigate runs at the start of Navigate when set.
	onNavigate func()

	// indicator overrides the page number the pagination control reports.
	indicator func(current int) int
}

func newFakePage(screens map[int]fakeScreen) *fakePage {
	return &fakePage{screens: screens, observers: map[int]observer{}}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.onNavigate != nil {
		p.onNavigate()
	}
	p.mu.Lock()
	p.navigations++
	p.mu.Unlock()
	p.show(1)
	return nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderedLocked(), nil
}

// renderedLocked is the document currently visible. p.mu must be held.
func (p *fakePage) renderedLocked() string {
	sc := p.screens[p.current]
	if sc.challengeFor > 0 && time.Since(p.shownAt) < sc.challengeFor {
		return challengeHTML
	}
	return sc.html
}

func (p *fakePage) Value(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case testIndicator:
		if p.indicator != nil {
			return strconv.Itoa(p.indicator(p.current)), nil
		}
		return strconv.Itoa(p.current), nil
	case testLength:
		return p.length, nil
	}
	return "", nil
}

func (p *fakePage) WaitElement(ctx context.Context, selector string) error {
	p.mu.Lock()
	html := p.renderedLocked()
	p.mu.Unlock()
	if strings.Contains(html, "<tr") {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) Click(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	p.clicks++
	next := p.current + 1
	_, ok := p.screens[next]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	p.show(next)
	return true, nil
}

func (p *fakePage) SelectValue(ctx context.Context, selector, value string) (bool, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.selects++
	_, ok := p.screens[n]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	p.show(n)
	return true, nil
}

func (p *fakePage) WaitSettled(ctx context.Context) error { return nil }

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, errors.New("no screenshots in tests")
}

func (p *fakePage) Observe(match func(string) bool, fn func(ObservedResponse)) (func(), error) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.observers[id] = observer{match: match, fn: fn}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}, nil
}

// show switches to page n and fires its data response asynchronously.
func (p *fakePage) show(n int) {
	p.mu.Lock()
	p.current = n
	p.shownAt = time.Now()
	body := p.screens[n].body
	p.mu.Unlock()

	if body == "" {
		return
	}
	resp := ObservedResponse{URL: testEndpointURL, Status: 200, MIMEType: "application/json", Body: []byte(body)}
	go p.emit(resp)
}

// emit delivers r to every observer whose filter accepts it.
func (p *fakePage) emit(r ObservedResponse) {
	p.mu.Lock()
	targets := make([]observer, 0, len(p.observers))
	for _, o := range p.observers {
		targets = append(targets, o)
	}
	p.mu.Unlock()

	for _, o := range targets {
		if o.match(r.URL) {
			o.fn(r)
		}
	}
}

func (p *fakePage) observerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

type fakeSession struct {
	page   Page
	closes atomic.Int32
}

func (s *fakeSession) NewPage(ctx context.Context) (Page, error) { return s.page, nil }
func (s *fakeSession) Close()                                    { s.closes.Add(1) }

type fakeLauncher struct {
	session *fakeSession
	err     error
}

func (l *fakeLauncher) Open(ctx context.Context) (Session, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

// apiBody builds a DataTables JSON payload for rows [from, to].
func apiBody(total, length, from, to int) string {
	data := make([]map[string]any, 0, to-from+1)
	for i := from; i <= to; i++ {
		data = append(data, map[string]any{
			"SpecID":      i,
			"SubjectName": fmt.Sprintf("Card %d", i),
			"CardNumber":  strconv.Itoa(i),
			"Total":       i * 10,
		})
	}
	b, _ := json.Marshal(map[string]any{
		"draw":            1,
		"recordsTotal":    total,
		"recordsFiltered": total,
		"length":          length,
		"data":            data,
	})
	return string(b)
}

// tableHTML renders a table page holding rows [from, to].
func tableHTML(total, from, to int) string {
	var sb strings.Builder
	sb.WriteString(`<html><head><title>Population Report</title></head><body><table id="tablePSA"><tbody>`)
	for i := from; i <= to; i++ {
		fmt.Fprintf(&sb, `<tr><td>Card %d Holo</td><td>%d</td><td>%d</td></tr>`, i, i, i)
	}
	sb.WriteString(`<tr><td>TOTAL POPULATION</td><td></td><td>0</td></tr>`)
	sb.WriteString(`</tbody></table>`)
	fmt.Fprintf(&sb, `<div class="dataTables_info">Showing %d to %d of %d entries</div>`, from, to, total)
	sb.WriteString(`</body></html>`)
	return sb.String()
}

const challengeHTML = `<html><head><title>Just a moment...</title></head><body><div id="challenge-running"></div></body></html>`
