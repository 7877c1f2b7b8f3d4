package browser

import (
	"context"
)

// The DOM helpers run as page functions so that the "disabled" check and
// the click or value change happen in one round trip.
const (
	jsValue = `(sel) => {
		const el = document.querySelector(sel);
		if (!el || el.value === undefined || el.value === null) return "";
		return String(el.value);
	}`

	jsClick = `(sel) => {
		const el = document.querySelector(sel);
		if (!el || el.classList.contains("disabled")) return false;
		el.click();
		return true;
	}`

	jsSelect = `(sel, value) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.value = value;
		el.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	}`
)

// Value returns the live value property of selector, or "" when absent.
func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	rp, cancel := p.with(ctx)
	defer cancel()

	res, err := rp.Eval(jsValue, selector)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// WaitElement blocks until selector matches at least one element.
func (p *Page) WaitElement(ctx context.Context, selector string) error {
	rp, cancel := p.with(ctx)
	defer cancel()
	return rp.WaitElementsMoreThan(selector, 0)
}

// Click clicks selector unless it is missing or disabled.
func (p *Page) Click(ctx context.Context, selector string) (bool, error) {
	rp, cancel := p.with(ctx)
	defer cancel()

	res, err := rp.Eval(jsClick, selector)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// SelectValue sets a select control and fires its change event.
func (p *Page) SelectValue(ctx context.Context, selector, value string) (bool, error) {
	rp, cancel := p.with(ctx)
	defer cancel()

	res, err := rp.Eval(jsSelect, selector, value)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}
