package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/popharvest/population"
)

// Observe reports every matching network response exactly once: when its
// body has loaded, or when the request fails. Requests are never altered.
//
// With InterceptRequests enabled a pass-through hijack router is mounted
// as well. Mounting it next to Network events breaks requests on
// Chromium 145+, so it stays off by default.
func (p *Page) Observe(match func(url string) bool, fn func(population.ObservedResponse)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	var router *rod.HijackRouter
	if p.cfg.InterceptRequests {
		router = setupPassThrough(p.page)
	}

	// Event callbacks run sequentially on the wait goroutine; only they
	// touch pending.
	pending := make(map[proto.NetworkRequestID]*population.ObservedResponse)

	wait := p.page.Context(ctx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil && match(e.Request.URL) {
				pending[e.RequestID] = &population.ObservedResponse{URL: e.Request.URL}
			}
		},
		func(e *proto.NetworkResponseReceived) {
			r, ok := pending[e.RequestID]
			if !ok || e.Response == nil {
				return
			}
			r.Status = e.Response.Status
			r.MIMEType = e.Response.MIMEType
		},
		func(e *proto.NetworkLoadingFinished) {
			r, ok := pending[e.RequestID]
			if !ok {
				return
			}
			delete(pending, e.RequestID)
			go p.deliverBody(ctx, e.RequestID, *r, fn)
		},
		func(e *proto.NetworkLoadingFailed) {
			r, ok := pending[e.RequestID]
			if !ok {
				return
			}
			delete(pending, e.RequestID)
			r.Err = errors.New(e.ErrorText)
			fn(*r)
		},
	)
	go wait()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if router != nil {
				_ = router.Stop()
			}
		})
	}
	return stop, nil
}

// deliverBody fetches the response body and hands the completed response
// to fn. A body that cannot be read is delivered with Err set.
func (p *Page) deliverBody(ctx context.Context, id proto.NetworkRequestID, r population.ObservedResponse, fn func(population.ObservedResponse)) {
	rp, cancel := p.with(ctx)
	defer cancel()

	body, err := proto.NetworkGetResponseBody{RequestID: id}.Call(rp)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("observer stopped before body was read", "url", r.URL)
		}
		r.Err = err
		fn(r)
		return
	}

	if body.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body.Body)
		if err != nil {
			r.Err = err
			fn(r)
			return
		}
		r.Body = decoded
	} else {
		r.Body = []byte(body.Body)
	}
	fn(r)
}

// setupPassThrough installs a request interceptor that continues every
// request unmodified. Returns the running router so the caller can stop it.
func setupPassThrough(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept ALL requests.
	_ = router.Add("*", "", func(h *rod.Hijack) {
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}
