package chrome

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"go.uber.org/zap"
)

// pageEvent is one entry of the in-page event queue.
type pageEvent struct {
	Type    string `json:"type"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Command string `json:"command"`
}

// Run polls the browser every interval until ctx is done, turning page loads
// into OnTabUpdated calls and in-page input into agent calls.
func (h *Host) Run(ctx context.Context, l Listener, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := h.Sweep(ctx, l); err != nil && ctx.Err() == nil {
			h.logger.Debug("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep inspects every open page once.
func (h *Host) Sweep(ctx context.Context, l Listener) error {
	refs, err := h.src.Pages(ctx)
	if err != nil {
		return err
	}

	seen := make(map[browser.TabID]bool, len(refs))
	for _, ref := range refs {
		seen[ref.ID] = true
		h.sweepPage(ctx, l, ref)
	}

	var gone []*tabState
	h.mu.Lock()
	for id, st := range h.tabs {
		if !seen[id] {
			gone = append(gone, st)
			delete(h.tabs, id)
		}
	}
	h.mu.Unlock()
	for _, st := range gone {
		st.retire()
	}
	return nil
}

func (h *Host) sweepPage(ctx context.Context, l Listener, ref pageRef) {
	raw, err := h.eval(ctx, ref.Target, bootstrapJS)
	if err != nil {
		// Navigating pages refuse evaluation until the new document exists.
		h.logger.Debug("page not ready", zap.String("tab", string(ref.ID)), zap.Error(err))
		return
	}
	doc, err := parseDoc(raw)
	if err != nil {
		h.logger.Debug("bad document state", zap.String("tab", string(ref.ID)), zap.Error(err))
		return
	}

	var stale *tabState
	h.mu.Lock()
	st := h.tabs[ref.ID]
	if st == nil || st.doc != doc.Doc {
		stale = st
		st = &tabState{
			page: newPage(ref.ID, ref.URL, ref.Target, h.website, h.timeout, h.logger),
			doc:  doc.Doc,
		}
		h.tabs[ref.ID] = st
	}
	st.page.setURL(ref.URL)
	loaded := doc.Ready == "complete" && !st.complete
	if loaded {
		st.complete = true
	}
	h.mu.Unlock()

	if stale != nil {
		stale.retire()
	}
	if loaded {
		l.OnTabUpdated(ctx, browser.Tab{ID: ref.ID, URL: ref.URL, Status: browser.StatusComplete})
	}

	h.drain(ctx, l, ref, st)
}

func (h *Host) drain(ctx context.Context, l Listener, ref pageRef, st *tabState) {
	raw, err := h.eval(ctx, ref.Target, drainJS)
	if err != nil || raw == "" {
		return
	}
	var events []pageEvent
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		h.logger.Debug("bad page events", zap.String("tab", string(ref.ID)), zap.Error(err))
		return
	}

	h.mu.Lock()
	agent := st.agent
	h.mu.Unlock()

	for _, e := range events {
		if e.Type == "command" {
			if err := l.OnCommand(ctx, e.Command); err != nil {
				h.logger.Debug("command failed", zap.String("command", e.Command), zap.Error(err))
			}
			continue
		}
		if agent == nil {
			continue
		}
		switch e.Type {
		case "contextmenu":
			agent.OnContextMenu(e.X, e.Y)
		case "click":
			agent.OnClick()
		case "menu-check":
			if err := agent.InvokeMenuCheck(ctx); err != nil {
				h.logger.Debug("menu check rejected", zap.String("tab", string(ref.ID)), zap.Error(err))
			}
		case "dismiss":
			agent.Dismiss()
		}
	}
}
