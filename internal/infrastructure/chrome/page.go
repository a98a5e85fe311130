package chrome

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/felixgeelhaar/truthguard/pkg/browser"
	"github.com/felixgeelhaar/truthguard/pkg/domain/credibility"
	"github.com/felixgeelhaar/truthguard/pkg/lifecycle"
	"go.uber.org/zap"
)

// target evaluates scripts in one document.
type target interface {
	Eval(ctx context.Context, js string, args ...interface{}) (string, error)
}

// Page is a browser tab seen by a content agent. DOM updates are queued and
// applied in order by one worker, so callers holding locks never wait on the
// browser.
type Page struct {
	id      browser.TabID
	target  target
	website string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	url    string
	claims map[string]bool
	// retire is set by overlay.Retire and consumed by the next Render.
	retire bool

	queue chan func(context.Context)
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func newPage(id browser.TabID, url string, t target, website string, timeout time.Duration, logger *zap.Logger) *Page {
	p := &Page{
		id:      id,
		target:  t,
		website: website,
		timeout: timeout,
		logger:  logger,
		url:     url,
		claims:  make(map[string]bool),
		queue:   make(chan func(context.Context), 32),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Page) run() {
	defer p.wg.Done()
	for {
		select {
		case fn := <-p.queue:
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			fn(ctx)
			cancel()
		case <-p.done:
			return
		}
	}
}

// script is one evaluation inside a page update.
type script struct {
	name string
	js   string
	args []interface{}
}

func op(name, js string, args ...interface{}) script {
	return script{name: name, js: js, args: args}
}

// enqueue schedules one update whose scripts run in order. The update is
// applied or dropped as a whole: it is dropped when the page is gone or the
// browser is too slow to keep up.
func (p *Page) enqueue(scripts ...script) {
	fn := func(ctx context.Context) {
		for _, s := range scripts {
			if _, err := p.target.Eval(ctx, s.js, s.args...); err != nil {
				p.logger.Debug("page update failed", zap.String("tab", string(p.id)), zap.String("op", s.name), zap.Error(err))
			}
		}
	}
	select {
	case <-p.done:
	case p.queue <- fn:
	default:
		p.logger.Warn("page update dropped", zap.String("tab", string(p.id)), zap.String("op", scripts[0].name))
	}
}

func (p *Page) close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

// Tab describes the page as a complete tab.
func (p *Page) Tab() browser.Tab {
	return browser.Tab{ID: p.id, URL: p.URL(), Status: browser.StatusComplete}
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) setURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// Selection reads the live selection. It returns "" when the page cannot
// be reached.
func (p *Page) Selection() string {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	s, err := p.target.Eval(ctx, string(browser.SelectionScript))
	if err != nil {
		p.logger.Debug("read selection failed", zap.String("tab", string(p.id)), zap.Error(err))
		return ""
	}
	return s
}

func (p *Page) Claim(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claims[name] {
		return false
	}
	p.claims[name] = true
	return true
}

func (p *Page) ShowContextMenu(x, y int) {
	p.enqueue(op("show-menu", showMenuJS, x, y, browser.MenuTitleCheck))
}

func (p *Page) HideContextMenu() {
	p.enqueue(op("hide-menu", hideMenuJS))
}

func (p *Page) Highlight(text string, level credibility.RiskLevel) {
	p.enqueue(op("highlight", highlightJS, text, string(level)))
}

func (p *Page) Overlay() lifecycle.Renderer {
	return overlay{page: p}
}

// overlayView is the JSON handed to renderOverlayJS.
type overlayView struct {
	State       string   `json:"state"`
	Score       int      `json:"score,omitempty"`
	Level       string   `json:"level,omitempty"`
	Label       string   `json:"label,omitempty"`
	Category    string   `json:"category,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Tip         string   `json:"tip,omitempty"`
	Flags       []string `json:"flags,omitempty"`
	Error       string   `json:"error,omitempty"`
	Website     string   `json:"website,omitempty"`
}

type overlay struct {
	page *Page
}

// Retire is deferred to the following Render so the removal and the new view
// share one queued update.
func (o overlay) Retire() {
	o.page.mu.Lock()
	o.page.retire = true
	o.page.mu.Unlock()
}

func (o overlay) Render(s lifecycle.Snapshot) {
	o.page.mu.Lock()
	retire := o.page.retire
	o.page.retire = false
	o.page.mu.Unlock()

	var scripts []script
	if retire {
		scripts = append(scripts, op("retire-overlay", retireOverlayJS))
	}
	if v, ok := viewFor(s, o.page.website); ok {
		raw, err := json.Marshal(v)
		if err != nil {
			o.page.logger.Error("marshal overlay", zap.Error(err))
		} else {
			scripts = append(scripts, op("render-overlay", renderOverlayJS, string(raw)))
		}
	}
	if len(scripts) > 0 {
		o.page.enqueue(scripts...)
	}
}

// viewFor maps a snapshot onto the overlay. Idle has no view.
func viewFor(s lifecycle.Snapshot, website string) (overlayView, bool) {
	switch s.State {
	case lifecycle.StateLoading:
		return overlayView{State: "loading"}, true
	case lifecycle.StateShowingError:
		return overlayView{State: "error", Error: s.Error}, true
	case lifecycle.StateShowingResult:
		if s.Result == nil || s.Result.Score == nil {
			return overlayView{}, false
		}
		return overlayView{
			State:       "result",
			Score:       *s.Result.Score,
			Level:       string(s.Risk),
			Label:       s.Risk.Label(),
			Category:    s.Result.HumanCategory(),
			Explanation: s.Result.Explanation,
			Tip:         s.Result.Tip,
			Flags:       s.Result.Flags,
			Website:     website,
		}, true
	default:
		return overlayView{}, false
	}
}
