package client

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/webtermd/webterm/internal/store"
)

const (
	// stateKey is where the tab layout and transcripts live in the store.
	stateKey = "session-state"
	// persistDebounce batches transcript writes triggered by shell output.
	persistDebounce = 500 * time.Millisecond
	// focusRetries and focusRetryDelay govern focus attempts after restore,
	// when the surface may not be attached yet.
	focusRetries    = 5
	focusRetryDelay = 50 * time.Millisecond
)

// TermLink is the per-tab server link as the orchestrator sees it.
// *Link satisfies it; tests substitute fakes.
type TermLink interface {
	Start()
	Close()
	SendInput(data string) error
	SendResize(cols, rows uint16) error
	Resume()
}

// Tab is one terminal tab: a rendering surface plus its server link.
type Tab struct {
	ID      int
	Name    string
	Order   int
	Surface RenderSurface
	Link    TermLink
}

type persistedTab struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
	Transcript string `json:"transcript"`
}

type persistedState struct {
	ActiveTabID int            `json:"activeTabId"`
	NextID      int            `json:"nextId"`
	Tabs        []persistedTab `json:"tabs"`
}

// Orchestrator owns the tab set. It creates and closes tabs, tracks the
// active tab, and persists layout and trimmed transcripts to the store so
// a restart restores the workspace.
type Orchestrator struct {
	store      store.Store
	newSurface func() RenderSurface
	openLink   func(surface RenderSurface, tabID int) TermLink

	mu        sync.Mutex
	tabs      []*Tab
	activeID  int
	nextID    int
	saveTimer *time.Timer
	closed    bool
}

// Options configure a new Orchestrator.
type Options struct {
	// Store persists session state. Required.
	Store store.Store
	// NewSurface builds the rendering surface for a new tab. Defaults to
	// an in-memory buffer surface.
	NewSurface func() RenderSurface
	// OpenLink builds the server link for a tab's surface. Required for
	// live sessions; nil creates tabs without links (restore-only use).
	OpenLink func(surface RenderSurface, tabID int) TermLink
}

// NewOrchestrator restores the previous session from the store, or starts
// with a single fresh tab when nothing was persisted. The orchestrator is
// never tab-less.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a store")
	}
	if opts.NewSurface == nil {
		opts.NewSurface = func() RenderSurface { return NewBufferSurface(0) }
	}
	o := &Orchestrator{
		store:      opts.Store,
		newSurface: opts.NewSurface,
		openLink:   opts.OpenLink,
		nextID:     1,
	}
	if err := o.restore(); err != nil {
		log.Printf("session restore failed, starting fresh: %v", err)
	}
	if len(o.tabs) == 0 {
		o.NewTab()
	}
	return o, nil
}

// restore loads persisted tabs, replays their transcripts onto fresh
// surfaces, and reopens a link per tab.
func (o *Orchestrator) restore() error {
	raw, ok, err := o.store.Get(store.Namespaced(stateKey))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var st persistedState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return fmt.Errorf("decode session state: %w", err)
	}
	if len(st.Tabs) == 0 {
		return nil
	}

	sort.Slice(st.Tabs, func(i, j int) bool { return st.Tabs[i].Order < st.Tabs[j].Order })
	o.mu.Lock()
	for i, pt := range st.Tabs {
		surface := o.newSurface()
		if pt.Transcript != "" {
			if _, err := surface.Write([]byte(pt.Transcript)); err != nil {
				log.Printf("transcript replay for tab %d failed: %v", pt.ID, err)
			}
		}
		tab := &Tab{ID: pt.ID, Name: pt.Name, Order: i, Surface: surface}
		if o.openLink != nil {
			tab.Link = o.openLink(surface, tab.ID)
		}
		o.tabs = append(o.tabs, tab)
	}
	o.nextID = st.NextID
	if o.nextID < 1 {
		o.nextID = 1
	}
	for _, t := range o.tabs {
		if t.ID >= o.nextID {
			o.nextID = t.ID + 1
		}
	}
	// Fall back to the first tab when the persisted active id is gone.
	o.activeID = o.tabs[0].ID
	for _, t := range o.tabs {
		if t.ID == st.ActiveTabID {
			o.activeID = t.ID
			break
		}
	}
	active := o.findLocked(o.activeID)
	links := make([]TermLink, 0, len(o.tabs))
	for _, t := range o.tabs {
		if t.Link != nil {
			links = append(links, t.Link)
		}
	}
	o.mu.Unlock()

	for _, l := range links {
		l.Start()
	}
	if active != nil {
		go focusWithRetry(active.Surface)
	}
	return nil
}

// focusWithRetry keeps trying to focus a surface that may not be ready
// right after restore.
func focusWithRetry(s RenderSurface) {
	delay := focusRetryDelay
	for i := 0; i < focusRetries; i++ {
		if err := s.Focus(); err == nil {
			return
		}
		time.Sleep(delay)
		delay *= 2
	}
	log.Printf("could not focus restored tab")
}

// NewTab opens a new tab with a fresh shell, activates it, and returns it.
func (o *Orchestrator) NewTab() *Tab {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	surface := o.newSurface()
	tab := &Tab{
		ID:      id,
		Name:    fmt.Sprintf("Terminal %d", id),
		Order:   len(o.tabs),
		Surface: surface,
	}
	if o.openLink != nil {
		tab.Link = o.openLink(surface, id)
	}
	o.tabs = append(o.tabs, tab)
	o.activeID = id
	link := tab.Link
	o.mu.Unlock()

	if link != nil {
		link.Start()
	}
	if err := surface.Focus(); err != nil {
		go focusWithRetry(surface)
	}
	o.persist()
	return tab
}

// CloseTab closes a tab's link (killing its shell) and removes it. Closing
// the last tab resets tab numbering, and the orchestrator immediately opens
// a replacement so a tab always exists.
func (o *Orchestrator) CloseTab(id int) {
	o.mu.Lock()
	idx := -1
	for i, t := range o.tabs {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		o.mu.Unlock()
		return
	}
	closing := o.tabs[idx]
	o.tabs = append(o.tabs[:idx], o.tabs[idx+1:]...)
	for i, t := range o.tabs {
		t.Order = i
	}
	if len(o.tabs) == 0 {
		o.nextID = 1
		o.activeID = 0
	} else if o.activeID == id {
		// Activate the most recently added survivor.
		newest := o.tabs[0]
		for _, t := range o.tabs[1:] {
			if t.ID > newest.ID {
				newest = t
			}
		}
		o.activeID = newest.ID
	}
	empty := len(o.tabs) == 0
	o.mu.Unlock()

	if closing.Link != nil {
		closing.Link.Close()
	}
	if empty {
		o.NewTab()
		return
	}
	o.persist()
}

// RenameTab sets a tab's display name. Empty names are ignored.
func (o *Orchestrator) RenameTab(id int, name string) {
	if name == "" {
		return
	}
	o.mu.Lock()
	t := o.findLocked(id)
	if t != nil {
		t.Name = name
	}
	o.mu.Unlock()
	if t != nil {
		o.persist()
	}
}

// ReorderTabs rearranges tabs to match the given id order. Ids not in the
// list keep their relative order after the listed ones; unknown ids are
// ignored.
func (o *Orchestrator) ReorderTabs(ids []int) {
	o.mu.Lock()
	rank := make(map[int]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	sort.SliceStable(o.tabs, func(i, j int) bool {
		ri, iok := rank[o.tabs[i].ID]
		rj, jok := rank[o.tabs[j].ID]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return false
		}
	})
	for i, t := range o.tabs {
		t.Order = i
	}
	o.mu.Unlock()
	o.persist()
}

// ActivateTab makes the given tab current and focuses its surface.
func (o *Orchestrator) ActivateTab(id int) {
	o.mu.Lock()
	t := o.findLocked(id)
	if t != nil {
		o.activeID = id
	}
	o.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.Surface.Focus(); err != nil {
		go focusWithRetry(t.Surface)
	}
	o.persist()
}

// CycleNext activates the tab after the current one, wrapping around.
func (o *Orchestrator) CycleNext() { o.cycle(1) }

// CyclePrev activates the tab before the current one, wrapping around.
func (o *Orchestrator) CyclePrev() { o.cycle(-1) }

func (o *Orchestrator) cycle(step int) {
	o.mu.Lock()
	if len(o.tabs) == 0 {
		o.mu.Unlock()
		return
	}
	cur := 0
	for i, t := range o.tabs {
		if t.ID == o.activeID {
			cur = i
			break
		}
	}
	next := (cur + step + len(o.tabs)) % len(o.tabs)
	id := o.tabs[next].ID
	o.mu.Unlock()
	o.ActivateTab(id)
}

// JumpTo activates the tab at the given position (1-based). Positions past
// the end are ignored.
func (o *Orchestrator) JumpTo(position int) {
	o.mu.Lock()
	if position < 1 || position > len(o.tabs) {
		o.mu.Unlock()
		return
	}
	id := o.tabs[position-1].ID
	o.mu.Unlock()
	o.ActivateTab(id)
}

// ActiveTab returns the current tab.
func (o *Orchestrator) ActiveTab() *Tab {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.findLocked(o.activeID)
}

// Tabs returns the tabs in display order.
func (o *Orchestrator) Tabs() []*Tab {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Tab, len(o.tabs))
	copy(out, o.tabs)
	return out
}

// Resume resets every tab link's reconnect budget. Call it when the client
// regains visibility.
func (o *Orchestrator) Resume() {
	for _, t := range o.Tabs() {
		if t.Link != nil {
			t.Link.Resume()
		}
	}
}

// NotifyOutput schedules a debounced persist after shell output. Wire it
// to each link's OnOutput event.
func (o *Orchestrator) NotifyOutput() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.saveTimer != nil {
		o.saveTimer.Stop()
	}
	o.saveTimer = time.AfterFunc(persistDebounce, o.persist)
}

// Shutdown persists final state and closes every link.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.closed = true
	if o.saveTimer != nil {
		o.saveTimer.Stop()
		o.saveTimer = nil
	}
	tabs := make([]*Tab, len(o.tabs))
	copy(tabs, o.tabs)
	o.mu.Unlock()

	o.persist()
	for _, t := range tabs {
		if t.Link != nil {
			t.Link.Close()
		}
	}
}

func (o *Orchestrator) findLocked(id int) *Tab {
	for _, t := range o.tabs {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// persist snapshots tab layout and trimmed transcripts to the store.
// Persistence failures are logged, never fatal.
func (o *Orchestrator) persist() {
	o.mu.Lock()
	st := persistedState{ActiveTabID: o.activeID, NextID: o.nextID}
	for _, t := range o.tabs {
		st.Tabs = append(st.Tabs, persistedTab{
			ID:         t.ID,
			Name:       t.Name,
			Order:      t.Order,
			Transcript: TrimTrailingPrompts(t.Surface.Serialize()),
		})
	}
	o.mu.Unlock()

	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("encode session state: %v", err)
		return
	}
	if err := o.store.Set(store.Namespaced(stateKey), string(data)); err != nil {
		log.Printf("persist session state: %v", err)
	}
}
