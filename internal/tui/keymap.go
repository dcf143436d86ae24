package tui

import "charm.land/bubbles/v2/key"

// keyMap represents key map data used by this package.
type keyMap struct {
	quit        key.Binding
	reload      key.Binding
	toggleHelp  key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	cycleFilter key.Binding
	startItem   key.Binding
	completeItm key.Binding
	cancelItem  key.Binding
	checkIn     key.Binding
	checkOut    key.Binding
	closeStale  key.Binding
	attendance  key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "item up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "item down")),
		cycleFilter: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "cycle status filter")),
		startItem:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start item")),
		completeItm: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "complete item")),
		cancelItem:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel item")),
		checkIn:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "check in")),
		checkOut:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "check out")),
		closeStale:  key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "close stale session")),
		attendance:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle attendance panel")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.startItem, k.completeItm, k.checkIn, k.checkOut, k.cycleFilter, k.toggleHelp, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveUp, k.moveDown, k.cycleFilter, k.reload, k.quit},
		{k.startItem, k.completeItm, k.cancelItem},
		{k.checkIn, k.checkOut, k.closeStale, k.attendance, k.toggleHelp},
	}
}
