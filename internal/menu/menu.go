// Package menu turns a registry snapshot into the items a display shows.
// It has no terminal dependencies so any front end (and tests) can use it.
package menu

import "github.com/treykane/tunnelbar/internal/model"

// Kind distinguishes tunnel entries from the fixed trailing items.
type Kind int

const (
	KindTunnel Kind = iota
	KindSeparator
	KindQuit
)

// QuitLabel is the label of the terminal item.
const QuitLabel = "Quit"

// Item is one row of the menu.
type Item struct {
	Kind     Kind
	Label    string
	TunnelID string
	Running  bool
	Status   model.TunnelStatus
}

// Selectable reports whether the cursor may rest on the item.
func (i Item) Selectable() bool {
	return i.Kind != KindSeparator
}

// Label renders "<name> (on)" or "<name> (off)".
func Label(st model.TunnelStatus) string {
	return st.Name + " (" + st.StateLabel() + ")"
}

// Build returns one item per tunnel in snapshot order, then a separator and
// the Quit item.
func Build(snapshot []model.TunnelStatus) []Item {
	items := make([]Item, 0, len(snapshot)+2)
	for _, st := range snapshot {
		items = append(items, Item{
			Kind:     KindTunnel,
			Label:    Label(st),
			TunnelID: st.ID,
			Running:  st.Running,
			Status:   st,
		})
	}
	items = append(items,
		Item{Kind: KindSeparator},
		Item{Kind: KindQuit, Label: QuitLabel},
	)
	return items
}

// Next moves from index i by delta (+1/-1) to the nearest selectable item,
// staying put at the ends.
func Next(items []Item, i, delta int) int {
	for j := i + delta; j >= 0 && j < len(items); j += delta {
		if items[j].Selectable() {
			return j
		}
	}
	return i
}
