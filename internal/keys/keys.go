package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the watch dashboard.
type KeyMap struct {
	// Run a check cycle now
	Check key.Binding

	// Fill the pending code again in every open tab
	Retry key.Binding

	// Reload check history
	Refresh key.Binding

	// Help toggle
	Help key.Binding

	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Check: key.NewBinding(
			key.WithKeys("c", "enter"),
			key.WithHelp("c/enter", "check mail"),
		),
		Retry: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fill again"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload history"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Check, k.Retry, k.Quit, k.Help}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Check, k.Retry},
		{k.Refresh, k.Help, k.Quit},
	}
}
