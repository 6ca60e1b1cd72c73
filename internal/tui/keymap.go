package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard shortcuts of the classification editor.
type KeyMap struct {
	// Navigation
	Up   key.Binding
	Down key.Binding
	Home key.Binding
	End  key.Binding

	// Editing
	FloorUp        key.Binding
	FloorDown      key.Binding
	EditFloor      key.Binding
	ToggleEntrance key.Binding
	ToggleStair    key.Binding
	CycleSecurity  key.Binding
	Reset          key.Binding
	Confirm        key.Binding
	Cancel         key.Binding

	// Application
	Save      key.Binding
	Quit      key.Binding
	ForceQuit key.Binding
	Help      key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		Home: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g/home", "first door"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G/end", "last door"),
		),

		FloorUp: key.NewBinding(
			key.WithKeys("+", "=", "]"),
			key.WithHelp("+", "floor up"),
		),
		FloorDown: key.NewBinding(
			key.WithKeys("-", "["),
			key.WithHelp("-", "floor down"),
		),
		EditFloor: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "type floor"),
		),
		ToggleEntrance: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "entrance"),
		),
		ToggleStair: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stair"),
		),
		CycleSecurity: key.NewBinding(
			key.WithKeys("l", "tab", " "),
			key.WithHelp("l/space", "security level"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset door"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),

		Save: key.NewBinding(
			key.WithKeys("ctrl+s", "w"),
			key.WithHelp("w", "save and exit"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc"),
			key.WithHelp("q", "discard and exit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.CycleSecurity, k.ToggleEntrance, k.ToggleStair, k.FloorUp, k.Save, k.Quit, k.Help}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Home, k.End},
		{k.CycleSecurity, k.ToggleEntrance, k.ToggleStair, k.Reset},
		{k.FloorUp, k.FloorDown, k.EditFloor},
		{k.Save, k.Quit, k.ForceQuit, k.Help},
	}
}
