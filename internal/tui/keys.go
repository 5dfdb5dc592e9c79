package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start   key.Binding
	Stop    key.Binding
	Up      key.Binding
	Down    key.Binding
	Apply   key.Binding
	Refresh key.Binding
	Send    key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start server")),
		Stop:    key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "stop server")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous override")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next override")),
		Apply:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply override")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh status")),
		Send:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send command")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Apply, k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.Send},
		{k.Up, k.Down, k.Apply, k.Refresh},
		{k.Quit},
	}
}
