// Package ui is the panel state machine: the sidebar list and the
// location/date input panel are never open together, and opening either
// closes the info window.
package ui

import "fmt"

// Panel is which side panel is showing.
type Panel int

const (
	Closed Panel = iota
	SidebarOpen
	InputOpen
)

func (p Panel) String() string {
	switch p {
	case Closed:
		return "closed"
	case SidebarOpen:
		return "sidebar"
	case InputOpen:
		return "input"
	default:
		return fmt.Sprintf("Panel(%d)", int(p))
	}
}

// Window is the info-window owner the machine closes as a side effect.
type Window interface {
	// CloseInfoWindow closes the window and stops any bounce.
	CloseInfoWindow()
	InfoOpen() bool
}

// Machine holds the panel state.
type Machine struct {
	panel  Panel
	window Window
}

// New returns a machine with both panels closed.
func New(w Window) *Machine {
	return &Machine{window: w}
}

func (m *Machine) Panel() Panel {
	return m.panel
}

func (m *Machine) SidebarOpen() bool {
	return m.panel == SidebarOpen
}

func (m *Machine) InputOpen() bool {
	return m.panel == InputOpen
}

// InfoOpen is delegated to the window owner.
func (m *Machine) InfoOpen() bool {
	return m.window != nil && m.window.InfoOpen()
}

// ToggleSidebar flips the sidebar. An open input panel is closed first.
// The info window is always closed.
func (m *Machine) ToggleSidebar() {
	if m.panel == SidebarOpen {
		m.panel = Closed
	} else {
		m.panel = SidebarOpen
	}
	m.closeWindow()
}

// OpenInput shows the input panel, hiding the sidebar and the info window.
func (m *Machine) OpenInput() {
	m.panel = InputOpen
	m.closeWindow()
}

// CloseInput hides the input panel and touches nothing else.
func (m *Machine) CloseInput() {
	if m.panel == InputOpen {
		m.panel = Closed
	}
}

// SidebarArrow names the toggle arrow icon for the current state.
func (m *Machine) SidebarArrow() string {
	if m.panel == SidebarOpen {
		return "arrow-left"
	}
	return "arrow-right"
}

func (m *Machine) closeWindow() {
	if m.window != nil {
		m.window.CloseInfoWindow()
	}
}
