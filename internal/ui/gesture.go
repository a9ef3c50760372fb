package ui

import "fmt"

// Zone is the screen edge a swipe starts from.
type Zone string

const (
	LeftEdge  Zone = "left"
	RightEdge Zone = "right"
)

// Direction is the swipe direction.
type Direction string

const (
	SwipeLeft  Direction = "left"
	SwipeRight Direction = "right"
)

// Action is a machine transition a gesture can trigger.
type Action string

const (
	ActionNone          Action = ""
	ActionToggleSidebar Action = "toggle-sidebar"
	ActionOpenInput     Action = "open-input"
	ActionCloseInput    Action = "close-input"
)

type gesture struct {
	zone Zone
	dir  Direction
}

var gestures = map[gesture]Action{
	{LeftEdge, SwipeLeft}:   ActionToggleSidebar,
	{LeftEdge, SwipeRight}:  ActionToggleSidebar,
	{RightEdge, SwipeRight}: ActionCloseInput,
	{RightEdge, SwipeLeft}:  ActionOpenInput,
}

// Lookup maps a swipe to its action. Unknown swipes map to ActionNone.
func Lookup(zone Zone, dir Direction) Action {
	return gestures[gesture{zone, dir}]
}

// ParseZone accepts "left" or "right".
func ParseZone(s string) (Zone, error) {
	switch z := Zone(s); z {
	case LeftEdge, RightEdge:
		return z, nil
	}
	return "", fmt.Errorf("ui: unknown swipe zone %q", s)
}

// ParseDirection accepts "left" or "right".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case SwipeLeft, SwipeRight:
		return d, nil
	}
	return "", fmt.Errorf("ui: unknown swipe direction %q", s)
}

// ParseAction accepts the panel action names used by the web routes.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionToggleSidebar, ActionOpenInput, ActionCloseInput:
		return a, nil
	}
	return ActionNone, fmt.Errorf("ui: unknown panel action %q", s)
}

// Do runs a. ActionNone is a no-op.
func (m *Machine) Do(a Action) {
	switch a {
	case ActionToggleSidebar:
		m.ToggleSidebar()
	case ActionOpenInput:
		m.OpenInput()
	case ActionCloseInput:
		m.CloseInput()
	}
}

// Swipe runs the action bound to (zone, dir) and returns it.
func (m *Machine) Swipe(zone Zone, dir Direction) Action {
	a := Lookup(zone, dir)
	m.Do(a)
	return a
}
