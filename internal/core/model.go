// Package core implements the AppController of spec.md §4.6: composition
// of C1-C5, a message-driven update loop, and the global invariants
// (at-most-one modal, focus discipline, bounds-safe accessors). Grounded on
// the teacher's bubbletea Update/View split (internal/ui's model shape) for
// the message contract, generalized from the teacher's TUI-owned state to
// the thin, UI-agnostic controller spec.md §6 describes ("out of scope: the
// TUI renderer and all modal/input widgets").
package core

// Focus names which of the three panels receives focus-specific key
// handling (spec.md §4.6 "Focus is one of {ProjectList, SessionList,
// Terminal}").
type Focus int

const (
	FocusProjectList Focus = iota
	FocusSessionList
	FocusTerminal
)

func (f Focus) String() string {
	switch f {
	case FocusProjectList:
		return "ProjectList"
	case FocusSessionList:
		return "SessionList"
	case FocusTerminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// SpecialKey enumerates non-printable key codes the UI surface can report
// (spec.md §6 "a key event (code + modifiers)"). Key-to-byte translation
// for actually sending keystrokes into a pane is out of scope (spec.md §1);
// this is only the input message shape the controller dispatches on.
type SpecialKey int

const (
	KeyNone SpecialKey = iota
	KeyEnter
	KeyEsc
	KeyTab
	KeyBackspace
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyPgUp
	KeyPgDown
)

// Modifiers is a bitset of held modifier keys.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
)

func (m Modifiers) Has(mod Modifiers) bool { return m&mod != 0 }

// KeyEvent is one of the two message kinds the controller accepts (spec.md
// §6). Special is KeyNone when Rune carries a printable character.
type KeyEvent struct {
	Rune    rune
	Special SpecialKey
	Mods    Modifiers
}

// ResizeEvent is the other message kind: the UI's viewport changed size.
type ResizeEvent struct {
	Cols, Rows int
}

// Modal is a sealed sum type: only the variants declared in this package
// implement it, via an unexported marker method, so no other package can
// construct a value satisfying the interface. AppController.modal is a
// single field of this type, so only one modal can ever be held at a time
// by construction; OpenModal additionally panics if one is already open,
// since that ordering violation is a programmer error, not recoverable
// user input (spec.md §4.6 "Opening a modal while another is active is
// programmer error and must be impossible to construct").
type Modal interface {
	isModal()
}

// ConfirmModal asks a yes/no question before a destructive action.
type ConfirmModal struct {
	Prompt string
}

func (*ConfirmModal) isModal() {}

// InputModal collects a line of free-form text (e.g. a new project name).
type InputModal struct {
	Prompt string
	Value  string
}

func (*InputModal) isModal() {}

// ErrorModal surfaces a status message that blocks further input until
// dismissed.
type ErrorModal struct {
	Message string
}

func (*ErrorModal) isModal() {}

// HelpModal displays the key-binding reference.
type HelpModal struct{}

func (HelpModal) isModal() {}
