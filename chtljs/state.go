package chtljs

import (
	"fmt"

	"github.com/dpotapov/chtl/diag"
)

// State is the CHTL-JS parser state. States are driven by tokens after
// scanning; they exist alongside the scanner's region stack but never share
// storage with it.
type State int

const (
	StateInitial State = iota
	StateEnhancedSelector
	StateVirtualObject
	StateListen
	StateDelegate
	StateAnimate
	StateArrowAccess
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateEnhancedSelector:
		return "enhanced_selector"
	case StateVirtualObject:
		return "virtual_object"
	case StateListen:
		return "listen"
	case StateDelegate:
		return "delegate"
	case StateAnimate:
		return "animate"
	case StateArrowAccess:
		return "arrow_access"
	}
	return "unknown"
}

// transitionKey identifies one edge of the state machine.
type transitionKey struct {
	from    State
	trigger TokenKind
}

// transitions is the rule table. A missing entry means the trigger is not a
// state change in that context (ordinary JS keeps flowing), except for the
// construct triggers listed in constructTriggers, which must transition.
var transitions = map[transitionKey]State{
	{StateInitial, OpenSelector}:           StateEnhancedSelector,
	{StateInitial, KwVir}:                  StateVirtualObject,
	{StateInitial, KwListen}:               StateListen,
	{StateInitial, KwDelegate}:             StateDelegate,
	{StateInitial, KwAnimate}:              StateAnimate,
	{StateInitial, Arrow}:                  StateArrowAccess,
	{StateEnhancedSelector, CloseSelector}: StateInitial,
	{StateEnhancedSelector, Arrow}:         StateArrowAccess,
	{StateArrowAccess, KwListen}:           StateListen,
	{StateArrowAccess, KwDelegate}:         StateDelegate,
	{StateArrowAccess, KwAnimate}:          StateAnimate,
	{StateArrowAccess, Ident}:              StateArrowAccess,
	{StateArrowAccess, Arrow}:              StateArrowAccess,
	{StateArrowAccess, Semicolon}:          StateInitial,
	{StateVirtualObject, Semicolon}:        StateInitial,
	{StateListen, RParen}:                  StateInitial,
	{StateDelegate, RParen}:                StateInitial,
	{StateAnimate, RParen}:                 StateInitial,
}

// constructTriggers are tokens that always demand a transition; hitting one
// with no rule for the current state is invalid.
var constructTriggers = map[TokenKind]bool{
	OpenSelector: true,
	KwVir:        true,
	KwListen:     true,
	KwDelegate:   true,
	KwAnimate:    true,
	Arrow:        true,
}

// machine validates transitions against the rule table. Invalid transitions
// are recorded and the machine resets to the initial state.
type machine struct {
	state State
	file  string
	sink  *diag.Sink
}

func newMachine(file string, sink *diag.Sink) *machine {
	return &machine{state: StateInitial, file: file, sink: sink}
}

// on applies a trigger token. It returns the state entered.
func (m *machine) on(t Token) State {
	if next, ok := transitions[transitionKey{m.state, t.Kind}]; ok {
		m.state = next
		return next
	}
	if constructTriggers[t.Kind] {
		if m.sink != nil {
			m.sink.Report(diag.Diagnostic{
				Kind:      diag.Parse,
				File:      m.file,
				Line:      t.Line,
				Column:    t.Column,
				Message:   fmt.Sprintf("invalid %s in state %s", t.Kind, m.state),
				Component: "chtljs",
			})
		}
		m.state = StateInitial
	}
	return m.state
}

// reset returns the machine to the initial state (used after a construct
// completes or fails).
func (m *machine) reset() { m.state = StateInitial }
