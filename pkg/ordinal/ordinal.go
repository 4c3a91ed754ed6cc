// Package ordinal implements the total-order labels Prime assigns to
// replicated events, and the sequence pairs clients use to identify
// their own updates.
package ordinal

import "fmt"

// Ordinal is the total-order label produced by Prime. OrdNum is Prime's
// sequence number; EventIdx/EventTot split one Prime slot into a vector
// of sub-events, 1-indexed (EventIdx ranges over [1, EventTot]).
type Ordinal struct {
	OrdNum   uint32
	EventIdx uint32
	EventTot uint32
}

// Zero is the ordinal before any ordinal has been received.
var Zero = Ordinal{}

// String renders the ordinal as "(ord_num,event_idx,event_tot)".
func (o Ordinal) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.OrdNum, o.EventIdx, o.EventTot)
}

// Compare orders two ordinals lexicographically on (OrdNum, EventIdx).
// It returns -1, 0, or 1 the way bytes.Compare does.
func Compare(a, b Ordinal) int {
	switch {
	case a.OrdNum < b.OrdNum:
		return -1
	case a.OrdNum > b.OrdNum:
		return 1
	case a.EventIdx < b.EventIdx:
		return -1
	case a.EventIdx > b.EventIdx:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b Ordinal) bool {
	return Compare(a, b) < 0
}

// LessOrEqual reports whether a sorts at or before b.
func LessOrEqual(a, b Ordinal) bool {
	return Compare(a, b) <= 0
}

// Equal reports whether a and b denote the same ordinal.
func Equal(a, b Ordinal) bool {
	return Compare(a, b) == 0
}

// Consecutive reports whether b immediately follows a: either EventIdx
// advances by one within the same OrdNum, or OrdNum advances by one,
// a's EventIdx equals a's EventTot, and b's EventIdx is 1.
func Consecutive(a, b Ordinal) bool {
	if a.OrdNum == b.OrdNum && b.EventIdx == a.EventIdx+1 {
		return true
	}
	if b.OrdNum == a.OrdNum+1 && a.EventIdx == a.EventTot && b.EventIdx == 1 {
		return true
	}
	return false
}

// SeqPair identifies a client update: Incarnation is the client's
// wall-clock seconds at startup, SeqNum is monotonic within that
// incarnation. Compared lexicographically.
type SeqPair struct {
	Incarnation uint32
	SeqNum      uint32
}

// String renders the pair as "(incarnation,seq_num)".
func (s SeqPair) String() string {
	return fmt.Sprintf("(%d,%d)", s.Incarnation, s.SeqNum)
}

// CompareSeqPair orders two sequence pairs lexicographically.
func CompareSeqPair(a, b SeqPair) int {
	switch {
	case a.Incarnation < b.Incarnation:
		return -1
	case a.Incarnation > b.Incarnation:
		return 1
	case a.SeqNum < b.SeqNum:
		return -1
	case a.SeqNum > b.SeqNum:
		return 1
	default:
		return 0
	}
}

// GreaterThan reports whether a strictly follows b.
func (a SeqPair) GreaterThan(b SeqPair) bool {
	return CompareSeqPair(a, b) > 0
}
