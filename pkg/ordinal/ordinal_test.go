package ordinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	a := Ordinal{OrdNum: 4, EventIdx: 2, EventTot: 3}
	b := Ordinal{OrdNum: 4, EventIdx: 3, EventTot: 3}
	c := Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 1}

	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
	assert.True(t, Less(a, b))
	assert.True(t, Less(b, c))
	assert.True(t, LessOrEqual(a, a))
}

func TestConsecutiveWithinSlot(t *testing.T) {
	a := Ordinal{OrdNum: 4, EventIdx: 2, EventTot: 3}
	b := Ordinal{OrdNum: 4, EventIdx: 3, EventTot: 3}
	assert.True(t, Consecutive(a, b))
	assert.False(t, Consecutive(b, a))
}

func TestConsecutiveAcrossSlot(t *testing.T) {
	a := Ordinal{OrdNum: 4, EventIdx: 3, EventTot: 3}
	b := Ordinal{OrdNum: 5, EventIdx: 1, EventTot: 2}
	assert.True(t, Consecutive(a, b))

	notLast := Ordinal{OrdNum: 4, EventIdx: 2, EventTot: 3}
	assert.False(t, Consecutive(notLast, b))
}

func TestConsecutiveGap(t *testing.T) {
	a := Ordinal{OrdNum: 4, EventIdx: 1, EventTot: 1}
	b := Ordinal{OrdNum: 6, EventIdx: 1, EventTot: 1}
	assert.False(t, Consecutive(a, b))
}

func TestSeqPairOrdering(t *testing.T) {
	a := SeqPair{Incarnation: 1000, SeqNum: 1}
	b := SeqPair{Incarnation: 1000, SeqNum: 2}
	c := SeqPair{Incarnation: 1001, SeqNum: 1}

	assert.True(t, b.GreaterThan(a))
	assert.True(t, c.GreaterThan(b))
	assert.False(t, a.GreaterThan(b))
	assert.Equal(t, 0, CompareSeqPair(a, a))
}
