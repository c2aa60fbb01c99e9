package term

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff_ScrolledAppendsSuffix(t *testing.T) {
	assert.Equal(t, "d", Diff("a\nb\nc", "a\nb\nc\nd"))
	assert.Equal(t, "d\ne", Diff("a\nb\nc", "a\nb\nc\nd\ne"))
}

func TestDiff_ReplacedEmitsEverything(t *testing.T) {
	assert.Equal(t, "x\ny", Diff("a\nb\nc", "x\ny"))
}

func TestDiff_NoChangeEmitsNothing(t *testing.T) {
	assert.Equal(t, "", Diff("a\nb\nc", "a\nb\nc"))
	assert.Equal(t, "", Diff("", ""))
}

func TestDiff_FirstScreenEmitsEverything(t *testing.T) {
	assert.Equal(t, "hello\nworld", Diff("", "hello\nworld"))
}

func TestDiff_PartialLineExtensionIsReplacement(t *testing.T) {
	// The shared prefix does not end on a line boundary, so the last line
	// changed in place rather than scrolling.
	assert.Equal(t, "a\nbc\nd", Diff("a\nb", "a\nbc\nd"))
}
