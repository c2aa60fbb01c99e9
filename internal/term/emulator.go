package term

import (
	"bytes"
	"strings"

	"github.com/hinshun/vt10x"
)

// Emulator wraps vt10x to turn escape-sequence-laden output into a plain-text
// screen. The capture loop creates a fresh Emulator every tick so parser state
// never accumulates across samples.
type Emulator struct {
	terminal vt10x.Terminal
	cols     int
	rows     int
}

// NewEmulator creates a terminal emulator with a fixed-size grid
func NewEmulator(cols, rows int) *Emulator {
	vt := vt10x.New(vt10x.WithSize(cols, rows))
	return &Emulator{
		terminal: vt,
		cols:     cols,
		rows:     rows,
	}
}

// Write processes raw terminal output through the emulator
func (e *Emulator) Write(data []byte) {
	e.terminal.Write(data)
}

// Render returns the current grid as plain text with trailing whitespace
// stripped per line and trailing blank lines trimmed
func (e *Emulator) Render() string {
	var buf bytes.Buffer

	for row := 0; row < e.rows; row++ {
		if row > 0 {
			buf.WriteString("\n")
		}

		var line bytes.Buffer
		for col := 0; col < e.cols; col++ {
			cell := e.terminal.Cell(col, row)
			if cell.Char == 0 {
				line.WriteRune(' ')
			} else {
				line.WriteRune(cell.Char)
			}
		}
		buf.WriteString(strings.TrimRight(line.String(), " "))
	}

	return TrimTrailingBlank(buf.String())
}

// TrimTrailingBlank removes trailing blank lines from rendered text
func TrimTrailingBlank(text string) string {
	lines := strings.Split(text, "\n")

	lastNonEmpty := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			lastNonEmpty = i
			break
		}
	}
	if lastNonEmpty < 0 {
		return ""
	}
	return strings.Join(lines[:lastNonEmpty+1], "\n")
}
