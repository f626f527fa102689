// Package display models the 12-character instrument LCD: the text buffers
// competing for it, the page selection, and the page renderers.
package display

// TextLen is the number of characters on the LCD.
const TextLen = 12

// HeadLen is how many characters travel in the first display frame; the
// remaining TextLen-HeadLen go in the second.
const HeadLen = 7

// DegreeSign is the LCD character for "°".
const DegreeSign byte = 0xDF

// Text is one full screen of LCD characters.
type Text [TextLen]byte

// Blank is a screen of spaces.
var Blank = NewText("")

// NewText copies s into a Text, truncating or padding with spaces.
func NewText(s string) Text {
	var t Text
	for i := range t {
		if i < len(s) {
			t[i] = s[i]
		} else {
			t[i] = ' '
		}
	}
	return t
}

// Head is the part carried by the first display frame.
func (t Text) Head() []byte { return t[:HeadLen] }

// Tail is the part carried by the second display frame.
func (t Text) Tail() []byte { return t[HeadLen:] }

func (t Text) String() string { return string(t[:]) }
