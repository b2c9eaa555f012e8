package clipboard

import (
	"errors"
	"strings"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

// Copy places text on the system clipboard. Blank text is not copied.
func Copy(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if cb.Unsupported {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}
