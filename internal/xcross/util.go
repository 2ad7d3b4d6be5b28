package xcross

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Printf(format string, a ...any)
	Println(a ...any)
}

// cPrintf prints with a colored style or falls back to fmt.Printf when nil
func cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Printf(format, a...)
		return
	}
	p.Printf(format, a...)
}

// arrowf prints a status line prefixed with the arrow marker.
func arrowf(p colorPrinter, format string, a ...any) {
	colArrow.Print("-> ")
	cPrintf(p, format, a...)
}

// setupLogger configures the global zerolog logger. Debug output goes to
// stderr so it never mixes with `xcross env` output on stdout.
func setupLogger(w io.Writer, debug bool) {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
	}).With().Timestamp().Logger()
}

// debugf logs a formatted debug message.
func debugf(format string, args ...any) {
	log.Debug().Msgf(format, args...)
}
