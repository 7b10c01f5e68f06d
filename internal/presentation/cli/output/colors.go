package output

import (
	"os"
	"sync"
)

var (
	colorOnce    sync.Once
	colorEnabled bool
)

// IsColorSupported reports whether stdout should receive ANSI colors.
// NO_COLOR disables colors and FORCE_COLOR enables them; otherwise stdout must
// be a terminal with a usable TERM.
func IsColorSupported() bool {
	colorOnce.Do(func() {
		colorEnabled = detectColorSupport(os.LookupEnv, os.Stdout)
	})
	return colorEnabled
}

func detectColorSupport(lookup func(string) (string, bool), out *os.File) bool {
	if _, ok := lookup("NO_COLOR"); ok {
		return false
	}
	if _, ok := lookup("FORCE_COLOR"); ok {
		return true
	}

	stat, err := out.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term, _ := lookup("TERM")
	return term != "" && term != "dumb"
}
