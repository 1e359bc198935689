// Package main provides localization for the framecore CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Runtime messages
		"Wrote frame at %s (%dx%d) to %s":             "%s のフレーム (%dx%d) を %s に書き出しました",
		"Played %d frames in %s (%.1f fps effective)": "%d フレームを %s で再生しました（実効 %.1f fps）",
	})
}
