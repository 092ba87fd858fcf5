package richtext

import (
	"strings"

	"github.com/wesm/chatvault/internal/textutil"
)

// rawScan is the last decode tier: find the longest run of printable ASCII
// plus common whitespace in the payload. Archive framing leaves runs of '+'
// and '=' type codes around real content; a run that is nothing but those
// artifacts is discarded.
func rawScan(data []byte) string {
	best := ""
	runStart := -1

	flush := func(end int) {
		if runStart < 0 {
			return
		}
		run := string(data[runStart:end])
		runStart = -1
		run = strings.TrimLeft(run, "+= \t")
		if len(run) > len(best) && textutil.HasLetterOrDigit(run) {
			best = run
		}
	}

	for i, b := range data {
		if printableASCII(b) {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))

	return textutil.CleanRecovered(textutil.EnsureUTF8(best))
}

func printableASCII(b byte) bool {
	return (b >= 0x20 && b < 0x7F) || b == '\t' || b == '\n' || b == '\r'
}
