// Package botdetect classifies User-Agent strings as automated agents
// (crawlers, previewers, monitors, headless browsers, HTTP libraries) or
// interactive browsers.
package botdetect

import (
	"strings"

	"github.com/x-way/crawlerdetect"
)

// IsBot reports whether ua identifies an automated agent. An empty
// User-Agent is treated as a browser.
func IsBot(ua string) bool {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return false
	}
	return crawlerdetect.IsCrawler(ua)
}
