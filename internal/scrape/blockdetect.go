// Package scrape fetches single pages under a size and redirect budget and
// reduces them to plain text.
package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockLoginWall  BlockType = "login_wall"
)

var loginWallMarkers = []string{
	"authwall",
	"login_required",
	"please log in",
	"sign up to view",
	"join now to see",
	"sign in to view",
}

// DetectBlock reports whether a response is an anti-bot interstitial or a
// login wall rather than real content.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return true, BlockCloudflare
	}
	if strings.Contains(lower, "captcha") {
		return true, BlockCaptcha
	}
	for _, m := range loginWallMarkers {
		if strings.Contains(lower, m) {
			return true, BlockLoginWall
		}
	}
	if len(body) < 2000 && strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
		return true, BlockJSShell
	}
	return false, BlockNone
}
