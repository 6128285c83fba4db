package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide explains how to copy the session cookies out
// of a logged-in browser
func ShowCookieExtractionGuide(w io.Writer) {
	rule := strings.Repeat("=", 80)
	lines := []string{
		rule,
		"X.COM SESSION COOKIE GUIDE",
		rule,
		"",
		"twscraper forwards the cookies of a logged-in browser session to the web API.",
		"",
		"STEP 1: Log in at https://x.com and open your home timeline",
		"",
		"STEP 2: Open Developer Tools",
		"   Chrome/Edge/Brave/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)",
		"   Safari: enable the Develop menu in Settings, then Cmd+Option+I",
		"",
		"STEP 3: Find the cookies",
		"   Application tab (Chrome) or Storage tab (Firefox) -> Cookies -> https://x.com",
		"",
		"STEP 4: Copy these values",
		"   auth_token   40 hex characters",
		"   ct0          the CSRF token, usually 160 hex characters",
		"",
		"TIPS:",
		"   Copy only the value, without quotes or semicolons",
		"   Logging out in the browser invalidates both cookies",
		"   Keep the browser's user agent if you can; sessions are tied to it",
		"",
		"These cookies give full access to the account. Never share them.",
		rule,
		"",
	}
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

// ShowQuickExtractGuide shows a condensed version for experienced users
func ShowQuickExtractGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 -> Application/Storage -> Cookies -> https://x.com")
	fmt.Fprintln(w, "   Need: auth_token=... and ct0=...")
}
