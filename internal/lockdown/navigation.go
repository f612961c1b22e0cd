package lockdown

import "strings"

// DefaultAllowedNavigation lists the destinations a locked window may still load:
// the local relay UI, the graphing calculator, and bundled pages
var DefaultAllowedNavigation = []string{"localhost", "desmos.com", "file://"}

// navigationAllowed matches by substring, so an entry also admits subdomains and paths under it
func navigationAllowed(url string, allow []string) bool {
	for _, pattern := range allow {
		if pattern != "" && strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}
