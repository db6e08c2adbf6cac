package client

import "strings"

// WebSocketURL derives the subscription url from the http url by swapping
// the scheme prefix, other schemes are returned unchanged
func WebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https"):
		return "wss" + strings.TrimPrefix(httpURL, "https")
	case strings.HasPrefix(httpURL, "http"):
		return "ws" + strings.TrimPrefix(httpURL, "http")
	}
	return httpURL
}
