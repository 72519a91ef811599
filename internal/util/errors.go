package util

import "strings"

// Transient network failures worth retrying a delivery for. This is a
// fixed allow-list matched against the error text; anything not listed
// fails immediately.
var retryableSignatures = []string{
	"connection reset",
	"econnreset",
	"broken pipe",
	"unexpected eof",
	"i/o timeout",
	"timed out",
	"timeout",
	"connection closed",
}

func IsRetryableSendError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// ToUserError maps an internal failure message onto something worth
// showing a user.
func ToUserError(message string) string {
	msg := strings.ToLower(message)

	if strings.Contains(msg, "video unavailable") || strings.Contains(msg, "private video") || strings.Contains(msg, "this content is private") {
		return "This video is unavailable or has been removed"
	}
	if strings.Contains(msg, "live stream") || strings.Contains(msg, "is live") {
		return "Live streams can't be downloaded"
	}
	if strings.Contains(msg, "age-restricted") || strings.Contains(msg, "age restricted") || strings.Contains(msg, "sign in to confirm your age") {
		return "This video is age-restricted"
	}
	if strings.Contains(msg, "sign in to confirm") || strings.Contains(msg, "sign in to verify") {
		return "The site is blocking this request, try again later"
	}
	if strings.Contains(msg, "geo restricted") || strings.Contains(msg, "geo-restricted") || strings.Contains(msg, "not available in your country") {
		return "This video isn't available in the server's region"
	}
	if strings.Contains(msg, "http error 403") || strings.Contains(msg, "403 forbidden") {
		return "Access denied, the site is blocking downloads"
	}
	if strings.Contains(msg, "http error 404") || strings.Contains(msg, "404 not found") {
		return "Video not found, it may have been deleted"
	}
	if strings.Contains(msg, "unsupported url") {
		return "This website isn't supported"
	}
	if strings.Contains(msg, "no video formats") || strings.Contains(msg, "requested format not available") {
		return "No downloadable formats found"
	}
	if strings.Contains(msg, "rate") && !strings.Contains(msg, "format") {
		return "Rate limited, please wait and try again"
	}
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe") {
		return "Connection dropped, try again"
	}
	if strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") {
		return "Connection timed out, try again"
	}
	if strings.Contains(msg, "no such host") || strings.Contains(msg, "dns") {
		return "Couldn't reach the server, try again"
	}
	if strings.Contains(msg, "downloaded file not found") || strings.Contains(msg, "file not found") {
		return "Download failed"
	}
	return "Download failed"
}
