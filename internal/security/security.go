// Package security implements the URL/path/filename policy shared by the
// download engine and the HTTP layer: it decides whether a download URL or
// a staged filename is safe to act on. Wisp targets are checked separately
// by wisp.ValidateTarget.
package security

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// MaxDownloadSize is the largest IPA this server will stage, enforced both
// against a declared Content-Length and against the running total read
// during streaming.
const MaxDownloadSize int64 = 4 << 30 // 4 GiB

// ValidateDownloadURL accepts iff the scheme is https, the host parses, and
// the host is not a loopback/link-local/private-range literal or localhost.
// Called both at task creation and again immediately before the HTTP
// request, closing the time-of-check gap between the two.
func ValidateDownloadURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("downloadUrl is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid downloadUrl")
	}
	if u.Scheme != "https" {
		return fmt.Errorf("downloadUrl must use https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("invalid downloadUrl")
	}
	if err := validatePublicHost(host); err != nil {
		return fmt.Errorf("downloadUrl host not permitted: %w", err)
	}
	return nil
}

// validatePublicHost rejects loopback, link-local, private-range, and
// localhost-like hosts for the download URL policy (§4.A). The Wisp target
// policy (§4.D) applies the same rules in its own wisp.ValidateTarget.
func validatePublicHost(host string) error {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".local") {
		return fmt.Errorf("loopback or mDNS host not permitted")
	}

	// Normalize IDN hosts the same way a resolver would before inspecting
	// whether the literal is an IP address.
	ascii, err := idna.Lookup.ToASCII(lower)
	if err == nil {
		lower = ascii
	}

	if ip := net.ParseIP(strings.Trim(lower, "[]")); ip != nil {
		if !isPublicIP(ip) {
			return fmt.Errorf("private or reserved IP literal not permitted")
		}
	}
	return nil
}

func isPublicIP(ip net.IP) bool {
	switch {
	case ip.IsLoopback(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsPrivate(),
		ip.IsUnspecified(),
		ip.IsMulticast():
		return false
	}
	return true
}

var filenameDisallowed = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// maxFilenameLen caps the sanitized filename length so path components built
// from account hash / bundle id / version can't blow out the filesystem's
// name-length limit.
const maxFilenameLen = 200

// SanitizeFilename retains alphanumerics, dot, underscore, and hyphen;
// replaces every other run with a single underscore; collapses leading and
// trailing separators; and caps the result's length. Idempotent: running it
// again on its own output is a no-op.
func SanitizeFilename(s string) string {
	out := filenameDisallowed.ReplaceAllString(s, "_")
	out = strings.Trim(out, "._-")
	if out == "" {
		out = "_"
	}
	if len(out) > maxFilenameLen {
		out = out[:maxFilenameLen]
		out = strings.Trim(out, "._-")
	}
	return out
}

// PathWithinBase reports whether candidate, once both paths are
// canonicalized, has base as a path-component prefix. Equal paths count as
// contained. Callers must pass already-symlink-resolved paths (see
// filepath.EvalSymlinks) since this function only compares components.
func PathWithinBase(candidate, base string) bool {
	candidate = filepath.Clean(candidate)
	base = filepath.Clean(base)
	if candidate == base {
		return true
	}
	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return true
}

// FormatSpeed renders a byte rate as a two-significant-digit decimal with a
// KB/s, MB/s, or GB/s unit — the wire format clients expect for
// DownloadTask.speed; rates below 1000 B/s are shown as whole bytes per
// second. go-humanize's default SI rendering doesn't match this
// two-sig-fig convention, so this picks the unit itself and rounds with
// %.2g.
func FormatSpeed(bytesPerSec float64) string {
	const unit = 1000.0
	switch {
	case bytesPerSec < unit:
		return fmt.Sprintf("%.0f B/s", bytesPerSec)
	case bytesPerSec < unit*unit:
		return fmt.Sprintf("%s KB/s", sig2(bytesPerSec/unit))
	case bytesPerSec < unit*unit*unit:
		return fmt.Sprintf("%s MB/s", sig2(bytesPerSec/(unit*unit)))
	default:
		return fmt.Sprintf("%s GB/s", sig2(bytesPerSec/(unit*unit*unit)))
	}
}

// sig2 rounds a value to two significant digits and prints it as a plain
// decimal without a trailing zero fraction or exponent ("1.04" -> "1",
// "1.53" -> "1.5", "153" -> "150").
func sig2(v float64) string {
	r, err := strconv.ParseFloat(fmt.Sprintf("%.2g", v), 64)
	if err != nil {
		r = v
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
