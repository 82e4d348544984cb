// Package manifest produces the over-the-air install XML (and its
// fallback icon) that an itms-services:// link points an iOS device at.
package manifest

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Task is the minimal view of a completed download the emitter needs.
type Task struct {
	ID         string
	BundleID   string
	Version    string
	Title      string
}

// hostAllowed restricts the characters accepted in a derived request host,
// matching the over-the-air protocol's tolerance for host/port pairs only.
var hostAllowed = regexp.MustCompile(`^[A-Za-z0-9.:\-]+$`)

// BaseURL chooses the base URL a manifest's asset links are built from:
// the configured value if non-empty, else derived from the request's
// forwarded proto and host.
func BaseURL(configured, forwardedProto, host string) (string, error) {
	if configured != "" {
		return strings.TrimRight(configured, "/"), nil
	}
	if !hostAllowed.MatchString(host) {
		return "", fmt.Errorf("manifest: host %q contains disallowed characters", host)
	}
	proto := forwardedProto
	if proto == "" {
		proto = "http"
	}
	return fmt.Sprintf("%s://%s", proto, host), nil
}

// PlistXML renders the over-the-air manifest for t, with asset URLs
// rooted at baseURL.
func PlistXML(t Task, baseURL string) string {
	payloadURL := fmt.Sprintf("%s/api/install/%s/payload.ipa", baseURL, t.ID)
	smallIconURL := fmt.Sprintf("%s/api/install/%s/icon-small.png", baseURL, t.ID)
	largeIconURL := fmt.Sprintf("%s/api/install/%s/icon-large.png", baseURL, t.ID)

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>items</key>
	<array>
		<dict>
			<key>assets</key>
			<array>
				<dict>
					<key>kind</key>
					<string>software-package</string>
					<key>url</key>
					<string>%s</string>
				</dict>
				<dict>
					<key>kind</key>
					<string>display-image</string>
					<key>url</key>
					<string>%s</string>
				</dict>
				<dict>
					<key>kind</key>
					<string>full-size-image</string>
					<key>url</key>
					<string>%s</string>
				</dict>
			</array>
			<key>metadata</key>
			<dict>
				<key>bundle-identifier</key>
				<string>%s</string>
				<key>bundle-version</key>
				<string>%s</string>
				<key>kind</key>
				<string>software</string>
				<key>title</key>
				<string>%s</string>
			</dict>
		</dict>
	</array>
</dict>
</plist>
`, xmlEscape(payloadURL), xmlEscape(smallIconURL), xmlEscape(largeIconURL), xmlEscape(t.BundleID), xmlEscape(t.Version), xmlEscape(t.Title))
}

// InstallURL builds the itms-services:// link that points a device at
// manifestURL.
func InstallURL(manifestURL string) string {
	return "itms-services://?action=download-manifest&url=" + url.QueryEscape(manifestURL)
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(s)
}
