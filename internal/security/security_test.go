package security

import "testing"

func TestValidateDownloadURL(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid https public host", "https://example.com/app.ipa", false},
		{"http rejected", "http://example.com/app.ipa", true},
		{"localhost rejected", "https://localhost/app.ipa", true},
		{"loopback literal rejected", "https://127.0.0.1/app.ipa", true},
		{"private range rejected", "https://10.0.0.5/app.ipa", true},
		{"link-local rejected", "https://169.254.1.1/app.ipa", true},
		{"mdns rejected", "https://box.local/app.ipa", true},
		{"empty rejected", "", true},
		{"malformed rejected", "https://[::1/app.ipa", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateDownloadURL(c.url)
			if (err != nil) != c.wantErr {
				t.Errorf("ValidateDownloadURL(%q) err=%v, wantErr=%v", c.url, err, c.wantErr)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"com.example.app":    "com.example.app",
		"My App!! v1.0":      "My_App_v1.0",
		"../../etc/passwd":   "etc_passwd",
		"   leading/trail  ": "leading_trail",
		"":                   "_",
	}
	for in, want := range cases {
		got := SanitizeFilename(in)
		if got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilenameIdempotent(t *testing.T) {
	inputs := []string{"com.example.app", "My App!! v1.0", "../../etc/passwd", ""}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		twice := SanitizeFilename(once)
		if once != twice {
			t.Errorf("SanitizeFilename not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestPathWithinBase(t *testing.T) {
	base := "/data/packages"
	cases := []struct {
		candidate string
		want      bool
	}{
		{"/data/packages", true},
		{"/data/packages/acct/bundle/1.0/x.ipa", true},
		{"/data/packages/../../etc/passwd", false},
		{"/data/packagesEvil/x", false},
		{"/data/other", false},
	}
	for _, c := range cases {
		got := PathWithinBase(c.candidate, base)
		if got != c.want {
			t.Errorf("PathWithinBase(%q, %q) = %v, want %v", c.candidate, base, got, c.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	cases := []struct {
		bps  float64
		want string
	}{
		{0, "0 B/s"},
		{512, "512 B/s"},
		{1500, "1.5 KB/s"},
		{1_200_000, "1.2 MB/s"},
		{3_400_000_000, "3.4 GB/s"},
	}
	for _, c := range cases {
		got := FormatSpeed(c.bps)
		if got != c.want {
			t.Errorf("FormatSpeed(%v) = %q, want %q", c.bps, got, c.want)
		}
	}
}
