package plist

import (
	"strings"
	"testing"

	applist "howett.net/plist"
)

const manifestXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>SinfPaths</key>
	<array>
		<string>Payload/App.app/SC_Info/App.sinf</string>
	</array>
</dict>
</plist>`

const infoXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>App</string>
</dict>
</plist>`

func TestParseXMLAndGetStringArray(t *testing.T) {
	v, err := Parse([]byte(manifestXML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	paths, ok := GetStringArray(v, "SinfPaths")
	if !ok || len(paths) != 1 || paths[0] != "Payload/App.app/SC_Info/App.sinf" {
		t.Fatalf("GetStringArray = %v, %v", paths, ok)
	}
}

func TestParseXMLAndGetString(t *testing.T) {
	v, err := Parse([]byte(infoXML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	exec, ok := GetString(v, "CFBundleExecutable")
	if !ok || exec != "App" {
		t.Fatalf("GetString = %q, %v", exec, ok)
	}
}

func TestGetStringAbsentKey(t *testing.T) {
	v, _ := Parse([]byte(infoXML))
	if _, ok := GetString(v, "DoesNotExist"); ok {
		t.Fatal("expected ok=false for absent key")
	}
}

func TestGetStringTypeMismatch(t *testing.T) {
	v, _ := Parse([]byte(manifestXML))
	if _, ok := GetString(v, "SinfPaths"); ok {
		t.Fatal("expected ok=false: SinfPaths is an array, not a string")
	}
}

func TestIsBinary(t *testing.T) {
	if IsBinary([]byte(infoXML)) {
		t.Error("XML plist should not be detected as binary")
	}
	var buf strings.Builder
	buf.WriteString("bplist00")
	if !IsBinary([]byte(buf.String())) {
		t.Error("bplist-prefixed bytes should be detected as binary")
	}
}

func TestXMLToBinaryRoundTrips(t *testing.T) {
	bin, err := XMLToBinary([]byte(infoXML))
	if err != nil {
		t.Fatalf("XMLToBinary: %v", err)
	}
	if !IsBinary(bin) {
		t.Fatalf("re-encoded plist does not start with binary magic")
	}
	v, err := Parse(bin)
	if err != nil {
		t.Fatalf("Parse(binary): %v", err)
	}
	exec, ok := GetString(v, "CFBundleExecutable")
	if !ok || exec != "App" {
		t.Fatalf("round-tripped value = %q, %v", exec, ok)
	}
}

func TestParseInvalidBytes(t *testing.T) {
	if _, err := Parse([]byte("not a plist at all")); err == nil {
		t.Fatal("expected error parsing garbage bytes")
	}
}

// sanity check that our import path matches the library's package name.
var _ = applist.Unmarshal
