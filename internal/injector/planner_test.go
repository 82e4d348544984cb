package injector

import (
	"archive/zip"
	"bytes"
	"testing"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestFindBundleName(t *testing.T) {
	data := buildZip(t, map[string]string{
		"Payload/App.app/Info.plist": "x",
		"iTunes/ignored.txt":         "y",
	})
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	name, err := FindBundleName(r)
	if err != nil || name != "App" {
		t.Fatalf("got %q, err=%v", name, err)
	}
}

func TestFindBundleNameMissing(t *testing.T) {
	data := buildZip(t, map[string]string{"README.txt": "x"})
	r, _ := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if _, err := FindBundleName(r); err == nil {
		t.Fatal("expected error for archive with no Payload/<bundle>.app entry")
	}
}

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

func TestBuildPlanFromManifest(t *testing.T) {
	data := buildZip(t, map[string]string{
		"Payload/App.app/SC_Info/Manifest.plist": manifestXML,
		"Payload/App.app/Info.plist":              infoXML,
	})
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	plan, err := BuildPlan(r, []Sinf{{ID: 0, Data: []byte("hello")}}, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].Path != "Payload/App.app/SC_Info/App.sinf" {
		t.Fatalf("got %+v", plan.Entries)
	}
	if string(plan.Entries[0].Data) != "hello" {
		t.Fatalf("got data %q", plan.Entries[0].Data)
	}
}

func TestBuildPlanFallsBackToInfo(t *testing.T) {
	data := buildZip(t, map[string]string{
		"Payload/App.app/Info.plist": infoXML,
	})
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	plan, err := BuildPlan(r, []Sinf{{ID: 0, Data: []byte("world")}}, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].Path != "Payload/App.app/SC_Info/App.sinf" {
		t.Fatalf("got %+v", plan.Entries)
	}
}

func TestBuildPlanDropsExcessSinfs(t *testing.T) {
	data := buildZip(t, map[string]string{
		"Payload/App.app/SC_Info/Manifest.plist": manifestXML,
	})
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	plan, err := BuildPlan(r, []Sinf{{ID: 0, Data: []byte("a")}, {ID: 1, Data: []byte("b")}}, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Entries) != 1 {
		t.Fatalf("expected excess sinf tuple dropped, got %+v", plan.Entries)
	}
}

func TestBuildPlanAppendsMetadata(t *testing.T) {
	data := buildZip(t, map[string]string{
		"Payload/App.app/SC_Info/Manifest.plist": manifestXML,
	})
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	plan, err := BuildPlan(r, []Sinf{{ID: 0, Data: []byte("a")}}, []byte("meta"))
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Entries) != 2 || plan.Entries[1].Path != "iTunesMetadata.plist" {
		t.Fatalf("got %+v", plan.Entries)
	}
}

func TestBuildPlanFailsWithNoSource(t *testing.T) {
	data := buildZip(t, map[string]string{
		"Payload/App.app/README.txt": "x",
	})
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, err := BuildPlan(r, nil, nil); err == nil {
		t.Fatal("expected error when neither Manifest.plist nor Info.plist resolves")
	}
}
