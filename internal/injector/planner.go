// Package injector plans and performs the SINF / iTunesMetadata injection
// that turns a plain downloaded IPA into a licensed one: locate the
// payload bundle, resolve the injection target paths from the archive's
// own plist metadata, and rewrite the ZIP container atomically.
package injector

import (
	"archive/zip"
	"fmt"
	"regexp"

	"github.com/pkgforge/pkgforge/internal/plist"
)

// Sinf is one per-user license token: an integer id paired with opaque
// license bytes.
type Sinf struct {
	ID   int64
	Data []byte
}

// Entry is a single planned archive member: the path to write and the
// bytes to write there.
type Entry struct {
	Path string
	Data []byte
}

// Plan is the ordered set of archive members the rewriter must write.
// An empty plan means there is nothing to inject.
type Plan struct {
	Entries []Entry
}

// bundleRe matches the first path component identifying the app bundle,
// e.g. "Payload/Foo.app/..." captures "Foo".
var bundleRe = regexp.MustCompile(`^Payload/([^/]+)\.app/`)

// FindBundleName scans the archive's entry names for the first one under
// Payload/<name>.app/ and returns <name>.
func FindBundleName(r *zip.Reader) (string, error) {
	for _, f := range r.File {
		if m := bundleRe.FindStringSubmatch(f.Name); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("injector: no Payload/<bundle>.app entry found")
}

// source is the resolved injection target description: either the
// Manifest.plist SinfPaths list, or the single Info.plist fallback path.
type source struct {
	sinfPaths  []string // from Manifest.plist, preferred
	fallback   string   // synthesized from Info.plist, used only if sinfPaths is nil
}

// resolveSource finds Manifest.plist's SinfPaths, falling back to a path
// synthesised from Info.plist's CFBundleExecutable.
func resolveSource(r *zip.Reader, bundleName string) (source, error) {
	manifestPath := fmt.Sprintf("Payload/%s.app/SC_Info/Manifest.plist", bundleName)
	if data, ok := readEntry(r, manifestPath); ok {
		if val, err := plist.Parse(data); err == nil {
			if paths, ok := plist.GetStringArray(val, "SinfPaths"); ok && len(paths) > 0 {
				return source{sinfPaths: paths}, nil
			}
		}
	}

	infoPath := fmt.Sprintf("Payload/%s.app/Info.plist", bundleName)
	if data, ok := readEntry(r, infoPath); ok {
		if val, err := plist.Parse(data); err == nil {
			if exec, ok := plist.GetString(val, "CFBundleExecutable"); ok && exec != "" {
				return source{fallback: fmt.Sprintf("Payload/%s.app/SC_Info/%s.sinf", bundleName, exec)}, nil
			}
		}
	}

	return source{}, fmt.Errorf("injector: no injection source (missing SinfPaths and CFBundleExecutable)")
}

func readEntry(r *zip.Reader, name string) ([]byte, bool) {
	for _, f := range r.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, false
		}
		defer rc.Close()
		data := make([]byte, 0, f.UncompressedSize64)
		buf := make([]byte, 32*1024)
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				data = append(data, buf[:n]...)
			}
			if err != nil {
				break
			}
		}
		return data, true
	}
	return nil, false
}

// BuildPlan resolves the injection source from the archive and builds the
// ordered list of (path, bytes) pairs the rewriter must write. Excess
// sinf tuples beyond the number of SinfPaths entries are dropped; with
// the Info.plist fallback only the first tuple is used. If metadata is
// non-nil, an additional iTunesMetadata.plist entry is appended.
func BuildPlan(r *zip.Reader, sinfs []Sinf, metadata []byte) (Plan, error) {
	bundleName, err := FindBundleName(r)
	if err != nil {
		return Plan{}, err
	}
	src, err := resolveSource(r, bundleName)
	if err != nil {
		return Plan{}, err
	}

	var entries []Entry
	switch {
	case src.sinfPaths != nil:
		for i, path := range src.sinfPaths {
			if i >= len(sinfs) {
				break
			}
			entries = append(entries, Entry{Path: path, Data: sinfs[i].Data})
		}
	case src.fallback != "":
		if len(sinfs) > 0 {
			entries = append(entries, Entry{Path: src.fallback, Data: sinfs[0].Data})
		}
	}

	if metadata != nil {
		entries = append(entries, Entry{Path: "iTunesMetadata.plist", Data: metadata})
	}

	return Plan{Entries: entries}, nil
}
