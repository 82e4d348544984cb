package injector

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
)

// Rewrite atomically applies plan to the IPA at path: existing entries not
// being replaced are raw-copied (preserving their original compression and
// CRC), planned entries are appended Stored, and the result is renamed
// over the original. The original file is untouched until the final
// rename; on any failure the temp file is removed best-effort and the
// error (plus any cleanup error) is returned.
func Rewrite(path string, plan Plan) (err error) {
	if len(plan.Entries) == 0 {
		return nil
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("injector: open ipa: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("injector: stat ipa: %w", err)
	}
	reader, err := zip.NewReader(in, info.Size())
	if err != nil {
		return fmt.Errorf("injector: read zip: %w", err)
	}

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("injector: create temp: %w", err)
	}

	writeSet := make(map[string]bool, len(plan.Entries))
	for _, e := range plan.Entries {
		writeSet[e.Path] = true
	}

	writer := zip.NewWriter(out)
	var result *multierror.Error

	for _, f := range reader.File {
		if writeSet[f.Name] {
			continue
		}
		if cerr := writer.Copy(f); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("copy entry %q: %w", f.Name, cerr))
			break
		}
	}

	if result.ErrorOrNil() == nil {
		for _, e := range plan.Entries {
			fh := zip.FileHeader{Name: e.Path, Method: zip.Store}
			w, werr := writer.CreateHeader(&fh)
			if werr != nil {
				result = multierror.Append(result, fmt.Errorf("start entry %q: %w", e.Path, werr))
				break
			}
			if _, werr := io.Copy(w, bytes.NewReader(e.Data)); werr != nil {
				result = multierror.Append(result, fmt.Errorf("write entry %q: %w", e.Path, werr))
				break
			}
		}
	}

	if cerr := writer.Close(); cerr != nil {
		result = multierror.Append(result, fmt.Errorf("finalize zip: %w", cerr))
	}
	if cerr := out.Close(); cerr != nil {
		result = multierror.Append(result, fmt.Errorf("close temp: %w", cerr))
	}

	if result.ErrorOrNil() != nil {
		if rerr := os.Remove(tmpPath); rerr != nil && !os.IsNotExist(rerr) {
			result = multierror.Append(result, fmt.Errorf("cleanup temp: %w", rerr))
		}
		return result.ErrorOrNil()
	}

	if rerr := os.Rename(tmpPath, path); rerr != nil {
		return fmt.Errorf("injector: rename temp over original: %w", rerr)
	}
	return nil
}
