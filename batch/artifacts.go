package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/teranos/verdict/am"
	"github.com/teranos/verdict/errors"
)

// ArtifactName is the local request file for one sub-batch
func ArtifactName(owner string, sub int) string {
	return fmt.Sprintf("batch_tasks_%s_%d.jsonl", owner, sub)
}

// OutputName is the local copy of one sub-batch's remote output
func OutputName(owner string, sub int) string {
	return fmt.Sprintf("output_%s_%d.jsonl", owner, sub)
}

// DatasetName is the reassembled dataset for an owner
func DatasetName(owner string) string {
	return owner + "-complete.jsonl"
}

// WriteArtifact writes tasks as JSONL to dir/ArtifactName(owner, sub).
// An existing artifact is never overwritten; wrote reports whether a file was created.
func WriteArtifact(dir, owner string, sub int, tasks []Task) (path string, wrote bool, err error) {
	path = filepath.Join(dir, ArtifactName(owner, sub))
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return path, false, errors.Wrapf(err, "failed to stat %s", path)
	}

	if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
		return path, false, errors.Wrapf(err, "failed to create %s", dir)
	}

	err = writeFileAtomic(path, func(w *bufio.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, t := range tasks {
			if err := enc.Encode(t); err != nil {
				return errors.Wrapf(err, "failed to encode %s", t.CustomID)
			}
		}
		return nil
	})
	if err != nil {
		return path, false, err
	}
	return path, true, nil
}

// writeFileAtomic writes through a temp file in the same directory and renames it
// into place. Readers never see a partial file under the final name.
func writeFileAtomic(path string, write func(w *bufio.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	w := bufio.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	if err := os.Chmod(tmpName, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to move %s into place", path)
	}
	return nil
}

var trailingNumber = regexp.MustCompile(`_(\d+)\.jsonl$`)

// subIDFromName extracts the trailing numeric sub id, or -1
func subIDFromName(name string) int {
	m := trailingNumber.FindStringSubmatch(name)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}

// OutputFiles returns the owner's output files in dir ordered by numeric sub id
func OutputFiles(dir, owner string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("output_%s_*.jsonl", globEscape(owner))))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to glob outputs for %s", owner)
	}

	prefix := "output_" + owner + "_"
	files := matches[:0]
	for _, m := range matches {
		base := filepath.Base(m)
		// output_A_* also matches output_A_B_1.jsonl
		rest := base[len(prefix):]
		if _, err := strconv.Atoi(rest[:len(rest)-len(".jsonl")]); err != nil {
			continue
		}
		files = append(files, m)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return subIDFromName(files[i]) < subIDFromName(files[j])
	})
	return files, nil
}

// globEscape escapes glob metacharacters in an owner key
func globEscape(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
