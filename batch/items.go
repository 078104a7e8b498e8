package batch

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/verdict/errors"
)

// InputExt is the extension of per-owner input files
const InputExt = ".jsonl"

// maxLineBytes bounds one JSONL line; news bodies can be long
const maxLineBytes = 16 << 20

// RequestItem is one text to classify. Never mutated after reading.
type RequestItem struct {
	HashID   string `json:"hash_id"`
	Date     string `json:"date"`
	Text     string `json:"text"`
	OwnerKey string `json:"-"`
}

// inputLine accepts "title" as an alias for "text"
type inputLine struct {
	HashID string `json:"hash_id"`
	Date   string `json:"date"`
	Text   string `json:"text"`
	Title  string `json:"title"`
}

// HashFor derives a correlation key from the item's date and text for inputs
// that carry no hash_id of their own
func HashFor(date, text string) string {
	sum := sha256.Sum256([]byte(date + "|" + text))
	return hex.EncodeToString(sum[:])
}

// InputPath returns the input file for an owner key
func InputPath(dir, owner string) string {
	return filepath.Join(dir, owner+InputExt)
}

// ReadInputs reads an owner's request items, one JSON object per line.
// Blank lines are skipped; items without a hash_id get one from HashFor.
// A hash_id containing '-' is rejected: custom_id carries the key after its
// last '-', so such a key could never be joined back.
func ReadInputs(path, owner string) ([]RequestItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open inputs for %s", owner)
	}
	defer f.Close()

	var items []RequestItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var in inputLine
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			err = errors.Wrapf(err, "invalid input line %d", lineNo)
			return nil, errors.WithDetail(err, "File: "+path)
		}
		text := in.Text
		if text == "" {
			text = in.Title
		}
		text = strings.TrimSpace(text)
		hash := in.HashID
		if hash == "" {
			hash = HashFor(in.Date, text)
		}
		if strings.Contains(hash, "-") {
			err := errors.Newf("invalid input line %d: hash_id %q contains '-'", lineNo, hash)
			err = errors.WithDetail(err, "File: "+path)
			return nil, errors.WithHint(err, "strip dashes from hash_id (e.g. use hex digests) or omit it to derive one")
		}
		items = append(items, RequestItem{
			HashID:   hash,
			Date:     in.Date,
			Text:     text,
			OwnerKey: owner,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read inputs for %s", owner)
	}
	return items, nil
}

// ListInputOwners returns the owner keys that have an input file in dir, sorted
func ListInputOwners(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list inputs in %s", dir)
	}
	var owners []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), InputExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		owners = append(owners, strings.TrimSuffix(e.Name(), InputExt))
	}
	sort.Strings(owners)
	return owners, nil
}

// indexByHash maps correlation key to item; the first occurrence wins
func indexByHash(items []RequestItem) map[string]RequestItem {
	idx := make(map[string]RequestItem, len(items))
	for _, it := range items {
		if _, ok := idx[it.HashID]; !ok {
			idx[it.HashID] = it
		}
	}
	return idx
}
