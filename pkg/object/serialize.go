package object

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Marshal/Unmarshal pairs define the canonical payload bytes for each object
// kind. Canonical means logically identical values always serialize to
// identical bytes, which is what makes tree digests stable across platforms
// and directory enumeration orders.

func MarshalBlob(b *Blob) []byte {
	return b.Data
}

func UnmarshalBlob(data []byte) (*Blob, error) {
	return &Blob{Data: data}, nil
}

// MarshalTree renders one "mode hash name" line per entry, sorted by name.
// Name comes last so names containing spaces survive the round trip.
func MarshalTree(t *TreeObj) ([]byte, error) {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var sb strings.Builder
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := validateTreeEntryName(e.Name); err != nil {
			return nil, err
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("tree: duplicate entry %q", e.Name)
		}
		seen[e.Name] = struct{}{}

		switch e.Mode {
		case TreeModeDir, TreeModeFile, TreeModeExecutable:
		default:
			return nil, fmt.Errorf("tree entry %q: unknown mode %q", e.Name, e.Mode)
		}
		if len(e.Hash) != hashHexLen || !isHexString(string(e.Hash)) {
			return nil, fmt.Errorf("tree entry %q: malformed hash %q", e.Name, e.Hash)
		}
		fmt.Fprintf(&sb, "%s %s %s\n", e.Mode, e.Hash, e.Name)
	}
	return []byte(sb.String()), nil
}

func validateTreeEntryName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("tree: empty entry name")
	case name == "." || name == "..":
		return fmt.Errorf("tree: reserved entry name %q", name)
	case strings.ContainsAny(name, "/\x00\n"):
		return fmt.Errorf("tree: entry name %q contains reserved characters", name)
	}
	return nil
}

func UnmarshalTree(data []byte) (*TreeObj, error) {
	t := &TreeObj{}
	if len(data) == 0 {
		return t, nil
	}
	body := strings.TrimSuffix(string(data), "\n")
	for _, line := range strings.Split(body, "\n") {
		mode, rest, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("tree: malformed entry %q", line)
		}
		hash, name, ok := strings.Cut(rest, " ")
		if !ok {
			return nil, fmt.Errorf("tree: malformed entry %q", line)
		}
		if err := validateTreeEntryName(name); err != nil {
			return nil, err
		}
		if len(hash) != hashHexLen || !isHexString(hash) {
			return nil, fmt.Errorf("tree entry %q: malformed hash %q", name, hash)
		}
		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, Hash: Hash(hash)})
	}
	return t, nil
}

// MarshalCommit renders header lines, a blank separator, then the message.
// Parent lines keep their order; the signature line appears only on signed
// commits.
func MarshalCommit(c *CommitObj) ([]byte, error) {
	if len(c.TreeHash) != hashHexLen {
		return nil, fmt.Errorf("commit: malformed tree hash %q", c.TreeHash)
	}
	if len(c.Parents) > 2 {
		return nil, fmt.Errorf("commit: too many parents (%d)", len(c.Parents))
	}
	for _, p := range c.Parents {
		if len(p) != hashHexLen {
			return nil, fmt.Errorf("commit: malformed parent hash %q", p)
		}
	}
	if strings.TrimSpace(c.Message) == "" {
		return nil, fmt.Errorf("commit: empty message")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&sb, "parent %s\n", p)
	}
	fmt.Fprintf(&sb, "author %s\n", headerValue(c.Author))
	fmt.Fprintf(&sb, "timestamp %d\n", c.Timestamp)
	if c.Signature != "" {
		fmt.Fprintf(&sb, "signature %s\n", headerValue(c.Signature))
	}
	sb.WriteString("\n")
	sb.WriteString(c.Message)
	return []byte(sb.String()), nil
}

// headerValue keeps header lines one line each.
func headerValue(v string) string {
	return strings.ReplaceAll(v, "\n", " ")
}

func UnmarshalCommit(data []byte) (*CommitObj, error) {
	header, message, ok := strings.Cut(string(data), "\n\n")
	if !ok {
		return nil, fmt.Errorf("commit: missing header/message separator")
	}

	c := &CommitObj{Message: message}
	for _, line := range strings.Split(header, "\n") {
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("commit: malformed header line %q", line)
		}
		switch key {
		case "tree":
			c.TreeHash = Hash(value)
		case "parent":
			c.Parents = append(c.Parents, Hash(value))
		case "author":
			c.Author = value
		case "timestamp":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("commit: bad timestamp %q: %w", value, err)
			}
			c.Timestamp = ts
		case "signature":
			c.Signature = value
		default:
			return nil, fmt.Errorf("commit: unknown header %q", key)
		}
	}
	if c.TreeHash == "" {
		return nil, fmt.Errorf("commit: missing tree header")
	}
	return c, nil
}
