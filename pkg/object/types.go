package object

// Hash is the hex-encoded SHA-256 digest naming an object. The digest covers
// the full storage envelope (type, NUL separator, payload), so it is a
// permanent, verifiable name for exactly that typed content.
type Hash string

const hashHexLen = 64

// ObjectType identifies the kind of payload an object carries.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

// Tree entry modes. Directories use TreeModeDir; file entries carry a
// permission mode.
const (
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob is raw file content with no metadata.
type Blob struct {
	Data []byte
}

// TreeEntry is one name inside a tree: a blob for file modes, a subtree for
// TreeModeDir.
type TreeEntry struct {
	Name string
	Mode string
	Hash Hash
}

// IsDir reports whether the entry names a subtree.
func (e TreeEntry) IsDir() bool { return e.Mode == TreeModeDir }

// TreeObj is a directory listing. Serialization is canonical (entries sorted
// by name), so two identical listings always share a digest regardless of
// how they were assembled.
type TreeObj struct {
	Entries []TreeEntry
}

// CommitObj is a snapshot pointer: root tree, parent commits, authorship,
// and a free-text message. Only the repository's first commit has zero
// parents; a merge commit has exactly two, first the branch that was checked
// out when the merge ran.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Timestamp int64
	Signature string
	Message   string
}
