package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
)

// DefaultBranch is the branch HEAD points at in a freshly initialized
// repository.
const DefaultBranch = "main"

// Init creates a new Twig repository at path. It creates the .twig/ directory
// structure: HEAD, objects/, refs/heads/, refs/tags/, and logs/. Returns an
// error if a .twig/ directory already exists.
func Init(path string) (*Repo, error) {
	twigDir := filepath.Join(path, ".twig")

	// Fail if .twig/ already exists.
	if _, err := os.Stat(twigDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", twigDir)
	}

	dirs := []string{
		filepath.Join(twigDir, "objects"),
		filepath.Join(twigDir, "refs", "heads"),
		filepath.Join(twigDir, "refs", "tags"),
		filepath.Join(twigDir, "logs", "refs", "heads"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}

	// Write default HEAD.
	headPath := filepath.Join(twigDir, "HEAD")
	headContent := "ref: refs/heads/" + DefaultBranch + "\n"
	if err := os.WriteFile(headPath, []byte(headContent), 0o644); err != nil {
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}

	return &Repo{
		RootDir: path,
		TwigDir: twigDir,
		Store:   object.NewStore(filepath.Join(twigDir, "objects")),
	}, nil
}

// Open searches upward from path for a .twig/ directory and opens the
// repository. Returns an error if no .twig/ directory is found.
func Open(path string) (*Repo, error) {
	// Resolve to absolute path for consistent traversal.
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		twigDir := filepath.Join(cur, ".twig")
		info, err := os.Stat(twigDir)
		if err == nil && info.IsDir() {
			return &Repo{
				RootDir: cur,
				TwigDir: twigDir,
				Store:   object.NewStore(filepath.Join(twigDir, "objects")),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding .twig/.
			return nil, fmt.Errorf("open: not a twig repository (or any parent up to /)")
		}
		cur = parent
	}
}

// Head reads .twig/HEAD. If the content starts with "ref: ", it returns the
// ref path (e.g., "refs/heads/main"). Otherwise it returns the raw content
// as a detached hash string.
func (r *Repo) Head() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.TwigDir, "HEAD"))
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	content := strings.TrimRight(string(data), "\n")

	if strings.HasPrefix(content, "ref: ") {
		return strings.TrimPrefix(content, "ref: "), nil
	}
	return content, nil
}
