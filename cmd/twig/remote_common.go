package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/remote"
	"github.com/odvcencio/twig/pkg/repo"
)

func looksLikeRemoteURL(s string) bool {
	_, err := remote.ParseEndpoint(s)
	return err == nil
}

// canonicalRemoteSpec normalizes a remote argument. Twig endpoint URLs pass
// through untouched, "host.tld:owner/repo" shorthand expands to an HTTPS
// endpoint, and anything else must be a filesystem path holding a repository.
func canonicalRemoteSpec(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("remote is required")
	}
	if looksLikeRemoteURL(spec) {
		return spec, nil
	}
	if expanded, ok := expandHostShorthand(spec); ok {
		return expanded, nil
	}
	abs, err := filepath.Abs(spec)
	if err != nil {
		return "", fmt.Errorf("resolve remote path: %w", err)
	}
	if _, err := repo.Open(abs); err != nil {
		return "", fmt.Errorf("remote %q is neither a twig endpoint nor a repository path", spec)
	}
	return abs, nil
}

// expandHostShorthand turns "code.example.com:owner/repo" into
// "https://code.example.com/twig/owner/repo". The host part must contain a
// dot so plain paths and branch names are left alone.
func expandHostShorthand(spec string) (string, bool) {
	idx := strings.Index(spec, ":")
	if idx <= 0 || idx == len(spec)-1 {
		return "", false
	}
	host := spec[:idx]
	if !strings.Contains(host, ".") || strings.ContainsAny(host, "/\\ ") {
		return "", false
	}
	rest := strings.Trim(spec[idx+1:], "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return "https://" + host + "/twig/" + parts[0] + "/" + parts[1], true
}

// resolveRemoteNameAndURL maps a remote argument to its configured name and
// spec. An empty argument means the configured origin; a configured name
// resolves through config; anything else is canonicalized directly.
func resolveRemoteNameAndURL(r *repo.Repo, remoteArg string) (string, string, error) {
	remoteArg = strings.TrimSpace(remoteArg)
	if remoteArg == "" {
		url, err := r.RemoteURL("origin")
		if err != nil {
			return "", "", fmt.Errorf("remote not configured: %w", err)
		}
		return "origin", url, nil
	}

	if url, err := r.RemoteURL(remoteArg); err == nil {
		return remoteArg, url, nil
	}

	spec, err := canonicalRemoteSpec(remoteArg)
	if err != nil {
		return "", "", err
	}
	return "origin", spec, nil
}

// openTransport resolves a remote argument and opens the matching transport:
// the HTTP client for twig endpoints, the filesystem transport for paths.
func openTransport(r *repo.Repo, remoteArg string) (string, remote.Transport, error) {
	name, spec, err := resolveRemoteNameAndURL(r, remoteArg)
	if err != nil {
		return "", nil, err
	}
	t, err := openTransportForSpec(spec)
	if err != nil {
		return "", nil, err
	}
	return name, t, nil
}

func openTransportForSpec(spec string) (remote.Transport, error) {
	if looksLikeRemoteURL(spec) {
		return remote.NewClient(spec)
	}
	return remote.OpenFileTransport(spec)
}

// isRemoteArg reports whether a positional argument names a remote rather
// than a branch: an endpoint URL, a configured remote name, or a path to a
// different repository.
func isRemoteArg(r *repo.Repo, s string) bool {
	if looksLikeRemoteURL(s) {
		return true
	}
	if _, err := r.RemoteURL(s); err == nil {
		return true
	}
	if !strings.ContainsAny(s, "/\\") && !strings.HasPrefix(s, ".") {
		return false
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return false
	}
	other, err := repo.Open(abs)
	if err != nil {
		return false
	}
	return other.RootDir != r.RootDir
}

func localRefTips(r *repo.Repo) ([]object.Hash, error) {
	refs, err := r.ListRefHashes("")
	if err != nil {
		return nil, err
	}
	tips := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		if strings.TrimSpace(string(h)) != "" {
			tips = append(tips, h)
		}
	}
	return tips, nil
}

func chooseDefaultBranch(remoteRefs map[string]object.Hash) (string, object.Hash, bool) {
	if h, ok := remoteRefs["heads/"+repo.DefaultBranch]; ok && strings.TrimSpace(string(h)) != "" {
		return repo.DefaultBranch, h, true
	}

	branches := make([]string, 0, len(remoteRefs))
	for name := range remoteRefs {
		if strings.HasPrefix(name, "heads/") {
			branches = append(branches, name)
		}
	}
	if len(branches) == 0 {
		return "", "", false
	}
	sort.Strings(branches)

	selected := branches[0]
	return strings.TrimPrefix(selected, "heads/"), remoteRefs[selected], true
}

func ensureEmptyDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("destination path %q is not empty", path)
	}
	return nil
}

func writeSymbolicHead(r *repo.Repo, branch string) error {
	headPath := filepath.Join(r.TwigDir, "HEAD")
	content := "ref: refs/heads/" + branch + "\n"
	return os.WriteFile(headPath, []byte(content), 0o644)
}

func remoteTrackingRefName(remoteName, remoteRef string) string {
	return fmt.Sprintf("refs/remotes/%s/%s", remoteName, strings.TrimPrefix(remoteRef, "/"))
}

// ensureCleanWorkingTree refuses staged or dirty files. Untracked files are
// allowed; checkout leaves them alone.
func ensureCleanWorkingTree(r *repo.Repo) error {
	entries, err := r.Status()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IndexStatus == repo.StatusUntracked && e.WorkStatus == repo.StatusUntracked {
			continue
		}
		if e.IndexStatus != repo.StatusClean || e.WorkStatus != repo.StatusClean {
			return fmt.Errorf("working tree has uncommitted changes (file %q)", e.Path)
		}
	}
	return nil
}
