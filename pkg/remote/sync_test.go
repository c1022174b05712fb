package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/repo"
)

func initSyncRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func commitSyncFile(t *testing.T, r *repo.Repo, name, content, message string) object.Hash {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.RootDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := r.Add([]string{name}); err != nil {
		t.Fatalf("Add(%s): %v", name, err)
	}
	h, err := r.Commit(message, "Alice <alice@example.com>")
	if err != nil {
		t.Fatalf("Commit(%s): %v", message, err)
	}
	return h
}

func TestFetchIntoStoreBatchThenGetFallback(t *testing.T) {
	remoteStore := object.NewStore(t.TempDir())

	blobHash, err := remoteStore.WriteBlob(&object.Blob{Data: []byte("hello\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeHash, err := remoteStore.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Name: "README.md", Mode: object.TreeModeFile, Hash: blobHash},
	}})
	if err != nil {
		t.Fatal(err)
	}
	commitHash, err := remoteStore.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Author:    "Alice <alice@example.com>",
		Timestamp: 1700000000,
		Message:   "init",
	})
	if err != nil {
		t.Fatal(err)
	}

	commitType, commitData, err := remoteStore.Read(commitHash)
	if err != nil {
		t.Fatal(err)
	}
	treeType, treeData, err := remoteStore.Read(treeHash)
	if err != nil {
		t.Fatal(err)
	}
	blobType, blobData, err := remoteStore.Read(blobHash)
	if err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/twig/alice/repo/objects/batch":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"objects": []map[string]any{
					{"hash": string(commitHash), "type": string(commitType), "data": commitData},
					{"hash": string(treeHash), "type": string(treeType), "data": treeData},
				},
				"truncated": true,
			})
			return
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/twig/alice/repo/objects/"):
			h := object.Hash(path.Base(r.URL.Path))
			if h != blobHash {
				http.Error(w, "object not found", http.StatusNotFound)
				return
			}
			w.Header().Set("X-Object-Type", string(blobType))
			_, _ = w.Write(blobData)
			return
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL + "/twig/alice/repo")
	if err != nil {
		t.Fatal(err)
	}
	localStore := object.NewStore(t.TempDir())

	written, err := FetchIntoStore(context.Background(), client, localStore, []object.Hash{commitHash}, nil)
	if err != nil {
		t.Fatalf("FetchIntoStore: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}

	for _, h := range []object.Hash{commitHash, treeHash, blobHash} {
		if !localStore.Has(h) {
			t.Fatalf("missing expected object %s", h)
		}
	}
}

func TestFetchIntoStoreUsesMultipleBatchRounds(t *testing.T) {
	remoteStore := object.NewStore(t.TempDir())

	blobHash, err := remoteStore.WriteBlob(&object.Blob{Data: []byte("hello\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeHash, err := remoteStore.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Name: "README.md", Mode: object.TreeModeFile, Hash: blobHash},
	}})
	if err != nil {
		t.Fatal(err)
	}
	commitHash, err := remoteStore.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Author:    "Alice <alice@example.com>",
		Timestamp: 1700000000,
		Message:   "init",
	})
	if err != nil {
		t.Fatal(err)
	}

	commitType, commitData, err := remoteStore.Read(commitHash)
	if err != nil {
		t.Fatal(err)
	}
	treeType, treeData, err := remoteStore.Read(treeHash)
	if err != nil {
		t.Fatal(err)
	}
	blobType, blobData, err := remoteStore.Read(blobHash)
	if err != nil {
		t.Fatal(err)
	}

	batchCalls := 0
	getCalls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/twig/alice/repo/objects/batch":
			batchCalls++
			body, readErr := io.ReadAll(r.Body)
			if readErr != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			var req struct {
				Haves []string `json:"haves"`
			}
			_ = json.Unmarshal(body, &req)
			haveSet := make(map[string]struct{}, len(req.Haves))
			for _, h := range req.Haves {
				haveSet[strings.TrimSpace(h)] = struct{}{}
			}

			type obj struct {
				Hash string `json:"hash"`
				Type string `json:"type"`
				Data []byte `json:"data"`
			}
			resp := struct {
				Objects   []obj `json:"objects"`
				Truncated bool  `json:"truncated"`
			}{}

			_, hasCommit := haveSet[string(commitHash)]
			_, hasTree := haveSet[string(treeHash)]
			_, hasBlob := haveSet[string(blobHash)]

			switch {
			case !hasCommit:
				resp.Objects = append(resp.Objects, obj{Hash: string(commitHash), Type: string(commitType), Data: commitData})
				resp.Truncated = true
			case !hasTree:
				resp.Objects = append(resp.Objects, obj{Hash: string(treeHash), Type: string(treeType), Data: treeData})
				resp.Truncated = true
			case !hasBlob:
				resp.Objects = append(resp.Objects, obj{Hash: string(blobHash), Type: string(blobType), Data: blobData})
				resp.Truncated = false
			default:
				resp.Truncated = false
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
			return
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/twig/alice/repo/objects/"):
			getCalls++
			http.Error(w, "unexpected get", http.StatusInternalServerError)
			return
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL + "/twig/alice/repo")
	if err != nil {
		t.Fatal(err)
	}
	localStore := object.NewStore(t.TempDir())

	written, err := FetchIntoStore(context.Background(), client, localStore, []object.Hash{commitHash}, nil)
	if err != nil {
		t.Fatalf("FetchIntoStore: %v", err)
	}
	if written != 3 {
		t.Fatalf("written = %d, want 3", written)
	}
	if batchCalls < 3 {
		t.Fatalf("expected at least 3 batch rounds, got %d", batchCalls)
	}
	if getCalls != 0 {
		t.Fatalf("expected 0 GET fallback calls, got %d", getCalls)
	}
	for _, h := range []object.Hash{commitHash, treeHash, blobHash} {
		if !localStore.Has(h) {
			t.Fatalf("missing expected object %s", h)
		}
	}
}

func TestFetchIntoStoreRejectsHashMismatch(t *testing.T) {
	blobData := object.MarshalBlob(&object.Blob{Data: []byte("data")})
	blobHash := object.HashObject(object.TypeBlob, blobData)
	badHash := object.Hash(strings.Repeat("a", 64))
	if badHash == blobHash {
		t.Fatalf("test setup produced equal hashes")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/twig/alice/repo/objects/batch" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"objects": []map[string]any{
					{"hash": string(badHash), "type": string(object.TypeBlob), "data": blobData},
				},
				"truncated": false,
			})
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL + "/twig/alice/repo")
	if err != nil {
		t.Fatal(err)
	}

	localStore := object.NewStore(t.TempDir())
	_, err = FetchIntoStore(context.Background(), client, localStore, []object.Hash{blobHash}, nil)
	if err == nil {
		t.Fatalf("expected hash mismatch error")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch error, got %v", err)
	}
}

func TestCollectObjectsForPushStopsAtReachableRoots(t *testing.T) {
	store := object.NewStore(t.TempDir())

	blobA, err := store.WriteBlob(&object.Blob{Data: []byte("v1\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeA, err := store.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Name: "main.txt", Mode: object.TreeModeFile, Hash: blobA},
	}})
	if err != nil {
		t.Fatal(err)
	}
	commitA, err := store.WriteCommit(&object.CommitObj{
		TreeHash:  treeA,
		Author:    "Alice",
		Timestamp: 1700000000,
		Message:   "A",
	})
	if err != nil {
		t.Fatal(err)
	}

	blobB, err := store.WriteBlob(&object.Blob{Data: []byte("v2\n")})
	if err != nil {
		t.Fatal(err)
	}
	treeB, err := store.WriteTree(&object.TreeObj{Entries: []object.TreeEntry{
		{Name: "main.txt", Mode: object.TreeModeFile, Hash: blobB},
	}})
	if err != nil {
		t.Fatal(err)
	}
	commitB, err := store.WriteCommit(&object.CommitObj{
		TreeHash:  treeB,
		Parents:   []object.Hash{commitA},
		Author:    "Alice",
		Timestamp: 1700000001,
		Message:   "B",
	})
	if err != nil {
		t.Fatal(err)
	}

	objs, err := CollectObjectsForPush(store, []object.Hash{commitB}, []object.Hash{commitA})
	if err != nil {
		t.Fatalf("CollectObjectsForPush: %v", err)
	}

	got := make(map[object.Hash]struct{}, len(objs))
	for _, o := range objs {
		got[o.Hash] = struct{}{}
	}
	for _, h := range []object.Hash{commitB, treeB, blobB} {
		if _, ok := got[h]; !ok {
			t.Fatalf("missing expected object %s", h)
		}
	}
	for _, h := range []object.Hash{commitA, treeA, blobA} {
		if _, ok := got[h]; ok {
			t.Fatalf("unexpected object from stop root history: %s", h)
		}
	}
}

func TestPushRefNames(t *testing.T) {
	tests := []struct {
		in         string
		wantLocal  string
		wantRemote string
		shouldFail bool
	}{
		{in: "main", wantLocal: "refs/heads/main", wantRemote: "heads/main"},
		{in: "refs/heads/dev", wantLocal: "refs/heads/dev", wantRemote: "heads/dev"},
		{in: "refs/tags/v1.0.0", wantLocal: "refs/tags/v1.0.0", wantRemote: "tags/v1.0.0"},
		{in: "refs/remotes/origin/main", shouldFail: true},
		{in: "refs/heads/", shouldFail: true},
		{in: "", shouldFail: true},
	}
	for _, tc := range tests {
		local, remoteRef, err := pushRefNames(tc.in)
		if tc.shouldFail {
			if err == nil {
				t.Errorf("pushRefNames(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("pushRefNames(%q): %v", tc.in, err)
			continue
		}
		if local != tc.wantLocal || remoteRef != tc.wantRemote {
			t.Errorf("pushRefNames(%q) = (%q, %q), want (%q, %q)",
				tc.in, local, remoteRef, tc.wantLocal, tc.wantRemote)
		}
	}
}

func TestPushCreatesBranchOnEmptyRemote(t *testing.T) {
	local := initSyncRepo(t)
	c1 := commitSyncFile(t, local, "a.txt", "one\n", "first")

	remote := initSyncRepo(t)
	ft := NewFileTransport(remote)

	res, err := Push(context.Background(), ft, local, "origin", "main", false)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !res.Created {
		t.Error("expected Created")
	}
	if res.UpToDate {
		t.Error("unexpected UpToDate")
	}
	if res.Uploaded != 3 {
		t.Errorf("Uploaded = %d, want 3", res.Uploaded)
	}
	if res.RefName != "heads/main" || res.NewHash != c1 || res.OldHash != "" {
		t.Errorf("result = %+v", res)
	}

	got, err := remote.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatalf("remote ResolveRef: %v", err)
	}
	if got != c1 {
		t.Errorf("remote main = %s, want %s", got, c1)
	}
	if !remote.Store.Has(c1) {
		t.Error("remote store missing pushed commit")
	}

	tracking, err := local.ResolveRef("refs/remotes/origin/heads/main")
	if err != nil {
		t.Fatalf("tracking ResolveRef: %v", err)
	}
	if tracking != c1 {
		t.Errorf("tracking ref = %s, want %s", tracking, c1)
	}
}

func TestPushUpToDate(t *testing.T) {
	local := initSyncRepo(t)
	commitSyncFile(t, local, "a.txt", "one\n", "first")

	remote := initSyncRepo(t)
	ft := NewFileTransport(remote)

	if _, err := Push(context.Background(), ft, local, "origin", "main", false); err != nil {
		t.Fatalf("first Push: %v", err)
	}
	res, err := Push(context.Background(), ft, local, "origin", "main", false)
	if err != nil {
		t.Fatalf("second Push: %v", err)
	}
	if !res.UpToDate {
		t.Error("expected UpToDate")
	}
	if res.Uploaded != 0 {
		t.Errorf("Uploaded = %d, want 0", res.Uploaded)
	}
}

func TestPushUploadsOnlyNewObjects(t *testing.T) {
	local := initSyncRepo(t)
	c1 := commitSyncFile(t, local, "a.txt", "one\n", "first")

	remote := initSyncRepo(t)
	ft := NewFileTransport(remote)

	if _, err := Push(context.Background(), ft, local, "origin", "main", false); err != nil {
		t.Fatalf("first Push: %v", err)
	}

	c2 := commitSyncFile(t, local, "a.txt", "two\n", "second")

	res, err := Push(context.Background(), ft, local, "origin", "main", false)
	if err != nil {
		t.Fatalf("second Push: %v", err)
	}
	if res.Created {
		t.Error("unexpected Created")
	}
	if res.Uploaded != 3 {
		t.Errorf("Uploaded = %d, want 3 (new commit, tree, blob only)", res.Uploaded)
	}
	if res.OldHash != c1 || res.NewHash != c2 {
		t.Errorf("result hashes = old %s new %s, want old %s new %s", res.OldHash, res.NewHash, c1, c2)
	}

	got, err := remote.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatal(err)
	}
	if got != c2 {
		t.Errorf("remote main = %s, want %s", got, c2)
	}
}

// setupDivergedRepos pushes one commit to the remote, then advances both
// sides independently so their branch tips share only that first commit.
func setupDivergedRepos(t *testing.T) (local, remote *repo.Repo, ft *FileTransport, localTip, remoteTip object.Hash) {
	t.Helper()
	local = initSyncRepo(t)
	commitSyncFile(t, local, "a.txt", "one\n", "first")

	remote = initSyncRepo(t)
	ft = NewFileTransport(remote)
	if _, err := Push(context.Background(), ft, local, "origin", "main", false); err != nil {
		t.Fatalf("seed Push: %v", err)
	}

	remoteTip = commitSyncFile(t, remote, "b.txt", "theirs\n", "remote change")
	localTip = commitSyncFile(t, local, "a.txt", "two\n", "local change")
	return local, remote, ft, localTip, remoteTip
}

func TestPushRejectsNonFastForward(t *testing.T) {
	local, remote, ft, _, remoteTip := setupDivergedRepos(t)

	_, err := Push(context.Background(), ft, local, "origin", "main", false)
	if !errors.Is(err, ErrNonFastForward) {
		t.Fatalf("expected ErrNonFastForward, got %v", err)
	}

	got, err := remote.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatal(err)
	}
	if got != remoteTip {
		t.Errorf("remote main moved to %s, want unchanged %s", got, remoteTip)
	}

	// The safety check fetches the unknown remote tip before deciding.
	if !local.Store.Has(remoteTip) {
		t.Error("expected remote tip in local store after rejected push")
	}
}

func TestPushForceOverridesDivergence(t *testing.T) {
	local, remote, ft, localTip, remoteTip := setupDivergedRepos(t)

	res, err := Push(context.Background(), ft, local, "origin", "main", true)
	if err != nil {
		t.Fatalf("force Push: %v", err)
	}
	if res.OldHash != remoteTip || res.NewHash != localTip {
		t.Errorf("result hashes = old %s new %s, want old %s new %s", res.OldHash, res.NewHash, remoteTip, localTip)
	}

	got, err := remote.ResolveRef("refs/heads/main")
	if err != nil {
		t.Fatal(err)
	}
	if got != localTip {
		t.Errorf("remote main = %s, want forced %s", got, localTip)
	}
}

func TestPushMissingLocalRef(t *testing.T) {
	local := initSyncRepo(t)
	commitSyncFile(t, local, "a.txt", "one\n", "first")

	remote := initSyncRepo(t)
	ft := NewFileTransport(remote)

	_, err := Push(context.Background(), ft, local, "origin", "feature", false)
	if !errors.Is(err, ErrNoSuchLocalRef) {
		t.Fatalf("expected ErrNoSuchLocalRef, got %v", err)
	}
}

func TestPushTagLifecycle(t *testing.T) {
	local := initSyncRepo(t)
	c1 := commitSyncFile(t, local, "a.txt", "one\n", "first")
	if err := local.CreateTag("v1.0.0", c1, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	remote := initSyncRepo(t)
	ft := NewFileTransport(remote)
	ctx := context.Background()

	res, err := Push(ctx, ft, local, "origin", "refs/tags/v1.0.0", false)
	if err != nil {
		t.Fatalf("tag Push: %v", err)
	}
	if !res.Created || res.RefName != "tags/v1.0.0" {
		t.Errorf("result = %+v", res)
	}
	got, err := remote.ResolveRef("refs/tags/v1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if got != c1 {
		t.Errorf("remote tag = %s, want %s", got, c1)
	}

	res, err = Push(ctx, ft, local, "origin", "refs/tags/v1.0.0", false)
	if err != nil {
		t.Fatalf("repeat tag Push: %v", err)
	}
	if !res.UpToDate {
		t.Error("expected UpToDate on unchanged tag")
	}

	c2 := commitSyncFile(t, local, "a.txt", "two\n", "second")
	if err := local.CreateTag("v1.0.0", c2, true); err != nil {
		t.Fatalf("move tag: %v", err)
	}

	_, err = Push(ctx, ft, local, "origin", "refs/tags/v1.0.0", false)
	if !errors.Is(err, ErrNonFastForward) {
		t.Fatalf("expected ErrNonFastForward for moved tag, got %v", err)
	}
	if got, _ := remote.ResolveRef("refs/tags/v1.0.0"); got != c1 {
		t.Errorf("remote tag moved to %s, want unchanged %s", got, c1)
	}

	res, err = Push(ctx, ft, local, "origin", "refs/tags/v1.0.0", true)
	if err != nil {
		t.Fatalf("forced tag Push: %v", err)
	}
	if res.NewHash != c2 {
		t.Errorf("forced tag result = %+v", res)
	}
	if got, _ := remote.ResolveRef("refs/tags/v1.0.0"); got != c2 {
		t.Errorf("remote tag = %s, want %s", got, c2)
	}
}

func TestFetchRoundTrip(t *testing.T) {
	remote := initSyncRepo(t)
	c1 := commitSyncFile(t, remote, "a.txt", "one\n", "first")
	c2 := commitSyncFile(t, remote, "a.txt", "two\n", "second")
	if err := remote.CreateTag("v1.0.0", c1, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	local := initSyncRepo(t)
	ft := NewFileTransport(remote)
	ctx := context.Background()

	res, err := Fetch(ctx, ft, local, "origin")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Refs) != 2 {
		t.Fatalf("Refs = %v, want heads/main and tags/v1.0.0", res.Refs)
	}
	if res.Refs["heads/main"] != c2 || res.Refs["tags/v1.0.0"] != c1 {
		t.Fatalf("Refs = %v", res.Refs)
	}
	if res.Written != 6 {
		t.Errorf("Written = %d, want 6 (two commits, trees, blobs)", res.Written)
	}
	for _, h := range []object.Hash{c1, c2} {
		if !local.Store.Has(h) {
			t.Errorf("local store missing fetched commit %s", h)
		}
	}

	branch, err := local.ResolveRef("refs/remotes/origin/heads/main")
	if err != nil {
		t.Fatalf("tracking branch: %v", err)
	}
	if branch != c2 {
		t.Errorf("tracking branch = %s, want %s", branch, c2)
	}
	tag, err := local.ResolveRef("refs/remotes/origin/tags/v1.0.0")
	if err != nil {
		t.Fatalf("tracking tag: %v", err)
	}
	if tag != c1 {
		t.Errorf("tracking tag = %s, want %s", tag, c1)
	}

	res, err = Fetch(ctx, ft, local, "origin")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if res.Written != 0 {
		t.Errorf("second fetch Written = %d, want 0", res.Written)
	}
}

func TestFetchRequiresRemoteName(t *testing.T) {
	local := initSyncRepo(t)
	ft := NewFileTransport(initSyncRepo(t))
	if _, err := Fetch(context.Background(), ft, local, "  "); err == nil {
		t.Fatal("expected error for missing remote name")
	}
}

func TestUniqueHashes(t *testing.T) {
	in := []object.Hash{"", "a", "b", "a", "  c  ", "b"}
	got := uniqueHashes(in)
	want := []object.Hash{"a", "b", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("uniqueHashes = %v, want %v", got, want)
	}
}
