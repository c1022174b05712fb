package repo

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/odvcencio/twig/pkg/object"
)

// ErrNoCommonAncestor is returned when two commits share no history.
var ErrNoCommonAncestor = errors.New("no common ancestor")

const maxGraphWalkSteps = 1_000_000

// graphWalkStepsLimit allows tests to tighten the safety limit without
// affecting the production default.
var graphWalkStepsLimit = maxGraphWalkSteps

// graphStepsLimit returns the effective walk limit. Overrides are clamped to
// the hard maximum, and non-positive values fall back to it.
func graphStepsLimit() int {
	limit := graphWalkStepsLimit
	if limit <= 0 || limit > maxGraphWalkSteps {
		return maxGraphWalkSteps
	}
	return limit
}

func graphStepsLimitError(limit int) error {
	return fmt.Errorf("commit walk exceeded maximum steps (%d)", limit)
}

// CommitWalker iterates commits reachable from a set of starting points,
// newest first, visiting each commit once. Parents are discovered lazily as
// commits are yielded, so a bounded walk never loads the whole graph.
//
// Usage follows the scanner pattern:
//
//	w := r.Ancestors(head)
//	for w.Next() {
//		c := w.Commit()
//		...
//	}
//	if err := w.Err(); err != nil { ... }
type CommitWalker struct {
	r       *Repo
	queue   ancestorMaxHeap
	visited map[object.Hash]struct{}

	currentHash object.Hash
	current     *object.CommitObj
	err         error
	steps       int
}

// Ancestors returns a walker over the given commits and everything reachable
// from them through parent links, including second parents of merges.
func (r *Repo) Ancestors(starts ...object.Hash) *CommitWalker {
	w := &CommitWalker{r: r, visited: make(map[object.Hash]struct{})}
	heap.Init(&w.queue)
	for _, s := range starts {
		w.enqueue(s)
	}
	return w
}

func (w *CommitWalker) enqueue(h object.Hash) {
	if w.err != nil || h == "" {
		return
	}
	if _, seen := w.visited[h]; seen {
		return
	}
	c, err := w.r.Store.ReadCommit(h)
	if err != nil {
		w.err = fmt.Errorf("walk commits: %w", err)
		return
	}
	w.visited[h] = struct{}{}
	heap.Push(&w.queue, ancestorQueueItem{hash: h, commit: c})
}

// Next advances to the next commit. It returns false when the walk is
// exhausted or has failed; check Err afterwards.
func (w *CommitWalker) Next() bool {
	if w.err != nil || w.queue.Len() == 0 {
		w.current = nil
		w.currentHash = ""
		return false
	}

	w.steps++
	if limit := graphStepsLimit(); w.steps > limit {
		w.err = graphStepsLimitError(limit)
		return false
	}

	item := heap.Pop(&w.queue).(ancestorQueueItem)
	w.currentHash = item.hash
	w.current = item.commit
	for _, p := range item.commit.Parents {
		w.enqueue(p)
	}
	return true
}

// Hash returns the hash of the commit produced by the last call to Next.
func (w *CommitWalker) Hash() object.Hash { return w.currentHash }

// Commit returns the commit produced by the last call to Next.
func (w *CommitWalker) Commit() *object.CommitObj { return w.current }

// Err returns the first error encountered during the walk.
func (w *CommitWalker) Err() error { return w.err }

// IsAncestor reports whether ancestor is reachable from descendant through
// parent links. A commit is considered its own ancestor.
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	if ancestor == descendant {
		return true, nil
	}

	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []object.Hash{descendant}
	steps := 0

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		steps++
		if limit := graphStepsLimit(); steps > limit {
			return false, fmt.Errorf("is ancestor: %w", graphStepsLimitError(limit))
		}

		if cur == ancestor {
			return true, nil
		}

		commit, err := r.Store.ReadCommit(cur)
		if err != nil {
			return false, fmt.Errorf("is ancestor: %w", err)
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, p)
		}
	}

	return false, nil
}

// MergeBase finds the common ancestor of two commits by walking both
// histories breadth-first in lockstep, alternating one step per side. The
// first commit reached by both walks wins; the alternation makes that
// choice deterministic. Disjoint histories report ErrNoCommonAncestor.
func (r *Repo) MergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", fmt.Errorf("merge base: %w", ErrNoCommonAncestor)
	}
	if a == b {
		return a, nil
	}

	visitedA := map[object.Hash]struct{}{a: {}}
	visitedB := map[object.Hash]struct{}{b: {}}
	queueA := []object.Hash{a}
	queueB := []object.Hash{b}
	steps := 0

	for len(queueA) > 0 || len(queueB) > 0 {
		base, found, err := r.mergeBaseStep(&queueA, visitedA, visitedB, &steps)
		if err != nil {
			return "", err
		}
		if found {
			return base, nil
		}

		base, found, err = r.mergeBaseStep(&queueB, visitedB, visitedA, &steps)
		if err != nil {
			return "", err
		}
		if found {
			return base, nil
		}
	}

	return "", fmt.Errorf("merge base: %w", ErrNoCommonAncestor)
}

// mergeBaseStep dequeues one commit from own's frontier. If the other side
// has already seen it, it is the merge base.
func (r *Repo) mergeBaseStep(queue *[]object.Hash, own, other map[object.Hash]struct{}, steps *int) (object.Hash, bool, error) {
	if len(*queue) == 0 {
		return "", false, nil
	}

	cur := (*queue)[0]
	*queue = (*queue)[1:]

	*steps++
	if limit := graphStepsLimit(); *steps > limit {
		return "", false, fmt.Errorf("merge base: %w", graphStepsLimitError(limit))
	}

	if _, seen := other[cur]; seen {
		return cur, true, nil
	}

	commit, err := r.Store.ReadCommit(cur)
	if err != nil {
		return "", false, fmt.Errorf("merge base: %w", err)
	}
	for _, p := range commit.Parents {
		if p == "" {
			continue
		}
		if _, seen := own[p]; seen {
			continue
		}
		own[p] = struct{}{}
		*queue = append(*queue, p)
	}

	return "", false, nil
}
