// Package undoredo implements the version-cursor arithmetic behind board
// undo/redo, including the symmetric commit map that glues branches created
// by editing after an undo onto the prior linear history.
package undoredo

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvariantViolation indicates the commit map lost symmetry or holds a self
// pair, or the cursor fell below MinVersion. It is fatal and indicates a bug.
var ErrInvariantViolation = errors.New("invariant violation")

// Strategy is a pure value object: a cursor into a board's version stream plus
// the symmetric commit map. MinVersion is fixed at construction to the board's
// first mutable version; the cursor never drops below it.
//
// UndoCommits holds both directions of every pair: (a,b) present implies (b,a)
// present, and UndoCommits[UndoCommits[k]] == k for every key.
type Strategy struct {
	MinVersion    int64           `json:"min_version"`
	VersionCursor int64           `json:"version_cursor"`
	UndoCommits   map[int64]int64 `json:"undo_commits"`
}

func New(minVersion int64) Strategy {
	return Strategy{
		MinVersion:    minVersion,
		VersionCursor: minVersion,
		UndoCommits:   map[int64]int64{},
	}
}

func (s *Strategy) IncrementVersionCursor() {
	s.VersionCursor++
}

// Undo steps the cursor back one version, clamped at MinVersion. If that lands
// on the commit end of a committed branch, the cursor jumps to the pair's
// reference, the pre-branch past.
func (s *Strategy) Undo() {
	s.VersionCursor--
	if s.VersionCursor < s.MinVersion {
		s.VersionCursor = s.MinVersion
	}
	if reference, ok := s.UndoCommits[s.VersionCursor]; ok && reference < s.VersionCursor {
		s.VersionCursor = reference
	}
}

// Redo is the mirror of Undo: from a commit reference it first jumps to the
// commit end, then steps forward one version, clamped at maximumVersion.
func (s *Strategy) Redo(maximumVersion int64) {
	if commit, ok := s.UndoCommits[s.VersionCursor]; ok && commit > s.VersionCursor {
		s.VersionCursor = commit
	}
	s.VersionCursor++
	if s.VersionCursor > maximumVersion {
		s.VersionCursor = maximumVersion
	}
}

// Commit records that the user resumed editing from a past cursor position.
// Endpoints are canonicalised against existing pairs so chained commits extend
// the outermost arc, then the pair is force-inserted and contained arcs are
// swept out. The cursor lands on commitVersion, the new tip.
func (s *Strategy) Commit(commitVersion, referenceVersion int64) {
	if mate, ok := s.UndoCommits[referenceVersion]; ok && mate < referenceVersion {
		referenceVersion = mate
	}
	if mate, ok := s.UndoCommits[commitVersion]; ok && mate > commitVersion {
		commitVersion = mate
	}
	s.forcePut(commitVersion, referenceVersion)
	s.cleanUndoCommits()
	s.VersionCursor = commitVersion
}

// forcePut inserts both directions of the pair, first removing any existing
// pair involving either endpoint.
func (s *Strategy) forcePut(a, b int64) {
	if old, ok := s.UndoCommits[a]; ok {
		delete(s.UndoCommits, old)
	}
	if old, ok := s.UndoCommits[b]; ok {
		delete(s.UndoCommits, old)
	}
	delete(s.UndoCommits, a)
	delete(s.UndoCommits, b)
	s.UndoCommits[a] = b
	s.UndoCommits[b] = a
}

// cleanUndoCommits keeps only maximal arcs: a pair strictly contained in
// another is redundant, since undo/redo jumps should follow the outermost
// committed branch.
func (s *Strategy) cleanUndoCommits() {
	type pair struct{ left, right int64 }
	seen := map[pair]struct{}{}
	pairs := make([]pair, 0, len(s.UndoCommits)/2)
	for k, v := range s.UndoCommits {
		p := pair{left: min(k, v), right: max(k, v)}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].left != pairs[j].left {
			return pairs[i].left < pairs[j].left
		}
		return pairs[i].right > pairs[j].right
	})

	kept := make([]pair, 0, len(pairs))
	for _, p := range pairs {
		contained := false
		for _, q := range kept {
			if q.left <= p.left && p.right <= q.right {
				contained = true
				break
			}
		}
		if contained {
			continue
		}
		kept = append(kept, p)
	}

	rebuilt := make(map[int64]int64, len(kept)*2)
	for _, p := range kept {
		rebuilt[p.left] = p.right
		rebuilt[p.right] = p.left
	}
	s.UndoCommits = rebuilt
}

// Validate checks the structural invariants of the commit map.
func (s *Strategy) Validate() error {
	if s.VersionCursor < s.MinVersion {
		return fmt.Errorf("%w: cursor %d below min version %d", ErrInvariantViolation, s.VersionCursor, s.MinVersion)
	}
	for k, v := range s.UndoCommits {
		if k == v {
			return fmt.Errorf("%w: self pair at %d", ErrInvariantViolation, k)
		}
		if mate, ok := s.UndoCommits[v]; !ok || mate != k {
			return fmt.Errorf("%w: asymmetric pair (%d,%d)", ErrInvariantViolation, k, v)
		}
	}
	return nil
}

// Clone deep-copies the strategy so aggregate snapshots never alias live state.
func (s Strategy) Clone() Strategy {
	out := s
	out.UndoCommits = make(map[int64]int64, len(s.UndoCommits))
	for k, v := range s.UndoCommits {
		out.UndoCommits[k] = v
	}
	return out
}
