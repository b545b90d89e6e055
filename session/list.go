package session

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrNoSessions is returned by Latest when the root holds no sessions.
var ErrNoSessions = errors.New("no recorded sessions")

// List returns the ids of the sessions under root, newest first. Lexical
// order of ids is chronological order, so no stat calls are needed.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !idRE.MatchString(e.Name()) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Latest opens the most recently started session under root.
func Latest(root string) (*Session, error) {
	ids, err := List(root)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoSessions, root)
	}
	return Open(root, ids[0])
}
