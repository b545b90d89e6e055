package jsonfile

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"golang.org/x/exp/slices"
)

// MatchedNumberedFile is a matched numbered file.
type MatchedNumberedFile struct {
	Filename string
	ID       uint64
}

func cmpMatchedNumberedFiles(a MatchedNumberedFile, id uint64) int {
	return int(a.ID - id)
}

// NumberedFilePattern matches the sequentially numbered files in a dir,
// such as the archived audio segments of a session. Numbers are matched
// with or without zero padding, so a dir survives a change in padding
// width.
type NumberedFilePattern struct {
	re      *regexp.Regexp
	nameFmt string
	dir     bool
}

func (nfp NumberedFilePattern) walkFiles(dir string, cb func(string, uint64)) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, e := range entries {
		entryIsDir := e.Type().IsDir()
		if nfp.dir != entryIsDir {
			continue
		}

		name := e.Name()
		match := nfp.re.FindStringSubmatch(name)
		if len(match) < 2 {
			continue
		}

		i, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			continue
		}

		cb(name, i)
	}
	return nil
}

// MatchFiles returns the files that match the pattern in the given dir,
// ordered by number.
func (nfp NumberedFilePattern) MatchFiles(dir string) ([]MatchedNumberedFile, error) {
	var res []MatchedNumberedFile
	err := nfp.walkFiles(dir, func(name string, i uint64) {
		idx, found := slices.BinarySearchFunc(res, i, cmpMatchedNumberedFiles)
		if found {
			res[idx].Filename = name
		} else {
			res = slices.Insert(res, idx, MatchedNumberedFile{ID: i, Filename: name})
		}
	})
	return res, err
}

// Last returns the number and filename of the file with highest number
// in the dir.
//
// If no file is found, the returned filename is empty.
func (nfp NumberedFilePattern) Last(dir string) (MatchedNumberedFile, error) {
	var res MatchedNumberedFile
	err := nfp.walkFiles(dir, func(name string, i uint64) {
		if i >= res.ID {
			res.ID = i
			res.Filename = name
		}
	})
	return res, err
}

// FilenameFor returns the filename for a given number.
func (nfp NumberedFilePattern) FilenameFor(i uint64) string {
	return fmt.Sprintf(nfp.nameFmt, i)
}

// MakeDecimalFilePattern creates a numbered file pattern with decimal
// numbers zero padded to width digits. It panics if prefix+suffix cannot
// be made into a valid regexp.
func MakeDecimalFilePattern(prefix, suffix string, width int, isDir bool) NumberedFilePattern {
	pattern := "^" + prefix + `([0-9]+)` + suffix + "$"
	re, err := regexp.Compile(pattern)
	if err != nil {
		panic(err)
	}
	nameFmt := fmt.Sprintf("%s%%0%dd%s", prefix, width, suffix)
	return NumberedFilePattern{re: re, nameFmt: nameFmt, dir: isDir}
}
