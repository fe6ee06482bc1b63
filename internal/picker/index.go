package picker

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
)

const (
	maxIndexedPaths = 50000
	maxQueryResults = 50
)

// Item is one picker result row, matching the editor's picker item
// shape (the goto/references field names, reused so the editor needs
// only one rendering path).
type Item struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Scanner runs the file-enumeration child for one picker_open,
// preferring fd and falling back to find when fd is not on PATH.
type Scanner struct {
	cmd    *exec.Cmd
	stdout *os.File
}

// StartScanner spawns the enumeration child rooted at cwd.
func StartScanner(cwd string) (*Scanner, error) {
	cmd := exec.Command("fd", "--type", "f", "--color", "never")
	cmd.Dir = cwd
	if f, err := startWithStdoutPipe(cmd); err == nil {
		return &Scanner{cmd: cmd, stdout: f}, nil
	}

	cmd = exec.Command("find", ".", "-type", "f", "-not", "-path", "*/.git/*")
	cmd.Dir = cwd
	f, err := startWithStdoutPipe(cmd)
	if err != nil {
		return nil, fmt.Errorf("start file scanner: %w", err)
	}
	return &Scanner{cmd: cmd, stdout: f}, nil
}

func startWithStdoutPipe(cmd *exec.Cmd) (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = w
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	w.Close()
	return r, nil
}

// Fd returns the scanner's stdout fd for reactor registration.
func (s *Scanner) Fd() uintptr {
	return s.stdout.Fd()
}

// Read reads freshly scanned path bytes; callers only call this after
// the reactor reports Fd readable.
func (s *Scanner) Read(buf []byte) (int, error) {
	return s.stdout.Read(buf)
}

// Stop kills the scanner child if still alive and releases its pipe.
func (s *Scanner) Stop() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	_ = s.cmd.Wait()
}

// Index holds the in-progress file list for one picker session plus
// the recent-files list supplied at picker_open.
type Index struct {
	paths  []string
	recent []string
	buf    []byte
	full   bool
}

// NewIndex returns an Index seeded with the given recent files.
func NewIndex(recent []string) *Index {
	return &Index{recent: append([]string(nil), recent...)}
}

// Feed appends scanner output and dups complete newline-delimited
// paths into the index, stopping at the 50 000-path cap.
func (idx *Index) Feed(data []byte) {
	if idx.full {
		return
	}
	idx.buf = append(idx.buf, data...)

	for {
		i := indexByte(idx.buf, '\n')
		if i < 0 {
			break
		}
		line := string(idx.buf[:i])
		idx.buf = idx.buf[i+1:]
		if line == "" {
			continue
		}
		idx.paths = append(idx.paths, line)
		if len(idx.paths) >= maxIndexedPaths {
			idx.full = true
			break
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Recent returns the recent-file list as picker items.
func (idx *Index) Recent() []Item {
	return toFileItems(idx.recent)
}

// QueryFiles scores every indexed path against query and returns the
// top 50 by descending score. An empty query returns the recent list.
func (idx *Index) QueryFiles(query string) []Item {
	if query == "" {
		return idx.Recent()
	}

	type scoredPath struct {
		path  string
		score int
	}
	matches := make([]scoredPath, 0, len(idx.paths))
	for _, p := range idx.paths {
		if s := Score(p, query); s > 0 {
			matches = append(matches, scoredPath{p, s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > maxQueryResults {
		matches = matches[:maxQueryResults]
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}
	return toFileItems(paths)
}

func toFileItems(paths []string) []Item {
	out := make([]Item, 0, len(paths))
	for _, p := range paths {
		out = append(out, Item{Label: p, File: p})
	}
	return out
}
