package batch

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/organoid-counter/internal/config"
	"github.com/ironsheep/organoid-counter/internal/imaging"
)

// Item is one input file: its group, its name within the group, and its raw
// bytes.
type Item struct {
	Group    string
	Filename string
	Path     string
	Data     []byte
}

// Name identifies the item in logs and prompts.
func (it Item) Name() string {
	if it.Group == "" {
		return it.Filename
	}
	return it.Group + "/" + it.Filename
}

// Source yields the images of a batch. Every call to Items starts a fresh,
// finite pass over the same inputs in the same order.
type Source interface {
	Items() iter.Seq2[Item, error]
}

// Checker is implemented by sources that can confirm they are readable
// before a batch creates any output.
type Checker interface {
	Check() error
}

// DirSource reads a directory laid out the way the microscope exports are
// organized: each subdirectory of Root is a group, and its files are the
// group's images. A Root with no subdirectories is a single group named "".
//
// Groups and files are visited in name order. Hidden entries are ignored.
// When Root has subdirectories, files directly in Root are not visited.
type DirSource struct {
	Root string
}

// Items implements Source. File contents are read lazily, one item at a
// time. A file that cannot be read is yielded with an error wrapping
// imaging.ErrImageLoad and iteration continues.
func (s DirSource) Items() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		groups, err := s.groups()
		if err != nil {
			yield(Item{}, err)
			return
		}

		for _, group := range groups {
			dir := filepath.Join(s.Root, group)
			entries, err := os.ReadDir(dir)
			if err != nil {
				if !yield(Item{Group: group}, fmt.Errorf("failed to list %s: %w", dir, err)) {
					return
				}
				continue
			}

			for _, e := range entries {
				if e.IsDir() || hidden(e.Name()) {
					continue
				}
				item := Item{Group: group, Filename: e.Name(), Path: filepath.Join(dir, e.Name())}
				data, err := os.ReadFile(item.Path)
				if err != nil {
					err = fmt.Errorf("%w: %v", imaging.ErrImageLoad, err)
				} else {
					item.Data = data
				}
				if !yield(item, err) {
					return
				}
			}
		}
	}
}

// Check implements Checker. A missing or non-directory Root is a
// configuration error.
func (s DirSource) Check() error {
	info, err := os.Stat(s.Root)
	if err != nil {
		return fmt.Errorf("%w: input directory: %v", config.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: input %s is not a directory", config.ErrInvalidConfig, s.Root)
	}
	return nil
}

func (s DirSource) groups() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to list input directory: %w", err)
	}
	var groups []string
	for _, e := range entries {
		if e.IsDir() && !hidden(e.Name()) {
			groups = append(groups, e.Name())
		}
	}
	if len(groups) == 0 {
		groups = []string{""}
	}
	return groups, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// SliceSource serves a fixed list of items, for callers that already hold
// the images in memory.
type SliceSource []Item

// Items implements Source.
func (s SliceSource) Items() iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range s {
			if !yield(it, nil) {
				return
			}
		}
	}
}
