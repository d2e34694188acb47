package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fruitsalade/docarchive/internal/archive"
)

const helpText = `commands:
  list                 show the current page
  search [term]        filter by file name (empty clears)
  dir <name|all>       filter by directory
  dirs                 list directories
  type <all|doc|image> filter by type
  hide <on|off>        hide files that have an analysis
  page <n>, next, prev move between pages
  select <n|path>      toggle selection of item n on this page
  toggle-type <n|path> switch item between doc and image
  open <n|path>        print the analysis link for an item
  preview <n|path|off> render the first page of an item to a PNG file
  quit                 exit
`

func (repl *REPL) CommandHelp() error {
	_, err := fmt.Fprint(repl.out, helpText)
	return err
}

func (repl *REPL) CommandList() error {
	v := repl.browser.View()
	if v.Loading {
		fmt.Fprintln(repl.out, "loading...")
		return nil
	}
	if v.TotalVisible == 0 {
		fmt.Fprintln(repl.out, "no documents available")
		return nil
	}

	fmt.Fprintf(repl.out, "page %d/%d (%d documents)\n", v.Page, v.TotalPages, v.TotalVisible)
	for i, it := range v.Items {
		sel := " "
		if it.IsSelected {
			sel = "x"
		}
		mark := ""
		if it.HasAnalysis {
			mark = "  [analysis]"
		}
		fmt.Fprintf(repl.out, "%3d [%s] %-5s %-40s %-20s %10s%s\n",
			i+1, sel, it.FileType, it.Name, it.Directory, it.SizeLabel, mark)
	}
	return nil
}

func (repl *REPL) CommandSearch(term string) error {
	repl.browser.SetSearchTerm(term)
	return repl.CommandList()
}

func (repl *REPL) CommandDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: dir needs a directory or %q", ErrBadArgument, archive.All)
	}
	repl.browser.SetDirectoryFilter(dir)
	return repl.CommandList()
}

func (repl *REPL) CommandDirs() error {
	for _, d := range repl.browser.View().DirectoryOptions {
		fmt.Fprintln(repl.out, d)
	}
	return nil
}

func (repl *REPL) CommandType(t string) error {
	if err := repl.browser.SetTypeFilter(t); err != nil {
		return err
	}
	return repl.CommandList()
}

func (repl *REPL) CommandHide(arg string) error {
	switch strings.ToLower(arg) {
	case "on", "true", "yes":
		repl.browser.SetHideCompleted(true)
	case "off", "false", "no":
		repl.browser.SetHideCompleted(false)
	default:
		return fmt.Errorf("%w: hide takes on or off", ErrBadArgument)
	}
	return repl.CommandList()
}

func (repl *REPL) CommandPage(arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return fmt.Errorf("%w: page number", ErrBadArgument)
	}
	repl.browser.SetPage(n)
	return repl.CommandList()
}

// CommandStep moves delta pages, staying within the available pages.
func (repl *REPL) CommandStep(delta int) error {
	v := repl.browser.View()
	n := v.Page + delta
	if n > v.TotalPages {
		n = v.TotalPages
	}
	if n < 1 {
		n = 1
	}
	repl.browser.SetPage(n)
	return repl.CommandList()
}

func (repl *REPL) CommandSelect(arg string) error {
	path, err := repl.resolve(arg)
	if err != nil {
		return err
	}
	m := repl.browser.ToggleSelection(path)
	state := "deselected"
	if m.IsSelected {
		state = "selected"
	}
	fmt.Fprintf(repl.out, "%s %s\n", state, path)
	return nil
}

func (repl *REPL) CommandToggleType(arg string) error {
	path, err := repl.resolve(arg)
	if err != nil {
		return err
	}
	m := repl.browser.ToggleType(path)
	fmt.Fprintf(repl.out, "%s is now %s\n", path, m.FileType)
	return nil
}

func (repl *REPL) CommandOpen(arg string) error {
	path, err := repl.resolve(arg)
	if err != nil {
		return err
	}
	target, err := repl.browser.OpenAnalysis(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(repl.out, target)
	return nil
}

// CommandPreview starts a preview of an item. The previewer reports the
// finished file on its own; a later preview or "preview off" cancels it.
func (repl *REPL) CommandPreview(arg string) error {
	if repl.previewer == nil {
		return errors.New("previews are not available")
	}
	if arg == "off" {
		repl.previewer.Dismiss()
		return nil
	}
	path, err := repl.resolve(arg)
	if err != nil {
		return err
	}
	repl.previewer.Show(path)
	fmt.Fprintf(repl.out, "rendering preview of %s\n", path)
	return nil
}

// resolve maps an item number on the current page, or a literal path, to a
// manifest path.
func (repl *REPL) resolve(arg string) (string, error) {
	if arg == "" {
		return "", fmt.Errorf("%w: item number or path required", ErrBadArgument)
	}
	if strings.HasPrefix(arg, "/") {
		return arg, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadArgument, arg)
	}
	items := repl.browser.View().Items
	if n < 1 || n > len(items) {
		return "", fmt.Errorf("%w: no item %d on this page", ErrBadArgument, n)
	}
	return items[n-1].Path, nil
}
