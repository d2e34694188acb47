package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ergochat/readline"

	"github.com/fruitsalade/docarchive/internal/archive"
	"github.com/fruitsalade/docarchive/internal/preview"
)

const (
	promptReady   = "docarchive> "
	promptLoading = "docarchive (loading)> "
)

// REPL drives an archive.Browser from a terminal.
type REPL struct {
	browser   *archive.Browser
	previewer *preview.Previewer
	out       io.Writer
	rl        *readline.Instance
}

var ErrBadArgument = errors.New("bad argument")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("list"),
	readline.PcItem("search"),
	readline.PcItem("dir"),
	readline.PcItem("dirs"),
	readline.PcItem("type",
		readline.PcItem(archive.All),
		readline.PcItem("doc"),
		readline.PcItem("image"),
	),
	readline.PcItem("hide",
		readline.PcItem("on"),
		readline.PcItem("off"),
	),

	readline.PcItem("page"),
	readline.PcItem("next"),
	readline.PcItem("prev"),

	readline.PcItem("select"),
	readline.PcItem("toggle-type"),
	readline.PcItem("open"),
	readline.PcItem("preview",
		readline.PcItem("off"),
	),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// Open starts the line editor.
func (repl *REPL) Open(historyFile string) (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          promptLoading,
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

// Close stops the line editor.
func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// SetReady switches the prompt once the manifest has loaded.
func (repl *REPL) SetReady() {
	if repl.rl != nil {
		repl.rl.SetPrompt(promptReady)
	}
}

// REPL reads and executes one line. It returns io.EOF on quit.
func (repl *REPL) REPL() error {
	line, err := lineOrExit(repl.rl.Readline())
	if err != nil {
		return err
	}
	return repl.Execute(line)
}

// lineOrExit maps Ctrl-C: on a partly typed line it discards the line, on an
// empty line it exits like Ctrl-D.
func lineOrExit(line string, err error) (string, error) {
	if errors.Is(err, readline.ErrInterrupt) {
		if len(line) != 0 {
			return "", nil
		}
		return "", io.EOF
	}
	return line, err
}

// Execute runs one command line.
func (repl *REPL) Execute(line string) error {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "help", "?":
		return repl.CommandHelp()
	case "list", "ls":
		return repl.CommandList()
	case "search":
		return repl.CommandSearch(arg)
	case "dir":
		return repl.CommandDir(arg)
	case "dirs":
		return repl.CommandDirs()
	case "type":
		return repl.CommandType(arg)
	case "hide":
		return repl.CommandHide(arg)
	case "page":
		return repl.CommandPage(arg)
	case "next":
		return repl.CommandStep(1)
	case "prev":
		return repl.CommandStep(-1)
	case "select":
		return repl.CommandSelect(arg)
	case "toggle-type":
		return repl.CommandToggleType(arg)
	case "open":
		return repl.CommandOpen(arg)
	case "preview":
		return repl.CommandPreview(arg)
	case "exit", "quit":
		return io.EOF
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
}
