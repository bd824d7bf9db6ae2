package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dargueta/retrodisk"
	"github.com/dargueta/retrodisk/builder"
	"github.com/dargueta/retrodisk/disks"
)

// completionContext says what the arguments of a shell command are, so the
// completer knows what to offer.
type completionContext int

const (
	completeNone completionContext = iota
	completeCommand
	completeSystem
	completeFormat
	completeSize
	completeLocal
	completeQueued
)

type shellCommand struct {
	Name        string
	Description string
	// MinArgs and MaxArgs bound the argument count. -1 means no limit.
	MinArgs int
	MaxArgs int
	Code    func(s *session, args []string) error
	Context completionContext
	Text    []string
}

var commandList map[string]*shellCommand

// session is the state of an interactive shell: the target chosen so far and
// the files queued for the next build.
type session struct {
	out    io.Writer
	system string
	format string
	size   string
	volume string
	files  []fileArg
}

func newSession(out io.Writer) *session {
	return &session{out: out}
}

func (s *session) prompt() string {
	if s.system == "" {
		return "retrodisk> "
	}
	target := s.system
	if s.format != "" {
		target += "/" + s.format
	}
	if s.size != "" {
		target += "/" + s.size
	}
	return target + "> "
}

// Run reads commands until the user quits or closes the input.
func (s *session) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     filepath.Join(os.TempDir(), ".retrodisk_history"),
		AutoComplete:    &shellCompleter{session: s},
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(s.out, "Type 'help' for a list of commands.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		quit, err := s.execute(line)
		if err != nil {
			fmt.Fprintf(s.out, "error: %s\n", err.Error())
		}
		if quit {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

var errQuit = fmt.Errorf("quit")

// execute runs one command line. It returns true when the session should end.
func (s *session) execute(line string) (bool, error) {
	words := splitLine(line)
	if len(words) == 0 {
		return false, nil
	}

	command, ok := commandList[strings.ToLower(words[0])]
	if !ok {
		return false, fmt.Errorf("unknown command %q, try 'help'", words[0])
	}

	args := words[1:]
	if command.MinArgs != -1 && len(args) < command.MinArgs {
		return false, fmt.Errorf("%s needs at least %d argument(s)", command.Name, command.MinArgs)
	}
	if command.MaxArgs != -1 && len(args) > command.MaxArgs {
		return false, fmt.Errorf("%s takes at most %d argument(s)", command.Name, command.MaxArgs)
	}

	err := command.Code(s, args)
	if err == errQuit {
		return true, nil
	}
	return false, err
}

// splitLine breaks a command line into words. Double quotes group words and a
// backslash escapes the next character.
func splitLine(line string) []string {
	var words []string
	var current strings.Builder
	inWord := false
	quoted := false
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
			inWord = true
		case r == '"':
			quoted = !quoted
			inWord = true
		case (r == ' ' || r == '\t') && !quoted:
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, current.String())
	}
	return words
}

////////////////////////////////////////////////////////////////////////////////
// Commands

func shellSystem(s *session, args []string) error {
	if _, err := disks.GetSystem(args[0]); err != nil {
		return err
	}
	s.system = args[0]

	// Keep the format and size only if the new system still supports them.
	if _, err := builder.Lookup(s.system, s.format); err != nil {
		s.format = ""
		s.size = ""
	} else if !contains(disks.SizesFor(s.system, s.format), s.size) {
		s.size = ""
	}
	return nil
}

func shellFormat(s *session, args []string) error {
	if s.system == "" {
		return fmt.Errorf("pick a system first")
	}
	strategy, err := builder.Lookup(s.system, args[0])
	if err != nil {
		return err
	}
	s.format = strategy.Format

	sizes := strategy.Sizes()
	if !contains(sizes, s.size) {
		s.size = sizes[0]
		fmt.Fprintf(s.out, "size set to %s\n", s.size)
	}
	return nil
}

func shellSize(s *session, args []string) error {
	if s.format == "" {
		return fmt.Errorf("pick a format first")
	}
	sizes := disks.SizesFor(s.system, s.format)
	if !contains(sizes, args[0]) {
		return retrodisk.ErrUnsupportedSizeForFormat.WithMessage(
			fmt.Sprintf(
				"%s %s images come in %s",
				s.system,
				s.format,
				strings.Join(sizes, ", ")))
	}
	s.size = args[0]
	return nil
}

func shellVolume(s *session, args []string) error {
	s.volume = strings.Join(args, " ")
	return nil
}

func shellAdd(s *session, args []string) error {
	for _, arg := range args {
		file, err := parseFileArg(arg)
		if err != nil {
			return err
		}
		info, err := os.Stat(file.Path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", file.Path)
		}
		s.files = append(s.files, file)
		fmt.Fprintf(s.out, "queued %s as %s (%s, %d bytes)\n", file.Path, file.Name, file.Type, info.Size())
	}
	return nil
}

func shellDrop(s *session, args []string) error {
	kept := s.files[:0]
	dropped := 0
	for _, file := range s.files {
		if file.Name == args[0] {
			dropped++
			continue
		}
		kept = append(kept, file)
	}
	s.files = kept
	if dropped == 0 {
		return fmt.Errorf("no queued file named %q", args[0])
	}
	return nil
}

func shellList(s *session, args []string) error {
	fmt.Fprintf(s.out, "system: %s\n", orDash(s.system))
	fmt.Fprintf(s.out, "format: %s\n", orDash(s.format))
	fmt.Fprintf(s.out, "size:   %s\n", orDash(s.size))
	fmt.Fprintf(s.out, "volume: %s\n", orDash(s.volume))
	if len(s.files) == 0 {
		fmt.Fprintln(s.out, "no files queued")
		return nil
	}
	for i, file := range s.files {
		fmt.Fprintf(s.out, "%3d  %-16s %-8s %s\n", i+1, file.Name, file.Type, file.Path)
	}
	return nil
}

func shellBuild(s *session, args []string) error {
	if s.system == "" || s.format == "" {
		return fmt.Errorf("pick a system and format first")
	}

	compress := false
	if len(args) == 2 {
		if args[1] != "compress" {
			return fmt.Errorf("unknown build option %q", args[1])
		}
		compress = true
	}

	request := builder.Request{
		System:     s.system,
		Format:     s.format,
		Size:       s.size,
		VolumeName: s.volume,
		Files:      fileRecords(s.files),
	}
	return buildImage(request, args[0], compress, false)
}

func shellHelp(s *session, args []string) error {
	if len(args) == 1 {
		command, ok := commandList[strings.ToLower(args[0])]
		if !ok {
			return fmt.Errorf("unknown command %q", args[0])
		}
		if len(command.Text) == 0 {
			fmt.Fprintln(s.out, command.Description)
			return nil
		}
		for _, line := range command.Text {
			fmt.Fprintln(s.out, line)
		}
		return nil
	}

	for _, name := range commandNames() {
		fmt.Fprintf(s.out, "%-8s %s\n", name, commandList[name].Description)
	}
	return nil
}

func shellQuit(s *session, args []string) error {
	return errQuit
}

func contains(items []string, item string) bool {
	for _, candidate := range items {
		if candidate == item {
			return true
		}
	}
	return false
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func commandNames() []string {
	names := make([]string, 0, len(commandList))
	for name := range commandList {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

////////////////////////////////////////////////////////////////////////////////
// Completion

type shellCompleter struct {
	session *session
}

// Do implements [readline.AutoCompleter].
func (sc *shellCompleter) Do(line []rune, pos int) ([][]rune, int) {
	typed := string(line[:pos])
	words := splitLine(typed)

	prefix := ""
	index := len(words)
	if len(words) > 0 && !strings.HasSuffix(typed, " ") {
		index--
		prefix = words[index]
	}

	context := completeCommand
	if index > 0 {
		command, ok := commandList[strings.ToLower(words[0])]
		if !ok {
			return nil, 0
		}
		context = command.Context
	}

	var candidates []string
	switch context {
	case completeCommand:
		candidates = commandNames()
	case completeSystem:
		for _, system := range disks.Systems() {
			candidates = append(candidates, system.Slug)
		}
	case completeFormat:
		candidates = disks.FormatsFor(sc.session.system)
	case completeSize:
		candidates = disks.SizesFor(sc.session.system, sc.session.format)
	case completeQueued:
		for _, file := range sc.session.files {
			candidates = append(candidates, file.Name)
		}
	case completeLocal:
		matches, err := filepath.Glob(prefix + "*")
		if err != nil {
			return nil, 0
		}
		candidates = matches
	}

	var filtered [][]rune
	for _, candidate := range candidates {
		if strings.HasPrefix(candidate, prefix) {
			filtered = append(filtered, shellEscape([]rune(candidate[len(prefix):])))
		}
	}
	if len(filtered) == 0 {
		return nil, 0
	}
	return filtered, len([]rune(prefix))
}

func shellEscape(str []rune) []rune {
	out := make([]rune, 0, len(str))
	for _, r := range str {
		if r == ' ' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return out
}

func init() {
	commandList = map[string]*shellCommand{
		"system": {
			Name:        "system",
			Description: "Choose the target machine",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellSystem,
			Context:     completeSystem,
			Text: []string{
				"system <slug>",
				"",
				"Choose the machine the image is for. Run 'retrodisk formats' for the list.",
			},
		},
		"format": {
			Name:        "format",
			Description: "Choose the image format",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellFormat,
			Context:     completeFormat,
			Text: []string{
				"format <format>",
				"",
				"Choose one of the formats the current system supports. The size",
				"defaults to the smallest one available.",
			},
		},
		"size": {
			Name:        "size",
			Description: "Choose the image size",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellSize,
			Context:     completeSize,
		},
		"volume": {
			Name:        "volume",
			Description: "Set the volume name",
			MinArgs:     1,
			MaxArgs:     -1,
			Code:        shellVolume,
			Context:     completeNone,
			Text: []string{
				"volume <name>",
				"",
				"Set the volume name. It is cleaned up for the target system when",
				"the image is built.",
			},
		},
		"add": {
			Name:        "add",
			Description: "Queue local files for the image",
			MinArgs:     1,
			MaxArgs:     -1,
			Code:        shellAdd,
			Context:     completeLocal,
			Text: []string{
				"add [NAME=]PATH[:TYPE] ...",
				"",
				"Queue files. NAME overrides the name on disk and TYPE is one of",
				"binary, text, basic, graphics or data.",
			},
		},
		"drop": {
			Name:        "drop",
			Description: "Remove a queued file",
			MinArgs:     1,
			MaxArgs:     1,
			Code:        shellDrop,
			Context:     completeQueued,
		},
		"list": {
			Name:        "list",
			Description: "Show the current settings and queued files",
			MinArgs:     0,
			MaxArgs:     0,
			Code:        shellList,
			Context:     completeNone,
		},
		"build": {
			Name:        "build",
			Description: "Write the image",
			MinArgs:     1,
			MaxArgs:     2,
			Code:        shellBuild,
			Context:     completeLocal,
			Text: []string{
				"build <output file> [compress]",
				"",
				"Build the image from the queued files and write it out, optionally",
				"compressed with RLE8 and gzip.",
			},
		},
		"help": {
			Name:        "help",
			Description: "Shows this help",
			MinArgs:     0,
			MaxArgs:     1,
			Code:        shellHelp,
			Context:     completeCommand,
		},
		"quit": {
			Name:        "quit",
			Description: "Leave the shell",
			MinArgs:     -1,
			MaxArgs:     -1,
			Code:        shellQuit,
			Context:     completeNone,
		},
	}
}
