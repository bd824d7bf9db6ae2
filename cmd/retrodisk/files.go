package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dargueta/retrodisk"
)

// fileArg is one FILES argument after parsing. The argument syntax is
//
//	[NAME=]PATH[:TYPE]
//
// where NAME overrides the name stored on disk and TYPE is one of the type
// names accepted by [retrodisk.ParseFileType].
type fileArg struct {
	Name string
	Path string
	Type retrodisk.FileType
}

func parseFileArg(arg string) (fileArg, error) {
	if arg == "" {
		return fileArg{}, retrodisk.ErrInvalidArgument.WithMessage("empty file argument")
	}

	var parsed fileArg
	rest := arg
	if eq := strings.Index(rest, "="); eq >= 0 {
		parsed.Name = rest[:eq]
		rest = rest[eq+1:]
	}

	// A colon only introduces a type if what follows is a type name, so paths
	// containing colons still work.
	typeGiven := false
	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		fileType, err := retrodisk.ParseFileType(rest[colon+1:])
		if err == nil {
			parsed.Type = fileType
			rest = rest[:colon]
			typeGiven = true
		}
	}

	if rest == "" {
		return fileArg{}, retrodisk.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("no path in file argument %q", arg))
	}
	parsed.Path = rest
	if parsed.Name == "" {
		parsed.Name = filepath.Base(rest)
	}
	if !typeGiven {
		parsed.Type = retrodisk.GuessFileType(parsed.Name)
	}
	return parsed, nil
}

// Record turns the argument into a file record that reads the file only when
// the builder gets to it.
func (arg fileArg) Record() retrodisk.FileRecord {
	path := arg.Path
	return retrodisk.FileRecord{
		Name: arg.Name,
		Type: arg.Type,
		Loader: func() ([]byte, error) {
			return os.ReadFile(path)
		},
	}
}

func parseFileArgs(args []string) ([]fileArg, error) {
	parsed := make([]fileArg, 0, len(args))
	for _, arg := range args {
		file, err := parseFileArg(arg)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, file)
	}
	return parsed, nil
}

func fileRecords(args []fileArg) []retrodisk.FileRecord {
	records := make([]retrodisk.FileRecord, len(args))
	for i, arg := range args {
		records[i] = arg.Record()
	}
	return records
}
