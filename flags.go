package retrodisk

import (
	"path"
	"strings"
)

// FileType is a format-independent hint describing what a file contains. Each
// driver maps it to its own native type code.
type FileType int

const (
	FileTypeBinary FileType = iota
	FileTypeText
	FileTypeBasic
	FileTypeGraphics
	FileTypeData
)

var fileTypeNames = map[FileType]string{
	FileTypeBinary:   "binary",
	FileTypeText:     "text",
	FileTypeBasic:    "basic",
	FileTypeGraphics: "graphics",
	FileTypeData:     "data",
}

func (t FileType) String() string {
	name, ok := fileTypeNames[t]
	if ok {
		return name
	}
	return "unknown"
}

// ParseFileType converts a type name such as "text" into a FileType.
func ParseFileType(name string) (FileType, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))
	for fileType, typeName := range fileTypeNames {
		if typeName == lowered {
			return fileType, nil
		}
	}
	return FileTypeBinary, ErrInvalidArgument.WithMessage("unknown file type " + name)
}

// GuessFileType infers a type hint from a file name's extension. Anything it
// doesn't recognize is treated as binary.
func GuessFileType(fileName string) FileType {
	switch strings.ToUpper(strings.TrimPrefix(path.Ext(fileName), ".")) {
	case "TXT", "ASC", "DOC":
		return FileTypeText
	case "BAS":
		return FileTypeBasic
	case "SHR", "PIC", "A2GS", "3200", "IFF", "SCR", "NEO", "PI1", "KOA", "BMP", "PCX":
		return FileTypeGraphics
	case "DAT":
		return FileTypeData
	}
	return FileTypeBinary
}
