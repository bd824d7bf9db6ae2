package common

import (
	"strings"

	"github.com/dargueta/retrodisk/disks"
)

// SplitExtension splits a file name at its last period. The period itself is
// dropped. Names without a period have an empty extension.
func SplitExtension(name string) (base, extension string) {
	index := strings.LastIndexByte(name, '.')
	if index < 0 {
		return name, ""
	}
	return name[:index], name[index+1:]
}

// ShortName is a name split into a fixed-width base and extension, as used by
// FAT, CP/M, Atari DOS, RSDOS and friends.
type ShortName struct {
	Base      string
	Extension string
}

// String joins the two parts with a period, omitting it if there's no
// extension.
func (n ShortName) String() string {
	if n.Extension == "" {
		return n.Base
	}
	return n.Base + "." + n.Extension
}

// SanitizeShortName cleans up both halves of a name separately. The base falls
// back to `baseRules.Placeholder` if empty; an empty extension stays empty.
func SanitizeShortName(name string, baseRules, extensionRules disks.NameRules) ShortName {
	base, extension := SplitExtension(name)
	extensionRules.Placeholder = ""

	result := ShortName{Base: baseRules.Sanitize(base)}
	if extension != "" {
		result.Extension = sanitizeOptional(extension, extensionRules)
	}
	return result
}

func sanitizeOptional(name string, rules disks.NameRules) string {
	var builder strings.Builder
	for _, r := range strings.ToUpper(name) {
		if rules.Charset.Allows(r) {
			builder.WriteRune(r)
		}
	}
	result := builder.String()
	if rules.MaxLength > 0 && len(result) > rules.MaxLength {
		result = result[:rules.MaxLength]
	}
	return result
}

// PadName copies `name` into a new `width`-byte field, filling the rest with
// `pad`. Longer names are truncated.
func PadName(name string, width int, pad byte) []byte {
	field := make([]byte, width)
	n := copy(field, name)
	for i := n; i < width; i++ {
		field[i] = pad
	}
	return field
}

// AlnumRules returns rules for plain uppercase letters and digits.
func AlnumRules(maxLength int, placeholder string) disks.NameRules {
	charset, err := disks.CharsetByName("alnum")
	if err != nil {
		panic(err)
	}
	return disks.NameRules{Charset: charset, MaxLength: maxLength, Placeholder: placeholder}
}

// UniqueNamer remembers the names already used in one directory.
type UniqueNamer struct {
	used map[string]bool
}

func NewUniqueNamer() *UniqueNamer {
	return &UniqueNamer{used: make(map[string]bool)}
}

// Taken reports whether `name` was already used, ignoring case.
func (n *UniqueNamer) Taken(name string) bool {
	return n.used[strings.ToUpper(name)]
}

// Use records `name` as taken.
func (n *UniqueNamer) Use(name string) {
	n.used[strings.ToUpper(name)] = true
}

// Forget releases `name`.
func (n *UniqueNamer) Forget(name string) {
	delete(n.used, strings.ToUpper(name))
}
