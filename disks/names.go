package disks

import (
	"fmt"
	"strings"

	"github.com/dargueta/retrodisk"
)

// Charset is a class of characters a native DOS accepts in names.
type Charset struct {
	Name    string
	allowed func(r rune) bool
}

// Allows reports whether `r` may appear in a name. Callers are expected to have
// uppercased the name already.
func (c Charset) Allows(r rune) bool {
	return c.allowed(r)
}

func isUpperAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

var charsets = map[string]Charset{
	"prodos": {
		Name:    "prodos",
		allowed: func(r rune) bool { return isUpperAlnum(r) || r == '.' },
	},
	"petscii": {
		Name: "petscii",
		allowed: func(r rune) bool {
			return isUpperAlnum(r) || strings.ContainsRune(" !\"#$%&'()*+,-./:;<=>?", r)
		},
	},
	"amiga": {
		Name: "amiga",
		allowed: func(r rune) bool {
			return isUpperAlnum(r) || strings.ContainsRune(" _-.", r)
		},
	},
	"alnum": {
		Name:    "alnum",
		allowed: isUpperAlnum,
	},
}

// CharsetByName looks up one of the named character classes: "prodos",
// "petscii", "amiga", or "alnum".
func CharsetByName(name string) (Charset, error) {
	charset, ok := charsets[name]
	if !ok {
		return Charset{}, fmt.Errorf("unknown name charset %q", name)
	}
	return charset, nil
}

// NameRules describes how one format cleans up a name before writing it.
type NameRules struct {
	Charset   Charset
	MaxLength int
	// Placeholder is used when nothing survives sanitization.
	Placeholder string
	// LeadingLetter forces the first character to be a letter by prefixing
	// "A" (ProDOS).
	LeadingLetter bool
}

// Sanitize uppercases `name`, drops characters outside the charset, truncates
// it, and applies the leading-letter rule. It never returns an empty string.
func (rules NameRules) Sanitize(name string) string {
	var builder strings.Builder
	for _, r := range strings.ToUpper(name) {
		if rules.Charset.Allows(r) {
			builder.WriteRune(r)
		}
	}

	result := truncate(builder.String(), rules.MaxLength)
	if rules.LeadingLetter && result != "" && !(result[0] >= 'A' && result[0] <= 'Z') {
		result = truncate("A"+result, rules.MaxLength)
	}
	if result == "" {
		result = truncate(rules.Placeholder, rules.MaxLength)
	}
	return result
}

// Every allowed character is ASCII, so byte truncation is safe.
func truncate(s string, maxLength int) string {
	if maxLength > 0 && len(s) > maxLength {
		return s[:maxLength]
	}
	return s
}

// VolumeNameRules returns the rules for volume names on `system`.
func VolumeNameRules(system string) (NameRules, error) {
	entry, err := GetSystem(system)
	if err != nil {
		return NameRules{}, err
	}
	charset, err := CharsetByName(entry.Charset)
	if err != nil {
		return NameRules{}, retrodisk.ErrInvalidArgument.Wrap(err)
	}
	return NameRules{
		Charset:       charset,
		MaxLength:     entry.MaxVolumeName,
		Placeholder:   "DISK",
		LeadingLetter: entry.Charset == "prodos",
	}, nil
}

// SanitizeVolumeName applies the volume name rules of `system` to `name`.
func SanitizeVolumeName(system, name string) (string, error) {
	rules, err := VolumeNameRules(system)
	if err != nil {
		return "", err
	}
	return rules.Sanitize(name), nil
}
