package settings

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/magiconair/properties"
)

// Save renders the settings as .properties text, one key=value per line in
// sorted key order. The output is deterministic for equal settings. Empty
// keys are not saved.
func (s *Settings) Save() string {
	keys := s.Keys()
	p := properties.NewProperties()
	p.DisableExpansion = true
	p.WriteSeparator = "="
	for _, k := range keys {
		p.Set(k, s.props[k])
	}

	var b strings.Builder
	if _, err := p.Write(&b, properties.UTF8); err != nil {
		// strings.Builder does not fail
		panic(err)
	}

	// The writer leaves '=' in keys, a leading comment marker and a leading
	// blank in values unescaped; all three change meaning on reload.
	lines := strings.SplitAfter(b.String(), "\n")
	var out strings.Builder
	i := 0
	for _, k := range keys {
		if k == "" {
			continue
		}
		out.WriteString(fixLine(lines[i], strings.Count(k, "=")))
		i++
	}
	return out.String()
}

// fixLine escapes what the properties writer leaves ambiguous in one
// key=value line whose key holds keyEquals raw '=' characters.
func fixLine(line string, keyEquals int) string {
	sep := -1
	for n := 0; n <= keyEquals; n++ {
		sep += 1 + strings.IndexByte(line[sep+1:], '=')
	}
	key, value := line[:sep], line[sep+1:]

	key = strings.ReplaceAll(key, "=", `\=`)
	if strings.HasPrefix(key, "#") || strings.HasPrefix(key, "!") {
		key = `\` + key
	}
	if strings.HasPrefix(value, " ") {
		value = `\` + value
	}
	return key + "=" + value
}

// Load parses .properties text produced by Save (or by any Java
// Properties.store) into a new Settings value. ${} references are kept
// literally.
func Load(text string) (*Settings, error) {
	text, err := joinSurrogates(text)
	if err != nil {
		return nil, err
	}
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	s := New()
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		s.props[k] = v
	}
	return s, nil
}

// joinSurrogates replaces each \uXXXX\uXXXX UTF-16 surrogate pair escape
// with the character it encodes. Java writes characters outside the BMP
// that way; the properties lexer decodes each half on its own. Other
// escapes are left for the lexer.
func joinSurrogates(text string) (string, error) {
	if !strings.Contains(text, `\u`) {
		return text, nil
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' || i+1 >= len(text) {
			b.WriteByte(c)
			continue
		}
		if text[i+1] != 'u' {
			b.WriteString(text[i : i+2])
			i++
			continue
		}

		hi, ok := hexUnit(text, i)
		if !ok || !utf16.IsSurrogate(rune(hi)) {
			b.WriteString(text[i : i+2])
			i++
			continue
		}
		if hi >= 0xDC00 {
			return "", fmt.Errorf("settings: unpaired low surrogate %q", text[i:i+6])
		}
		lo, ok := hexUnit(text, i+6)
		if !ok || lo < 0xDC00 || lo > 0xDFFF {
			return "", fmt.Errorf("settings: unpaired high surrogate %q", text[i:i+6])
		}
		b.WriteRune(utf16.DecodeRune(rune(hi), rune(lo)))
		i += 11
	}
	return b.String(), nil
}

// hexUnit decodes the \uXXXX escape starting at text[i].
func hexUnit(text string, i int) (uint16, bool) {
	if i+6 > len(text) || text[i] != '\\' || text[i+1] != 'u' {
		return 0, false
	}
	n, err := strconv.ParseUint(text[i+2:i+6], 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
