package storage

import (
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RootFolder - корневая папка документов клиентов на хостинге.
const RootFolder = "nf-clients"

// FolderPath строит путь папки заявки: nf-clients/<номер>_<ГГГГ-ММ-ДД>_<Фамилия-Имя>.
func FolderPath(reference, firstName, lastName string, at time.Time) string {
	name := joinNonEmpty("-", Sanitize(lastName), Sanitize(firstName))
	if name == "" {
		name = "client"
	}

	ref := Sanitize(reference)
	if ref == "" {
		ref = "sans-reference"
	}

	return path.Join(RootFolder, ref+"_"+at.Format("2006-01-02")+"_"+name)
}

// Sanitize убирает диакритические знаки, заменяет пробелы дефисом и отбрасывает
// остальные символы, кроме латинских букв, цифр, дефиса и подчёркивания.
func Sanitize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		stripped = s
	}

	var sb strings.Builder
	sb.Grow(len(stripped))
	dash := false
	for _, r := range stripped {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_':
			sb.WriteRune(r)
			dash = false
		case r == '-' || unicode.IsSpace(r):
			if !dash && sb.Len() > 0 {
				sb.WriteByte('-')
				dash = true
			}
		}
	}

	return strings.TrimRight(sb.String(), "-")
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
