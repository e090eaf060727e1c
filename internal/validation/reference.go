// Package validation содержит функции генерации и проверки входных данных.
package validation

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// ReferencePrefix - префикс всех номеров заявок.
	ReferencePrefix = "NF-"
	// ReferenceLength - количество символов номера без префикса.
	ReferenceLength = 8

	// Без I, O, 0 и 1, которые легко спутать при диктовке.
	referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	normalizedPrefix  = "NF"
)

// NewReference генерирует новый номер заявки вида NF-XXXXXXXX.
func NewReference() (string, error) {
	buf := make([]byte, ReferenceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(ReferencePrefix) + ReferenceLength)
	sb.WriteString(ReferencePrefix)
	for _, b := range buf {
		// 256 делится на 32 без остатка, распределение равномерное.
		sb.WriteByte(referenceAlphabet[int(b)%len(referenceAlphabet)])
	}
	return sb.String(), nil
}

// IsReference проверяет, что строка является номером заявки в канонической форме.
func IsReference(s string) bool {
	if len(s) != len(ReferencePrefix)+ReferenceLength || !strings.HasPrefix(s, ReferencePrefix) {
		return false
	}
	for _, ch := range s[len(ReferencePrefix):] {
		if !strings.ContainsRune(referenceAlphabet, ch) {
			return false
		}
	}
	return true
}

// NormalizeReference приводит номер к верхнему регистру и удаляет всё, кроме букв и цифр.
func NormalizeReference(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, ch := range strings.ToUpper(s) {
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// MatchReference сообщает, соответствует ли введённый пользователем номер сохранённому.
// Совпадение засчитывается после нормализации либо точно, либо с добавленным префиксом NF.
func MatchReference(stored, input string) bool {
	ni := NormalizeReference(input)
	if ni == "" {
		return false
	}
	ns := NormalizeReference(stored)
	return ns == ni || ns == normalizedPrefix+ni
}

// ReferenceCandidates возвращает канонические номера, которым может соответствовать ввод.
func ReferenceCandidates(input string) []string {
	ni := NormalizeReference(input)

	var out []string
	switch {
	case len(ni) == ReferenceLength+len(normalizedPrefix) && strings.HasPrefix(ni, normalizedPrefix):
		out = append(out, ReferencePrefix+ni[len(normalizedPrefix):])
	case len(ni) == ReferenceLength:
		out = append(out, ReferencePrefix+ni)
	}
	return out
}
