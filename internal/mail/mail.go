// Package mail отправляет транзакционные письма через Resend или пишет их в лог в демо-режиме.
package mail

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNoRecipients возвращается при попытке отправить письмо без получателей.
var ErrNoRecipients = errors.New("no recipients")

// Message - транзакционное письмо.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Mailer отправляет письма.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	// Live сообщает, уходят ли письма реальным получателям.
	Live() bool
}

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail скрывает локальную часть адреса, оставляя первые три символа и домен:
// marie.dubois@example.ch -> mar***@example.ch.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	if m := emailRegex.FindStringSubmatch(email); len(m) == 3 {
		return m[1] + "***" + m[2]
	}

	if at := strings.LastIndex(email, "@"); at >= 0 {
		return "***" + email[at:]
	}
	return "***"
}
