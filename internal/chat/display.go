package chat

import (
	"fmt"
	"iter"
	"time"

	"github.com/comunihub/marketplace-client/internal/model"
)

// ItemKind discriminates display items.
type ItemKind int

const (
	// ItemSeparator is a date marker between calendar days.
	ItemSeparator ItemKind = iota
	// ItemMessage is a message bubble.
	ItemMessage
)

// DisplayItem is one renderable entry of the conversation view: either a
// date separator or a message.
type DisplayItem struct {
	Kind    ItemKind
	Label   string // separator text, ItemSeparator only
	Message model.Message
}

var months = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// DisplaySequence derives the renderable sequence from messages ordered
// oldest-first: before the first message of every calendar day it yields a
// separator labeled "Hoje", "Ontem" or the long-form date. The derivation
// is pure; messages is never mutated.
func DisplaySequence(messages []model.Message, now time.Time) iter.Seq[DisplayItem] {
	return func(yield func(DisplayItem) bool) {
		var lastDay time.Time
		haveDay := false
		for _, msg := range messages {
			if !haveDay || !sameDay(msg.CreatedAt, lastDay) {
				if !yield(DisplayItem{Kind: ItemSeparator, Label: dateLabel(msg.CreatedAt, now)}) {
					return
				}
				lastDay = msg.CreatedAt
				haveDay = true
			}
			if !yield(DisplayItem{Kind: ItemMessage, Message: msg}) {
				return
			}
		}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateLabel(t, now time.Time) string {
	if sameDay(t, now) {
		return "Hoje"
	}
	if sameDay(t, now.AddDate(0, 0, -1)) {
		return "Ontem"
	}
	return fmt.Sprintf("%02d de %s de %d", t.Day(), months[t.Month()-1], t.Year())
}
