package client

import (
	"sort"
	"time"

	"messenger-sync/model"
)

// Item is one row of the rendered conversation: either a date separator or
// a message with its position inside a run of messages from one sender.
type Item struct {
	Separator bool
	Date      time.Time
	Message   *model.Message
	// FirstInRun and LastInRun mark the edges of consecutive messages from
	// the same sender on the same day.
	FirstInRun bool
	LastInRun  bool
}

// Group projects msgs into display rows in loc, ordered by created_at. The
// input is not modified.
func Group(msgs []model.Message, loc *time.Location) []Item {
	if loc == nil {
		loc = time.Local
	}
	sorted := make([]model.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	items := make([]Item, 0, len(sorted)+4)
	var (
		day      time.Time
		lastItem = -1
	)
	for i := range sorted {
		m := &sorted[i]
		local := m.CreatedAt.In(loc)
		d := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

		newDay := lastItem < 0 || !d.Equal(day)
		if newDay {
			day = d
			items = append(items, Item{Separator: true, Date: d})
		}

		first := newDay || items[lastItem].Message.SenderID != m.SenderID
		if first && lastItem >= 0 {
			items[lastItem].LastInRun = true
		}
		items = append(items, Item{Date: d, Message: m, FirstInRun: first})
		lastItem = len(items) - 1
	}
	if lastItem >= 0 {
		items[lastItem].LastInRun = true
	}
	return items
}
