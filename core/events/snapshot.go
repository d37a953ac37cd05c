package events

import "strings"

// Snapshot flattens the fields of any event into one shape so rule filters
// and output templates do not need to switch on the concrete type.
type Snapshot struct {
	ID                 string
	Kind               Kind
	Package            string
	Source             string
	ClassName          string
	Text               string
	ContentDescription string
	BeforeText         string
	Added              string
	Removed            string
	ItemCount          int
	CurrentItemIndex   int
	FromIndex          int
	ToIndex            int
	Checked            bool
	Enabled            bool
	Password           bool
}

// Snap builds a Snapshot of e. Unknown event types contribute only their
// base fields.
func Snap(e Event) Snapshot {
	if e == nil {
		return Snapshot{}
	}

	snapshot := Snapshot{
		ID:      e.ID(),
		Kind:    e.Kind(),
		Package: e.Package(),
		Enabled: true,
	}

	switch event := e.(type) {
	case ViewEvent:
		snapshot.Source = event.Source
		snapshot.ClassName = event.ClassName
		snapshot.Text = joinText(event.Text)
		snapshot.ContentDescription = event.ContentDescription
		snapshot.ItemCount = event.ItemCount
		snapshot.CurrentItemIndex = event.CurrentItemIndex
		snapshot.FromIndex = event.FromIndex
		snapshot.ToIndex = event.ToIndex
		snapshot.Checked = event.Checked
		snapshot.Enabled = event.Enabled
		snapshot.Password = event.Password
	case TextChanged:
		snapshot.Source = event.Source
		snapshot.ClassName = event.ClassName
		snapshot.Text = event.Text
		snapshot.BeforeText = event.BeforeText
		snapshot.FromIndex = event.FromIndex
		snapshot.Password = event.Password
		if !event.Password {
			snapshot.Added = event.Added()
			snapshot.Removed = event.Removed()
		}
	case WindowStateChanged:
		snapshot.ClassName = event.ClassName
		snapshot.Text = event.Title
	case WindowContentChanged:
		snapshot.Source = event.Source
	case Notification:
		snapshot.Text = joinText(event.Text)
		if snapshot.Text == "" {
			snapshot.Text = event.Ticker
		}
	case Announcement:
		snapshot.Text = event.Text
	}

	return snapshot
}

func joinText(parts []string) string {
	trimmed := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			trimmed = append(trimmed, part)
		}
	}
	return strings.Join(trimmed, " ")
}
