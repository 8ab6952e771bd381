// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"tasksync/internal/service"
	"tasksync/internal/syncer"
)

// ListSeparator is the separator line for list sections.
const ListSeparator = "------------"

// FormatTask formats a task line of the default list:
// "{N:>4}  {TITLE}[  (due DATE)]".
func FormatTask(w io.Writer, num int, task service.LocalTask, loc *time.Location) {
	fmt.Fprintf(w, "%4d  %s%s\n", num, normalizeTitle(task.Title), dueSuffix(task, loc))
}

// FormatTaskIndented formats a task line inside a named list section.
func FormatTaskIndented(w io.Writer, num int, task service.LocalTask, loc *time.Location) {
	fmt.Fprintf(w, "    %4d  %s%s\n", num, normalizeTitle(task.Title), dueSuffix(task, loc))
}

// FormatTaskWithLetter formats a task line of a lettered list section, so
// that the printed reference ("a1") can be passed to done and rm.
func FormatTaskWithLetter(w io.Writer, letter rune, num int, task service.LocalTask, loc *time.Location) {
	ref := fmt.Sprintf("%c%d", letter, num)
	fmt.Fprintf(w, "%6s  %s%s\n", ref, normalizeTitle(task.Title), dueSuffix(task, loc))
}

// FormatListHeader formats a list section header.
func FormatListHeader(w io.Writer, title string, isDefault bool) {
	displayTitle := normalizeListTitle(title)
	if isDefault {
		displayTitle += " [default]"
	}
	fmt.Fprintln(w, ListSeparator)
	fmt.Fprintln(w, displayTitle)
	fmt.Fprintln(w, ListSeparator)
}

// FormatListName formats a list name for the lists command.
func FormatListName(w io.Writer, list service.LocalList, isDefault bool) {
	title := normalizeListTitle(list.Title)
	if isDefault {
		title += " [default]"
	}
	fmt.Fprintln(w, title)
}

// FormatResult formats the outcome of one sync pass:
// "googletasks/me@example.com: ok, 3 writes" or "...: failed (network)".
func FormatResult(w io.Writer, r syncer.Result) {
	name := r.Service + "/" + r.Account
	if !r.Success() {
		fmt.Fprintf(w, "%s: failed (%s)\n", name, r.Reason())
		return
	}
	n := r.Stats.Writes()
	switch n {
	case 0:
		fmt.Fprintf(w, "%s: ok, up to date\n", name)
	case 1:
		fmt.Fprintf(w, "%s: ok, 1 write\n", name)
	default:
		fmt.Fprintf(w, "%s: ok, %d writes\n", name, n)
	}
}

// FormatStatus formats the last successful sync of a backend.
func FormatStatus(w io.Writer, svc, account string, last time.Time, loc *time.Location) {
	when := "never"
	if !last.IsZero() {
		when = last.In(loc).Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "%s/%s: last sync %s\n", svc, account, when)
}

func dueSuffix(task service.LocalTask, loc *time.Location) string {
	if task.Due == nil {
		return ""
	}
	d := task.Due.In(loc)
	if d.Hour() == 0 && d.Minute() == 0 {
		return "  (due " + d.Format("2006-01-02") + ")"
	}
	return "  (due " + d.Format("2006-01-02 15:04") + ")"
}

// normalizeTitle replaces newlines with spaces and shows an empty title
// as "(untitled)".
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}

func normalizeListTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
