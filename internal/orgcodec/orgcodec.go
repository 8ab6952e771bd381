// Package orgcodec reads and writes the outline files used by the orgdir
// backend: one list per file, one task per top-level headline.
//
//	#+TITLE: Groceries
//	#+UPDATED: 1708000000000
//	#+CHECKSUM: 9f0c2a7d1e55b3c4
//
//	* TODO Milk
//	DEADLINE: <2024-02-15 Thu>
//	:PROPERTIES:
//	:ID: 6f1c7c1e-3f43-4a4e-8a8e-1b1d0c9b6f2e
//	:UPDATED: 1708000000000
//	:CHECKSUM: 0b7e1f2a9c3d4e5f
//	:END:
//	Two litres.
//
// UPDATED values are written by the program. CHECKSUM covers the visible
// content, so a hand edit that forgets to touch UPDATED is still detected.
package orgcodec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

const (
	keywordTodo = "TODO"
	keywordDone = "DONE"
	dateLayout  = "2006-01-02"
)

var deadlineRe = regexp.MustCompile(`DEADLINE:\s*<(\d{4}-\d{2}-\d{2})[^>]*>`)

// Document is one parsed file.
type Document struct {
	Title    string
	Updated  int64
	Checksum string
	Entries  []Entry
}

// Property is a drawer property the codec does not interpret.
type Property struct {
	Key   string
	Value string
}

// Entry is one top-level headline.
type Entry struct {
	Title    string
	Done     bool
	Deadline string // YYYY-MM-DD, empty when unset
	Body     string

	ID       string
	Updated  int64
	Checksum string
	Extra    []Property
}

// Sum returns the checksum of the entry's visible content.
func (e Entry) Sum() string {
	h := xxhash.New()
	_, _ = h.WriteString(oneLine(e.Title))
	_, _ = h.WriteString("\x00")
	if e.Done {
		_, _ = h.WriteString(keywordDone)
	} else {
		_, _ = h.WriteString(keywordTodo)
	}
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(e.Deadline)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(trimBody(e.Body))
	return strconv.FormatUint(h.Sum64(), 16)
}

// Verified reports whether Updated can be trusted: the entry carries an
// update stamp and its content still matches the stored checksum.
func (e Entry) Verified() bool {
	return e.Updated != 0 && e.Checksum == e.Sum()
}

// Seal stamps the entry with updated and refreshes its checksum.
func (e *Entry) Seal(updated int64) {
	e.Updated = updated
	e.Checksum = e.Sum()
}

// Sum returns the checksum of the document header.
func (d Document) Sum() string {
	return strconv.FormatUint(xxhash.Sum64String(oneLine(d.Title)), 16)
}

// Verified reports whether the header Updated can be trusted.
func (d Document) Verified() bool {
	return d.Updated != 0 && d.Checksum == d.Sum()
}

// Seal stamps the header with updated and refreshes its checksum.
func (d *Document) Seal(updated int64) {
	d.Updated = updated
	d.Checksum = d.Sum()
}

// Parse reads a document. Text before the first headline that is not a
// header keyword is dropped.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cur     *Entry
		body    []string
		inProps bool
		seenEnd bool // drawer closed, or body text started
		lineNo  int
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Body = trimBody(strings.Join(body, "\n"))
		doc.Entries = append(doc.Entries, *cur)
		cur, body = nil, nil
	}

	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		if strings.HasPrefix(line, "* ") || line == "*" {
			flush()
			cur = parseHeadline(line)
			inProps, seenEnd = false, false
			continue
		}

		if cur == nil {
			if err := parseHeader(doc, line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case inProps:
			if strings.EqualFold(trimmed, ":END:") {
				inProps, seenEnd = false, true
				continue
			}
			if err := parseProperty(cur, trimmed); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case !seenEnd && strings.EqualFold(trimmed, ":PROPERTIES:"):
			inProps = true
		case !seenEnd && cur.Deadline == "" && deadlineRe.MatchString(trimmed) &&
			(strings.HasPrefix(trimmed, "DEADLINE:") || strings.HasPrefix(trimmed, "SCHEDULED:")):
			cur.Deadline = deadlineRe.FindStringSubmatch(trimmed)[1]
		default:
			seenEnd = true
			if escaped(line) {
				line = line[1:]
			}
			body = append(body, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if inProps {
		return nil, fmt.Errorf("line %d: unterminated property drawer", lineNo)
	}
	flush()
	return doc, nil
}

func parseHeadline(line string) *Entry {
	title := strings.TrimSpace(strings.TrimPrefix(line, "*"))
	e := &Entry{}
	switch {
	case title == keywordDone || strings.HasPrefix(title, keywordDone+" "):
		e.Done = true
		title = strings.TrimSpace(strings.TrimPrefix(title, keywordDone))
	case title == keywordTodo || strings.HasPrefix(title, keywordTodo+" "):
		title = strings.TrimSpace(strings.TrimPrefix(title, keywordTodo))
	}
	e.Title = title
	return e
}

func parseHeader(doc *Document, line string) error {
	if !strings.HasPrefix(line, "#+") {
		return nil
	}
	key, value, ok := strings.Cut(line[2:], ":")
	if !ok {
		return nil
	}
	value = strings.TrimSpace(value)
	switch strings.ToUpper(key) {
	case "TITLE":
		doc.Title = value
	case "UPDATED":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid UPDATED %q", value)
		}
		doc.Updated = n
	case "CHECKSUM":
		doc.Checksum = value
	}
	return nil
}

func parseProperty(e *Entry, line string) error {
	if !strings.HasPrefix(line, ":") {
		return fmt.Errorf("malformed property %q", line)
	}
	key, value, ok := strings.Cut(line[1:], ":")
	if !ok {
		return fmt.Errorf("malformed property %q", line)
	}
	value = strings.TrimSpace(value)
	switch strings.ToUpper(key) {
	case "ID":
		e.ID = value
	case "UPDATED":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid UPDATED %q", value)
		}
		e.Updated = n
	case "CHECKSUM":
		e.Checksum = value
	default:
		e.Extra = append(e.Extra, Property{Key: key, Value: value})
	}
	return nil
}

// Encode writes the document in canonical form.
func (d *Document) Encode(w io.Writer) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "#+TITLE: %s\n", oneLine(d.Title))
	if d.Updated != 0 {
		fmt.Fprintf(&buf, "#+UPDATED: %d\n", d.Updated)
	}
	if d.Checksum != "" {
		fmt.Fprintf(&buf, "#+CHECKSUM: %s\n", d.Checksum)
	}

	for _, e := range d.Entries {
		buf.WriteString("\n")
		keyword := keywordTodo
		if e.Done {
			keyword = keywordDone
		}
		fmt.Fprintf(&buf, "* %s %s\n", keyword, oneLine(e.Title))
		if e.Deadline != "" {
			fmt.Fprintf(&buf, "DEADLINE: <%s>\n", deadlineStamp(e.Deadline))
		}
		buf.WriteString(":PROPERTIES:\n")
		if e.ID != "" {
			fmt.Fprintf(&buf, ":ID: %s\n", e.ID)
		}
		if e.Updated != 0 {
			fmt.Fprintf(&buf, ":UPDATED: %d\n", e.Updated)
		}
		if e.Checksum != "" {
			fmt.Fprintf(&buf, ":CHECKSUM: %s\n", e.Checksum)
		}
		for _, p := range e.Extra {
			fmt.Fprintf(&buf, ":%s: %s\n", p.Key, p.Value)
		}
		buf.WriteString(":END:\n")
		if body := trimBody(e.Body); body != "" {
			for _, line := range strings.Split(body, "\n") {
				if strings.HasPrefix(strings.TrimLeft(line, ","), "*") {
					line = "," + line
				}
				buf.WriteString(line)
				buf.WriteString("\n")
			}
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// Marshal returns the encoded document.
func (d *Document) Marshal() []byte {
	var buf bytes.Buffer
	_ = d.Encode(&buf)
	return buf.Bytes()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func trimBody(s string) string {
	return strings.TrimRight(s, "\n\t ")
}

// escaped reports whether a body line was quoted with a leading comma so
// that it does not read as a headline.
func escaped(line string) bool {
	return strings.HasPrefix(line, ",") && strings.HasPrefix(strings.TrimLeft(line, ","), "*")
}

// deadlineStamp renders an org date stamp, "2024-02-15 Thu".
func deadlineStamp(date string) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("2006-01-02 Mon")
}
