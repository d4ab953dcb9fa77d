// Package taskedit holds the in-progress edits to a single task: per-field
// slots with per-field validation errors, and a save step that writes a
// human-readable diff of the edit into the task's audit history.
package taskedit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RonPlusSign/workstream/internal/models"
)

// State of an edit session.
type State int

const (
	Pristine State = iota // task loaded, no edits yet
	Editing
	Saved
	Discarded
)

// ErrInvalid is returned by Save when validation fails; the per-field error
// messages carry the details.
var ErrInvalid = errors.New("task fails validation")

// FieldErrors holds the inline error message per validated field. Empty
// string means the field is fine.
type FieldErrors struct {
	Title   string
	DueDate string
	Section string
}

func (f FieldErrors) ok() bool {
	return f.Title == "" && f.DueDate == "" && f.Section == ""
}

// Editor is the edit state machine for one task. Single-writer: one session
// edits one task at a time, concurrent editors on other devices are resolved
// last-write-wins by the store.
type Editor struct {
	task   *models.Task
	before models.Task // deep snapshot taken at Load
	state  State

	// Now is the clock used for validation and history timestamps.
	Now func() time.Time

	Title       string
	Description string
	Assignee    string
	Section     string
	Status      string
	Frequency   string
	DueDate     *time.Time
	Recurring   bool
	Attachments []string
	Comments    []models.Comment

	Errors FieldErrors
}

func New() *Editor {
	return &Editor{Now: time.Now}
}

// Load snapshots the task and fills every field slot from it. Error slots
// are cleared.
func (e *Editor) Load(t *models.Task) {
	e.task = t
	e.before = deepCopy(*t)
	e.state = Pristine
	e.Errors = FieldErrors{}

	e.Title = t.Title
	e.Description = t.Description
	e.Assignee = t.Assignee
	e.Section = t.Section
	e.Status = t.Status
	e.Frequency = t.Frequency
	e.Recurring = t.Recurring
	if t.DueDate != nil {
		due := *t.DueDate
		e.DueDate = &due
	} else {
		e.DueDate = nil
	}
	e.Attachments = append([]string{}, t.Attachments...)
	e.Comments = append([]models.Comment{}, t.Comments...)
}

func (e *Editor) SetTitle(v string)       { e.Title = v; e.state = Editing }
func (e *Editor) SetDescription(v string) { e.Description = v; e.state = Editing }
func (e *Editor) SetAssignee(v string)    { e.Assignee = v; e.state = Editing }
func (e *Editor) SetSection(v string)     { e.Section = v; e.state = Editing }
func (e *Editor) SetStatus(v string)      { e.Status = v; e.state = Editing }
func (e *Editor) SetFrequency(v string)   { e.Frequency = v; e.state = Editing }
func (e *Editor) SetRecurring(v bool)     { e.Recurring = v; e.state = Editing }

func (e *Editor) SetDueDate(v *time.Time) {
	if v != nil {
		due := *v
		e.DueDate = &due
	} else {
		e.DueDate = nil
	}
	e.state = Editing
}

func (e *Editor) AddAttachment(ref string) {
	e.Attachments = append(e.Attachments, ref)
	e.state = Editing
}

func (e *Editor) AddComment(c models.Comment) {
	e.Comments = append(e.Comments, c)
	e.state = Editing
}

func (e *Editor) State() State { return e.state }

// Before returns the pre-edit snapshot.
func (e *Editor) Before() models.Task { return e.before }

// Validate trims the title and checks the three validated fields: non-blank
// title, due date not before now, non-blank section. Reports overall
// validity.
func (e *Editor) Validate() bool {
	e.Errors = FieldErrors{}

	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		e.Errors.Title = "Title cannot be empty"
	}
	if e.DueDate != nil && e.DueDate.Before(e.Now()) {
		e.Errors.DueDate = "Due date cannot be in the past"
	}
	if e.Section == "" {
		e.Errors.Section = "Section cannot be empty"
	}

	return e.Errors.ok()
}

// Save diffs the slots against the pre-edit snapshot, appends one history
// entry per changed field in fixed order, copies the slots onto the live
// task and returns it. A snapshot titled with the new-task sentinel yields a
// single "Task created" entry instead of the per-field diff.
func (e *Editor) Save() (*models.Task, error) {
	if !e.Validate() {
		return nil, ErrInvalid
	}

	now := e.Now()
	if e.before.Title == models.NewTaskTitle {
		e.task.AppendHistory(now, "Task created")
	} else {
		for _, entry := range e.diff() {
			e.task.AppendHistory(now, entry)
		}
	}

	e.task.Title = e.Title
	e.task.Description = e.Description
	e.task.Assignee = e.Assignee
	e.task.Section = e.Section
	e.task.Status = e.Status
	e.task.Frequency = e.Frequency
	e.task.Recurring = e.Recurring
	e.task.DueDate = e.DueDate
	e.task.Attachments = append([]string{}, e.Attachments...)
	e.task.Comments = append([]models.Comment{}, e.Comments...)
	e.task.EnsureSection()

	e.state = Saved

	return e.task, nil
}

// diff renders the changed fields in fixed order: title, assignee, section,
// due date, status, frequency, then attachment and comment count deltas.
func (e *Editor) diff() []string {
	var entries []string

	if e.before.Title != e.Title {
		entries = append(entries, changed("Title", e.before.Title, e.Title))
	}
	if e.before.Assignee != e.Assignee {
		entries = append(entries, changed("Assignee",
			fallback(e.before.Assignee, "anyone"), fallback(e.Assignee, "anyone")))
	}
	if e.before.Section != e.Section {
		entries = append(entries, changed("Section", e.before.Section, e.Section))
	}
	if !sameTime(e.before.DueDate, e.DueDate) {
		entries = append(entries, changed("Due date",
			formatDue(e.before.DueDate), formatDue(e.DueDate)))
	}
	if e.before.Status != e.Status {
		entries = append(entries, changed("Status",
			fallback(e.before.Status, "to do"), fallback(e.Status, "to do")))
	}
	if e.before.Frequency != e.Frequency {
		entries = append(entries, changed("Frequency",
			fallback(e.before.Frequency, "no frequency"), fallback(e.Frequency, "no frequency")))
	}
	if len(e.before.Attachments) != len(e.Attachments) {
		entries = append(entries, changed("Attachments",
			fmt.Sprint(len(e.before.Attachments)), fmt.Sprint(len(e.Attachments))))
	}
	if len(e.before.Comments) != len(e.Comments) {
		entries = append(entries, changed("Comments",
			fmt.Sprint(len(e.before.Comments)), fmt.Sprint(len(e.Comments))))
	}

	return entries
}

// Discard restores every slot from the snapshot without touching the live
// task.
func (e *Editor) Discard() {
	restored := e.before
	e.Load(&restored)
	e.task = nil
	e.state = Discarded
}

// IsExpired compares calendar days only: a due date earlier today is not
// expired, only strictly earlier days are.
func (e *Editor) IsExpired() bool {
	if e.DueDate == nil {
		return false
	}

	due := e.DueDate.Format("2006-01-02")
	today := e.Now().Format("2006-01-02")

	return due < today
}

// --- helpers ---

func changed(field, from, to string) string {
	return fmt.Sprintf("%s changed from '%s' to '%s'", field, from, to)
}

func fallback(v, whenEmpty string) string {
	if v == "" {
		return whenEmpty
	}

	return v
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "no deadline"
	}

	return t.Format(models.TimeLayout)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Equal(*b)
}

func deepCopy(t models.Task) models.Task {
	out := t
	if t.DueDate != nil {
		due := *t.DueDate
		out.DueDate = &due
	}
	out.Attachments = append([]string{}, t.Attachments...)
	out.Comments = append([]models.Comment{}, t.Comments...)
	out.History = append([]models.HistoryEntry{}, t.History...)

	return out
}
