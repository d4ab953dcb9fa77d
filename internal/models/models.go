// Package models defines the domain records persisted as documents:
// users, teams, tasks, comments and chat messages. Records carry data and
// defaults only; the behavior lives in taskview, taskedit, chat and teams.
package models

import (
	"fmt"
	"time"

	"github.com/RonPlusSign/workstream/internal/utils"
)

// Collection names, by convention of the persisted document shapes.
const (
	CollectionTeams = "Teams"
	CollectionTasks = "tasks"
	CollectionUsers = "users"
)

const (
	// DefaultSection is the section every team starts with and every task
	// falls back to. A task's section is never empty.
	DefaultSection = "General"

	// NewTaskTitle is the sentinel title of a task that has not been saved yet.
	NewTaskTitle = "New Task"

	// TimeLayout is the format used for due dates in history entries.
	TimeLayout = "2006-01-02 15:04"
)

// SuggestedStatuses is the fixed list offered for the free-form status field.
var SuggestedStatuses = []string{"To do", "In progress", "Blocked", "Done"}

// HistoryEntry is one append-only audit line on a task.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Entry     string    `json:"entry"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskid"`
	Author    string    `json:"author"` // display name
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Task struct {
	ID          string         `json:"id"`
	TeamID      string         `json:"teamid"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Completed   bool           `json:"completed"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Status      string         `json:"status,omitempty"`
	Assignee    string         `json:"assignee,omitempty"` // assignee display name, "" means anyone
	Section     string         `json:"section"`
	Recurring   bool           `json:"recurring"`
	Frequency   string         `json:"frequency,omitempty"`
	Attachments []string       `json:"attachments"`
	Comments    []Comment      `json:"comments"`
	History     []HistoryEntry `json:"history"`
}

// NewTask returns an unsaved task for the given team. The sentinel title
// marks it as not-yet-created for the edit pipeline.
func NewTask(teamID string) Task {
	return Task{
		TeamID:      teamID,
		Title:       NewTaskTitle,
		Section:     DefaultSection,
		Attachments: []string{},
		Comments:    []Comment{},
		History:     []HistoryEntry{},
	}
}

// MarkComplete flips the completion flag. Completion is monotonic for
// non-recurring tasks; recurring tasks reset instead of completing.
func (t *Task) MarkComplete() {
	if t.Recurring {
		return
	}
	t.Completed = true
}

// AppendHistory adds one audit line at the given time.
func (t *Task) AppendHistory(at time.Time, entry string) {
	t.History = append(t.History, HistoryEntry{Timestamp: at, Entry: entry})
}

// EnsureSection enforces the never-empty-section invariant.
func (t *Task) EnsureSection() {
	if t.Section == "" {
		t.Section = DefaultSection
	}
}

type Team struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Members  []string `json:"members"` // user emails
	Tasks    []string `json:"tasks"`   // task ids
	Sections []string `json:"sections"`
	Admin    string   `json:"admin,omitempty"` // must be a member when set
	ImageRef string   `json:"image_ref,omitempty"`
}

// NewTeam returns a team with its creator as first member and admin and the
// default section in place.
func NewTeam(name, creatorEmail string) Team {
	return Team{
		Name:     name,
		Members:  []string{creatorEmail},
		Tasks:    []string{},
		Sections: []string{DefaultSection},
		Admin:    creatorEmail,
	}
}

// HasMember reports whether the given email is a current member.
func (t Team) HasMember(email string) bool {
	return utils.Contains(t.Members, email)
}

// User is keyed by email, the durable identifier handed out by the identity
// provider.
type User struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Location  string `json:"location,omitempty"`
	ImageRef  string `json:"image_ref,omitempty"`

	Teams []string `json:"teams"` // team ids
	Tasks []string `json:"tasks"` // assigned task ids

	// ChatPartners maps a partner's email to the chat channel shared with them.
	ChatPartners map[string]string `json:"chat_partners,omitempty"`
}

// DisplayName renders the user as "first last", the form the task pipeline
// matches assignees against.
func (u User) DisplayName() string {
	return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"` // author email
	Timestamp time.Time `json:"timestamp"`
	SeenBy    []string  `json:"seen_by"` // user emails that rendered it
}

// SeenByUser reports whether the given user already appears in the seen-set.
func (m ChatMessage) SeenByUser(email string) bool {
	return utils.Contains(m.SeenBy, email)
}
