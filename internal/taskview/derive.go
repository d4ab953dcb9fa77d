// Package taskview derives the task list a view renders: a pure pipeline of
// sort, filter, scope and free-text search over the latest document
// snapshot. It never mutates its input and filtering only ever removes
// elements, so the result order is always the sort step's order.
package taskview

import (
	"sort"
	"strings"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/utils"
)

// SortKey selects the sort field. Unrecognized keys keep the input order.
type SortKey string

const (
	SortDueDate   SortKey = "Due date"
	SortTitleAZ   SortKey = "A-Z order"
	SortTitleZA   SortKey = "Z-A order"
	SortAssignee  SortKey = "Assignee"
	SortBySection SortKey = "Section"
)

// Filters are the view's filter toggles. String filters are inactive when
// empty. Completed is always evaluated as an exact match against the toggle
// state: there is no "don't care" setting, so completed=false excludes
// completed tasks and completed=true excludes incomplete ones.
type Filters struct {
	Section   string // case-insensitive substring on the task section
	Assignee  string // case-insensitive substring on the assignee display name
	Status    string // exact status match
	Completed bool
}

// Apply keeps every task for which all active predicates hold. Applying the
// same filters twice yields the same list.
func (f Filters) Apply(tasks []models.Task) []models.Task {
	return utils.Filter(tasks, func(t models.Task) bool {
		if f.Section != "" && !containsFold(t.Section, f.Section) {
			return false
		}
		if f.Assignee != "" && !containsFold(t.Assignee, f.Assignee) {
			return false
		}
		if f.Status != "" && t.Status != f.Status {
			return false
		}

		return t.Completed == f.Completed
	})
}

// Scope restricts a view to one user's tasks (exact assignee display name,
// the "my tasks" view) or one section (exact section name, the team board
// column). Zero value means no restriction.
type Scope struct {
	AssigneeName string
	Section      string
}

func (s Scope) keep(t models.Task) bool {
	if s.AssigneeName != "" && t.Assignee != s.AssigneeName {
		return false
	}
	if s.Section != "" && t.Section != s.Section {
		return false
	}

	return true
}

// Derive produces the ordered, filtered view list: sort by key, drop tasks
// failing the filters, restrict to the scope, then match the free-text query
// against titles.
func Derive(tasks []models.Task, key SortKey, f Filters, query string, scope Scope) []models.Task {
	out := Sort(tasks, key)
	out = f.Apply(out)
	out = utils.Filter(out, scope.keep)

	if query != "" {
		out = utils.Filter(out, func(t models.Task) bool {
			return containsFold(t.Title, query)
		})
	}

	return out
}

// Sort returns a stably sorted copy. "Z-A order" is the exact reverse of the
// stable "A-Z order" result, which differs from a descending title sort when
// titles tie.
func Sort(tasks []models.Task, key SortKey) []models.Task {
	out := make([]models.Task, len(tasks))
	copy(out, tasks)

	switch key {
	case SortDueDate:
		// tasks without a due date order first, ascending after that
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].DueDate, out[j].DueDate
			switch {
			case a == nil && b == nil:
				return false
			case a == nil:
				return true
			case b == nil:
				return false
			default:
				return a.Before(*b)
			}
		})
	case SortTitleAZ:
		sortByFold(out, func(t models.Task) string { return t.Title })
	case SortTitleZA:
		sortByFold(out, func(t models.Task) string { return t.Title })
		reverse(out)
	case SortAssignee:
		sortByFold(out, func(t models.Task) string { return t.Assignee })
	case SortBySection:
		sortByFold(out, func(t models.Task) string { return t.Section })
	}

	return out
}

func sortByFold(tasks []models.Task, field func(models.Task) string) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return strings.ToLower(field(tasks[i])) < strings.ToLower(field(tasks[j]))
	})
}

func reverse(tasks []models.Task) {
	for i, j := 0, len(tasks)-1; i < j; i, j = i+1, j-1 {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
