package teams

import (
	"context"
	"errors"
	"testing"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
)

func alice() models.User {
	return models.User{Email: "alice@x.org", FirstName: "Alice", LastName: "Doe"}
}

func newFixture(t *testing.T) (*Service, *store.Memory, models.Team) {
	t.Helper()

	st := store.NewMemory()
	svc := NewService(st)

	team, err := svc.CreateTeam(context.Background(), "Ops", alice())
	if err != nil {
		t.Fatalf("create team failed: %v", err)
	}

	return svc, st, team
}

func TestCreateTeamLinksBothDocuments(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	if team.ID == "" {
		t.Fatalf("team id not assigned")
	}
	if team.Admin != "alice@x.org" || !team.HasMember("alice@x.org") {
		t.Fatalf("creator is not member+admin: %+v", team)
	}
	if len(team.Sections) != 1 || team.Sections[0] != models.DefaultSection {
		t.Fatalf("sections = %v, want default only", team.Sections)
	}

	user, err := svc.GetUser(ctx, "alice@x.org")
	if err != nil {
		t.Fatalf("creator was not provisioned: %v", err)
	}
	if len(user.Teams) != 1 || user.Teams[0] != team.ID {
		t.Fatalf("creator teams = %v, want [%s]", user.Teams, team.ID)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	bob := models.User{Email: "bob@x.org", FirstName: "Bob", LastName: "Ray"}
	if err := svc.PutUser(ctx, bob); err != nil {
		t.Fatalf("put user failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Join(ctx, team.ID, "bob@x.org"); err != nil {
			t.Fatalf("join failed: %v", err)
		}
	}

	got, err := svc.GetTeam(ctx, team.ID)
	if err != nil {
		t.Fatalf("get team failed: %v", err)
	}
	if len(got.Members) != 2 {
		t.Fatalf("members = %v, want two distinct entries", got.Members)
	}
}

func TestJoinSurfacesBackReferenceFailure(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	// no user document for carol: the team-side write lands, the
	// back-reference fails and must be reported rather than swallowed
	err := svc.Join(ctx, team.ID, "carol@x.org")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("join returned %v, want wrapped ErrNotFound", err)
	}

	got, _ := svc.GetTeam(ctx, team.ID)
	if !got.HasMember("carol@x.org") {
		t.Fatalf("team-side write should have landed before the failure")
	}
}

func TestRemoveMemberReassignsAdmin(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	bob := models.User{Email: "bob@x.org", FirstName: "Bob", LastName: "Ray"}
	if err := svc.PutUser(ctx, bob); err != nil {
		t.Fatalf("put user failed: %v", err)
	}
	if err := svc.Join(ctx, team.ID, "bob@x.org"); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if err := svc.RemoveMember(ctx, team.ID, "alice@x.org"); err != nil {
		t.Fatalf("remove member failed: %v", err)
	}

	got, err := svc.GetTeam(ctx, team.ID)
	if err != nil {
		t.Fatalf("get team failed: %v", err)
	}
	if got.Admin != "bob@x.org" {
		t.Fatalf("admin = %q, want reassignment to remaining member", got.Admin)
	}
	if got.HasMember("alice@x.org") {
		t.Fatalf("removed member still present: %v", got.Members)
	}
}

func TestRemoveLastMemberClearsAdmin(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	if err := svc.RemoveMember(ctx, team.ID, "alice@x.org"); err != nil {
		t.Fatalf("remove member failed: %v", err)
	}

	got, _ := svc.GetTeam(ctx, team.ID)
	if got.Admin != "" {
		t.Fatalf("admin = %q, want empty for emptied team", got.Admin)
	}
}

func TestSetAdminRequiresMembership(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	if err := svc.SetAdmin(ctx, team.ID, "stranger@x.org"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("set admin returned %v, want ErrNotMember", err)
	}
}

func TestRemoveSectionRejectedWhileReferenced(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	task := models.NewTask(team.ID)
	task.Title = "Fix the printer"
	task.Section = "Hardware"
	task, err := svc.AddTask(ctx, task)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	if err := svc.RemoveSection(ctx, team.ID, "Hardware"); !errors.Is(err, ErrSectionInUse) {
		t.Fatalf("remove returned %v, want ErrSectionInUse", err)
	}

	// once the task is gone the section can go too
	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task failed: %v", err)
	}
	if err := svc.RemoveSection(ctx, team.ID, "Hardware"); err != nil {
		t.Fatalf("remove after delete failed: %v", err)
	}
}

func TestRemoveDefaultSectionRejected(t *testing.T) {
	svc, _, team := newFixture(t)

	err := svc.RemoveSection(context.Background(), team.ID, models.DefaultSection)
	if !errors.Is(err, ErrDefaultSection) {
		t.Fatalf("remove returned %v, want ErrDefaultSection", err)
	}
}

func TestAddTaskRegistersSection(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	task := models.NewTask(team.ID)
	task.Title = "Order pizza"
	task.Section = "Social"
	task, err := svc.AddTask(ctx, task)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("task id not assigned")
	}

	got, _ := svc.GetTeam(ctx, team.ID)
	if len(got.Tasks) != 1 || got.Tasks[0] != task.ID {
		t.Fatalf("team tasks = %v, want [%s]", got.Tasks, task.ID)
	}
	found := false
	for _, s := range got.Sections {
		if s == "Social" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sections = %v, missing the task's section", got.Sections)
	}
}

func TestAddTaskRolledBackOnMissingTeam(t *testing.T) {
	svc, st, _ := newFixture(t)
	ctx := context.Background()

	task := models.NewTask("no-such-team")
	task.Title = "Orphan"
	if _, err := svc.AddTask(ctx, task); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("add returned %v, want ErrNotFound", err)
	}

	docs, _ := st.List(ctx, models.CollectionTasks, nil)
	if len(docs) != 0 {
		t.Fatalf("task document survived a failed transaction")
	}
}

func TestDeleteTaskDetachesFromTeam(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	task := models.NewTask(team.ID)
	task.Title = "Short-lived"
	task, err := svc.AddTask(ctx, task)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	if err := svc.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task failed: %v", err)
	}
	if _, err := svc.GetTask(ctx, task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get after delete returned %v, want ErrNotFound", err)
	}

	got, _ := svc.GetTeam(ctx, team.ID)
	if len(got.Tasks) != 0 {
		t.Fatalf("team still references deleted task: %v", got.Tasks)
	}
}

func TestAssignWritesDisplayNameAndBackReference(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	task := models.NewTask(team.ID)
	task.Title = "Review PR"
	task, err := svc.AddTask(ctx, task)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	if err := svc.Assign(ctx, task.ID, alice()); err != nil {
		t.Fatalf("assign failed: %v", err)
	}

	got, _ := svc.GetTask(ctx, task.ID)
	if got.Assignee != "Alice Doe" {
		t.Fatalf("assignee = %q, want display name", got.Assignee)
	}
	user, _ := svc.GetUser(ctx, "alice@x.org")
	if len(user.Tasks) != 1 || user.Tasks[0] != task.ID {
		t.Fatalf("user tasks = %v, want [%s]", user.Tasks, task.ID)
	}

	assigned, err := svc.AssignedTasks(ctx, "Alice Doe")
	if err != nil {
		t.Fatalf("assigned tasks failed: %v", err)
	}
	if len(assigned) != 1 || assigned[0].ID != task.ID {
		t.Fatalf("assigned = %v, want the one task", assigned)
	}
}

func TestCompleteTaskLeavesRecurringUntouched(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	task := models.NewTask(team.ID)
	task.Title = "Water plants"
	task.Recurring = true
	task, err := svc.AddTask(ctx, task)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	done, err := svc.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Completed {
		t.Fatalf("recurring task must not complete")
	}

	plain := models.NewTask(team.ID)
	plain.Title = "File report"
	plain, _ = svc.AddTask(ctx, plain)
	done, err = svc.CompleteTask(ctx, plain.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !done.Completed {
		t.Fatalf("non-recurring task should complete")
	}
}

func TestSubscribeTeamTasksScopedToTeam(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := svc.SubscribeTeamTasks(ctx, team.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Cancel()
	<-sub.C // initial empty snapshot

	other, err := svc.CreateTeam(ctx, "Other", models.User{Email: "bob@x.org"})
	if err != nil {
		t.Fatalf("create team failed: %v", err)
	}
	foreign := models.NewTask(other.ID)
	foreign.Title = "Elsewhere"
	if _, err := svc.AddTask(ctx, foreign); err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	mine := models.NewTask(team.ID)
	mine.Title = "Here"
	if _, err := svc.AddTask(ctx, mine); err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	var last []store.Document
	for docs := range sub.C {
		last = docs
		if len(docs) > 0 {
			break
		}
	}
	if len(last) != 1 {
		t.Fatalf("snapshot has %d docs, want only this team's task", len(last))
	}
	var got models.Task
	if err := last[0].Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Title != "Here" {
		t.Fatalf("snapshot delivered %q, want the scoped task", got.Title)
	}
}

func TestAddComment(t *testing.T) {
	svc, _, team := newFixture(t)
	ctx := context.Background()

	task := models.NewTask(team.ID)
	task.Title = "Discuss"
	task, err := svc.AddTask(ctx, task)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}

	c := models.Comment{ID: "c1", TaskID: task.ID, Author: "Alice Doe", Text: "on it"}
	if err := svc.AddComment(ctx, task.ID, c); err != nil {
		t.Fatalf("add comment failed: %v", err)
	}

	got, _ := svc.GetTask(ctx, task.ID)
	if len(got.Comments) != 1 || got.Comments[0].Text != "on it" {
		t.Fatalf("comments = %v, want the one comment", got.Comments)
	}

	if err := svc.DeleteComment(ctx, task.ID, "c1"); err != nil {
		t.Fatalf("delete comment failed: %v", err)
	}
	got, _ = svc.GetTask(ctx, task.ID)
	if len(got.Comments) != 0 {
		t.Fatalf("comments = %v, want none after delete", got.Comments)
	}
	if err := svc.DeleteComment(ctx, task.ID, "c1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete returned %v, want ErrNotFound", err)
	}
}
