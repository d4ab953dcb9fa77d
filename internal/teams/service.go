// Package teams manages teams, memberships, sections and task ownership on
// top of the document store. Operations that must keep two documents in
// lock-step (create team, add/remove task) run in a store transaction;
// membership and assignment back-references are dual independent writes,
// with partial failures surfaced to the caller instead of swallowed.
package teams

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
	"github.com/RonPlusSign/workstream/internal/utils"
)

var (
	// ErrSectionInUse rejects removing a section while a task references it.
	ErrSectionInUse = errors.New("section still referenced by tasks")

	// ErrNotMember rejects admin assignment to a non-member.
	ErrNotMember = errors.New("user is not a team member")

	// ErrDefaultSection rejects removing the default section.
	ErrDefaultSection = errors.New("the default section cannot be removed")
)

type Service struct {
	store store.Client
}

func NewService(st store.Client) *Service {
	return &Service{store: st}
}

// CreateTeam creates the team document and attaches it to the creator's
// membership list atomically. A missing creator document is provisioned on
// the spot.
func (s *Service) CreateTeam(ctx context.Context, name string, creator models.User) (models.Team, error) {
	team := models.NewTeam(name, creator.Email)

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.Add(ctx, models.CollectionTeams, team)
		if err != nil {
			return err
		}
		team.ID = id

		_, err = tx.Get(ctx, models.CollectionUsers, creator.Email)
		if errors.Is(err, store.ErrNotFound) {
			creator.Teams = []string{id}
			return tx.Set(ctx, models.CollectionUsers, creator.Email, creator)
		}
		if err != nil {
			return err
		}

		return tx.Update(ctx, models.CollectionUsers, creator.Email,
			store.ArrayAdd("teams", id))
	})
	if err != nil {
		return models.Team{}, err
	}

	return team, nil
}

// GetTeam returns the team or store.ErrNotFound, never a partial record.
func (s *Service) GetTeam(ctx context.Context, teamID string) (models.Team, error) {
	doc, err := s.store.Get(ctx, models.CollectionTeams, teamID)
	if err != nil {
		return models.Team{}, err
	}

	var team models.Team
	if err := doc.Decode(&team); err != nil {
		return models.Team{}, err
	}
	team.ID = doc.ID

	return team, nil
}

// GetUser returns the user keyed by email or store.ErrNotFound.
func (s *Service) GetUser(ctx context.Context, email string) (models.User, error) {
	doc, err := s.store.Get(ctx, models.CollectionUsers, email)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	if err := doc.Decode(&user); err != nil {
		return models.User{}, err
	}

	return user, nil
}

// PutUser upserts a user profile document.
func (s *Service) PutUser(ctx context.Context, user models.User) error {
	return s.store.Set(ctx, models.CollectionUsers, user.Email, user)
}

// Join adds the user to the team and the team to the user. The two writes
// are independent: if the second fails the first is not rolled back, the
// error tells the caller which side is stale.
func (s *Service) Join(ctx context.Context, teamID, email string) error {
	if err := s.store.Update(ctx, models.CollectionTeams, teamID,
		store.ArrayAdd("members", email)); err != nil {
		return err
	}

	if err := s.store.Update(ctx, models.CollectionUsers, email,
		store.ArrayAdd("teams", teamID)); err != nil {
		log.Printf("teams: member %s added to team %s but membership back-reference failed: %v",
			email, teamID, err)
		return fmt.Errorf("membership back-reference: %w", err)
	}

	return nil
}

// RemoveMember detaches the user from the team. When the admin leaves, the
// first remaining member inherits the role; an emptied team keeps no admin.
func (s *Service) RemoveMember(ctx context.Context, teamID, email string) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}

	remaining := utils.Filter(team.Members, func(m string) bool { return m != email })
	admin := team.Admin
	if admin == email {
		admin = ""
		if len(remaining) > 0 {
			admin = remaining[0]
		}
	}

	if err := s.store.Update(ctx, models.CollectionTeams, teamID,
		store.ArrayRemove("members", email),
		store.Set("admin", admin)); err != nil {
		return err
	}

	if err := s.store.Update(ctx, models.CollectionUsers, email,
		store.ArrayRemove("teams", teamID)); err != nil {
		log.Printf("teams: member %s removed from team %s but membership back-reference failed: %v",
			email, teamID, err)
		return fmt.Errorf("membership back-reference: %w", err)
	}

	return nil
}

// SetAdmin reassigns the designated admin. The admin must be a current
// member.
func (s *Service) SetAdmin(ctx context.Context, teamID, email string) error {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if !team.HasMember(email) {
		return ErrNotMember
	}

	return s.store.Update(ctx, models.CollectionTeams, teamID, store.Set("admin", email))
}

// AddSection appends a section name to the team. Duplicates are absorbed by
// the array-add set semantics.
func (s *Service) AddSection(ctx context.Context, teamID, name string) error {
	if name == "" {
		return fmt.Errorf("section name required")
	}

	return s.store.Update(ctx, models.CollectionTeams, teamID,
		store.ArrayAdd("sections", name))
}

// RemoveSection drops a section name, rejecting the default section and any
// section a task of the team still references.
func (s *Service) RemoveSection(ctx context.Context, teamID, name string) error {
	if name == models.DefaultSection {
		return ErrDefaultSection
	}

	inUse, err := s.store.List(ctx, models.CollectionTasks,
		store.Query{"teamid": teamID, "section": name})
	if err != nil {
		return err
	}
	if len(inUse) > 0 {
		return ErrSectionInUse
	}

	return s.store.Update(ctx, models.CollectionTeams, teamID,
		store.ArrayRemove("sections", name))
}

// AddTask stores the task and attaches it to the team's task list and
// section list in one transaction.
func (s *Service) AddTask(ctx context.Context, task models.Task) (models.Task, error) {
	task.EnsureSection()

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		id, err := tx.Add(ctx, models.CollectionTasks, task)
		if err != nil {
			return err
		}
		task.ID = id

		return tx.Update(ctx, models.CollectionTeams, task.TeamID,
			store.ArrayAdd("tasks", id),
			store.ArrayAdd("sections", task.Section))
	})
	if err != nil {
		return models.Task{}, err
	}

	return task, nil
}

// SaveTask persists an edited task and keeps the team's section list
// covering it.
func (s *Service) SaveTask(ctx context.Context, task models.Task) error {
	task.EnsureSection()

	return s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Set(ctx, models.CollectionTasks, task.ID, task); err != nil {
			return err
		}

		return tx.Update(ctx, models.CollectionTeams, task.TeamID,
			store.ArrayAdd("sections", task.Section))
	})
}

// GetTask returns one task document.
func (s *Service) GetTask(ctx context.Context, taskID string) (models.Task, error) {
	doc, err := s.store.Get(ctx, models.CollectionTasks, taskID)
	if err != nil {
		return models.Task{}, err
	}

	var task models.Task
	if err := doc.Decode(&task); err != nil {
		return models.Task{}, err
	}
	task.ID = doc.ID

	return task, nil
}

// DeleteTask removes the task document and detaches it from its team
// atomically.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	return s.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Delete(ctx, models.CollectionTasks, taskID); err != nil {
			return err
		}

		return tx.Update(ctx, models.CollectionTeams, task.TeamID,
			store.ArrayRemove("tasks", taskID))
	})
}

// Assign delegates the task to the user: the task stores the display name
// the view pipeline matches on, the user stores the task id back-reference.
// Two independent writes, partial failure is reported.
func (s *Service) Assign(ctx context.Context, taskID string, assignee models.User) error {
	if err := s.store.Update(ctx, models.CollectionTasks, taskID,
		store.Set("assignee", assignee.DisplayName())); err != nil {
		return err
	}

	if err := s.store.Update(ctx, models.CollectionUsers, assignee.Email,
		store.ArrayAdd("tasks", taskID)); err != nil {
		log.Printf("teams: task %s assigned but assignment back-reference failed: %v", taskID, err)
		return fmt.Errorf("assignment back-reference: %w", err)
	}

	return nil
}

// CompleteTask marks a task complete. Completion is monotonic for
// non-recurring tasks; recurring tasks are left untouched.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (models.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return models.Task{}, err
	}

	task.MarkComplete()
	if err := s.store.Set(ctx, models.CollectionTasks, task.ID, task); err != nil {
		return models.Task{}, err
	}

	return task, nil
}

// TeamTasks returns the raw task collection of one team, the input to the
// derive pipeline.
func (s *Service) TeamTasks(ctx context.Context, teamID string) ([]models.Task, error) {
	return s.listTasks(ctx, store.Query{"teamid": teamID})
}

// AssignedTasks returns the raw tasks delegated to the given display name.
func (s *Service) AssignedTasks(ctx context.Context, displayName string) ([]models.Task, error) {
	return s.listTasks(ctx, store.Query{"assignee": displayName})
}

func (s *Service) listTasks(ctx context.Context, q store.Query) ([]models.Task, error) {
	docs, err := s.store.List(ctx, models.CollectionTasks, q)
	if err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(docs))
	for _, d := range docs {
		var t models.Task
		if err := d.Decode(&t); err != nil {
			return nil, err
		}
		t.ID = d.ID
		tasks = append(tasks, t)
	}

	return tasks, nil
}

// SubscribeTeamTasks opens a live subscription on one team's tasks.
func (s *Service) SubscribeTeamTasks(ctx context.Context, teamID string) (*store.Subscription, error) {
	return s.store.Subscribe(ctx, models.CollectionTasks, store.Query{"teamid": teamID})
}

// AddComment appends a comment to the task's comment list.
func (s *Service) AddComment(ctx context.Context, taskID string, comment models.Comment) error {
	return s.store.Update(ctx, models.CollectionTasks, taskID,
		store.ArrayAdd("comments", comment))
}

// DeleteComment drops one comment by id. Removing a comment that is already
// gone reports store.ErrNotFound.
func (s *Service) DeleteComment(ctx context.Context, taskID, commentID string) error {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	kept := utils.Filter(task.Comments, func(c models.Comment) bool { return c.ID != commentID })
	if len(kept) == len(task.Comments) {
		return store.ErrNotFound
	}

	return s.store.Update(ctx, models.CollectionTasks, taskID,
		store.Set("comments", kept))
}
