package app

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
	"github.com/RonPlusSign/workstream/internal/taskedit"
	"github.com/RonPlusSign/workstream/internal/taskview"
)

// deriveParams reads the view parameters of a task list request: sort key,
// filter set, free-text query and the section scope.
func deriveParams(c *gin.Context) (taskview.SortKey, taskview.Filters, string, taskview.Scope) {
	completed, _ := strconv.ParseBool(c.DefaultQuery("completed", "false"))

	filters := taskview.Filters{
		Section:   c.Query("filter_section"),
		Assignee:  c.Query("filter_assignee"),
		Status:    c.Query("filter_status"),
		Completed: completed,
	}
	scope := taskview.Scope{Section: c.Query("section")}

	return taskview.SortKey(c.Query("sort")), filters, c.Query("query"), scope
}

func (s *Server) handleListTeamTasks(c *gin.Context) {
	teamID := c.Param("teamid")

	tasks, err := s.teams.TeamTasks(c.Request.Context(), teamID)
	if err != nil {
		log.Printf("failed to list team tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	key, filters, query, scope := deriveParams(c)
	items := taskview.Derive(tasks, key, filters, query, scope)

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"sort":  string(key),
		"query": query,
	})
}

func (s *Server) handleMyTasks(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	tasks, err := s.teams.AssignedTasks(c.Request.Context(), me.DisplayName())
	if err != nil {
		log.Printf("failed to list assigned tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	key, filters, query, _ := deriveParams(c)
	// the personal view is scoped to the exact display name, not a substring
	items := taskview.Derive(tasks, key, filters, query,
		taskview.Scope{AssigneeName: me.DisplayName()})

	c.JSON(http.StatusOK, gin.H{"items": items, "sort": string(key)})
}

// handleStreamTeamTasks serves the live subscription as SSE: every change to
// the team's tasks re-delivers the derived view list.
func (s *Server) handleStreamTeamTasks(c *gin.Context) {
	teamID := c.Param("teamid")
	key, filters, query, scope := deriveParams(c)

	sub, err := s.teams.SubscribeTeamTasks(c.Request.Context(), teamID)
	if err != nil {
		log.Printf("failed to subscribe to team tasks: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}
	defer sub.Cancel()

	c.Stream(func(w io.Writer) bool {
		docs, ok := <-sub.C
		if !ok {
			return false
		}

		tasks := make([]models.Task, 0, len(docs))
		for _, d := range docs {
			var t models.Task
			if err := d.Decode(&t); err != nil {
				log.Printf("skipping undecodable task document %s: %v", d.ID, err)
				continue
			}
			t.ID = d.ID
			tasks = append(tasks, t)
		}

		c.SSEvent("tasks", taskview.Derive(tasks, key, filters, query, scope))
		return true
	})
}

// applyEdit feeds the provided fields into the edit session; absent fields
// keep their loaded values.
func applyEdit(ed *taskedit.Editor, req TaskEditRequest) {
	if req.Title != nil {
		ed.SetTitle(*req.Title)
	}
	if req.Description != nil {
		ed.SetDescription(*req.Description)
	}
	if req.Assignee != nil {
		ed.SetAssignee(*req.Assignee)
	}
	if req.Section != nil {
		ed.SetSection(*req.Section)
	}
	if req.Status != nil {
		ed.SetStatus(*req.Status)
	}
	if req.Frequency != nil {
		ed.SetFrequency(*req.Frequency)
	}
	if req.Recurring != nil {
		ed.SetRecurring(*req.Recurring)
	}
	if req.ClearDueDate {
		ed.SetDueDate(nil)
	} else if req.DueDate != nil {
		ed.SetDueDate(req.DueDate)
	}
}

func validationErrors(ed *taskedit.Editor) gin.H {
	return gin.H{
		"title":    ed.Errors.Title,
		"due_date": ed.Errors.DueDate,
		"section":  ed.Errors.Section,
	}
}

// handleTaskCreate runs behind the member guard, so the team is known to
// exist.
func (s *Server) handleTaskCreate(c *gin.Context) {
	teamID := c.Param("teamid")

	var req TaskEditRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	task := models.NewTask(teamID)
	ed := taskedit.New()
	ed.Load(&task)
	applyEdit(ed, req)

	saved, err := ed.Save()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": validationErrors(ed)})
		return
	}

	created, err := s.teams.AddTask(c.Request.Context(), *saved)
	if err != nil {
		log.Printf("failed to create task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "task": created})
}

func (s *Server) handleTaskUpdate(c *gin.Context) {
	task, _, ok := s.memberTask(c)
	if !ok {
		return
	}

	var req TaskEditRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	ed := taskedit.New()
	ed.Load(&task)
	applyEdit(ed, req)

	saved, err := ed.Save()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": validationErrors(ed)})
		return
	}

	if err := s.teams.SaveTask(c.Request.Context(), *saved); err != nil {
		log.Printf("failed to save task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "task": saved})
}

func (s *Server) handleTaskDelete(c *gin.Context) {
	task, _, ok := s.memberTask(c)
	if !ok {
		return
	}

	err := s.teams.DeleteTask(c.Request.Context(), task.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		log.Printf("failed to delete task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTaskComplete(c *gin.Context) {
	if _, _, ok := s.memberTask(c); !ok {
		return
	}

	task, err := s.teams.CompleteTask(c.Request.Context(), c.Param("taskid"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		log.Printf("failed to complete task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "task": task})
}

func (s *Server) handleTaskAssign(c *gin.Context) {
	if _, _, ok := s.memberTask(c); !ok {
		return
	}

	var req AssignTaskRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	assignee, err := s.teams.GetUser(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	if err := s.teams.Assign(c.Request.Context(), c.Param("taskid"), assignee); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		log.Printf("failed to assign task: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCommentCreate(c *gin.Context) {
	task, me, ok := s.memberTask(c)
	if !ok {
		return
	}

	var req CommentRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	taskID := task.ID
	comment := models.Comment{
		ID:        newID(),
		TaskID:    taskID,
		Author:    me.DisplayName(),
		Text:      req.Text,
		CreatedAt: nowUTC(),
	}

	if err := s.teams.AddComment(c.Request.Context(), taskID, comment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		log.Printf("failed to add comment: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "comment": comment})
}

func (s *Server) handleCommentDelete(c *gin.Context) {
	if _, _, ok := s.memberTask(c); !ok {
		return
	}

	err := s.teams.DeleteComment(c.Request.Context(), c.Param("taskid"), c.Param("commentid"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
			return
		}
		log.Printf("failed to delete comment: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
