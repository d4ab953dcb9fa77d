package app

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
)

func newID() string {
	return uuid.NewString()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func mustEmail(c *gin.Context) (string, bool) {
	v, ok := c.Get("auth.email")
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// currentUser resolves the authenticated principal to its user document,
// provisioning the document from the token claims on first contact. Writes
// the error response itself when it fails.
func (s *Server) currentUser(c *gin.Context) (models.User, bool) {
	email, ok := mustEmail(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

		return models.User{}, false
	}

	user, err := s.teams.GetUser(c.Request.Context(), email)
	if err == nil {
		return user, true
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("failed to load user %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return models.User{}, false
	}

	user = models.User{
		Email:        email,
		FirstName:    c.GetString("auth.firstname"),
		LastName:     c.GetString("auth.lastname"),
		Teams:        []string{},
		Tasks:        []string{},
		ChatPartners: map[string]string{},
	}
	if err := s.teams.PutUser(c.Request.Context(), user); err != nil {
		log.Printf("failed to provision user %s: %v", email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return models.User{}, false
	}

	return user, true
}

// teamGuard protects routes carrying a :teamid parameter: only members of
// that team pass, and with adminOnly set only its admin does.
func (s *Server) teamGuard(adminOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		me, ok := s.currentUser(c)
		if !ok {
			c.Abort()
			return
		}

		team, err := s.teams.GetTeam(c.Request.Context(), c.Param("teamid"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "team not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "db error"})
			return
		}

		if !team.HasMember(me.Email) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a team member"})
			return
		}
		if adminOnly && team.Admin != me.Email {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}

		c.Next()
	}
}

// memberTask resolves the :taskid task and verifies the caller belongs to
// the task's team. Writes the error response itself when it fails.
func (s *Server) memberTask(c *gin.Context) (models.Task, models.User, bool) {
	me, ok := s.currentUser(c)
	if !ok {
		return models.Task{}, models.User{}, false
	}

	task, err := s.teams.GetTask(c.Request.Context(), c.Param("taskid"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return models.Task{}, models.User{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return models.Task{}, models.User{}, false
	}

	team, err := s.teams.GetTeam(c.Request.Context(), task.TeamID)
	if err != nil {
		log.Printf("task %s references unresolvable team %s: %v", task.ID, task.TeamID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return models.Task{}, models.User{}, false
	}
	if !team.HasMember(me.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a team member"})
		return models.Task{}, models.User{}, false
	}

	return task, me, true
}
