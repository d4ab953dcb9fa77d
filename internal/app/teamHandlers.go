package app

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
	"github.com/RonPlusSign/workstream/internal/teams"
)

func (s *Server) handleTeamCreate(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	var req CreateTeamRequest
	if err := c.ShouldBind(&req); err != nil {
		log.Printf("failed to bind input: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})

		return
	}

	team, err := s.teams.CreateTeam(c.Request.Context(), req.Name, me)
	if err != nil {
		log.Printf("failed to create the team: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "ok",
		"team":   team,
		"invite": BuildInviteLink(s.config.InviteHost, team.ID),
	})
}

func (s *Server) handleTeamGet(c *gin.Context) {
	team, err := s.teams.GetTeam(c.Request.Context(), c.Param("teamid"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team":   team,
		"invite": BuildInviteLink(s.config.InviteHost, team.ID),
	})
}

func (s *Server) handleMyTeams(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	items := make([]models.Team, 0, len(me.Teams))
	for _, id := range me.Teams {
		team, err := s.teams.GetTeam(c.Request.Context(), id)
		if err != nil {
			// a stale back-reference is skipped, not fatal
			log.Printf("skipping unresolvable team %s of %s: %v", id, me.Email, err)
			continue
		}
		items = append(items, team)
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// handleTeamJoin confirms an opened invite deep link.
func (s *Server) handleTeamJoin(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	var req JoinTeamRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	teamID, err := ParseInviteLink(req.Link)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invite link"})
		return
	}

	if err := s.teams.Join(c.Request.Context(), teamID, me.Email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		log.Printf("failed to join team: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "teamid": teamID})
}

// handleInvitePreview resolves an invite to the summary shown on the
// confirm-join screen.
func (s *Server) handleInvitePreview(c *gin.Context) {
	team, err := s.teams.GetTeam(c.Request.Context(), c.Param("teamid"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"teamid":      team.ID,
		"name":        team.Name,
		"memberCount": len(team.Members),
	})
}

// handleMemberRemove lets the admin remove any member and any member leave
// on their own.
func (s *Server) handleMemberRemove(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	removed := c.Param("email")
	if removed != me.Email {
		team, err := s.teams.GetTeam(c.Request.Context(), c.Param("teamid"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
			return
		}
		if team.Admin != me.Email {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin required"})
			return
		}
	}

	err := s.teams.RemoveMember(c.Request.Context(), c.Param("teamid"), removed)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		log.Printf("failed to remove member: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSetAdmin(c *gin.Context) {
	var req SetAdminRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	err := s.teams.SetAdmin(c.Request.Context(), c.Param("teamid"), req.Email)
	if err != nil {
		if errors.Is(err, teams.ErrNotMember) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "admin must be a member"})
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSectionAdd(c *gin.Context) {
	var req AddSectionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	err := s.teams.AddSection(c.Request.Context(), c.Param("teamid"), req.Name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
			return
		}
		log.Printf("failed to add section: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

func (s *Server) handleSectionRemove(c *gin.Context) {
	err := s.teams.RemoveSection(c.Request.Context(), c.Param("teamid"), c.Param("name"))
	if err != nil {
		switch {
		case errors.Is(err, teams.ErrSectionInUse):
			c.JSON(http.StatusConflict, gin.H{"error": "section still referenced by tasks"})
		case errors.Is(err, teams.ErrDefaultSection):
			c.JSON(http.StatusBadRequest, gin.H{"error": "the default section cannot be removed"})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "team not found"})
		default:
			log.Printf("failed to remove section: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
