package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RonPlusSign/workstream/internal/models"
)

func (s *Server) handleMe(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": me, "displayName": me.DisplayName()})
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	var req ProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	me.FirstName = req.FirstName
	me.LastName = req.LastName
	me.Location = req.Location
	me.ImageRef = req.ImageRef

	if err := s.teams.PutUser(c.Request.Context(), me); err != nil {
		log.Printf("failed to update profile: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	// names live in the identity provider too; keep both sides in step and
	// surface a partial write instead of swallowing it
	if s.identity != nil {
		if err := s.syncProviderNames(c.Request.Context(), me.Email, req.FirstName, req.LastName); err != nil {
			log.Printf("profile stored but identity provider sync failed for %s: %v", me.Email, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider sync failed"})

			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "user": me})
}

// syncProviderNames pushes a name change back to the identity provider so
// tokens issued later carry the new given/family names.
func (s *Server) syncProviderNames(ctx context.Context, email, firstname, lastname string) error {
	admin, err := s.identity.LoginAdmin(ctx)
	if err != nil {
		return err
	}

	user, err := s.identity.GetUserByEmail(ctx, admin.AccessToken, email)
	if err != nil {
		return err
	}
	if user.ID == nil {
		return fmt.Errorf("provider account for %s carries no id", email)
	}

	return s.identity.UpdateNames(ctx, admin.AccessToken, *user.ID, firstname, lastname)
}

// handleSuggestedStatuses serves the fixed suggestion list for the free-form
// status field.
func (s *Server) handleSuggestedStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": models.SuggestedStatuses})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	admin, err := s.identity.LoginAdmin(c.Request.Context())
	if err != nil {
		log.Printf("identity provider admin login failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "identity provider unavailable"})

		return
	}

	if _, err := s.identity.Register(c.Request.Context(), admin.AccessToken,
		req.Email, req.Password, req.FirstName, req.LastName); err != nil {
		log.Printf("failed to register user: %v", err)
		c.JSON(http.StatusConflict, gin.H{"error": "registration failed"})

		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	jwt, err := s.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  jwt.AccessToken,
		"refresh_token": jwt.RefreshToken,
		"expires_in":    jwt.ExpiresIn,
	})
}
