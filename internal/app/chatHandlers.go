package app

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RonPlusSign/workstream/internal/chat"
	"github.com/RonPlusSign/workstream/internal/models"
	"github.com/RonPlusSign/workstream/internal/store"
)

func (s *Server) handleGroupMessages(c *gin.Context) {
	s.listMessages(c, chat.GroupCollection(c.Param("teamid")))
}

func (s *Server) handleDirectMessages(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}
	s.listMessages(c, chat.DirectCollection(c.Param("teamid"), me.Email, c.Param("partner")))
}

// listMessages renders a channel chronologically and, as a side effect of
// the render, marks every message the viewer has not seen yet.
func (s *Server) listMessages(c *gin.Context, collection string) {
	email, ok := mustEmail(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	msgs, err := s.chat.Messages(c.Request.Context(), collection)
	if err != nil {
		log.Printf("failed to list messages: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	for _, m := range msgs {
		if m.SeenByUser(email) {
			continue
		}
		if err := s.chat.MarkSeen(c.Request.Context(), collection, m.ID, email); err != nil {
			log.Printf("failed to mark message %s seen: %v", m.ID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"items": msgs})
}

func (s *Server) handleGroupSend(c *gin.Context) {
	email, ok := mustEmail(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req MessageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	msg, err := s.chat.SendGroup(c.Request.Context(), c.Param("teamid"), email, req.Text)
	if err != nil {
		log.Printf("failed to send group message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "message": msg})
}

func (s *Server) handleDirectSend(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	msg, err := s.chat.SendDirect(c.Request.Context(),
		c.Param("teamid"), me.Email, c.Param("partner"), req.Text)
	if err != nil {
		log.Printf("failed to send direct message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "ok", "message": msg})
}

func (s *Server) handleGroupMessageEdit(c *gin.Context) {
	s.editMessage(c, chat.GroupCollection(c.Param("teamid")))
}

func (s *Server) handleDirectMessageEdit(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}
	s.editMessage(c, chat.DirectCollection(c.Param("teamid"), me.Email, c.Param("partner")))
}

func (s *Server) editMessage(c *gin.Context, collection string) {
	var req MessageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}

	err := s.chat.Edit(c.Request.Context(), collection, c.Param("msgid"), req.Text)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		log.Printf("failed to edit message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGroupMessageDelete(c *gin.Context) {
	s.deleteMessage(c, chat.GroupCollection(c.Param("teamid")))
}

func (s *Server) handleDirectMessageDelete(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}
	s.deleteMessage(c, chat.DirectCollection(c.Param("teamid"), me.Email, c.Param("partner")))
}

func (s *Server) deleteMessage(c *gin.Context, collection string) {
	err := s.chat.Delete(c.Request.Context(), collection, c.Param("msgid"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		log.Printf("failed to delete message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGroupStream(c *gin.Context) {
	s.streamMessages(c, chat.GroupCollection(c.Param("teamid")))
}

func (s *Server) handleDirectStream(c *gin.Context) {
	me, ok := s.currentUser(c)
	if !ok {
		return
	}
	s.streamMessages(c, chat.DirectCollection(c.Param("teamid"), me.Email, c.Param("partner")))
}

func (s *Server) streamMessages(c *gin.Context, collection string) {
	sub, err := s.chat.Subscribe(c.Request.Context(), collection)
	if err != nil {
		log.Printf("failed to subscribe to chat: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})

		return
	}
	defer sub.Cancel()

	c.Stream(func(w io.Writer) bool {
		docs, ok := <-sub.C
		if !ok {
			return false
		}

		msgs := make([]models.ChatMessage, 0, len(docs))
		for _, d := range docs {
			var m models.ChatMessage
			if err := d.Decode(&m); err != nil {
				log.Printf("skipping undecodable message document %s: %v", d.ID, err)
				continue
			}
			m.ID = d.ID
			msgs = append(msgs, m)
		}
		chat.SortByTimestamp(msgs)

		c.SSEvent("messages", msgs)
		return true
	})
}
