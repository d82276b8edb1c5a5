package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
)

// maxMessageLength bounds a single chat message.
const maxMessageLength = 100_000

// listChatsHandler handles GET /api/chats.
func (s *Server) listChatsHandler(c *gin.Context) {
	chats, err := s.chats.GetUserChats(c.Request.Context(), callerID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// createChatHandler handles POST /api/chats.
func (s *Server) createChatHandler(c *gin.Context) {
	var req models.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}

	chat, err := s.chats.CreateChat(c.Request.Context(), callerID(c), models.Chat{
		ID:             req.ID,
		Name:           req.Name,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// getChatHandler handles GET /api/chats/:chatId.
func (s *Server) getChatHandler(c *gin.Context) {
	chat, err := s.chats.GetChatByID(c.Request.Context(), callerID(c), c.Param("chatId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// deleteChatHandler handles DELETE /api/chats/:chatId. Owner only.
func (s *Server) deleteChatHandler(c *gin.Context) {
	if err := s.chats.DeleteChat(c.Request.Context(), callerID(c), c.Param("chatId")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listMessagesHandler handles GET /api/chats/:chatId/messages.
func (s *Server) listMessagesHandler(c *gin.Context) {
	msgs, err := s.chats.GetChatMessages(c.Request.Context(), callerID(c), c.Param("chatId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// sendMessageHandler handles POST /api/chats/:chatId/messages. The message
// takes the same path as one sent over the WebSocket, so the assistant
// answers it under the same rules.
func (s *Server) sendMessageHandler(c *gin.Context) {
	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if len(req.Content) > maxMessageLength {
		abortBadRequest(c, "content exceeds maximum length of 100,000 characters")
		return
	}
	userID := callerID(c)
	if req.Sender == "" {
		req.Sender = userID
	}

	msg, err := s.relay.SendUserMessage(c.Request.Context(), userID, c.Param("chatId"), req, req.RepositoryName)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// getMessageHandler handles GET /api/chats/:chatId/messages/:messageId.
func (s *Server) getMessageHandler(c *gin.Context) {
	msg, err := s.chats.TryGetChatMessage(c.Request.Context(), callerID(c), c.Param("chatId"), c.Param("messageId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if msg == nil {
		abortWithError(c, services.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// deleteMessageHandler handles DELETE /api/chats/:chatId/messages/:messageId.
func (s *Server) deleteMessageHandler(c *gin.Context) {
	deleted, err := s.chats.DeleteChatMessage(c.Request.Context(), callerID(c), c.Param("chatId"), c.Param("messageId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !deleted {
		abortWithError(c, services.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// renameChatHandler handles PUT /api/chats/:chatId/rename.
func (s *Server) renameChatHandler(c *gin.Context) {
	var req models.RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	chat, err := s.chats.RenameChat(c.Request.Context(), callerID(c), c.Param("chatId"), req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// pinChatHandler handles PUT /api/chats/:chatId/pin. Pinning is per viewer.
func (s *Server) pinChatHandler(c *gin.Context) {
	var req models.PinChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	chatID := c.Param("chatId")
	changed, err := s.chats.PinChat(c.Request.Context(), callerID(c), chatID, req.IsPinned)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, PinResponse{ChatID: chatID, IsPinned: req.IsPinned, Changed: changed})
}

// addParticipantHandler handles POST /api/chats/:chatId/participants/:participantId.
func (s *Server) addParticipantHandler(c *gin.Context) {
	chatID, participantID := c.Param("chatId"), c.Param("participantId")
	added, err := s.chats.AddParticipant(c.Request.Context(), callerID(c), chatID, participantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if added {
		s.relay.NotifyParticipantAdded(c.Request.Context(), chatID, participantID)
	}
	c.JSON(http.StatusOK, ParticipantResponse{ChatID: chatID, ParticipantID: participantID, Changed: added})
}

// removeParticipantHandler handles DELETE /api/chats/:chatId/participants/:participantId.
func (s *Server) removeParticipantHandler(c *gin.Context) {
	chatID, participantID := c.Param("chatId"), c.Param("participantId")
	removed, err := s.chats.RemoveParticipant(c.Request.Context(), callerID(c), chatID, participantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ParticipantResponse{ChatID: chatID, ParticipantID: participantID, Changed: removed})
}

// getChatRepositoryHandler handles GET /api/chats/:chatId/repository.
func (s *Server) getChatRepositoryHandler(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("chatId")

	// access check
	if _, err := s.chats.GetChatByID(ctx, callerID(c), chatID); err != nil {
		abortWithError(c, err)
		return
	}
	name, err := s.chats.GetCurrentRepository(ctx, chatID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ChatRepositoryResponse{ChatID: chatID, RepositoryName: name})
}

// updateChatRepositoryHandler handles PUT /api/chats/:chatId/repository.
func (s *Server) updateChatRepositoryHandler(c *gin.Context) {
	var req models.UpdateRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	chat, err := s.chats.UpdateChatRepository(c.Request.Context(), callerID(c), c.Param("chatId"), req.RepositoryName)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}
