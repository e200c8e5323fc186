package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"personachat/backend/internal/store"
)

const chatNotFound = "Chat not found"

func (a *App) listChats(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}

	filter := store.ChatFilter{
		FavoritesOnly: parseBoolQuery(c, "favorites"),
		Tag:           strings.TrimSpace(c.Query("tag")),
		Limit:         parseLimit(c, "limit", defaultChatListLimit, maxChatListLimit),
		Offset:        parseLimit(c, "offset", 0, 1<<20),
	}
	chats, err := a.store.ListChats(c.Request.Context(), user.ID, filter)
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}

	items := make([]chatResponse, 0, len(chats))
	for _, chat := range chats {
		items = append(items, toChatResponse(chat))
	}
	c.JSON(http.StatusOK, gin.H{"chats": items})
}

func (a *App) createChat(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	var req createChatRequest
	if c.Request.ContentLength != 0 && !mustJSON(c, &req) {
		return
	}

	chat, err := a.store.CreateChat(c.Request.Context(), user.ID, req.Title, req.Tags)
	if err != nil {
		a.writeDomainError(c, err, "User not found")
		return
	}
	c.JSON(http.StatusCreated, toChatResponse(chat))
}

func (a *App) getChat(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	chat, err := a.store.GetChat(ctx, user.ID, c.Param("id"))
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}
	msgs, err := a.store.ListMessages(ctx, chat.ID)
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chat":     toChatResponse(chat),
		"messages": toMessageResponses(msgs),
	})
}

func (a *App) updateChat(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	var req updateChatRequest
	if !mustJSON(c, &req) {
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(c, http.StatusBadRequest, "Title must not be empty")
		return
	}

	chat, err := a.store.UpdateChat(c.Request.Context(), user.ID, c.Param("id"), store.ChatUpdate{
		Title:      req.Title,
		Tags:       req.Tags,
		IsFavorite: req.IsFavorite,
	})
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}
	c.JSON(http.StatusOK, toChatResponse(chat))
}

func (a *App) deleteChat(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	permanent := parseBoolQuery(c, "permanent")

	if err := a.store.DeleteChat(c.Request.Context(), user.ID, c.Param("id"), permanent); err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "permanent": permanent})
}

func (a *App) toggleFavorite(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	chat, err := a.store.GetChat(ctx, user.ID, c.Param("id"))
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}
	favorite := !chat.IsFavorite
	chat, err = a.store.UpdateChat(ctx, user.ID, chat.ID, store.ChatUpdate{IsFavorite: &favorite})
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}
	c.JSON(http.StatusOK, toChatResponse(chat))
}
