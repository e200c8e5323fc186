package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"personachat/backend/internal/profile"
	"personachat/backend/internal/relay"
)

func (a *App) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":        a.catalog.Models(),
		"default_model": a.cfg.DefaultModel,
		"exchange_rate": a.catalog.ExchangeRate(),
	})
}

// turnRequest reads the message body and snapshots the caller's balance and
// profile. A profile that cannot be loaded is sent as no profile.
func (a *App) turnRequest(c *gin.Context, user AuthUser) (relay.TurnRequest, bool) {
	var req messageRequest
	if !mustJSON(c, &req) {
		return relay.TurnRequest{}, false
	}
	ctx := c.Request.Context()

	account, err := a.store.GetUser(ctx, user.ID)
	if err != nil {
		a.writeDomainError(c, err, userNotFound)
		return relay.TurnRequest{}, false
	}
	var p profile.Profile
	if loaded, err := a.store.GetProfile(ctx, user.ID); err != nil {
		a.log.Warn("Profile unavailable for turn", "user_id", user.ID, "error", err)
	} else {
		p = loaded
	}

	return relay.TurnRequest{
		UserID:  user.ID,
		ChatID:  c.Param("id"),
		Content: req.Content,
		Model:   req.Model,
		Profile: p,
		Balance: account.Balance,
	}, true
}

func (a *App) sendMessage(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	turn, ok := a.turnRequest(c, user)
	if !ok {
		return
	}

	reply, err := a.relay.Send(c.Request.Context(), turn)
	if err != nil {
		a.writeDomainError(c, err, chatNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_message": toMessageResponse(reply.UserMessage),
		"message":      toMessageResponse(reply.Assistant),
		"balance":      reply.BalanceAfter,
	})
}

// streamMessage relays a turn as server-sent events. Failures before the start
// event are plain JSON errors; after it they arrive as an error event.
func (a *App) streamMessage(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	turn, ok := a.turnRequest(c, user)
	if !ok {
		return
	}

	started := false
	err := a.relay.Stream(c.Request.Context(), turn, func(ev relay.Event) {
		if !started {
			started = true
			header := c.Writer.Header()
			header.Set("Content-Type", "text/event-stream")
			header.Set("Cache-Control", "no-cache")
			header.Set("Connection", "keep-alive")
			header.Set("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		if werr := writeSSE(c, ev); werr != nil {
			a.log.Debug("SSE write failed", "chat_id", turn.ChatID, "error", werr)
		}
	})
	if err != nil && !started {
		a.writeDomainError(c, err, chatNotFound)
	}
}

func writeSSE(c *gin.Context, ev relay.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
