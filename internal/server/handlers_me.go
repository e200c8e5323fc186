package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const defaultTransactionLimit = 50

func (a *App) getMe(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	account, err := a.store.GetUser(c.Request.Context(), user.ID)
	if err != nil {
		a.writeDomainError(c, err, userNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         account.ID,
		"email":      account.Email,
		"name":       account.Name,
		"balance":    account.Balance,
		"created_at": account.CreatedAt,
	})
}

func (a *App) listMyTransactions(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	limit := parseLimit(c, "limit", defaultTransactionLimit, maxChatListLimit)
	txs, err := a.store.ListTransactions(c.Request.Context(), user.ID, limit)
	if err != nil {
		a.writeDomainError(c, err, userNotFound)
		return
	}

	items := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, transactionResponse{
			ID:          tx.ID,
			Amount:      tx.Amount,
			Type:        tx.Type,
			Description: tx.Description,
			MessageID:   tx.MessageID,
			CreatedAt:   tx.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items})
}
