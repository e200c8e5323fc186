package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"personachat/backend/internal/profile"
)

const userNotFound = "User not found"

func (a *App) getProfile(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	p, err := a.store.GetProfile(c.Request.Context(), user.ID)
	if err != nil {
		a.writeDomainError(c, err, userNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

// replaceProfile overwrites the categories present in the body and leaves the
// others untouched.
func (a *App) replaceProfile(c *gin.Context) {
	user, ok := mustAuthUser(c)
	if !ok {
		return
	}
	var raw map[string][]string
	if !mustJSON(c, &raw) {
		return
	}
	edits := make(profile.Profile, len(raw))
	for key, items := range raw {
		cat, known := profile.ParseCategory(key)
		if !known {
			writeError(c, http.StatusBadRequest, "Unknown profile field: "+key)
			return
		}
		edits[cat] = items
	}

	updated, err := a.store.UpdateProfile(c.Request.Context(), user.ID, func(current profile.Profile) (profile.Profile, error) {
		cleaned := profile.Normalize(edits, a.caps)
		next := current.Clone()
		for cat := range edits {
			next[cat] = cleaned[cat]
		}
		return next, nil
	})
	if err != nil {
		a.writeDomainError(c, err, userNotFound)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// analyzeProfile previews what extraction would find in a piece of text.
// Nothing is persisted.
func (a *App) analyzeProfile(c *gin.Context) {
	if _, ok := mustAuthUser(c); !ok {
		return
	}
	var req analyzeProfileRequest
	if !mustJSON(c, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(c, http.StatusBadRequest, "Text is required")
		return
	}
	if a.extractor == nil {
		writeError(c, http.StatusServiceUnavailable, "Profile extraction is not configured")
		return
	}

	extracted, err := a.extractor.Extract(c.Request.Context(), text, "")
	if err != nil {
		a.writeDomainError(c, err, userNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"extracted":   extracted,
		"facts_count": extracted.Count(),
	})
}
