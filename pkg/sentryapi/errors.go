// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sentryapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// errNotCampaignCreator is returned for campaign mutations (update, close,
// a PAY event) attempted by anyone other than the campaign's recorded
// creator.
var errNotCampaignCreator = errors.New("sentryapi: caller is not this campaign's creator")

// respondError writes {message} at the given status, the response shape
// used across validation/auth/not-found/conflict failures.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func badRequest(c *gin.Context, err error)   { respondError(c, http.StatusBadRequest, err.Error()) }
func unauthorized(c *gin.Context, err error) { respondError(c, http.StatusUnauthorized, err.Error()) }
func notFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, message)
}
func conflict(c *gin.Context, message string) { respondError(c, http.StatusConflict, message) }
func internalError(c *gin.Context, err error) {
	respondError(c, http.StatusInternalServerError, err.Error())
}

func success(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}
