package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type setPreferenceRequest struct {
	Value any `json:"value"`
}

func (s *Server) Me(c *gin.Context) {
	caller := callerFrom(c)
	if caller == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, newMeResponse(caller))
}

func (s *Server) ListPreferences(c *gin.Context) {
	caller := callerFrom(c)
	if err := caller.Prefs.Load(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": caller.Prefs.Values()})
}

func (s *Server) GetPreference(c *gin.Context) {
	component, key, ok := preferencePath(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	caller := callerFrom(c)
	if err := caller.Prefs.Load(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	value, found := caller.Prefs.Values()[component][key]
	if !found {
		AbortWithError(c, ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"component": component, "key": key, "value": value})
}

func (s *Server) SetPreference(c *gin.Context) {
	component, key, ok := preferencePath(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req setPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	caller := callerFrom(c)
	if err := caller.Prefs.Set(c.Request.Context(), component, key, req.Value); err != nil {
		AbortWithError(c, err)
		return
	}
	value := caller.Prefs.Values()[component][key]
	c.JSON(http.StatusOK, gin.H{"component": component, "key": key, "value": value})
}

func (s *Server) DeletePreference(c *gin.Context) {
	component, key, ok := preferencePath(c)
	if !ok {
		AbortWithError(c, invalidRequestError())
		return
	}

	caller := callerFrom(c)
	if err := caller.Prefs.Delete(c.Request.Context(), component, key); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func preferencePath(c *gin.Context) (string, string, bool) {
	component := strings.TrimSpace(c.Param("component"))
	key := strings.TrimSpace(c.Param("key"))
	return component, key, component != "" && key != ""
}
