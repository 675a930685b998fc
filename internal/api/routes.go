package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"interviewrec/internal/service"
	"interviewrec/session"
)

// statusCode maps service errors onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case service.IsConflict(err):
		return http.StatusConflict
	case service.IsPrecondition(err):
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusCode(err), gin.H{"error": err.Error()})
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.opts.Version})
}

func (s *Server) startRecording(c *gin.Context) {
	var req startRequest
	if !bindOptional(c, &req) {
		return
	}
	sess, err := s.Recording.Start(c.Request.Context(), req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (s *Server) stopRecording(c *gin.Context) {
	var req stopRequest
	if !bindOptional(c, &req) {
		return
	}
	sess, job, err := s.Recording.Stop(c.Request.Context(), s.wantTranscript(req.Transcribe))
	if err != nil {
		body := gin.H{"error": err.Error()}
		if sess != nil {
			body["session"] = sess
		}
		c.AbortWithStatusJSON(statusCode(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "job": job})
}

func (s *Server) submitTranscription(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := s.Transcription.Submit(c.Request.Context(), req.Path, service.Options{
		Language: req.Language,
		Model:    req.Model,
		Mode:     req.Mode,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

func (s *Server) cancel(c *gin.Context) {
	if err := s.Recording.Cancel(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.Recording.Status())
}

func (s *Server) recordings(c *gin.Context) {
	recs, err := s.Recording.Library.List()
	if err != nil {
		abortWithError(c, err)
		return
	}
	if recs == nil {
		recs = []*session.Recording{}
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recs})
}

func (s *Server) deleteRecording(c *gin.Context) {
	err := s.Recording.Library.Delete(c.Param("name"))
	switch {
	case errors.Is(err, session.ErrRecordingNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		abortWithError(c, err)
	default:
		c.Status(http.StatusNoContent)
	}
}
