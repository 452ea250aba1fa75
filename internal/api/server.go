// Package api exposes the tuning database over HTTP for inspection and
// maintenance. The server is read-mostly; the write surface is limited
// to storing individual payloads and deleting payloads or whole records.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/convtune/internal/logger"
	"github.com/samcharles93/convtune/internal/perfdb"
)

type Server struct {
	db  *perfdb.DB
	log logger.Logger
}

func NewServer(db *perfdb.DB, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{db: db, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/records", s.handleListRecords)
	e.GET("/v1/records/:key", s.handleGetRecord)
	e.PUT("/v1/records/:key/:id", s.handlePutValue)
	e.DELETE("/v1/records/:key", s.handleDeleteRecord)
	e.DELETE("/v1/records/:key/:id", s.handleDeleteValue)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleListRecords(c *echo.Context) error {
	keys, err := s.db.Keys()
	if err != nil {
		return s.writeInternal(c, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(http.StatusOK, RecordList{Keys: keys, Count: len(keys)})
}

func (s *Server) handleGetRecord(c *echo.Context) error {
	key := c.Param("key")
	rec, err := s.findRecord(key)
	if err != nil {
		if errors.Is(err, perfdb.ErrKeyNotFound) {
			return writeNotFound(c, "no record for key")
		}
		return s.writeInternal(c, err)
	}
	return c.JSON(http.StatusOK, recordDTO(rec))
}

func (s *Server) handlePutValue(c *echo.Context) error {
	key := c.Param("key")
	id := c.Param("id")

	req, err := decodeJSON[PutValueRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if req.Payload == "" {
		return writeBadRequest(c, "payload must not be empty")
	}

	rec, err := s.findRecord(key)
	if err != nil && !errors.Is(err, perfdb.ErrKeyNotFound) {
		return s.writeInternal(c, err)
	}
	if rec == nil {
		rec = perfdb.NewRecord(key)
	}
	if !rec.SetRaw(id, req.Payload) {
		return writeBadRequest(c, "payload contains a structural delimiter")
	}
	if err := s.db.UpdateRecord(rec); err != nil {
		return s.writeInternal(c, err)
	}
	s.log.Info("record updated", "key", key, "id", id)
	return c.JSON(http.StatusOK, recordDTO(rec))
}

func (s *Server) handleDeleteRecord(c *echo.Context) error {
	key := c.Param("key")
	removed, err := s.db.RemoveRecord(key)
	if err != nil {
		return s.writeInternal(c, err)
	}
	if !removed {
		return writeNotFound(c, "no record for key")
	}
	s.log.Info("record removed", "key", key)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteValue(c *echo.Context) error {
	key := c.Param("key")
	id := c.Param("id")
	removed, err := s.db.Remove(key, id)
	if err != nil {
		return s.writeInternal(c, err)
	}
	if !removed {
		return writeNotFound(c, "no payload for id")
	}
	s.log.Info("payload removed", "key", key, "id", id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"db":     s.db.Path(),
	})
}

// findRecord maps the absent-key case onto ErrKeyNotFound so handlers
// branch on one error.
func (s *Server) findRecord(key string) (*perfdb.Record, error) {
	rec, err := s.db.FindRecord(key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, perfdb.ErrKeyNotFound
	}
	return rec, nil
}

func (s *Server) writeInternal(c *echo.Context, err error) error {
	s.log.Error("request failed", "error", err)
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
}
