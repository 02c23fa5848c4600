package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/board"
	"prism-board/domain"
)

// Server holds the dependencies of the board HTTP API.
type Server struct {
	boards  Boards
	auth    Authenticator
	sender  *Sender
	deduper Deduper
	logger  *log.Logger
}

// NewServer creates the API. deduper may be nil to disable idempotency keys.
func NewServer(boards Boards, auth Authenticator, sender *Sender, deduper Deduper, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{boards: boards, auth: auth, sender: sender, deduper: deduper, logger: logger}
}

// Register wires up all API routes on the provided Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", healthz)

	g := e.Group("/api")
	g.GET("/board", instrument(s.logger, "/api/board", s.getBoard))
	g.POST("/board/reload", instrument(s.logger, "/api/board/reload", s.reloadBoard))
	g.POST("/board/drag", instrument(s.logger, "/api/board/drag", s.dragTask))
	g.POST("/tasks", instrument(s.logger, "/api/tasks", s.createTask))
	g.PUT("/tasks/:id", instrument(s.logger, "/api/tasks/:id", s.editTask))
	g.POST("/tasks/:id/toggle", instrument(s.logger, "/api/tasks/:id/toggle", s.toggleTask))
	g.DELETE("/tasks/:id", instrument(s.logger, "/api/tasks/:id", s.deleteTask))
	g.GET("/notification", instrument(s.logger, "/api/notification", s.getNotification))
	g.DELETE("/notification/:id", instrument(s.logger, "/api/notification/:id", s.closeNotification))
	g.GET("/stream", s.streamBoard)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// controller authenticates the request and returns its owner's controller. On
// failure the response has been written and the returned controller is nil.
func (s *Server) controller(c echo.Context) (*board.Controller, error) {
	m := metricsFrom(c)

	authStart := time.Now()
	owner, err := s.auth.OwnerFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	m.ObserveAuth(time.Since(authStart))
	if err != nil {
		m.SetErrorStage("auth")
		return nil, c.String(http.StatusUnauthorized, err.Error())
	}
	m.SetOwner(owner)

	loadStart := time.Now()
	ctrl, err := s.boards.Get(c.Request().Context(), owner)
	m.ObserveLoad(time.Since(loadStart))
	if err != nil {
		m.SetErrorStage("load")
		s.logger.WithField("owner", owner).WithError(err).Error("board load failed")
		return nil, c.String(http.StatusBadGateway, "failed to load board")
	}
	return ctrl, nil
}

func (s *Server) respond(c echo.Context, status int, ctrl *board.Controller) error {
	return s.write(c, status, snapshot(ctrl))
}

func (s *Server) write(c echo.Context, status int, resp boardResponse) error {
	m := metricsFrom(c)
	encodeStart := time.Now()
	err := c.JSON(status, resp)
	m.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) getBoard(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	return s.respond(c, http.StatusOK, ctrl)
}

func (s *Server) reloadBoard(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	if err := ctrl.Load(c.Request().Context()); err != nil {
		metricsFrom(c).SetErrorStage("reload")
		s.logger.WithField("owner", ctrl.Owner()).WithError(err).Error("board reload failed")
		return c.String(http.StatusBadGateway, "failed to reload board")
	}
	return s.respond(c, http.StatusOK, ctrl)
}

func (s *Server) dragTask(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	var r domain.DragResult
	if err := decodeBody(c, &r); err != nil {
		metricsFrom(c).SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	mut, err := ctrl.Drag(r)
	if err != nil {
		metricsFrom(c).SetErrorStage("drag")
		if errors.Is(err, domain.ErrInvalidDrag) {
			return c.String(http.StatusBadRequest, err.Error())
		}
		return c.String(http.StatusInternalServerError, err.Error())
	}
	if mut == nil {
		return s.respond(c, http.StatusOK, ctrl)
	}
	return s.submit(c, ctrl, *mut, "")
}

func (s *Server) createTask(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	var d domain.TaskDraft
	if err := decodeBody(c, &d); err != nil {
		metricsFrom(c).SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	mut, err := ctrl.Create(d)
	if err != nil {
		metricsFrom(c).SetErrorStage("validate")
		return c.String(http.StatusBadRequest, err.Error())
	}

	key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
	if key != "" && s.deduper != nil {
		added, err := s.deduper.Add(c.Request().Context(), ctrl.Owner(), key)
		if err != nil {
			metricsFrom(c).SetErrorStage("dedupe")
			s.logger.WithField("owner", ctrl.Owner()).WithError(err).Error("dedupe check failed")
			return c.String(http.StatusInternalServerError, "failed to check idempotency key")
		}
		if !added {
			metricsFrom(c).SetErrorStage("duplicate")
			return c.String(http.StatusConflict, "duplicate idempotency key")
		}
	} else {
		key = ""
	}

	return s.submit(c, ctrl, *mut, key)
}

func (s *Server) editTask(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	var d domain.TaskDraft
	if err := decodeBody(c, &d); err != nil {
		metricsFrom(c).SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	mut, err := ctrl.Edit(c.Param("id"), d)
	if err != nil {
		return s.mutationError(c, err)
	}
	return s.submit(c, ctrl, *mut, "")
}

func (s *Server) toggleTask(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	mut, err := ctrl.Toggle(c.Param("id"))
	if err != nil {
		return s.mutationError(c, err)
	}
	return s.submit(c, ctrl, *mut, "")
}

func (s *Server) deleteTask(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	mut, err := ctrl.Delete(c.Param("id"))
	if err != nil {
		return s.mutationError(c, err)
	}
	return s.submit(c, ctrl, *mut, "")
}

func (s *Server) mutationError(c echo.Context, err error) error {
	m := metricsFrom(c)
	switch {
	case errors.Is(err, board.ErrUnknownTask):
		m.SetErrorStage("unknown_task")
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyTitle):
		m.SetErrorStage("validate")
		return c.String(http.StatusBadRequest, err.Error())
	default:
		m.SetErrorStage("mutation")
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

// submit hands the mutation to the sender and answers 202 with the board as
// it stands. queued is false when the mutation already ran inline.
func (s *Server) submit(c echo.Context, ctrl *board.Controller, mut board.Mutation, dedupeKey string) error {
	queued := s.sender.Submit(mutationJob{ctrl: ctrl, mutation: mut, dedupeKey: dedupeKey})
	metricsFrom(c).SetQueued(queued)
	resp := snapshot(ctrl)
	resp.Queued = &queued
	return s.write(c, http.StatusAccepted, resp)
}

func (s *Server) getNotification(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	note, ok := ctrl.Notifier().Current()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, note)
}

func (s *Server) closeNotification(c echo.Context) error {
	ctrl, err := s.controller(c)
	if ctrl == nil {
		return err
	}
	ctrl.Notifier().Close(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
