package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// streamBoard pushes a board snapshot as a server-sent event on connect and
// after every board or notification change. EventSource cannot set headers,
// so the token may also be passed as a query parameter.
func (s *Server) streamBoard(c echo.Context) error {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token := c.QueryParam("token"); authHeader == "" && token != "" {
		authHeader = bearerPrefix + token
	}
	owner, err := s.auth.OwnerFromAuthHeader(authHeader)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	ctx := c.Request().Context()
	ctrl, err := s.boards.Get(ctx, owner)
	if err != nil {
		s.logger.WithField("owner", owner).WithError(err).Error("board load failed")
		return c.String(http.StatusBadGateway, "failed to load board")
	}

	res := c.Response()
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	changes, cancel := ctrl.Subscribe()
	defer cancel()

	for {
		data, err := sonic.Marshal(snapshot(ctrl))
		if err != nil {
			s.logger.WithField("owner", owner).WithError(err).Error("encode board snapshot")
			return err
		}
		if err := writeEvent(res, data); err != nil {
			s.logger.WithField("owner", owner).WithError(err).Debug("stream closed")
			return nil
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return nil
		case <-changes:
		}
	}
}

func writeEvent(w http.ResponseWriter, data []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
