package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"todo-stream/date"
	"todo-stream/domain"
)

const createMaxSize = 64 * 1024

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, eng Engine, gw Gateway, auth Authenticator, logger *log.Logger) {
	e.GET("/api/todos", getTodos(eng, auth, logger))
	e.GET("/api/trash", getTrash(eng, auth, logger))
	e.POST("/api/todos", postTodo(gw, auth))
	e.POST("/api/todos/:id/toggle", toggleTodo(eng, gw, auth))
	e.PUT("/api/todos/:id/priority", putPriority(eng, gw, auth))
	e.DELETE("/api/todos/:id", deleteTodo(eng, gw, auth))
	e.POST("/api/todos/:id/restore", restoreTodo(eng, gw, auth))
	e.GET("/stream", streamTodos(eng, auth))
	e.GET("/healthz", healthz)
}

type snapshotResponse struct {
	Todos   []domain.Task `json:"todos"`
	Loading bool          `json:"loading"`
}

type streamPayload struct {
	Todos   []domain.Task `json:"todos"`
	Trash   []domain.Task `json:"trash"`
	Loading bool          `json:"loading"`
}

type createRequest struct {
	Text     string `json:"text"`
	Deadline string `json:"deadline"`
	Priority int    `json:"priority"`
}

type priorityRequest struct {
	Priority int `json:"priority"`
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func getTodos(eng Engine, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return snapshotHandler(auth, logger, "/api/todos", eng.Active, eng.Loading)
}

func getTrash(eng Engine, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return snapshotHandler(auth, logger, "/api/trash", eng.Deleted, eng.Loading)
}

func snapshotHandler(auth Authenticator, logger *log.Logger, route string, view func() []domain.Task, loading func() bool) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newSnapshotMetrics(ctx, logger, route)
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		tasks := view()
		metrics.SetTasksReturned(len(tasks))
		metrics.SetLoading(loading())
		err = c.JSON(http.StatusOK, snapshotResponse{Todos: tasks, Loading: loading()})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postTodo(gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		lr := io.LimitReader(c.Request().Body, createMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req createRequest
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		if err := gw.Create(c.Request().Context(), req.Text, req.Deadline, req.Priority); err != nil {
			if errors.Is(err, date.ErrFormat) {
				return c.String(http.StatusBadRequest, "invalid deadline")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create todo")
		}
		// The projection reflects the insert when the next store
		// notification fires, so the write is acknowledged, not echoed.
		return c.NoContent(http.StatusAccepted)
	}
}

func toggleTodo(eng Engine, gw Gateway, auth Authenticator) echo.HandlerFunc {
	return mutateByID(eng, auth, anyView, func(c echo.Context, t domain.Task) error {
		return gw.ToggleStatus(c.Request().Context(), t)
	})
}

func putPriority(eng Engine, gw Gateway, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req priorityRequest
		dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, createMaxSize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		t, ok := findTask(anyView(eng), c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		if err := gw.SetPriority(c.Request().Context(), t, req.Priority); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to set priority")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func deleteTodo(eng Engine, gw Gateway, auth Authenticator) echo.HandlerFunc {
	return mutateByID(eng, auth, activeView, func(c echo.Context, t domain.Task) error {
		return gw.SoftDelete(c.Request().Context(), t)
	})
}

func restoreTodo(eng Engine, gw Gateway, auth Authenticator) echo.HandlerFunc {
	return mutateByID(eng, auth, trashView, func(c echo.Context, t domain.Task) error {
		return gw.Restore(c.Request().Context(), t)
	})
}

func activeView(eng Engine) []domain.Task { return eng.Active() }
func trashView(eng Engine) []domain.Task  { return eng.Deleted() }
func anyView(eng Engine) []domain.Task    { return append(eng.Active(), eng.Deleted()...) }

func mutateByID(eng Engine, auth Authenticator, view func(Engine) []domain.Task, mutate func(echo.Context, domain.Task) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		t, ok := findTask(view(eng), c.Param("id"))
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		if err := mutate(c, t); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "write failed")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func findTask(tasks []domain.Task, id string) (domain.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

func streamTodos(eng Engine, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if token := c.QueryParam("token"); authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := eng.Subscribe()
		defer eng.Unsubscribe(ch)
		for {
			payload := streamPayload{
				Todos:   eng.Active(),
				Trash:   eng.Deleted(),
				Loading: eng.Loading(),
			}
			data, err := sonic.Marshal(payload)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
