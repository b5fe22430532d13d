package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"collabnest/domain"
	"collabnest/realtime"
	"collabnest/storage"
)

// HeaderIdempotencyKey deduplicates task creation retries.
const HeaderIdempotencyKey = "Idempotency-Key"

// Register wires up all API routes on the provided Echo instance and starts
// the event publisher.
func Register(e *echo.Echo, deps Deps) {
	if deps.Log == nil {
		deps.Log = log.StandardLogger()
	}
	mw := []echo.MiddlewareFunc{RequestMetricsMiddleware(deps.Log), GzipRequestMiddleware()}

	e.GET("/api/tasks", listTasks(deps), mw...)
	e.POST("/api/tasks", createTask(deps), mw...)
	e.PUT("/api/tasks/order", reorderTasks(deps), mw...)
	e.GET("/api/tasks/:id", getTask(deps), mw...)
	e.PUT("/api/tasks/:id", updateTask(deps), mw...)
	e.PATCH("/api/tasks/:id/status", setTaskStatus(deps), mw...)
	e.DELETE("/api/tasks/:id", deleteTask(deps), mw...)
	e.GET("/api/organizations", listOrganizations(deps), mw...)
	e.POST("/api/organizations", createOrganization(deps), mw...)
	e.PUT("/api/organizations/:org/members/:user", addMember(deps), mw...)
	e.GET("/api/stream", streamEvents(deps.Auth, deps.Members, deps.Redis, deps.Log))
	e.GET("/healthz", healthz(deps.Redis))

	initEventPublisher(deps.Redis, deps.Sink, deps.Publisher, deps.Log)
}

func healthz(rc redis.UniversalClient) echo.HandlerFunc {
	return func(c echo.Context) error {
		if rc != nil {
			if err := rc.Ping(c.Request().Context()).Err(); err != nil {
				return c.String(http.StatusServiceUnavailable, "redis unavailable")
			}
		}
		return c.NoContent(http.StatusOK)
	}
}

func authenticate(c echo.Context, auth Authenticator) (string, error) {
	m := metricsFrom(c)
	start := time.Now()
	userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	m.ObserveAuth(time.Since(start))
	if err != nil {
		m.SetErrorStage("auth")
	}
	return userID, err
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func badRequest(c echo.Context, msg string) error {
	metricsFrom(c).SetErrorStage("validation")
	return c.String(http.StatusBadRequest, msg)
}

func storageFailure(c echo.Context, logger *log.Logger, err error) error {
	m := metricsFrom(c)
	if errors.Is(err, storage.ErrNotFound) {
		m.SetErrorStage("not_found")
		return c.String(http.StatusNotFound, "task not found")
	}
	m.SetErrorStage("storage")
	logger.WithError(err).WithField("route", c.Path()).Error("storage operation failed")
	return c.String(http.StatusInternalServerError, "storage failure")
}

// timed runs a storage call and records its duration on the request span.
func timed[T any](c echo.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(c.Request().Context())
	metricsFrom(c).ObserveStorage(time.Since(start))
	return v, err
}

// taskRoom is the room a task's events go to: its organization, or the
// owner's own room for personal tasks.
func taskRoom(t domain.Task, userID string) string {
	if t.Organization != "" {
		return realtime.OrgRoom(t.Organization)
	}
	if t.Owner != "" {
		return realtime.UserRoom(t.Owner)
	}
	return realtime.UserRoom(userID)
}

func ownedBy(tasks []domain.Task, userID string) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Owner == userID {
			out = append(out, t)
		}
	}
	return out
}

func notifyAssignment(previous string, t domain.Task) {
	if t.AssignedTo == "" || t.AssignedTo == previous || t.AssignedTo == domain.AssignedToEveryone {
		return
	}
	publish(t.ID, realtime.UserRoom(t.AssignedTo), domain.TaskAssignedEvent, domain.AssignmentNotice{
		TaskID:       t.ID,
		Title:        t.Title,
		Organization: t.Organization,
		Message:      "You have been assigned to task: " + t.Title,
	})
}

func listTasks(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		org := strings.TrimSpace(c.QueryParam("organization"))
		if err := checkOrganization(c.Request().Context(), deps.Members, org, userID); err != nil {
			return accessFailure(c, deps.Log, err)
		}
		tasks, err := timed(c, func(ctx context.Context) ([]domain.Task, error) {
			return deps.Store.ListTasks(ctx, org)
		})
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		if org == "" {
			tasks = ownedBy(tasks, userID)
		}
		metricsFrom(c).SetTasks(len(tasks))
		return c.JSON(http.StatusOK, domain.TaskList{Tasks: tasks})
	}
}

func getTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		t, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return deps.Store.GetTask(ctx, c.Param("id"))
		})
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		if err := checkTask(c.Request().Context(), deps.Members, t, userID); err != nil {
			return accessFailure(c, deps.Log, err)
		}
		metricsFrom(c).SetTasks(1)
		return c.JSON(http.StatusOK, t)
	}
}

func createTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var in domain.TaskInput
		if err := decodeBody(c, &in); err != nil {
			return badRequest(c, "invalid body")
		}
		if err := in.Validate(); err != nil {
			return badRequest(c, err.Error())
		}

		ctx := c.Request().Context()
		if err := checkOrganization(ctx, deps.Members, in.Organization, userID); err != nil {
			return accessFailure(c, deps.Log, err)
		}
		key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		if key == "" {
			key = in.ClientRef
		}
		in.ClientRef = key

		added := false
		if key != "" {
			fresh := true
			if deps.Deduper != nil {
				fresh, err = deps.Deduper.Add(ctx, userID, key)
				if err != nil {
					deps.Log.WithError(err).Warn("idempotency check failed; falling back to storage lookup")
					fresh = true
				} else {
					added = fresh
				}
			}
			existing, ferr := deps.Store.FindByClientRef(ctx, key)
			switch {
			case ferr == nil && existing.Owner != userID:
				metricsFrom(c).SetErrorStage("duplicate_key")
				return c.String(http.StatusConflict, "idempotency key belongs to another task")
			case ferr == nil:
				metricsFrom(c).SetTasks(1)
				return c.JSON(http.StatusOK, existing)
			case !errors.Is(ferr, storage.ErrNotFound):
				return storageFailure(c, deps.Log, ferr)
			case !fresh:
				metricsFrom(c).SetErrorStage("duplicate_in_flight")
				return c.String(http.StatusConflict, "request with this idempotency key is in progress")
			}
		}
		release := func() {
			if added {
				if rerr := deps.Deduper.Remove(bg, userID, key); rerr != nil {
					deps.Log.WithError(rerr).WithField("key", key).Error("dedupe rollback failed")
				}
			}
		}

		t := in.NewTask(uuid.NewString(), time.Now().UTC())
		t.Owner = userID
		if in.Order == nil {
			tasks, err := timed(c, func(ctx context.Context) ([]domain.Task, error) {
				return deps.Store.ListTasks(ctx, t.Organization)
			})
			if err != nil {
				release()
				return storageFailure(c, deps.Log, err)
			}
			t.Order = nextOrder(tasks, t.Status)
		}
		if _, err := timed(c, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deps.Store.CreateTask(ctx, t)
		}); err != nil {
			release()
			return storageFailure(c, deps.Log, err)
		}

		publish(t.ID, taskRoom(t, userID), domain.TaskCreatedEvent, t)
		notifyAssignment("", t)
		metricsFrom(c).SetTasks(1)
		return c.JSON(http.StatusCreated, t)
	}
}

// nextOrder places a new task at the end of its column.
func nextOrder(tasks []domain.Task, status domain.Status) int {
	next := 0
	for _, t := range tasks {
		if t.Status == status && t.Order >= next {
			next = t.Order + 1
		}
	}
	return next
}

func updateTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return badRequest(c, "invalid body")
		}
		if patch.IsEmpty() {
			return badRequest(c, "empty update")
		}
		if err := patch.Validate(); err != nil {
			return badRequest(c, err.Error())
		}
		return applyChange(c, deps, userID, patch.Apply)
	}
}

func setTaskStatus(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var body domain.StatusChange
		if err := decodeBody(c, &body); err != nil {
			return badRequest(c, "invalid body")
		}
		if !body.Status.Valid() {
			return badRequest(c, "invalid status")
		}
		return applyChange(c, deps, userID, func(t domain.Task) domain.Task {
			t.Status = body.Status
			return t
		})
	}
}

// applyChange loads the task named by the path, stores change(task) and
// publishes the result.
func applyChange(c echo.Context, deps Deps, userID string, change func(domain.Task) domain.Task) error {
	id := c.Param("id")
	current, err := timed(c, func(ctx context.Context) (domain.Task, error) {
		return deps.Store.GetTask(ctx, id)
	})
	if err != nil {
		return storageFailure(c, deps.Log, err)
	}
	ctx := c.Request().Context()
	if err := checkTask(ctx, deps.Members, current, userID); err != nil {
		return accessFailure(c, deps.Log, err)
	}

	next := change(current.Clone())
	next.ID = current.ID
	next.Owner = current.Owner
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	if next.Organization != current.Organization {
		if err := checkOrganization(ctx, deps.Members, next.Organization, userID); err != nil {
			return accessFailure(c, deps.Log, err)
		}
		if next.Organization == "" {
			// A task taken off a board becomes personal to whoever moved it.
			next.Owner = userID
		}
	}
	if _, err := timed(c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, deps.Store.UpdateTask(ctx, next)
	}); err != nil {
		return storageFailure(c, deps.Log, err)
	}

	if current.Organization != next.Organization {
		publish(current.ID, taskRoom(current, userID), domain.TaskDeletedEvent,
			domain.DeletedTaskData{ID: current.ID, Organization: current.Organization})
	}
	publish(next.ID, taskRoom(next, userID), domain.TaskUpdatedEvent, next)
	notifyAssignment(current.AssignedTo, next)
	metricsFrom(c).SetTasks(1)
	return c.JSON(http.StatusOK, next)
}

func reorderTasks(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req domain.ReorderRequest
		if err := decodeBody(c, &req); err != nil {
			return badRequest(c, "invalid body")
		}
		if err := req.Partition.Validate(); err != nil {
			return badRequest(c, err.Error())
		}
		if len(req.IDs) == 0 {
			return badRequest(c, "ids must not be empty")
		}
		if req.Partition.Kind == domain.KindOrganization {
			if err := checkOrganization(c.Request().Context(), deps.Members, req.Partition.Key, userID); err != nil {
				return accessFailure(c, deps.Log, err)
			}
		}
		if _, err := timed(c, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, checkReorder(ctx, deps, req.IDs, userID)
		}); err != nil {
			if errors.Is(err, errForbidden) {
				return accessFailure(c, deps.Log, err)
			}
			return storageFailure(c, deps.Log, err)
		}
		tasks, err := timed(c, func(ctx context.Context) ([]domain.Task, error) {
			return deps.Store.ReorderTasks(ctx, req.Partition, req.IDs)
		})
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		for _, t := range tasks {
			publish(t.ID, taskRoom(t, userID), domain.TaskUpdatedEvent, t)
		}
		metricsFrom(c).SetTasks(len(tasks))
		return c.JSON(http.StatusOK, domain.TaskList{Tasks: tasks})
	}
}

func deleteTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := authenticate(c, deps.Auth)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		id := c.Param("id")
		current, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return deps.Store.GetTask(ctx, id)
		})
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		if err := checkTask(c.Request().Context(), deps.Members, current, userID); err != nil {
			return accessFailure(c, deps.Log, err)
		}
		t, err := timed(c, func(ctx context.Context) (domain.Task, error) {
			return deps.Store.DeleteTask(ctx, id)
		})
		if err != nil {
			return storageFailure(c, deps.Log, err)
		}
		publish(t.ID, taskRoom(t, userID), domain.TaskDeletedEvent,
			domain.DeletedTaskData{ID: t.ID, Organization: t.Organization})
		return c.NoContent(http.StatusNoContent)
	}
}

// checkReorder rejects a reorder that names a task the caller may not touch.
// Unknown ids are left to the store, which skips them.
func checkReorder(ctx context.Context, deps Deps, ids []string, userID string) error {
	for _, id := range ids {
		t, err := deps.Store.GetTask(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := checkTask(ctx, deps.Members, t, userID); err != nil {
			return err
		}
	}
	return nil
}
