package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
)

type (
	taskResponse struct {
		TaskID    string                  `json:"task_id"`
		SchoolID  string                  `json:"school_id"`
		StartedAt time.Time               `json:"started_at"`
		Phases    map[string]mirror.Phase `json:"phases,omitempty"`
	}

	tableResponse struct {
		Table      string `json:"table"`
		Collection string `json:"collection"`
		OK         bool   `json:"ok"`
		Rows       int    `json:"rows"`
		Skipped    int    `json:"skipped"`
		Error      string `json:"error,omitempty"`
	}

	reportResponse struct {
		TaskID     string          `json:"task_id"`
		SchoolID   string          `json:"school_id"`
		StartedAt  time.Time       `json:"started_at"`
		FinishedAt time.Time       `json:"finished_at"`
		Rows       int             `json:"rows"`
		Tables     []tableResponse `json:"tables"`
		Error      string          `json:"error,omitempty"`
	}

	cacheRequest struct {
		SchoolID string `json:"school_id" validate:"required"`
		Table    string `json:"table" validate:"required,identifier"`
	}

	statusResponse struct {
		Running *taskResponse      `json:"running,omitempty"`
		Tables  []mirror.SyncState `json:"tables"`
	}
)

func newTaskResponse(task *mirror.Task, tables ...string) *taskResponse {
	res := &taskResponse{TaskID: task.ID, SchoolID: task.SchoolID, StartedAt: task.StartedAt}
	if len(tables) > 0 {
		res.Phases = make(map[string]mirror.Phase, len(tables))
		for _, t := range tables {
			res.Phases[t] = task.Phase(t)
		}
	}
	return res
}

func newReportResponse(report mirror.Report, err error) reportResponse {
	res := reportResponse{
		TaskID:     report.TaskID,
		SchoolID:   report.SchoolID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Rows:       report.Rows(),
		Tables:     make([]tableResponse, 0, len(report.Tables)),
	}
	for _, t := range report.Tables {
		tr := tableResponse{Table: t.Table, Collection: t.Collection, OK: t.OK(), Rows: t.Rows, Skipped: t.Skipped}
		if t.Err != nil {
			tr.Error = t.Err.Error()
		}
		res.Tables = append(res.Tables, tr)
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

type syncApi struct {
	baseCtx context.Context
	svc     MirrorService
}

func registerSyncAPI(baseCtx context.Context, g *echo.Group, jwt echo.MiddlewareFunc, svc MirrorService) {
	api := syncApi{baseCtx: baseCtx, svc: svc}

	sg := g.Group("/schools/:school_id", jwt)
	sg.POST("/sync", api.sync, roleMiddleware(RoleAdmin))
	sg.GET("/sync", api.status, roleMiddleware(RoleAdmin, RoleReader))
	sg.GET("/cache/:table", api.read, roleMiddleware(RoleAdmin, RoleReader))
}

// Handlers

// sync runs a pass and responds with its report; with ?wait=false it responds 202 right away.
func (api *syncApi) sync(ctx echo.Context) error {
	schoolID := ctx.Param("school_id")
	wait := ctx.QueryParam("wait") != "false"

	// a waited pass is cancelled with its request; a background one with the server
	parent := api.baseCtx
	if wait {
		parent = ctx.Request().Context()
	}
	task, err := api.svc.Start(parent, schoolID)
	if err != nil {
		return errors.Wrap(err, "starting sync")
	}
	if !wait {
		return ctx.JSON(http.StatusAccepted, newTaskResponse(task))
	}

	<-task.Done()
	report, err := task.Result()
	if errors.Is(err, mirror.ErrSchoolNotFound) {
		return err
	}
	return ctx.JSON(http.StatusOK, newReportResponse(report, err))
}

func (api *syncApi) status(ctx echo.Context) error {
	schoolID := ctx.Param("school_id")
	states, err := api.svc.SyncStatus(ctx.Request().Context(), schoolID)
	if err != nil {
		return errors.Wrap(err, "querying sync status")
	}

	res := statusResponse{Tables: states}
	if task, ok := api.svc.Running(schoolID); ok {
		tables := make([]string, 0, len(mirror.Tables))
		for _, t := range mirror.Tables {
			tables = append(tables, t.Name)
		}
		res.Running = newTaskResponse(task, tables...)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *syncApi) read(ctx echo.Context) error {
	req := cacheRequest{SchoolID: ctx.Param("school_id"), Table: ctx.Param("table")}
	if err := core.Validate.Struct(req); err != nil {
		return errors.Wrap(err, "validating request")
	}
	filter := bindFilter(ctx)
	filter[mirror.SchoolColumn] = req.SchoolID

	rows, err := api.svc.ReadLocalCache(ctx.Request().Context(), req.Table, filter)
	if err != nil {
		return errors.Wrap(err, "reading cache")
	}
	return ctx.JSON(http.StatusOK, rows)
}
