package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskdeck/internal/authz"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"operation task.change_state forbidden"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Taskdeck API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Taskdeck API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerModules(group, cfg.Engine)
	registerUseCases(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerRelations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's error taxonomy onto the HTTP envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, authz.ErrUnauthenticated) {
		return newAPIError(http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	}
	var forb authz.ForbiddenError
	if errors.As(err, &forb) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"operation": string(forb.Op)})
	}
	var nf authz.NotFoundError
	if errors.As(err, &nf) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var ill authz.IllegalTransitionError
	if errors.As(err, &ill) {
		return newAPIError(http.StatusConflict, "illegal_transition", err.Error(), map[string]any{"from": string(ill.From), "to": string(ill.To)})
	}
	var inv authz.InvalidRelationError
	if errors.As(err, &inv) {
		return newAPIError(http.StatusUnprocessableEntity, "invalid_relation", err.Error(), nil)
	}
	var val authz.ValidationError
	if errors.As(err, &val) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"field": val.Field})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Description: desc,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, input.ProjectID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:          input.ProjectID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-project-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/status",
		Summary:     "Archive or reactivate project",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      ChangeStatusRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ChangeProjectStatus(ctx, input.ProjectID, domain.LifecycleStatus(input.Body.Status), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteProject(ctx, input.ProjectID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMembers(ctx, input.ProjectID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: mapMembers(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add project member",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      MemberRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, input.ProjectID, input.Body.UserID, domain.Role(input.Body.Role), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-member-role",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/members/{user_id}",
		Summary:     "Change a member's role",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		UserID    string            `path:"user_id"`
		Body      MemberRoleRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateMemberRole(ctx, input.ProjectID, input.UserID, domain.Role(input.Body.Role), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/members/{user_id}",
		Summary:     "Remove project member",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.ProjectID, input.UserID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerModules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-module",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/modules",
		Summary:       "Create module",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateModuleRequest `json:"body"`
	}) (*struct {
		Body ModuleResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		m, err := e.CreateModule(ctx, engine.ModuleCreateOptions{
			ID:          input.Body.ID,
			ProjectID:   input.ProjectID,
			Title:       input.Body.Title,
			Description: desc,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ModuleResponse `json:"body"`
		}{Body: moduleResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-modules",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/modules",
		Summary:     "List modules",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ModuleResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListModules(ctx, input.ProjectID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ModuleResponse `json:"body"`
		}{Body: mapModules(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-module",
		Method:      http.MethodGet,
		Path:        "/modules/{module_id}",
		Summary:     "Get module",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct {
		Body ModuleResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.GetModule(ctx, input.ModuleID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ModuleResponse `json:"body"`
		}{Body: moduleResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-module",
		Method:      http.MethodPatch,
		Path:        "/modules/{module_id}",
		Summary:     "Update module",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ModuleID string              `path:"module_id"`
		Body     UpdateModuleRequest `json:"body"`
	}) (*struct {
		Body ModuleResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.UpdateModule(ctx, engine.ModuleUpdateOptions{
			ID:          input.ModuleID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			ActorID:     userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ModuleResponse `json:"body"`
		}{Body: moduleResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-module-status",
		Method:      http.MethodPatch,
		Path:        "/modules/{module_id}/status",
		Summary:     "Archive or reactivate module",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ModuleID string              `path:"module_id"`
		Body     ChangeStatusRequest `json:"body"`
	}) (*struct {
		Body ModuleResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.ChangeModuleStatus(ctx, input.ModuleID, domain.LifecycleStatus(input.Body.Status), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ModuleResponse `json:"body"`
		}{Body: moduleResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-module",
		Method:      http.MethodDelete,
		Path:        "/modules/{module_id}",
		Summary:     "Delete module",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteModule(ctx, input.ModuleID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUseCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-usecase",
		Method:        http.MethodPost,
		Path:          "/modules/{module_id}/usecases",
		Summary:       "Create use case",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		ModuleID string               `path:"module_id"`
		Body     CreateUseCaseRequest `json:"body"`
	}) (*struct {
		Body UseCaseResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.UseCaseCreateOptions{
			ID:       input.Body.ID,
			ModuleID: input.ModuleID,
			Title:    input.Body.Title,
			ActorID:  userID,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.ImportantNotes != nil {
			opts.ImportantNotes = *input.Body.ImportantNotes
		}
		uc, err := e.CreateUseCase(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UseCaseResponse `json:"body"`
		}{Body: usecaseResponse(uc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-usecases",
		Method:      http.MethodGet,
		Path:        "/modules/{module_id}/usecases",
		Summary:     "List use cases",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ModuleID string `path:"module_id"`
	}) (*struct {
		Body []UseCaseResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUseCases(ctx, input.ModuleID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []UseCaseResponse `json:"body"`
		}{Body: mapUseCases(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-usecase",
		Method:      http.MethodGet,
		Path:        "/usecases/{usecase_id}",
		Summary:     "Get use case",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UseCaseID string `path:"usecase_id"`
	}) (*struct {
		Body UseCaseResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		uc, err := e.GetUseCase(ctx, input.UseCaseID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UseCaseResponse `json:"body"`
		}{Body: usecaseResponse(uc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-usecase",
		Method:      http.MethodPatch,
		Path:        "/usecases/{usecase_id}",
		Summary:     "Update use case",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UseCaseID string               `path:"usecase_id"`
		Body      UpdateUseCaseRequest `json:"body"`
	}) (*struct {
		Body UseCaseResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		uc, err := e.UpdateUseCase(ctx, engine.UseCaseUpdateOptions{
			ID:             input.UseCaseID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			ImportantNotes: input.Body.ImportantNotes,
			ActorID:        userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UseCaseResponse `json:"body"`
		}{Body: usecaseResponse(uc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-usecase-status",
		Method:      http.MethodPatch,
		Path:        "/usecases/{usecase_id}/status",
		Summary:     "Activate or deactivate use case",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UseCaseID string               `path:"usecase_id"`
		Body      UseCaseStatusRequest `json:"body"`
	}) (*struct {
		Body UseCaseResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		uc, err := e.ChangeUseCaseStatus(ctx, input.UseCaseID, input.Body.IsActive, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UseCaseResponse `json:"body"`
		}{Body: usecaseResponse(uc)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-usecase",
		Method:      http.MethodDelete,
		Path:        "/usecases/{usecase_id}",
		Summary:     "Delete use case",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		UseCaseID string `path:"usecase_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteUseCase(ctx, input.UseCaseID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/usecases/{usecase_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		UseCaseID string            `path:"usecase_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskCreateOptions{
			ID:        input.Body.ID,
			UseCaseID: input.UseCaseID,
			Title:     input.Body.Title,
			Type:      domain.TaskType(input.Body.Type),
			DueDate:   input.Body.DueDate,
			ActorID:   userID,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.ImportantNotes != nil {
			opts.ImportantNotes = *input.Body.ImportantNotes
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/usecases/{usecase_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UseCaseID  string `path:"usecase_id"`
		State      string `query:"state"`
		AssigneeID string `query:"assignee_id"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTasks(ctx, repo.TaskFilters{
			UseCaseID:  input.UseCaseID,
			State:      domain.TaskState(input.State),
			AssigneeID: input.AssigneeID,
		}, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.GetTask(ctx, input.TaskID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskUpdateOptions{
			ID:             input.TaskID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			ImportantNotes: input.Body.ImportantNotes,
			DueDate:        input.Body.DueDate,
			ActorID:        userID,
		}
		if input.Body.Type != nil {
			tt := domain.TaskType(*input.Body.Type)
			opts.Type = &tt
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}",
		Summary:     "Delete task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, input.TaskID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/assign",
		Summary:     "Assign or unassign task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   AssignTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignTask(ctx, input.TaskID, input.Body.AssigneeID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-and-start-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/assign-and-start",
		Summary:     "Assign a task and start it",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   AssignTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignAndStart(ctx, input.TaskID, input.Body.AssigneeID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-task-state",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/state",
		Summary:     "Change task workflow state",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string                 `path:"task_id"`
		Body   ChangeTaskStateRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.ChangeTaskState(ctx, engine.TaskStateOptions{
			ID:             input.TaskID,
			State:          domain.TaskState(input.Body.State),
			CompletionNote: input.Body.CompletionNote,
			ActorID:        userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerRelations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-relation",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/relations",
		Summary:       "Create task relation",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   CreateRelationRequest `json:"body"`
	}) (*struct {
		Body RelationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rel, err := e.CreateRelation(ctx, input.TaskID, input.Body.TargetTaskID, domain.RelationType(input.Body.RelationType), userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RelationResponse `json:"body"`
		}{Body: relationResponse(rel)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-relations",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/relations",
		Summary:     "List task relations",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []RelationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListRelations(ctx, input.TaskID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []RelationResponse `json:"body"`
		}{Body: mapRelations(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-relation",
		Method:      http.MethodDelete,
		Path:        "/tasks/{task_id}/relations/{relation_id}",
		Summary:     "Delete task relation",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		TaskID     string `path:"task_id"`
		RelationID string `path:"relation_id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteRelation(ctx, input.TaskID, input.RelationID, userID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List project audit events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"100"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, input.ProjectID, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
