package server

import "taskdeck/internal/domain"

type CreateProjectRequest struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" enum:"active,archived"`
}

type ProjectResponse struct {
	ID          string `json:"id"`
	CreatorID   string `json:"creator_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		CreatorID:   p.CreatorID,
		Title:       p.Title,
		Description: p.Description,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

type MemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role" enum:"owner,member,viewer"`
}

type MemberRoleRequest struct {
	Role string `json:"role" enum:"member,viewer"`
}

type MemberResponse struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	JoinedAt  string `json:"joined_at"`
}

func memberResponse(m domain.Membership) MemberResponse {
	return MemberResponse{ProjectID: m.ProjectID, UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
}

func mapMembers(items []domain.Membership) []MemberResponse {
	res := make([]MemberResponse, 0, len(items))
	for _, m := range items {
		res = append(res, memberResponse(m))
	}
	return res
}

type CreateModuleRequest struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

type UpdateModuleRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ModuleResponse struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	CreatorID   string `json:"creator_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func moduleResponse(m domain.Module) ModuleResponse {
	return ModuleResponse{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		CreatorID:   m.CreatorID,
		Title:       m.Title,
		Description: m.Description,
		Status:      string(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func mapModules(items []domain.Module) []ModuleResponse {
	res := make([]ModuleResponse, 0, len(items))
	for _, m := range items {
		res = append(res, moduleResponse(m))
	}
	return res
}

type CreateUseCaseRequest struct {
	ID             string  `json:"id,omitempty"`
	Title          string  `json:"title"`
	Description    *string `json:"description,omitempty"`
	ImportantNotes *string `json:"important_notes,omitempty"`
}

type UpdateUseCaseRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	ImportantNotes *string `json:"important_notes,omitempty"`
}

type UseCaseStatusRequest struct {
	IsActive bool `json:"is_active"`
}

type UseCaseResponse struct {
	ID             string `json:"id"`
	ModuleID       string `json:"module_id"`
	CreatorID      string `json:"creator_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	ImportantNotes string `json:"important_notes,omitempty"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func usecaseResponse(uc domain.UseCase) UseCaseResponse {
	return UseCaseResponse{
		ID:             uc.ID,
		ModuleID:       uc.ModuleID,
		CreatorID:      uc.CreatorID,
		Title:          uc.Title,
		Description:    uc.Description,
		ImportantNotes: uc.ImportantNotes,
		IsActive:       uc.IsActive,
		CreatedAt:      uc.CreatedAt,
		UpdatedAt:      uc.UpdatedAt,
	}
}

func mapUseCases(items []domain.UseCase) []UseCaseResponse {
	res := make([]UseCaseResponse, 0, len(items))
	for _, uc := range items {
		res = append(res, usecaseResponse(uc))
	}
	return res
}

type CreateTaskRequest struct {
	ID             string  `json:"id,omitempty"`
	Title          string  `json:"title"`
	Description    *string `json:"description,omitempty"`
	ImportantNotes *string `json:"important_notes,omitempty"`
	Type           string  `json:"type" enum:"documentation,feature,test,bug"`
	DueDate        *string `json:"due_date,omitempty"`
}

type UpdateTaskRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	ImportantNotes *string `json:"important_notes,omitempty"`
	Type           *string `json:"type,omitempty"`
	DueDate        *string `json:"due_date,omitempty"`
}

type AssignTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type ChangeTaskStateRequest struct {
	State          string `json:"state" enum:"not_started,in_progress,completed,cancelled"`
	CompletionNote string `json:"completion_note,omitempty"`
}

type TaskResponse struct {
	ID             string  `json:"id"`
	UseCaseID      string  `json:"usecase_id"`
	CreatorID      string  `json:"creator_id"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	ImportantNotes string  `json:"important_notes,omitempty"`
	Type           string  `json:"type"`
	State          string  `json:"state"`
	DueDate        *string `json:"due_date,omitempty"`
	StartedAt      *string `json:"started_at,omitempty"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	CompletionNote string  `json:"completion_note,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID,
		UseCaseID:      t.UseCaseID,
		CreatorID:      t.CreatorID,
		AssigneeID:     t.AssigneeID,
		Title:          t.Title,
		Description:    t.Description,
		ImportantNotes: t.ImportantNotes,
		Type:           string(t.Type),
		State:          string(t.State),
		DueDate:        t.DueDate,
		StartedAt:      t.StartedAt,
		CompletedAt:    t.CompletedAt,
		CompletionNote: t.CompletionNote,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

type CreateRelationRequest struct {
	TargetTaskID string `json:"target_task_id"`
	RelationType string `json:"relation_type" enum:"blocks,relates_to,fixes,duplicates"`
}

type RelationResponse struct {
	ID           string `json:"id"`
	SourceTaskID string `json:"source_task_id"`
	TargetTaskID string `json:"target_task_id"`
	RelationType string `json:"relation_type"`
	CreatedAt    string `json:"created_at"`
}

func relationResponse(rel domain.TaskRelation) RelationResponse {
	return RelationResponse{
		ID:           rel.ID,
		SourceTaskID: rel.SourceTaskID,
		TargetTaskID: rel.TargetTaskID,
		RelationType: string(rel.RelationType),
		CreatedAt:    rel.CreatedAt,
	}
}

func mapRelations(items []domain.TaskRelation) []RelationResponse {
	res := make([]RelationResponse, 0, len(items))
	for _, rel := range items {
		res = append(res, relationResponse(rel))
	}
	return res
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}
