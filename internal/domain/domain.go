package domain

// Role is a principal's rank inside a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
	// RoleNone means no membership row exists for the pair.
	RoleNone Role = ""
)

// rank orders roles for authorization checks: Owner > Member > Viewer > None.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the rights of min.
func (r Role) AtLeast(min Role) bool { return r.rank() >= min.rank() }

// Valid reports whether r is one of the three assignable roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleMember || r == RoleViewer
}

// LifecycleStatus is the active/archived flag carried by Project, Module
// and UseCase. Mutations below an archived ancestor are rejected.
type LifecycleStatus string

const (
	StatusActive   LifecycleStatus = "active"
	StatusArchived LifecycleStatus = "archived"
)

// TaskState is the workflow state of a task.
type TaskState string

const (
	TaskNotStarted TaskState = "not_started"
	TaskInProgress TaskState = "in_progress"
	TaskCompleted  TaskState = "completed"
	TaskCancelled  TaskState = "cancelled"
)

// TaskType classifies a task. Informational only; it never changes
// authorization or state-machine behavior.
type TaskType string

const (
	TaskTypeDocumentation TaskType = "documentation"
	TaskTypeFeature       TaskType = "feature"
	TaskTypeTest          TaskType = "test"
	TaskTypeBug           TaskType = "bug"
)

// RelationType labels a directed edge between two tasks.
type RelationType string

const (
	RelationBlocks     RelationType = "blocks"
	RelationRelatesTo  RelationType = "relates_to"
	RelationFixes      RelationType = "fixes"
	RelationDuplicates RelationType = "duplicates"
)

// ValidRelationType reports whether t is a known relation type.
func ValidRelationType(t RelationType) bool {
	switch t {
	case RelationBlocks, RelationRelatesTo, RelationFixes, RelationDuplicates:
		return true
	}
	return false
}

type Project struct {
	ID          string          `json:"id"`
	CreatorID   string          `json:"creator_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      LifecycleStatus `json:"status" enum:"active,archived"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

// Membership is the (project, user, role) triple. One row per pair.
type Membership struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      Role   `json:"role" enum:"owner,member,viewer"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
}

type Module struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	CreatorID   string          `json:"creator_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      LifecycleStatus `json:"status" enum:"active,archived"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	UpdatedAt   string          `json:"updated_at" format:"date-time"`
}

type UseCase struct {
	ID             string `json:"id"`
	ModuleID       string `json:"module_id"`
	CreatorID      string `json:"creator_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	ImportantNotes string `json:"important_notes,omitempty"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID             string    `json:"id"`
	UseCaseID      string    `json:"usecase_id"`
	CreatorID      string    `json:"creator_id"`
	AssigneeID     *string   `json:"assignee_id,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	ImportantNotes string    `json:"important_notes,omitempty"`
	Type           TaskType  `json:"type" enum:"documentation,feature,test,bug"`
	State          TaskState `json:"state" enum:"not_started,in_progress,completed,cancelled"`
	DueDate        *string   `json:"due_date,omitempty" format:"date-time"`
	StartedAt      *string   `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string   `json:"completed_at,omitempty" format:"date-time"`
	CompletionNote string    `json:"completion_note,omitempty"`
	CreatedAt      string    `json:"created_at" format:"date-time"`
	UpdatedAt      string    `json:"updated_at" format:"date-time"`
}

// HasAssignee reports whether the task currently has an assignee.
func (t Task) HasAssignee() bool { return t.AssigneeID != nil && *t.AssigneeID != "" }

// TaskRelation is a directed, typed edge owned by the source task.
// Parallel edges between the same pair are allowed, including duplicates
// of the same type.
type TaskRelation struct {
	ID           string       `json:"id"`
	SourceTaskID string       `json:"source_task_id"`
	TargetTaskID string       `json:"target_task_id"`
	RelationType RelationType `json:"relation_type" enum:"blocks,relates_to,fixes,duplicates"`
	CreatedAt    string       `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
