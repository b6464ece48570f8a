package authz

import "taskdeck/internal/domain"

// StatusChain holds the lifecycle statuses of an entity's ancestors,
// top-down. Levels an operation does not concern are left nil: a
// project-level update carries only Project, a task mutation carries all
// three.
type StatusChain struct {
	Project *domain.LifecycleStatus
	Module  *domain.LifecycleStatus
	UseCase *bool // IsActive flag
}

// ProjectChain builds a chain covering the project level only.
func ProjectChain(p domain.Project) StatusChain {
	return StatusChain{Project: &p.Status}
}

// ModuleChain covers project and module.
func ModuleChain(p domain.Project, m domain.Module) StatusChain {
	return StatusChain{Project: &p.Status, Module: &m.Status}
}

// TaskChain covers the full ancestor chain of a task.
func TaskChain(p domain.Project, m domain.Module, uc domain.UseCase) StatusChain {
	return StatusChain{Project: &p.Status, Module: &m.Status, UseCase: &uc.IsActive}
}

// CanMutate reports whether a mutation is permitted under the chain:
// true only when every provided ancestor is active. Reads are never
// gated by this check.
func CanMutate(chain StatusChain) bool {
	if chain.Project != nil && *chain.Project != domain.StatusActive {
		return false
	}
	if chain.Module != nil && *chain.Module != domain.StatusActive {
		return false
	}
	if chain.UseCase != nil && !*chain.UseCase {
		return false
	}
	return true
}
