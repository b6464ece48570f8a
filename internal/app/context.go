package app

import (
	"context"
	"errors"
	"fmt"

	"taskdeck/internal/config"
	"taskdeck/internal/repo"
)

// ResolveProject picks the active project for a CLI invocation. It
// prefers the explicit override, then the workspace's taskdeck.yml,
// then a single-project database.
func ResolveProject(ctx context.Context, workspace, projectOverride string, r repo.Repo) (string, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	projectID := projectOverride
	if projectID == "" && cfg != nil {
		projectID = cfg.Project.ID
	}
	if projectID == "" {
		p, err := r.SingleProject(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("project not specified; use --project or create taskdeck.yml")
			}
			return "", nil, err
		}
		projectID = p.ID
	}
	if cfg == nil {
		cfg = config.Default(projectID)
	}
	return projectID, cfg, nil
}
