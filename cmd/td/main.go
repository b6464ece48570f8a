package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskdeck/internal/app"
	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/repo"
	"taskdeck/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "td",
	Short: "Taskdeck CLI",
	Long: `Taskdeck tracks project work in a project -> module -> use case -> task
hierarchy with role-based access control.
- Workspace: the .taskdeck directory holding the local database.
- Project: the top of the hierarchy; its creator is the owner.
- Members: owner, member and viewer roles; viewers read, members write,
  owners manage membership.
- Lifecycle: archiving a project or module freezes everything below it.
- Tasks: flow not_started -> in_progress -> completed/cancelled; a task
  must be assigned before it can be started.
- Relations: typed links between tasks (blocks, relates_to, fixes,
  duplicates).
- Event log: a diary of changes, view with 'td log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "acting user identifier")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides taskdeck.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(moduleCmd())
	rootCmd.AddCommand(usecaseCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(relationCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func userID() string { return viper.GetString("user-id") }

// --- project ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectInitCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectStatusCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectInitCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project and write taskdeck.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{Title: title, ActorID: userID()})
				if err != nil {
					return err
				}
				path := config.Path(viper.GetString("workspace"))
				if err := os.WriteFile(path, []byte(config.GenerateDefault(p.ID)), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "project title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var id, title, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					ID:          id,
					Title:       title,
					Description: desc,
					ActorID:     userID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (optional)")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects visible to the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Creator"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.CreatorID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.GetProject(ctx, projectID, userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				opts := engine.ProjectUpdateOptions{ID: projectID, ActorID: userID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func projectStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Archive or reactivate the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.ChangeProjectStatus(ctx, projectID, domain.LifecycleStatus(status), userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "active or archived")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				return e.DeleteProject(ctx, projectID, userID())
			})
		},
	}
}

// --- members ---

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Manage project members"}
	m.AddCommand(memberAddCmd())
	m.AddCommand(memberListCmd())
	m.AddCommand(memberSetRoleCmd())
	m.AddCommand(memberRemoveCmd())
	return m
}

func memberAddCmd() *cobra.Command {
	var user, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user required")
			}
			return withProjectConfig(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string, cfg *config.Config) error {
				r := domain.Role(role)
				if role == "" {
					r = cfg.DefaultRole()
				}
				m, err := e.AddMember(ctx, projectID, user, r, userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "owner, member or viewer (default from taskdeck.yml)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListMembers(ctx, projectID, userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Role", "Joined"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.UserID, m.Role, m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func memberSetRoleCmd() *cobra.Command {
	var user, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change a member's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" || role == "" {
				return fmt.Errorf("--user and --role required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				m, err := e.UpdateMemberRole(ctx, projectID, user, domain.Role(role), userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	cmd.Flags().StringVar(&role, "role", "", "member or viewer")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				return e.RemoveMember(ctx, projectID, user, userID())
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id")
	return cmd
}

// --- modules ---

func moduleCmd() *cobra.Command {
	m := &cobra.Command{Use: "module", Short: "Manage modules"}
	m.AddCommand(moduleCreateCmd())
	m.AddCommand(moduleListCmd())
	m.AddCommand(moduleShowCmd())
	m.AddCommand(moduleUpdateCmd())
	m.AddCommand(moduleStatusCmd())
	m.AddCommand(moduleDeleteCmd())
	return m
}

func moduleCreateCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title required")
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				m, err := e.CreateModule(ctx, engine.ModuleCreateOptions{
					ProjectID:   projectID,
					Title:       title,
					Description: desc,
					ActorID:     userID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func moduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				items, err := e.ListModules(ctx, projectID, userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func moduleShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.GetModule(ctx, args[0], userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func moduleUpdateCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.ModuleUpdateOptions{ID: args[0], ActorID: userID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				m, err := e.UpdateModule(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func moduleStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Archive or reactivate a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.ChangeModuleStatus(ctx, args[0], domain.LifecycleStatus(status), userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&status, "set", "", "active or archived")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}

func moduleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteModule(ctx, args[0], userID())
			})
		},
	}
}

// --- use cases ---

func usecaseCmd() *cobra.Command {
	uc := &cobra.Command{Use: "usecase", Short: "Manage use cases"}
	uc.AddCommand(usecaseCreateCmd())
	uc.AddCommand(usecaseListCmd())
	uc.AddCommand(usecaseShowCmd())
	uc.AddCommand(usecaseUpdateCmd())
	uc.AddCommand(usecaseStatusCmd())
	uc.AddCommand(usecaseDeleteCmd())
	return uc
}

func usecaseCreateCmd() *cobra.Command {
	var moduleID, title, desc, notes string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a use case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if moduleID == "" || title == "" {
				return fmt.Errorf("--module and --title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				uc, err := e.CreateUseCase(ctx, engine.UseCaseCreateOptions{
					ModuleID:       moduleID,
					Title:          title,
					Description:    desc,
					ImportantNotes: notes,
					ActorID:        userID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(uc)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "important notes")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func usecaseListCmd() *cobra.Command {
	var moduleID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List use cases in a module",
		RunE: func(cmd *cobra.Command, args []string) error {
			if moduleID == "" {
				return fmt.Errorf("--module required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListUseCases(ctx, moduleID, userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Active"})
				for _, uc := range items {
					tw.AppendRow(table.Row{uc.ID, uc.Title, uc.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func usecaseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a use case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				uc, err := e.GetUseCase(ctx, args[0], userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(uc)
			})
		},
	}
}

func usecaseUpdateCmd() *cobra.Command {
	var title, desc, notes string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a use case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.UseCaseUpdateOptions{ID: args[0], ActorID: userID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("notes") {
					opts.ImportantNotes = &notes
				}
				uc, err := e.UpdateUseCase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(uc)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "important notes")
	return cmd
}

func usecaseStatusCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Activate or deactivate a use case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				uc, err := e.ChangeUseCaseStatus(ctx, args[0], active, userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(uc)
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", true, "set active (true) or inactive (false)")
	return cmd
}

func usecaseDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a use case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteUseCase(ctx, args[0], userID())
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks live under a use case and flow not_started -> in_progress -> completed/cancelled. A task must have an assignee before it can be started; the assignee must be a project member.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskStartCmd())
	task.AddCommand(taskCompleteCmd())
	task.AddCommand(taskStateCmd("cancel", domain.TaskCancelled, "Cancel a task"))
	task.AddCommand(taskStateCmd("reopen", domain.TaskNotStarted, "Reset a task to not started"))
	return task
}

func taskCreateCmd() *cobra.Command {
	var usecaseID, title, desc, notes, taskType, due string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if usecaseID == "" || title == "" {
				return fmt.Errorf("--usecase and --title required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.TaskCreateOptions{
					UseCaseID:      usecaseID,
					Title:          title,
					Description:    desc,
					ImportantNotes: notes,
					Type:           domain.TaskType(taskType),
					ActorID:        userID(),
				}
				if due != "" {
					opts.DueDate = &due
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&usecaseID, "usecase", "", "use case id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "important notes")
	cmd.Flags().StringVar(&taskType, "type", "feature", "documentation, feature, test or bug")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC 3339)")
	_ = cmd.MarkFlagRequired("usecase")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var usecaseID, state, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in a use case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if usecaseID == "" {
				return fmt.Errorf("--usecase required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTasks(ctx, repo.TaskFilters{
					UseCaseID:  usecaseID,
					State:      domain.TaskState(state),
					AssigneeID: assignee,
				}, userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "State", "Assignee"})
				for _, t := range items {
					who := ""
					if t.AssigneeID != nil {
						who = *t.AssigneeID
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Type, t.State, who})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&usecaseID, "usecase", "", "use case id")
	cmd.Flags().StringVar(&state, "state", "", "state filter")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	_ = cmd.MarkFlagRequired("usecase")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0], userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var title, desc, notes, taskType, due string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.TaskUpdateOptions{ID: args[0], ActorID: userID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &desc
				}
				if cmd.Flags().Changed("notes") {
					opts.ImportantNotes = &notes
				}
				if cmd.Flags().Changed("type") {
					tt := domain.TaskType(taskType)
					opts.Type = &tt
				}
				if cmd.Flags().Changed("due") {
					opts.DueDate = &due
				}
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "important notes")
	cmd.Flags().StringVar(&taskType, "type", "", "documentation, feature, test or bug")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC 3339, empty clears)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0], userID())
			})
		},
	}
}

func taskAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a task (empty --to unassigns)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AssignTask(ctx, args[0], assignee, userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "assignee user id")
	return cmd
}

func taskStateCmd(use string, state domain.TaskState, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ChangeTaskState(ctx, engine.TaskStateOptions{ID: args[0], State: state, ActorID: userID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskStartCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start a task (with --assign, assign it first)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var t domain.Task
				var err error
				if assignee != "" {
					t, err = e.AssignAndStart(ctx, args[0], assignee, userID())
				} else {
					t, err = e.ChangeTaskState(ctx, engine.TaskStateOptions{ID: args[0], State: domain.TaskInProgress, ActorID: userID()})
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assign", "", "assign to this user before starting")
	return cmd
}

func taskCompleteCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ChangeTaskState(ctx, engine.TaskStateOptions{
					ID:             args[0],
					State:          domain.TaskCompleted,
					CompletionNote: note,
					ActorID:        userID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "completion note")
	return cmd
}

// --- relations ---

func relationCmd() *cobra.Command {
	rel := &cobra.Command{Use: "relation", Short: "Manage task relations"}
	rel.AddCommand(relationAddCmd())
	rel.AddCommand(relationListCmd())
	rel.AddCommand(relationRemoveCmd())
	return rel
}

func relationAddCmd() *cobra.Command {
	var target, relType string
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Link a task to another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--target required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rel, err := e.CreateRelation(ctx, args[0], target, domain.RelationType(relType), userID())
				if err != nil {
					return err
				}
				return printJSONOrTable(rel)
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target task id")
	cmd.Flags().StringVar(&relType, "type", "relates_to", "blocks, relates_to, fixes or duplicates")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func relationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListRelations(ctx, args[0], userID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Target"})
				for _, rel := range items {
					tw.AppendRow(table.Row{rel.ID, rel.RelationType, rel.TargetTaskID})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func relationRemoveCmd() *cobra.Command {
	var relationID string
	cmd := &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a relation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if relationID == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRelation(ctx, args[0], relationID, userID())
			})
		},
	}
	cmd.Flags().StringVar(&relationID, "id", "", "relation id")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened in the project.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail project events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				events, err := e.ListEvents(ctx, projectID, userID(), n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn)
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("TASKDECK_JWT_SECRET")}
			if cfg != nil {
				if authCfg.JWTSecret == "" {
					authCfg.JWTSecret = cfg.Server.JWTSecret
				}
				authCfg.AllowLegacyUserHeader = cfg.Server.AllowLegacyUserHeader
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyUserHeader {
				return fmt.Errorf("TASKDECK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskdeck API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default /v1)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn))
}

func withProject(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	return withProjectConfig(ctx, func(ctx context.Context, e engine.Engine, projectID string, _ *config.Config) error {
		return fn(ctx, e, projectID)
	})
}

func withProjectConfig(ctx context.Context, fn func(context.Context, engine.Engine, string, *config.Config) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		projectID, cfg, err := app.ResolveProject(ctx, viper.GetString("workspace"), viper.GetString("project"), e.Repo)
		if err != nil {
			return err
		}
		return fn(ctx, e, projectID, cfg)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
