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

	"dayline/internal/app"
	"dayline/internal/domain"
	"dayline/internal/engine"
	"dayline/internal/repo"
	"dayline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dl",
	Short: "Dayline CLI",
	Long: `Dayline keeps a life planner's recurring work flowing.
- Workspace: your .dayline directory with the database; settings live in dayline.yml.
- Habits and chores: recurring sources that generate inbox tasks on their period.
- Metrics and persons: collection points and catch-ups that also generate tasks.
- Big plans: larger efforts whose milestone tasks ride along.
- Vacations: date ranges that suppress generation unless a source must-do.
- Sync: two-way reconciliation with the notebook mirror ('dl sync').
- Event log: diary of changes, view with 'dl log tail'.`,
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
	viper.SetEnvPrefix("DAYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(genCmd())
	rootCmd.AddCommand(gcCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(clearAllCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(habitCmd())
	rootCmd.AddCommand(choreCmd())
	rootCmd.AddCommand(metricCmd())
	rootCmd.AddCommand(personCmd())
	rootCmd.AddCommand(bigPlanCmd())
	rootCmd.AddCommand(vacationCmd())
	rootCmd.AddCommand(pushTaskCmd("slack-task", domain.SourceSlackTask))
	rootCmd.AddCommand(pushTaskCmd("email-task", domain.SourceEmailTask))
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name, timezone, email, userName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.InitWorkspace(ctx, engine.InitOptions{
					WorkspaceName: name,
					Timezone:      timezone,
					UserEmail:     email,
					UserName:      userName,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone")
	cmd.Flags().StringVar(&email, "email", "", "owner email")
	cmd.Flags().StringVar(&userName, "user", "", "owner display name")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func genCmd() *cobra.Command {
	var targets, periods, sources []string
	var rightNow string
	var evenIf bool
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate inbox tasks from recurring sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			genTargets, err := parseTargets(targets)
			if err != nil {
				return err
			}
			genArgs := engine.GenArgs{
				Targets:           genTargets,
				SourceRefIDs:      sources,
				EvenIfNotModified: evenIf,
			}
			for _, p := range periods {
				period := domain.Period(p)
				if !period.Valid() {
					return fmt.Errorf("unknown period %q", p)
				}
				genArgs.PeriodFilter = append(genArgs.PeriodFilter, period)
			}
			if rightNow != "" {
				at, err := time.Parse(time.RFC3339, rightNow)
				if err != nil {
					return fmt.Errorf("--right-now must be RFC3339: %w", err)
				}
				genArgs.RightNow = at
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Engine.Generate(ctx, genArgs)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Target", "Source", "Timeline", "Action", "Detail"})
				for _, e := range report.Entries {
					tw.AppendRow(table.Row{e.Target, e.SourceName, e.Timeline, e.Action, e.Detail})
				}
				tw.Render()
				fmt.Printf("created=%d updated=%d unchanged=%d skipped=%d\n",
					report.Created, report.Updated, report.Unchanged, report.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "targets (habits, chores, metrics, persons, big-plans, slack-tasks, email-tasks)")
	cmd.Flags().StringSliceVar(&periods, "period", nil, "periods to include (daily, weekly, monthly, quarterly, yearly)")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "restrict to these source ref ids")
	cmd.Flags().StringVar(&rightNow, "right-now", "", "generation instant (RFC3339, default now)")
	cmd.Flags().BoolVar(&evenIf, "even-if-not-modified", false, "regenerate even when the source is unchanged")
	return cmd
}

func gcCmd() *cobra.Command {
	var targets []string
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Archive finished work",
		RunE: func(cmd *cobra.Command, args []string) error {
			gcTargets, err := parseTargets(targets)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Engine.GC(ctx, gcTargets)
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "targets (inbox-tasks, big-plans, slack-tasks, email-tasks)")
	return cmd
}

func syncCmd() *cobra.Command {
	var targets, sources []string
	var prefer string
	var dropAll, evenIf bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the workspace with the notebook mirror",
		RunE: func(cmd *cobra.Command, args []string) error {
			syncTargets, err := parseTargets(targets)
			if err != nil {
				return err
			}
			if dropAll && !viper.GetBool("force") {
				return fmt.Errorf("--drop-all-remote wipes the mirror, pass --force to confirm")
			}
			if prefer != "" && prefer != string(domain.SyncPreferLocal) && prefer != string(domain.SyncPreferNotion) {
				return fmt.Errorf("--prefer must be local or notion")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Engine.Sync(ctx, engine.SyncArgs{
					Targets:           syncTargets,
					Prefer:            domain.SyncPrefer(prefer),
					DropAllRemote:     dropAll,
					EvenIfNotModified: evenIf,
					SourceRefIDs:      sources,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Target", "Name", "Action", "Detail"})
				for _, e := range report.Entries {
					tw.AppendRow(table.Row{e.Target, e.Name, e.Action, e.Detail})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&targets, "target", nil, "targets to sync")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "restrict to these ref ids")
	cmd.Flags().StringVar(&prefer, "prefer", "", "conflict winner (local or notion)")
	cmd.Flags().BoolVar(&dropAll, "drop-all-remote", false, "wipe the mirror before pushing")
	cmd.Flags().BoolVar(&evenIf, "even-if-not-modified", false, "apply the preferred side even without newer edits")
	return cmd
}

func clearAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-all",
		Short: "Hard-delete every entity in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !viper.GetBool("force") {
				return fmt.Errorf("clear-all is destructive, pass --force to confirm")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Engine.ClearAll(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Engine.CreateProject(ctx, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "project name")
	_ = create.MarkFlagRequired("name")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListProjects(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Root", "Archived"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.RefID, p.Name, p.IsRoot, p.Archived})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	prj.AddCommand(create, list, archiveCmd("project", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveProject(ctx, refID)
	}))
	return prj
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage inbox tasks"}

	var name, project, eisen, difficulty, actionable, due, bigPlan string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create inbox task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := engine.InboxTaskCreateOptions{
					Name:           name,
					ProjectRefID:   project,
					Eisen:          domain.Eisen(eisen),
					ActionableDate: optionalString(actionable),
					DueDate:        optionalString(due),
					BigPlanRefID:   bigPlan,
				}
				if difficulty != "" {
					d := domain.Difficulty(difficulty)
					opts.Difficulty = &d
				}
				t, err := a.Engine.CreateInboxTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "task name")
	create.Flags().StringVar(&project, "project", "", "project ref id (default root)")
	create.Flags().StringVar(&eisen, "eisen", "", "eisenhower category")
	create.Flags().StringVar(&difficulty, "difficulty", "", "difficulty (easy, medium, hard)")
	create.Flags().StringVar(&actionable, "actionable-date", "", "actionable date (YYYY-MM-DD)")
	create.Flags().StringVar(&due, "due-date", "", "due date (YYYY-MM-DD)")
	create.Flags().StringVar(&bigPlan, "big-plan", "", "parent big plan ref id")
	_ = create.MarkFlagRequired("name")

	var status, source, listProject string
	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List inbox tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				filter := taskFilter(w.RefID, status, source, listProject, allowArchived)
				tasks, err := a.Engine.Repo.FindInboxTasks(ctx, filter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Source", "Due"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.RefID, t.Name, t.Status, t.Source, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().StringVar(&source, "source", "", "source filter")
	list.Flags().StringVar(&listProject, "project", "", "project filter")
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	show := &cobra.Command{
		Use:   "show <ref-id>",
		Short: "Show inbox task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.Repo.GetInboxTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}

	var updName, updStatus, updEisen, updDifficulty, updActionable, updDue string
	update := &cobra.Command{
		Use:   "update <ref-id>",
		Short: "Update inbox task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd engine.InboxTaskUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = domain.ChangeTo(updName)
			}
			if cmd.Flags().Changed("status") {
				upd.Status = domain.ChangeTo(domain.InboxTaskStatus(updStatus))
			}
			if cmd.Flags().Changed("eisen") {
				upd.Eisen = domain.ChangeTo(domain.Eisen(updEisen))
			}
			if cmd.Flags().Changed("difficulty") {
				if updDifficulty == "" {
					upd.Difficulty = domain.ChangeTo[*domain.Difficulty](nil)
				} else {
					d := domain.Difficulty(updDifficulty)
					upd.Difficulty = domain.ChangeTo(&d)
				}
			}
			if cmd.Flags().Changed("actionable-date") {
				upd.ActionableDate = domain.ChangeTo(optionalString(updActionable))
			}
			if cmd.Flags().Changed("due-date") {
				upd.DueDate = domain.ChangeTo(optionalString(updDue))
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateInboxTask(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	update.Flags().StringVar(&updName, "name", "", "new name")
	update.Flags().StringVar(&updStatus, "status", "", "new status")
	update.Flags().StringVar(&updEisen, "eisen", "", "new eisenhower category")
	update.Flags().StringVar(&updDifficulty, "difficulty", "", "new difficulty (empty clears)")
	update.Flags().StringVar(&updActionable, "actionable-date", "", "new actionable date (empty clears)")
	update.Flags().StringVar(&updDue, "due-date", "", "new due date (empty clears)")

	remove := &cobra.Command{
		Use:   "remove <ref-id>",
		Short: "Hard-delete inbox task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !viper.GetBool("force") {
				return fmt.Errorf("remove is destructive, pass --force to confirm")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RemoveInboxTask(ctx, args[0])
			})
		},
	}

	task.AddCommand(create, list, show, update, remove, archiveCmd("task", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveInboxTask(ctx, refID)
	}))
	return task
}

// genParamFlags binds the shared recurrence flags and returns a builder.
func genParamFlags(cmd *cobra.Command) func() domain.GenParams {
	var period, eisen, difficulty, dueAtTime, skipRule string
	var actionableFromDay, actionableFromMonth, dueAtDay, dueAtMonth int
	cmd.Flags().StringVar(&period, "period", "", "recurrence period (daily, weekly, monthly, quarterly, yearly)")
	cmd.Flags().StringVar(&eisen, "eisen", "", "eisenhower category for generated tasks")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "difficulty for generated tasks")
	cmd.Flags().StringVar(&dueAtTime, "due-at-time", "", "due time (HH:MM)")
	cmd.Flags().StringVar(&skipRule, "skip-rule", "", "skip rule (even, odd or a number list)")
	cmd.Flags().IntVar(&actionableFromDay, "actionable-from-day", 0, "actionable from day of period")
	cmd.Flags().IntVar(&actionableFromMonth, "actionable-from-month", 0, "actionable from month of period")
	cmd.Flags().IntVar(&dueAtDay, "due-at-day", 0, "due at day of period")
	cmd.Flags().IntVar(&dueAtMonth, "due-at-month", 0, "due at month of period")
	return func() domain.GenParams {
		gen := domain.GenParams{
			Period:              domain.Period(period),
			Eisen:               domain.Eisen(eisen),
			ActionableFromDay:   optionalInt(cmd, "actionable-from-day", actionableFromDay),
			ActionableFromMonth: optionalInt(cmd, "actionable-from-month", actionableFromMonth),
			DueAtTime:           optionalString(dueAtTime),
			DueAtDay:            optionalInt(cmd, "due-at-day", dueAtDay),
			DueAtMonth:          optionalInt(cmd, "due-at-month", dueAtMonth),
			SkipRule:            optionalString(skipRule),
		}
		if difficulty != "" {
			d := domain.Difficulty(difficulty)
			gen.Difficulty = &d
		}
		return gen
	}
}

func habitCmd() *cobra.Command {
	habit := &cobra.Command{Use: "habit", Short: "Manage habits"}

	var name, project, startAt, endAt, repeatsStrategy string
	var mustDo bool
	var repeats int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create habit",
	}
	buildGen := genParamFlags(create)
	create.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			opts := engine.HabitCreateOptions{
				Name:            name,
				ProjectRefID:    project,
				Gen:             buildGen(),
				MustDo:          mustDo,
				StartAtDate:     optionalString(startAt),
				EndAtDate:       optionalString(endAt),
				RepeatsStrategy: domain.RepeatsStrategy(repeatsStrategy),
				RepeatsInPeriod: optionalInt(cmd, "repeats", repeats),
			}
			h, err := a.Engine.CreateHabit(ctx, opts)
			if err != nil {
				return err
			}
			return printJSONOrTable(h)
		})
	}
	create.Flags().StringVar(&name, "name", "", "habit name")
	create.Flags().StringVar(&project, "project", "", "project ref id (default root)")
	create.Flags().StringVar(&startAt, "start-at", "", "active from date (YYYY-MM-DD)")
	create.Flags().StringVar(&endAt, "end-at", "", "active until date (YYYY-MM-DD)")
	create.Flags().BoolVar(&mustDo, "must-do", false, "generate even on vacation")
	create.Flags().IntVar(&repeats, "repeats", 0, "repeats per period")
	create.Flags().StringVar(&repeatsStrategy, "repeats-strategy", "", "all-same or spread-out-no-overlap")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("period")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List habits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListHabits(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Period", "Suspended", "MustDo"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.RefID, h.Name, h.Gen.Period, h.Suspended, h.MustDo})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	var suspend, resume bool
	var updName string
	update := &cobra.Command{
		Use:   "update <ref-id>",
		Short: "Update habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd engine.HabitUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = domain.ChangeTo(updName)
			}
			if suspend && resume {
				return fmt.Errorf("--suspend and --resume are mutually exclusive")
			}
			if suspend {
				upd.Suspended = domain.ChangeTo(true)
			}
			if resume {
				upd.Suspended = domain.ChangeTo(false)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				h, err := a.Engine.UpdateHabit(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	update.Flags().StringVar(&updName, "name", "", "new name")
	update.Flags().BoolVar(&suspend, "suspend", false, "suspend generation")
	update.Flags().BoolVar(&resume, "resume", false, "resume generation")

	habit.AddCommand(create, list, update, archiveCmd("habit", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveHabit(ctx, refID)
	}))
	return habit
}

func choreCmd() *cobra.Command {
	chore := &cobra.Command{Use: "chore", Short: "Manage chores"}

	var name, project, startAt, endAt string
	var mustDo bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create chore",
	}
	buildGen := genParamFlags(create)
	create.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			c, err := a.Engine.CreateChore(ctx, engine.ChoreCreateOptions{
				Name:         name,
				ProjectRefID: project,
				Gen:          buildGen(),
				MustDo:       mustDo,
				StartAtDate:  optionalString(startAt),
				EndAtDate:    optionalString(endAt),
			})
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		})
	}
	create.Flags().StringVar(&name, "name", "", "chore name")
	create.Flags().StringVar(&project, "project", "", "project ref id (default root)")
	create.Flags().StringVar(&startAt, "start-at", "", "active from date (YYYY-MM-DD)")
	create.Flags().StringVar(&endAt, "end-at", "", "active until date (YYYY-MM-DD)")
	create.Flags().BoolVar(&mustDo, "must-do", false, "generate even on vacation")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("period")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List chores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListChores(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	chore.AddCommand(create, list, archiveCmd("chore", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveChore(ctx, refID)
	}))
	return chore
}

func metricCmd() *cobra.Command {
	metric := &cobra.Command{Use: "metric", Short: "Manage metrics"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create metric",
	}
	buildGen := genParamFlags(create)
	create.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			var collection *domain.GenParams
			if cmd.Flags().Changed("period") {
				gen := buildGen()
				collection = &gen
			}
			m, err := a.Engine.CreateMetric(ctx, name, collection)
			if err != nil {
				return err
			}
			return printJSONOrTable(m)
		})
	}
	create.Flags().StringVar(&name, "name", "", "metric name")
	_ = create.MarkFlagRequired("name")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListMetrics(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	metric.AddCommand(create, list, archiveCmd("metric", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveMetric(ctx, refID)
	}))
	return metric
}

func personCmd() *cobra.Command {
	person := &cobra.Command{Use: "person", Short: "Manage persons"}

	var name, relationship string
	var birthdayMonth, birthdayDay int
	create := &cobra.Command{
		Use:   "create",
		Short: "Create person",
	}
	buildGen := genParamFlags(create)
	create.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			opts := engine.PersonCreateOptions{
				Name:          name,
				Relationship:  relationship,
				BirthdayMonth: optionalInt(cmd, "birthday-month", birthdayMonth),
				BirthdayDay:   optionalInt(cmd, "birthday-day", birthdayDay),
			}
			if cmd.Flags().Changed("period") {
				gen := buildGen()
				opts.CatchUp = &gen
			}
			p, err := a.Engine.CreatePerson(ctx, opts)
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		})
	}
	create.Flags().StringVar(&name, "name", "", "person name")
	create.Flags().StringVar(&relationship, "relationship", "", "relationship (family, friend, colleague, ...)")
	create.Flags().IntVar(&birthdayMonth, "birthday-month", 0, "birthday month (1-12)")
	create.Flags().IntVar(&birthdayDay, "birthday-day", 0, "birthday day (1-31)")
	_ = create.MarkFlagRequired("name")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List persons",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListPersons(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	person.AddCommand(create, list, archiveCmd("person", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchivePerson(ctx, refID)
	}))
	return person
}

func bigPlanCmd() *cobra.Command {
	plan := &cobra.Command{Use: "big-plan", Short: "Manage big plans"}

	var name, project, actionable, due string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create big plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Engine.CreateBigPlan(ctx, engine.BigPlanCreateOptions{
					Name:           name,
					ProjectRefID:   project,
					ActionableDate: optionalString(actionable),
					DueDate:        optionalString(due),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "big plan name")
	create.Flags().StringVar(&project, "project", "", "project ref id (default root)")
	create.Flags().StringVar(&actionable, "actionable-date", "", "actionable date (YYYY-MM-DD)")
	create.Flags().StringVar(&due, "due-date", "", "due date (YYYY-MM-DD)")
	_ = create.MarkFlagRequired("name")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List big plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListBigPlans(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Due"})
				for _, b := range items {
					due := ""
					if b.DueDate != nil {
						due = *b.DueDate
					}
					tw.AppendRow(table.Row{b.RefID, b.Name, b.Status, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	var updName, updStatus string
	update := &cobra.Command{
		Use:   "update <ref-id>",
		Short: "Update big plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd engine.BigPlanUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = domain.ChangeTo(updName)
			}
			if cmd.Flags().Changed("status") {
				upd.Status = domain.ChangeTo(domain.BigPlanStatus(updStatus))
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Engine.UpdateBigPlan(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	update.Flags().StringVar(&updName, "name", "", "new name")
	update.Flags().StringVar(&updStatus, "status", "", "new status")

	plan.AddCommand(create, list, update, archiveCmd("big-plan", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveBigPlan(ctx, refID)
	}))
	return plan
}

func vacationCmd() *cobra.Command {
	vacation := &cobra.Command{Use: "vacation", Short: "Manage vacations"}

	var name, start, end string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create vacation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := a.Engine.CreateVacation(ctx, name, start, end)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "vacation name")
	create.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	create.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD, exclusive)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("start")
	_ = create.MarkFlagRequired("end")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List vacations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListVacations(ctx, w.RefID, allowArchived)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Start", "End"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.RefID, v.Name, v.StartDate, v.EndDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	vacation.AddCommand(create, list, archiveCmd("vacation", func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchiveVacation(ctx, refID)
	}))
	return vacation
}

func pushTaskCmd(use string, kind domain.InboxTaskSource) *cobra.Command {
	push := &cobra.Command{Use: use, Short: "Manage " + use + "s"}

	var name, channel, eisen, difficulty string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create " + use,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := engine.PushTaskCreateOptions{
					Kind:    kind,
					Name:    name,
					Channel: channel,
					Eisen:   domain.Eisen(eisen),
				}
				if difficulty != "" {
					d := domain.Difficulty(difficulty)
					opts.Difficulty = &d
				}
				p, err := a.Engine.CreatePushTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "task name")
	create.Flags().StringVar(&channel, "channel", "", "origin channel or sender")
	create.Flags().StringVar(&eisen, "eisen", "", "eisenhower category")
	create.Flags().StringVar(&difficulty, "difficulty", "", "difficulty")
	_ = create.MarkFlagRequired("name")

	var allowArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + use + "s",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkspace(ctx)
				if err != nil {
					return err
				}
				items, err := a.Engine.Repo.ListPushTasks(ctx, w.RefID, kind, allowArchived)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().BoolVar(&allowArchived, "all", false, "include archived")

	push.AddCommand(create, list, archiveCmd(use, func(ctx context.Context, a *app.App, refID string) (any, error) {
		return a.Engine.ArchivePushTask(ctx, refID)
	}))
	return push
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event journal"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.ListEvents(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Kind", "Entity", "Source"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.TS, e.Kind, e.EntityID, e.Source})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	log.AddCommand(tail)
	return log
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer a.Close()
			secret := a.Config.Auth.JWTSecret
			if secret == "" {
				secret = os.Getenv("DAYLINE_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("a JWT secret is required for bearer auth (dayline.yml auth.jwt_secret or DAYLINE_JWT_SECRET)")
			}
			handler, err := server.New(server.Config{
				Engine:   a.Engine,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret},
			})
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
			fmt.Printf("Serving Dayline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func archiveCmd(what string, archive func(context.Context, *app.App, string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <ref-id>",
		Short: "Archive " + what,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := archive(ctx, a, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
}

func parseTargets(names []string) ([]domain.Target, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := map[domain.Target]bool{}
	for _, t := range domain.AllTargets {
		known[t] = true
	}
	targets := make([]domain.Target, 0, len(names))
	for _, n := range names {
		t := domain.Target(n)
		if !known[t] {
			return nil, fmt.Errorf("unknown target %q", n)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func taskFilter(workspaceID, status, source, project string, allowArchived bool) repo.InboxTaskFilter {
	f := repo.InboxTaskFilter{
		WorkspaceID:   workspaceID,
		AllowArchived: allowArchived,
		ProjectRefID:  project,
	}
	if status != "" {
		f.Statuses = []domain.InboxTaskStatus{domain.InboxTaskStatus(status)}
	}
	if source != "" {
		f.Sources = []domain.InboxTaskSource{domain.InboxTaskSource(source)}
	}
	return f
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(cmd *cobra.Command, flag string, v int) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}
