package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/propdesk/turnover/internal/domain"
)

// operatorID is the actor recorded for CLI task management when --as is
// not given.
const operatorID = "operator"

func init() {
	taskAddCmd.Flags().StringVar(&taskAddID, "id", "", "Task ID (generated when empty)")
	taskAddCmd.Flags().StringVar(&taskAddType, "type", string(domain.TaskCleaning), "Task type")
	taskAddCmd.Flags().StringVar(&taskAddTitle, "title", "", "Short description")
	taskAddCmd.Flags().StringVar(&taskAddProperty, "property", "", "Property ID")
	taskAddCmd.Flags().StringVar(&taskAddAssign, "assign", "", "Worker ID to assign")
	taskAddCmd.Flags().StringVar(&taskAddAt, "at", "", "Scheduled time (RFC3339 or '2006-01-02 15:04')")
	addActorFlags(taskAddCmd, domain.RoleManager)

	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Filter by status")
	taskListCmd.Flags().StringVar(&taskListAssignee, "assignee", "", "Filter by assigned worker")
	taskListCmd.Flags().StringVar(&taskListType, "type", "", "Filter by task type")
	taskListCmd.Flags().IntVar(&taskListLimit, "limit", 0, "Maximum rows (0 for all)")

	addActorFlags(taskStatusCmd, domain.RoleManager)

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskStatusCmd)
	rootCmd.AddCommand(taskCmd)
}

var (
	taskAddID       string
	taskAddType     string
	taskAddTitle    string
	taskAddProperty string
	taskAddAssign   string
	taskAddAt       string

	taskListStatus   string
	taskListAssignee string
	taskListType     string
	taskListLimit    int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect property tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Schedule a new task",
	Args:  cobra.NoArgs,
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks, soonest first",
	Args:    cobra.NoArgs,
	RunE:    runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show TASK",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status TASK STATUS",
	Short: "Move a task to another status (verified, archived ...)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	actor, err := currentActor(cmd, operatorID)
	if err != nil {
		return err
	}
	scheduled, err := parseWhen(taskAddAt)
	if err != nil {
		return err
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	task, err := d.Controller.CreateTask(cmd.Context(), actor, domain.Task{
		ID:          taskAddID,
		Type:        domain.TaskType(taskAddType),
		Title:       taskAddTitle,
		PropertyID:  taskAddProperty,
		AssignedTo:  taskAddAssign,
		ScheduledAt: scheduled,
	})
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), task, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Created task %s (%s)\n", task.ID, task.Type)
		return err
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	tasks, err := d.Controller.Tasks(cmd.Context(), domain.TaskFilter{
		Status:     domain.TaskStatus(taskListStatus),
		AssignedTo: taskListAssignee,
		Type:       domain.TaskType(taskListType),
		Limit:      taskListLimit,
	})
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	return render(cmd.OutOrStdout(), tasks, func(out io.Writer) error {
		if len(tasks) == 0 {
			_, err := fmt.Fprintln(out, "No tasks. Run 'turnover task add' to schedule one.")
			return err
		}
		w := newTable(out)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tASSIGNED\tSCHEDULED\tTITLE")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID,
				t.Type,
				t.Status,
				orDash(t.AssignedTo),
				formatTime(t.ScheduledAt),
				t.Title,
			)
		}
		return w.Flush()
	})
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	task, err := d.Controller.Task(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), task, func(w io.Writer) error {
		printTask(w, task)
		return nil
	})
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	actor, err := currentActor(cmd, operatorID)
	if err != nil {
		return err
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	task, err := d.Controller.SetTaskStatus(cmd.Context(), actor, args[0], domain.TaskStatus(args[1]))
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), task, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Task %s is now %s\n", task.ID, task.Status)
		return err
	})
}

func printTask(w io.Writer, t *domain.Task) {
	fmt.Fprintf(w, "ID:        %s\n", t.ID)
	fmt.Fprintf(w, "Type:      %s\n", t.Type)
	fmt.Fprintf(w, "Title:     %s\n", orDash(t.Title))
	fmt.Fprintf(w, "Status:    %s\n", t.Status)
	fmt.Fprintf(w, "Property:  %s\n", orDash(t.PropertyID))
	fmt.Fprintf(w, "Assigned:  %s\n", orDash(t.AssignedTo))
	fmt.Fprintf(w, "Scheduled: %s\n", formatTime(t.ScheduledAt))
	fmt.Fprintf(w, "Created:   %s\n", formatTime(t.CreatedAt))
	fmt.Fprintf(w, "Updated:   %s\n", formatTime(t.UpdatedAt))
}

func parseWhen(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
