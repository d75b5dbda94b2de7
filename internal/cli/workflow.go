package cli

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/propdesk/turnover/internal/app/gate"
	"github.com/propdesk/turnover/internal/domain"
)

func init() {
	for _, c := range []*cobra.Command{wfOpenCmd, wfUploadCmd, wfCheckCmd, wfHandoffCmd} {
		addActorFlags(c, domain.RoleWorker)
	}
	wfCheckCmd.Flags().BoolVar(&wfUncheck, "uncheck", false, "Clear the item instead of checking it")

	workflowCmd.AddCommand(wfOpenCmd, wfShowCmd, wfUploadCmd, wfCheckCmd, wfHandoffCmd)
	rootCmd.AddCommand(workflowCmd)
}

var wfUncheck bool

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Drive the five-step completion workflow of a task",
}

var wfOpenCmd = &cobra.Command{
	Use:   "open TASK",
	Short: "Open (or fetch) the workflow of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowOpen,
}

var wfShowCmd = &cobra.Command{
	Use:   "show TASK",
	Short: "Show workflow progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowShow,
}

var wfUploadCmd = &cobra.Command{
	Use:   "upload TASK STEP FILE...",
	Short: "Upload evidence photos for step access, before or after",
	Example: `  turnover workflow upload task-1 access door.jpg --as w1
  turnover workflow upload task-1 2 a.jpg b.jpg c.jpg --as w1`,
	Args: cobra.MinimumNArgs(3),
	RunE: runWorkflowUpload,
}

var wfCheckCmd = &cobra.Command{
	Use:   "check TASK INDEX",
	Short: "Check (or --uncheck) one checklist item",
	Args:  cobra.ExactArgs(2),
	RunE:  runWorkflowCheck,
}

var wfHandoffCmd = &cobra.Command{
	Use:   "handoff TASK",
	Short: "Submit the final handoff and complete the task",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflowHandoff,
}

func runWorkflowOpen(cmd *cobra.Command, args []string) error {
	actor, err := currentActor(cmd, "")
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	wf, err := d.Controller.Open(cmd.Context(), actor, args[0])
	if err != nil {
		return err
	}
	return renderWorkflow(cmd, wf)
}

func runWorkflowShow(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	wf, err := d.Controller.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return renderWorkflow(cmd, wf)
}

func runWorkflowUpload(cmd *cobra.Command, args []string) error {
	actor, err := currentActor(cmd, "")
	if err != nil {
		return err
	}
	step, err := domain.ParseStep(args[1])
	if err != nil {
		return err
	}

	files := make([]domain.EvidenceFile, 0, len(args)-2)
	for _, path := range args[2:] {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}
		files = append(files, domain.EvidenceFile{
			Name:        filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Size:        info.Size(),
			Body:        f,
		})
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	wf, err := d.Controller.UploadEvidence(cmd.Context(), actor, args[0], step, files)
	if err != nil {
		return err
	}
	return renderWorkflow(cmd, wf)
}

func runWorkflowCheck(cmd *cobra.Command, args []string) error {
	actor, err := currentActor(cmd, "")
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: checklist index %q", domain.ErrIndexOutOfRange, args[1])
	}

	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	wf, err := d.Controller.ToggleChecklist(cmd.Context(), actor, args[0], index, !wfUncheck)
	if err != nil {
		return err
	}
	return renderWorkflow(cmd, wf)
}

func runWorkflowHandoff(cmd *cobra.Command, args []string) error {
	actor, err := currentActor(cmd, "")
	if err != nil {
		return err
	}
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	wf, err := d.Controller.SubmitHandoff(cmd.Context(), actor, args[0])
	if err != nil {
		return err
	}
	return renderWorkflow(cmd, wf)
}

type workflowView struct {
	domain.Workflow `yaml:",inline"`
	State           string `json:"state" yaml:"state"`
}

func renderWorkflow(cmd *cobra.Command, wf *domain.Workflow) error {
	view := workflowView{Workflow: *wf, State: wf.State().String()}
	return render(cmd.OutOrStdout(), view, func(w io.Writer) error {
		printWorkflow(w, wf)
		return nil
	})
}

func printWorkflow(out io.Writer, wf *domain.Workflow) {
	fmt.Fprintf(out, "Workflow %s for task %s: %s (%s)\n", wf.ID, wf.TaskID, wf.Status, wf.State())

	w := newTable(out)
	fmt.Fprintln(w, "STEP\tNAME\tDONE\tDETAIL")
	photos := func(n domain.StepNumber, p domain.PhotoStep, need int) {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d photos\n", n, n, mark(p.Completed), len(p.Photos), need)
	}
	photos(domain.StepAccess, wf.Access, gate.RequiredEvidence(domain.StepAccess))
	photos(domain.StepBefore, wf.Before, gate.RequiredEvidence(domain.StepBefore))
	checked := 0
	for _, it := range wf.Checklist.Items {
		if it.Checked {
			checked++
		}
	}
	fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d items\n", domain.StepChecklist, domain.StepChecklist,
		mark(wf.Checklist.Completed), checked, len(wf.Checklist.Items))
	photos(domain.StepAfter, wf.After, gate.RequiredEvidence(domain.StepAfter))
	fmt.Fprintf(w, "%d\t%s\t%s\t-\n", domain.StepHandoff, domain.StepHandoff, mark(wf.Handoff.Completed))
	w.Flush()

	for i, it := range wf.Checklist.Items {
		fmt.Fprintf(out, "  [%s] %d. %s\n", checkbox(it.Checked), i, it.Item)
	}
	fmt.Fprintf(out, "Started:  %s\n", formatTime(wf.TimeStart))
	fmt.Fprintf(out, "Finished: %s\n", formatTime(wf.TimeEnd))
	fmt.Fprintf(out, "Version:  %d (last by %s)\n", wf.Version, orDash(wf.UpdatedBy))
}

func mark(done bool) string {
	if done {
		return "yes"
	}
	return "no"
}

func checkbox(done bool) string {
	if done {
		return "x"
	}
	return " "
}
