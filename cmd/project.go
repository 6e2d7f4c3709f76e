package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andrejsstepanovs/architect/controller"
	"github.com/andrejsstepanovs/architect/models"
	"github.com/spf13/cobra"
)

func newAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <feature request>",
		Short: "Describe a feature in plain text and let the AI add it to the active project",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.handleAdd,
	}
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active project: modules, file tree and optionally a file or the README",
		Args:  cobra.NoArgs,
		Run:   app.handleShow,
	}
	cmd.Flags().String("file", "", "Print the content of the file at this path")
	cmd.Flags().Bool("readme", false, "Print the project README")
	return cmd
}

func newRenameCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <name>",
		Short: "Rename the active project",
		Args:  cobra.MinimumNArgs(1),
		Run:   app.handleRename,
	}
	return cmd
}

func newStyleCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "style [number|style]",
		Short: "List the visual styles or pick one for the active project",
		Run:   app.handleStyle,
	}
	return cmd
}

func newStatusCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the generation state and the focused file and module",
		Long: `Show the generation state and the focused file and module.

Generation state and focus live in the process that owns the controller, so a
separate invocation only sees the outcome of its own run and the stored
project. Query GET /api/v1/status on a running "architect serve" for the live
view of an outstanding generation.`,
		Args: cobra.NoArgs,
		Run:  app.handleStatus,
	}
	return cmd
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the active project as a zip archive",
		Args:  cobra.NoArgs,
		Run:   app.handleExport,
	}
	cmd.Flags().StringP("output", "o", ".", "Directory to write the archive into")
	return cmd
}

func newNewCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new project from the template",
		Args:  cobra.NoArgs,
		Run:   app.handleNew,
	}
	return cmd
}

func newResetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the active project to the template",
		Args:  cobra.NoArgs,
		Run:   app.handleReset,
	}
	return cmd
}

func (a *App) handleAdd(cmd *cobra.Command, args []string) {
	request := strings.Join(args, " ")
	fmt.Fprintf(a.out, "Generating: %s\n", request)

	project, err := a.ctrl.AddModule(cmd.Context(), request)
	if a.done(err) {
		return
	}

	status := a.ctrl.Status()
	fmt.Fprintf(a.out, "Project %q now has %d modules and %d files\n", project.Name, len(project.Modules), len(project.Files))
	if status.Focus.FilePath != "" {
		fmt.Fprintf(a.out, "Open with: architect show --file %s\n", status.Focus.FilePath)
	}
}

func (a *App) handleShow(cmd *cobra.Command, _ []string) {
	project := a.ctrl.Project()

	filePath, _ := cmd.Flags().GetString("file")
	if filePath != "" {
		for _, f := range project.Files {
			if f.Path == filePath {
				fmt.Fprintln(a.out, f.Content)
				return
			}
		}
		fmt.Fprintf(a.out, "No file %q in project %q\n", filePath, project.Name)
		return
	}

	if readme, _ := cmd.Flags().GetBool("readme"); readme {
		fmt.Fprintln(a.out, project.Readme)
		return
	}

	a.printProject(project)
}

func (a *App) printProject(p models.Project) {
	fmt.Fprintf(a.out, "%s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(a.out, "Style: %s\n", p.Style)

	fmt.Fprintf(a.out, "\nModules (%d)\n", len(p.Modules))
	for _, m := range p.Modules {
		fmt.Fprintf(a.out, "  %s [%s] %s\n", m.Name, m.Type, m.Description)
		for _, f := range m.Fields {
			required := ""
			if f.Required {
				required = " *"
			}
			fmt.Fprintf(a.out, "    - %s (%s)%s\n", f.Label, f.Type, required)
		}
	}

	fmt.Fprintf(a.out, "\nFiles (%d)\n", len(p.Files))
	for _, f := range p.Files {
		fmt.Fprintf(a.out, "  %s \t %s\n", f.Path, f.Language)
	}
}

func (a *App) handleRename(cmd *cobra.Command, args []string) {
	project, err := a.ctrl.Rename(cmd.Context(), strings.Join(args, " "))
	if a.done(err) {
		return
	}
	fmt.Fprintf(a.out, "Renamed to %q\n", project.Name)
}

func (a *App) handleStyle(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		current := a.ctrl.Project().Style
		for i, s := range models.Styles {
			marker := " "
			if s == current {
				marker = "*"
			}
			fmt.Fprintf(a.out, "%s %d. %s\n", marker, i+1, s)
		}
		return
	}

	style, err := resolveStyle(strings.Join(args, " "))
	if a.done(err) {
		return
	}
	project, err := a.ctrl.SetStyle(cmd.Context(), style)
	if a.done(err) {
		return
	}
	fmt.Fprintf(a.out, "Style set to %s\n", project.Style)
}

// resolveStyle accepts a 1-based catalogue number, a full style or a unique
// case-insensitive prefix of one.
func resolveStyle(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(models.Styles) {
			return "", fmt.Errorf("%w: style number must be between 1 and %d", models.ErrInvalidProject, len(models.Styles))
		}
		return models.Styles[n-1], nil
	}

	var match string
	for _, s := range models.Styles {
		if s == arg {
			return s, nil
		}
		if arg != "" && strings.HasPrefix(strings.ToLower(s), strings.ToLower(arg)) {
			if match != "" {
				return "", fmt.Errorf("%w: style %q is ambiguous", models.ErrInvalidProject, arg)
			}
			match = s
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: unknown style %q", models.ErrInvalidProject, arg)
	}
	return match, nil
}

func (a *App) handleStatus(_ *cobra.Command, _ []string) {
	status := a.ctrl.Status()
	fmt.Fprintf(a.out, "Phase: %s\n", status.Phase)
	if status.LastError != "" {
		fmt.Fprintf(a.out, "Last error: %s\n", status.LastError)
	}
	for _, line := range status.Progress {
		fmt.Fprintf(a.out, "  %s\n", line)
	}
	if status.Focus.FilePath != "" {
		fmt.Fprintf(a.out, "Focused file: %s\n", status.Focus.FilePath)
	}
	if status.Focus.ModuleID != "" {
		if m, ok := a.ctrl.Project().FindModule(status.Focus.ModuleID); ok {
			fmt.Fprintf(a.out, "Focused module: %s\n", m.Name)
		}
	}
}

func (a *App) handleExport(cmd *cobra.Command, _ []string) {
	if !a.ctrl.Project().HasFiles() {
		a.done(controller.ErrNoFiles)
		return
	}

	dir, _ := cmd.Flags().GetString("output")
	tmp, err := os.CreateTemp(dir, ".architect-export-*.zip")
	if a.done(err) {
		return
	}
	defer os.Remove(tmp.Name())

	name, err := a.ctrl.Export(cmd.Context(), tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if a.done(err) {
		return
	}

	target := filepath.Join(dir, name)
	if a.done(os.Rename(tmp.Name(), target)) {
		return
	}
	fmt.Fprintf(a.out, "Exported %s\n", target)
}

func (a *App) handleNew(cmd *cobra.Command, _ []string) {
	project, err := a.ctrl.NewProject(cmd.Context(), a.confirm)
	if a.done(err) {
		return
	}
	fmt.Fprintf(a.out, "Started %q (%s)\n", project.Name, project.ID)
}

func (a *App) handleReset(cmd *cobra.Command, _ []string) {
	project, err := a.ctrl.Reset(cmd.Context(), a.confirm)
	if a.done(err) {
		return
	}
	fmt.Fprintf(a.out, "Reset to %q (%s)\n", project.Name, project.ID)
}
