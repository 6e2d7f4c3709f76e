package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSaveCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a snapshot of the active project to the workspace",
		Args:  cobra.NoArgs,
		Run:   app.handleSave,
	}
	return cmd
}

func newLoadCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <project-id>",
		Short: "Make a workspace snapshot the active project",
		Args:  cobra.ExactArgs(1),
		Run:   app.handleLoad,
	}
	return cmd
}

func newDeleteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a snapshot from the workspace",
		Args:  cobra.ExactArgs(1),
		Run:   app.handleDelete,
	}
	return cmd
}

func newWorkspaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "List the saved projects, newest first",
		Args:  cobra.NoArgs,
		Run:   app.handleWorkspace,
	}
	return cmd
}

func (a *App) handleSave(cmd *cobra.Command, _ []string) {
	project, err := a.ctrl.Save(cmd.Context())
	if a.done(err) {
		return
	}
	fmt.Fprintf(a.out, "Saved %q (%s)\n", project.Name, project.ID)
}

func (a *App) handleLoad(cmd *cobra.Command, args []string) {
	project, err := a.ctrl.Load(cmd.Context(), args[0])
	if a.done(err) {
		return
	}
	fmt.Fprintf(a.out, "Loaded %q\n", project.Name)
}

func (a *App) handleDelete(cmd *cobra.Command, args []string) {
	if a.done(a.ctrl.Delete(cmd.Context(), args[0], a.confirm)) {
		return
	}
	fmt.Fprintf(a.out, "Deleted %s\n", args[0])
}

func (a *App) handleWorkspace(_ *cobra.Command, _ []string) {
	projects := a.ctrl.Workspace()
	if len(projects) == 0 {
		fmt.Fprintln(a.out, "Workspace is empty")
		return
	}

	active := a.ctrl.Project().ID
	for _, p := range projects {
		marker := " "
		if p.ID == active {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %s \t %s \t %d modules \t %s\n",
			marker, p.ID, p.Name, len(p.Modules), p.UpdatedAt.Local().Format(time.DateTime))
	}
}
