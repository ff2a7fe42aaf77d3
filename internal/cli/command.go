package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/cmd-notebook/internal/notebook"
	"github.com/example/cmd-notebook/internal/notebook/probe"
)

// ManagerFunc returns the Manager the commands operate on.
type ManagerFunc func() (*notebook.Manager, error)

// OpenFunc builds a Manager from the resolved process options.
type OpenFunc func(Options) (*notebook.Manager, error)

// NewRootCommand constructs the root Cobra command for notebook. open is
// called once, after flags and environment are resolved.
func NewRootCommand(open OpenFunc, prompter Prompter, stdout, stderr io.Writer) *cobra.Command {
	var opts Options
	var mgr *notebook.Manager

	cmd := &cobra.Command{
		Use:           "notebook",
		Short:         "Command notebook storage",
		Long:          "notebook saves, loads, backs up and relocates the command notebook state.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.applyEnv(cmd.Flags())
			m, err := open(opts)
			if err != nil {
				return err
			}
			mgr = m
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	opts.bindFlags(cmd.PersistentFlags())

	get := func() (*notebook.Manager, error) {
		if mgr == nil {
			return nil, errors.New("storage is not initialised")
		}
		return mgr, nil
	}

	cmd.AddCommand(newSaveCommand(get, stdout))
	cmd.AddCommand(newLoadCommand(get, stdout))
	cmd.AddCommand(newInfoCommand(get, stdout))
	cmd.AddCommand(newCheckDirCommand(get, stdout))
	cmd.AddCommand(newSwitchDirCommand(get, prompter, stdout))
	cmd.AddCommand(newResetDirCommand(get, prompter, stdout))
	cmd.AddCommand(newBackupsCommand(get, prompter, stdout))
	cmd.AddCommand(newRecoverCommand(get, stdout))
	cmd.AddCommand(newWatchCommand(get, stdout))

	return cmd
}

func newSaveCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "save [file|-]",
		Short: "Save notebook state read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}

			var content []byte
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read state: %w", err)
			}

			if err := mgr.SaveState(string(content)); err != nil {
				return err
			}
			path, err := mgr.DataFilePath()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "State saved to %s\n", path)
			return nil
		},
	}
}

func newLoadCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Print the saved notebook state",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			content, ok, err := mgr.LoadState()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "No saved state.")
				return nil
			}
			fmt.Fprint(stdout, content)
			return nil
		},
	}
}

func newInfoCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the active data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			info, err := mgr.DataDirInfo()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(stdout, info)
			}

			qualifier := ""
			if info.IsDefault {
				qualifier = " (default)"
			}
			fmt.Fprintf(stdout, "Data directory: %s%s\n", info.Path, qualifier)
			fmt.Fprintf(stdout, "Data file:      %s\n", yesNo(info.DataFileExists, "present", "absent"))
			fmt.Fprintf(stdout, "Writable:       %s\n", yesNo(info.IsWritable, "yes", "no"))
			fmt.Fprintf(stdout, "Backups kept:   %d\n", info.BackupCount)
			if path, err := mgr.Config().Path(); err == nil {
				fmt.Fprintf(stdout, "Config file:    %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newCheckDirCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check-dir <path>",
		Short: "Classify a directory as a switch target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			c := mgr.CheckSwitchDir(args[0])
			if asJSON {
				return writeJSON(stdout, c)
			}
			fmt.Fprintln(stdout, describeClassification(c))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

type actionChoice struct {
	label  string
	action notebook.SwitchAction
}

func switchChoices(c probe.Classification, path string) []actionChoice {
	copyChoice := actionChoice{fmt.Sprintf("Copy current data to %s", path), notebook.CopyToNew}
	cancel := actionChoice{"Cancel", notebook.Cancel}
	if c.Kind == probe.HasExistingData {
		return []actionChoice{
			{fmt.Sprintf("Use the data already in %s", path), notebook.UseExisting},
			{"Overwrite it with current data", notebook.CopyToNew},
			cancel,
		}
	}
	return []actionChoice{
		copyChoice,
		{fmt.Sprintf("Start empty in %s", path), notebook.UseExisting},
		cancel,
	}
}

func newSwitchDirCommand(get ManagerFunc, prompter Prompter, stdout io.Writer) *cobra.Command {
	var actionName string
	var force bool

	cmd := &cobra.Command{
		Use:   "switch-dir [path]",
		Short: "Move the data directory to a new location",
		Long:  "Move the data directory to a new location. Prompts for the path when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			var input string
			if len(args) == 1 {
				input = args[0]
			} else {
				input, err = prompter.Prompt("New data directory")
				if err != nil {
					return err
				}
			}

			c := mgr.CheckSwitchDir(input)
			if c.Kind == probe.Invalid {
				return fmt.Errorf("cannot use %s: %s", input, c.Reason)
			}
			path := c.Path

			var action notebook.SwitchAction
			if actionName != "" {
				action, err = notebook.ParseSwitchAction(actionName)
				if err != nil {
					return err
				}
			} else {
				fmt.Fprintln(stdout, describeClassification(c))
				choices := switchChoices(c, path)
				labels := make([]string, len(choices))
				for i, choice := range choices {
					labels[i] = choice.label
				}
				_, selected, err := prompter.Select("What should happen to the current data?", labels, labels[0])
				if err != nil {
					return err
				}
				action = notebook.Cancel
				for _, choice := range choices {
					if choice.label == selected {
						action = choice.action
						break
					}
				}
			}

			if action == notebook.CopyToNew && c.Kind == probe.HasExistingData && !force {
				confirm, err := prompter.Confirm(fmt.Sprintf("Overwrite the data in %s (modified %s)? (y/N)", path, c.LastModified), false)
				if err != nil {
					return err
				}
				if !confirm {
					action = notebook.Cancel
				}
			}

			if action == notebook.Cancel {
				_ = mgr.SwitchDataDir(path, notebook.Cancel)
				fmt.Fprintln(stdout, "Switch cancelled.")
				return nil
			}
			if err := mgr.SwitchDataDir(path, action); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Data directory switched to %s (%s).\n", path, action)
			return nil
		},
	}

	cmd.Flags().StringVar(&actionName, "action", "", "CopyToNew, UseExisting or Cancel; prompts when omitted")
	cmd.Flags().BoolVar(&force, "force", false, "Do not ask before overwriting existing data")
	return cmd
}

func newResetDirCommand(get ManagerFunc, prompter Prompter, stdout io.Writer) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset-dir",
		Short: "Return to the default data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			if !force {
				confirm, err := prompter.Confirm("Switch back to the default data directory? (y/N)", false)
				if err != nil {
					return err
				}
				if !confirm {
					fmt.Fprintln(stdout, "Reset cancelled.")
					return nil
				}
			}
			if err := mgr.ResetDataDir(); err != nil {
				return err
			}
			info, err := mgr.DataDirInfo()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Data directory reset to %s.\n", info.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Do not prompt for confirmation")
	return cmd
}

func newBackupsCommand(get ManagerFunc, prompter Prompter, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune state backups",
	}
	cmd.AddCommand(newBackupsListCommand(get, stdout))
	cmd.AddCommand(newBackupsPruneCommand(get, prompter, stdout))
	cmd.AddCommand(newBackupsSetCountCommand(get, stdout))
	return cmd
}

func newBackupsSetCountCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "set-count <n>",
		Short: "Set how many backups are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil || n < 0 {
				return fmt.Errorf("backup count must be a non-negative integer: %q", args[0])
			}
			mgr, err := get()
			if err != nil {
				return err
			}
			if err := mgr.SetBackupCount(n); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Keeping up to %d backup(s).\n", n)
			return nil
		},
	}
}

func newBackupsListCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			entries, err := mgr.ListBackups()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No backups found.")
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(stdout, "%s  %s  %d bytes\n",
					entry.ModTime.Local().Format(probe.TimeLayout), entry.Name, entry.Size)
			}
			return nil
		},
	}
}

func newBackupsPruneCommand(get ManagerFunc, prompter Prompter, stdout io.Writer) *cobra.Command {
	var keep int
	var force bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				info, err := mgr.DataDirInfo()
				if err != nil {
					return err
				}
				keep = info.BackupCount
			}
			if keep < 0 {
				return fmt.Errorf("--keep cannot be negative")
			}

			if !force {
				confirm, err := prompter.Confirm(fmt.Sprintf("Keep only the %d newest backup(s)? (y/N)", keep), false)
				if err != nil {
					return err
				}
				if !confirm {
					fmt.Fprintln(stdout, "Prune cancelled.")
					return nil
				}
			}

			count, err := mgr.PruneBackups(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Deleted %d backup(s).\n", count)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 0, "Number of backups to keep (default: configured backup_count)")
	cmd.Flags().BoolVar(&force, "force", false, "Do not prompt for confirmation")
	return cmd
}

func newRecoverCommand(get ManagerFunc, stdout io.Writer) *cobra.Command {
	var clearRecord bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Report a directory switch that did not finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := get()
			if err != nil {
				return err
			}
			pending, err := mgr.PendingSwitch()
			if err != nil {
				return err
			}
			if pending == nil {
				fmt.Fprintln(stdout, "No interrupted directory switch.")
				return nil
			}

			fmt.Fprintf(stdout, "Interrupted %s switch started %s\n", pending.Action, pending.StartedAt.Local().Format(probe.TimeLayout))
			fmt.Fprintf(stdout, "  from: %s (data %s)\n", pending.From, orAbsent(pending.FromModified))
			fmt.Fprintf(stdout, "  to:   %s (data %s)\n", pending.To, orAbsent(pending.ToModified))
			if pending.ConfigAtFrom {
				fmt.Fprintln(stdout, "Configuration still points to the original directory.")
			} else {
				fmt.Fprintln(stdout, "Configuration no longer points to the original directory.")
			}

			if !clearRecord {
				fmt.Fprintln(stdout, "Run 'notebook recover --clear' once the directories are checked.")
				return nil
			}
			if err := mgr.ClearPendingSwitch(); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Switch record cleared.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearRecord, "clear", false, "Discard the interrupted switch record")
	return cmd
}

func describeClassification(c probe.Classification) string {
	switch c.Kind {
	case probe.EmptyDir:
		return "Directory is empty and ready to use."
	case probe.HasExistingData:
		return fmt.Sprintf("Directory already holds notebook data (modified %s).", c.LastModified)
	default:
		return fmt.Sprintf("Directory cannot be used: %s.", c.Reason)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func orAbsent(s string) string {
	if strings.TrimSpace(s) == "" {
		return "absent"
	}
	return "modified " + s
}
