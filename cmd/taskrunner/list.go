package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aristath/taskrunner/internal/config"
	"github.com/aristath/taskrunner/internal/orchestrator"
	"github.com/aristath/taskrunner/internal/tasks"
)

func newListCmd(root *rootOptions) *cobra.Command {
	var (
		listJobs bool
		noColor  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (or jobs) in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			handlers := tasks.NewHandlers(orchestrator.NewBreakers(config.DefaultConfig().Breaker, nil))
			taskRegistry, jobRegistry, err := root.registries(handlers)
			if err != nil {
				return fmt.Errorf("building registry: %w", err)
			}

			header := color.New(color.FgCyan, color.Bold)
			if noColor {
				header.DisableColor()
			}

			out := cmd.OutOrStdout()
			if !listJobs {
				return listTasks(out, header, taskRegistry, "")
			}

			ordered, err := jobRegistry.Order()
			if err != nil {
				return err
			}
			for _, job := range ordered {
				header.Fprintf(out, "%s", job.ID())
				fmt.Fprintln(out, describe(job.Name(), job.ID(), job.Needs(), job.Description()))
				if err := listTasks(out, nil, job.Tasks(), "  "); err != nil {
					return fmt.Errorf("job %q: %w", job.ID(), err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&listJobs, "jobs", "j", false, "list jobs and their tasks")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	return cmd
}

func listTasks(out io.Writer, header *color.Color, registry *tasks.Registry, indent string) error {
	ordered, err := registry.Order()
	if err != nil {
		return err
	}
	for _, t := range ordered {
		id := t.ID()
		if header != nil {
			id = header.Sprint(id)
		}
		line := indent + id + describe(t.Name(), t.ID(), t.Needs(), t.Description())
		if t.Uses() != "" {
			line += " [uses " + t.Uses() + "]"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func describe(name, id string, needs []string, description string) string {
	var b strings.Builder
	if name != "" && name != id {
		b.WriteString(" (" + name + ")")
	}
	if len(needs) > 0 {
		b.WriteString(" <- " + strings.Join(needs, ", "))
	}
	if description != "" {
		b.WriteString(": " + description)
	}
	return b.String()
}
