package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/azuremigrate/preflight/internal/cal"
	"github.com/azuremigrate/preflight/internal/config"
	"github.com/azuremigrate/preflight/internal/engine"
	"github.com/azuremigrate/preflight/internal/model"
)

func validateCmd() *cobra.Command {
	var configPath, profile, projectsPath, machinesPath string
	var runMatcher bool
	var parallelism int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run pre-flight checks over declared projects and machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(configPath)
			if err != nil {
				return errors.Trace(err)
			}
			if profile != "" {
				doc.ActiveProfile = profile
			}
			resolved, err := config.Resolve(doc, nil)
			if err != nil {
				return errors.Trace(err)
			}

			projects, err := readDecls[model.ProjectDecl](projectsPath)
			if err != nil {
				return errors.Annotate(err, "reading project declarations")
			}
			machines, err := readDecls[model.MachineDecl](machinesPath)
			if err != nil {
				return errors.Annotate(err, "reading machine declarations")
			}

			credential, err := azidentity.NewDefaultAzureCredential(nil)
			if err != nil {
				return errors.Annotate(err, "acquiring Azure credential")
			}
			client, err := cal.NewAzureClient(credential, nil)
			if err != nil {
				return errors.Trace(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run, err := engine.Run(ctx, engine.Options{
				Client:                client,
				Config:                resolved,
				RunIntelligentMatcher: runMatcher,
				Parallelism:           parallelism,
			}, projects, machines)
			if err != nil {
				return errors.Trace(err)
			}

			if viper.GetBool("json") {
				return printJSON(run)
			}
			printTable(run)
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the validation configuration YAML (defaults built in if omitted)")
	cmd.Flags().StringVar(&profile, "profile", "", "active profile name (overrides the document's active_profile)")
	cmd.Flags().StringVar(&projectsPath, "projects", "", "path to a JSON array of project declarations")
	cmd.Flags().StringVar(&machinesPath, "machines", "", "path to a JSON array of machine declarations")
	cmd.Flags().BoolVar(&runMatcher, "match", false, "run the Intelligent Matcher over machines with no declared project_key")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "bounded concurrency per tier (0 selects the default)")
	_ = cmd.MarkFlagRequired("projects")
	_ = cmd.MarkFlagRequired("machines")
	return cmd
}

func loadDocument(path string) (config.Document, error) {
	if path == "" {
		return config.DefaultDocument(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config.Document{}, errors.Trace(err)
	}
	defer f.Close()
	return config.Load(f)
}

func readDecls[T any](path string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(run model.Run) {
	fmt.Printf("Run %s (config %s)\n", run.ID, run.ConfigFingerprint[:12])

	pt := table.NewWriter()
	pt.SetOutputMirror(os.Stdout)
	pt.AppendHeader(table.Row{"Project", "Rolled Up", "Short-Circuited"})
	for key, readiness := range run.Projects {
		pt.AppendRow(table.Row{key.String(), readiness.RolledUp, readiness.ShortCircuited})
	}
	pt.Render()

	mt := table.NewWriter()
	mt.SetOutputMirror(os.Stdout)
	mt.AppendHeader(table.Row{"Machine", "Project", "Rolled Up", "Skipped"})
	for _, mr := range run.Machines {
		mt.AppendRow(table.Row{mr.TargetName, mr.ProjectKey.String(), mr.RolledUp, mr.SkippedReason})
	}
	mt.Render()
}
