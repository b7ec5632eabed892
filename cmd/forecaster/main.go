package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/carbonwise/go-forecaster/config"
	"github.com/carbonwise/go-forecaster/feature"
	"github.com/goccy/go-json"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configFile string
	profile    string
	profileDir string
	jsonOut    bool
	stop       interface{ Stop() }
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "forecaster",
		Short: "Monthly resource consumption forecasting",
		Long: `Trains, evaluates and serves monthly consumption forecasts for electricity, water,
natural gas and paper, per building or across all buildings.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.startProfile()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.stop != nil {
				g.stop.Stop()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "Config file (JSON)")
	rootCmd.PersistentFlags().StringVar(&g.profile, "profile", "", "Write a cpu or mem profile")
	rootCmd.PersistentFlags().StringVar(&g.profileDir, "profile-dir", ".", "Profile output directory")
	rootCmd.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print results as JSON")

	rootCmd.AddCommand(trainCmd(g))
	rootCmd.AddCommand(predictCmd(g))
	rootCmd.AddCommand(evaluateCmd(g))
	rootCmd.AddCommand(modelsCmd(g))
	rootCmd.AddCommand(deleteCmd(g))
	rootCmd.AddCommand(plotCmd(g))
	rootCmd.AddCommand(retrainCmd(g))
	rootCmd.AddCommand(serveCmd(g))
	return rootCmd
}

func (g *globalFlags) startProfile() error {
	switch g.profile {
	case "":
	case "cpu":
		g.stop = profile.Start(profile.CPUProfile, profile.ProfilePath(g.profileDir), profile.Quiet)
	case "mem":
		g.stop = profile.Start(profile.MemProfile, profile.ProfilePath(g.profileDir), profile.Quiet)
	default:
		return fmt.Errorf("unknown profile %q, expected cpu or mem", g.profile)
	}
	return nil
}

func (g *globalFlags) open(ctx context.Context) (*config.App, error) {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Build(ctx)
}

// print writes v as indented JSON when --json is set and through its TablePrint otherwise.
func (g *globalFlags) print(w io.Writer, v any, table func(io.Writer) error) error {
	if g.jsonOut || table == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return table(w)
}

// target holds the resource and entity flags shared by most commands.
type target struct {
	resource string
	entity   string
}

func (t *target) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.resource, "resource", "r", "", "Resource type (electricity, water, naturalgas, paper)")
	cmd.Flags().StringVarP(&t.entity, "entity", "e", "0", "Building id, 0 for all buildings")
	_ = cmd.MarkFlagRequired("resource")
}

func (t *target) parse() (feature.Resource, string, error) {
	r, err := feature.ParseResource(t.resource)
	if err != nil {
		return "", "", err
	}
	return r, t.entity, nil
}
