// Command airkeeper is the local entrypoint for one Airkeeper update
// cycle: load and validate configuration, then either run the cycle
// (invoke), check it for problems (validate-config), or print a human
// readable summary of it (report).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/api3dao/airkeeper-go/internal/apicaller"
	"github.com/api3dao/airkeeper-go/internal/config"
	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/model"
	"github.com/api3dao/airkeeper-go/internal/orchestrator"
	"github.com/api3dao/airkeeper-go/internal/triggers"
)

var (
	nodeConfigFlag = &cli.StringFlag{
		Name:     "node-config",
		Usage:    "path to the Airnode node config document",
		Required: true,
	}
	keeperConfigFlag = &cli.StringFlag{
		Name:     "keeper-config",
		Usage:    "path to the Airkeeper keeper config document",
		Required: true,
	}
	dumpMetricsFlag = &cli.BoolFlag{
		Name:  "dump-metrics",
		Usage: "print gathered cycle metrics after the run",
	}
)

func main() {
	app := &cli.App{
		Name:  "airkeeper",
		Usage: "runs oracle beacon update cycles against a validated Airnode/Airkeeper config",
		Commands: []*cli.Command{
			invokeCommand,
			validateConfigCommand,
			reportCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("airkeeper exited with an error", "err", err)
		os.Exit(1)
	}
}

var invokeCommand = &cli.Command{
	Name:  "invoke",
	Usage: "load config and run one cycle, printing the JSON response body",
	Flags: []cli.Flag{nodeConfigFlag, keeperConfigFlag, dumpMetricsFlag},
	Action: func(c *cli.Context) error {
		cfg, err := loadValidatedConfig(c)
		if err != nil {
			return err
		}

		reg := metrics.New()
		orch := orchestrator.New(cfg, apicaller.NewHTTPAdapter(), reg)

		resp, err := orch.Handle(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("cycle failed: %w", err)
		}
		fmt.Println(resp.Body)

		if c.Bool(dumpMetricsFlag.Name) {
			return dumpMetrics(reg)
		}
		return nil
	},
}

var validateConfigCommand = &cli.Command{
	Name:  "validate-config",
	Usage: "run the config merger and trigger resolver only, reporting every dropped work unit",
	Flags: []cli.Flag{nodeConfigFlag, keeperConfigFlag},
	Action: func(c *cli.Context) error {
		summary, err := buildValidationSummary(c)
		if err != nil {
			return err
		}
		fmt.Printf("chains: %d\n", summary.chainCount)
		fmt.Printf("psp subscription groups resolved: %d (of %d declared)\n", len(summary.groups), summary.declaredPSP)
		fmt.Printf("rrp beacon jobs resolved: %d (of %d declared)\n", len(summary.jobs), summary.declaredRRP)
		if summary.declaredPSP > len(summary.groups) || summary.declaredRRP > len(summary.jobs) {
			fmt.Println("one or more triggers were dropped during resolution; see the warning-level log lines above for why")
		}
		return nil
	},
}

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "re-run validate-config and render a table of chains, sponsors, and subscriptions",
	Flags: []cli.Flag{nodeConfigFlag, keeperConfigFlag},
	Action: func(c *cli.Context) error {
		summary, err := buildValidationSummary(c)
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Kind", "Chain", "Sponsor", "ID"})
		for _, group := range summary.groups {
			for _, sub := range group.Subscriptions {
				subID, idErr := sub.ID()
				if idErr != nil {
					continue
				}
				table.Append([]string{"psp", sub.ChainID, sub.Sponsor.Hex(), subID.Hex()})
			}
		}
		for _, job := range summary.jobs {
			chainIDs := "all"
			if len(job.Job.ChainIDs) > 0 {
				chainIDs = fmt.Sprintf("%v", job.Job.ChainIDs)
			}
			table.Append([]string{"rrp", chainIDs, job.Job.KeeperSponsor.Hex(), job.BeaconID.Hex()})
		}
		table.Render()
		return nil
	},
}

func loadRawConfig(c *cli.Context) (*config.RawConfig, error) {
	raw, err := config.LoadNodeAndKeeper(c.String(nodeConfigFlag.Name), c.String(keeperConfigFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return raw, nil
}

func loadValidatedConfig(c *cli.Context) (*model.Config, error) {
	raw, err := loadRawConfig(c)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

type validationSummary struct {
	chainCount  int
	declaredPSP int
	declaredRRP int
	groups      []model.GroupedSubscription
	jobs        []model.ResolvedBeaconJob
}

func buildValidationSummary(c *cli.Context) (*validationSummary, error) {
	cfg, err := loadValidatedConfig(c)
	if err != nil {
		return nil, err
	}

	resolver, err := triggers.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build trigger resolver: %w", err)
	}

	return &validationSummary{
		chainCount:  len(cfg.Chains),
		declaredPSP: len(cfg.Triggers.ProtoPSP),
		declaredRRP: len(cfg.Triggers.RRPBeaconServerKeeperJobs),
		groups:      resolver.ResolvePSP(),
		jobs:        resolver.ResolveRRP(),
	}, nil
}

func dumpMetrics(reg *metrics.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	encoded, err := json.MarshalIndent(families, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}
