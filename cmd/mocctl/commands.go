package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/report"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/risk"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/riskclient"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mocctl",
		Short:         "MOC Studio risk tooling",
		Long:          `mocctl scores probability x severity cells, prints the risk matrix and renders risk assessment reports.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "Output in JSON format")

	root.AddCommand(newClassifyCmd(), newMatrixCmd(), newReportCmd(), newRemoteCmd())
	return root
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func parseLevels(args []string) (int, int, error) {
	p, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("probability %q is not a number", args[0])
	}
	s, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("severity %q is not a number", args[1])
	}
	return p, s, nil
}

func printAssessment(w io.Writer, asJSON bool, as risk.Assessment) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(as)
	}
	_, err := fmt.Fprintf(w, "P=%d S=%d score=%d tier=%s\napproval: %s\n",
		as.Probability, as.Severity, as.Score, as.Tier, as.RequiredApproval.Description())
	return err
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <probability> <severity>",
		Short: "Classify one matrix cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, s, err := parseLevels(args)
			if err != nil {
				return err
			}
			as, err := risk.Classify(p, s)
			if err != nil {
				return err
			}
			return printAssessment(cmd.OutOrStdout(), jsonOutput(cmd), as)
		},
	}
}

func newMatrixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Print the 5x5 risk matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			grid := risk.Matrix()
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return json.NewEncoder(out).Encode(grid)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "P\\S\t1\t2\t3\t4\t5")
			for _, row := range grid {
				cells := make([]string, 0, len(row)+1)
				cells = append(cells, strconv.Itoa(row[0].Probability))
				for _, as := range row {
					cells = append(cells, fmt.Sprintf("%d %s", as.Score, strings.ToUpper(as.Tier.String()[:1])))
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}
}

func newReportCmd() *cobra.Command {
	var (
		probability, severity int
		author, role, output  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a risk assessment report",
		Long:  `Render the technical risk report for one cell (--probability and --severity) or the global overview when neither is given.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := report.Input{Author: author, Role: role, GeneratedAt: time.Now()}
			pSet, sSet := cmd.Flags().Changed("probability"), cmd.Flags().Changed("severity")
			if pSet != sSet {
				return fmt.Errorf("--probability and --severity must be given together")
			}
			if pSet {
				in.Selection = &report.Cell{Probability: probability, Severity: severity}
			}
			rep, err := report.Render(in)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), rep.Body)
				return err
			}
			if output == "." {
				output = rep.Filename
			}
			if err := os.WriteFile(output, []byte(rep.Body), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (sha256 %s)\n", output, rep.Digest)
			return nil
		},
	}
	cmd.Flags().IntVarP(&probability, "probability", "p", 0, "Probability level 1-5")
	cmd.Flags().IntVarP(&severity, "severity", "s", 0, "Severity level 1-5")
	cmd.Flags().StringVar(&author, "author", "", "Name printed as the authorizing user")
	cmd.Flags().StringVar(&role, "role", "", "Clearance role printed on the report")
	cmd.Flags().StringVarP(&output, "output", "o", "", `Write to this file; "." uses the generated file name`)
	return cmd
}

func newRemoteCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Call a running MOC Studio gRPC endpoint",
	}
	remote.PersistentFlags().StringVar(&addr, "addr", "localhost:9090", "gRPC address")
	remote.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Call timeout")

	dial := func() (*riskclient.Client, error) {
		if env := os.Getenv("MOC_GRPC_ADDR"); env != "" && !remote.PersistentFlags().Changed("addr") {
			addr = env
		}
		return riskclient.Dial(addr)
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Check the remote health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := riskclient.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := c.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.String())
			return nil
		},
	}

	classify := &cobra.Command{
		Use:   "classify <probability> <severity>",
		Short: "Classify one cell on the remote service",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, s, err := parseLevels(args)
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, cancel := riskclient.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			as, err := c.Classify(ctx, p, s)
			if err != nil {
				return err
			}
			return printAssessment(cmd.OutOrStdout(), jsonOutput(cmd), as)
		},
	}

	remote.AddCommand(health, classify)
	return remote
}
