package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTransport/cmd/nodes"
	"github.com/ValentinKolb/dTransport/cmd/perf"
	"github.com/ValentinKolb/dTransport/cmd/request"
	"github.com/ValentinKolb/dTransport/cmd/util"
	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/spf13/cobra"
)

var (
	// closeLogs releases the log file opened in PersistentPreRunE
	closeLogs = func() error { return nil }

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtransport",
		Short: "cluster-aware http client",
		Long: fmt.Sprintf(`dTransport (v%s)

A cluster-aware HTTP client for search and data clusters written in Go.
It spreads requests over all living nodes, retries failed requests on
other nodes and keeps its node list up to date by sniffing the cluster.`, common.Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			cleanup, err := common.InitLoggers(util.GetLogConfig())
			if err != nil {
				return err
			}
			closeLogs = cleanup
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return closeLogs()
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTransport",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTransport v%s\n", common.Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add Flags
	util.SetupClientFlags(RootCmd)

	// Add Commands
	RootCmd.AddCommand(request.RequestCmd)
	RootCmd.AddCommand(nodes.NodesCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
