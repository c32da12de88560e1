package nodes

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/dTransport/cmd/util"
	"github.com/ValentinKolb/dTransport/rpc/connection"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// NodesCmd sniffs the cluster once and prints the resulting pool
	NodesCmd = &cobra.Command{
		Use:   "nodes",
		Short: "Print the nodes of the cluster",
		Long: `Fetch the node list of the cluster and print the connection pool.
With --ping every node is pinged first, so the pool shows which nodes are reachable.`,
		Args: cobra.NoArgs,
		RunE: run,
	}
)

func init() {
	key := "ping"
	NodesCmd.Flags().Bool(key, false, util.WrapString("Ping every node before printing the pool"))
	key = "no-sniff"
	NodesCmd.Flags().Bool(key, false, util.WrapString("Print the configured nodes without asking the cluster"))
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	c, err := util.NewClient()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()
	if !viper.GetBool("no-sniff") {
		if _, err := c.Sniff(ctx); err != nil {
			return fmt.Errorf("failed to sniff the cluster: %w", err)
		}
	}

	conns := c.Pool().Connections()
	if viper.GetBool("ping") {
		timeout := c.Config().PingTimeout
		for _, conn := range conns {
			if conn.Ping(ctx, timeout) {
				c.Pool().MarkAlive(conn)
			} else {
				c.Pool().MarkDead(conn)
			}
		}
	}

	printPool(cmd.OutOrStdout(), conns)
	return nil
}

// printPool prints one line per connection
func printPool(w io.Writer, conns []*connection.Connection) {
	fmt.Fprintf(w, "%-24s %-32s %-28s %-6s %-5s %-9s %-9s %-12s %s\n",
		"ID", "URL", "ROLES", "STATUS", "DEAD", "REQUESTS", "FAILURES", "MEAN", "P99")
	for _, conn := range conns {
		stats := conn.Stats()
		roles := "-"
		if r := conn.Roles(); r != nil {
			roles = strings.Join(r.List(), ",")
		}
		fmt.Fprintf(w, "%-24s %-32s %-28s %-6s %-5d %-9d %-9d %-12s %s\n",
			conn.ID(), conn.URL().String(), roles, conn.Status(), conn.DeadCount(),
			stats.Requests, stats.Failures, stats.MeanLatency, stats.P99Latency)
	}
}
