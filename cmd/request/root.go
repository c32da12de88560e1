package request

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/dTransport/cmd/util"
	"github.com/ValentinKolb/dTransport/rpc/transport"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// RequestCmd sends a single request to the cluster
	RequestCmd = &cobra.Command{
		Use:   "request [method] [path] [body]",
		Short: "Send a request to the cluster",
		Long: `Send a request to the cluster and print the response.

The body is sent verbatim as JSON. Use "-" to read it from stdin.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: run,
	}
)

func init() {
	key := "query"
	RequestCmd.Flags().StringSlice(key, nil, util.WrapString("Query parameter as key=value, can be repeated"))
	key = "ignore"
	RequestCmd.Flags().IntSlice(key, nil, util.WrapString("Status codes that are not treated as errors"))
	key = "ndjson"
	RequestCmd.Flags().Bool(key, false, util.WrapString("Send every line of the body as a separate document (bulk format)"))
	key = "opaque-id"
	RequestCmd.Flags().String(key, "", util.WrapString("Value of the X-Opaque-Id header"))
	key = "metrics"
	RequestCmd.Flags().Bool(key, false, util.WrapString("Print the transport metrics after the request"))
}

func run(cmd *cobra.Command, args []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	params := transport.Params{
		Method: strings.ToUpper(args[0]),
		Path:   args[1],
	}

	query, err := util.ParseKeyValues(viper.GetStringSlice("query"))
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	if len(query) > 0 {
		params.Querystring = make(map[string]any, len(query))
		for k, v := range query {
			params.Querystring[k] = v
		}
	}

	if len(args) == 3 {
		body, err := readBody(args[2], cmd.InOrStdin())
		if err != nil {
			return err
		}
		if viper.GetBool("ndjson") {
			for _, line := range strings.Split(body, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					params.BulkBody = append(params.BulkBody, line)
				}
			}
		} else {
			params.Body = body
		}
	}

	c, err := util.NewClient()
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Request(context.Background(), params, &transport.Options{
		Ignore:   viper.GetIntSlice("ignore"),
		OpaqueID: viper.GetString("opaque-id"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d (%s, %d attempt(s))\n", res.StatusCode, res.Meta.ConnectionID, res.Meta.Attempts)
	for _, warning := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	if err := printBody(out, res.Body); err != nil {
		return err
	}

	if viper.GetBool("metrics") {
		fmt.Fprintln(out)
		c.WriteMetrics(out)
	}
	return nil
}

// readBody returns the body argument, "-" reads it from in
func readBody(arg string, in io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read body from stdin: %w", err)
	}
	return string(data), nil
}

// printBody prints strings verbatim and everything else as indented JSON
func printBody(w io.Writer, body any) error {
	if s, ok := body.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(body, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
