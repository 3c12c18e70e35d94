package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lane-rpc/client"
	"lane-rpc/registry"
	"lane-rpc/transport"
)

var callCmd = &cobra.Command{
	Use:   "call service.Method [args...]",
	Short: "Call a method on a running node",
	Long: `call connects to one node as a client and invokes service.Method with the given
arguments. Integers are sent as long, numbers with a fraction as double,
true/false as bool and anything else as a string. The node must list the
client id (--id) in its CLIENTS.

  lanerpc call --addr 127.0.0.1:7001 arith.Add 2 3
  lanerpc call --server 2 --etcd 127.0.0.1:2379 kv.Put color blue`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetInt32("server")
		id, _ := cmd.Flags().GetInt32("id")
		addr, _ := cmd.Flags().GetString("addr")
		endpoints, _ := cmd.Flags().GetStringSlice("etcd")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		resolver, closeResolver, err := callResolver(target, addr, endpoints)
		if err != nil {
			return err
		}
		defer closeResolver()

		cli, err := client.NewClient(id, resolver, []int32{target}, client.WithCallTTL(timeout))
		if err != nil {
			return err
		}
		defer cli.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := cli.WaitConnected(ctx); err != nil {
			return fmt.Errorf("connect to server %d: %w", target, err)
		}

		result, err := cli.Invoke(ctx, target, args[0], parseArgs(args[1:])...)
		if err != nil {
			return fmt.Errorf("call %s failed: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%v\n", result)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().Int32P("server", "s", 1, "id of the server hosting the service")
	callCmd.Flags().Int32("id", 100, "client id, listed in the server's CLIENTS")
	callCmd.Flags().StringP("addr", "a", "", "server address (skips the directory)")
	callCmd.Flags().StringSlice("etcd", nil, "etcd endpoints used to resolve the server")
	callCmd.Flags().Duration("timeout", 5*time.Second, "connect and call timeout")
}

// callResolver uses --addr when given, otherwise the etcd directory.
func callResolver(target int32, addr string, endpoints []string) (transport.Resolver, func(), error) {
	if addr != "" {
		return transport.StaticResolver{target: addr}, func() {}, nil
	}
	if len(endpoints) == 0 {
		return nil, nil, fmt.Errorf("either --addr or --etcd is required")
	}
	reg, err := registry.NewEtcdRegistry(endpoints)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to etcd: %w", err)
	}
	return reg, func() { reg.Close() }, nil
}

// parseArgs converts command line words to wire values.
func parseArgs(words []string) []any {
	args := make([]any, len(words))
	for i, w := range words {
		if n, err := strconv.ParseInt(w, 10, 64); err == nil {
			args[i] = n
		} else if f, err := strconv.ParseFloat(w, 64); err == nil && strings.ContainsAny(w, ".eE") {
			args[i] = f
		} else if w == "true" || w == "false" {
			args[i] = w == "true"
		} else {
			args[i] = w
		}
	}
	return args
}
