package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"treasury-terminal/execution"
	"treasury-terminal/order"
)

func newReportsCmd() *cobra.Command {
	var (
		limit     int64
		format    string
		redisHost string
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List recent execution reports, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			b, err := dialBroker(ctx, redisHost)
			if err != nil {
				return err
			}
			defer b.Close()
			reports, err := execution.Recent(ctx, b, limit)
			if err != nil {
				return err
			}
			switch format {
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			case "table":
				renderReports(cmd.OutOrStdout(), reports)
				return nil
			}
			return fmt.Errorf("unknown format %q (table|json)", format)
		},
	}
	f := cmd.Flags()
	f.Int64Var(&limit, "limit", 20, "最多显示条数")
	f.StringVar(&format, "format", "table", "table 或 json")
	f.StringVar(&redisHost, "redis-host", defaultRedisHost(), "Redis 地址（host 或 host:port）")
	return cmd
}

func renderReports(w io.Writer, reports []order.ExecutionReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "No execution reports.")
		return
	}
	fmt.Fprintf(w, "%-38s %-8s %-5s %-8s %-9s %10s %12s  %s\n",
		"ClOrdID", "Symbol", "Side", "ExecType", "OrdStatus", "LastQty", "LastPx", "Text")
	for _, r := range reports {
		fmt.Fprintf(w, "%-38s %-8s %-5s %-8s %-9s %10s %12s  %s\n",
			r.ClOrdID, r.Symbol, r.Side, r.ExecType, r.OrdStatus, optional(r.LastQty), optional(r.LastPx), r.Text)
	}
}

// optional 缺失字段显示为 "-"，不当作 0
func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
