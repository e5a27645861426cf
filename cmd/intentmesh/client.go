package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intentmesh/internal/domain"
	intentsdk "intentmesh/sdk/go"
)

func client() *intentsdk.Client {
	c := intentsdk.New(viper.GetString("server"))
	c.BearerToken = viper.GetString("token")
	return c
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func intentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "intent", Short: "Manage intents"}
	cmd.AddCommand(intentCreateCmd())
	cmd.AddCommand(intentListCmd())
	cmd.AddCommand(intentGetCmd())
	cmd.AddCommand(intentDeleteCmd())
	return cmd
}

func intentCreateCmd() *cobra.Command {
	var id, name, description, file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit an intent from a Turtle file",
		Long:  "Submits to --server. Point --server at a router to have the intent forwarded to the domain named in its expression.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			created, err := client().CreateIntent(cmd.Context(), intentsdk.Intent{
				ID:          id,
				Name:        name,
				Description: description,
				Expression:  intentsdk.IntentExpression{Type: domain.ExpressionTypeTurtle, Value: string(data)},
			})
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(created)
			}
			fmt.Printf("created intent %s (%s)\n", created.ID, created.LifecycleStatus)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "intent id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "intent name")
	cmd.Flags().StringVar(&description, "description", "", "intent description")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Turtle expression file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func intentListCmd() *cobra.Command {
	var page intentsdk.Page
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List intents",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, total, err := client().ListIntents(cmd.Context(), page)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable(table.Row{"ID", "Name", "Status", "Created", "Updated"})
			for _, it := range items {
				tw.AppendRow(table.Row{it.ID, it.Name, it.LifecycleStatus, it.CreationDate, it.LastUpdate})
			}
			tw.AppendFooter(table.Row{"", "", "", "total", total})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "skip this many intents")
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "return at most this many intents")
	return cmd
}

func intentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			it, err := client().GetIntent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(it)
			}
			fmt.Printf("id:          %s\nname:        %s\nstatus:      %s\ncreated:     %s\nupdated:     %s\n",
				it.ID, it.Name, it.LifecycleStatus, it.CreationDate, it.LastUpdate)
			if it.Description != "" {
				fmt.Printf("description: %s\n", it.Description)
			}
			fmt.Printf("expression:\n%s\n", indent(it.Expression.Value))
			return nil
		},
	}
}

func intentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an intent with its reports and workload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().DeleteIntent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Inspect intent reports"}
	cmd.AddCommand(reportListCmd())
	cmd.AddCommand(reportGetCmd())
	cmd.AddCommand(reportDeleteCmd())
	return cmd
}

func reportListCmd() *cobra.Command {
	var page intentsdk.Page
	cmd := &cobra.Command{
		Use:   "list <intent-id>",
		Short: "List the reports of an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, total, err := client().ListReports(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := newTable(table.Row{"#", "ID", "Type", "State", "Generated", "Summary"})
			for _, r := range items {
				tw.AppendRow(table.Row{r.ReportNumber, r.ID, r.ReportType, r.HandlingState, r.GeneratedAt, summarize(r)})
			}
			tw.AppendFooter(table.Row{"", "", "", "", "total", total})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "skip this many reports")
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "return at most this many reports")
	return cmd
}

func reportGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <intent-id> <report-id>",
		Short: "Show one report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := client().GetReport(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(r)
		},
	}
}

func reportDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <intent-id> <report-id>",
		Short: "Delete one report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().DeleteReport(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("deleted", args[1])
			return nil
		},
	}
}

func hubCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hub", Short: "Manage event listeners"}
	cmd.AddCommand(hubCreateCmd())
	cmd.AddCommand(hubListCmd())
	cmd.AddCommand(hubDeleteCmd())
	return cmd
}

func hubCreateCmd() *cobra.Command {
	var req intentsdk.SubscriptionRequest
	var headers []string
	cmd := &cobra.Command{
		Use:   "create <callback-url>",
		Short: "Register a listener",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Callback = args[0]
			for _, h := range headers {
				k, v, ok := strings.Cut(h, "=")
				if !ok {
					return fmt.Errorf("header %q: want key=value", h)
				}
				if req.Headers == nil {
					req.Headers = map[string]string{}
				}
				req.Headers[k] = v
			}
			sub, err := client().CreateSubscription(cmd.Context(), req)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(sub)
			}
			fmt.Println("created listener", sub.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&req.EventTypes, "event", nil, "event type to receive, repeatable (default all)")
	cmd.Flags().StringVar(&req.Query, "query", "", "only intents whose id contains this")
	cmd.Flags().StringArrayVar(&headers, "header", nil, "extra callback header key=value, repeatable")
	return cmd
}

func hubListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := client().ListSubscriptions(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(subs)
			}
			tw := newTable(table.Row{"ID", "Callback", "Events", "Query", "Created"})
			for _, s := range subs {
				events := make([]string, len(s.EventTypes))
				for i, et := range s.EventTypes {
					events[i] = string(et)
				}
				tw.AppendRow(table.Row{s.ID, s.Callback, strings.Join(events, ","), s.Query, s.CreatedAt})
			}
			tw.Render()
			return nil
		},
	}
}

func hubDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Unregister a listener",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().DeleteSubscription(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	}
}

func routeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "route", Short: "Query a router's endpoint cache"}
	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <routing-key>",
		Short: "Show the backend a routing key resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route, err := client().ResolveRoute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(route)
			}
			fmt.Printf("%s -> %s\n", route.RoutingKey, route.Endpoint)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "forget <routing-key>",
		Short: "Drop a cached routing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().ForgetRoute(cmd.Context(), args[0])
		},
	})
	return cmd
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := client().Health(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(h)
			}
			fmt.Printf("%s (%s %s)\n", h.Status, h.Role, h.Name)
			return nil
		},
	}
}

func summarize(r domain.IntentReport) string {
	if r.Summary != "" {
		return r.Summary
	}
	parts := make([]string, 0, len(r.Metrics))
	for _, m := range r.Metrics {
		parts = append(parts, fmt.Sprintf("%s=%g%s", m.Name, m.Value, m.Unit))
	}
	return strings.Join(parts, " ")
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
