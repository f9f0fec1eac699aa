package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hamed0406/pagewatch/internal/domain"
	"github.com/hamed0406/pagewatch/internal/filter"
	"github.com/hamed0406/pagewatch/internal/status"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "✖", err)
		os.Exit(1)
	}
}

// session mirrors the API's session view.
type session struct {
	ID              string              `json:"id"`
	URL             string              `json:"url"`
	Dir             string              `json:"dir"`
	State           domain.SessionState `json:"state"`
	IntervalSeconds float64             `json:"interval_seconds"`
	DurationMinutes float64             `json:"duration_minutes"`
	Iteration       int                 `json:"iteration"`
	StartedAt       time.Time           `json:"started_at"`
}

func rootCmd() *cobra.Command {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	var c *client

	root := &cobra.Command{
		Use:           "pagewatch",
		Short:         "Manage monitored pages through the pagewatch API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c = newClient(api)
		},
	}
	root.PersistentFlags().StringVar(&api, "api", api, "API base URL (env API_BASE)")

	cl := func() *client { return c }
	root.AddCommand(sitesCmd(cl), monitorCmd(cl), statusCmd(cl), previewCmd(cl), healthCmd(cl))
	return root
}

// withScheme lets users type "example.com".
func withScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw
}

func q(k, v string) url.Values { return url.Values{k: []string{v}} }

// ---- sites ----

func sitesCmd(c func() *client) *cobra.Command {
	cmd := &cobra.Command{Use: "sites", Short: "List, add or remove monitored sites"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sites []domain.MonitoredSite
			if err := c().do(cmd.Context(), "GET", "/api/sites", nil, nil, &sites); err != nil {
				return err
			}
			if len(sites) == 0 {
				fmt.Println("No sites registered.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tDANGER\tEXCLUDED\tOUTPUT")
			for _, s := range sites {
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", s.URL, dangerColor(s.DangerLevel), s.ExcludedElements, s.OutputDir)
			}
			return tw.Flush()
		},
	})

	var danger, outDir string
	var excluded []int
	add := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a site or update its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			site := domain.MonitoredSite{
				URL:              withScheme(args[0]),
				DangerLevel:      domain.DangerLevel(danger),
				ExcludedElements: excluded,
				OutputDir:        outDir,
			}
			var stored domain.MonitoredSite
			if err := c().do(cmd.Context(), "PUT", "/api/sites", nil, site, &stored); err != nil {
				return err
			}
			color.Green("✔ %s registered (%s), output in %s", stored.URL, stored.DangerLevel, stored.OutputDir)
			return nil
		},
	}
	add.Flags().StringVar(&danger, "danger", "Low", "danger level: Low, Medium, High, Critical")
	add.Flags().IntSliceVar(&excluded, "exclude", nil, "element indices to exclude (see: preview elements)")
	add.Flags().StringVar(&outDir, "output", "", "session output directory (server default if empty)")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <url>",
		Short: "Stop monitoring a site and remove it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := withScheme(args[0])
			if err := c().do(cmd.Context(), "DELETE", "/api/sites", q("url", u), nil, nil); err != nil {
				return err
			}
			color.Green("✔ %s removed", u)
			return nil
		},
	})
	return cmd
}

// ---- monitor ----

func monitorCmd(c func() *client) *cobra.Command {
	cmd := &cobra.Command{Use: "monitor", Short: "Start or stop monitoring sessions"}

	var interval, duration int
	start := &cobra.Command{
		Use:   "start <url>",
		Short: "Start a monitoring session (returns once the baseline is taken)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"url":              withScheme(args[0]),
				"interval_seconds": interval,
				"duration_minutes": duration,
			}
			var s session
			if err := c().do(cmd.Context(), "POST", "/api/monitor/start", nil, body, &s); err != nil {
				return err
			}
			color.Green("✔ monitoring %s every %gs for %gm", s.URL, s.IntervalSeconds, s.DurationMinutes)
			fmt.Println("  session:", s.Dir)
			return nil
		},
	}
	start.Flags().IntVar(&interval, "interval", 0, "seconds between checks (server default if 0)")
	start.Flags().IntVar(&duration, "duration", 0, "session length in minutes (server default if 0)")
	cmd.AddCommand(start)

	cmd.AddCommand(&cobra.Command{
		Use:   "stop <url>",
		Short: "Stop the live session for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				URL     string `json:"url"`
				Stopped bool   `json:"stopped"`
			}
			if err := c().do(cmd.Context(), "POST", "/api/monitor/stop", nil, map[string]string{"url": withScheme(args[0])}, &out); err != nil {
				return err
			}
			if out.Stopped {
				color.Green("✔ stopped %s", out.URL)
			} else {
				color.Yellow("⚠ no live session for %s", out.URL)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sessions",
		Short: "List live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []session
			if err := c().do(cmd.Context(), "GET", "/api/monitor/sessions", nil, nil, &list); err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No live sessions.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tSTATE\tITERATION\tSTARTED\tDIR")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.URL, s.State, s.Iteration, s.StartedAt.Local().Format(time.TimeOnly), s.Dir)
			}
			return tw.Flush()
		},
	})
	return cmd
}

// ---- status ----

func statusCmd(c func() *client) *cobra.Command {
	var showDiff bool
	cmd := &cobra.Command{
		Use:   "status [url]",
		Short: "Show the latest recorded status of one or all sites",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sums []status.Summary
			if len(args) == 1 {
				var s status.Summary
				if err := c().do(cmd.Context(), "GET", "/api/status", q("url", withScheme(args[0])), nil, &s); err != nil {
					return err
				}
				sums = append(sums, s)
			} else if err := c().do(cmd.Context(), "GET", "/api/status", nil, nil, &sums); err != nil {
				return err
			}
			if len(sums) == 0 {
				fmt.Println("No sites registered.")
				return nil
			}
			for _, s := range sums {
				printSummary(s, showDiff)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDiff, "diff", false, "print the latest diff")
	return cmd
}

func printSummary(s status.Summary, showDiff bool) {
	active := color.New(color.Faint).Sprint("idle")
	if s.IsActivelyMonitoring {
		active = color.New(color.FgCyan).Sprint("monitoring")
	}
	fmt.Printf("%s  [%s]  %s  port %s  %s\n", s.URL, dangerColor(s.DangerLevel), healthColor(s.Health), s.Port, active)
	if s.StatusLine != "" {
		fmt.Println("  " + s.StatusLine)
	}
	if s.LastChangeMessage != "" {
		color.New(color.FgYellow).Println("  last change: " + s.LastChangeMessage)
	}
	if s.DiffSummary != "" {
		fmt.Println("  " + strings.ReplaceAll(s.DiffSummary, "\n", "\n  "))
	}
	if showDiff && s.LatestDiff != "" {
		fmt.Printf("  --- diff_%d ---\n", s.LatestDiffIteration)
		for _, line := range strings.Split(strings.TrimRight(s.LatestDiff, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				color.New(color.FgGreen).Println("  " + line)
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				color.New(color.FgRed).Println("  " + line)
			default:
				fmt.Println("  " + line)
			}
		}
	}
}

func healthColor(h domain.HealthStatus) string {
	switch h {
	case domain.HealthUp:
		return color.GreenString(string(h))
	case domain.HealthSlow, domain.HealthWarning:
		return color.YellowString(string(h))
	case domain.HealthDown:
		return color.RedString(string(h))
	default:
		return color.New(color.Faint).Sprint(string(h))
	}
}

func dangerColor(d domain.DangerLevel) string {
	switch d {
	case domain.DangerCritical:
		return color.New(color.FgRed, color.Bold).Sprint(string(d))
	case domain.DangerHigh:
		return color.RedString(string(d))
	case domain.DangerMedium:
		return color.YellowString(string(d))
	default:
		return string(d)
	}
}

// ---- preview ----

func previewCmd(c func() *client) *cobra.Command {
	cmd := &cobra.Command{Use: "preview", Short: "Inspect a page before choosing exclusions"}

	cmd.AddCommand(&cobra.Command{
		Use:   "elements <url>",
		Short: "List the page's elements with their exclusion indices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var els []filter.Element
			if err := c().do(cmd.Context(), "GET", "/api/preview/elements", q("url", withScheme(args[0])), nil, &els); err != nil {
				return err
			}
			for _, e := range els {
				fmt.Printf("%4d  <%s%s>\n", e.Index, e.Tag, attrs(e.Attributes))
			}
			return nil
		},
	})

	var excluded []int
	filtered := &cobra.Command{
		Use:   "filtered <url>",
		Short: "Print the page as it would be stored with the given exclusions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				HTML string `json:"html"`
			}
			body := map[string]any{"url": withScheme(args[0]), "excluded": excluded}
			if err := c().do(cmd.Context(), "POST", "/api/preview/filtered", nil, body, &out); err != nil {
				return err
			}
			fmt.Println(out.HTML)
			return nil
		},
	}
	filtered.Flags().IntSliceVar(&excluded, "exclude", nil, "element indices to exclude")
	cmd.AddCommand(filtered)
	return cmd
}

func attrs(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range []string{"id", "class", "name"} {
		if v, ok := m[k]; ok {
			b.WriteString(" " + k + "=" + strconv.Quote(v))
		}
	}
	return b.String()
}

// ---- health ----

func healthCmd(c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health <url>",
		Short: "Run a one-off health check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var h domain.HealthResult
			if err := c().do(cmd.Context(), "GET", "/api/health", q("url", withScheme(args[0])), nil, &h); err != nil {
				return err
			}
			fmt.Printf("%s  port %s\n", healthColor(h.Status), h.Port)
			return nil
		},
	}
}
