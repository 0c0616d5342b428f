package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapvertica/internal/cli/output"
	vadapter "github.com/leapstack-labs/leapvertica/pkg/adapters/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/driver"
	"github.com/leapstack-labs/leapvertica/pkg/sharding"
	"github.com/spf13/cobra"
)

// Health check identifiers.
const (
	checkConnect     = "C01"
	checkRoundTrip   = "C02"
	checkCompression = "S01"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	Format      string        // Output format: text, markdown, json
	Slow        time.Duration // Round trips slower than this are warnings
	Concurrency int
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the health of every shard",
		Long: `Connect to every configured shard in parallel and report:
- Connectivity and query round trip time
- Storage compression ratio from the license audit
- Health score (0-100)
- Actionable recommendations

Each shard gets its own connection, so one unreachable shard does not
stop the others from being checked.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapvertica doctor

  # Output as JSON
  leapvertica doctor --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: text, markdown, json")
	cmd.Flags().DurationVar(&opts.Slow, "slow", 500*time.Millisecond, "Round trip time reported as a warning")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 8, "Shards checked at the same time")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         ClusterSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// ClusterSummary contains cluster-level facts.
type ClusterSummary struct {
	Shards     int    `json:"shards"`
	Reachable  int    `json:"reachable"`
	Transport  string `json:"transport"`
	Allocation string `json:"allocation"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	CheckID   string   `json:"check_id"`
	Name      string   `json:"name"`
	Group     string   `json:"group"`
	ShardID   int      `json:"shard_id"`
	Status    string   `json:"status"` // "pass", "warn", "error"
	LatencyMS float64  `json:"latency_ms,omitempty"`
	Details   []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cmdCtx := NewCommandContextWithoutAdapter(cmd)
	r := cmdCtx.Renderer

	// Override renderer if format flag is set
	if opts.Format != "" {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(opts.Format))
	}

	checks, err := checkShards(cmd.Context(), cmdCtx, opts)
	if err != nil {
		return err
	}
	doctorOutput := buildDoctorOutput(cmdCtx.Cfg.Connection, checks)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(doctorOutput)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, doctorOutput)
	default:
		return renderDoctorText(r, doctorOutput)
	}
}

// shardConfigs splits cfg into one single-shard config per shard, keeping
// the global template.
func shardConfigs(cfg core.ConnectionConfig) ([]core.ShardParams, []core.ConnectionConfig, error) {
	cfg = vadapter.SingleShard(cfg)
	params, err := sharding.ParseShards(cfg)
	if err != nil {
		return nil, nil, err
	}
	configs := make([]core.ConnectionConfig, len(cfg.Shards))
	for i, record := range cfg.Shards {
		c := cfg
		c.Shards = []map[string]any{record}
		configs[i] = c
	}
	return params, configs, nil
}

func checkShards(ctx context.Context, cmdCtx *CommandContext, opts *DoctorOptions) ([]HealthCheck, error) {
	params, configs, err := shardConfigs(cmdCtx.Cfg.Connection)
	if err != nil {
		return nil, err
	}

	results := make([][]HealthCheck, len(configs))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i := range configs {
		g.Go(func() error {
			results[i] = checkShard(gctx, cmdCtx, params[i].ID, configs[i], opts.Slow)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var checks []HealthCheck
	for _, r := range results {
		checks = append(checks, r...)
	}
	return checks, nil
}

func checkShard(ctx context.Context, cmdCtx *CommandContext, id int, cfg core.ConnectionConfig, slow time.Duration) []HealthCheck {
	logger := cmdCtx.Logger.With("shard", id)

	start := time.Now()
	a, err := connectAdapter(ctx, cfg, logger)
	connect := HealthCheck{CheckID: checkConnect, Name: "Connect", Group: "connectivity", ShardID: id, Status: "pass", LatencyMS: millis(time.Since(start))}
	if err != nil {
		connect.Status = "error"
		connect.Details = []string{err.Error()}
		connect.LatencyMS = 0
		return []HealthCheck{connect}
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close health check connection", "error", err)
		}
	}()

	start = time.Now()
	_, err = a.Query(ctx, "SELECT 1")
	elapsed := time.Since(start)
	roundTrip := HealthCheck{CheckID: checkRoundTrip, Name: "Query round trip", Group: "connectivity", ShardID: id, Status: "pass", LatencyMS: millis(elapsed)}
	switch {
	case err != nil:
		roundTrip.Status = "error"
		roundTrip.Details = []string{err.Error()}
	case elapsed > slow:
		roundTrip.Status = "warn"
		roundTrip.Details = []string{fmt.Sprintf("took %s (threshold %s)", elapsed.Round(time.Millisecond), slow)}
	}

	compression := HealthCheck{CheckID: checkCompression, Name: "Compression ratio", Group: "storage", ShardID: id, Status: "pass"}
	rows, err := a.Query(ctx, vertica.CompressionRatioSQL)
	switch {
	case err != nil:
		compression.Status = "warn"
		compression.Details = []string{"license audit unavailable: " + err.Error()}
	case len(rows) == 0:
		compression.Details = []string{"no license audit yet"}
	default:
		v, _ := rows[0].Get("compression_ratio")
		compression.Details = []string{fmt.Sprintf("ratio %s", formatRatio(v))}
	}

	return []HealthCheck{connect, roundTrip, compression}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func formatRatio(v any) string {
	switch x := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", x)
	case nil:
		return "unknown"
	}
	if n, err := driver.ToInt64(v); err == nil {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprint(v)
}

func buildDoctorOutput(cfg core.ConnectionConfig, checks []HealthCheck) *DoctorOutput {
	summary := ClusterSummary{
		Transport:  cfg.Transport,
		Allocation: cfg.Allocation,
	}
	if summary.Transport == "" {
		summary.Transport = core.TransportODBC
	}
	if summary.Allocation == "" {
		summary.Allocation = vadapter.AllocationRandom
	}

	issues := 0
	for _, c := range checks {
		if c.CheckID == checkConnect {
			summary.Shards++
			if c.Status == "pass" {
				summary.Reachable++
			}
		}
		if c.Status != "pass" {
			issues++
		}
	}

	// Sort health checks by group, then shard, then check ID
	sort.SliceStable(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return checks[i].Group < checks[j].Group
		}
		if checks[i].ShardID != checks[j].ShardID {
			return checks[i].ShardID < checks[j].ShardID
		}
		return checks[i].CheckID < checks[j].CheckID
	})

	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issues,
	}
}

// calculateHealthScore computes a health score from 0-100. An unreachable
// shard costs the most; each warning costs a little.
func calculateHealthScore(checks []HealthCheck) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100
	for _, check := range checks {
		switch {
		case check.Status == "error" && check.CheckID == checkConnect:
			score -= 40
		case check.Status == "error":
			score -= 20
		case check.Status == "warn":
			score -= 5
		}
	}
	return max(score, 0)
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.Status == "pass" {
			continue
		}
		rec := getRecommendation(check.CheckID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}
	return recommendations
}

func getRecommendation(checkID string) string {
	switch checkID {
	case checkConnect:
		return "Verify host, port and credentials of unreachable shards with 'leapvertica shards'"
	case checkRoundTrip:
		return "Check node load and network latency on slow shards"
	case checkCompression:
		return "Grant access to license_audits or run AUDIT_LICENSE_SIZE() to enable storage checks"
	default:
		return ""
	}
}

func statusIcon(styles *output.Styles, status string) string {
	switch status {
	case "warn":
		return styles.Warning.Render("!")
	case "error":
		return styles.StatusFailed.String()
	default:
		return styles.StatusSuccess.String()
	}
}

func checkLine(check HealthCheck) string {
	line := fmt.Sprintf("%s shard %d: %s", check.CheckID, check.ShardID, check.Name)
	if check.LatencyMS > 0 {
		line += fmt.Sprintf(" (%.1fms)", check.LatencyMS)
	}
	return line
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header1.Render("leapvertica Cluster Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Header2.Render("Cluster Summary"))
	r.Printf("   Shards: %d | Reachable: %d\n", out.Summary.Shards, out.Summary.Reachable)
	r.Printf("   Transport: %s | Allocation: %s\n", out.Summary.Transport, out.Summary.Allocation)
	r.Println("")

	r.Println(styles.Header2.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}
		r.Println("   " + statusIcon(styles, check.Status) + " " + checkLine(check))
		for _, detail := range check.Details {
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Header2.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# leapvertica Cluster Health Report")
	r.Println("")

	r.Println("## Cluster Summary")
	r.Println("")
	r.Println(output.FormatKeyValue("Shards", fmt.Sprint(out.Summary.Shards)))
	r.Println(output.FormatKeyValue("Reachable", fmt.Sprint(out.Summary.Reachable)))
	r.Println(output.FormatKeyValue("Transport", out.Summary.Transport))
	r.Println(output.FormatKeyValue("Allocation", out.Summary.Allocation))
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}
		r.Printf("- **[%s]** %s\n", strings.ToUpper(check.Status), checkLine(check))
		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Printf("**Health Score**: %d/100\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
	}
	return nil
}
