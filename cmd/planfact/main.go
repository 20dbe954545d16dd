package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daverage/planfact/internal/app"
	"github.com/daverage/planfact/internal/storage"
	"github.com/daverage/planfact/internal/timeline"
	"github.com/daverage/planfact/internal/verify"
	"github.com/daverage/planfact/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "planfact",
	Short: "planfact - Planned vs actual timeline reconciliation",
	Long:  `planfact reconciles your planned calendar against location, screen-time, and health evidence into one verified daily timeline.`,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(dayCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(completionCmd)

	patternsCmd.AddCommand(patternsRebuildCmd)
	patternsCmd.AddCommand(patternsAnomaliesCmd)
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate the autocompletion script for the specified shell",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.ExactValidArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
}

var versionCheck bool

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check GitHub for a newer release")
}

func runVersionCmd(a *app.App, cmd *cobra.Command, args []string) {
	fmt.Printf("planfact v%s\n", version.Version)
	if !versionCheck {
		return
	}
	newer, err := version.CheckForUpdates()
	if err != nil {
		fmt.Printf("Update check failed: %v\n", err)
		return
	}
	if newer != "" {
		fmt.Printf("A newer release is available: v%s\n", newer)
	} else {
		fmt.Println("You are up to date.")
	}
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [YYYY-MM-DD]",
	Short: "Run the full pipeline for one day and persist the actual timeline",
	Args:  cobra.MaximumNArgs(1),
}

func runReconcileCmd(a *app.App, cmd *cobra.Command, args []string) {
	ymd := dayArg(args)
	ctx := a.ContextWithLogger(a.Ctx)

	report, err := a.Pipeline.RunDay(ctx, ymd)
	if err != nil {
		a.Core.Logger.Error("reconcile failed", zap.String("ymd", ymd), zap.Error(err))
		fmt.Printf("❌ Reconcile failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Reconciled %s\n", ymd)
	fmt.Printf("  Timeline events: %d\n", len(report.Timeline))
	fmt.Printf("  Adherence score: %d\n", report.Summary.AdherenceScore)
	fmt.Printf("  Verified: %d  Partial: %d  Unverified: %d  Contradicted: %d  Distracted: %d\n",
		report.Summary.Verified, report.Summary.Partial, report.Summary.Unverified,
		report.Summary.Contradicted, report.Summary.Distracted)
	if report.Summary.DistractionMinutes > 0 {
		fmt.Printf("  Distraction minutes: %d\n", report.Summary.DistractionMinutes)
	}
	if report.Assigned > 0 {
		fmt.Printf("  Model-assigned categories: %d\n", report.Assigned)
	}
	if !report.Validation.Valid {
		fmt.Printf("! Timeline validation found %d overlaps\n", len(report.Validation.Overlaps))
	}
}

var verifyCmd = &cobra.Command{
	Use:   "verify [YYYY-MM-DD]",
	Short: "Verify planned events against evidence without persisting anything",
	Args:  cobra.MaximumNArgs(1),
}

func runVerifyCmd(a *app.App, cmd *cobra.Command, args []string) {
	ymd := dayArg(args)
	ctx := a.ContextWithLogger(a.Ctx)

	planned, err := a.Core.DB.EventsForDay(ctx, ymd, storage.RolePlanned)
	if err != nil {
		fmt.Printf("❌ Cannot load planned events: %v\n", err)
		os.Exit(1)
	}
	if len(planned) == 0 {
		fmt.Printf("No planned events for %s\n", ymd)
		return
	}

	overrides, err := a.Core.DB.AppOverrides(ctx)
	if err != nil {
		a.Core.Logger.Warn("app overrides unavailable", zap.Error(err))
	}
	bundle := a.Evidence.FetchBundle(ctx, ymd)

	engine := verify.NewEngine(verify.Thresholds{
		DistractionMinutes:    a.Core.Config.DistractionMinutes,
		VerifiedCoverage:      a.Core.Config.VerifiedCoverage,
		PartialCoverage:       a.Core.Config.PartialCoverage,
		ContradictionCoverage: a.Core.Config.ContradictionCoverage,
		MinGapMinutes:         a.Core.Config.MinGapMinutes,
	}, overrides)
	results := engine.VerifyPlannedEvents(planned, bundle)
	summary := verify.Summarize(results)
	sort.SliceStable(planned, func(i, j int) bool {
		return planned[i].StartMinutes < planned[j].StartMinutes
	})

	fmt.Printf("Verification for %s:\n\n", ymd)
	for _, p := range planned {
		r := results[p.ID]
		fmt.Printf("  %s-%s  %-28s %-13s conf=%.2f",
			clock(p.StartMinutes), clock(p.EndMinutes()), p.Title, r.Status, r.Confidence)
		if r.DistractionMinutes > 0 {
			fmt.Printf("  distraction=%dm", r.DistractionMinutes)
		}
		fmt.Println()
	}
	fmt.Printf("\nAdherence score: %d\n", summary.AdherenceScore)
}

var dayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "Show the reconciled actual timeline for one day",
	Args:  cobra.MaximumNArgs(1),
}

func runDayCmd(a *app.App, cmd *cobra.Command, args []string) {
	ymd := dayArg(args)
	ctx := a.ContextWithLogger(a.Ctx)

	events, err := a.Core.DB.EventsForDay(ctx, ymd, storage.RoleActual)
	if err != nil {
		fmt.Printf("❌ Cannot load timeline: %v\n", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Printf("No actual timeline for %s; run 'planfact reconcile %s' first\n", ymd, ymd)
		return
	}

	fmt.Printf("Timeline for %s:\n\n", ymd)
	for _, e := range events {
		marker := " "
		if timeline.PriorityOf(e) == timeline.PriorityUserEdited {
			marker = "*"
		}
		fmt.Printf("  %s %s-%s  %-10s %s\n",
			marker, clock(e.StartMinutes), clock(e.EndMinutes()), e.Category, e.Title)
	}
	fmt.Println("\n  * user-edited")
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Manage the learned weekly schedule",
}

var patternsRebuildCmd = &cobra.Command{
	Use:   "rebuild [YYYY-MM-DD]",
	Short: "Relearn the weekly pattern from trailing actual history",
	Args:  cobra.MaximumNArgs(1),
}

func runPatternsRebuildCmd(a *app.App, cmd *cobra.Command, args []string) {
	ymd := dayArg(args)
	ctx := a.ContextWithLogger(a.Ctx)

	idx, err := a.Pipeline.RebuildPatterns(ctx, ymd, a.Core.Config.PatternWindowWeeks)
	if err != nil {
		fmt.Printf("❌ Pattern rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Learned %d slots from the last %d weeks\n",
		len(idx.Slots), a.Core.Config.PatternWindowWeeks)
}

var patternsAnomaliesCmd = &cobra.Command{
	Use:   "anomalies [YYYY-MM-DD]",
	Short: "Report where the day deviated from the learned schedule",
	Args:  cobra.MaximumNArgs(1),
}

func runPatternsAnomaliesCmd(a *app.App, cmd *cobra.Command, args []string) {
	ymd := dayArg(args)
	ctx := a.ContextWithLogger(a.Ctx)

	idx, _, err := a.Core.DB.LoadPatternIndex(ctx)
	if err != nil {
		fmt.Printf("❌ Cannot load pattern index: %v\n", err)
		os.Exit(1)
	}
	if len(idx.Slots) == 0 {
		fmt.Println("No learned patterns yet; run 'planfact patterns rebuild' first")
		return
	}
	actual, err := a.Core.DB.EventsForDay(ctx, ymd, storage.RoleActual)
	if err != nil {
		fmt.Printf("❌ Cannot load timeline: %v\n", err)
		os.Exit(1)
	}

	report := idx.DailyAnomalies(ymd, actual, a.Core.Config.AnomalySlotConfidence)
	if len(report.Anomalies) == 0 {
		fmt.Printf("No anomalies on %s (%d slots checked)\n", ymd, report.SlotsConsidered)
		return
	}

	fmt.Printf("Anomalies for %s (score %.2f):\n\n", ymd, report.AnomalyScore)
	for _, an := range report.Anomalies {
		fmt.Printf("  %s  expected %s, observed %s\n",
			clock(an.Key.SlotStart), an.Expected, an.Observed)
	}
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.json]",
	Short: "Load an exported evidence bundle into local storage",
	Long: `Load a JSON evidence export into local storage. The file carries one day of
location aggregates, raw fixes, screen sessions, health data, labeled places,
and optionally planned events.`,
	Args: cobra.ExactArgs(1),
}

func runIngestCmd(a *app.App, cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("❌ Cannot read %s: %v\n", args[0], err)
		os.Exit(1)
	}

	var export bundleExport
	if err := json.Unmarshal(data, &export); err != nil {
		fmt.Printf("❌ Cannot parse %s: %v\n", args[0], err)
		os.Exit(1)
	}
	if _, err := time.Parse("2006-01-02", export.YMD); err != nil {
		fmt.Printf("❌ Export is missing a valid \"ymd\" field\n")
		os.Exit(1)
	}

	ctx := a.ContextWithLogger(a.Ctx)
	if err := ingestExport(ctx, a.Core.DB, export); err != nil {
		a.Core.Logger.Error("ingest failed", zap.String("ymd", export.YMD), zap.Error(err))
		fmt.Printf("❌ Ingest failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Ingested %s: %d hourly, %d samples, %d screen sessions, %d workouts, %d places, %d planned\n",
		export.YMD, len(export.LocationHourly), len(export.LocationSamples),
		len(export.ScreenSessions), len(export.HealthWorkouts),
		len(export.UserPlaces), len(export.Planned))
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of planfact storage",
}

func runHealthCmd(a *app.App, cmd *cobra.Command, args []string) {
	if err := a.Core.DB.Ping(); err != nil {
		a.Core.Logger.Error("database connectivity check failed", zap.Error(err))
		fmt.Printf("❌ Database connectivity: %v\n", err)
	} else {
		fmt.Println("✅ Database connectivity: OK")
	}

	if _, err := a.Core.DB.Conn().Exec("SELECT 1"); err != nil {
		a.Core.Logger.Error("database query check failed", zap.Error(err))
		fmt.Printf("❌ Database query: %v\n", err)
	} else {
		fmt.Println("✅ Database query: OK")
	}

	ctx := a.ContextWithLogger(a.Ctx)
	if idx, snap, err := a.Core.DB.LoadPatternIndex(ctx); err != nil {
		fmt.Printf("❌ Pattern index: %v\n", err)
	} else if len(idx.Slots) == 0 {
		fmt.Println("! Pattern index: empty (run 'planfact patterns rebuild')")
	} else {
		fmt.Printf("✅ Pattern index: %d slots (window %s to %s)\n",
			len(idx.Slots), snap.WindowStartYMD, snap.WindowEndYMD)
	}

	fmt.Println("Health check complete.")
}

// dayArg resolves the optional day argument, defaulting to today.
func dayArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return time.Now().Format("2006-01-02")
}

func clock(minutes int) string {
	if minutes >= timeline.MinutesPerDay {
		return "24:00"
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// newAppRunner creates a Cobra Run function closure with the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		runFunc(a, cmd, args)
	}
}

func main() {
	appInstance, err := app.NewApp(os.Getenv("PLANFACT_DATA_DIR"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	versionCmd.Run = newAppRunner(appInstance, runVersionCmd)
	reconcileCmd.Run = newAppRunner(appInstance, runReconcileCmd)
	verifyCmd.Run = newAppRunner(appInstance, runVerifyCmd)
	dayCmd.Run = newAppRunner(appInstance, runDayCmd)
	patternsRebuildCmd.Run = newAppRunner(appInstance, runPatternsRebuildCmd)
	patternsAnomaliesCmd.Run = newAppRunner(appInstance, runPatternsAnomaliesCmd)
	ingestCmd.Run = newAppRunner(appInstance, runIngestCmd)
	healthCmd.Run = newAppRunner(appInstance, runHealthCmd)

	if err := rootCmd.Execute(); err != nil {
		appInstance.Core.Logger.Error("Root command execution failed", zap.Error(err))
		os.Exit(1)
	}
}
