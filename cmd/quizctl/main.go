// quizctl is a CLI for exercising the checkout funnel against live stores.
// Each command performs a single operation, making it composable for scripts.
// It reads the same configuration as the server (CONFIG_FILE, env, .env).
//
// Commands:
//
//	quizctl resolve -handle H -store ID [-live]
//	quizctl select -handle H [-strategy S] [-utm TAG] [-store ID]
//	quizctl checkout -item H[:qty] [-item ...] [-utm TAG] [-strategy S] [-store ID]
//	quizctl audit [-write PATH] [-concurrency N]
//	quizctl parse URL
//
// Examples:
//
//	URL=$(quizctl checkout -item oud-wood:2 -utm tiktok-uk -q)
//	quizctl parse "$URL"
//	quizctl audit -write data/variant-mapping.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"quiz-checkout/internal/app"
	"quiz-checkout/internal/checkout"
	"quiz-checkout/internal/config"
	"quiz-checkout/internal/funnel"
	"quiz-checkout/internal/model"
	"quiz-checkout/internal/reconcile"
	"quiz-checkout/internal/selection"
)

// Global flags (apply to all commands)
var (
	quiet   bool
	noColor bool
	verbose bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow, colorCyan, colorGray = "", "", "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "resolve":
		runResolve(args)
	case "select":
		runSelect(args)
	case "checkout":
		runCheckout(args)
	case "audit":
		runAudit(args)
	case "parse":
		runParse(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `quizctl - quiz checkout funnel tool

Usage:
  quizctl <command> [options]

Commands:
  resolve   Resolve a product handle to a store's variant ID
  select    Show which store a strategy picks for a product
  checkout  Build a checkout URL for one or more products
  audit     Compare the static variant mapping against live stores
  parse     Decode the lines of a direct /cart/ URL

Examples:
  # Build a checkout link and capture it
  URL=$(quizctl checkout -item oud-wood:2 -utm tiktok-uk -q)

  # Which store is cheapest right now?
  quizctl select -handle oud-wood -strategy best_price

  # Regenerate the mapping file from live data
  quizctl audit -write data/variant-mapping.json

Run 'quizctl <command> -h' for command-specific options.
`)
}

// commonFlags registers flags shared by every command.
func commonFlags(fs *flag.FlagSet) {
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the result value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show debug logs")
}

// loadApp reads configuration and wires the components.
func loadApp(ctx context.Context) *app.App {
	if noColor {
		disableColors()
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	var out io.Writer = os.Stderr
	if quiet && !verbose {
		out = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(ctx)
	if err != nil {
		fatal("Loading config: %v", err)
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		fatal("Initializing: %v", err)
	}
	return a
}

// =============================================================================
// COMMANDS
// =============================================================================

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	var handle, storeID string
	var live bool
	fs.StringVar(&handle, "handle", "", "Canonical product handle (required)")
	fs.StringVar(&storeID, "store", "", "Store ID (required)")
	fs.BoolVar(&live, "live", false, "Skip the static mapping and cache")
	commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quizctl resolve -handle H -store ID [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if handle == "" || storeID == "" {
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a := loadApp(ctx)

	resolve := a.Resolver.Resolve
	if live {
		resolve = a.Resolver.ResolveLive
	}
	res, err := resolve(ctx, handle, storeID)
	if err != nil {
		fatalErr("Resolve failed", err)
	}

	if quiet {
		fmt.Println(res.VariantID)
		return
	}
	printSuccess("Resolved %s on store %s", handle, storeID)
	fmt.Printf("  Variant: %s%s%s\n", colorCyan, res.VariantID, colorReset)
	fmt.Printf("  Source:  %s\n", res.Source)
}

func runSelect(args []string) {
	fs := flag.NewFlagSet("select", flag.ExitOnError)
	var handle, strategy, utm, storeID string
	fs.StringVar(&handle, "handle", "", "Canonical product handle")
	fs.StringVar(&strategy, "strategy", "", "Strategy (default from config)")
	fs.StringVar(&utm, "utm", "", "UTM campaign tag")
	fs.StringVar(&storeID, "store", "", "Preferred store for fixed_preference")
	commonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a := loadApp(ctx)

	var s selection.Strategy
	if strategy != "" {
		var err error
		if s, err = selection.ParseStrategy(strategy); err != nil {
			fatalErr("Invalid strategy", err)
		}
	}

	d, err := a.Funnel.Select(ctx, handle, s, selection.Params{UTMCampaign: utm, StoreID: storeID})
	if err != nil {
		fatalErr("Select failed", err)
	}

	if quiet {
		fmt.Println(d.StoreID)
		return
	}
	printSuccess("Store %s%s%s (%s)", colorCyan, d.StoreID, colorReset, d.Strategy)
	fmt.Printf("  Reason: %s\n", d.Reason)
	if d.Fallback {
		printWarning("Fallback store used")
	}
}

// itemFlags collects repeated -item H[:qty] flags.
type itemFlags []funnel.Item

func (f *itemFlags) String() string {
	parts := make([]string, len(*f))
	for i, it := range *f {
		parts[i] = fmt.Sprintf("%s:%d", it.Handle, it.Quantity)
	}
	return strings.Join(parts, ",")
}

func (f *itemFlags) Set(v string) error {
	item, err := parseItem(v)
	if err != nil {
		return err
	}
	*f = append(*f, item)
	return nil
}

// parseItem parses "handle" or "handle:qty".
func parseItem(v string) (funnel.Item, error) {
	handle, qtyStr, hasQty := strings.Cut(v, ":")
	item := funnel.Item{Handle: handle, Quantity: 1}
	if hasQty {
		qty, err := strconv.Atoi(qtyStr)
		if err != nil {
			return funnel.Item{}, fmt.Errorf("invalid quantity in %q", v)
		}
		item.Quantity = qty
	}
	return item, nil
}

func runCheckout(args []string) {
	fs := flag.NewFlagSet("checkout", flag.ExitOnError)
	var items itemFlags
	var req funnel.CheckoutRequest
	fs.Var(&items, "item", "Product as handle[:qty] (repeatable, required)")
	fs.StringVar(&req.UTMCampaign, "utm", "", "UTM campaign tag")
	fs.StringVar(&req.Strategy, "strategy", "", "Store selection strategy")
	fs.StringVar(&req.StoreID, "store", "", "Preferred store")
	commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quizctl checkout -item H[:qty] [-item ...] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if len(items) == 0 {
		fs.Usage()
		os.Exit(1)
	}
	req.Items = items

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a := loadApp(ctx)

	result, err := a.Funnel.Checkout(ctx, req)
	if err != nil {
		fatalErr("Checkout failed", err)
	}

	if quiet {
		fmt.Println(result.CheckoutURL)
		return
	}
	printSuccess("Checkout on store %s (%s)", result.StoreID, result.Method)
	fmt.Printf("  URL: %s%s%s\n", colorCyan, result.CheckoutURL, colorReset)
	if result.Degraded {
		printWarning("cartCreate unavailable, direct cart link returned")
	}
}

func runAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	var writePath string
	var concurrency int
	fs.StringVar(&writePath, "write", "", "Write the regenerated mapping to this file")
	fs.IntVar(&concurrency, "concurrency", 4, "Parallel storefront lookups")
	commonFlags(fs)
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	a := loadApp(ctx)

	products, err := a.Catalog.All()
	if err != nil {
		fatalErr("Reading catalog", err)
	}
	handles := make([]string, len(products))
	for i, p := range products {
		handles[i] = p.Handle
	}

	static := a.Mapping.Snapshot()
	lookup := reconcile.StorefrontLookup(static, a.Storefronts)
	live, err := reconcile.Observe(ctx, a.Registry.IDs(), handles, concurrency, lookup)
	if err != nil {
		printWarning("Some lookups failed and are reported as unchecked: %v", err)
	}
	report := reconcile.Diff(static, live)

	if !quiet {
		for _, e := range report.Entries {
			if e.Status == reconcile.StatusConfirmed && !verbose {
				continue
			}
			fmt.Printf("  %-8s %-32s %s%-13s%s static=%s live=%s\n",
				e.StoreID, e.Handle, statusColor(e.Status), e.Status, colorReset,
				orDash(e.StaticVariantID), orDash(e.LiveVariantID))
		}
		counts := report.Counts()
		fmt.Printf("\n  confirmed=%d stale=%d missing_live=%d unmapped=%d unchecked=%d\n",
			counts[reconcile.StatusConfirmed], counts[reconcile.StatusStale],
			counts[reconcile.StatusMissingLive], counts[reconcile.StatusUnmapped],
			counts[reconcile.StatusUnchecked])
	}

	if writePath != "" {
		if err := writeMapping(writePath, report.Regenerated()); err != nil {
			fatalErr("Writing mapping", err)
		}
		printSuccess("Mapping written to %s", writePath)
	}

	if report.HasDrift() {
		os.Exit(2)
	}
}

func runParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quizctl parse URL\n")
	}
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	if noColor {
		disableColors()
	}

	lines, err := checkout.ParseCartPath(fs.Arg(0))
	if err != nil {
		fatal("%v", err)
	}
	for _, l := range lines {
		if quiet {
			fmt.Printf("%s:%d\n", l.VariantID, l.Quantity)
			continue
		}
		fmt.Printf("  variant %s%s%s  qty %d\n", colorCyan, l.VariantID, colorReset, l.Quantity)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// writeMapping writes a mapping file LoadMapping can read back.
func writeMapping(path string, stores map[string]map[string]string) error {
	doc := struct {
		SchemaVersion string                       `json:"schema_version"`
		GeneratedAt   time.Time                    `json:"generated_at"`
		Stores        map[string]map[string]string `json:"stores"`
	}{
		SchemaVersion: "1.0.0",
		GeneratedAt:   time.Now().UTC(),
		Stores:        stores,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func statusColor(s reconcile.Status) string {
	switch s {
	case reconcile.StatusConfirmed:
		return colorGreen
	case reconcile.StatusUnchecked:
		return colorGray
	case reconcile.StatusUnmapped:
		return colorYellow
	default:
		return colorRed
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printSuccess(format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

// fatalErr prints err, including structured details when present, and exits.
func fatalErr(msg string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		details := ""
		if len(apiErr.Details) > 0 {
			details = "\n  " + strings.Join(apiErr.Details, "\n  ")
		}
		retry := ""
		if apiErr.Retryable() {
			retry = " (retryable)"
		}
		fatal("%s: %s %s%s%s", msg, apiErr.Code, apiErr.Message, retry, details)
	}
	fatal("%s: %v", msg, err)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
