// Package main implements sitesctl, a CLI for querying the charge-site
// backend directly, bypassing the gateway's sessions.
//
// It builds the same region and query the gateway would send for a fresh map
// session, runs one fetch and prints the result. With --site it also prints
// the navigation links for that site.
//
// Usage:
//
//	go run ./cmd/sitesctl --lat=45.52 --lon=-122.68
//	go run ./cmd/sitesctl --aspect=1.6 --pri=false --json
//	go run ./cmd/sitesctl --site=42
//	go run ./cmd/sitesctl --dry-run --zoom=10
//
// The backend URL comes from --api-url or CHARGESITES_API_URL (a .env file is
// loaded via godotenv).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"chargemap/internal/external"
	"chargemap/internal/geo"
	"chargemap/internal/navigation"
	"chargemap/internal/types"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	apiURL  string
	lat     float64
	lon     float64
	zoom    int
	aspect  float64
	filters types.Filters
	siteID  int64
	timeout time.Duration
	dryRun  bool
	asJSON  bool
}

// filterFlag parses any|true|false into a types.Filter.
type filterFlag struct{ f *types.Filter }

func (v filterFlag) String() string {
	if v.f == nil {
		return types.FilterAny.String()
	}
	return v.f.String()
}

func (v filterFlag) Set(s string) error {
	switch s {
	case "any", "":
		*v.f = types.FilterAny
	case "true":
		*v.f = types.FilterTrue
	case "false":
		*v.f = types.FilterFalse
	default:
		return fmt.Errorf("must be any, true or false")
	}
	return nil
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("sitesctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.apiURL, "api-url", os.Getenv("CHARGESITES_API_URL"), "Charge-site backend base URL")
	fs.Float64Var(&opts.lat, "lat", geo.DefaultCenter.Lat, "Center latitude")
	fs.Float64Var(&opts.lon, "lon", geo.DefaultCenter.Lng, "Center longitude")
	fs.IntVar(&opts.zoom, "zoom", geo.DefaultZoom, "Zoom level used to size the region")
	fs.Float64Var(&opts.aspect, "aspect", 1, "Window aspect ratio (width/height)")
	fs.Var(filterFlag{&opts.filters.ObfuscatedFilter}, "obf", "Obfuscated filter: any, true or false")
	fs.Var(filterFlag{&opts.filters.ReservedFilter}, "res", "Reserved filter: any, true or false")
	fs.Var(filterFlag{&opts.filters.PrivateFilter}, "pri", "Private filter: any, true or false")
	fs.Int64Var(&opts.siteID, "site", 0, "Print navigation links for this site id")
	fs.DurationVar(&opts.timeout, "timeout", external.DefaultFetchTimeout, "Fetch timeout")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Print the request URL without fetching")
	fs.BoolVar(&opts.asJSON, "json", false, "Print the raw site list as JSON")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sitesctl [flags]\n\n")
		fmt.Fprintf(stderr, "Fetch charge sites for an initial map region.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.apiURL == "" {
		return opts, errors.New("--api-url or CHARGESITES_API_URL is required")
	}
	if opts.aspect <= 0 {
		return opts, errors.New("--aspect must be positive")
	}
	if opts.zoom < 1 {
		return opts, errors.New("--zoom must be at least 1")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	region := geo.InitialRegion(types.LatLng{Lat: opts.lat, Lng: opts.lon}, opts.aspect, opts.zoom)
	if err := region.Validate(); err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Fprintf(stdout, "GET %s/api/chargesites?%s\n", opts.apiURL, external.ChargeSitesQuery(region, opts.filters))
		fmt.Fprintf(stdout, "max distance: %g\n", geo.MaxDistance(region.LatitudeDelta, region.LongitudeDelta))
		return nil
	}

	base := external.NewBaseClient(&http.Client{}, "sitesctl", external.DefaultBreakerSettings(), "sitesctl/1.0")
	client := external.NewChargeSiteClient(base, opts.apiURL, opts.timeout)

	sites, err := client.FetchChargeSites(ctx, region, opts.filters)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sites); err != nil {
			return err
		}
	} else {
		printSites(stdout, sites)
	}

	if opts.siteID != 0 {
		site, ok := types.FindSite(sites, opts.siteID)
		if !ok {
			return fmt.Errorf("site %d is not in the result", opts.siteID)
		}
		fmt.Fprintln(stdout)
		for _, l := range navigation.Links(site) {
			fmt.Fprintf(stdout, "%-12s %s\n", l.Label, l.URL)
		}
	}
	return nil
}

func printSites(w io.Writer, sites []types.ChargeSite) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLAT\tLON\tKW\tOBF\tRES\tPRI")
	for _, s := range sites {
		fmt.Fprintf(tw, "%d\t%g\t%g\t%g\t%t\t%t\t%t\n",
			s.ID, s.Latitude, s.Longitude, s.RateOfCharge,
			s.ObfuscatedStatus, s.ReservedStatus, s.PrivateStatus)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d sites\n", len(sites))
}
