package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	dombatch "github.com/kailas-cloud/ctxdex/internal/domain/batch"
	"github.com/kailas-cloud/ctxdex/internal/domain/geo"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/usecase/ingest"
)

// maxLineBytes bounds one JSON line in a load file.
const maxLineBytes = 1 << 20

// --- retrieve ---

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Run one retrieval against the corpus",
	Long: `Run one retrieval against the corpus and print the ranked hits.

Examples:
  ctxdex retrieve --tenant acme "flat white"
  ctxdex retrieve --tenant acme --category drinks --top-k 3 --json "coffee"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			def, _ := a.weights()
			req, err := request.NewRetrieve(
				tenantFlag, strings.Join(args, " "), filterFlags(cmd), intFlag(cmd, "top-k"),
				weightFlags(cmd, def), floatFlag(cmd, "min-score"),
			)
			if err != nil {
				return err
			}
			res, err := a.retrieval.Retrieve(ctx, &req)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), &res, boolFlag(cmd, "json"))
		})
	},
}

// --- places ---

var placesCmd = &cobra.Command{
	Use:   "places <query>",
	Short: "Search places within a radius",
	Long: `Search places within a hard radius, ranked by relevance and proximity.

Examples:
  ctxdex places --tenant acme --lat 40.7128 --lon -74.006 --radius 5 "coffee"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			_, def := a.weights()
			coords := request.Coordinates{
				Lat:   floatFlag(cmd, "lat"),
				Lon:   floatFlag(cmd, "lon"),
				MaxKm: floatFlag(cmd, "radius"),
			}
			req, err := request.NewPlaces(
				tenantFlag, strings.Join(args, " "), filterFlags(cmd), coords, intFlag(cmd, "top-k"),
				weightFlags(cmd, def), floatFlag(cmd, "min-score"),
			)
			if err != nil {
				return err
			}
			res, err := a.retrieval.RetrievePlaces(ctx, &req)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), &res, boolFlag(cmd, "json"))
		})
	},
}

// --- load ---

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Upsert context records from a JSON lines file",
	Long: `Upsert context records from a JSON lines file (or stdin when no file or "-" is given).
Each line is one record; records without tenant_id take --tenant.

Example line:
  {"id":"cafe-1","title":"Blue Bottle","body":"Pour-over coffee","categories":["cafe"],"location":{"lat":40.72,"lon":-73.99}}`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()
			in = f
		}

		items, err := parseRecords(in, tenantFlag)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			printWarning("No records to load")
			return nil
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			var results []dombatch.Result
			for start := 0; start < len(items); start += ingest.MaxBatchSize {
				end := min(start+ingest.MaxBatchSize, len(items))
				for _, r := range a.ingest.Load(ctx, items[start:end]) {
					results = append(results, r.Offset(start))
				}
			}
			return reportLoad(cmd.ErrOrStderr(), results)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{retrieveCmd, placesCmd} {
		c.Flags().Int("top-k", 0, "maximum number of hits (default 5)")
		c.Flags().Float64("min-score", 0, "relevance floor in [0,1]")
		c.Flags().Float64("semantic-weight", -1, "weight of vector similarity (config default when unset)")
		c.Flags().Float64("fulltext-weight", -1, "weight of full-text rank (config default when unset)")
		c.Flags().String("intent-scope", "", "only records with this intent scope")
		c.Flags().String("intent-action", "", "only records with this intent action")
		c.Flags().String("category", "", "only records in this category")
		c.Flags().Bool("json", false, "print the result as JSON")
	}

	placesCmd.Flags().Float64("lat", 0, "latitude of the query point")
	placesCmd.Flags().Float64("lon", 0, "longitude of the query point")
	placesCmd.Flags().Float64("radius", 0, "hard search radius in km")
	placesCmd.Flags().Float64("distance-weight", -1, "weight of proximity (config default when unset)")
	_ = placesCmd.MarkFlagRequired("lat")
	_ = placesCmd.MarkFlagRequired("lon")
	_ = placesCmd.MarkFlagRequired("radius")
}

// withApp runs fn against a bootstrapped app and drains usage records afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(closeCtx)
		_ = a.logger.Sync()
	}()
	return fn(ctx, a)
}

func filterFlags(cmd *cobra.Command) request.Filters {
	scope, _ := cmd.Flags().GetString("intent-scope")
	action, _ := cmd.Flags().GetString("intent-action")
	category, _ := cmd.Flags().GetString("category")
	return request.Filters{IntentScope: scope, IntentAction: action, Category: category}
}

// weightFlags overrides def with every weight flag the user set explicitly.
func weightFlags(cmd *cobra.Command, def request.Weights) request.Weights {
	w := def
	if cmd.Flags().Changed("semantic-weight") {
		w.Semantic = floatFlag(cmd, "semantic-weight")
	}
	if cmd.Flags().Changed("fulltext-weight") {
		w.Fulltext = floatFlag(cmd, "fulltext-weight")
	}
	if cmd.Flags().Lookup("distance-weight") != nil && cmd.Flags().Changed("distance-weight") {
		w.Distance = floatFlag(cmd, "distance-weight")
	}
	return w
}

func intFlag(cmd *cobra.Command, name string) int {
	v, _ := cmd.Flags().GetInt(name)
	return v
}

func floatFlag(cmd *cobra.Command, name string) float64 {
	v, _ := cmd.Flags().GetFloat64(name)
	return v
}

func boolFlag(cmd *cobra.Command, name string) bool {
	v, _ := cmd.Flags().GetBool(name)
	return v
}

// recordLine is one line of a load file.
type recordLine struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Instruction   string     `json:"instruction"`
	Keywords      []string   `json:"keywords"`
	Location      *geo.Point `json:"location"`
	IntentScopes  []string   `json:"intent_scopes"`
	IntentActions []string   `json:"intent_actions"`
	Categories    []string   `json:"categories"`
	Status        string     `json:"status"`
}

// parseRecords decodes JSON lines. Blank lines are skipped; a malformed line aborts the load.
func parseRecords(r io.Reader, defaultTenant string) ([]knowledge.Attrs, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var items []knowledge.Attrs
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec recordLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if rec.TenantID == "" {
			rec.TenantID = defaultTenant
		}
		items = append(items, knowledge.Attrs{
			ID:            rec.ID,
			TenantID:      rec.TenantID,
			Title:         rec.Title,
			Body:          rec.Body,
			Instruction:   rec.Instruction,
			Keywords:      rec.Keywords,
			Location:      rec.Location,
			IntentScopes:  rec.IntentScopes,
			IntentActions: rec.IntentActions,
			Categories:    rec.Categories,
			Status:        knowledge.Status(rec.Status),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return items, nil
}

var errLoadFailed = errors.New("some records failed to load")

// reportLoad prints failed lines and the totals. It fails when any record failed.
func reportLoad(w io.Writer, results []dombatch.Result) error {
	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(w, "  record %d (%s): %v\n", r.Line(), r.ID(), r.Err())
		}
	}
	sum := dombatch.Summarize(results)
	fmt.Fprintf(w, "created %d, updated %d, failed %d\n", sum.Created, sum.Updated, sum.Failed)
	if sum.Failed > 0 {
		return errLoadFailed
	}
	return nil
}
