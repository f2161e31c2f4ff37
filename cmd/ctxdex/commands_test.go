package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	dombatch "github.com/kailas-cloud/ctxdex/internal/domain/batch"
	"github.com/kailas-cloud/ctxdex/internal/domain/knowledge"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/hit"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/request"
	"github.com/kailas-cloud/ctxdex/internal/domain/search/tier"
	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
)

func TestParseRecords(t *testing.T) {
	input := `{"id":"cafe-1","title":"Blue Bottle","body":"Pour-over","categories":["cafe"],"location":{"lat":40.72,"lon":-73.99}}

{"id":"doc-2","tenant_id":"globex","body":"Refund policy","status":"archived"}
`
	items, err := parseRecords(strings.NewReader(input), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 records, got %d", len(items))
	}

	first := items[0]
	if first.TenantID != "acme" {
		t.Errorf("tenant = %q, want default acme", first.TenantID)
	}
	if first.Location == nil || first.Location.Lat != 40.72 || first.Location.Lon != -73.99 {
		t.Errorf("location = %+v", first.Location)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "cafe" {
		t.Errorf("categories = %v", first.Categories)
	}

	second := items[1]
	if second.TenantID != "globex" {
		t.Errorf("tenant = %q, want globex", second.TenantID)
	}
	if second.Status != knowledge.StatusArchived {
		t.Errorf("status = %q", second.Status)
	}
}

func TestParseRecords_MalformedLine(t *testing.T) {
	_, err := parseRecords(strings.NewReader("{\"id\":\"a\",\"body\":\"x\"}\nnot json\n"), "acme")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the line, got %v", err)
	}
}

func TestReportLoad(t *testing.T) {
	var buf bytes.Buffer
	err := reportLoad(&buf, []dombatch.Result{
		dombatch.NewOK(1, "a", true),
		dombatch.NewOK(2, "b", false),
		dombatch.NewError(3, "c", errors.New("title or body is required")),
	})
	if !errors.Is(err, errLoadFailed) {
		t.Fatalf("expected errLoadFailed, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "record 3 (c): title or body is required") {
		t.Errorf("missing failure line in %q", out)
	}
	if !strings.Contains(out, "created 1, updated 1, failed 1") {
		t.Errorf("missing totals in %q", out)
	}

	buf.Reset()
	if err := reportLoad(&buf, []dombatch.Result{dombatch.NewOK(1, "a", true)}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWeightFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Float64("semantic-weight", -1, "")
	cmd.Flags().Float64("fulltext-weight", -1, "")
	cmd.Flags().Float64("distance-weight", -1, "")
	if err := cmd.Flags().Parse([]string{"--distance-weight", "0.9"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	got := weightFlags(cmd, request.DefaultPlaceWeights)
	want := request.Weights{
		Semantic: request.DefaultPlaceWeights.Semantic,
		Fulltext: request.DefaultPlaceWeights.Fulltext,
		Distance: 0.9,
	}
	if got != want {
		t.Errorf("weights = %+v, want %+v", got, want)
	}
}

func TestWeightFlags_NoDistanceFlag(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Float64("semantic-weight", -1, "")
	cmd.Flags().Float64("fulltext-weight", -1, "")
	if err := cmd.Flags().Parse([]string{"--semantic-weight", "1"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	got := weightFlags(cmd, request.DefaultWeights)
	if got.Semantic != 1 || got.Fulltext != request.DefaultWeights.Fulltext || got.Distance != 0 {
		t.Errorf("weights = %+v", got)
	}
}

func sampleResult(t *testing.T) retrieval.Result {
	t.Helper()
	c, err := knowledge.New(knowledge.Attrs{TenantID: "acme", ID: "cafe-1", Title: "Blue Bottle", Body: "Pour-over"})
	if err != nil {
		t.Fatalf("knowledge.New: %v", err)
	}
	return retrieval.Result{
		Hits:     []hit.Hit{hit.New(&c, 0.75, tier.Hybrid).WithDistance(0.4)},
		Tier:     tier.Hybrid,
		Model:    "hash-384",
		Provider: "local",
		Usage:    retrieval.Usage{Fallback: true},
	}
}

func TestPrintResult_JSON(t *testing.T) {
	res := sampleResult(t)
	var buf bytes.Buffer
	if err := printResult(&buf, &res, true); err != nil {
		t.Fatalf("printResult: %v", err)
	}

	var out resultOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Tier != "hybrid" || !out.Fallback || out.Provider != "local" {
		t.Errorf("unexpected envelope %+v", out)
	}
	if len(out.Hits) != 1 || out.Hits[0].ID != "cafe-1" || *out.Hits[0].DistanceKm != 0.4 {
		t.Errorf("unexpected hits %+v", out.Hits)
	}
}

func TestPrintResult_Text(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	res := sampleResult(t)
	var buf bytes.Buffer
	if err := printResult(&buf, &res, false); err != nil {
		t.Fatalf("printResult: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "tier: hybrid") || !strings.Contains(out, "cafe-1") || !strings.Contains(out, "(0.40 km)") {
		t.Errorf("unexpected output %q", out)
	}

	buf.Reset()
	empty := retrieval.Result{Tier: tier.Recency}
	_ = printResult(&buf, &empty, false)
	if !strings.Contains(buf.String(), "no hits") {
		t.Errorf("expected no hits line, got %q", buf.String())
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize with noColor=true = %q", got)
	}
	noColor = false
	if got := colorize(colorRed, "x"); !strings.Contains(got, "\033[") {
		t.Errorf("colorize with noColor=false = %q", got)
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	for _, name := range []string{"serve", "mcp", "retrieve", "places", "load"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered: %v", name, err)
		}
	}
}

func TestRetrieveCommand_RequiresQuery(t *testing.T) {
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"retrieve"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for missing query")
	}
}
