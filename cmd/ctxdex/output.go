package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/kailas-cloud/ctxdex/internal/usecase/retrieval"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

// noColor disables ANSI sequences; set when stderr is not a terminal or NO_COLOR is present.
var noColor = os.Getenv("NO_COLOR") != "" || !term.IsTerminal(int(os.Stderr.Fd()))

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

type hitOutput struct {
	ID         string   `json:"id"`
	Title      string   `json:"title,omitempty"`
	Body       string   `json:"body,omitempty"`
	Score      float64  `json:"score"`
	Tier       string   `json:"tier"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type resultOutput struct {
	Tier     string      `json:"tier"`
	Provider string      `json:"embedding_provider"`
	Model    string      `json:"embedding_model"`
	Tokens   int         `json:"embedding_tokens"`
	Fallback bool        `json:"fallback"`
	Hits     []hitOutput `json:"hits"`
}

func toOutput(res *retrieval.Result) resultOutput {
	out := resultOutput{
		Tier:     string(res.Tier),
		Provider: res.Provider,
		Model:    res.Model,
		Tokens:   res.Usage.TotalTokens,
		Fallback: res.Usage.Fallback,
		Hits:     make([]hitOutput, len(res.Hits)),
	}
	for i := range res.Hits {
		h := &res.Hits[i]
		out.Hits[i] = hitOutput{
			ID:         h.ID(),
			Title:      h.Title(),
			Body:       h.Body(),
			Score:      h.Score(),
			Tier:       string(h.Tier()),
			DistanceKm: h.DistanceKm(),
		}
	}
	return out
}

// printResult writes res as indented JSON or as a numbered list.
func printResult(w io.Writer, res *retrieval.Result, asJSON bool) error {
	out := toOutput(res)
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return nil
	}

	fmt.Fprintf(w, "%s %s  (%s/%s, %d tokens)\n",
		colorize(colorBold, "tier:"), out.Tier, out.Provider, out.Model, out.Tokens)
	if len(out.Hits) == 0 {
		fmt.Fprintln(w, "no hits")
		return nil
	}
	for i, h := range out.Hits {
		line := fmt.Sprintf("%2d. %-24s %.4f  %s", i+1, h.ID, h.Score, h.Title)
		if h.DistanceKm != nil {
			line += fmt.Sprintf("  (%.2f km)", *h.DistanceKm)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
