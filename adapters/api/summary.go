package api

import (
	"fmt"
	"strings"

	"floodattr/domain/attrib"
)

// SummaryMarkdown renders a run report as a human-readable markdown summary:
// the panel-wide effect, the global PAF variants, the largest city burdens,
// and everything that was skipped and why.
func SummaryMarkdown(r *attrib.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Flood-attributable malaria burden: run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "Created %s. %d observations across %d cities. ",
		r.CreatedAt.Time().Format("2006-01-02"), r.Observations, r.CityCount)
	fmt.Fprintf(&b, "Estimator `%s`, CI aggregation `%s`, %.0f%% intervals.\n\n",
		r.Estimator, r.CIMode, r.ConfidenceLevel*100)

	fmt.Fprintf(&b, "## Panel-wide flood effect\n\n")
	fmt.Fprintf(&b, "| Quantity | Estimate | %.0f%% CI |\n|---|---|---|\n", r.ConfidenceLevel*100)
	fmt.Fprintf(&b, "| Total log-effect | %.4f | [%.4f, %.4f] |\n",
		r.TotalEffect.Theta.Point, r.TotalEffect.Theta.Lower, r.TotalEffect.Theta.Upper)
	fmt.Fprintf(&b, "| Rate ratio | %.4f | [%.4f, %.4f] |\n",
		r.TotalEffect.RateRatio.Point, r.TotalEffect.RateRatio.Lower, r.TotalEffect.RateRatio.Upper)
	pct := r.TotalEffect.PAF.Percent()
	fmt.Fprintf(&b, "| PAF | %.2f%% | [%.2f%%, %.2f%%] |\n\n", pct.Point, pct.Lower, pct.Upper)

	fmt.Fprintf(&b, "## Global attribution\n\n")
	fmt.Fprintf(&b, "| Weighting | PAF | CI | Cities |\n|---|---|---|---|\n")
	for _, g := range r.Global {
		gp := g.PAF.Percent()
		fmt.Fprintf(&b, "| %s | %.2f%% | [%.2f%%, %.2f%%] | %d |\n",
			g.Weighting, gp.Point, gp.Lower, gp.Upper, g.Cities)
	}
	b.WriteString("\n")

	if n := len(r.Cities); n > 0 {
		fmt.Fprintf(&b, "## Cities (%d estimated)\n\n", n)
		fmt.Fprintf(&b, "| ADM3 | Flood weeks | Cases | Attributable | CI |\n|---|---|---|---|---|\n")
		for i := range r.Cities {
			c := &r.Cities[i]
			fmt.Fprintf(&b, "| %s | %d | %.0f | %.1f | [%.1f, %.1f] |\n",
				c.City, c.FloodWeeks, c.TotalCases,
				c.AttributableCases.Point, c.AttributableCases.Lower, c.AttributableCases.Upper)
		}
		b.WriteString("\n")
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "## Skipped estimates (%d)\n\n", len(r.Skipped))
		for _, s := range r.Skipped {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", s.Key, s.Code, s.Reason)
		}
		b.WriteString("\n")
	}

	if r.UnmatchedGroupKeys > 0 {
		fmt.Fprintf(&b, "%d fixed-effect group keys had no fitted contribution and were treated as zero.\n",
			r.UnmatchedGroupKeys)
	}

	return b.String()
}
