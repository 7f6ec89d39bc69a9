package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/hamed0406/subcheck/internal/domain"
)

var (
	upTag      = color.New(color.FgGreen, color.Bold).SprintFunc()
	downTag    = color.New(color.FgRed, color.Bold).SprintFunc()
	unknownTag = color.New(color.FgYellow).SprintFunc()
	heading    = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint      = color.New(color.Faint).SprintFunc()
)

func tag(s domain.Status) string {
	switch s {
	case domain.StatusUp:
		return upTag("[UP]")
	case domain.StatusDown:
		return downTag("[DOWN]")
	default:
		return unknownTag("[?]")
	}
}

// skippedOutcome marks every host unknown for runs that do not probe.
func skippedOutcome(hosts []string) domain.RunOutcome {
	out := domain.RunOutcome{
		Results:    make([]domain.ProbeResult, len(hosts)),
		Completion: domain.CompletionCompleted,
	}
	for i, h := range hosts {
		out.Results[i] = domain.ProbeResult{Host: h, Status: domain.StatusUnknown}
	}
	return out
}

// writeReport lists every host with its status, grouped by shape when root
// is set, followed by totals. skipped reports a run that never probed.
func writeReport(w io.Writer, out domain.RunOutcome, root string, elapsed time.Duration, skipped bool) {
	byHost := make(map[string]domain.ProbeResult, len(out.Results))
	hosts := make([]string, 0, len(out.Results))
	for _, r := range out.Results {
		byHost[r.Host] = r
		hosts = append(hosts, r.Host)
	}

	line := func(h string) {
		r := byHost[h]
		if r.Reason != "" {
			fmt.Fprintf(w, "  %s %s %s\n", tag(r.Status), h, faint(r.Reason))
			return
		}
		fmt.Fprintf(w, "  %s %s\n", tag(r.Status), h)
	}

	if root == "" {
		for _, h := range hosts {
			line(h)
		}
	} else {
		c := domain.Categorize(hosts, root)
		for _, g := range []struct {
			name  string
			hosts []string
		}{
			{"www", c.WWW},
			{"root level", c.RootLevel},
			{"multi level", c.MultiLevel},
		} {
			if len(g.hosts) == 0 {
				continue
			}
			fmt.Fprintf(w, "%s (%d)\n", heading(g.name), len(g.hosts))
			for _, h := range g.hosts {
				line(h)
			}
		}
	}

	sum := out.Summary()
	fmt.Fprintln(w)
	if skipped {
		fmt.Fprintf(w, "Total: %d  %s\n", sum.Total, unknownTag("availability check skipped"))
		return
	}
	fmt.Fprintf(w, "Total: %d  Up: %s  Down: %s  Unknown: %s  Live: %.1f%%  (%s)\n",
		sum.Total,
		upTag(sum.Up),
		downTag(sum.Down),
		unknownTag(sum.Unknown),
		sum.LivePercent,
		elapsed.Round(time.Millisecond),
	)
	if out.Completion == domain.CompletionStopped {
		fmt.Fprintln(w, unknownTag("stopped by user; unprobed hosts are marked [?]"))
	}
}
