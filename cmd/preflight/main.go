// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/config"
	"github.com/hamed0406/subcheck/internal/probe"
	"github.com/hamed0406/subcheck/internal/repo/postgres"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, color.RedString("✖"), msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, color.YellowString("⚠"), msg) }
	ok := func(msg string) { fmt.Println(color.GreenString("✔"), msg) }

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fail(err.Error())
	}

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (anyone can start and stop scans).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; only admin keys can read scans.")
	}
	for _, k := range cfg.PublicAPIKeys {
		for _, a := range cfg.AdminAPIKeys {
			if k == a {
				warn("a key is listed as both public and admin")
			}
		}
	}
	ok("ADDR=" + cfg.Addr)

	if cfg.BatchSize > 100 {
		warn(fmt.Sprintf("MAX_CONCURRENT_CHECKS=%d is high; targets may rate-limit you.", cfg.BatchSize))
	}
	ok(fmt.Sprintf("probe timeout %s, group size %d", cfg.ProbeTimeout, cfg.BatchSize))
	if cfg.InsecureTLS {
		warn("PROBE_INSECURE_TLS is on; certificate errors will not mark hosts down.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; scans are kept in memory and lost on restart.")
	} else {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, zap.NewNop())
		if err != nil {
			fail("database unreachable: " + err.Error())
		}
		pg.Close()
		ok("DATABASE_URL reachable")
	}

	if cfg.DNSDiagnose {
		c := probe.NewDNSClassifier(cfg.DNSResolver, 0)
		st := c.Classify(ctx, "example.com")
		if st.Class == probe.ClassServfail {
			warn("resolver " + c.Server + " did not answer: " + st.ResolverError)
		} else {
			ok("resolver " + c.Server + " answers")
		}
	}

	if cfg.SlackWebhook != "" {
		if u, err := url.Parse(cfg.SlackWebhook); err != nil || u.Scheme != "https" {
			warn("SLACK_WEBHOOK_URL does not look like an https URL.")
		} else {
			ok("Slack notifications enabled")
		}
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; any origin may call the API from a browser.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	ok("preflight passed")
}
