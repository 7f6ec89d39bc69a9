package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/hamed0406/subcheck/internal/config"
	"github.com/hamed0406/subcheck/internal/domain"
	"github.com/hamed0406/subcheck/internal/logging"
	"github.com/hamed0406/subcheck/internal/probe"
	"github.com/hamed0406/subcheck/internal/scan"
	"github.com/hamed0406/subcheck/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}

	var (
		file        = flag.String("f", "", "read hostnames from file (one per line)")
		concurrency = flag.Int("c", cfg.BatchSize, "hosts probed at once per group")
		root        = flag.String("domain", "", "root domain; groups output by www/root-level/multi-level")
		timeout     = flag.Duration("timeout", cfg.ProbeTimeout, "per-attempt timeout")
		diagnose    = flag.Bool("dns", cfg.DNSDiagnose, "classify down hosts via DNS")
		insecure    = flag.Bool("insecure", cfg.InsecureTLS, "skip TLS certificate checks")
		noProbe     = flag.Bool("no-probe", false, "list and group hostnames without checking availability")
		noColor     = flag.Bool("no-color", false, "disable coloured output")
	)
	flag.Parse()
	if *noColor {
		color.NoColor = true
	}

	logger, err := logging.NewCLILogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	raw, err := readCandidates(flag.Args(), *file, os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
	hosts := domain.Dedupe(raw)
	if len(hosts) == 0 {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), "no hostnames given (args, -f file or stdin)")
		os.Exit(2)
	}
	rootDomain := domain.NormalizeHostname(*root)

	if *noProbe {
		writeReport(os.Stdout, skippedOutcome(hosts), rootDomain, 0, true)
		return
	}

	prober := probe.NewHTTPProber(logger, *timeout).WithRateLimit(cfg.ProbeRPS)
	if *insecure {
		prober.Client.Transport = probe.NewTransport(true)
	}
	sched := scheduler.NewBatchScheduler(logger, prober, *concurrency)

	var stop atomic.Bool
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		stop.Store(true)
		fmt.Fprintln(os.Stderr, color.YellowString("\nstopping after the current group (Ctrl+C again to quit)"))
		<-sigs
		os.Exit(130)
	}()

	bar := progressbar.NewOptions(len(hosts),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(!color.NoColor),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("probing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	ctx := context.Background()
	started := time.Now()
	out, err := sched.Run(ctx, hosts, *concurrency, &stop, func(processed, _ int) {
		_ = bar.Set(processed)
	})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		logger.Error("cli_run_error", zap.Error(err))
		os.Exit(1)
	}

	if *diagnose {
		scan.Diagnose(ctx, probe.NewDNSClassifier(cfg.DNSResolver, 0), &out, *concurrency)
	}

	writeReport(os.Stdout, out, rootDomain, time.Since(started), false)
}

// readCandidates collects hostnames from args, then the file, then stdin
// when neither was given and stdin is not a terminal. Lines may hold
// several names separated by spaces or commas.
func readCandidates(args []string, file string, stdin *os.File) ([]string, error) {
	var out []string
	for _, a := range args {
		out = append(out, splitNames(a)...)
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", file, err)
		}
		defer f.Close()
		names, err := scanNames(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		out = append(out, names...)
	}
	if len(args) == 0 && file == "" && stdin != nil {
		if fi, err := stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
			names, err := scanNames(stdin)
			if err != nil {
				return nil, fmt.Errorf("read stdin: %w", err)
			}
			out = append(out, names...)
		}
	}
	return out, nil
}

func scanNames(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, splitNames(line)...)
	}
	return out, sc.Err()
}

func splitNames(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
