package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tras-phone/admin-access/cmd/accessctl/cli"
	"github.com/tras-phone/admin-access/internal/admins"
	"github.com/tras-phone/admin-access/internal/app"
	"github.com/tras-phone/admin-access/internal/catalog"
	"github.com/tras-phone/admin-access/internal/platform/cache"
	"github.com/tras-phone/admin-access/internal/platform/db"
	"github.com/tras-phone/admin-access/internal/rbac"
	"github.com/tras-phone/admin-access/internal/roles"
)

const usage = `usage: accessctl <command> [flags]

commands:
  catalog validate [-file path] [-json]
  check -admin id (-route path | -perm key[,key]) [-all] [-json]
  cache flush
  jobs stats | jobs requeue | jobs prune -days n
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "catalog":
		return runCatalog(args[1:], stdout, stderr)
	case "check":
		return runCheck(ctx, args[1:], stdout, stderr)
	case "cache":
		return runCache(ctx, args[1:], stdout, stderr)
	case "jobs":
		return runJobs(ctx, args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
}

func runCatalog(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "validate" {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("catalog validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("file", "", "catalog file; the embedded catalog when empty")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	return cli.CatalogValidateCommand(cli.CatalogValidateOptions{
		Path:       *path,
		JSONOutput: *asJSON,
		Stdout:     stdout,
		Stderr:     stderr,
	})
}

func runCheck(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	adminID := fs.Int64("admin", 0, "admin id")
	route := fs.String("route", "", "catalog route to evaluate")
	perms := fs.String("perm", "", "comma separated permission keys")
	all := fs.Bool("all", false, "require every -perm instead of any")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load catalog: %v\n", err)
		return 1
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	resolver := rbac.NewResolver(admins.NewRepository(pool), roles.NewRepository(pool), cat.Registry)
	access, err := cli.NewAccessCLI(resolver, cat.Routes)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return access.CheckCommand(ctx, cli.CheckOptions{
		AdminID:     *adminID,
		Route:       *route,
		Permissions: splitList(*perms),
		RequireAll:  *all,
		JSONOutput:  *asJSON,
		Stdout:      stdout,
		Stderr:      stderr,
	})
}

func runCache(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "flush" {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "connect redis: %v\n", err)
		return 1
	}
	defer client.Close()
	ver, err := cache.NewVersioned(client, "access:resolution", cfg.AccessCacheTTL).Bump(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "cache flush: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "resolution cache now at version %d\n", ver)
	return 0
}

func runJobs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "%s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "requeue":
		n, err := jobsCLI.RequeueArchived(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs requeue: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "requeued %d audit deliveries\n", n)
	case "prune":
		fs := flag.NewFlagSet("jobs prune", flag.ContinueOnError)
		fs.SetOutput(stderr)
		days := fs.Int("days", cfg.AuditRetentionDays, "retention in days")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.TriggerPrune(ctx, *days)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs prune: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s)\n", info.ID, info.Type)
	default:
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	return 0
}

func loadCatalog(cfg *app.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath != "" {
		return catalog.LoadFile(cfg.CatalogPath)
	}
	return catalog.Default()
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
