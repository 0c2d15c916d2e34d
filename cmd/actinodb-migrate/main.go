package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/actinodb/migrate"
	"github.com/actinodb/migrate/internal/observability"
	"github.com/actinodb/migrate/phagedb"
	"github.com/actinodb/migrate/script"
	"github.com/actinodb/migrate/source"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "status":
		if err := runStatus(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
			os.Exit(1)
		}
	case "plan":
		if err := runPlan(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "plan failed: %v\n", err)
			os.Exit(1)
		}
	case "up":
		if err := runUp(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "up failed: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: actinodb-migrate <status|plan|up> [flags]")
}

func runStatus(args []string) error {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	driver := flags.String("driver", "mysql", "Database driver (mysql, pgx or sqlite)")
	dsn := flags.String("dsn", os.Getenv("DATABASE_URL"), "Database DSN")
	scriptsDir := flags.String("scripts", "", "Read upgrade scripts from a directory instead of the embedded chain")
	s3Bucket := flags.String("s3-bucket", "", "Read upgrade scripts from an S3 bucket")
	s3Prefix := flags.String("s3-prefix", "", "S3 key prefix for upgrade scripts")
	s3Region := flags.String("s3-region", "", "S3 region for upgrade scripts")
	asJSON := flags.Bool("json", false, "Print machine-readable JSON")
	_ = flags.Parse(args)

	if *dsn == "" {
		return errors.New("dsn or DATABASE_URL required")
	}

	ctx := context.Background()
	db, err := openDB(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	chain, err := loadChain(ctx, *scriptsDir, *s3Bucket, *s3Prefix, *s3Region)
	if err != nil {
		return err
	}

	runner := migrate.NewRunner(db, chain, observability.WithDriver(observability.NewLogger("migrate"), *driver), nil)
	st, err := runner.Status(ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(st)
	}
	printStatus(st)
	return nil
}

func runPlan(args []string) error {
	flags := flag.NewFlagSet("plan", flag.ExitOnError)
	driver := flags.String("driver", "mysql", "Database driver (mysql, pgx or sqlite)")
	dsn := flags.String("dsn", os.Getenv("DATABASE_URL"), "Database DSN")
	target := flags.Int("target", 0, "Schema version to stop at (0 means latest)")
	scriptsDir := flags.String("scripts", "", "Read upgrade scripts from a directory instead of the embedded chain")
	s3Bucket := flags.String("s3-bucket", "", "Read upgrade scripts from an S3 bucket")
	s3Prefix := flags.String("s3-prefix", "", "S3 key prefix for upgrade scripts")
	s3Region := flags.String("s3-region", "", "S3 region for upgrade scripts")
	asJSON := flags.Bool("json", false, "Print machine-readable JSON")
	_ = flags.Parse(args)

	if *dsn == "" {
		return errors.New("dsn or DATABASE_URL required")
	}

	ctx := context.Background()
	db, err := openDB(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	chain, err := loadChain(ctx, *scriptsDir, *s3Bucket, *s3Prefix, *s3Region)
	if err != nil {
		return err
	}

	runner := migrate.NewRunner(db, chain, observability.WithDriver(observability.NewLogger("migrate"), *driver), nil)
	plan, err := runner.Plan(ctx, *target)
	if err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(plan)
	}
	if len(plan.Scripts) == 0 {
		fmt.Printf("schema is up to date at version %d\n", plan.Current)
		return nil
	}
	fmt.Printf("upgrade from %d to %d, %d script(s):\n", plan.Current, plan.Target, len(plan.Scripts))
	for _, s := range plan.Scripts {
		printScriptLine(s)
		for _, note := range s.Annotations {
			fmt.Printf("      data loss: %s\n", note)
		}
	}
	return nil
}

func runUp(args []string) error {
	flags := flag.NewFlagSet("up", flag.ExitOnError)
	driver := flags.String("driver", "mysql", "Database driver (mysql, pgx or sqlite)")
	dsn := flags.String("dsn", os.Getenv("DATABASE_URL"), "Database DSN")
	target := flags.Int("target", 0, "Schema version to stop at (0 means latest)")
	transactional := flags.Bool("tx", false, "Wrap each script in its own transaction")
	yes := flags.Bool("yes", false, "Apply without confirming destructive steps")
	metricsListen := flags.String("metrics-listen", "", "Expose Prometheus metrics on this address while migrating")
	scriptsDir := flags.String("scripts", "", "Read upgrade scripts from a directory instead of the embedded chain")
	s3Bucket := flags.String("s3-bucket", "", "Read upgrade scripts from an S3 bucket")
	s3Prefix := flags.String("s3-prefix", "", "S3 key prefix for upgrade scripts")
	s3Region := flags.String("s3-region", "", "S3 region for upgrade scripts")
	_ = flags.Parse(args)

	if *dsn == "" {
		return errors.New("dsn or DATABASE_URL required")
	}

	ctx := context.Background()
	db, err := openDB(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	chain, err := loadChain(ctx, *scriptsDir, *s3Bucket, *s3Prefix, *s3Region)
	if err != nil {
		return err
	}

	logger := observability.WithDriver(observability.NewLogger("migrate"), *driver)

	var metrics *observability.Metrics
	if *metricsListen != "" {
		metrics = observability.NewMetrics(nil)
		server := startMetricsServer(*metricsListen)
		defer server.Shutdown(ctx)
	}

	runner := migrate.NewRunner(db, chain, logger, metrics)
	runner.Transactional = *transactional

	plan, err := runner.Plan(ctx, *target)
	if err != nil {
		return err
	}
	if len(plan.Scripts) == 0 {
		fmt.Printf("schema is up to date at version %d\n", plan.Current)
		return nil
	}

	destructive := false
	for _, s := range plan.Scripts {
		for _, note := range s.Annotations {
			fmt.Printf("%s: data loss: %s\n", s.Name, note)
			destructive = true
		}
	}
	if destructive && !*yes {
		if !confirm(fmt.Sprintf("apply %d script(s) to reach version %d?", len(plan.Scripts), plan.Target)) {
			return errors.New("aborted")
		}
	}

	applied, err := runner.Up(ctx, *target)
	if err != nil {
		return err
	}
	current, err := runner.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("applied %d script(s); schema version is %d\n", applied, current)
	return nil
}

func openDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func loadChain(ctx context.Context, scriptsDir, s3Bucket, s3Prefix, s3Region string) (*migrate.Chain, error) {
	switch {
	case scriptsDir != "" && s3Bucket != "":
		return nil, errors.New("choose either -scripts or -s3-bucket, not both")
	case scriptsDir != "":
		scripts, err := source.Load(ctx, source.Dir{Path: scriptsDir})
		if err != nil {
			return nil, err
		}
		return migrate.NewChain(scripts)
	case s3Bucket != "":
		src, err := source.NewS3(ctx, source.S3Config{Bucket: s3Bucket, Prefix: s3Prefix, Region: s3Region})
		if err != nil {
			return nil, err
		}
		scripts, err := source.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		return migrate.NewChain(scripts)
	default:
		return phagedb.Chain(ctx)
	}
}

func startMetricsServer(listen string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = server.ListenAndServe()
	}()

	return server
}

func printStatus(st migrate.Status) {
	fmt.Printf("schema version: %d\n", st.SchemaVersion)
	if st.DataVersion != nil {
		fmt.Printf("data version:   %d\n", *st.DataVersion)
	}
	fmt.Printf("latest:         %d\n", st.Latest)
	if len(st.Pending) == 0 {
		fmt.Println("schema is up to date")
		return
	}
	fmt.Println("pending:")
	for _, s := range st.Pending {
		printScriptLine(s)
	}
}

func printScriptLine(s script.Script) {
	line := fmt.Sprintf("  %s (%d -> %d)", s.Name, s.From, s.To)
	if len(s.Annotations) > 0 {
		line += "  [data loss]"
	}
	fmt.Println(line)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
