package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carenet/carenet/internal/config"
	"github.com/carenet/carenet/internal/domain/federation"
	"github.com/carenet/carenet/internal/domain/records"
	"github.com/carenet/carenet/internal/platform/db"
	"github.com/carenet/carenet/internal/platform/export"
	"github.com/carenet/carenet/internal/platform/peer"
	"github.com/carenet/carenet/internal/platform/sandbox"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "carenet",
		Short:         "Hospital records server with cross-facility aggregation",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(schemaCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(viewCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(peerCmd())
	return root
}

func newLogger(w io.Writer, env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// app holds what every command needs: configuration, a logger and the local
// record service with whatever store backs it.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	svc    *records.Service
	pool   *pgxpool.Pool
	schema string
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration and opens the store. With the postgres driver
// the facility schema is bootstrapped when bootstrap is set.
func openApp(ctx context.Context, logOut io.Writer, bootstrap bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: newLogger(logOut, cfg.Env)}

	if cfg.StoreDriver == config.DriverMemory {
		a.svc = records.NewService(records.NewMemoryStore())
		return a, nil
	}

	a.schema = cfg.DBSchema
	if a.schema == "" {
		a.schema = db.SchemaFor(cfg.FacilityName)
	}
	pool, err := db.NewPool(ctx, db.PoolOptions{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   a.schema,
		AppName:  "carenet/" + cfg.FacilityName,
	})
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.logger.Info().Str("schema", a.schema).Msg("connected to database")

	if bootstrap {
		n, err := db.CreateFacilitySchema(ctx, pool, a.schema)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if n > 0 {
			a.logger.Info().Int("applied", n).Str("schema", a.schema).Msg("facility schema bootstrapped")
		}
	}

	a.svc = records.NewService(records.NewPGStore(pool))
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) engine(master bool) *federation.Engine {
	return federation.NewEngine(a.svc, federation.Config{
		FacilityName: a.cfg.FacilityName,
		Master:       master,
		Resolver:     a.cfg.Resolver(),
		PeerOptions:  a.cfg.PeerOptions(),
		Logger:       a.logger,
	})
}

// registerPeers registers each url with the engine. A peer that cannot be
// registered is logged and skipped.
func registerPeers(ctx context.Context, e *federation.Engine, urls []string, logger zerolog.Logger) int {
	n := 0
	for _, u := range urls {
		if _, err := e.RegisterRemote(ctx, u); err != nil {
			logger.Warn().Err(err).Str("peer", u).Msg("peer not registered")
			continue
		}
		n++
	}
	return n
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the facility server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the facility schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the facility schema and tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.pool == nil {
				return fmt.Errorf("schema init requires STORE_DRIVER=%s", config.DriverPostgres)
			}

			n, err := db.CreateFacilitySchema(cmd.Context(), a.pool, a.schema)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema %s ready, %d migration(s) applied.\n", a.schema, n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which bootstrap migrations are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.pool == nil {
				return fmt.Errorf("schema status requires STORE_DRIVER=%s", config.DriverPostgres)
			}

			statuses, err := db.NewMigrator(a.pool, db.Migrations()).Status(cmd.Context(), a.schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrations(cmd.OutOrStdout(), a.schema, statuses)
			return nil
		},
	})

	return cmd
}

func printMigrations(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	tw.Flush()
}

func seedCmd() *cobra.Command {
	def := sandbox.DefaultSeedConfig()
	var sc sandbox.SeedConfig

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the local facility with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := sandbox.NewSeeder(a.svc, a.logger).Run(cmd.Context(), sc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Seeded %s:\n", a.cfg.FacilityName)
			fmt.Fprintf(out, "  %d patients\n  %d doctors\n  %d appointments\n  %d medical records\n",
				result.Patients, result.Doctors, result.Appointments, result.MedicalRecords)
			if len(result.Skipped) > 0 {
				fmt.Fprintf(out, "  skipped: %s\n", strings.Join(result.Skipped, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sc.Patients, "patients", def.Patients, "Number of patients")
	cmd.Flags().IntVar(&sc.Doctors, "doctors", def.Doctors, "Number of doctors")
	cmd.Flags().IntVar(&sc.Appointments, "appointments", def.Appointments, "Number of appointments")
	cmd.Flags().IntVar(&sc.MedicalRecords, "records", def.MedicalRecords, "Number of medical records")
	cmd.Flags().Int64Var(&sc.Seed, "seed", 0, "Random seed (0 picks one)")
	return cmd
}

// aggregate opens the app, registers PEERS plus extra and runs one search.
func aggregate(cmd *cobra.Command, kindArg, term string, extra []string) (*federation.View, error) {
	kind, err := records.ParseKind(kindArg)
	if err != nil {
		return nil, err
	}
	a, err := openApp(cmd.Context(), cmd.ErrOrStderr(), false)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	urls := append(append([]string{}, a.cfg.Peers...), extra...)
	engine := a.engine(a.cfg.Master || len(urls) > 0)
	registerPeers(cmd.Context(), engine, urls, a.logger)

	return engine.Search(cmd.Context(), kind, term)
}

func viewCmd() *cobra.Command {
	var term string
	var peers []string

	cmd := &cobra.Command{
		Use:       "view <kind>",
		Short:     "Print the aggregated view of a table",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := aggregate(cmd, args[0], term, peers)
			if err != nil {
				return err
			}
			printView(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().StringVar(&term, "search", "", "Case-insensitive search term")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "Peer base URL (repeatable)")
	return cmd
}

func exportCmd() *cobra.Command {
	var term, out string
	var peers []string

	cmd := &cobra.Command{
		Use:       "export <kind>",
		Short:     "Write the aggregated view of a table to an .xlsx file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + ".xlsx"
			}
			v, err := aggregate(cmd, args[0], term, peers)
			if err != nil {
				return err
			}
			if err := export.Save(out, v.Table()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d row(s) to %s\n", len(v.Rows), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (default <kind>.xlsx)")
	cmd.Flags().StringVar(&term, "search", "", "Case-insensitive search term")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "Peer base URL (repeatable)")
	return cmd
}

func printView(w io.Writer, v *federation.View) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(federation.Header(v.Kind), "\t"))
	for _, r := range v.Rows {
		fmt.Fprintln(tw, strings.Join(r.Cells(v.Kind), "\t"))
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d row(s)\n", len(v.Rows))
	for _, p := range v.Peers {
		line := fmt.Sprintf("%s  %s (%s) %s, %d row(s)", p.Status, p.Facility, p.Prefix, p.URL, p.Rows)
		if p.Dropped > 0 {
			line += fmt.Sprintf(", %d dropped", p.Dropped)
		}
		fmt.Fprintln(w, line)
	}
}

func kindNames() []string {
	names := make([]string, len(records.Kinds))
	for i, k := range records.Kinds {
		names[i] = string(k)
	}
	return names
}

func peerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Talk to a single peer facility",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "health <url>",
		Short: "Check a peer's health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := peerClient(cmd, args[0])
			if err != nil {
				return err
			}
			h, ok := client.CheckHealth(cmd.Context())
			if !ok {
				return fmt.Errorf("%s: %w", client.BaseURL(), peer.ErrUnreachable)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", client.BaseURL(), h.Status, h.Hospital)
			return nil
		},
	})

	var data string
	create := &cobra.Command{
		Use:   "create <url> <kind>",
		Short: "Create a row on a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := records.ParseKind(args[1])
			if err != nil {
				return err
			}
			ent, err := decodeEntity(kind, data)
			if err != nil {
				return err
			}
			client, err := peerClient(cmd, args[0])
			if err != nil {
				return err
			}
			res, ok := client.Create(cmd.Context(), kind, ent.Fields())
			if !ok {
				return fmt.Errorf("%s: create %s failed: %w", client.BaseURL(), kind, peer.ErrUnreachable)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %d on %s\n", kind, res.ID, client.BaseURL())
			return nil
		},
	}
	create.Flags().StringVar(&data, "data", "", "Row as a JSON object")
	create.MarkFlagRequired("data")
	cmd.AddCommand(create)

	return cmd
}

// decodeEntity parses and validates a JSON row for kind before it is sent.
func decodeEntity(kind records.Kind, data string) (records.Entity, error) {
	ent, err := records.NewEntity(kind)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ent); err != nil {
		return nil, fmt.Errorf("decode --data: %w", err)
	}
	if err := records.Validate(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

func peerClient(cmd *cobra.Command, url string) (*peer.Client, error) {
	if err := peer.ValidateURL(url); err != nil {
		return nil, err
	}
	// Without a loadable config the default timeouts apply.
	opts := peer.Options{Logger: newLogger(cmd.ErrOrStderr(), "development")}
	if cfg, err := config.Load(); err == nil {
		opts = cfg.PeerOptions()
		opts.Logger = newLogger(cmd.ErrOrStderr(), cfg.Env)
	}
	return peer.NewClient(url, opts), nil
}
