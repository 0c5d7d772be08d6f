package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ipfs/go-datastore"
	badger "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log/v2"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	mongods "github.com/textileio/go-ds-mongo"
	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/buildinfo"
	"github.com/textileio/oraclefs/events"
	"github.com/textileio/oraclefs/gateway"
	"github.com/textileio/oraclefs/officer"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/registry"
	"github.com/textileio/oraclefs/util"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/exporters/metric/prometheus"
)

const datastoreFolderName = "datastore"

var (
	log    = logging.Logger("oraclefsd")
	config = viper.New()
)

// Config is the daemon configuration.
type Config struct {
	RepoPath    string
	GatewayAddr string
	MetricsAddr string
	AdminToken  string `json:"-"`

	MongoURI        string
	MongoDB         string
	MongoCollection string

	OfficerAddr     oracles.Address
	OfficerInterval time.Duration

	WebhookURL   string
	WebhookKinds []string

	Params oracles.Params
}

func main() {
	// Configure flags.
	if err := setupFlags(); err != nil {
		log.Fatalf("configuring flags: %s", err)
	}

	// Create configuration from flags/envs.
	conf, err := configFromFlags()
	if err != nil {
		log.Fatalf("creating config from flags: %s", err)
	}

	// Configure logging.
	if err := setupLogging(conf.RepoPath); err != nil {
		log.Fatalf("configuring up logging: %s", err)
	}

	log.Infof("starting oraclefsd:\n%s", buildinfo.Get())

	// Configuring Prometheus exporter.
	closeInstr, err := setupInstrumentation(conf.MetricsAddr)
	if err != nil {
		log.Fatalf("starting instrumentation: %s", err)
	}
	confJSON, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		log.Fatalf("marshaling configuration: %s", err)
	}
	log.Infof("%s", confJSON)

	ds, err := createDatastore(conf)
	if err != nil {
		log.Fatalf("creating datastore: %s", err)
	}

	var notifiers []events.Notifier
	var hook *events.Webhook
	if conf.WebhookURL != "" {
		hook = events.NewWebhook(conf.WebhookURL, conf.WebhookKinds)
		notifiers = append(notifiers, hook)
	}
	reg, err := registry.New(ds, oracles.SystemClock{}, conf.Params, notifiers...)
	if err != nil {
		log.Fatalf("creating registry: %s", err)
	}

	gw := gateway.New(conf.GatewayAddr, reg, auth.New(ds), conf.AdminToken)
	if err := gw.Start(); err != nil {
		log.Fatalf("starting gateway: %s", err)
	}

	var ofc *officer.Officer
	if conf.OfficerAddr != oracles.EmptyAddress {
		ofc, err = officer.New(reg, conf.OfficerAddr, conf.OfficerInterval)
		if err != nil {
			log.Fatalf("starting officer: %s", err)
		}
	}
	log.Info("daemon started.")

	// Wait for Ctrl+C and close.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Info("Closing...")
	if err := gw.Stop(); err != nil {
		log.Errorf("stopping gateway: %s", err)
	}
	if ofc != nil {
		if err := ofc.Close(); err != nil {
			log.Errorf("closing officer: %s", err)
		}
	}
	if err := reg.Close(); err != nil {
		log.Errorf("closing registry: %s", err)
	}
	if hook != nil {
		if err := hook.Close(); err != nil {
			log.Errorf("closing webhook: %s", err)
		}
	}
	if err := ds.Close(); err != nil {
		log.Errorf("closing datastore: %s", err)
	}
	closeInstr()
	log.Info("Closed")
}

func configFromFlags() (Config, error) {
	repoPath, err := getRepoPath()
	if err != nil {
		return Config{}, fmt.Errorf("getting repo path: %s", err)
	}

	gatewayMaddr, err := util.TCPAddr(config.GetString("gatewayaddr"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing gatewayaddr: %s", err)
	}

	params := oracles.DefaultParams()
	params.ResponseWindow = config.GetDuration("responsewindow")
	params.FinalizeWindow = config.GetDuration("finalizewindow")
	params.SettleGrace = config.GetDuration("settlegrace")
	params.MinVotes = config.GetInt("minvotes")
	params.MinWorkTime = config.GetDuration("minworktime")
	params.ClaimTimeout = config.GetDuration("claimtimeout")
	params.MinStake = map[oracles.Role]*big.Int{
		oracles.Verifier:       big.NewInt(config.GetInt64("verifierstake")),
		oracles.TimeoutOfficer: big.NewInt(config.GetInt64("officerstake")),
		oracles.Reencryptor:    big.NewInt(config.GetInt64("reencryptorstake")),
	}
	if err := params.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating protocol parameters: %s", err)
	}

	return Config{
		RepoPath:        repoPath,
		GatewayAddr:     gatewayMaddr,
		MetricsAddr:     config.GetString("metricsaddr"),
		AdminToken:      config.GetString("admintoken"),
		MongoURI:        config.GetString("mongouri"),
		MongoDB:         config.GetString("mongodb"),
		MongoCollection: config.GetString("mongocollection"),
		OfficerAddr:     oracles.Address(config.GetString("officeraddr")),
		OfficerInterval: config.GetDuration("officerinterval"),
		WebhookURL:      config.GetString("webhookurl"),
		WebhookKinds:    config.GetStringSlice("webhookkinds"),
		Params:          params,
	}, nil
}

func createDatastore(conf Config) (datastore.TxnDatastore, error) {
	if conf.MongoURI != "" {
		log.Info("Opening Mongo database...")
		mongoCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if conf.MongoDB == "" {
			return nil, fmt.Errorf("mongo database name is empty")
		}
		if conf.MongoCollection == "" {
			return nil, fmt.Errorf("mongo collection name is empty")
		}
		opts := []mongods.Option{
			mongods.WithCollName(conf.MongoCollection),
		}
		ds, err := mongods.New(mongoCtx, conf.MongoURI, conf.MongoDB, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening mongo datastore: %s", err)
		}
		return ds, nil
	}

	log.Info("Opening badger database...")
	path := filepath.Join(conf.RepoPath, datastoreFolderName)
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("creating repo folder: %s", err)
	}
	opts := &badger.DefaultOptions
	opts.NumVersionsToKeep = 0
	ds, err := badger.NewDatastore(path, opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger datastore: %s", err)
	}
	return ds, nil
}

func setupInstrumentation(addr string) (func(), error) {
	exporter, err := prometheus.InstallNewPipeline(prometheus.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating the prometheus exporter: %s", err)
	}
	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, fmt.Errorf("starting runtime metrics: %s", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("running prometheus scrape endpoint: %v", err)
		}
	}()
	closeFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutting down prometheus server: %s", err)
		}
	}

	return closeFunc, nil
}

func setupLogging(repoPath string) error {
	if err := os.MkdirAll(repoPath, os.ModePerm); err != nil {
		return fmt.Errorf("creating repo folder: %s", err)
	}
	cfg := logging.Config{
		Level:  logging.LevelError,
		Stdout: true,
		File:   filepath.Join(repoPath, "oraclefsd.log"),
	}
	logging.SetupLogging(cfg)
	loggers := []string{
		// Top-level
		"oraclefsd",
		"registry",
		"gateway",
		"auth",
		"events",
		"officer",

		// Oracles
		"oracles-roles",
		"oracles-rounds",
		"oracles-settlement",
		"oracles-reencrypt",

		// Escrow
		"escrow",
		"escrow-transferstore",

		// Files
		"files-store",
		"files-ledger",
	}

	// oraclefsd registered loggers get info level by default.
	for _, l := range loggers {
		if err := logging.SetLogLevel(l, "info"); err != nil {
			return fmt.Errorf("setting up logger %s: %s", l, err)
		}
	}
	debugLevel := config.GetBool("debug")
	if debugLevel {
		for _, l := range loggers {
			if err := logging.SetLogLevel(l, "debug"); err != nil {
				return err
			}
		}
	}
	return nil
}

func getRepoPath() (string, error) {
	repoPath := config.GetString("repopath")
	if repoPath == "~/.oraclefs" {
		expandedPath, err := homedir.Expand(repoPath)
		if err != nil {
			return "", fmt.Errorf("expanding homedir: %s", err)
		}
		repoPath = expandedPath
	}
	return repoPath, nil
}

func setupFlags() error {
	defaults := oracles.DefaultParams()
	pflag.Bool("debug", false, "Enable debug log level in all loggers.")
	pflag.String("repopath", "~/.oraclefs", "Path of the repository where oraclefs state will be saved.")
	pflag.String("gatewayaddr", "/ip4/0.0.0.0/tcp/6006", "Gateway listening multiaddress.")
	pflag.String("metricsaddr", ":8888", "Prometheus scrape endpoint listening address.")
	pflag.String("admintoken", "", "Token required by admin routes. Admin routes are disabled if empty.")
	pflag.String("mongouri", "", "Mongo URI. If set, state is saved in Mongo instead of the repo badger datastore.")
	pflag.String("mongodb", "", "Mongo database name. (Required with --mongouri)")
	pflag.String("mongocollection", "oraclefs", "Mongo collection name.")
	pflag.String("officeraddr", "", "Address of a registered timeout officer that settles rounds from this daemon. (Optional)")
	pflag.Duration("officerinterval", time.Minute, "How often the officer looks for settleable rounds.")
	pflag.String("webhookurl", "", "Endpoint that receives committed events as JSON. (Optional)")
	pflag.StringSlice("webhookkinds", nil, "Event kinds delivered to --webhookurl. All if empty.")
	pflag.Duration("responsewindow", defaults.ResponseWindow, "How long a round accepts votes.")
	pflag.Duration("finalizewindow", defaults.FinalizeWindow, "How long voters can finalize after the response deadline.")
	pflag.Duration("settlegrace", defaults.SettleGrace, "Time after the finalize deadline after which a settlement is flagged late.")
	pflag.Int("minvotes", defaults.MinVotes, "Finalized votes needed to accept a claim.")
	pflag.Duration("minworktime", defaults.MinWorkTime, "Minimum time between claiming and completing a re-encryption job.")
	pflag.Duration("claimtimeout", defaults.ClaimTimeout, "How long a reencryptor holds a job.")
	pflag.Int64("verifierstake", 0, "Stake required to register as a verifier.")
	pflag.Int64("officerstake", 0, "Stake required to register as a timeout officer.")
	pflag.Int64("reencryptorstake", 0, "Stake required to register as a reencryptor.")
	pflag.Parse()

	config.SetEnvPrefix("ORACLEFS")
	config.AutomaticEnv()
	if err := config.BindPFlags(pflag.CommandLine); err != nil {
		return fmt.Errorf("binding pflags: %s", err)
	}
	return nil
}
