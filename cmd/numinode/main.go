// numinode is the single-process blockchain-core entrypoint: it loads a
// node.Config, starts a node.Node, and blocks serving the optional REST
// API and admin console until interrupted (spec.md §1's "single-process
// blockchain core" framing).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"gopkg.in/urfave/cli.v1"

	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/node"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the database and keystore",
	}
	dbTypeFlag = cli.StringFlag{
		Name:  "dbtype",
		Usage: "Database backend (badger, leveldb, memory)",
	}
	httpPortFlag = cli.IntFlag{
		Name:  "http.port",
		Usage: "REST API listen port",
		Value: node.DefaultHTTPPort,
	}
	noHTTPFlag = cli.BoolFlag{
		Name:  "http.disable",
		Usage: "Disable the REST API server",
	}
	mineFlag = cli.BoolFlag{
		Name:  "mine",
		Usage: "Start mining with the node's keystore miner key",
	}
	minerThreadsFlag = cli.IntFlag{
		Name:  "miner.threads",
		Usage: "Number of PoW worker goroutines",
		Value: 1,
	}
	consoleFlag = cli.BoolFlag{
		Name:  "console",
		Usage: "Start the interactive admin console instead of blocking on signals",
	}
)

func buildConfig(ctx *cli.Context) (node.Config, error) {
	cfg := node.DefaultConfig()
	if path := ctx.GlobalString(configFileFlag.Name); path != "" {
		loaded, err := node.LoadConfigFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if dir := ctx.GlobalString(dataDirFlag.Name); dir != "" {
		cfg.DataDir = dir
		cfg.KeystoreDir = dir + "/keystore"
	}
	if dbType := ctx.GlobalString(dbTypeFlag.Name); dbType != "" {
		cfg.DBType = node.DBBackend(dbType)
	}
	if ctx.GlobalIsSet(httpPortFlag.Name) {
		cfg.HTTPPort = ctx.GlobalInt(httpPortFlag.Name)
	}
	if ctx.GlobalBool(noHTTPFlag.Name) {
		cfg.EnableHTTP = false
	}
	if ctx.GlobalBool(mineFlag.Name) {
		cfg.EnableMining = true
	}
	if ctx.GlobalIsSet(minerThreadsFlag.Name) {
		cfg.MinerThreads = ctx.GlobalInt(minerThreadsFlag.Name)
	}
	return cfg, nil
}

func run(ctx *cli.Context) error {
	logger := log.NewModuleLogger(log.Node)
	out := colorable.NewColorableStdout()

	cfg, err := buildConfig(ctx)
	if err != nil {
		return err
	}

	n := node.New(cfg)
	if err := n.Start(); err != nil {
		return err
	}
	defer n.Stop()

	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s data_dir=%s db=%s http=%v\n", bold("numinode started"), cfg.DataDir, cfg.DBType, cfg.EnableHTTP)

	if cfg.EnableHTTP {
		addr := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
		server := &http.Server{Addr: addr, Handler: n.HTTPHandler()}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server stopped", "err", err)
			}
		}()
		defer server.Close()
		fmt.Fprintf(out, "REST API listening on %s\n", addr)
	}

	if ctx.GlobalBool(consoleFlag.Name) {
		console := node.NewConsole(n, out)
		defer console.Close()
		console.Run()
		return nil
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Fprintln(out, "shutting down")
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "numinode"
	app.Usage = "numi-core blockchain node"
	app.Flags = []cli.Flag{
		configFileFlag, dataDirFlag, dbTypeFlag,
		httpPortFlag, noHTTPFlag, mineFlag, minerThreadsFlag, consoleFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
