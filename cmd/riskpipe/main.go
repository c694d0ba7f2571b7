package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/app"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/config"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config (empty = defaults)")
		rpcURL  = flag.String("rpc", "", "override node RPC base URL")
		wsURL   = flag.String("ws", "", "override mempool websocket URL")
	)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *rpcURL != "" {
		cfg.RiskPipe.Connectors.RPCURL = *rpcURL
	}
	if *wsURL != "" {
		cfg.RiskPipe.Connectors.MempoolWSURL = *wsURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
