package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/devchain"
	"github.com/chenzhangda16/web3-riskpipe/internal/riskpipe/logging"
	"github.com/chenzhangda16/web3-riskpipe/pkg/rng"
)

func main() {
	var (
		addr     = flag.String("addr", ":8545", "listen address")
		seed     = flag.Int64("seed", 1, "deterministic traffic seed")
		real     = flag.Bool("real", false, "seed from wall clock instead")
		tick     = flag.Duration("tick", 2*time.Second, "block interval")
		addrs    = flag.Int("addrs", 64, "size of the address pool")
		backfill = flag.Int64("backfill", 120, "seconds of history to mine at startup")
	)
	flag.Parse()

	logging.Setup("info", true)
	log := logging.For("devchain")

	mode := rng.Deterministic
	if *real {
		mode = rng.Real
	}
	rf := rng.New(mode, *seed)

	chain := devchain.NewChain()
	gen := devchain.NewTxGen(devchain.GenAddrs(*addrs, *seed), rf)
	miner := devchain.NewMiner(chain, gen, rf, *tick, log)

	// backfill so pollers have history to chew on immediately
	step := int64(*tick / time.Second)
	if step <= 0 {
		step = 1
	}
	for ts := time.Now().Unix() - *backfill; ts < time.Now().Unix(); ts += step {
		miner.MineOne(ts)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           devchain.NewServer(chain, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return miner.Run(ctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", *addr).Msg("devchain listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		defer done()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
