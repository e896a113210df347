// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// flipd 加载各个模块: chain reader, submitter, engine, 推送和 http 接口,
// 收到 SIGINT/SIGTERM 后按相反的顺序关闭
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/33cn/flipd/chain"
	"github.com/33cn/flipd/common/address"
	"github.com/33cn/flipd/common/crypto"
	"github.com/33cn/flipd/common/db"
	clog "github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/common/version"
	"github.com/33cn/flipd/engine"
	"github.com/33cn/flipd/journal"
	"github.com/33cn/flipd/metrics"
	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/queue"
	"github.com/33cn/flipd/rpc"
	"github.com/33cn/flipd/submitter"
	"github.com/33cn/flipd/trace"
	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("f", "flipd.toml", "configfile")
	versionCmd = flag.Bool("v", false, "version")
	log        = clog.New("module", "main")
)

const shutdownTimeout = 15 * time.Second

func main() {
	flag.Parse()
	if *versionCmd {
		fmt.Println(version.GetVersion())
		return
	}
	if err := run(*configPath); err != nil {
		log.Crit("flipd exit", "err", err)
		_ = clog.Close()
		os.Exit(1)
	}
	_ = clog.Close()
}

func run(path string) error {
	cfg, err := types.LoadConfig(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	clog.SetFileLog(&cfg.Log)
	log.Info("flipd", "version", version.GetVersion(), "config", path, "rpcURL", cfg.Chain.RPCURL, "program", cfg.Chain.ProgramID)

	key, err := crypto.LoadAuthority(&cfg.Authority)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTrace, err := trace.Setup(ctx, &cfg.Trace)
	if err != nil {
		return err
	}

	log.Info("loading chain module")
	program := solana.MustPublicKeyFromBase58(cfg.Chain.ProgramID)
	addrs := address.NewDeriver(program, 0)
	ledger := chain.NewRPCLedger(&cfg.Chain)
	reader := chain.NewReader(ledger, addrs)

	log.Info("loading submitter module")
	txs := submitter.New(ledger, addrs, key, &cfg.Submitter)
	log.Info("authority", "pubkey", txs.Authority().String())

	log.Info("loading store module")
	store, err := db.NewDB(cfg.Store.Name, "", cfg.Store.DBPath, cfg.Store.CacheSize)
	if err != nil {
		return err
	}
	jnl, err := journal.New(store)
	if err != nil {
		store.Close()
		return err
	}

	q := queue.New("lifecycle", &cfg.Broadcast)

	log.Info("loading engine module")
	eng := engine.New(&cfg.Engine, &cfg.Submitter, reader, txs, q)
	eng.SetJournal(jnl)

	var pusher *push.Push
	if cfg.Push.Enable {
		log.Info("loading push module")
		pusher = push.New(store, q, &cfg.Push)
	}

	registry := metrics.NewRegistry(eng.Metrics(), txs.Metrics())
	metrics.StartMetrics(&cfg.Metrics)

	log.Info("loading rpc module")
	server := rpc.New(&cfg.RPC, eng, q)
	server.SetReader(reader)
	server.SetJournal(jnl)
	server.SetRegistry(registry)
	if pusher != nil {
		server.SetPush(pusher)
	}
	if _, err := server.Listen(); err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Serve)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("begin close engine module")
		eng.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("begin close rpc module")
		if err := server.Shutdown(sctx); err != nil {
			log.Error("rpc shutdown", "err", err)
		}
		if pusher != nil {
			log.Info("begin close push module")
			pusher.Close()
		}
		log.Info("begin close queue module")
		q.Close()
		log.Info("begin close store module")
		if err := store.Close(); err != nil {
			log.Error("store close", "err", err)
		}
		if err := shutdownTrace(sctx); err != nil {
			log.Error("trace shutdown", "err", err)
		}
		return nil
	})
	err = g.Wait()
	log.Info("flipd stopped", "status", eng.Status().Phase)
	return err
}
