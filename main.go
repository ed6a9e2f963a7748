package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	configx "github.com/aisaturn/saturn-engine/pkg/config"
	_ "github.com/aisaturn/saturn-engine/pkg/logger/autoload"
	openaiclientx "github.com/aisaturn/saturn-engine/pkg/openaiclient"
	qstashx "github.com/aisaturn/saturn-engine/pkg/qstash"
	"github.com/aisaturn/saturn-engine/saturn/api"
	"github.com/aisaturn/saturn-engine/saturn/dispatcher"
	"github.com/aisaturn/saturn-engine/saturn/listener"
	"github.com/aisaturn/saturn-engine/saturn/storage"
)

func main() {
	dbCfg := configx.MustNew[storage.Config]("DB")
	openaiCfg := configx.MustNew[openaiclientx.Config]("OPENAI")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	listenerCfg := configx.MustNew[listener.Config]("LISTENER")
	serverCfg := configx.MustNew[api.Config]("SERVER")

	db := storage.Connect(*dbCfg)
	defer db.Close()

	store, err := storage.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}

	qstashClient := qstashx.MustNew(*qstashCfg)

	disp, err := dispatcher.New(store, store, store, *openaiCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("dispatcher init failed")
	}

	events, err := listener.New(store, store, qstashClient, *listenerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("listener init failed")
	}

	server, err := api.NewServer(*serverCfg, events, disp, qstashClient)
	if err != nil {
		log.Fatal().Err(err).Msg("server init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
