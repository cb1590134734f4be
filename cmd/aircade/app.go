package main

import (
	"context"

	"github.com/palemoky/aircade/internal/api"
	"github.com/palemoky/aircade/internal/config"
	"github.com/palemoky/aircade/internal/session"
	"github.com/palemoky/aircade/internal/storage"
	"github.com/palemoky/aircade/internal/transport"
)

// app 一次命令运行所需的组件
type app struct {
	cfg   *config.Config
	store storage.Store
	api   *api.Client
	sess  *session.Store
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	client := api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.API.RequestTimeoutDuration()),
		api.WithTokenStore(st),
	)

	tr := cfg.Transport
	factory := session.DefaultTransportFactory(
		transport.WithDialer(transport.NewWebsocketDialer(tr.HandshakeTimeoutDuration())),
		transport.WithHeartbeatInterval(tr.HeartbeatIntervalDuration()),
		transport.WithReconnectPolicy(tr.MaxReconnectAttempts, tr.ReconnectBaseDelayDuration(), tr.ReconnectMaxDelayDuration()),
	)

	sess := session.New(client, cfg.API.BaseURL,
		session.WithTransportFactory(factory),
		session.WithTokenSource(st),
		session.WithRecords(st),
		session.WithLoadTimeout(cfg.Session.LoadTimeoutDuration()),
		session.WithMaxPlayers(cfg.Session.MaxPlayers),
	)
	return &app{cfg: cfg, store: st, api: client, sess: sess}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
