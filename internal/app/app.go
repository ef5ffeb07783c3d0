// Package app wires configuration into the concrete adapters used by the
// command line and the HTTP server.
package app

import (
	"context"
	"errors"
	"os"

	"pagepress/internal/config"
	"pagepress/internal/crawler"
	"pagepress/internal/delivery"
	"pagepress/internal/models"
	"pagepress/internal/parser"
	"pagepress/internal/pipeline"
	"pagepress/internal/storage"
	"pagepress/pkg/logger"
)

// Deps holds the long-lived collaborators shared by every run.
type Deps struct {
	Config    config.Config
	Client    *crawler.HTTPClient
	Sink      storage.Sink
	Creds     delivery.Credentials
	Transport delivery.Transport
	Log       *logger.Logger

	closers []func() error
}

func NewLogger(cfg config.Config) *logger.Logger {
	return logger.NewWith(os.Stderr, cfg.Log.Level, cfg.Log.Format)
}

// Open builds the HTTP client, the sinks and, when an SMTP host is
// configured, the delivery transport.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*Deps, error) {
	d := &Deps{
		Config: cfg,
		Client: crawler.NewHTTPClient(config.Seconds(cfg.Fetch.TimeoutSec), config.Seconds(cfg.Fetch.DialTimeoutSec), cfg.Fetch.MaxBodyBytes).
			WithUserAgent(cfg.Fetch.UserAgent),
		Log: log,
	}

	sinks := storage.Multi{storage.NewFileSink(cfg.Output.Dir)}
	if m := cfg.Output.Mongo; m.URI != "" {
		ms, err := storage.NewMongoSink(ctx, storage.MongoConfig{
			URI:      m.URI,
			Database: m.Database,
			Bucket:   m.Bucket,
			Timeout:  config.Seconds(m.TimeoutSec),
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ms)
		d.closers = append(d.closers, ms.Close)
		log.Infof("artifacts also stored in MongoDB bucket %s.%s", m.Database, m.Bucket)
	}
	d.Sink = sinks

	if s := cfg.Delivery.SMTP; s.Host != "" {
		d.Transport = delivery.NewSMTPTransport(delivery.SMTPConfig{
			Host:            s.Host,
			Port:            s.Port,
			Username:        s.Username,
			From:            s.From,
			To:              s.To,
			Subject:         s.Subject,
			Auth:            s.Auth,
			MaxMessageBytes: cfg.Delivery.MaxMessageBytes,
			Timeout:         config.Seconds(cfg.Delivery.TimeoutSec),
		})
		d.Creds = delivery.NewEnvCredentials(s.TokenEnv)
	}
	return d, nil
}

// Host serves sources from the web through the shared adapters.
func (d *Deps) Host(sources []models.Source) pipeline.Host {
	return pipeline.NewHost(parser.NewWebSource(d.Client, sources, d.Log), d.Sink, d.Creds, d.Transport)
}

func (d *Deps) Runner(sources []models.Source) *pipeline.Runner {
	return pipeline.New(d.Host(sources), d.Client, d.Config, d.Log)
}

// Close releases storage connections.
func (d *Deps) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
