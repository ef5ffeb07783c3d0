package pipeline

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"

	"pagepress/internal/classifier"
	"pagepress/internal/delivery"
	"pagepress/internal/images"
	"pagepress/internal/models"
	"pagepress/internal/storage"
)

// DocumentSource lists the selected inputs and extracts their content.
type DocumentSource interface {
	List(ctx context.Context) ([]models.Source, error)
	Page(ctx context.Context, src models.Source) (*goquery.Document, error)
	Extract(ctx context.Context, src models.Source) (models.Document, error)
}

// Host is everything a run needs from its environment.
type Host interface {
	DocumentSource
	storage.Sink
	delivery.Credentials
	delivery.Transport
}

// Network performs the probes and downloads of a run.
type Network interface {
	classifier.Prober
	images.Fetcher
}

// ErrDeliveryDisabled is returned by the delivery half of a Host built
// without a transport.
var ErrDeliveryDisabled = errors.New("pipeline: delivery is not configured")

type adapters struct {
	DocumentSource
	storage.Sink
	delivery.Credentials
	delivery.Transport
}

// NewHost combines separate collaborators into a Host. Nil credentials or
// transport make every delivery attempt fail with ErrDeliveryDisabled.
func NewHost(src DocumentSource, sink storage.Sink, creds delivery.Credentials, transport delivery.Transport) Host {
	if creds == nil {
		creds = noDelivery{}
	}
	if transport == nil {
		transport = noDelivery{}
	}
	return adapters{DocumentSource: src, Sink: sink, Credentials: creds, Transport: transport}
}

type noDelivery struct{}

func (noDelivery) Token(context.Context, bool) (string, error) { return "", ErrDeliveryDisabled }
func (noDelivery) Revoke(context.Context, string) error        { return nil }
func (noDelivery) Send(context.Context, string, []models.Artifact) error {
	return ErrDeliveryDisabled
}
