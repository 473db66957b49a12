package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kvoronov/transcript-qa/internal/core/domain"
)

// Provider selects between the remote endpoint and the local fallback
// model. The remote endpoint is tried first; a "not found / unsupported"
// error switches the provider to the local model for the rest of the
// process lifetime, so repeated slow failures are not paid per call.
type Provider struct {
	remote *RemoteClient
	local  *LocalEncoder
	log    *slog.Logger

	useLocal atomic.Bool
}

func NewProvider(remote *RemoteClient, local *LocalEncoder, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		remote: remote,
		local:  local,
		log:    log,
	}
}

// Dimension reports the vector size of the active provider. The vector
// index sizes its collection from this value.
func (p *Provider) Dimension() int {
	if p.remoteActive() {
		return p.remote.Dimension()
	}
	if p.local != nil {
		return p.local.Dimension()
	}
	return 0
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if p.remoteActive() {
		vectors, err := p.remote.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if IsNotSupported(err) {
			p.useLocal.Store(true)
			p.log.Warn("remote embeddings unsupported, switching to local model",
				"error", err, "local_dimension", p.localDimension())
		} else {
			p.log.Warn("remote embeddings failed, trying local model", "error", err)
		}
	}

	if p.local == nil {
		return nil, domain.WrapError(domain.ErrEmbeddingsUnavailable, "embed",
			errors.New("no local fallback model configured"))
	}

	vectors, err := p.local.Encode(ctx, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingsUnavailable, "embed", err)
	}
	return vectors, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingsUnavailable, "embed query",
			fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (p *Provider) remoteActive() bool {
	return p.remote != nil && !p.useLocal.Load()
}

func (p *Provider) localDimension() int {
	if p.local == nil {
		return 0
	}
	return p.local.Dimension()
}
