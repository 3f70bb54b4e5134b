package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	qstashx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/qstash"
)

// QStashPublisher is the subset of the QStash client used for forwarding.
type QStashPublisher interface {
	PublishJSON(ctx context.Context, payload any, headers map[string]string) (string, error)
}

var _ QStashPublisher = (*qstashx.Client)(nil)

// Forwarder relays fragments to a QStash destination in the background.
type Forwarder struct {
	client  QStashPublisher
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewForwarder(client QStashPublisher, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{client: client, timeout: timeout}
}

func (f *Forwarder) Publish(ctx context.Context, frag Fragment) {
	if f == nil || f.client == nil {
		return
	}

	base := context.WithoutCancel(ctx)
	f.wg.Go(func() {
		pubCtx, cancel := context.WithTimeout(base, f.timeout)
		defer cancel()

		id, err := f.client.PublishJSON(pubCtx, frag, map[string]string{
			"X-Call-Id": frag.CallID,
		})
		if err != nil {
			log.Warn().Err(err).Str("call_id", frag.CallID).Msg("forward transcript fragment failed")
			return
		}
		log.Debug().Str("call_id", frag.CallID).Str("message_id", id).Msg("transcript fragment forwarded")
	})
}

// Wait blocks until in-flight forwards finish.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}
