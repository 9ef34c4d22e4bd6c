package mysensors

import (
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Transport feeds protocol lines published on "<prefix>.out" into a gateway.
type Transport struct {
	sub *nats.Subscription
}

func Subscribe(nc *nats.Conn, prefix string, gw *Gateway, logSubjects bool) (*Transport, error) {
	subject := prefix + ".out"
	sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
		if logSubjects {
			log.Debug().Str("subject", m.Subject).Int("bytes", len(m.Data)).Msg("nats receive")
		}
		handlePayload(gw, m.Data)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("gateway", gw.EntryID()).Str("subject", subject).Msg("subscribed to gateway")
	return &Transport{sub: sub}, nil
}

func (t *Transport) Close() error {
	if t.sub == nil {
		return nil
	}
	return t.sub.Unsubscribe()
}

// handlePayload accepts one or more newline separated protocol lines.
// Malformed lines are logged and skipped.
func handlePayload(gw *Gateway, data []byte) int {
	handled := 0
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := gw.HandleLine(line); err != nil {
			log.Warn().Err(err).Str("gateway", gw.EntryID()).Msg("dropping gateway message")
			continue
		}
		handled++
	}
	return handled
}
