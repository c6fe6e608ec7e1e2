package chat

import (
	"context"

	"parley/realtime"
)

// WebsocketDialer opens realtime channels at URL.
type WebsocketDialer struct {
	URL     string
	Options []realtime.Option
}

func (d WebsocketDialer) Dial(ctx context.Context, token string, handler realtime.Handler, onLost func(error)) (Conn, error) {
	opts := append([]realtime.Option(nil), d.Options...)
	if onLost != nil {
		opts = append(opts, realtime.WithOnDisconnect(onLost))
	}
	ch, err := realtime.Dial(ctx, d.URL, token, handler, opts...)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
