//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package chat

import (
	"context"

	"parley/api"
	"parley/models"
	"parley/realtime"
)

// Backend is the HTTP side of the chat server. *api.Client implements it.
type Backend interface {
	Signup(ctx context.Context, name, email, password string) (api.AuthResult, error)
	Login(ctx context.Context, email, password string) (api.AuthResult, error)
	Users(ctx context.Context, token string) ([]models.Identity, error)
	Messages(ctx context.Context, token string, peerID int64) ([]models.Message, error)
}

// Conn is an open realtime channel.
type Conn interface {
	SendMessage(token string, receiverID int64, text string) error
	Close() error
}

// Dialer opens realtime channels. onLost is called if the server side drops
// the connection.
type Dialer interface {
	Dial(ctx context.Context, token string, handler realtime.Handler, onLost func(error)) (Conn, error)
}
