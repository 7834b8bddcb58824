package application

import "context"

// AudioSource feeds clips to the local relay loop. HTTP clients do not go
// through an AudioSource; they call the Relay directly.
type AudioSource interface {
	Start(ctx context.Context) error
	Stop() error
	NextCommand(ctx context.Context) ([]byte, error)
	Name() string
}
