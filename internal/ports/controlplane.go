package ports

import "context"

// ControlPlane pilote le service Howl local (player de scripts).
type ControlPlane interface {
	LoadFunscript(ctx context.Context, title string, content []byte) error
	StartPlayer(ctx context.Context, from float64) error
	StopPlayer(ctx context.Context) error
	Seek(ctx context.Context, position float64) error
}
