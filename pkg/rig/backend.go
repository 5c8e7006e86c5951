package rig

import "context"

// Backend is the rig-control capability a hardware driver implements
// (serial CAT, TCP CAT, SDR). Each call performs at least one round
// trip with the physical device and must not run concurrently with
// another call on the same instance; the control task guarantees this
// by construction, being the sole owner of the handle.
type Backend interface {
	// Info returns the static backend description. Immutable after
	// construction.
	Info() Info

	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	SetFreq(ctx context.Context, freqHz uint64) error
	SetMode(ctx context.Context, mode Mode) error
	SetPTT(ctx context.Context, on bool) error
	ToggleVFO(ctx context.Context) error
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	TxLimit(ctx context.Context) (uint8, error)
	SetTxLimit(ctx context.Context, limit uint8) error

	// RefreshState reads the rig's current frequency, mode, PTT state
	// and meters in one pass.
	RefreshState(ctx context.Context) (Status, error)

	Close() error
}
