package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys.
const (
	CheckpointHistoryCursor = "history_cursor"
	CheckpointLastConnected = "last_connected"
)

// PrimaryDeviceID keys the single device account row a workspace maintains.
const PrimaryDeviceID = "primary"

// DeviceInfo exposes the paired account's identity to the reconciler.
type DeviceInfo interface {
	PhoneNumber() string
}

// Reconciler tracks sync checkpoints and the device account row from bus
// events, so a restarted daemon knows where ingestion left off and the API
// can report pairing state without asking the adapter.
type Reconciler struct {
	db     *store.DB
	bus    *bus.Bus
	device DeviceInfo
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewReconciler creates a new reconciler. device may be nil in tests.
func NewReconciler(db *store.DB, b *bus.Bus, device DeviceInfo, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, bus: b, device: device, logger: logger}
}

// Start subscribes to sync and device lifecycle events.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	syncCh, unsubSync := r.bus.Subscribe("sync.", 64)
	deviceCh, unsubDevice := r.bus.Subscribe("device.", 64)

	go func() {
		defer unsubSync()
		defer unsubDevice()
		for {
			select {
			case evt := <-syncCh:
				r.handleEvent(evt)
			case evt := <-deviceCh:
				r.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// UpdateCheckpoint stores a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	return r.db.SetSyncState(key, value)
}

// GetCheckpoint retrieves a sync checkpoint value. Missing keys return "".
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	return r.db.GetSyncState(key)
}

func (r *Reconciler) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindSyncConnected:
		now := time.Now().UnixMilli()
		if err := r.UpdateCheckpoint(CheckpointLastConnected, strconv.FormatInt(now, 10)); err != nil {
			r.logger.Warn("failed to record connect checkpoint", zap.Error(err))
		}
		phone := ""
		if r.device != nil {
			phone = r.device.PhoneNumber()
		}
		if err := r.db.MarkDeviceConnected(PrimaryDeviceID, phone); err != nil {
			r.logger.Warn("failed to record device account", zap.Error(err))
		}
	case bus.KindSyncHistoryBatch:
		now := time.Now().UnixMilli()
		if err := r.UpdateCheckpoint(CheckpointHistoryCursor, strconv.FormatInt(now, 10)); err != nil {
			r.logger.Warn("failed to record history checkpoint", zap.Error(err))
		}
	case bus.KindDeviceQRGenerated:
		if err := r.db.UpsertDeviceAccount(&store.DeviceAccount{
			ID: PrimaryDeviceID, Status: "pairing",
		}); err != nil {
			r.logger.Warn("failed to record pairing state", zap.Error(err))
		}
	case bus.KindDeviceLoggedOut:
		if err := r.db.UpsertDeviceAccount(&store.DeviceAccount{
			ID: PrimaryDeviceID, Status: "disconnected",
		}); err != nil {
			r.logger.Warn("failed to record logout", zap.Error(err))
		}
	}
}
