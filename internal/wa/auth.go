package wa

import (
	"context"
	"sync"

	"github.com/wacrm/wacrm/internal/bus"
)

// AuthEventType enumerates pairing lifecycle events.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent is one step of the pairing flow.
type AuthEvent struct {
	Type    AuthEventType
	QRCode  string
	Message string
}

var (
	qrMu     sync.RWMutex
	latestQR string
)

// LatestQR returns the most recent pairing code, or "" when none is pending.
// The API layer renders it as a PNG for the browser.
func LatestQR() string {
	qrMu.RLock()
	defer qrMu.RUnlock()
	return latestQR
}

func setLatestQR(code string) {
	qrMu.Lock()
	latestQR = code
	qrMu.Unlock()
}

// StartQRAuth begins the pairing flow, streaming steps to the returned channel
// and mirroring them on the bus. The caller reads until the channel closes.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	qrChan, err := a.GetQRChannel(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan AuthEvent, 10)

	go func() {
		defer close(out)
		defer setLatestQR("")

		// Connect must be called after GetQRChannel.
		if err := a.Connect(); err != nil {
			out <- AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()}
			a.bus.Emit(bus.KindDeviceAuthFailed, err.Error())
			return
		}

		for item := range qrChan {
			switch item.Event {
			case "code":
				setLatestQR(item.Code)
				out <- AuthEvent{Type: AuthEventQRCode, QRCode: item.Code}
				a.bus.Emit(bus.KindDeviceQRGenerated, item.Code)
			case "success":
				out <- AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"}
				a.bus.Emit(bus.KindDeviceAuthenticated, nil)
				return
			case "timeout":
				out <- AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"}
				a.bus.Emit(bus.KindDeviceAuthFailed, "timeout")
				return
			default:
				if item.Error != nil {
					out <- AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()}
					a.bus.Emit(bus.KindDeviceAuthFailed, item.Error.Error())
					return
				}
			}
		}
	}()

	return out, nil
}
