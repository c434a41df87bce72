package websocket

import (
	"sync"
	"time"

	"iot-sim/internal/models"
)

const defaultThrottleWindow = 500 * time.Millisecond

// Broadcaster is the downstream the notifier feeds; the Hub implements it.
type Broadcaster interface {
	BroadcastDeviceUpdate(device *models.Device)
}

// Notifier coalesces bursts of updates for the same device to at most one
// broadcast per window. The first update in a quiet period goes out
// immediately; later ones within the window are folded into a single
// trailing broadcast carrying the latest state.
type Notifier struct {
	downstream Broadcaster
	window     time.Duration

	mu      sync.Mutex
	entries map[string]*throttleEntry
}

type throttleEntry struct {
	lastSent time.Time
	pending  *models.Device
	timer    *time.Timer
}

func NewNotifier(downstream Broadcaster, window time.Duration) *Notifier {
	if window <= 0 {
		window = defaultThrottleWindow
	}
	return &Notifier{
		downstream: downstream,
		window:     window,
		entries:    make(map[string]*throttleEntry),
	}
}

// NotifyDeviceUpdate broadcasts the updated device, throttled per device.
func (n *Notifier) NotifyDeviceUpdate(device *models.Device) {
	n.mu.Lock()
	entry, ok := n.entries[device.ID]
	if !ok {
		entry = &throttleEntry{}
		n.entries[device.ID] = entry
	}

	now := time.Now()
	elapsed := now.Sub(entry.lastSent)
	if elapsed >= n.window {
		entry.lastSent = now
		n.mu.Unlock()
		n.downstream.BroadcastDeviceUpdate(device)
		return
	}

	entry.pending = device
	if entry.timer == nil {
		id := device.ID
		entry.timer = time.AfterFunc(n.window-elapsed, func() { n.flush(id) })
	}
	n.mu.Unlock()
}

// Forget drops a device's throttle state, cancelling any trailing
// broadcast. Called when the device is deleted so the entries map does not
// grow with device churn.
func (n *Notifier) Forget(deviceID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.entries[deviceID]
	if !ok {
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(n.entries, deviceID)
}

// flush sends the newest pending state for a device once its window closes.
func (n *Notifier) flush(deviceID string) {
	n.mu.Lock()
	entry, ok := n.entries[deviceID]
	if !ok || entry.pending == nil {
		if ok {
			entry.timer = nil
		}
		n.mu.Unlock()
		return
	}
	device := entry.pending
	entry.pending = nil
	entry.timer = nil
	entry.lastSent = time.Now()
	n.mu.Unlock()

	n.downstream.BroadcastDeviceUpdate(device)
}
