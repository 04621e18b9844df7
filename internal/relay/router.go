package relay

import (
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/lynx-remote/backend/internal/task"
)

// Presence receives device lifecycle events for best-effort durable
// synchronization. Implementations must not block: the relay fires these
// on its delivery path and never waits for storage.
type Presence interface {
	DeviceConnected(id string, info DeviceInfo)
	DeviceDisconnected(id string)
	Heartbeat(id string)
}

// ScreenshotStore persists screenshot payloads keyed by device identifier
// and capture time.
type ScreenshotStore interface {
	Write(deviceID string, ts time.Time, data []byte) (string, error)
}

// Router drives the relay state machine: it consumes decoded messages plus
// their sender's role and uses the registry and subscription index to
// decide delivery. Delivery misses (no subscribers, offline target) are
// expected conditions, logged and dropped without surfacing an error.
type Router struct {
	registry *Registry
	subs     *Index
	presence Presence
	shots    ScreenshotStore
	tasks    *task.Queue
}

// NewRouter creates a relay router.
func NewRouter(registry *Registry, subs *Index, presence Presence, shots ScreenshotStore, tasks *task.Queue) *Router {
	return &Router{
		registry: registry,
		subs:     subs,
		presence: presence,
		shots:    shots,
		tasks:    tasks,
	}
}

// HandleOpen registers a new connection. An existing connection with the
// same identifier and role is displaced (last-writer-wins) and
// force-closed. A device connect triggers an asynchronous presence upsert
// and a status broadcast to its current subscribers.
func (rt *Router) HandleOpen(c *Conn) {
	if replaced := rt.registry.Register(c); replaced != nil {
		log.Printf("[%s] %s replaced by new connection, closing previous", c.Role(), c.ID())
		replaced.Close()
	}

	log.Printf("[%s] connected: %s", c.Role(), c.ID())

	if c.Role() == RoleDevice {
		rt.presence.DeviceConnected(c.ID(), c.Device())
		rt.broadcastStatus(c.ID(), "online")
	}
}

// HandleClose removes a closed connection from the registry and the
// subscription index before any further message for its identifier is
// processed. A displaced connection closing late does not evict its
// replacement and produces no offline broadcast.
func (rt *Router) HandleClose(c *Conn) {
	removed := rt.registry.Remove(c)

	if c.Role() == RoleClient {
		rt.subs.UnsubscribeAll(c)
	}

	if !removed {
		return
	}

	log.Printf("[%s] disconnected: %s", c.Role(), c.ID())

	if c.Role() == RoleDevice {
		rt.presence.DeviceDisconnected(c.ID())
		rt.broadcastStatus(c.ID(), "offline")
	}
}

// HandleFrame decodes one inbound frame and routes it. Malformed frames
// and unknown kinds are dropped with a log entry; the connection stays
// open.
func (rt *Router) HandleFrame(c *Conn, raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		log.Printf("[%s] %s: dropping frame: %v", c.Role(), c.ID(), err)
		return
	}

	if c.Role() == RoleClient {
		rt.handleClientMessage(c, msg, raw)
	} else {
		rt.handleDeviceMessage(c, msg, raw)
	}
}

func (rt *Router) handleClientMessage(c *Conn, msg *Message, raw []byte) {
	switch msg.Type {
	case KindSubscribe:
		rt.handleSubscribe(c, msg)
	case KindInput, KindResize, KindAction:
		// Forward verbatim to the current target iff it is online.
		// Dropped frames are intentionally silent toward the client.
		deviceID, ok := rt.subs.CurrentTarget(c)
		if !ok {
			return
		}
		device, ok := rt.registry.Lookup(deviceID, RoleDevice)
		if !ok {
			return
		}
		device.Send(raw)
	default:
		log.Printf("[client] %s: dropping %s frame", c.ID(), msg.Type)
	}
}

func (rt *Router) handleSubscribe(c *Conn, msg *Message) {
	if msg.DeviceID == "" {
		log.Printf("[client] %s: subscribe without deviceId", c.ID())
		return
	}

	rt.subs.Subscribe(c, msg.DeviceID)
	log.Printf("[client] %s subscribed to %s", c.ID(), msg.DeviceID)

	online := rt.registry.IsOnline(msg.DeviceID)
	status := "offline"
	if online {
		status = "online"
	}
	c.SendMessage(&Message{Type: KindStatus, Status: status, DeviceID: msg.DeviceID})

	// Push the greeting command to the device on every (re)subscribe.
	if device, ok := rt.registry.Lookup(msg.DeviceID, RoleDevice); ok {
		device.SendMessage(greetingFrame(msg.DeviceID))
	}
}

func (rt *Router) handleDeviceMessage(c *Conn, msg *Message, raw []byte) {
	switch msg.Type {
	case KindOutput:
		subs := rt.subs.SubscribersOf(c.ID())
		if len(subs) == 0 {
			log.Printf("[device] %s: output with no subscribers", c.ID())
			return
		}
		for _, sub := range subs {
			sub.Send(raw)
		}
	case KindPing:
		c.SendMessage(&Message{Type: KindPong})
		rt.presence.Heartbeat(c.ID())
	case KindScreenshot:
		rt.handleScreenshot(c, msg)
	default:
		log.Printf("[device] %s: dropping %s frame", c.ID(), msg.Type)
	}
}

// handleScreenshot decodes the payload on the relay path but hands the
// blob write to the background queue so storage latency never delays
// output delivery. The saved notification goes to the subscribers current
// at write completion.
func (rt *Router) handleScreenshot(c *Conn, msg *Message) {
	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		log.Printf("[device] %s: dropping screenshot: %v", c.ID(), err)
		return
	}

	deviceID := c.ID()
	captured := time.Now()

	rt.tasks.Submit("screenshot write", func() error {
		filename, err := rt.shots.Write(deviceID, captured, data)
		if err != nil {
			return fmt.Errorf("device %s: %w", deviceID, err)
		}

		saved := &Message{
			Type:     KindScreenshotSaved,
			URL:      "/api/screenshots/" + deviceID + "/" + filename,
			Filename: filename,
		}
		for _, sub := range rt.subs.SubscribersOf(deviceID) {
			sub.SendMessage(saved)
		}
		return nil
	})
}

func (rt *Router) broadcastStatus(deviceID, status string) {
	msg := &Message{Type: KindStatus, Status: status, DeviceID: deviceID}
	for _, sub := range rt.subs.SubscribersOf(deviceID) {
		sub.SendMessage(msg)
	}
}

// greetingFrame builds the input command a device receives when a client
// (re)subscribes to it.
func greetingFrame(deviceID string) *Message {
	banner := "@echo off & cls & " +
		"echo ============================================ & " +
		"echo                     Lynx & " +
		"echo ============================================ & " +
		"echo   Status    : Connected & " +
		"echo   Device ID : " + deviceID + " & " +
		"echo. & " +
		"echo   Type 'help' to list available commands & " +
		"echo ============================================ & " +
		"echo on\r"
	return &Message{Type: KindInput, Data: banner}
}
