// Package tracker drives one playback session: it consumes host player
// events and companion plugin signals from the broker, maintains the session
// state, and publishes popup-due notices and the retained tracker snapshot.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/nat80/upnext/internal/core"
	"github.com/nat80/upnext/internal/ports"
	"github.com/nat80/upnext/pkg/upnext"
)

// Broker is the slice of the MQTT client the tracker uses.
type Broker interface {
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Config configures the tracker module.
type Config struct {
	TopicBase    string
	PollInterval time.Duration
	Settings     core.Settings
}

// Deps are the tracker's collaborators.
type Deps struct {
	State    *core.State
	Player   ports.Player
	Playlist ports.Playlist
	Clock    ports.Clock
}

// Module is the tracking session driver. All state access happens on the Run
// goroutine; the MQTT handlers only enqueue raw payloads.
type Module struct {
	log    *zap.Logger
	client Broker
	deps   Deps
	config Config

	// Delay between attempts to read a stable total play time from the
	// player right after playback starts.
	settleDelay time.Duration
}

// NewModule creates the tracker module.
func NewModule(log *zap.Logger, client Broker, deps Deps, cfg Config) (*Module, error) {
	if deps.State == nil || deps.Player == nil || deps.Playlist == nil {
		return nil, errors.New("tracker state, player and playlist are required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = upnext.BaseTopic
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if deps.Clock == nil {
		deps.Clock = wallClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{
		log:         log,
		client:      client,
		deps:        deps,
		config:      cfg,
		settleDelay: time.Second,
	}, nil
}

type wallClock struct{}

func (wallClock) NowUnix() int64 { return time.Now().Unix() }

// Run subscribes to the player event and signal topics and processes them
// serially together with the poll ticker until ctx is cancelled.
func (m *Module) Run(ctx context.Context) error {
	eventCh := make(chan []byte, 16)
	signalCh := make(chan []byte, 16)

	enqueue := func(ch chan []byte) paho.MessageHandler {
		return func(_ paho.Client, msg paho.Message) {
			select {
			case ch <- msg.Payload():
			default:
				m.log.Warn("tracker queue full, dropping message", zap.String("topic", msg.Topic()))
			}
		}
	}

	eventTopic := upnext.TopicPlayerEvents(m.config.TopicBase)
	signalTopic := upnext.TopicSignal(m.config.TopicBase)
	if err := m.client.Subscribe(eventTopic, 1, enqueue(eventCh)); err != nil {
		return err
	}
	defer m.client.Unsubscribe(eventTopic)
	if err := m.client.Subscribe(signalTopic, 1, enqueue(signalCh)); err != nil {
		return err
	}
	defer m.client.Unsubscribe(signalTopic)

	m.publishTrackerState()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-eventCh:
			m.handlePlayerEvent(ctx, payload)
		case payload := <-signalCh:
			m.handleSignal(payload)
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Module) handlePlayerEvent(ctx context.Context, payload []byte) {
	var ev upnext.PlayerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		m.log.Debug("malformed player event", zap.Error(err))
		return
	}

	switch ev.Event {
	case "started":
		m.onStarted(ctx, ev)
	case "seek":
		// Seeking does not change what plays next; keep tracking.
	case "ended":
		m.onEnded()
	case "stopped":
		m.onStopped()
	default:
		m.log.Debug("unknown player event", zap.String("event", ev.Event))
	}
}

// handleSignal stores a companion plugin payload for the session. Signals
// sent by our own lookup fallback are not payloads for us.
func (m *Module) handleSignal(payload []byte) {
	sender, data, err := upnext.DecodeEnvelope(payload)
	if err != nil {
		m.log.Debug("malformed signal", zap.String("sender", sender), zap.Error(err))
		return
	}
	if strings.HasPrefix(sender, upnext.AddonID) {
		return
	}
	m.log.Debug("plugin signal received", zap.String("sender", sender))
	m.deps.State.SetPluginData(&data, "")
}

func (m *Module) onStarted(ctx context.Context, ev upnext.PlayerEvent) {
	state := m.deps.State
	state.SetShuffle(ev.Shuffled)
	state.SetPlayingNext(false)
	state.ResetQueue(ctx, true)

	nextPosition, err := m.deps.Playlist.Position(ctx, 1)
	if err != nil {
		nextPosition = 0
	}
	var pluginType *core.PluginType
	if t, ok := state.PluginType(nextPosition > 0); ok {
		pluginType = &t
	}
	position, err := m.deps.Playlist.Position(ctx, 0)
	if err != nil {
		position = 0
	}

	item := state.ProcessNowPlaying(ctx, position, pluginType, ev)
	if item.Empty() {
		m.log.Info("unplayable or unknown item, not tracking")
		state.ResetTracking()
		m.publishTrackerState()
		return
	}

	totalTime, ok := m.stableTotalTime(ctx)
	if !ok {
		m.log.Warn("no play time available, not tracking")
		state.ResetTracking()
		m.publishTrackerState()
		return
	}

	var chapters []float64
	if m.config.Settings.DetectChapters {
		chapters, err = m.deps.Player.ChapterMarks(ctx)
		if err != nil {
			m.log.Debug("chapter marks unavailable", zap.Error(err))
		}
	}

	state.SetPopupTime(totalTime, chapters)

	filename := ev.File
	if filename == "" {
		filename = item.Video.File
	}
	state.StartTracking(filename)
	m.publishTrackerState()
}

// stableTotalTime polls the player until it reports a total play time.
func (m *Module) stableTotalTime(ctx context.Context) (int, bool) {
	attempts := m.config.Settings.APIRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, false
			case <-time.After(m.settleDelay):
			}
		}
		_, total, err := m.deps.Player.PlayTime(ctx)
		if err == nil && total > 0 {
			return int(total), true
		}
	}
	return 0, false
}

func (m *Module) onEnded() {
	state := m.deps.State
	if state.PlayingNext() {
		// Rolling into the item we queued: keep the session, swap items.
		state.ResetItem()
		state.StopTracking()
	} else {
		state.Reset()
	}
	m.publishTrackerState()
}

func (m *Module) onStopped() {
	m.deps.State.Reset()
	m.publishTrackerState()
}

// poll checks playback progress and fires the popup when due.
func (m *Module) poll(ctx context.Context) {
	state := m.deps.State
	if !state.IsTracking() {
		return
	}
	elapsed, _, err := m.deps.Player.PlayTime(ctx)
	if err != nil {
		return
	}
	popupTime := state.PopupTime()
	if popupTime <= 0 || int(elapsed) < popupTime {
		return
	}

	// Fire once per tracked file.
	state.StopTracking()

	next, ok := state.GetNext(ctx)
	if !ok {
		m.log.Info("nothing to play next")
		m.publishTrackerState()
		return
	}

	current := state.CurrentItem()
	notice := upnext.PopupNotice{
		CurrentVideo:  &current.Video,
		NextVideo:     &next.Video,
		Source:        next.Source,
		PopupTime:     popupTime,
		TotalTime:     state.TotalTime(),
		PopupCue:      state.PopupCue(),
		PlayedInARow:  state.PlayedInARow(),
		StillWatching: state.PlayedInARow() >= m.config.Settings.PlayedLimit,
		TS:            m.deps.Clock.NowUnix(),
	}
	payload, err := json.Marshal(notice)
	if err != nil {
		m.log.Error("marshal popup notice", zap.Error(err))
		return
	}
	if err := m.client.Publish(upnext.TopicPopup(m.config.TopicBase), 1, false, payload); err != nil {
		m.log.Warn("publish popup notice", zap.Error(err))
	}
	state.SetPlayingNext(true)
	m.publishTrackerState()
}

// publishTrackerState publishes the retained session snapshot.
func (m *Module) publishTrackerState() {
	state := m.deps.State

	snapshot := upnext.TrackerState{
		Tracking:     state.IsTracking(),
		Filename:     state.TrackedFile(),
		TotalTime:    state.TotalTime(),
		PopupTime:    state.PopupTime(),
		PopupCue:     state.PopupCue(),
		DetectTime:   state.DetectTime(),
		PlayedInARow: state.PlayedInARow(),
		TS:           m.deps.Clock.NowUnix(),
	}
	if current := state.CurrentItem(); !current.Empty() {
		video := current.Video
		snapshot.CurrentVideo = &video
	}
	if next, ok := state.NextItem(); ok {
		video := next.Video
		snapshot.NextVideo = &video
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		m.log.Error("marshal tracker state", zap.Error(err))
		return
	}
	if err := m.client.Publish(upnext.TopicTrackerState(m.config.TopicBase), 1, true, payload); err != nil {
		m.log.Warn("publish tracker state", zap.Error(err))
	}
}
