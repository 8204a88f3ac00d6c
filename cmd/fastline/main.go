package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/fastline-go/internal/channel"
	"github.com/comigor/fastline-go/internal/config"
	"github.com/comigor/fastline-go/internal/engine"
	"github.com/comigor/fastline-go/internal/ingress"
	"github.com/comigor/fastline-go/internal/logger"
	"github.com/comigor/fastline-go/internal/mutate"
	"github.com/comigor/fastline-go/internal/notify"
	"github.com/comigor/fastline-go/internal/refresh"
	"github.com/comigor/fastline-go/internal/session"
	"github.com/comigor/fastline-go/internal/store"
	"github.com/comigor/fastline-go/internal/suggest"
)

// platformHooks routes transition callbacks to the per-surface
// refresh coalescers. Rendering itself lives elsewhere.
type platformHooks struct {
	surfaces []*refresh.Coalescer
}

func (h *platformHooks) refreshAll() {
	for _, c := range h.surfaces {
		c.RequestUpdate()
	}
}

func (h *platformHooks) OnStarted(session.Snapshot) { h.refreshAll() }
func (h *platformHooks) OnStopped(session.Snapshot) { h.refreshAll() }
func (h *platformHooks) OnUpdated(session.Snapshot) { h.refreshAll() }

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return
	}
	logger.SetLevel(cfg.Log.Level)

	// Open the session store and resolve the device identity.
	st := store.New(cfg.Store.Path)
	defer st.Close()

	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = st.DeviceID()
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := st.SetDeviceID(deviceID); err != nil {
			slog.Warn("generated device id not persisted", "error", err)
		}
	}
	slog.Info("device identity resolved", "deviceId", deviceID)

	// Connect the device-to-device channel.
	ch, err := channel.NewMQTT(cfg.Broker, cfg.Device.Pair, deviceID)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		return
	}
	defer ch.Close()

	// Per-surface refresh coalescers.
	widgets := refresh.New(0, func() { slog.Debug("widget refresh") })
	tiles := refresh.New(0, func() { slog.Debug("tile refresh") })
	complications := refresh.New(0, func() { slog.Debug("complication refresh") })
	defer widgets.Close()
	defer tiles.Close()
	defer complications.Close()
	hooks := &platformHooks{surfaces: []*refresh.Coalescer{widgets, tiles, complications}}

	// Notification scheduling.
	sched := notify.NewTimerScheduler(func(task notify.Task) {
		slog.Info("notification due", "kind", task.Kind, "fastingStart", task.FastingStartMillis)
		// Nudge the paired device to open its app on this alarm.
		if err := ch.SendCommand(channel.CmdOpenWatchApp, []byte(task.Kind)); err != nil {
			slog.Warn("open app nudge not delivered", "error", err)
		}
		hooks.refreshAll()
	})
	defer sched.CancelAll()
	planner := notify.NewPlanner(sched, cfg, nil)

	// Transition engine and the two writers.
	eng := engine.New(st, planner, hooks, nil)
	ing := ingress.New(st, eng, deviceID, hooks.refreshAll)
	svc := mutate.New(st, ch, eng, deviceID, nil, ing.NoteLocalWrite)
	suggester := suggest.New(st, cfg.Reminders, nil)

	// Incoming sync and command traffic.
	err = ch.Subscribe(func(batch []channel.StateMessage) {
		ing.Apply(batch)
	}, func(cmd channel.Command) {
		handleCommand(svc, cfg, hooks, cmd)
	})
	if err != nil {
		slog.Error("failed to subscribe to channel", "error", err)
		return
	}

	// Daily smart start reminder.
	if cfg.Reminders.SmartRemindersEnabled {
		go runSmartReminders(planner, suggester)
	}

	// Local mutation API.
	mux := http.NewServeMux()

	mux.HandleFunc("POST /start", func(w http.ResponseWriter, r *http.Request) {
		goal := r.URL.Query().Get("goal")
		if goal == "" {
			goal = cfg.DefaultGoal
		}
		snap, err := svc.StartFasting(r.Context(), goal)
		respond(w, snap, err)
	})

	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.StopFasting(r.Context())
		respond(w, snap, err)
	})

	mux.HandleFunc("POST /config", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			StartTime *int64  `json:"startTime"`
			GoalID    *string `json:"goalId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		snap, err := svc.UpdateConfig(r.Context(), body.StartTime, body.GoalID)
		respond(w, snap, err)
	})

	mux.HandleFunc("POST /sync", func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.SyncCurrentState(r.Context())
		respond(w, snap, err)
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		respond(w, st.Read(), nil)
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		respond(w, st.History(0), nil)
	})

	mux.HandleFunc("DELETE /history", func(w http.ResponseWriter, r *http.Request) {
		start, err := strconv.ParseInt(r.URL.Query().Get("start"), 10, 64)
		if err != nil {
			http.Error(w, "start query parameter required", http.StatusBadRequest)
			return
		}
		respond(w, map[string]int64{"deleted": start}, st.DeleteHistory(start))
	})

	mux.HandleFunc("GET /suggestion", func(w http.ResponseWriter, r *http.Request) {
		respond(w, suggester.ComputeSuggestedStart(), nil)
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting fastline", "address", addr, "pair", cfg.Device.Pair)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("failed to start server", "error", err)
	}
}

// handleCommand executes one-shot commands sent by the paired device.
func handleCommand(svc *mutate.Service, cfg *config.Config, hooks *platformHooks, cmd channel.Command) {
	ctx := context.Background()
	switch cmd.Path {
	case channel.CmdStartFasting:
		var startMillis int64
		if len(cmd.Payload) > 0 {
			ms, err := channel.DecodeStartMillis(cmd.Payload)
			if err != nil {
				slog.Warn("bad start command payload", "error", err)
				return
			}
			startMillis = ms
		}
		if _, err := svc.StartFastingAt(ctx, cfg.DefaultGoal, startMillis); err != nil {
			slog.Warn("remote start rejected", "error", err)
		}
	case channel.CmdStopFasting:
		if _, err := svc.StopFasting(ctx); err != nil {
			slog.Warn("remote stop rejected", "error", err)
		}
	case channel.CmdUpdateStartTime:
		// The paired device asks this one to surface its start-time
		// editor; there is nothing to mutate here.
		slog.Info("start time edit requested by paired device")
		hooks.refreshAll()
	case channel.CmdOpenWatchApp:
		slog.Info("open app requested", "notificationType", string(cmd.Payload))
		hooks.refreshAll()
	default:
		slog.Warn("unknown command ignored", "path", cmd.Path)
	}
}

// runSmartReminders keeps the daily start reminder scheduled,
// re-planning once a day and retrying sooner when scheduling fails.
func runSmartReminders(planner *notify.Planner, suggester *suggest.Engine) {
	for {
		s := suggester.ComputeSuggestedStart()
		slog.Info("smart reminder planned", "minuteOfDay", s.SuggestedMinuteOfDay, "source", s.Source, "reasoning", s.Reasoning)
		if !planner.ScheduleSmartReminder(s.SuggestedMinuteOfDay) {
			time.Sleep(time.Minute)
			continue
		}
		time.Sleep(24 * time.Hour)
	}
}

// respond writes a JSON result, mapping illegal-state violations to
// 409 so the UI can show them as a transient message.
func respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, mutate.ErrAlreadyFasting) || errors.Is(err, mutate.ErrNotFasting) || errors.Is(err, mutate.ErrNoOpUpdate) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
