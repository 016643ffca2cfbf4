package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/geoanchor/internal/config"
	"github.com/relabs-tech/geoanchor/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a command sent by the live page.
type WSMessage struct {
	Action string `json:"action"` // save_anchor, clear_anchor
}

// WSResponse is pushed to the live page.
type WSResponse struct {
	Type     string    `json:"type"` // snapshot, error
	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func RunWeb() error {
	cfg := config.Get()

	tracker, err := newTracker(cfg, "web")
	if err != nil {
		return err
	}

	// 1) Connect to MQTT broker
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Keep the tracker current from the fix and status topics
	if err := subscribeTracker(client, cfg, tracker, "web", nil); err != nil {
		return err
	}

	// 3) API, live feed, metrics and static files
	mux := newWebMux(tracker, time.Duration(cfg.WebUpdateInterval)*time.Millisecond)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func newWebMux(tracker *Tracker, updateInterval time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/fix", handleFix(tracker))
	mux.HandleFunc("/api/status", handleStatus(tracker))
	mux.HandleFunc("/api/anchor", handleAnchor(tracker))
	mux.HandleFunc("/api/distance", handleDistance(tracker))
	mux.HandleFunc("/api/local", handleLocal(tracker))
	mux.HandleFunc("/ws/live", handleLiveWS(tracker, updateInterval))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	if errors.Is(err, ErrNoFix) || errors.Is(err, ErrNoAnchor) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func handleFix(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fix, ok := tracker.Latest()
		if !ok {
			writeError(w, ErrNoFix)
			return
		}
		writeJSON(w, http.StatusOK, fix)
	}
}

func handleStatus(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, tracker.Status())
	}
}

func handleAnchor(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			anchor, ok := tracker.Anchor()
			if !ok {
				writeError(w, ErrNoAnchor)
				return
			}
			writeJSON(w, http.StatusOK, anchor)
		case http.MethodPost:
			anchor, err := tracker.SaveAnchor()
			if err != nil {
				writeError(w, err)
				return
			}
			log.Printf("web: anchor saved at %.6f, %.6f", anchor.Latitude, anchor.Longitude)
			writeJSON(w, http.StatusCreated, anchor)
		case http.MethodDelete:
			tracker.ClearAnchor()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, POST, DELETE")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleDistance(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := tracker.DistanceToAnchor()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"distance_m": d})
	}
}

func handleLocal(tracker *Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pos, err := tracker.LocalPosition()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	}
}

// handleLiveWS pushes a snapshot every interval and accepts anchor
// commands from the page.
func handleLiveWS(tracker *Tracker, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		// gorilla allows one concurrent writer; all writes go through here
		out := make(chan WSResponse, 4)
		done := make(chan struct{})
		quit := make(chan struct{})
		defer close(quit)

		go func() {
			defer close(done)
			for {
				var msg WSMessage
				if err := conn.ReadJSON(&msg); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						log.Printf("web: websocket error: %v", err)
					}
					return
				}
				select {
				case out <- handleWSMessage(tracker, msg):
				case <-quit:
					return
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			var resp WSResponse
			select {
			case <-done:
				return
			case resp = <-out:
			case <-ticker.C:
				snap := tracker.Snapshot()
				resp = WSResponse{Type: "snapshot", Snapshot: &snap}
			}
			if err := conn.WriteJSON(resp); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

func handleWSMessage(tracker *Tracker, msg WSMessage) WSResponse {
	switch msg.Action {
	case "save_anchor":
		if _, err := tracker.SaveAnchor(); err != nil {
			return WSResponse{Type: "error", Message: err.Error()}
		}
	case "clear_anchor":
		tracker.ClearAnchor()
	default:
		return WSResponse{Type: "error", Message: fmt.Sprintf("unknown action %q", msg.Action)}
	}
	snap := tracker.Snapshot()
	return WSResponse{Type: "snapshot", Snapshot: &snap}
}
