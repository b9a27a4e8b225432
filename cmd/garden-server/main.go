// Package main is the entry point for the garden economy server.
// It only handles dependency injection and server initialization.
// NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/webrender/rphq-bot/internal/domain/garden"
	"github.com/webrender/rphq-bot/internal/domain/trade"
	"github.com/webrender/rphq-bot/internal/engine"
	"github.com/webrender/rphq-bot/internal/events"
	"github.com/webrender/rphq-bot/internal/infra/archive"
	"github.com/webrender/rphq-bot/internal/infra/cache"
	"github.com/webrender/rphq-bot/internal/infra/storage"
	"github.com/webrender/rphq-bot/internal/network"
	"github.com/webrender/rphq-bot/internal/platform/config"
	"github.com/webrender/rphq-bot/internal/platform/logger"
	"github.com/webrender/rphq-bot/internal/platform/metrics"
)

// LedgerPersisterAdapter translates domain events to storage events.
type LedgerPersisterAdapter struct {
	repo storage.EventStore
}

func (a *LedgerPersisterAdapter) Append(event events.GardenEvent) error {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payloadMap map[string]interface{}
	json.Unmarshal(payloadBytes, &payloadMap)

	storageEvent := storage.Event{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		GuildID:   event.GuildID,
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payloadMap,
	}

	start := time.Now()
	err := a.repo.AppendEvent(context.Background(), storageEvent)
	metrics.Get().RecordEventWrite(time.Since(start), err)
	return err
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Println("[GARDEN-SERVER] Initializing garden economy server...")

	appLogger := logger.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}

	appLogger.Info("Initializing SQLite database %q...", cfg.DBPath)
	db, err := storage.InitSQLite(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: %v", err)
		os.Exit(1)
	}
	store := storage.NewSQLiteStore(db)

	appLogger.Info("Bootstrapping EventLog...")
	eventPersister := &LedgerPersisterAdapter{repo: store.Stores().Events}
	eventLog := events.NewEventLog(eventPersister)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gardenCache engine.SnapshotCache
	if cfg.RedisAddr != "" {
		appLogger.Info("Connecting to Redis at %s...", cfg.RedisAddr)
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			appLogger.Error("Failed to connect to Redis, running without cache: %v", err)
		} else {
			gardenCache = cache.NewGardenCache(redisClient, cfg.CacheTTL)
		}
	}

	appLogger.Info("Bootstrapping engine systems...")
	eng := engine.NewEngine(store, eventLog, gardenCache, appLogger)
	if err := eng.Start(ctx, cfg.GrowthTickInterval, cfg.CountFlushInterval); err != nil {
		appLogger.Error("Failed to start engine: %v", err)
		os.Exit(1)
	}

	appLogger.Info("Bootstrapping event archiver...")
	archiver := archive.NewArchiver(store.Stores().Events, cfg.ArchiveDir, cfg.EventRetention, appLogger)
	go archiver.Run(ctx, cfg.ArchiveInterval)

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(appLogger)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	// Setup API Routes
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r, appLogger)
	})
	http.HandleFunc("/metrics", metrics.Handler())
	http.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())

	http.HandleFunc("/api/garden", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		guildID := r.URL.Query().Get("guild")
		userID := r.URL.Query().Get("user")
		readOnly := r.URL.Query().Get("readonly") == "1"

		g, created, err := eng.GetOrCreateGarden(r.Context(), guildID, userID, readOnly)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"garden":      g,
			"grouped":     g.Grouped(),
			"created":     created,
			"stalk_price": eng.ComputeStalkPrice(userID),
		})
	})

	http.HandleFunc("/api/garden/plant", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string `json:"guild_id"`
			UserID  string `json:"user_id"`
			Kind    string `json:"kind"`
			X       int    `json:"x"`
			Y       int    `json:"y"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		kind, err := garden.ParseCrop(req.Kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := eng.PlantCrop(r.Context(), req.GuildID, req.UserID, kind, garden.Tile{X: req.X, Y: req.Y}); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	http.HandleFunc("/api/garden/water", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string        `json:"guild_id"`
			UserID  string        `json:"user_id"`
			Tiles   []garden.Tile `json:"tiles"` // empty waters everything eligible
		}
		if !decodePost(w, r, &req) {
			return
		}
		n, err := eng.WaterCrops(r.Context(), req.GuildID, req.UserID, req.Tiles)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"status": "ok", "watered": n})
	})

	http.HandleFunc("/api/garden/harvest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string        `json:"guild_id"`
			UserID  string        `json:"user_id"`
			Tiles   []garden.Tile `json:"tiles"` // empty harvests everything past stage one
		}
		if !decodePost(w, r, &req) {
			return
		}
		units, err := eng.HarvestCrops(r.Context(), req.GuildID, req.UserID, req.Tiles)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"status": "ok", "units": units})
	})

	http.HandleFunc("/api/store/buy", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string `json:"guild_id"`
			UserID  string `json:"user_id"`
			Kind    string `json:"kind"`
			N       int    `json:"n"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		kind, err := garden.ParseCrop(req.Kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := eng.BuyCrops(r.Context(), req.GuildID, req.UserID, kind, req.N); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	http.HandleFunc("/api/store/sell", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string `json:"guild_id"`
			UserID  string `json:"user_id"`
			Lines   []struct {
				Kind string `json:"kind"`
				N    int    `json:"n"`
			} `json:"lines"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		lines := make([]engine.SellLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			kind, err := garden.ParseCrop(l.Kind)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			lines = append(lines, engine.SellLine{Kind: kind, N: l.N})
		}
		receipt, err := eng.SellCrops(r.Context(), req.GuildID, req.UserID, lines)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, receipt)
	})

	http.HandleFunc("/api/stalk-price", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := r.URL.Query().Get("user")
		writeJSON(w, map[string]int{"price": eng.ComputeStalkPrice(userID)})
	})

	http.HandleFunc("/api/trade/propose", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID       string `json:"guild_id"`
			UserID        string `json:"user_id"`
			TargetID      string `json:"target_id"`
			OfferKind     string `json:"offer_kind"`
			OfferAmount   string `json:"offer_amount"`
			RequestKind   string `json:"request_kind"`
			RequestAmount string `json:"request_amount"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		offer, err := buildOffer(req.GuildID, req.UserID, req.TargetID, req.OfferKind, req.OfferAmount, req.RequestKind, req.RequestAmount)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		posted, err := eng.ProposeTrade(r.Context(), offer)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, posted)
	})

	http.HandleFunc("/api/trade/current", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		offer, err := eng.CurrentOffer(r.Context(), r.URL.Query().Get("guild"), r.URL.Query().Get("user"))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, offer)
	})

	http.HandleFunc("/api/trade/accept", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID     string `json:"guild_id"`
			OfferUserID string `json:"offer_user_id"`
			AcceptUser  string `json:"accept_user_id"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		settled, err := eng.AcceptTrade(r.Context(), req.GuildID, req.OfferUserID, req.AcceptUser)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, settled)
	})

	http.HandleFunc("/api/gifts/open", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string `json:"guild_id"`
			UserID  string `json:"user_id"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		kinds, err := eng.OpenGifts(r.Context(), req.GuildID, req.UserID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"status": "ok", "kinds": kinds})
	})

	http.HandleFunc("/api/gifts/grant", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID string `json:"guild_id"`
			UserID  string `json:"user_id"`
			GrantID int    `json:"grant_id"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		if err := eng.GrantGift(r.Context(), req.GuildID, req.UserID, req.GrantID); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	http.HandleFunc("/api/message", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GuildID    string `json:"guild_id"`
			UserID     string `json:"user_id"`
			Characters int    `json:"characters"`
			Roleplay   bool   `json:"roleplay"`
		}
		if !decodePost(w, r, &req) {
			return
		}
		awarded, err := eng.RecordCharacters(r.Context(), req.GuildID, req.UserID, req.Characters, req.Roleplay)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]interface{}{"status": "ok", "water_awarded": awarded})
	})

	http.HandleFunc("/api/growth-tick", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report, err := eng.RunGrowthTick(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, report)
	})

	go func() {
		log.Printf("[GARDEN-SERVER] HTTP API & WS Server listening on %s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, nil); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[GARDEN-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[GARDEN-SERVER] Shutting down...")
	if err := eng.FlushCounts(context.Background()); err != nil {
		appLogger.Error("Final tally flush failed: %v", err)
	}
}

func buildOffer(guildID, userID, targetID, offerKind, offerAmount, requestKind, requestAmount string) (trade.Offer, error) {
	d := trade.NewDraft(guildID, userID)
	if err := d.ChooseTarget(targetID); err != nil {
		return trade.Offer{}, err
	}
	if err := d.ChooseOffered(garden.Kind(offerKind)); err != nil {
		return trade.Offer{}, err
	}
	if garden.Kind(offerKind) != trade.KindNothing {
		a, err := trade.ParseAmount(offerAmount)
		if err != nil {
			return trade.Offer{}, err
		}
		if err := d.ChooseOfferedAmount(a); err != nil {
			return trade.Offer{}, err
		}
	}
	if err := d.ChooseRequested(garden.Kind(requestKind)); err != nil {
		return trade.Offer{}, err
	}
	if garden.Kind(requestKind) != trade.KindNothing {
		a, err := trade.ParseAmount(requestAmount)
		if err != nil {
			return trade.Offer{}, err
		}
		if err := d.ChooseRequestedAmount(a); err != nil {
			return trade.Offer{}, err
		}
	}
	return d.Offer, nil
}

func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, engine.ErrInvalidTarget):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrOccupiedTile):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrStoreUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Bot glue runs on another origin in dev
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection")
		return
	}

	client := network.NewClient(hub, conn)
	client.Register()

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}
