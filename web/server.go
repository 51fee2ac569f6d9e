package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"keiba-odds-service/browser"
	"keiba-odds-service/config"
	"keiba-odds-service/database"
	"keiba-odds-service/logger"
	"keiba-odds-service/models"
	"keiba-odds-service/services"
)

type Server struct {
	config     *config.Config
	db         *sql.DB
	raceStore  *database.RaceStore
	oddsStore  *database.OddsStore
	scheduler  *services.CollectionScheduler
	collector  *services.OddsCollectionOrchestrator
	pool       *browser.Pool
	wsHub      *Hub
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

func NewServer(cfg *config.Config, db *sql.DB, scheduler *services.CollectionScheduler,
	collector *services.OddsCollectionOrchestrator, pool *browser.Pool, hub *Hub) *Server {
	return &Server{
		config:    cfg,
		db:        db,
		raceStore: database.NewRaceStore(db),
		oddsStore: database.NewOddsStore(db),
		scheduler: scheduler,
		collector: collector,
		pool:      pool,
		wsHub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

func (s *Server) Start() error {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/races", s.handleGetRaces).Methods("GET")
	api.HandleFunc("/races/{race_id}/odds", s.handleGetRaceOdds).Methods("GET")
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")

	// WebSocket路由
	router.HandleFunc("/ws", s.handleWebSocket)

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("[Web] Server shutdown error: %v", err)
	}
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.db.Ping() == nil
	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  status,
		"db":      dbOK,
		"browser": s.pool.Stats(),
		"time":    time.Now().Unix(),
	})
}

type raceResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Venue     string `json:"venue"`
	StartTime string `json:"start_time"`
	Status    string `json:"status"`
	HasJob    bool   `json:"has_job"`
}

// handleGetRaces 获取赛事列表。?status=upcoming|done，默认 upcoming
func (s *Server) handleGetRaces(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.RaceStatusUpcoming
	}
	if status != models.RaceStatusUpcoming && status != models.RaceStatusDone {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	races, err := s.raceStore.FindRacesByStatus(status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]raceResponse, 0, len(races))
	for _, race := range races {
		out = append(out, raceResponse{
			ID:        race.ID,
			Name:      race.Name,
			Venue:     race.Venue,
			StartTime: race.StartTime.In(logger.JST).Format(time.RFC3339),
			Status:    race.Status,
			HasJob:    s.scheduler.HasJob(race.ID),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"races":  out,
		"status": status,
	})
}

type winHistoryRow struct {
	HorseNumber int     `json:"horse_number"`
	HorseName   string  `json:"horse_name"`
	Odds        float64 `json:"odds"`
	CapturedAt  string  `json:"captured_at"`
}

// handleGetRaceOdds 获取单场赛事的赔率概况：各玩法行数 + 単勝赔率推移（最近100条）
func (s *Server) handleGetRaceOdds(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	raceID, err := strconv.ParseInt(vars["race_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid race id", http.StatusBadRequest)
		return
	}

	race, err := s.raceStore.FindRaceByID(raceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if race == nil {
		http.Error(w, "race not found", http.StatusNotFound)
		return
	}

	counts, err := s.oddsStore.CountMarketRows(raceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rows, err := s.db.Query(`
		SELECT h.horse_number, h.name, w.odds, w.captured_at
		FROM win_odds_history w
		JOIN horses h ON h.id = w.horse_id
		WHERE w.race_id = $1
		ORDER BY w.captured_at DESC
		LIMIT 100`, raceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	history := []winHistoryRow{}
	for rows.Next() {
		var row winHistoryRow
		var capturedAt time.Time
		if err := rows.Scan(&row.HorseNumber, &row.HorseName, &row.Odds, &capturedAt); err != nil {
			continue
		}
		row.CapturedAt = capturedAt.In(logger.JST).Format(time.RFC3339)
		history = append(history, row)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"race_id":       raceID,
		"name":          race.Name,
		"venue":         race.Venue,
		"start_time":    race.StartTime.In(logger.JST).Format(time.RFC3339),
		"status":        race.Status,
		"market_counts": counts,
		"win_history":   history,
	})
}

// handleGetStats 获取统计信息
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	var totalRaces, totalHorses, totalWinRows int
	s.db.QueryRow("SELECT COUNT(*) FROM races").Scan(&totalRaces)
	s.db.QueryRow("SELECT COUNT(*) FROM horses").Scan(&totalHorses)
	s.db.QueryRow("SELECT COUNT(*) FROM win_odds_history").Scan(&totalWinRows)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_races":      totalRaces,
		"total_horses":     totalHorses,
		"win_history_rows": totalWinRows,
		"active_jobs":      s.scheduler.ActiveJobCount(),
		"active_races":     s.scheduler.ActiveRaceIDs(),
		"collector":        s.collector.Stats(),
	})
}

// handleWebSocket WebSocket连接处理
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("[Web] WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:     s.wsHub,
		conn:    conn,
		send:    make(chan []byte, 256),
		raceIDs: make(map[int64]bool),
	}

	client.hub.register <- client

	// 发送欢迎消息
	welcomeMsg := &WSMessage{
		Type: "connected",
		Data: map[string]interface{}{
			"message": "Connected to keiba odds WebSocket",
			"time":    time.Now().Unix(),
		},
	}
	welcomeData, _ := json.Marshal(welcomeMsg)
	client.send <- welcomeData

	go client.writePump()
	go client.readPump()
}
