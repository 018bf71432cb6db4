package routes

import (
	"github.com/courtside/livescore/handlers"
	"github.com/courtside/livescore/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

func SetupRoutes(
	router *chi.Mux,
	scoreHandler *handlers.ScoreHandler,
	ledgerHandler *handlers.LedgerHandler,
	tournamentHandler *handlers.TournamentHandler,
	webSocketHandler *handlers.WebSocketHandler,
	jwtSecret string,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Webhook-Token"},
		MaxAge:         300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Route("/matches", func(r chi.Router) {
		// Публичный просмотр текущего состояния
		r.Get("/{matchID}", scoreHandler.GetSnapshot)

		// Мутации счёта — только аутентифицированные роли
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))
			r.With(middleware.RequireRole("scorer", "organizer")).
				Post("/{matchID}/score", scoreHandler.ApplyDelta)
			r.With(middleware.RequireRole("organizer")).
				Post("/{matchID}/cancel", scoreHandler.Cancel)
		})
	})

	// Подписка на живой счёт: websocket, без аутентификации (зрители)
	router.Get("/ws/matches/{matchID}", webSocketHandler.ServeWS)

	router.Route("/ledger", func(r chi.Router) {
		// Вебхук шлюза авторизуется общим секретом, не JWT
		r.Post("/webhook/payment", ledgerHandler.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))
			r.Get("/balance", ledgerHandler.Balance)
			r.Get("/transactions", ledgerHandler.Transactions)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))
		r.With(middleware.RequireRole("organizer")).
			Post("/tournaments", tournamentHandler.Create)
	})
}
