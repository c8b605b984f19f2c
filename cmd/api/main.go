package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/config"
	"github.com/storeops/order-engine/internal/database"
	"github.com/storeops/order-engine/internal/engine"
	"github.com/storeops/order-engine/internal/erp"
	"github.com/storeops/order-engine/internal/models"
	"github.com/storeops/order-engine/internal/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	store := postgres.NewStore(db)
	eng := engine.New(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Sync.Enabled() {
		publisher := erp.NewKafkaPublisher(cfg.Sync.KafkaBrokers, cfg.Sync.Topic)
		defer publisher.Close()

		worker := erp.NewWorker(eng, publisher, cfg.Sync.Interval)
		go worker.Run(ctx)
		log.Printf("ERP sync worker started (topic %s, every %s)", cfg.Sync.Topic, cfg.Sync.Interval)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/users", handleUsers(store))
	mux.HandleFunc("/users/", handleUserByID(store))
	mux.HandleFunc("/products", handleProducts(store))
	mux.HandleFunc("/products/", handleProductByID(store))
	mux.HandleFunc("/orders", handleOrders(eng))
	mux.HandleFunc("/orders/", handleOrderByID(eng))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}

func handleUsers(store *postgres.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			user, err := store.CreateUser(ctx, req.Email, req.Name)
			if err != nil {
				respondDomainError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, user)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleUserByID(store *postgres.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := strconv.ParseInt(r.URL.Path[len("/users/"):], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}

		user, err := store.GetUser(ctx, id)
		if err != nil {
			respondDomainError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, user)
	}
}

func handleProducts(store *postgres.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				SKU         string  `json:"sku"`
				Name        string  `json:"name"`
				Description string  `json:"description"`
				Price       float64 `json:"price"`
				Stock       int     `json:"stock"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			price := decimal.NewFromFloat(req.Price)
			product, err := store.CreateProduct(ctx, req.SKU, req.Name, req.Description, price, req.Stock)
			if err != nil {
				respondDomainError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(store *postgres.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := strconv.ParseInt(r.URL.Path[len("/products/"):], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := store.GetProduct(ctx, id)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodDelete:
			if err := store.SoftDeleteProduct(ctx, id); err != nil {
				respondDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrders(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		switch r.Method {
		case http.MethodPost:
			var req struct {
				UserID int64 `json:"user_id"`
				Items  []struct {
					ProductID int64 `json:"product_id"`
					Quantity  int   `json:"quantity"`
				} `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			var items []engine.ItemRequest
			for _, item := range req.Items {
				items = append(items, engine.ItemRequest{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
				})
			}

			order, err := eng.CreateOrder(ctx, req.UserID, items)
			if err != nil {
				respondDomainError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, order)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// handleOrderByID routes /orders/{id}, /orders/{id}/status and
// /orders/{id}/cancel.
func handleOrderByID(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		parts := strings.Split(strings.Trim(r.URL.Path[len("/orders/"):], "/"), "/")
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		action := ""
		if len(parts) > 1 {
			action = parts[1]
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			order, err := eng.GetOrder(ctx, id)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case action == "status" && r.Method == http.MethodPut:
			var req struct {
				Status models.OrderStatus `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			order, err := eng.UpdateOrderStatus(ctx, id, req.Status)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case action == "cancel" && r.Method == http.MethodPost:
			order, err := eng.CancelOrder(ctx, id)
			if err != nil {
				respondDomainError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

// respondDomainError maps the engine's error families onto HTTP status
// codes: not-found -> 404, validation -> 400, conflict -> 409, everything
// else -> 500.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrOrderNotFound),
		errors.Is(err, engine.ErrProductNotFound),
		errors.Is(err, engine.ErrUserNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrEmptyOrder),
		errors.Is(err, engine.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrInsufficientStock),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrAlreadyCancelled),
		errors.Is(err, engine.ErrNotCancellable):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
