package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"gigboard/internal/fakeapi"
	"gigboard/internal/model"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envOrDefault("FAKEAPI_ADDR", ":8081"), "listen address")
	seed := flag.Bool("seed", true, "start with demo categories and gigs")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	gin.SetMode(gin.ReleaseMode)

	ownerID, err := strconv.ParseInt(envOrDefault("OWNER_ID", "1"), 10, 64)
	if err != nil {
		log.Error("parse OWNER_ID", "error", err)
		os.Exit(1)
	}

	api := fakeapi.New(fakeapi.Options{
		Token:   os.Getenv("FAKEAPI_TOKEN"),
		OwnerID: ownerID,
		Logger:  log,
	})
	if *seed {
		seedDemo(api, ownerID)
	}

	srv := &http.Server{Addr: *addr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("fake api listening", "addr", *addr, "owner_id", ownerID)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
	log.Info("fake api stopped")
}

func seedDemo(api *fakeapi.Server, ownerID int64) {
	api.SeedCategories(
		model.Category{ID: 1, Name: "Mathematics"},
		model.Category{ID: 2, Name: "Physics"},
		model.Category{ID: 3, Name: "Chemistry"},
		model.Category{ID: 4, Name: "Languages"},
	)
	gigs := api.Seed(
		model.Listing{Title: "Algebra revision", Description: "Quadratics and inequalities before the Probatoire.", Budget: 1500, BudgetPeriod: model.PeriodHourly, Location: "Douala", Status: model.StatusOpen, CategoryID: 1, OwnerID: ownerID},
		model.Listing{Title: "Mechanics for Terminale C", Description: "Weekly sessions on kinematics.", Budget: 10000, BudgetPeriod: model.PeriodWeekly, Location: "Online", Status: model.StatusOpen, CategoryID: 2, OwnerID: 7},
		model.Listing{Title: "Organic chemistry basics", Budget: 35000, BudgetPeriod: model.PeriodMonthly, Location: "Yaounde", Status: model.StatusPending, CategoryID: 3, OwnerID: ownerID},
		model.Listing{Title: "English conversation", Description: "Speaking practice for the GCE oral.", Budget: 2000, BudgetPeriod: model.PeriodHourly, Location: "Online", Status: model.StatusInProgress, CategoryID: 4, OwnerID: 9},
		model.Listing{Title: "Geometry homework help", Budget: 5000, BudgetPeriod: model.PeriodDaily, Location: "Buea", Status: model.StatusCompleted, CategoryID: 1, OwnerID: ownerID},
	)
	api.SeedApplications(gigs[0].ID, 2)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
