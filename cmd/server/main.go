package main

import (
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/Brownie44l1/fkp-api/internal/config"
	"github.com/Brownie44l1/fkp-api/internal/db"
	"github.com/Brownie44l1/fkp-api/internal/handlers"
	"github.com/Brownie44l1/fkp-api/internal/model"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func loadConfig(path string) (*config.ServerConfig, error) {
	cfg := config.Defaults()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", os.Getenv("FKP_CONFIG"), "path to a JSON config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	predictor, err := model.NewPredictor(cfg.PredictorOptions())
	if err != nil {
		log.Fatalf("Failed to initialize predictor: %v", err)
	}

	var serverOpts []model.Option
	handlerOpts := []handlers.Option{handlers.WithChartAssetsHost(cfg.GetChartAssetsHost())}
	if path := cfg.GetDBPath(); path != "" {
		store, err := db.Open(path)
		if err != nil {
			log.Fatalf("Failed to open prediction history: %v", err)
		}
		defer store.Close()
		serverOpts = append(serverOpts, model.WithRecorder(store))
		handlerOpts = append(handlerOpts, handlers.WithHistory(store))
		log.Printf("Recording predictions to: %s", path)
	}

	modelServer := model.NewServer(predictor, serverOpts...)
	defer modelServer.Close()

	mux := http.NewServeMux()
	handlers.NewHandler(modelServer, handlerOpts...).Register(mux, enableCORS)

	port := cfg.GetPort()
	log.Printf("Server starting on port %s", port)
	log.Printf("Backend: %s, input %dx%d, %d keypoints", modelServer.Backend(), modelServer.ImageSize(), modelServer.ImageSize(), model.KeypointCount)
	log.Println("Endpoints:")
	log.Println("  GET  /health            - Health check")
	log.Println("  GET  /model             - Network description")
	log.Println("  POST /predict           - Raw array prediction")
	log.Println("  POST /predict/image     - Predict from image upload")
	log.Println("  POST /predict/plot      - Keypoints plotted as PNG")
	log.Println("  POST /predict/chart     - Keypoints as an HTML chart")
	log.Println("  GET  /predictions       - Recent predictions")
	log.Println("  GET  /predictions/{id}  - One stored prediction")
	log.Printf("Upload test: curl -X POST -F \"image=@face.jpg\" http://localhost:%s/predict/image", port)

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
