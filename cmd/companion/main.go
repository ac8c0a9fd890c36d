package main

import (
	"ChatCompanion/internal/adapter/historydb"
	"ChatCompanion/internal/ai"
	"ChatCompanion/internal/config"
	"ChatCompanion/internal/service/companion"
	"ChatCompanion/internal/service/history"
	"ChatCompanion/internal/service/prompt"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
)

func main() {
	var (
		question    string
		uid         uint64
		observation string
	)
	cfg := config.NewConfig(func(fs *flag.FlagSet) {
		fs.StringVar(&question, "question", "What is love?", "вопрос пользователя")
		fs.Uint64Var(&uid, "uid", 0, "идентификатор пользователя, 0 — общая история")
		fs.StringVar(&observation, "observation", "", "внешний контекст для системного промпта")
	})

	// создаём предустановленный регистратор zap
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	// делаем регистратор SugaredLogger
	sugar := logger.Sugar()
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	sugar.Infow(
		"Starting app",
		"DebugMode", cfg.DebugMode,
		"Model", cfg.Completion.Model,
		"HistoryBackend", cfg.History.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var store history.Store
	switch cfg.History.Backend {
	case "memory":
		store = history.NewMemoryStore(cfg.History.MemoryTurns)
	default:
		db, err := historydb.Open(cfg.History.DBPath, sugar)
		if err != nil {
			sugar.Errorw("Failed to open history database", "path", cfg.History.DBPath, "error", err)
			return
		}
		defer db.Close()
		store = db
	}

	client, err := ai.NewCompletionClient(cfg.Completion, sugar)
	if err != nil {
		sugar.Errorw("Failed to create completion client", "error", err)
		return
	}

	profile, err := prompt.FromConfig(cfg.Persona)
	if err != nil {
		sugar.Errorw("Invalid persona", "error", err)
		return
	}

	svc := companion.NewCompanion(profile, history.NewWindower(store, cfg.History.FetchLimit), store, client, sugar)
	reply := svc.Ask(ctx, history.Identity(uid), question, observation)
	fmt.Println(reply)
}
