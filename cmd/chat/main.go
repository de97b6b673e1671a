// Package main is an interactive terminal harness for the marketplace
// client: sign in, open a conversation and chat over the live backend.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/internal/auth"
	"github.com/comunihub/marketplace-client/internal/backend"
	"github.com/comunihub/marketplace-client/internal/chat"
	"github.com/comunihub/marketplace-client/internal/config"
	"github.com/comunihub/marketplace-client/internal/conversations"
	"github.com/comunihub/marketplace-client/internal/realtime"
	"github.com/comunihub/marketplace-client/pkg/logger"
	"github.com/comunihub/marketplace-client/pkg/tracing"
)

func main() {
	conversationID := flag.Int64("conversation", 0, "conversation to open; 0 lists conversations and exits")
	email := flag.String("email", os.Getenv("CHAT_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("CHAT_PASSWORD"), "account password")
	flag.Parse()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "marketplace-client", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	go func() {
		log.Info("metrics listening", zap.String("port", cfg.MetricsPort))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil {
			log.Warn("metrics listener stopped", zap.Error(err))
		}
	}()

	var store auth.Store = auth.NewMemoryStore()
	if cfg.RedisAddr != "" {
		store = auth.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}))
	}

	sessions := auth.NewManager(cfg.BackendURL, cfg.BackendAnonKey, store, log)
	if err := sessions.Restore(ctx); err != nil {
		if *email == "" || *password == "" {
			log.Error("no persisted session and no credentials provided", zap.Error(err))
			os.Exit(1)
		}
		if _, err := sessions.SignIn(ctx, *email, *password); err != nil {
			log.Error("sign-in failed", zap.Error(err))
			os.Exit(1)
		}
	}
	log.Info("signed in", zap.String("user_id", sessions.UserID()))

	client := backend.New(cfg.BackendURL, cfg.BackendAnonKey, log,
		backend.WithTokenSource(sessions.AccessToken))

	feed, err := realtime.New(ctx, realtime.Provider(cfg.RealtimeProvider), realtime.Config{
		NATSURL:      cfg.NATSURL,
		NATSToken:    cfg.NATSToken,
		WebSocketURL: cfg.RealtimeWSURL,
	}, log)
	if err != nil {
		log.Error("failed to open change feed", zap.Error(err))
		os.Exit(1)
	}
	defer feed.Close()

	if *conversationID == 0 {
		listConversations(ctx, client, feed, log)
		return
	}

	runChat(ctx, *conversationID, client, feed, sessions, log)
}

func listConversations(ctx context.Context, client *backend.Client, feed realtime.Feed, log *logger.Logger) {
	svc := conversations.NewService(client, feed, log)
	list, err := svc.List(ctx)
	if err != nil {
		log.Error("failed to list conversations", zap.Error(err))
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Println("Você ainda não tem conversas.")
		return
	}
	for _, conv := range list {
		fmt.Printf("%4d  %-24s %s\n", conv.ID, conv.Recipient().FullName, conv.Preview())
	}
}

func runChat(ctx context.Context, conversationID int64, client *backend.Client, feed realtime.Feed, sessions *auth.Manager, log *logger.Logger) {
	session := chat.NewSession(conversationID, client, feed, log)
	defer session.Close()

	session.OnChange(func() {
		render(session)
	})

	if err := session.Activate(ctx, sessions.UserID()); err != nil {
		log.Error("failed to open conversation", zap.Error(err))
		os.Exit(1)
	}
	render(session)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return
			}
			if err := session.Send(ctx, line); err != nil {
				fmt.Println("Não foi possível enviar a mensagem. Tente novamente.")
			}
		}
	}
}

func render(session *chat.Session) {
	for item := range session.Display() {
		switch item.Kind {
		case chat.ItemSeparator:
			fmt.Printf("---- %s ----\n", item.Label)
		case chat.ItemMessage:
			fmt.Printf("[%s] %s: %s\n",
				item.Message.CreatedAt.Format("15:04"),
				item.Message.SenderID,
				item.Message.Content,
			)
		}
	}
	fmt.Println()
}
