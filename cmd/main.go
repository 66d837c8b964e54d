package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/chunker"
	"pdf-chat/internal/config"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/history"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/rag"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	files := flag.String("file", "", "Comma-separated document files to upload")
	query := flag.String("query", "", "One-shot question to answer")
	chat := flag.Bool("chat", false, "Start an interactive chat session")
	sessionID := flag.String("session", "", "Resume an existing chat session")
	stats := flag.Bool("stats", false, "Show document statistics")
	sessions := flag.Bool("sessions", false, "List chat sessions")
	deleteFile := flag.String("delete", "", "Delete all chunks for a filename")
	clear := flag.Bool("clear", false, "Clear all documents and history")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	log.Debug().Interface("config", cfg).Msg("Loaded config")

	ctx := context.Background()

	switch {
	case *files != "":
		uploadFiles(ctx, cfg, strings.Split(*files, ","))
	case *query != "":
		askQuestion(ctx, cfg, *query, *sessionID)
	case *chat:
		interactiveChat(ctx, cfg, *sessionID)
	case *stats:
		showStats(cfg)
	case *sessions:
		listSessions(cfg)
	case *deleteFile != "":
		deleteByFilename(ctx, cfg, *deleteFile)
	case *clear:
		clearAll(cfg)
	default:
		flag.Usage()
	}
}

func newRetriever(cfg *config.Config) *rag.Retriever {
	store, err := chromemdb.NewStore(cfg.DataDir, cfg.Collection)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	embedder := embedding.NewClient(cfg.BaseURL, cfg.EmbeddingModel, cfg.MaxRetries)
	return rag.NewRetriever(chunker.NewChunker(), embedder, store, cfg)
}

func newChatEngine(cfg *config.Config, retriever *rag.Retriever) *rag.ChatEngine {
	hist, err := history.NewManager(filepath.Join(cfg.DataDir, "chat_history.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening chat history")
	}
	llm, err := llmservice.NewChatModel(cfg.BaseURL, cfg.ChatModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chat model")
	}
	return rag.NewChatEngine(retriever, hist, llm)
}

// uploadFiles ingests each file independently; one failure does not
// stop the rest of the batch.
func uploadFiles(ctx context.Context, cfg *config.Config, paths []string) {
	retriever := newRetriever(cfg)
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		added, err := retriever.IngestFile(ctx, path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Error ingesting document")
			continue
		}
		fmt.Printf("Indexed %d chunks from %s\n", added, filepath.Base(path))
	}
}

func askQuestion(ctx context.Context, cfg *config.Config, query, sessionID string) {
	retriever := newRetriever(cfg)
	engine := newChatEngine(cfg, retriever)
	startOrLoadSession(engine, sessionID)

	response, err := engine.Chat(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	fmt.Printf("\n%s\n\n", response.Text)
	printSources(response.Sources)
}

func interactiveChat(ctx context.Context, cfg *config.Config, sessionID string) {
	retriever := newRetriever(cfg)
	engine := newChatEngine(cfg, retriever)
	startOrLoadSession(engine, sessionID)

	fmt.Printf("Chat session %s. Type 'quit' to exit.\n", engine.SessionID())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "quit" || query == "exit" {
			break
		}

		response, err := engine.StreamChat(ctx, query, func(chunk string) {
			fmt.Print(chunk)
		})
		if err != nil {
			log.Error().Err(err).Msg("Error processing question")
			continue
		}
		if response.Failed || len(response.Sources) == 0 {
			// Nothing was streamed for canned responses.
			fmt.Print(response.Text)
		}
		fmt.Println()
		printSources(response.Sources)
	}
}

func startOrLoadSession(engine *rag.ChatEngine, sessionID string) {
	if sessionID != "" {
		if err := engine.LoadSession(sessionID); err != nil {
			log.Fatal().Err(err).Msg("Error loading session")
		}
		return
	}
	if _, err := engine.StartSession(""); err != nil {
		log.Fatal().Err(err).Msg("Error starting session")
	}
}

func printSources(sources []history.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("Sources:")
	for _, src := range sources {
		fmt.Printf("  %s, page %d (similarity %.2f)\n", src.Filename, src.PageNumber, src.Similarity)
	}
	fmt.Println()
}

func showStats(cfg *config.Config) {
	retriever := newRetriever(cfg)
	helper.PrettyPrint(retriever.Store().Stats())
}

func listSessions(cfg *config.Config) {
	hist, err := history.NewManager(filepath.Join(cfg.DataDir, "chat_history.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening chat history")
	}
	for _, session := range hist.ListSessions() {
		fmt.Printf("%s  %s  (%d messages)\n", session.ID, session.Name, len(session.Messages))
	}
}

func deleteByFilename(ctx context.Context, cfg *config.Config, filename string) {
	retriever := newRetriever(cfg)
	deleted, err := retriever.Store().DeleteByFilename(ctx, filename)
	if err != nil {
		log.Fatal().Err(err).Msg("Error deleting documents")
	}
	fmt.Printf("Deleted %d chunks for %s\n", deleted, filename)
}

func clearAll(cfg *config.Config) {
	retriever := newRetriever(cfg)
	if err := retriever.Store().Clear(); err != nil {
		log.Fatal().Err(err).Msg("Error clearing documents")
	}
	hist, err := history.NewManager(filepath.Join(cfg.DataDir, "chat_history.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening chat history")
	}
	if err := hist.ClearAll(); err != nil {
		log.Fatal().Err(err).Msg("Error clearing history")
	}
	fmt.Println("Cleared all documents and history")
}
