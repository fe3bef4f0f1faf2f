package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/exp/rand"

	"github.com/scorefour/scorefour/executor/inference"
	"github.com/scorefour/scorefour/executor/mcts"
	"github.com/scorefour/scorefour/executor/selfplay"
	"github.com/scorefour/scorefour/logging"
	"github.com/scorefour/scorefour/store"
)

var totalMoves atomic.Int64
var totalInferences atomic.Int64
var totalGames atomic.Int64

type instrumentedClient struct {
	mcts.Predictor
}

func (c *instrumentedClient) Predict(encoded []float32) ([]float32, float32, error) {
	totalInferences.Add(1)
	return c.Predictor.Predict(encoded)
}

type GameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
	Examples int
}

type gameWriteRequest struct {
	rows []store.TrainingRow
}

type model struct {
	gamesPlayed   int
	totalExamples int
	moves         int64
	inferences    int64
	startTime     time.Time
	recentGames   []string
	updates       chan GameUpdate
}

func initialModel(updates chan GameUpdate) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
	}
}

type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		return <-updates
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		m.inferences = totalInferences.Load()
		return m, tickCmd()
	case GameUpdate:
		m.gamesPlayed++
		m.totalExamples += msg.Examples
		winner := "draw"
		switch msg.Result.Winner {
		case 1:
			winner = "P1"
		case -1:
			winner = "P2"
		}
		logMsg := fmt.Sprintf("Worker %d: %s in %d plies, %d rows", msg.WorkerID, winner, msg.Result.Steps, msg.Examples)
		m.recentGames = append([]string{logMsg}, m.recentGames...)
		if len(m.recentGames) > 10 {
			m.recentGames = m.recentGames[:10]
		}
		return m, waitForUpdate(m.updates)
	}
	return m, nil
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec := float64(m.gamesPlayed) / duration.Seconds()
	movesPerSec := float64(m.moves) / duration.Seconds()
	inferencesPerSec := float64(m.inferences) / duration.Seconds()
	if duration.Seconds() < 1 {
		gamesPerSec = 0
		movesPerSec = 0
		inferencesPerSec = 0
	}

	s := fmt.Sprintf("Games Played:     %d\n", m.gamesPlayed)
	s += fmt.Sprintf("Training Rows:    %d\n", m.totalExamples)
	s += fmt.Sprintf("Total Moves:      %d\n", m.moves)
	s += fmt.Sprintf("Total Inferences: %d\n", m.inferences)
	s += fmt.Sprintf("Duration:         %s\n", duration.Round(time.Second))
	s += fmt.Sprintf("Games/Sec:        %.2f\n", gamesPerSec)
	s += fmt.Sprintf("Moves/Sec:        %.2f\n", movesPerSec)
	s += fmt.Sprintf("Inferences/Sec:   %.2f\n\n", inferencesPerSec)

	s += "Recent Games:\n"
	for _, g := range m.recentGames {
		s += g + "\n"
	}

	s += "\nPress q to quit.\n"
	return s
}

func main() {
	modelPath := flag.String("model", "models/scorefour_net.onnx", "Path to the exported ONNX policy/value network")
	outDir := flag.String("out-dir", "data/generated", "Output directory for generated training parquet batches")
	workers := flag.Int("workers", 64, "Number of self-play workers")
	gamesPerFlush := flag.Int("games-per-flush", 50, "Number of games to buffer per parquet flush")
	maxGames := flag.Int64("max-games", 0, "If > 0, stop after generating this many games (across all workers)")
	sims := flag.Int("sims", 600, "MCTS simulations per move")
	cpuct := flag.Float64("cpuct", 2.0, "PUCT exploration constant")
	dirichletAlpha := flag.Float64("dirichlet-alpha", 0.3, "Dirichlet concentration for root exploration noise")
	dirichletEpsilon := flag.Float64("dirichlet-epsilon", 0.25, "Fraction of root priors replaced by noise")
	tempMoves := flag.Int("temperature-moves", 12, "Opening plies sampled by visit count before switching to argmax")
	temperature := flag.Float64("temperature", 1.0, "Sampling temperature for the opening plies")
	noAugment := flag.Bool("no-augment", false, "Disable symmetry augmentation of training rows")
	seed := flag.Uint64("seed", 0, "Base RNG seed; 0 derives one from the clock")
	onnxSessions := flag.Int("onnx-sessions", 1, "Number of ONNX Runtime sessions to run in parallel (each has its own batching loop)")
	onnxBatchSize := flag.Int("onnx-batch-size", inference.DefaultBatchSize, "ONNX inference batch size")
	onnxBatchTimeout := flag.Duration("onnx-batch-timeout", inference.DefaultBatchTimeout, "Max time to wait for filling an ONNX batch")
	headless := flag.Bool("headless", false, "Log to stdout instead of running the TUI")
	flag.Parse()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	// The TUI owns the terminal, so structured logs go to a file.
	logOut := os.Stdout
	if !*headless {
		f, err := os.OpenFile("selfplay.log", os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := logging.Setup(logOut, slog.LevelInfo)

	if _, err := os.Stat(*modelPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "model file not found: %s (export the network to ONNX first)\n", *modelPath)
		os.Exit(1)
	}

	var predictor mcts.Predictor
	var closer interface{ Close() error }
	onnxCfg := inference.OnnxClientConfig{BatchSize: *onnxBatchSize, BatchTimeout: *onnxBatchTimeout}
	if *onnxSessions <= 1 {
		client, err := inference.NewOnnxClientWithConfig(*modelPath, onnxCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create ONNX client: %v\n", err)
			os.Exit(1)
		}
		predictor = client
		closer = client
	} else {
		pool, err := inference.NewOnnxClientPoolWithConfig(*modelPath, *onnxSessions, onnxCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create ONNX client pool: %v\n", err)
			os.Exit(1)
		}
		predictor = pool
		closer = pool
	}
	defer closer.Close()

	client := &instrumentedClient{Predictor: predictor}

	cfg := mcts.Config{
		Cpuct:            float32(*cpuct),
		Simulations:      *sims,
		DirichletAlpha:   *dirichletAlpha,
		DirichletEpsilon: float32(*dirichletEpsilon),
	}
	opts := selfplay.Options{
		TemperatureMoves: *tempMoves,
		Temperature:      *temperature,
		Augment:          !*noAugment,
	}

	baseSeed := *seed
	if baseSeed == 0 {
		baseSeed = uint64(time.Now().UnixNano())
	}

	logger.Info("starting self-play",
		"workers", *workers,
		"sims", *sims,
		"cpuct", *cpuct,
		"model", *modelPath,
		"out_dir", *outDir,
		"seed", baseSeed,
	)

	// Each worker's MCTS has at most one inference request in flight,
	// so batches cannot fill past the worker count.
	if *onnxBatchSize > *workers {
		logger.Warn("batch size exceeds worker count; batches will not fill",
			"onnx_batch_size", *onnxBatchSize, "workers", *workers)
	}

	updates := make(chan GameUpdate, *workers)
	writeReqs := make(chan gameWriteRequest, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(logger, *outDir, *gamesPerFlush, writeReqs)
		close(writerDone)
	}()

	var workerWG sync.WaitGroup
	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			rng := rand.New(rand.NewSource(baseSeed + uint64(workerID)))
			onStep := func() { totalMoves.Add(1) }

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				rows, result, err := selfplay.PlayGame(ctx, workerID, cfg, client, rng, opts, onStep)
				if err != nil {
					if ctx.Err() == nil {
						logger.Error("game aborted", "worker", workerID, "err", err)
					}
					continue
				}

				total := totalGames.Add(1)
				if *maxGames > 0 && total >= *maxGames {
					cancel()
				}

				writeReqs <- gameWriteRequest{rows: rows}

				// Never block shutdown on a stalled UI.
				select {
				case updates <- GameUpdate{WorkerID: workerID, Result: result, Examples: len(rows)}:
				default:
				}
			}
		}(i)
	}

	if *headless {
		runHeadless(ctx, logger, updates)
	} else {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen())
		go func() {
			<-ctx.Done()
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			logger.Error("tui failed", "err", err)
		}
		cancel()
	}

	logger.Info("shutdown requested; waiting for workers to finish current games")
	workerWG.Wait()
	close(writeReqs)
	<-writerDone
	logger.Info("shutdown complete", "games", totalGames.Load())
}

func runHeadless(ctx context.Context, logger *slog.Logger, updates chan GameUpdate) {
	startTime := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			logger.Info("game finished",
				"worker", update.WorkerID,
				"winner", update.Result.Winner,
				"steps", update.Result.Steps,
				"rows", update.Examples,
			)
		case <-ticker.C:
			duration := time.Since(startTime)
			moves := totalMoves.Load()
			inferences := totalInferences.Load()
			logger.Info("stats",
				"moves_per_sec", float64(moves)/duration.Seconds(),
				"inferences_per_sec", float64(inferences)/duration.Seconds(),
				"games", totalGames.Load(),
			)
		}
	}
}

// parquetWriterLoop streams finished games through a BatchWriter and
// publishes a batch file every gamesPerFlush games. Remaining rows are
// flushed when the request channel closes.
func parquetWriterLoop(logger *slog.Logger, outDir string, gamesPerFlush int, in <-chan gameWriteRequest) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	var writer *store.BatchWriter

	finalize := func() {
		if writer == nil {
			return
		}
		outPath, rows, games, err := writer.Finalize()
		writer = nil
		if err != nil {
			logger.Error("parquet flush failed", "err", err)
			return
		}
		if outPath != "" {
			logger.Info("parquet flush ok", "path", outPath, "games", games, "rows", rows)
		}
	}

	for req := range in {
		if len(req.rows) == 0 {
			continue
		}

		if writer == nil {
			w, err := store.NewBatchWriter(outDir)
			if err != nil {
				logger.Error("open batch writer", "err", err)
				continue
			}
			writer = w
		}

		if err := writer.WriteRows(req.rows); err != nil {
			logger.Error("write rows", "err", err, "rows", len(req.rows))
			continue
		}
		writer.NoteGameWritten()

		if writer.BufferedGames() >= gamesPerFlush {
			finalize()
		}
	}

	finalize()
}
