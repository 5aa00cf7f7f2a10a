package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Etcaqab/lazuli/config"
	"github.com/Etcaqab/lazuli/engine"
	"github.com/Etcaqab/lazuli/game"
)

// Demo driver: searches over a small opening book with the material stub
// evaluator, playing out a few moves with tree reuse between searches. Move
// generation stays external; the book is the injected move source.
func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("parsing log level")
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	options := []engine.Option{
		engine.WithGoroutines(cfg.Goroutines),
		engine.WithSimulations(cfg.Simulations),
		engine.WithDuration(cfg.MoveTime),
		engine.WithCpuct(cfg.Cpuct),
		engine.WithDrawScore(cfg.DrawScore),
		engine.WithNoise(cfg.NoiseEpsilon, cfg.NoiseAlpha),
		engine.WithTemperature(cfg.Temperature),
		engine.WithMetrics(),
	}
	eng := engine.NewEngine(engine.MaterialEvaluator{}, openingBook(), options...)

	if _, err := eng.ResetToPosition(game.StartingFen, nil); err != nil {
		log.Fatal().Err(err).Msg("resetting position")
	}

	var played []game.Move
	for ply := 0; ply < 8; ply++ {
		move, metric, err := eng.Search(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("search failed")
		}
		if move == game.MoveA1A1 {
			log.Info().Msg("no move available, game over")
			break
		}
		log.Info().
			Int("ply", ply+1).
			Str("move", move.String()).
			Int64("simulations", metric.Simulations).
			Bool("tree_reused", metric.TreeReused).
			Msg("playing move")
		eng.MakeMove(move)
		played = append(played, move)

		// Feeding the grown history back in is how an outer protocol would
		// drive the engine; an extension of the last search reuses the tree.
		if _, err := eng.ResetToPosition(game.StartingFen, played); err != nil {
			log.Fatal().Err(err).Msg("resetting position")
		}
	}
}

// bookLines are a few mainline openings; the search sees positions off the
// book as terminal leaves scored by the evaluator.
var bookLines = [][]string{
	{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5a4", "g8f6"},
	{"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "f8c5", "c2c3", "g8f6"},
	{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4", "f3d4", "g8f6"},
	{"d2d4", "d7d5", "c2c4", "e7e6", "b1c3", "g8f6", "c1g5", "f8e7"},
	{"d2d4", "g8f6", "c2c4", "e7e6", "g1f3", "d7d5", "b1c3", "f8e7"},
	{"c2c4", "e7e5", "b1c3", "g8f6", "g1f3", "b8c6", "g2g3", "d7d5"},
}

// openingBook builds a position-keyed move source from the book lines.
func openingBook() engine.MoveSource {
	book := make(map[uint64]game.MoveList)
	start, err := game.PositionFromFen(game.StartingFen)
	if err != nil {
		panic(err)
	}
	for _, line := range bookLines {
		pos := start
		for _, uci := range line {
			move := game.MustParseMove(uci)
			hash := pos.Hash()
			known := false
			for _, m := range book[hash] {
				if m == move {
					known = true
					break
				}
			}
			if !known {
				book[hash] = append(book[hash], move)
			}
			pos = pos.Apply(move)
		}
	}
	return func(history *game.PositionHistory) game.MoveList {
		return book[history.Last().Hash()]
	}
}
