package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// seedFile is the on-disk format for `quizroom seed` and `start --seed`.
type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
	Rooms     []seedRoom     `yaml:"rooms"`
}

type seedQuestion struct {
	ID              string              `yaml:"id"`
	Question        string              `yaml:"question"`
	Type            domain.QuestionKind `yaml:"type"`
	Options         []string            `yaml:"options"`
	CorrectIndex    int                 `yaml:"correctIndex"`
	ReferenceAnswer string              `yaml:"referenceAnswer"`
	UseAI           *bool               `yaml:"useAI"`
	Explanation     string              `yaml:"explanation"`
}

type seedRoom struct {
	Code            string   `yaml:"code"`
	AdminID         string   `yaml:"adminId"`
	StackSize       int      `yaml:"stackSize"`
	RequiredPlayers int      `yaml:"requiredPlayers"`
	Questions       []string `yaml:"questions"`
}

// Questions default to scorer grading unless useAI is set to false.
func (q seedQuestion) toDomain() domain.Question {
	useScorer := true
	if q.UseAI != nil {
		useScorer = *q.UseAI
	}
	return domain.Question{
		ID:              q.ID,
		Text:            q.Question,
		Kind:            q.Type,
		Options:         q.Options,
		CorrectIndex:    q.CorrectIndex,
		ReferenceAnswer: q.ReferenceAnswer,
		UseScorer:       useScorer,
		Explanation:     q.Explanation,
	}
}

func loadSeedFile(path string) (seedFile, error) {
	var seed seedFile
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

type questionSaver interface {
	SaveQuestions(ctx context.Context, questions []domain.Question) error
}

// applySeed validates everything before writing anything, then stores the
// questions and creates the rooms. It returns the created room codes.
func applySeed(ctx context.Context, seed seedFile, bank questionSaver, rooms app.RoomStore, now time.Time) ([]string, error) {
	questions := make([]domain.Question, 0, len(seed.Questions))
	known := make(map[string]bool, len(seed.Questions))
	for _, sq := range seed.Questions {
		q := sq.toDomain()
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("question %q: %w", q.ID, err)
		}
		if known[q.ID] {
			return nil, fmt.Errorf("question %q: %w", q.ID, domain.Validation("duplicate question id"))
		}
		known[q.ID] = true
		questions = append(questions, q)
	}

	built := make([]*domain.Room, 0, len(seed.Rooms))
	for i, sr := range seed.Rooms {
		for _, id := range sr.Questions {
			if !known[id] {
				return nil, fmt.Errorf("room %d: %w", i, domain.Validation("unknown question %q", id))
			}
		}
		room, err := domain.NewRoom(sr.Code, sr.AdminID, sr.StackSize, sr.RequiredPlayers, sr.Questions, now)
		if err != nil {
			return nil, fmt.Errorf("room %d: %w", i, err)
		}
		if len(room.Questions) < room.StackSize {
			return nil, fmt.Errorf("room %s: %w", room.Code, domain.ErrNotEnoughQuestions)
		}
		built = append(built, room)
	}

	if len(questions) > 0 {
		if err := bank.SaveQuestions(ctx, questions); err != nil {
			return nil, fmt.Errorf("save questions: %w", err)
		}
	}
	codes := make([]string, 0, len(built))
	for _, room := range built {
		if err := rooms.Create(ctx, room); err != nil {
			return codes, fmt.Errorf("create room %s: %w", room.Code, err)
		}
		codes = append(codes, room.Code)
	}
	return codes, nil
}

// NewSeedCmd writes questions and rooms from a YAML file into the configured stores.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions and rooms from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Postgres.URL == "" {
				return fmt.Errorf("seed needs postgres configured; use `start --seed` for in-memory runs")
			}
			if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
				return err
			}

			seed, err := loadSeedFile(file)
			if err != nil {
				return err
			}
			stores, err := openBackends(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stores.close()

			codes, err := applySeed(ctx, seed, stores.bank, stores.rooms, time.Now())
			if err != nil {
				return err
			}
			for _, code := range codes {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			logger.Info("seed applied", zap.Int("questions", len(seed.Questions)), zap.Int("rooms", len(codes)))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
