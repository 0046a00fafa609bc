package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The config directory holds game.json (manager credentials) and a
// quizz/ subdirectory with one JSON file per quiz. The file stem is
// the quiz id.

func defaultGameConfig() GameConfig {
	return GameConfig{
		ManagerPassword: "PASSWORD",
		ManagerEmails:   []string{},
	}
}

func sampleQuiz() Quiz {
	return Quiz{
		Subject: "Example Quiz",
		Questions: []Question{
			{
				Question: "What is the correct answer?",
				Answers:  []string{"No", "Correct", "No", "No"},
				Solution: 1,
				Cooldown: 5,
				Time:     15,
			},
		},
	}
}

// initConfigDir creates the config directory with a default game.json
// and a sample quiz when missing. Existing files are left untouched.
func initConfigDir(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	gamePath := filepath.Join(root, "game.json")
	if _, err := os.Stat(gamePath); os.IsNotExist(err) {
		data, err := json.MarshalIndent(defaultGameConfig(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(gamePath, data, 0o644); err != nil {
			return fmt.Errorf("write default game.json: %w", err)
		}
	}

	quizDir := filepath.Join(root, "quizz")
	if _, err := os.Stat(quizDir); os.IsNotExist(err) {
		if err := os.MkdirAll(quizDir, 0o755); err != nil {
			return fmt.Errorf("create quizz directory: %w", err)
		}
		data, err := json.MarshalIndent(sampleQuiz(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(quizDir, "example.json"), data, 0o644); err != nil {
			return fmt.Errorf("write example quiz: %w", err)
		}
	}

	return nil
}

func loadGameConfig(root string) (GameConfig, error) {
	var gc GameConfig

	data, err := os.ReadFile(filepath.Join(root, "game.json"))
	if err != nil {
		return gc, fmt.Errorf("read game.json: %w", err)
	}
	if err := json.Unmarshal(data, &gc); err != nil {
		return gc, fmt.Errorf("parse game.json: %w", err)
	}

	return gc, nil
}

// loadQuizzes reads every quizz/*.json file into the in-memory
// catalog. Unparseable files are skipped with a warning rather than
// failing startup.
func loadQuizzes(cfg *Config, root string) []QuizWithId {
	quizDir := filepath.Join(root, "quizz")

	entries, err := os.ReadDir(quizDir)
	if err != nil {
		warnf("QUIZ: Failed to read quizz directory: %v", err)
		return nil
	}

	var quizzes []QuizWithId

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(quizDir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			warnf("QUIZ: Failed to read %s: %v", path, err)
			continue
		}

		var quiz Quiz
		if err := json.Unmarshal(data, &quiz); err != nil {
			warnf("QUIZ: Failed to parse %s: %v", path, err)
			continue
		}
		if len(quiz.Questions) == 0 {
			warnf("QUIZ: Skipping %s: no questions", path)
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		quizzes = append(quizzes, QuizWithId{
			ID:        id,
			Subject:   quiz.Subject,
			Questions: quiz.Questions,
		})

		logf(cfg, "QUIZ: Loaded %q (%d questions)", id, len(quiz.Questions))
	}

	return quizzes
}

// resolveImageURL turns a quiz asset reference into an absolute URL.
// Full URLs pass through verbatim; relative paths are joined onto the
// base URL.
func resolveImageURL(path *string, baseURL string) *string {
	if path == nil {
		return nil
	}
	if strings.HasPrefix(*path, "http://") || strings.HasPrefix(*path, "https://") {
		return path
	}
	resolved := baseURL + "/" + *path
	return &resolved
}
