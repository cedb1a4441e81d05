package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/wordrush/backend/internal/config"
	"github.com/wordrush/backend/internal/dictionary"
)

// seed-words converts raw newline-delimited word lists into the JSON files
// the server loads at startup:
//
//	seed-words -answers raw/answers.txt -valid raw/valid.txt -common raw/common.txt
//
// Output lands in WORD_DATA_DIR. Words are lowercased, deduplicated and
// filtered to five ASCII letters; the answer list is folded into the valid
// guess list automatically.
//
// The checked-in data/ files are a development-scale sample. Production
// deployments should run this tool over the full published Wordle lists
// (about 2,300 answers and 13,000 accepted guesses) before going live.
func main() {
	answersPath := flag.String("answers", "", "raw answer list (one word per line)")
	validPath := flag.String("valid", "", "raw valid guess list")
	commonPath := flag.String("common", "", "raw common word list (optional)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	if *answersPath == "" || *validPath == "" {
		log.Fatal("both -answers and -valid are required")
	}

	answers, err := readWordList(*answersPath)
	if err != nil {
		log.Fatalf("Failed to read answers: %v", err)
	}
	valid, err := readWordList(*validPath)
	if err != nil {
		log.Fatalf("Failed to read valid guesses: %v", err)
	}
	// Every answer must be guessable.
	valid = merge(valid, answers)

	if err := os.MkdirAll(cfg.WordDataDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", cfg.WordDataDir, err)
	}

	writeJSON(filepath.Join(cfg.WordDataDir, "answers.json"), answers)
	writeJSON(filepath.Join(cfg.WordDataDir, "valid_guesses.json"), valid)

	if *commonPath != "" {
		common, err := readWordList(*commonPath)
		if err != nil {
			log.Fatalf("Failed to read common words: %v", err)
		}
		writeJSON(filepath.Join(cfg.WordDataDir, "common_words.json"), common)
		log.Printf("✓ Wrote %d common words", len(common))
	}

	log.Printf("✓ Wrote %d answers, %d valid guesses to %s", len(answers), len(valid), cfg.WordDataDir)
}

func readWordList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var words []string
	skipped := 0
	for _, line := range strings.Split(string(data), "\n") {
		w := strings.ToLower(strings.TrimSpace(line))
		if w == "" {
			continue
		}
		if len(w) != dictionary.WordLength || !alpha(w) {
			skipped++
			continue
		}
		if seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	if skipped > 0 {
		log.Printf("Skipped %d malformed entries in %s", skipped, path)
	}
	sort.Strings(words)
	return words, nil
}

func alpha(w string) bool {
	for i := 0; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return false
		}
	}
	return true
}

func merge(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, w := range base {
		seen[w] = true
	}
	out := append([]string{}, base...)
	for _, w := range extra {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out
}

func writeJSON(path string, words []string) {
	data, err := json.MarshalIndent(words, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
}
