package bank

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/qbedit/internal/model"
	"github.com/pavelanni/qbedit/internal/store"
	"github.com/pavelanni/qbedit/internal/timefmt"
)

// ImportFiles loads question JSON files, each an array of questions in the
// wire format. A file whose content hash was already recorded is skipped;
// a changed file is skipped with a warning so edits made through the bank
// are not overwritten.
func ImportFiles(db *store.Store, paths []string, now time.Time) (int, error) {
	total := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return total, fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, skipping to keep edited questions", "path", path)
			continue
		}

		var questions []model.Question
		if err := json.Unmarshal(data, &questions); err != nil {
			return total, fmt.Errorf("parse %s: %w", path, err)
		}

		for _, q := range questions {
			if q.CreatedAt == "" {
				q.CreatedAt = timefmt.Now(now)
			}
			if !q.QuestionType.Valid() {
				return total, fmt.Errorf("question %q in %s: invalid question_type %q", q.ID, path, q.QuestionType)
			}
			if _, err := db.InsertQuestion(q); err != nil {
				return total, fmt.Errorf("insert question from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return total, fmt.Errorf("record import for %s: %w", path, err)
		}
		total += len(questions)
		slog.Info("imported questions", "path", path, "count", len(questions))
	}
	return total, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SeedUser creates the first staff account when no users exist.
func SeedUser(db *store.Store, identifier, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if identifier == "" || password == "" {
		return fmt.Errorf("admin identifier and password are required: set --admin-identifier/--admin-password or QBEDIT_ADMIN_IDENTIFIER/QBEDIT_ADMIN_PASSWORD")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := db.CreateUser(model.User{
		Identifier:   identifier,
		PasswordHash: string(hash),
		Active:       true,
	}); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded staff user", "identifier", identifier)
	return nil
}
