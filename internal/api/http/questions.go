package http

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bebras-platform/bebras-lms/internal/quiz"
	"github.com/bebras-platform/bebras-lms/internal/storage"
)

// POST /questions
func CreateQuestionHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(q.StatementHTML) == "" {
			http.Error(w, "statement required", http.StatusBadRequest)
			return
		}
		switch q.Format {
		case quiz.FormatText, quiz.FormatNumber:
		case quiz.FormatChoice:
			if len(q.Choices) < 2 {
				http.Error(w, "choice question needs at least two choices", http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, "unknown response format", http.StatusBadRequest)
			return
		}
		if err := store.PutQuestion(r.Context(), q); err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, q)
	}
}

// GET /questions/{questionID}
func GetQuestionHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, q)
	}
}

// GET /questions?skill=logic&skill=graphs&min_difficulty=3&limit=50&offset=0
func ListQuestionsHandler(store quiz.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		list, err := store.ListQuestions(r.Context(), quiz.QuestionListOpts{
			Skills:        qv["skill"],
			MinDifficulty: parseIntDefault(qv.Get("min_difficulty"), 0),
			Limit:         parseIntDefault(qv.Get("limit"), 50),
			Offset:        parseIntDefault(qv.Get("offset"), 0),
		})
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, list)
	}
}

// POST /questions/{questionID}/image  (multipart, field "file")
func UploadQuestionImageHandler(store quiz.Store, db *sql.DB, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := chi.URLParam(r, "questionID")
		q, err := store.GetQuestion(r.Context(), questionID)
		if err != nil {
			quizError(w, err)
			return
		}

		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()

		key, err := storage.ImageKey(questionID, hdr.Filename)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, err := bs.Put(key, f); err != nil {
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := db.ExecContext(r.Context(), `UPDATE questions SET image_key=$1 WHERE id=$2`, key, questionID); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		// Replaced image files are not left behind.
		if q.ImageKey != "" && q.ImageKey != key {
			_ = bs.Delete(q.ImageKey)
		}
		writeJSON(w, map[string]string{"key": key})
	}
}
